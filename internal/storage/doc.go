// Package storage manages print files for remote requests.
//
// Paths arrive in two forms:
//
//	device/parts/cube.gcode    the hub's uploads folder
//	/media/usb0/cube.gcode     a file on a mounted external drive
//
// External paths must lie under one of the configured drive roots. Files on
// external drives are copied into the uploads folder before printing.
//
// Remote print archives are zip files fetched over HTTP(S) and extracted
// into the watched folder, where the printer software picks them up.
// Download progress is reported to the UI as CanvasDownload notifications.
package storage
