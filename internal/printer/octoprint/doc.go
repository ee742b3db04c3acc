// Package octoprint drives a printer through the OctoPrint REST API.
//
// Client implements printer.Printer. Every request carries the configured
// API key in the X-Api-Key header. OctoPrint reports printer states as
// human-readable text ("Operational", "Printing from SD"); the client maps
// them to printer state ids.
//
// OctoPrint pushes events over its own plugin bus, which is not reachable
// from outside the server. Watcher polls the job endpoint instead and turns
// state transitions into printer events. Gcode sent through Client.Commands
// is reported as GcodeSent events directly.
package octoprint
