package octoprint

import (
	"strings"

	"github.com/nerrad567/canvas-link/internal/printer"
)

type connectionCommand struct {
	Command  string `json:"command"`
	Port     string `json:"port,omitempty"`
	Baudrate int    `json:"baudrate,omitempty"`
}

type connectionResponse struct {
	Current struct {
		State          string `json:"state"`
		Port           string `json:"port"`
		Baudrate       int    `json:"baudrate"`
		PrinterProfile string `json:"printerProfile"`
	} `json:"current"`
	Options struct {
		Ports     []string `json:"ports"`
		Baudrates []int    `json:"baudrates"`
	} `json:"options"`
}

type jobResponse struct {
	Job struct {
		File struct {
			Name string `json:"name"`
			Path string `json:"path"`
			Size *int64 `json:"size"`
			Date *int64 `json:"date"`
		} `json:"file"`
		Filament map[string]*struct {
			Length *float64 `json:"length"`
		} `json:"filament"`
	} `json:"job"`
	Progress struct {
		Completion    *float64 `json:"completion"`
		PrintTime     *float64 `json:"printTime"`
		PrintTimeLeft *float64 `json:"printTimeLeft"`
	} `json:"progress"`
	State string `json:"state"`
}

func (r jobResponse) toJob() printer.Job {
	f := r.Job.File
	job := printer.Job{Name: f.Name, Path: f.Path}
	if f.Size != nil {
		job.Size = *f.Size
	}
	if f.Date != nil {
		job.Date = *f.Date
	}
	if tool, ok := r.Job.Filament[printer.HeaterTool0]; ok && tool != nil && tool.Length != nil {
		length := *tool.Length
		job.FilamentLength = &length
	}
	return job
}

type printerResponse struct {
	Temperature map[string]struct {
		Actual *float64 `json:"actual"`
		Target *float64 `json:"target"`
	} `json:"temperature"`
}

// stateTexts maps OctoPrint's state strings to printer state ids.
var stateTexts = map[string]string{
	"operational":                 printer.StateOperational,
	"printing":                    printer.StatePrinting,
	"printing from sd":            printer.StatePrinting,
	"sending file to sd":          printer.StatePrinting,
	"starting":                    printer.StatePrinting,
	"finishing":                   printer.StatePrinting,
	"pausing":                     printer.StatePausing,
	"paused":                      printer.StatePaused,
	"resuming":                    printer.StatePrinting,
	"cancelling":                  printer.StateCancelling,
	"detecting serial port":       printer.StateDetectSerial,
	"detecting serial connection": printer.StateDetectSerial,
	"detecting baudrate":          printer.StateDetectSerial,
	"connecting":                  printer.StateConnecting,
	"opening serial port":         printer.StateConnecting,
	"closed":                      printer.StateClosed,
	"offline":                     printer.StateOffline,
	"offline after error":         printer.StateClosedWithError,
	"error":                       printer.StateError,
	"unknown":                     printer.StateUnknown,
}

// StateID maps an OctoPrint state string to a printer state id. Errors
// carry a message suffix ("Error: ..."); unrecognised text maps to UNKNOWN
// and an empty string to NONE.
func StateID(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return printer.StateNone
	}
	if id, ok := stateTexts[s]; ok {
		return id
	}
	switch {
	case strings.HasPrefix(s, "offline after error"), strings.HasPrefix(s, "offline (error"):
		return printer.StateClosedWithError
	case strings.HasPrefix(s, "error"):
		return printer.StateError
	case strings.HasPrefix(s, "printing"):
		return printer.StatePrinting
	}
	return printer.StateUnknown
}
