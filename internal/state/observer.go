package state

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/canvas-link/internal/printer"
)

// Palette connection messages.
const (
	PaletteConnected    = "palette 2 connected"
	PaletteDisconnected = "palette 2 disconnected"
)

// deviceStoragePrefix marks paths in the hub's own uploads folder.
const deviceStoragePrefix = "device/"

var m106Speed = regexp.MustCompile(`^M106.* S(\d+\.?\d*)`)

// HandlePrinterEvent applies a printer event to the tracked state.
func (b *Broadcaster) HandlePrinterEvent(ev printer.Event) {
	t := b.tracker
	switch ev.Type {
	case printer.EventPrinterStateChanged:
		b.ResetCounter()
		t.SetPrinterConnected(printer.IsConnectedState(ev.StateID))
	case printer.EventPrintStarted:
		info := JobInfo{Start: Timestamp(b.now())}
		if ev.Job != nil {
			info.Path = deviceStoragePrefix + ev.Job.Path
			info.Name = ev.Job.Name
			info.Size = ev.Job.Size
			if ev.Job.Date > 0 {
				info.Modified = Timestamp(time.Unix(ev.Job.Date, 0))
			}
		}
		t.StartJob(info)
	case printer.EventPrintCancelling:
		t.SetJobStatus(JobStatusCancelling)
	case printer.EventPrintDone, printer.EventPrintCancelled:
		t.ClearJob()
	case printer.EventPrintPaused:
		t.SetJobStatus(JobStatusPaused)
	case printer.EventPrintResumed:
		t.SetJobStatus(JobStatusStart)
	case printer.EventGcodeSent:
		b.ObserveGcode(ev.Gcode)
	}
}

// ObserveGcode tracks fan and motor commands sent to the printer. It
// reports whether the line changed tracked state.
func (b *Broadcaster) ObserveGcode(line string) bool {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToUpper(fields[0]) {
	case "M107":
		b.tracker.SetFan(0)
	case "M106":
		m := m106Speed.FindStringSubmatch(strings.ToUpper(line))
		if m == nil {
			return false
		}
		pwm, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return false
		}
		b.tracker.SetFan(int(math.Round(pwm * 100 / 255)))
	case "M17":
		b.tracker.SetMotor(true)
	case "M18":
		b.tracker.SetMotor(false)
	default:
		return false
	}
	b.ResetCounter()
	return true
}

// HandlePaletteStatus applies a palette connection message. The port is
// reduced to its last path segment.
func (b *Broadcaster) HandlePaletteStatus(connection, port string) bool {
	switch connection {
	case PaletteConnected:
		b.tracker.SetPalette(true, lastSegment(port))
	case PaletteDisconnected:
		b.tracker.SetPalette(false, "")
	default:
		return false
	}
	return true
}

func lastSegment(port string) string {
	if i := strings.LastIndexAny(port, `\/`); i >= 0 {
		return port[i+1:]
	}
	return port
}
