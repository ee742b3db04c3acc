package state

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/canvas-link/internal/printer"
)

// Job status names.
const (
	JobStatusStart      = "start"
	JobStatusPausing    = "pausing"
	JobStatusPaused     = "paused"
	JobStatusCancelling = "cancelling"
)

// timestampLayout is ISO-8601 UTC with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t the way snapshot timestamps are written.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Source is the printer API the snapshot reads from.
type Source interface {
	Connection(ctx context.Context) (printer.Connection, error)
	CurrentData(ctx context.Context) (printer.CurrentData, error)
	CurrentJob(ctx context.Context) (printer.Job, error)
	Temperatures(ctx context.Context) (printer.Temperatures, error)
}

// JobInfo is the job record set when a print starts.
type JobInfo struct {
	Start    string
	Path     string
	Name     string
	Size     int64
	Modified string
}

// Tracker holds the state that is observed rather than queried: the
// printer connection flag, fan and motor, the palette link, the current
// job record and the last good readings from the printer API.
//
// Thread Safety: All methods are safe for concurrent use.
type Tracker struct {
	mu sync.RWMutex

	printerConnected bool
	fan              int
	motor            bool

	paletteConnected bool
	palettePort      string

	job       JobInfo
	jobStatus string

	temps          printer.Temperatures
	filamentLength float64
	progress       jobProgress
	serialPort     string
	serialBaud     int
	activeSetup    string
}

// NewTracker returns a Tracker with zeroed heaters.
func NewTracker() *Tracker {
	return &Tracker{
		temps: printer.Temperatures{
			printer.HeaterTool0:   {},
			printer.HeaterBed:     {},
			printer.HeaterChamber: {},
		},
	}
}

// SetPrinterConnected records the printer connection flag.
func (t *Tracker) SetPrinterConnected(connected bool) {
	t.mu.Lock()
	t.printerConnected = connected
	t.mu.Unlock()
}

// PrinterConnected reports the printer connection flag.
func (t *Tracker) PrinterConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.printerConnected
}

// SetFan records the fan speed in percent.
func (t *Tracker) SetFan(percent int) {
	t.mu.Lock()
	t.fan = percent
	t.mu.Unlock()
}

// Fan returns the fan speed in percent.
func (t *Tracker) Fan() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fan
}

// SetMotor records whether the steppers are enabled.
func (t *Tracker) SetMotor(on bool) {
	t.mu.Lock()
	t.motor = on
	t.mu.Unlock()
}

// Motor reports whether the steppers are enabled.
func (t *Tracker) Motor() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.motor
}

// SetPalette records the palette link state.
func (t *Tracker) SetPalette(connected bool, port string) {
	t.mu.Lock()
	t.paletteConnected = connected
	t.palettePort = port
	t.mu.Unlock()
}

// PaletteConnected reports the palette link flag.
func (t *Tracker) PaletteConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paletteConnected
}

// StartJob records a started print with status "start".
func (t *Tracker) StartJob(job JobInfo) {
	t.mu.Lock()
	t.job = job
	t.jobStatus = JobStatusStart
	t.mu.Unlock()
}

// ClearJob forgets the current job.
func (t *Tracker) ClearJob() {
	t.mu.Lock()
	t.job = JobInfo{}
	t.jobStatus = ""
	t.mu.Unlock()
}

// SetJobStatus sets the job status name.
func (t *Tracker) SetJobStatus(status string) {
	t.mu.Lock()
	t.jobStatus = status
	t.mu.Unlock()
}

// JobStatus returns the job status name.
func (t *Tracker) JobStatus() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.jobStatus
}

// Job returns the current job record.
func (t *Tracker) Job() JobInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.job
}

// SetActiveSetup records the active setup id.
func (t *Tracker) SetActiveSetup(id string) {
	t.mu.Lock()
	t.activeSetup = id
	t.mu.Unlock()
}

// jobProgress holds the progress fields derived from the printer's
// current data.
type jobProgress struct {
	progress, remaining, total float64
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Build assembles a snapshot from the tracked values and the printer API.
//
// Each API lookup is independent. A failed lookup is logged and the
// snapshot uses the last good value for the fields it feeds. A successful
// data lookup without both print time and time left reports zero progress
// and times.
func (t *Tracker) Build(ctx context.Context, src Source, logger Logger) Snapshot {
	if logger == nil {
		logger = noopLogger{}
	}

	var (
		prog     jobProgress
		progOK   bool
		conn     printer.Connection
		connOK   bool
		temps    printer.Temperatures
		filament *float64
	)

	if src != nil {
		if data, err := src.CurrentData(ctx); err != nil {
			logger.Error("reading printer data", "error", err)
		} else {
			progOK = true
			if p := data.Progress; p.PrintTime != nil && p.PrintTimeLeft != nil {
				if p.Completion != nil {
					prog.progress = *p.Completion
				}
				prog.remaining = *p.PrintTimeLeft
				prog.total = *p.PrintTime + *p.PrintTimeLeft
			}
		}

		if job, err := src.CurrentJob(ctx); err != nil {
			logger.Error("reading printer job", "error", err)
		} else {
			filament = job.FilamentLength
		}

		if got, err := src.Temperatures(ctx); err != nil {
			logger.Error("reading printer temperatures", "error", err)
		} else {
			temps = got
		}

		if c, err := src.Connection(ctx); err != nil {
			logger.Error("reading printer connection", "error", err)
		} else {
			conn, connOK = c, true
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if progOK {
		t.progress = prog
	}
	if filament != nil {
		t.filamentLength = *filament
	}
	if len(temps) > 0 {
		t.temps = temps
	}
	if connOK {
		t.serialPort = conn.Port
		t.serialBaud = conn.Baudrate
	}

	tool := t.temps[printer.HeaterTool0]
	bed := t.temps[printer.HeaterBed]
	chamber := t.temps[printer.HeaterChamber]

	var s Snapshot
	s.State.Simcoe.Data.ActiveSetup.ID = t.activeSetup
	s.State.Palette.Data = PaletteData{
		Connected: t.paletteConnected,
		Serial:    PortSerial{Port: t.palettePort},
	}
	s.State.Printer.Data = PrinterData{
		Connected: t.printerConnected,
		Serial:    PrinterSerial{Port: t.serialPort, Baud: t.serialBaud},
		Temperature: Temperatures{
			Nozzle:  []Heater{{Actual: tool.Actual, Target: tool.Target}},
			Bed:     Heater{Actual: bed.Actual, Target: bed.Target},
			Chamber: Heater{Actual: chamber.Actual, Target: chamber.Target},
		},
		Fan:   t.fan,
		Motor: t.motor,
	}
	s.State.Printer.Job = JobSection{
		Name:     t.job.Name,
		Progress: t.progress.progress,
		Time:     JobTime{Start: t.job.Start},
		Status:   JobStatus{Name: t.jobStatus},
		Data: JobData{
			TotalTime:     t.progress.total,
			TimeRemaining: t.progress.remaining,
			Filament:      Filament{Length: t.filamentLength},
			File: JobFile{
				Path: t.job.Path,
				Size: t.job.Size,
				Date: t.job.Modified,
			},
		},
	}
	return s
}
