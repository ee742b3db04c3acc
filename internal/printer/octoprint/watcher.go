package octoprint

import (
	"context"
	"time"

	"github.com/nerrad567/canvas-link/internal/printer"
)

// DefaultPollInterval is the watcher period when none is configured.
const DefaultPollInterval = 2 * time.Second

// JobSource is the part of the printer API the watcher polls.
type JobSource interface {
	CurrentData(ctx context.Context) (printer.CurrentData, error)
	CurrentJob(ctx context.Context) (printer.Job, error)
}

// Watcher polls the printer and emits events for state transitions.
//
// The first successful poll reports the current state. A failed poll is
// treated as OFFLINE so a lost OctoPrint shows the printer disconnected.
type Watcher struct {
	source   JobSource
	handler  printer.EventHandler
	interval time.Duration
	logger   Logger

	last   string
	polled bool
}

// NewWatcher creates a watcher. A non-positive interval uses
// DefaultPollInterval.
func NewWatcher(source JobSource, handler printer.EventHandler, interval time.Duration, logger Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Watcher{source: source, handler: handler, interval: interval, logger: logger}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll reads the printer state once and emits the events implied by the
// change since the previous poll. It is not safe for concurrent use.
func (w *Watcher) Poll(ctx context.Context) {
	data, err := w.source.CurrentData(ctx)
	state := data.State
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Debug("printer poll failed", "error", err)
		state = printer.StateOffline
	}

	prev := w.last
	if w.polled && state == prev {
		return
	}
	w.last = state
	w.polled = true

	w.emit(printer.Event{Type: printer.EventPrinterStateChanged, StateID: state})
	for _, ev := range w.transition(ctx, prev, state) {
		w.emit(ev)
	}
}

func (w *Watcher) transition(ctx context.Context, prev, next string) []printer.Event {
	active := func(s string) bool {
		return s == printer.StatePrinting || s == printer.StatePausing ||
			s == printer.StatePaused || s == printer.StateCancelling
	}

	switch next {
	case printer.StatePrinting:
		switch {
		case prev == printer.StatePaused || prev == printer.StatePausing:
			return []printer.Event{{Type: printer.EventPrintResumed}}
		case !active(prev):
			return []printer.Event{w.started(ctx)}
		}
	case printer.StatePausing:
		if !active(prev) {
			return []printer.Event{w.started(ctx)}
		}
	case printer.StatePaused:
		if !active(prev) {
			return []printer.Event{w.started(ctx), {Type: printer.EventPrintPaused}}
		}
		return []printer.Event{{Type: printer.EventPrintPaused}}
	case printer.StateCancelling:
		return []printer.Event{{Type: printer.EventPrintCancelling}}
	default:
		switch prev {
		case printer.StateCancelling:
			return []printer.Event{{Type: printer.EventPrintCancelled}}
		case printer.StatePrinting, printer.StatePausing, printer.StatePaused:
			if next == printer.StateOperational {
				return []printer.Event{{Type: printer.EventPrintDone}}
			}
			return []printer.Event{{Type: printer.EventPrintCancelled}}
		}
	}
	return nil
}

func (w *Watcher) started(ctx context.Context) printer.Event {
	ev := printer.Event{Type: printer.EventPrintStarted}
	job, err := w.source.CurrentJob(ctx)
	if err != nil {
		w.logger.Warn("reading started job", "error", err)
		return ev
	}
	ev.Job = &job
	return ev
}

func (w *Watcher) emit(ev printer.Event) {
	w.logger.Debug("printer event", "type", ev.Type, "state", ev.StateID)
	if w.handler != nil {
		w.handler.HandlePrinterEvent(ev)
	}
}
