package router

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/nerrad567/canvas-link/internal/hubdata"
	"github.com/nerrad567/canvas-link/internal/printer"
	"github.com/nerrad567/canvas-link/internal/state"
)

const (
	// defaultFeedRate is sent when a move omits f.
	defaultFeedRate = 51 * 100

	// jogSpeed is the head speed for moves, mm/min.
	jogSpeed = 20000

	paletteConnect    = "connect"
	paletteDisconnect = "disconnect"
)

func (r *Router) registerHandlers() {
	r.handlers = map[string]HandlerFunc{
		"/state":               r.handleState,
		"/printer/move":        r.handleMove,
		"/printer/home":        r.handleHome,
		"/printer/fan":         r.handleFan,
		"/printer/motor":       r.handleMotor,
		"/printer/temperature": r.handleTemperature,
		"/printer/start":       r.handleStart,
		"/printer/cancel":      r.handleCancel,
		"/printer/pause":       r.handlePause,
		"/printer/resume":      r.handleResume,
		"/printer/connect":     r.handleConnect,
		"/printer/disconnect":  r.handleDisconnect,
		"/palette/connect":     r.handlePaletteConnect,
		"/palette/disconnect":  r.handlePaletteDisconnect,
		"/command":             r.handleCommand,
		"/storage":             r.handleStorage,
		"/scan-com-ports":      r.handleScanPorts,
		"/update-active-setup": r.handleActiveSetup,
	}
}

// handleState answers with the current snapshot. The status stays 204.
func (r *Router) handleState(ctx context.Context, _ *Request) (Response, error) {
	return Response{Status: 204, Body: r.broadcaster.Snapshot(ctx)}, nil
}

type moveQuery struct {
	F *float64 `json:"f"`
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
	E *float64 `json:"e"`
}

func (r *Router) handleMove(ctx context.Context, req *Request) (Response, error) {
	var q moveQuery
	if err := req.Decode(&q); err != nil {
		return Response{}, err
	}

	feed := defaultFeedRate
	if q.F != nil {
		feed = int(math.Round(*q.F * 100))
	}
	if err := r.printer.FeedRate(ctx, feed); err != nil {
		return Response{}, err
	}
	if err := r.printer.Jog(ctx, deref(q.X), deref(q.Y), deref(q.Z), jogSpeed); err != nil {
		return Response{}, err
	}
	if q.E != nil {
		r.logger.Info("extruding", "amount", *q.E)
		if err := r.printer.Extrude(ctx, *q.E); err != nil {
			return Response{}, err
		}
	}
	r.wait(ctx)
	return NoContent(), nil
}

func (r *Router) handleHome(ctx context.Context, req *Request) (Response, error) {
	var q struct {
		Axes []string `json:"axes"`
	}
	if err := req.Decode(&q); err != nil {
		return Response{}, err
	}
	if len(q.Axes) == 0 {
		q.Axes = []string{"x", "y", "z"}
	}
	if err := r.printer.Home(ctx, q.Axes); err != nil {
		return Response{}, err
	}
	r.wait(ctx)
	return NoContent(), nil
}

func (r *Router) handleFan(ctx context.Context, req *Request) (Response, error) {
	var q struct {
		Speed float64 `json:"speed"`
	}
	if err := req.Decode(&q); err != nil {
		return Response{}, err
	}

	switch {
	case q.Speed == 0:
		if err := r.printer.Commands(ctx, "M107"); err != nil {
			return Response{}, err
		}
	case q.Speed > 0 && q.Speed <= 100:
		pwm := strconv.FormatFloat(255*q.Speed/100, 'f', -1, 64)
		if err := r.printer.Commands(ctx, "M106 S"+pwm); err != nil {
			return Response{}, err
		}
	default:
		r.logger.Warn("fan speed out of range", "speed", q.Speed)
	}
	r.wait(ctx)
	return NoContent(), nil
}

func (r *Router) handleMotor(ctx context.Context, req *Request) (Response, error) {
	var q struct {
		On bool `json:"on"`
	}
	if err := req.Decode(&q); err != nil {
		return Response{}, err
	}
	cmd := "M18"
	if q.On {
		cmd = "M17"
	}
	if err := r.printer.Commands(ctx, cmd); err != nil {
		return Response{}, err
	}
	r.wait(ctx)
	return NoContent(), nil
}

func (r *Router) handleTemperature(ctx context.Context, req *Request) (Response, error) {
	var q struct {
		Bed     *float64  `json:"bed"`
		Chamber *float64  `json:"chamber"`
		Nozzle  []float64 `json:"nozzle"`
	}
	if err := req.Decode(&q); err != nil {
		return Response{}, err
	}

	set := func(heater string, v float64) error {
		if err := r.printer.SetTemperature(ctx, heater, v); err != nil {
			return err
		}
		r.wait(ctx)
		return nil
	}
	if q.Bed != nil {
		if err := set(printer.HeaterBed, *q.Bed); err != nil {
			return Response{}, err
		}
	}
	if q.Chamber != nil {
		if err := set(printer.HeaterChamber, *q.Chamber); err != nil {
			return Response{}, err
		}
	}
	if len(q.Nozzle) > 0 {
		if err := set(printer.HeaterTool0, q.Nozzle[0]); err != nil {
			return Response{}, err
		}
	}
	return NoContent(), nil
}

func (r *Router) handleStart(ctx context.Context, req *Request) (Response, error) {
	var q struct {
		Path string `json:"path"`
	}
	if err := req.Decode(&q); err != nil {
		return Response{}, err
	}
	if q.Path == "" {
		return Response{}, fmt.Errorf("%w: path is required", ErrBadQuery)
	}
	if r.storage == nil {
		return Response{}, fmt.Errorf("%w: storage", ErrUnavailable)
	}

	file, err := r.storage.PreparePrint(q.Path)
	if err != nil {
		return Response{}, err
	}
	if err := r.printer.SelectFile(ctx, file.UploadsPath, true); err != nil {
		return Response{}, err
	}
	r.tracker.StartJob(state.JobInfo{
		Start:    state.Timestamp(r.now()),
		Path:     file.PrintPath,
		Name:     file.Name,
		Size:     file.Size,
		Modified: state.Timestamp(file.Modified),
	})
	r.logger.Info("starting print", "name", file.Name)
	r.wait(ctx)
	return NoContent(), nil
}

func (r *Router) handleCancel(ctx context.Context, _ *Request) (Response, error) {
	if err := r.printer.Cancel(ctx); err != nil {
		return Response{}, err
	}
	r.pollUntil(ctx, func() bool { return r.tracker.JobStatus() != state.JobStatusCancelling })
	r.wait(ctx)
	return NoContent(), nil
}

func (r *Router) handlePause(ctx context.Context, _ *Request) (Response, error) {
	r.tracker.SetJobStatus(state.JobStatusPausing)
	if err := r.printer.Pause(ctx); err != nil {
		return Response{}, err
	}
	r.wait(ctx)
	return NoContent(), nil
}

func (r *Router) handleResume(ctx context.Context, _ *Request) (Response, error) {
	if err := r.printer.Resume(ctx); err != nil {
		return Response{}, err
	}
	r.wait(ctx)
	r.tracker.SetJobStatus("")
	return NoContent(), nil
}

func (r *Router) handleConnect(ctx context.Context, req *Request) (Response, error) {
	var q struct {
		Baudrate flexInt `json:"baudrate"`
		ComPort  string  `json:"comPort"`
	}
	if err := req.Decode(&q); err != nil {
		return Response{}, err
	}
	port := q.ComPort
	if port == "auto" {
		port = ""
	}

	if err := r.printer.Connect(ctx, port, q.Baudrate.Value); err != nil {
		return Response{}, err
	}
	connected := r.pollUntil(ctx, r.tracker.PrinterConnected)
	r.broadcaster.ResetCounter()
	if !connected {
		r.logger.Warn("printer did not connect", "port", port)
		return GatewayTimeout(), nil
	}
	return NoContent(), nil
}

func (r *Router) handleDisconnect(ctx context.Context, _ *Request) (Response, error) {
	if err := r.printer.Disconnect(ctx); err != nil {
		return Response{}, err
	}
	r.wait(ctx)
	return NoContent(), nil
}

func (r *Router) handlePaletteConnect(ctx context.Context, _ *Request) (Response, error) {
	if r.palette == nil {
		return Response{}, fmt.Errorf("%w: palette link", ErrUnavailable)
	}
	r.palette.SendMessage(paletteConnect)
	connected := r.pollUntil(ctx, r.tracker.PaletteConnected)
	r.broadcaster.ResetCounter()
	if !connected {
		return GatewayTimeout(), nil
	}
	return NoContent(), nil
}

func (r *Router) handlePaletteDisconnect(ctx context.Context, _ *Request) (Response, error) {
	if r.palette == nil {
		return Response{}, fmt.Errorf("%w: palette link", ErrUnavailable)
	}
	r.palette.SendMessage(paletteDisconnect)
	r.wait(ctx)
	return NoContent(), nil
}

func (r *Router) handleCommand(ctx context.Context, req *Request) (Response, error) {
	var q struct {
		Command string `json:"command"`
	}
	if err := req.Decode(&q); err != nil {
		return Response{}, err
	}
	if q.Command == "" {
		return Response{}, fmt.Errorf("%w: command is required", ErrBadQuery)
	}
	if err := r.printer.Commands(ctx, q.Command); err != nil {
		return Response{}, err
	}
	r.wait(ctx)
	return NoContent(), nil
}

func (r *Router) handleScanPorts(ctx context.Context, _ *Request) (Response, error) {
	opts, err := r.printer.ConnectionOptions(ctx)
	if err != nil {
		return Response{}, err
	}
	ports := opts.Ports
	if ports == nil {
		ports = []string{}
	}
	return OK(map[string]any{"ports": ports}), nil
}

func (r *Router) handleActiveSetup(_ context.Context, req *Request) (Response, error) {
	var q struct {
		ID *string `json:"id"`
	}
	if err := req.Decode(&q); err != nil {
		return Response{}, err
	}
	if q.ID == nil {
		return Response{}, fmt.Errorf("%w: id is required", ErrBadQuery)
	}
	if err := r.docs.Update(func(d *hubdata.Document) error {
		d.User.ActiveSetup.ID = *q.ID
		return nil
	}); err != nil {
		return Response{}, err
	}
	r.logger.Info("active setup updated", "id", *q.ID)
	return NoContent(), nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
