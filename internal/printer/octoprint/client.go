package octoprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
	"github.com/nerrad567/canvas-link/internal/printer"
)

const (
	defaultRequestTimeout = 10 * time.Second

	// maxResponseSize bounds how much of a response body is decoded.
	maxResponseSize = 1 << 20

	apiKeyHeader = "X-Api-Key"
)

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

// Options configures a Client.
type Options struct {
	// HTTPClient is optional. Defaults to a client with a 10 s timeout.
	HTTPClient *http.Client

	// Events receives a GcodeSent event for each command line sent.
	Events printer.EventHandler

	// Logger is optional.
	Logger Logger
}

// Client is a printer.Printer backed by OctoPrint.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	events     printer.EventHandler
	logger     Logger
}

var _ printer.Printer = (*Client)(nil)

// New creates a client for the OctoPrint server in cfg.
func New(cfg config.PrinterConfig, opts Options) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: opts.HTTPClient,
		events:     opts.Events,
		logger:     opts.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c, nil
}

// Connect opens the serial connection. Empty port and zero baudrate are
// left out so OctoPrint auto-detects them.
func (c *Client) Connect(ctx context.Context, port string, baudrate int) error {
	body := connectionCommand{Command: "connect", Port: port, Baudrate: baudrate}
	return c.post(ctx, "/api/connection", body)
}

// Disconnect closes the serial connection.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.post(ctx, "/api/connection", connectionCommand{Command: "disconnect"})
}

// Home homes the given axes.
func (c *Client) Home(ctx context.Context, axes []string) error {
	return c.post(ctx, "/api/printer/printhead", map[string]any{"command": "home", "axes": axes})
}

// Jog moves the head relative to its position.
func (c *Client) Jog(ctx context.Context, x, y, z float64, speed int) error {
	return c.post(ctx, "/api/printer/printhead", map[string]any{
		"command":  "jog",
		"x":        x,
		"y":        y,
		"z":        z,
		"absolute": false,
		"speed":    speed,
	})
}

// Extrude extrudes (or retracts, when negative) amount mm on the active tool.
func (c *Client) Extrude(ctx context.Context, amount float64) error {
	return c.post(ctx, "/api/printer/tool", map[string]any{"command": "extrude", "amount": amount})
}

// FeedRate sets the feed rate factor.
func (c *Client) FeedRate(ctx context.Context, factor int) error {
	return c.post(ctx, "/api/printer/printhead", map[string]any{"command": "feedrate", "factor": factor})
}

// SetTemperature sets a heater target.
func (c *Client) SetTemperature(ctx context.Context, heater string, value float64) error {
	switch heater {
	case printer.HeaterBed:
		return c.post(ctx, "/api/printer/bed", map[string]any{"command": "target", "target": value})
	case printer.HeaterChamber:
		return c.post(ctx, "/api/printer/chamber", map[string]any{"command": "target", "target": value})
	}
	if !strings.HasPrefix(heater, "tool") {
		return fmt.Errorf("%w: %q", ErrUnknownHeater, heater)
	}
	return c.post(ctx, "/api/printer/tool", map[string]any{
		"command": "target",
		"targets": map[string]float64{heater: value},
	})
}

// SelectFile selects a file in the local uploads folder.
func (c *Client) SelectFile(ctx context.Context, path string, print bool) error {
	return c.post(ctx, "/api/files/local/"+escapePath(path), map[string]any{"command": "select", "print": print})
}

// Cancel cancels the current job.
func (c *Client) Cancel(ctx context.Context) error {
	return c.post(ctx, "/api/job", map[string]any{"command": "cancel"})
}

// Pause pauses the current job.
func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, "/api/job", map[string]any{"command": "pause", "action": "pause"})
}

// Resume resumes a paused job.
func (c *Client) Resume(ctx context.Context) error {
	return c.post(ctx, "/api/job", map[string]any{"command": "pause", "action": "resume"})
}

// Commands sends raw gcode lines and reports each as a GcodeSent event.
func (c *Client) Commands(ctx context.Context, commands ...string) error {
	if len(commands) == 0 {
		return nil
	}
	if err := c.post(ctx, "/api/printer/command", map[string]any{"commands": commands}); err != nil {
		return err
	}
	if c.events != nil {
		for _, line := range commands {
			c.events.HandlePrinterEvent(printer.Event{Type: printer.EventGcodeSent, Gcode: line})
		}
	}
	return nil
}

// ConnectionOptions lists the serial ports and baudrates OctoPrint offers.
func (c *Client) ConnectionOptions(ctx context.Context) (printer.ConnectionOptions, error) {
	var resp connectionResponse
	if err := c.get(ctx, "/api/connection", &resp); err != nil {
		return printer.ConnectionOptions{}, err
	}
	return printer.ConnectionOptions{Ports: resp.Options.Ports, Baudrates: resp.Options.Baudrates}, nil
}

// Connection returns the current serial connection.
func (c *Client) Connection(ctx context.Context) (printer.Connection, error) {
	var resp connectionResponse
	if err := c.get(ctx, "/api/connection", &resp); err != nil {
		return printer.Connection{}, err
	}
	return printer.Connection{
		State:    StateID(resp.Current.State),
		Port:     resp.Current.Port,
		Baudrate: resp.Current.Baudrate,
		Profile:  resp.Current.PrinterProfile,
	}, nil
}

// CurrentData returns the printer state and job progress.
func (c *Client) CurrentData(ctx context.Context) (printer.CurrentData, error) {
	resp, err := c.job(ctx)
	if err != nil {
		return printer.CurrentData{}, err
	}
	return printer.CurrentData{
		State: StateID(resp.State),
		Progress: printer.Progress{
			Completion:    resp.Progress.Completion,
			PrintTime:     resp.Progress.PrintTime,
			PrintTimeLeft: resp.Progress.PrintTimeLeft,
		},
	}, nil
}

// CurrentJob returns the selected job.
func (c *Client) CurrentJob(ctx context.Context) (printer.Job, error) {
	resp, err := c.job(ctx)
	if err != nil {
		return printer.Job{}, err
	}
	return resp.toJob(), nil
}

// Temperatures returns the heater readings. OctoPrint answers 409 while
// the printer is not operational.
func (c *Client) Temperatures(ctx context.Context) (printer.Temperatures, error) {
	var resp printerResponse
	if err := c.get(ctx, "/api/printer?exclude=sd", &resp); err != nil {
		return nil, err
	}
	out := make(printer.Temperatures, len(resp.Temperature))
	for name, t := range resp.Temperature {
		if t.Actual == nil && t.Target == nil {
			continue
		}
		var reading printer.Temperature
		if t.Actual != nil {
			reading.Actual = *t.Actual
		}
		if t.Target != nil {
			reading.Target = *t.Target
		}
		out[name] = reading
	}
	return out, nil
}

func (c *Client) job(ctx context.Context) (jobResponse, error) {
	var resp jobResponse
	if err := c.get(ctx, "/api/job", &resp); err != nil {
		return jobResponse{}, err
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// escapePath escapes each segment of an uploads-relative path.
func escapePath(p string) string {
	parts := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
