package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/canvas-link/internal/hubdata"
	"github.com/nerrad567/canvas-link/internal/infrastructure/mqtt"
	"github.com/nerrad567/canvas-link/internal/journal"
	"github.com/nerrad567/canvas-link/internal/printer"
	"github.com/nerrad567/canvas-link/internal/state"
	"github.com/nerrad567/canvas-link/internal/storage"
)

const (
	// DefaultSettleDelay is the pause after a printer call before answering.
	DefaultSettleDelay = time.Second

	// DefaultPollAttempts bounds the connect and cancel wait loops.
	DefaultPollAttempts = 29

	// responseQoS is the QoS of request responses.
	responseQoS = 0

	defaultOriginName = "simcoe"
)

// Control message types on the device topic.
const (
	ControlAccountLinked   = "ACCOUNT_LINKED"
	ControlAccountUnlinked = "ACCOUNT_UNLINKED"
)

// UI notification commands sent by the router.
const (
	CommandAccountLinked   = "AccountLinked"
	CommandAccountUnlinked = "AccountUnlinked"
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

// DocumentStore is the persisted hub document.
type DocumentStore interface {
	Snapshot() hubdata.Document
	Update(fn func(doc *hubdata.Document) error) error
}

// Publisher sends responses through the broker session.
type Publisher interface {
	Publish(topic string, payload any, qos byte, allowQueueing bool) (bool, error)
}

// Broadcaster is the state broadcaster.
type Broadcaster interface {
	ResetCounter()
	Snapshot(ctx context.Context) state.Snapshot
}

// Tracker is the observed printer state.
type Tracker interface {
	PrinterConnected() bool
	PaletteConnected() bool
	StartJob(job state.JobInfo)
	SetJobStatus(status string)
	JobStatus() string
}

// Storage resolves and manipulates print files.
type Storage interface {
	Drives() []string
	ListFolder(path string) ([]storage.Entry, error)
	Rename(from, to string) (storage.Entry, error)
	PreparePrint(path string) (storage.PrintFile, error)
	DownloadAndExtract(ctx context.Context, url, name string) ([]string, error)
}

// PaletteLink forwards commands to the palette.
type PaletteLink interface {
	SendMessage(message string)
}

// Notifier delivers commands to the local UI.
type Notifier interface {
	Notify(command string, data any)
}

// Accounts refreshes the UI's linked-user list.
type Accounts interface {
	NotifyLinkedUsers()
}

// Journal records handled requests.
type Journal interface {
	Record(ctx context.Context, e *journal.Entry) error
}

// Options holds the dependencies of a Router.
type Options struct {
	Documents   DocumentStore   // required
	Publisher   Publisher       // required
	Printer     printer.Printer // required
	Broadcaster Broadcaster     // required
	Tracker     Tracker         // required

	Storage  Storage
	Palette  PaletteLink
	Notifier Notifier
	Accounts Accounts
	Journal  Journal
	Errors   ErrorHandler
	Logger   Logger

	// SettleDelay defaults to DefaultSettleDelay.
	SettleDelay time.Duration

	// PollAttempts defaults to DefaultPollAttempts.
	PollAttempts int

	// Now defaults to time.Now.
	Now func() time.Time
}

// HandlerFunc handles one command path.
type HandlerFunc func(ctx context.Context, req *Request) (Response, error)

// Router dispatches inbound broker messages.
//
// Requests are handled on their own goroutine so slow commands (connect
// waits up to PollAttempts settle delays) do not stall the session's
// network loop. Each request is answered at most once: malformed requests
// and failed handlers get no reply. Control messages are applied
// synchronously.
//
// Thread Safety: All methods are safe for concurrent use.
type Router struct {
	docs        DocumentStore
	publisher   Publisher
	printer     printer.Printer
	broadcaster Broadcaster
	tracker     Tracker
	storage     Storage
	palette     PaletteLink
	notifier    Notifier
	accounts    Accounts
	journal     Journal
	errors      ErrorHandler
	logger      Logger

	settle       time.Duration
	pollAttempts int
	now          func() time.Time

	handlers map[string]HandlerFunc

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against Close's wg.Wait.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Router. Call Close on shutdown.
func New(opts Options) (*Router, error) {
	switch {
	case opts.Documents == nil:
		return nil, fmt.Errorf("document store is required")
	case opts.Publisher == nil:
		return nil, fmt.Errorf("publisher is required")
	case opts.Printer == nil:
		return nil, fmt.Errorf("printer is required")
	case opts.Broadcaster == nil:
		return nil, fmt.Errorf("broadcaster is required")
	case opts.Tracker == nil:
		return nil, fmt.Errorf("tracker is required")
	}

	r := &Router{
		docs:         opts.Documents,
		publisher:    opts.Publisher,
		printer:      opts.Printer,
		broadcaster:  opts.Broadcaster,
		tracker:      opts.Tracker,
		storage:      opts.Storage,
		palette:      opts.Palette,
		notifier:     opts.Notifier,
		accounts:     opts.Accounts,
		journal:      opts.Journal,
		errors:       opts.Errors,
		logger:       opts.Logger,
		settle:       opts.SettleDelay,
		pollAttempts: opts.PollAttempts,
		now:          opts.Now,
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	if r.errors == nil {
		r.errors = LogErrorHandler{Logger: r.logger}
	}
	if r.settle <= 0 {
		r.settle = DefaultSettleDelay
	}
	if r.pollAttempts <= 0 {
		r.pollAttempts = DefaultPollAttempts
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.registerHandlers()
	return r, nil
}

// Close cancels in-flight requests and waits for them to finish. Requests
// routed afterwards are dropped.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// track runs fn on its own goroutine unless the router is closed. It
// reports whether fn was started.
func (r *Router) track(fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
	return true
}

// Wait blocks until in-flight requests and downloads finish.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Route handles one inbound message. It implements mqtt.Dispatcher.
func (r *Router) Route(topic string, payload []byte) {
	topics := r.docs.Snapshot().MQTT.Topics.Requests
	prefix := strings.TrimSuffix(topics.DeviceRequestTopicPrefix, "/#")

	switch {
	case topic == topics.AllCanvasHubs, topic == topics.AllDevices:
		return
	case prefix != "" && (topic == prefix || strings.HasPrefix(topic, prefix+"/")):
		path := strings.TrimPrefix(topic, prefix)
		req, err := parseRequest(path, payload)
		if err != nil {
			r.errors.HandleError(err)
			return
		}
		if !r.track(func() { r.Serve(r.ctx, req) }) {
			r.logger.Debug("router closed, dropping request", "path", req.Path)
		}
	case topics.DeviceTopicPrefix != "" && topic == topics.DeviceTopicPrefix:
		if err := r.handleControl(payload); err != nil {
			r.errors.HandleError(err)
		}
	}
}

// Serve handles a decoded request and publishes its response. A handler
// error or panic goes to the error handler and the requester gets no
// reply, as there is no negative acknowledgement in the protocol.
func (r *Router) Serve(ctx context.Context, req *Request) {
	start := r.now()
	r.logger.Info("request received", "path", req.Path, "origin", req.Header.OriginID, "method", req.Method)

	resp, err := r.dispatch(ctx, req)
	if err != nil {
		r.errors.HandleError(fmt.Errorf("handling %s: %w", req.Path, err))
		r.record(ctx, req, Response{}, start, err)
		return
	}

	if perr := r.respond(req, resp); perr != nil {
		r.errors.HandleError(perr)
	}
	r.broadcaster.ResetCounter()
	r.record(ctx, req, resp, start, nil)
}

// dispatch runs the handler for req. A panic is returned as an error.
func (r *Router) dispatch(ctx context.Context, req *Request) (resp Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	h, ok := r.handlers[req.Path]
	if !ok {
		r.logger.Debug("no handler for path", "path", req.Path)
		return NoContent(), nil
	}
	if resp, err = h(ctx, req); err != nil {
		return Response{}, err
	}
	if resp.Status == 0 {
		resp = NoContent()
	}
	return resp, nil
}

// respond publishes resp to the requester's response topic.
func (r *Router) respond(req *Request, resp Response) error {
	doc := r.docs.Snapshot()
	deviceID := doc.DeviceID()
	if deviceID == "" {
		return ErrNotRegistered
	}
	origin := doc.MQTT.Publish.OriginName
	if origin == "" {
		origin = defaultOriginName
	}

	topic := mqtt.ResponseTopic(doc.MQTT.Publish.TopicPrefix, deviceID, req.Header.OriginID, req.Path)
	msg := mqtt.Envelope{
		Header:  mqtt.Header{OriginID: origin, MsgID: req.Header.MsgID},
		Payload: mqtt.BodyPayload{Status: resp.Status, Body: resp.Body},
	}
	if _, err := r.publisher.Publish(topic, msg, responseQoS, false); err != nil {
		return fmt.Errorf("publishing response to %s: %w", topic, err)
	}
	return nil
}

func (r *Router) record(ctx context.Context, req *Request, resp Response, start time.Time, handlerErr error) {
	if r.journal == nil {
		return
	}
	e := &journal.Entry{
		Path:       req.Path,
		Method:     req.Method,
		OriginID:   req.Header.OriginID,
		MsgID:      req.Header.MsgID,
		Status:     resp.Status,
		DurationMS: r.now().Sub(start).Milliseconds(),
	}
	if handlerErr != nil {
		e.Error = handlerErr.Error()
	}
	// The request context may be cancelled at shutdown; the record still
	// describes a response that was sent.
	if err := r.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		r.logger.Warn("journal write failed", "error", err)
	}
}

// control is a message on the device topic.
type control struct {
	Type    string `json:"type"`
	Payload struct {
		User *struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	} `json:"payload"`
}

func (r *Router) handleControl(payload []byte) error {
	var msg control
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: control message: %w", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case ControlAccountLinked:
		if msg.Payload.User == nil {
			return fmt.Errorf("%w: %s without user", ErrMalformedMessage, msg.Type)
		}
		user := *msg.Payload.User
		if err := r.docs.Update(func(d *hubdata.Document) error {
			d.User.ID = user.ID
			d.User.Username = user.Username
			return nil
		}); err != nil {
			return err
		}
		r.logger.Info("account linked", "username", user.Username)
		r.notifyLinkedUsers()
		r.notify(CommandAccountLinked, map[string]string{"username": user.Username})
	case ControlAccountUnlinked:
		username := r.docs.Snapshot().User.Username
		r.notify(CommandAccountUnlinked, map[string]string{"username": username})
		if err := r.docs.Update(func(d *hubdata.Document) error {
			d.User = hubdata.UserSection{}
			return nil
		}); err != nil {
			return err
		}
		r.logger.Info("account unlinked", "username", username)
		r.notifyLinkedUsers()
	default:
		r.logger.Debug("ignoring control message", "type", msg.Type)
	}
	return nil
}

func (r *Router) notify(command string, data any) {
	if r.notifier != nil {
		r.notifier.Notify(command, data)
	}
}

func (r *Router) notifyLinkedUsers() {
	if r.accounts != nil {
		r.accounts.NotifyLinkedUsers()
	}
}

// wait sleeps for the settle delay. It reports false when ctx ends first.
func (r *Router) wait(ctx context.Context) bool {
	t := time.NewTimer(r.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// pollUntil waits up to pollAttempts settle delays for done to hold.
func (r *Router) pollUntil(ctx context.Context, done func() bool) bool {
	for i := 0; i < r.pollAttempts; i++ {
		if done() {
			return true
		}
		if !r.wait(ctx) {
			return done()
		}
	}
	return done()
}
