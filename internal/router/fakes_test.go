package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/canvas-link/internal/hubdata"
	"github.com/nerrad567/canvas-link/internal/infrastructure/mqtt"
	"github.com/nerrad567/canvas-link/internal/journal"
	"github.com/nerrad567/canvas-link/internal/printer"
	"github.com/nerrad567/canvas-link/internal/state"
	"github.com/nerrad567/canvas-link/internal/storage"
)

// fakePrinter records every call as a short string.
type fakePrinter struct {
	mu     sync.Mutex
	calls  []string
	ports  []string
	err    error
	onCall func(call string)
}

func (p *fakePrinter) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	p.mu.Lock()
	p.calls = append(p.calls, call)
	hook := p.onCall
	p.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return p.err
}

func (p *fakePrinter) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePrinter) Connect(_ context.Context, port string, baud int) error {
	return p.record("connect %q %d", port, baud)
}
func (p *fakePrinter) Disconnect(context.Context) error { return p.record("disconnect") }
func (p *fakePrinter) Home(_ context.Context, axes []string) error {
	return p.record("home %s", strings.Join(axes, ","))
}
func (p *fakePrinter) Jog(_ context.Context, x, y, z float64, speed int) error {
	return p.record("jog %g %g %g %d", x, y, z, speed)
}
func (p *fakePrinter) Extrude(_ context.Context, amount float64) error {
	return p.record("extrude %g", amount)
}
func (p *fakePrinter) FeedRate(_ context.Context, factor int) error {
	return p.record("feedrate %d", factor)
}
func (p *fakePrinter) SetTemperature(_ context.Context, heater string, v float64) error {
	return p.record("temp %s %g", heater, v)
}
func (p *fakePrinter) SelectFile(_ context.Context, path string, print bool) error {
	return p.record("select %s %t", path, print)
}
func (p *fakePrinter) Cancel(context.Context) error { return p.record("cancel") }
func (p *fakePrinter) Pause(context.Context) error  { return p.record("pause") }
func (p *fakePrinter) Resume(context.Context) error { return p.record("resume") }
func (p *fakePrinter) Commands(_ context.Context, cmds ...string) error {
	return p.record("gcode %s", strings.Join(cmds, ";"))
}
func (p *fakePrinter) ConnectionOptions(context.Context) (printer.ConnectionOptions, error) {
	return printer.ConnectionOptions{Ports: p.ports}, p.err
}
func (p *fakePrinter) Connection(context.Context) (printer.Connection, error) {
	return printer.Connection{}, p.err
}
func (p *fakePrinter) CurrentData(context.Context) (printer.CurrentData, error) {
	return printer.CurrentData{}, p.err
}
func (p *fakePrinter) CurrentJob(context.Context) (printer.Job, error) {
	return printer.Job{}, p.err
}
func (p *fakePrinter) Temperatures(context.Context) (printer.Temperatures, error) {
	return printer.Temperatures{}, p.err
}

type published struct {
	Topic     string
	Payload   map[string]any
	QoS       byte
	Queueable bool
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []published
}

func (p *fakePublisher) Publish(topic string, payload any, qos byte, allowQueueing bool) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return false, err
	}
	p.mu.Lock()
	p.calls = append(p.calls, published{Topic: topic, Payload: m, QoS: qos, Queueable: allowQueueing})
	p.mu.Unlock()
	return true, nil
}

func (p *fakePublisher) Calls() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.calls...)
}

type fakeDocs struct {
	mu  sync.Mutex
	doc hubdata.Document
}

func (d *fakeDocs) Snapshot() hubdata.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Clone()
}

func (d *fakeDocs) Update(fn func(doc *hubdata.Document) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.doc.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	d.doc = next
	return nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	resets int
	snap   state.Snapshot
}

func (b *fakeBroadcaster) ResetCounter() {
	b.mu.Lock()
	b.resets++
	b.mu.Unlock()
}

func (b *fakeBroadcaster) Resets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}

func (b *fakeBroadcaster) Snapshot(context.Context) state.Snapshot { return b.snap }

type fakeStorage struct {
	mu        sync.Mutex
	drives    []string
	entries   []storage.Entry
	renamed   [2]string
	prepared  storage.PrintFile
	downloads []string
	err       error
}

func (s *fakeStorage) Drives() []string { return s.drives }

func (s *fakeStorage) ListFolder(string) ([]storage.Entry, error) { return s.entries, s.err }

func (s *fakeStorage) Rename(from, to string) (storage.Entry, error) {
	s.renamed = [2]string{from, to}
	return storage.Entry{Name: "b.gcode", DateModified: "2024-01-02T03:04:05.000Z"}, s.err
}

func (s *fakeStorage) PreparePrint(string) (storage.PrintFile, error) { return s.prepared, s.err }

func (s *fakeStorage) DownloadAndExtract(_ context.Context, url, name string) ([]string, error) {
	s.mu.Lock()
	s.downloads = append(s.downloads, url+" "+name)
	s.mu.Unlock()
	return []string{name + ".gcode"}, s.err
}

type notification struct {
	Command string
	Data    any
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *fakeNotifier) Notify(command string, data any) {
	n.mu.Lock()
	n.calls = append(n.calls, notification{command, data})
	n.mu.Unlock()
}

type fakeAccounts struct{ calls int }

func (a *fakeAccounts) NotifyLinkedUsers() { a.calls++ }

type fakePalette struct {
	mu       sync.Mutex
	messages []string
	onSend   func(string)
}

func (p *fakePalette) SendMessage(m string) {
	p.mu.Lock()
	p.messages = append(p.messages, m)
	p.mu.Unlock()
	if p.onSend != nil {
		p.onSend(m)
	}
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *fakeJournal) Record(_ context.Context, e *journal.Entry) error {
	j.mu.Lock()
	j.entries = append(j.entries, *e)
	j.mu.Unlock()
	return nil
}

type collectErrors struct {
	mu   sync.Mutex
	errs []error
}

func (c *collectErrors) HandleError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *collectErrors) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

const requestPrefix = "canvas/devices/dev-1/simcoe/request"

func registeredDoc() hubdata.Document {
	return hubdata.Document{
		Hub: hubdata.HubSection{
			Version: hubdata.CurrentVersion,
			Device:  &hubdata.Device{ID: "dev-1"},
		},
		User: hubdata.UserSection{ActiveSetup: hubdata.ActiveSetup{ID: "setup-7"}},
		MQTT: hubdata.MQTTSection{
			Publish: hubdata.PublishSection{TopicPrefix: "canvas", OriginName: "simcoe"},
			Topics: hubdata.TopicsSection{
				Requests: hubdata.RequestTopics{
					AllDevices:               "canvas/devices",
					AllCanvasHubs:            "canvas/devices/canvas-hub",
					DeviceTopicPrefix:        "canvas/devices/dev-1",
					DeviceRequestTopicPrefix: requestPrefix + "/#",
				},
			},
		},
	}
}

type harness struct {
	router      *Router
	printer     *fakePrinter
	publisher   *fakePublisher
	docs        *fakeDocs
	broadcaster *fakeBroadcaster
	tracker     *state.Tracker
	storage     *fakeStorage
	notifier    *fakeNotifier
	accounts    *fakeAccounts
	palette     *fakePalette
	journal     *fakeJournal
	errors      *collectErrors
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		printer:     &fakePrinter{},
		publisher:   &fakePublisher{},
		docs:        &fakeDocs{doc: registeredDoc()},
		broadcaster: &fakeBroadcaster{},
		tracker:     state.NewTracker(),
		storage:     &fakeStorage{},
		notifier:    &fakeNotifier{},
		accounts:    &fakeAccounts{},
		palette:     &fakePalette{},
		journal:     &fakeJournal{},
		errors:      &collectErrors{},
	}
	r, err := New(Options{
		Documents:    h.docs,
		Publisher:    h.publisher,
		Printer:      h.printer,
		Broadcaster:  h.broadcaster,
		Tracker:      h.tracker,
		Storage:      h.storage,
		Palette:      h.palette,
		Notifier:     h.notifier,
		Accounts:     h.accounts,
		Journal:      h.journal,
		Errors:       h.errors,
		SettleDelay:  time.Millisecond,
		PollAttempts: 3,
		Now:          func() time.Time { return time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(r.Close)
	h.router = r
	return h
}

// serve runs one request synchronously and returns the published response.
func (h *harness) serve(t *testing.T, path, method, query string) published {
	t.Helper()
	req := &Request{
		Path:   path,
		Header: hdr("cloud-app", "m-1"),
		Method: method,
		Query:  json.RawMessage(query),
	}
	before := len(h.publisher.Calls())
	h.router.Serve(context.Background(), req)
	calls := h.publisher.Calls()
	if len(calls) != before+1 {
		t.Fatalf("published %d responses, want 1", len(calls)-before)
	}
	return calls[len(calls)-1]
}

// serveUnanswered serves a request that must not be answered and returns
// the errors reported for it.
func (h *harness) serveUnanswered(t *testing.T, path, method, query string) []error {
	t.Helper()
	req := &Request{
		Path:   path,
		Header: hdr("cloud-app", "m-1"),
		Method: method,
		Query:  json.RawMessage(query),
	}
	before := len(h.publisher.Calls())
	h.router.Serve(context.Background(), req)
	if n := len(h.publisher.Calls()) - before; n != 0 {
		t.Fatalf("published %d responses, want none", n)
	}
	return h.errors.Errors()
}

func status(p published) float64 {
	payload, _ := p.Payload["payload"].(map[string]any)
	s, _ := payload["status"].(float64)
	return s
}

func body(p published) any {
	payload, _ := p.Payload["payload"].(map[string]any)
	return payload["body"]
}

func hdr(origin, msgID string) mqtt.Header {
	return mqtt.Header{OriginID: origin, MsgID: msgID}
}
