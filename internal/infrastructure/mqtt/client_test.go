package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func testConfig() Config {
	return Config{
		Endpoint:     "broker.example.test",
		Port:         443,
		ClientID:     "client-1",
		CleanSession: true,
		Topics:       DeriveTopics("canvas", "dev-1", "simcoe"),
		OriginName:   "simcoe",
	}
}

func newTestSession(t *testing.T, cfg Config) (*Session, *fakeFactory) {
	t.Helper()
	ff := &fakeFactory{}
	return newSession(cfg, nil, ff.build), ff
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	s, ff := newTestSession(t, testConfig())

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !s.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if got := s.State(); got != StateConnected {
		t.Errorf("State() = %v, want connected", got)
	}
	if ff.count() != 1 {
		t.Errorf("clients built = %d, want 1", ff.count())
	}
}

func TestConnect_Idempotent(t *testing.T) {
	s, ff := newTestSession(t, testConfig())

	for i := 0; i < 3; i++ {
		if err := s.Connect(); err != nil {
			t.Fatalf("Connect() #%d error = %v", i, err)
		}
	}
	if ff.count() != 1 {
		t.Errorf("clients built = %d, want 1", ff.count())
	}
}

func TestConnect_NoEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoint = ""
	s, ff := newTestSession(t, cfg)

	if err := s.Connect(); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("Connect() error = %v, want ErrNoEndpoint", err)
	}
	if ff.count() != 0 {
		t.Errorf("clients built = %d, want 0", ff.count())
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}
}

func TestConnect_FailureLeavesDisconnected(t *testing.T) {
	ff := &fakeFactory{connectErr: errors.New("refused")}
	s := newSession(testConfig(), nil, ff.build)

	err := s.Connect()
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}

	// The caller may try again.
	ff.mu.Lock()
	ff.connectErr = nil
	ff.mu.Unlock()
	if err := s.Connect(); err != nil {
		t.Fatalf("retry Connect() error = %v", err)
	}
	if !s.IsConnected() {
		t.Error("IsConnected() = false after retry")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig().withDefaults()

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.example.test:443" {
		t.Errorf("Servers = %v, want tcp://broker.example.test:443", opts.Servers)
	}
	if opts.WillTopic != cfg.Topics.HealthTopic {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, cfg.Topics.HealthTopic)
	}
	if !strings.Contains(string(opts.WillPayload), `"alive":false`) {
		t.Errorf("WillPayload = %s, want alive:false", opts.WillPayload)
	}
	if opts.WillQos != 0 {
		t.Errorf("WillQos = %d, want 0", opts.WillQos)
	}

	cfg.TLS = &tls.Config{NextProtos: []string{"x-amzn-mqtt-ca"}}
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q with TLS, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig != cfg.TLS {
		t.Error("TLSConfig not applied")
	}
}

func TestReconfigure(t *testing.T) {
	s, _ := newTestSession(t, Config{})

	cfg := testConfig()
	if err := s.Reconfigure(cfg); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	if got := s.Config().Endpoint; got != cfg.Endpoint {
		t.Errorf("Config().Endpoint = %q, want %q", got, cfg.Endpoint)
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Reconfigure(cfg); !errors.Is(err, ErrSessionActive) {
		t.Errorf("Reconfigure() while connected error = %v, want ErrSessionActive", err)
	}
}

// =============================================================================
// Connect sequence
// =============================================================================

func TestConnect_AliveBeforeQueueDrain(t *testing.T) {
	cfg := testConfig()
	s, ff := newTestSession(t, cfg)

	for i := 0; i < 3; i++ {
		ok, err := s.Publish(fmt.Sprintf("t/%d", i), map[string]int{"n": i}, 1, true)
		if err != nil || !ok {
			t.Fatalf("Publish() #%d = %v, %v; want queued", i, ok, err)
		}
	}
	if s.QueueLen() != 3 {
		t.Fatalf("QueueLen() = %d, want 3", s.QueueLen())
	}

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got := ff.last().publishedSnapshot()
	if len(got) != 4 {
		t.Fatalf("published %d messages, want 4: %+v", len(got), got)
	}
	if got[0].topic != cfg.Topics.HealthTopic || !strings.Contains(got[0].payload, `"alive":true`) {
		t.Errorf("first publish = %+v, want alive:true on health topic", got[0])
	}
	for i := 0; i < 3; i++ {
		want := fmt.Sprintf("t/%d", i)
		if got[i+1].topic != want {
			t.Errorf("publish %d topic = %q, want %q", i+1, got[i+1].topic, want)
		}
		if got[i+1].qos != 1 {
			t.Errorf("publish %d qos = %d, want 1", i+1, got[i+1].qos)
		}
	}
	if s.QueueLen() != 0 {
		t.Errorf("QueueLen() after drain = %d, want 0", s.QueueLen())
	}
}

func TestConnect_BatchedSubscribe(t *testing.T) {
	cfg := testConfig()
	s, ff := newTestSession(t, cfg)

	if _, err := s.Subscribe("canvas/devices/+/simcoe/broadcast/state", 1, func(Message) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	c := ff.last()
	c.mu.Lock()
	batches := len(c.subscribed)
	c.mu.Unlock()
	if batches != 1 {
		t.Fatalf("subscribe calls = %d, want 1 batch", batches)
	}

	filters := c.lastSubscribe()
	for _, topic := range cfg.Topics.RequestFilters() {
		if q, ok := filters[topic]; !ok || q != 0 {
			t.Errorf("filter %q = %d,%v; want qos 0", topic, q, ok)
		}
	}
	if q := filters["canvas/devices/+/simcoe/broadcast/state"]; q != 1 {
		t.Errorf("handler pattern qos = %d, want 1", q)
	}
}

func TestStatusCallback(t *testing.T) {
	s, ff := newTestSession(t, testConfig())

	var mu sync.Mutex
	var events []bool
	s.SetOnStatusChange(func(connected bool) {
		mu.Lock()
		events = append(events, connected)
		mu.Unlock()
	})

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c := ff.last()

	c.loseConnection(errors.New("network down"))
	if s.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	// paho is reconnecting; Connect must not build a second client.
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() during reconnect error = %v", err)
	}
	if ff.count() != 1 {
		t.Errorf("clients built = %d, want 1", ff.count())
	}

	c.reconnect()
	if !s.IsConnected() {
		t.Error("IsConnected() = false after reconnect")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []bool{true, false, true}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("status events = %v, want %v", events, want)
	}
}

func TestReconnect_DrainsMessagesQueuedWhileOffline(t *testing.T) {
	cfg := testConfig()
	s, ff := newTestSession(t, cfg)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c := ff.last()
	c.loseConnection(errors.New("gone"))

	if ok, _ := s.Publish("state", "a", 0, true); !ok {
		t.Fatal("Publish() while reconnecting not queued")
	}
	if ok, err := s.Publish("state", "b", 0, false); ok || !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() without queueing = %v, %v; want false, ErrNotConnected", ok, err)
	}

	c.reconnect()

	got := c.publishedSnapshot()
	// alive (first connect), alive (reconnect), queued "a"
	if len(got) != 3 {
		t.Fatalf("published %d, want 3: %+v", len(got), got)
	}
	if got[1].topic != cfg.Topics.HealthTopic || got[2].payload != "a" {
		t.Errorf("reconnect publishes = %+v, want alive then queued payload", got[1:])
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish_Connected(t *testing.T) {
	cfg := testConfig()
	cfg.Retain = true
	s, ff := newTestSession(t, cfg)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ok, err := s.Publish("canvas/x", map[string]string{"k": "v"}, 0, false)
	if err != nil || !ok {
		t.Fatalf("Publish() = %v, %v", ok, err)
	}

	got := ff.last().publishedSnapshot()
	last := got[len(got)-1]
	if !last.retained {
		t.Error("retain flag from config not applied")
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(last.payload), &decoded); err != nil || decoded["k"] != "v" {
		t.Errorf("payload = %s, want JSON {k:v}", last.payload)
	}
}

func TestPublish_Validation(t *testing.T) {
	s, _ := newTestSession(t, testConfig())

	if _, err := s.Publish("", "x", 0, true); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if _, err := s.Publish("t", "x", 3, true); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3 error = %v, want ErrInvalidQoS", err)
	}
	big := strings.Repeat("x", maxPayloadSize+1)
	if _, err := s.Publish("t", big, 0, true); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed", err)
	}
	if _, err := s.Publish("t", func() {}, 0, true); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("unencodable payload error = %v, want ErrPublishFailed", err)
	}
}

func TestPublish_QueueDropsOldest(t *testing.T) {
	cfg := testConfig()
	cfg.QueueCapacity = 2
	s, ff := newTestSession(t, cfg)

	for _, p := range []string{"one", "two", "three"} {
		if ok, _ := s.Publish("t", p, 0, true); !ok {
			t.Fatalf("Publish(%q) not queued", p)
		}
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got := ff.last().publishedSnapshot()
	if len(got) != 3 || got[1].payload != "two" || got[2].payload != "three" {
		t.Errorf("published = %+v, want alive, two, three", got)
	}
}

// =============================================================================
// Disconnect Tests
// =============================================================================

func TestDisconnect_Graceful(t *testing.T) {
	cfg := testConfig()
	s, ff := newTestSession(t, cfg)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var lastStatus *bool
	s.SetOnStatusChange(func(connected bool) { lastStatus = &connected })

	s.Disconnect(false)

	c := ff.last()
	got := c.publishedSnapshot()
	last := got[len(got)-1]
	if last.topic != cfg.Topics.HealthTopic || !strings.Contains(last.payload, `"alive":false`) {
		t.Errorf("last publish = %+v, want alive:false", last)
	}
	if len(c.disconnects) != 1 || c.disconnects[0] != defaultDisconnectQuiesce {
		t.Errorf("disconnects = %v, want [%d]", c.disconnects, defaultDisconnectQuiesce)
	}
	if s.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", s.State())
	}
	if lastStatus == nil || *lastStatus {
		t.Error("status callback not invoked with false")
	}
}

func TestDisconnect_Force(t *testing.T) {
	s, ff := newTestSession(t, testConfig())
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	before := len(ff.last().publishedSnapshot())

	s.Disconnect(true)

	c := ff.last()
	if len(c.publishedSnapshot()) != before {
		t.Error("forced disconnect published a message")
	}
	if len(c.disconnects) != 1 || c.disconnects[0] != forceDisconnectGrace {
		t.Errorf("disconnects = %v, want [%d]", c.disconnects, forceDisconnectGrace)
	}
}

func TestDisconnect_NeverConnected(t *testing.T) {
	s, _ := newTestSession(t, testConfig())
	s.Disconnect(true) // must not panic
}

// =============================================================================
// Inbound Tests
// =============================================================================

type recordingDispatcher struct {
	mu     sync.Mutex
	topics []string
}

func (d *recordingDispatcher) Route(topic string, _ []byte) {
	d.mu.Lock()
	d.topics = append(d.topics, topic)
	d.mu.Unlock()
}

func TestInbound_DispatcherThenHandlers(t *testing.T) {
	s, ff := newTestSession(t, testConfig())
	d := &recordingDispatcher{}
	s.SetDispatcher(d)

	var mu sync.Mutex
	var hits []string
	record := func(name string) MessageHandler {
		return func(msg Message) error {
			mu.Lock()
			hits = append(hits, name+":"+msg.Topic)
			mu.Unlock()
			return nil
		}
	}
	if _, err := s.Subscribe("canvas/devices/+/simcoe/#", 0, record("wild")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Subscribe("canvas/devices/dev-1", 0, record("exact")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Subscribe("other/#", 0, func(Message) error { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Subscribe("canvas/devices/dev-1", 0, func(Message) error { return errors.New("ignored") }); err != nil {
		t.Fatal(err)
	}

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c := ff.last()
	c.receive("canvas/devices/dev-1/simcoe/request/printer/home", `{}`)
	c.receive("canvas/devices/dev-1", `{}`)
	c.receive("other/thing", `{}`)

	if len(d.topics) != 3 {
		t.Errorf("dispatcher saw %d messages, want 3", len(d.topics))
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"wild:canvas/devices/dev-1/simcoe/request/printer/home",
		"exact:canvas/devices/dev-1",
	}
	if fmt.Sprint(hits) != fmt.Sprint(want) {
		t.Errorf("handler hits = %v, want %v", hits, want)
	}
}

func TestUnsubscribe(t *testing.T) {
	s, ff := newTestSession(t, testConfig())
	id, err := s.Subscribe("extra/#", 0, func(Message) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Subscribe("extra/#", 0, func(Message) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}

	if err := s.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe(id) error = %v", err)
	}
	if s.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", s.SubscriptionCount())
	}
	c := ff.last()
	c.mu.Lock()
	unsubs := len(c.unsubscribed)
	c.mu.Unlock()
	if unsubs != 0 {
		t.Error("wire unsubscribe sent while a handler still uses the pattern")
	}

	if err := s.Unsubscribe("extra/#"); err != nil {
		t.Fatalf("Unsubscribe(pattern) error = %v", err)
	}
	if s.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", s.SubscriptionCount())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.unsubscribed) != 1 || c.unsubscribed[0] != "extra/#" {
		t.Errorf("unsubscribed = %v, want [extra/#]", c.unsubscribed)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	s, _ := newTestSession(t, testConfig())
	if _, err := s.Subscribe("", 0, func(Message) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty pattern error = %v", err)
	}
	if _, err := s.Subscribe("a", 5, func(Message) error { return nil }); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if _, err := s.Subscribe("a", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
}
