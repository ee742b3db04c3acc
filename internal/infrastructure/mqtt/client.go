package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// State is the connection state of a Session.
type State int

// Session states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
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

// Dispatcher receives every inbound message before topic handlers run.
type Dispatcher interface {
	Route(topic string, payload []byte)
}

// ClientFactory builds the underlying paho client. Tests substitute a fake.
type ClientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Session is the hub's single authenticated broker session.
//
// It owns the paho client, buffers publishes while offline in a bounded
// queue, and fans inbound messages out to the dispatcher and to registered
// topic handlers.
//
// On entering Connected it, in order:
//  1. publishes alive=true on the health topic
//  2. drains the offline queue in enqueue order
//  3. subscribes to the request topics and handler patterns in one batch
//  4. invokes the status callback with true
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Session struct {
	newClient ClientFactory

	// mu guards cfg, client and state.
	mu     sync.Mutex
	cfg    Config
	client pahomqtt.Client
	state  State

	// pubMu orders direct publishes against the queue drain on connect.
	pubMu sync.Mutex
	queue *publishQueue

	// subs is replaced wholesale on every change; readers never lock.
	subs   atomic.Pointer[[]subscription]
	subMu  sync.Mutex
	nextID atomic.Uint64

	dispatcher atomic.Pointer[dispatcherBox]

	onStatus   func(connected bool)
	callbackMu sync.RWMutex

	logger Logger
}

type dispatcherBox struct{ d Dispatcher }

// NewSession creates a disconnected session.
func NewSession(cfg Config, logger Logger) *Session {
	return newSession(cfg, logger, pahomqtt.NewClient)
}

func newSession(cfg Config, logger Logger, factory ClientFactory) *Session {
	if logger == nil {
		logger = noopLogger{}
	}
	cfg = cfg.withDefaults()
	s := &Session{
		newClient: factory,
		cfg:       cfg,
		queue:     newPublishQueue(cfg.QueueCapacity),
		logger:    logger,
	}
	empty := []subscription{}
	s.subs.Store(&empty)
	return s
}

// Reconfigure replaces the session config. Only allowed while disconnected.
// Queued publishes are kept.
func (s *Session) Reconfigure(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		return ErrSessionActive
	}
	s.cfg = cfg.withDefaults()
	return nil
}

// Config returns the current session config.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Connect starts a connection attempt.
//
// It is a no-op while an attempt is in progress or the session is connected.
// A failed attempt leaves the session Disconnected; the caller retries.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	if cfg.Endpoint == "" {
		s.mu.Unlock()
		s.logger.Warn("broker endpoint not set, not connecting")
		return ErrNoEndpoint
	}
	s.state = StateConnecting

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(s.handleConnect)
	opts.SetConnectionLostHandler(s.handleConnectionLost)
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		s.logger.Debug("reconnecting to broker", "endpoint", cfg.Endpoint)
	})

	client := s.newClient(opts)
	s.client = client
	s.mu.Unlock()

	s.logger.Info("connecting to broker", "endpoint", cfg.Endpoint, "port", cfg.Port)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		s.abandon(client)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		s.abandon(client)
		s.logger.Error("broker connection failed", "endpoint", cfg.Endpoint, "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

// abandon discards a client whose first connection attempt failed.
func (s *Session) abandon(client pahomqtt.Client) {
	s.mu.Lock()
	if s.client == client {
		s.client = nil
		s.state = StateDisconnected
	}
	s.mu.Unlock()
	client.Disconnect(0)
}

// handleConnect runs on the initial connection and on every reconnect.
func (s *Session) handleConnect(client pahomqtt.Client) {
	s.mu.Lock()
	if s.client != client {
		s.mu.Unlock()
		return
	}
	cfg := s.cfg
	s.mu.Unlock()

	s.pubMu.Lock()
	s.setState(client, StateConnected)
	if cfg.Topics.HealthTopic != "" {
		client.Publish(cfg.Topics.HealthTopic, requestQoS, cfg.Retain, aliveMessage(cfg.OriginName, true))
	}
	pending := s.queue.drain()
	for _, m := range pending {
		client.Publish(m.topic, m.qos, cfg.Retain, m.payload)
	}
	s.pubMu.Unlock()

	if len(pending) > 0 {
		s.logger.Info("drained offline publish queue", "count", len(pending))
	}

	s.subscribeAll(client, cfg.Topics)

	s.logger.Info("connected to broker", "endpoint", cfg.Endpoint)
	s.notifyStatus(true)
}

// subscribeAll issues one batched subscribe for the request topics and
// every registered handler pattern.
func (s *Session) subscribeAll(client pahomqtt.Client, topics TopicSet) {
	filters := make(map[string]byte)
	for _, t := range topics.RequestFilters() {
		filters[t] = requestQoS
	}
	for _, sub := range *s.subs.Load() {
		if q, ok := filters[sub.pattern]; !ok || sub.qos > q {
			filters[sub.pattern] = sub.qos
		}
	}
	if len(filters) == 0 {
		return
	}

	token := client.SubscribeMultiple(filters, s.onMessage)
	if !token.WaitTimeout(defaultPublishTimeout) {
		s.logger.Warn("batched subscribe timed out", "topics", len(filters))
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("batched subscribe failed", "error", err)
	}
}

func (s *Session) handleConnectionLost(client pahomqtt.Client, err error) {
	s.mu.Lock()
	if s.client != client {
		s.mu.Unlock()
		return
	}
	// paho keeps reconnecting in the background.
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Warn("broker connection lost", "error", err)
	s.notifyStatus(false)
}

func (s *Session) setState(client pahomqtt.Client, state State) {
	s.mu.Lock()
	if s.client == client {
		s.state = state
	}
	s.mu.Unlock()
}

// Disconnect closes the session. A graceful disconnect announces alive=false
// first; force gives in-flight work a short grace period instead.
func (s *Session) Disconnect(force bool) {
	s.mu.Lock()
	client := s.client
	prev := s.state
	cfg := s.cfg
	s.client = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if client == nil {
		return
	}

	quiesce := uint(defaultDisconnectQuiesce)
	if force {
		quiesce = forceDisconnectGrace
	} else if prev == StateConnected && cfg.Topics.HealthTopic != "" {
		token := client.Publish(cfg.Topics.HealthTopic, requestQoS, cfg.Retain, aliveMessage(cfg.OriginName, false))
		token.WaitTimeout(defaultPublishTimeout)
	}
	client.Disconnect(quiesce)

	s.logger.Info("disconnected from broker", "force", force)
	if prev == StateConnected {
		s.notifyStatus(false)
	}
}

// HealthCheck verifies the session is connected.
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session is connected.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// QueueLen returns the number of publishes waiting for a connection.
func (s *Session) QueueLen() int {
	return s.queue.len()
}

// SetDispatcher sets the receiver of every inbound message.
func (s *Session) SetDispatcher(d Dispatcher) {
	s.dispatcher.Store(&dispatcherBox{d: d})
}

// SetOnStatusChange sets a callback invoked with true on every (re)connect
// and with false when the connection is lost or closed.
func (s *Session) SetOnStatusChange(callback func(connected bool)) {
	s.callbackMu.Lock()
	s.onStatus = callback
	s.callbackMu.Unlock()
}

func (s *Session) notifyStatus(connected bool) {
	s.callbackMu.RLock()
	callback := s.onStatus
	s.callbackMu.RUnlock()
	if callback != nil {
		callback(connected)
	}
}
