package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/canvas-link/internal/hubdata"
	"github.com/nerrad567/canvas-link/internal/infrastructure/mqtt"
)

// Defaults for the broadcast loops.
const (
	DefaultBase          = 5
	DefaultTick          = time.Second
	DefaultWatchInterval = 2 * time.Second
	DefaultStartDelay    = 5 * time.Second

	// broadcastStatus is the payload status of a state broadcast.
	broadcastStatus = 200

	// stateQoS is the QoS of state broadcasts.
	stateQoS = 0

	defaultOriginName = "simcoe"
)

// ErrNoStateTopic is returned when a broadcast is attempted before
// registration provisioned the state topic.
var ErrNoStateTopic = errors.New("state: state topic not provisioned")

// Publisher sends messages through the broker session.
type Publisher interface {
	Publish(topic string, payload any, qos byte, allowQueueing bool) (bool, error)
}

// DocumentSource provides the current hub document.
type DocumentSource interface {
	Snapshot() hubdata.Document
}

// Sink receives every broadcast snapshot, e.g. for time-series storage.
type Sink interface {
	WriteSnapshot(ctx context.Context, deviceID string, s Snapshot, at time.Time) error
}

// Options configures a Broadcaster.
type Options struct {
	// Tracker holds observed state. Required.
	Tracker *Tracker

	// Source is the printer API. Optional; without it only tracked values
	// are reported.
	Source Source

	// Documents supplies topics, origin name and the active setup. Required.
	Documents DocumentSource

	// Publisher is the broker session. Required.
	Publisher Publisher

	// Sink is optional.
	Sink Sink

	// Logger is optional.
	Logger Logger

	// Base of the broadcast cadence. Defaults to DefaultBase.
	Base int64

	// Tick is the broadcaster period. Defaults to DefaultTick.
	Tick time.Duration

	// WatchInterval is the watcher period. Defaults to DefaultWatchInterval.
	WatchInterval time.Duration

	// StartDelay postpones both loops. Zero means no delay.
	StartDelay time.Duration

	// Now is the clock for message ids. Defaults to time.Now.
	Now func() time.Time
}

// Broadcaster publishes state snapshots on an adaptive schedule.
//
// A shared counter advances once per tick and a snapshot is broadcast when
// it is 0 or a power of the base, so an idle printer is reported at 1, 5,
// 25, 125... seconds. The watcher compares the live state against the last
// broadcast and resets the counter on a significant change; so do router
// commands and printer events through ResetCounter. A reset sets the
// counter to -1, so the next tick broadcasts.
//
// Thread Safety: All methods are safe for concurrent use.
type Broadcaster struct {
	tracker   *Tracker
	source    Source
	docs      DocumentSource
	publisher Publisher
	sink      Sink
	logger    Logger

	base          int64
	tick          time.Duration
	watchInterval time.Duration
	startDelay    time.Duration
	now           func() time.Time

	counter atomic.Int64

	mu       sync.Mutex
	last     Snapshot
	lastTree map[string]any
	hasLast  bool
}

// NewBroadcaster creates a Broadcaster. Start its loops with RunBroadcast
// and RunWatcher.
func NewBroadcaster(opts Options) (*Broadcaster, error) {
	if opts.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if opts.Documents == nil {
		return nil, fmt.Errorf("document source is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	b := &Broadcaster{
		tracker:       opts.Tracker,
		source:        opts.Source,
		docs:          opts.Documents,
		publisher:     opts.Publisher,
		sink:          opts.Sink,
		logger:        opts.Logger,
		base:          opts.Base,
		tick:          opts.Tick,
		watchInterval: opts.WatchInterval,
		startDelay:    opts.StartDelay,
		now:           opts.Now,
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.base < 2 {
		b.base = DefaultBase
	}
	if b.tick <= 0 {
		b.tick = DefaultTick
	}
	if b.watchInterval <= 0 {
		b.watchInterval = DefaultWatchInterval
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// ResetCounter makes the next tick broadcast.
func (b *Broadcaster) ResetCounter() {
	b.counter.Store(-1)
}

// Counter returns the current counter value.
func (b *Broadcaster) Counter() int64 {
	return b.counter.Load()
}

// Tracker returns the tracked state the broadcaster reports.
func (b *Broadcaster) Tracker() *Tracker {
	return b.tracker
}

// Snapshot builds the current state.
func (b *Broadcaster) Snapshot(ctx context.Context) Snapshot {
	b.tracker.SetActiveSetup(b.docs.Snapshot().User.ActiveSetup.ID)
	return b.tracker.Build(ctx, b.source, b.logger)
}

// LastBroadcast returns the most recently broadcast snapshot.
func (b *Broadcaster) LastBroadcast() (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.hasLast
}

// Tick advances the counter and broadcasts when the cadence says so. It
// reports whether a broadcast was attempted.
func (b *Broadcaster) Tick(ctx context.Context) bool {
	n := b.counter.Add(1)
	if !ShouldBroadcast(n, b.base) {
		return false
	}
	b.logger.Debug("broadcasting state", "count", n)
	if err := b.Broadcast(ctx); err != nil {
		b.logger.Warn("state broadcast failed", "error", err)
	}
	return true
}

// Broadcast publishes the current snapshot now and records it as the
// last broadcast. Broadcasts are not queued while offline.
func (b *Broadcaster) Broadcast(ctx context.Context) error {
	doc := b.docs.Snapshot()
	snap := b.Snapshot(ctx)
	now := b.now()

	b.mu.Lock()
	b.last = snap
	b.lastTree = Tree(snap)
	b.hasLast = true
	b.mu.Unlock()

	if b.sink != nil {
		if err := b.sink.WriteSnapshot(ctx, doc.DeviceID(), snap, now); err != nil {
			b.logger.Debug("state sink write failed", "error", err)
		}
	}

	topic := doc.MQTT.Topics.Broadcasts.StateTopic
	if topic == "" {
		return ErrNoStateTopic
	}
	origin := doc.MQTT.Publish.OriginName
	if origin == "" {
		origin = defaultOriginName
	}

	msg := mqtt.Envelope{
		Header: mqtt.Header{OriginID: origin, MsgID: mqtt.NewMessageID(now)},
		Payload: mqtt.BodyPayload{
			Status: broadcastStatus,
			Body:   snap,
		},
	}
	if _, err := b.publisher.Publish(topic, msg, stateQoS, false); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		return err
	}
	return nil
}

// Check compares the live state with the last broadcast and resets the
// counter on a significant change. It returns the detected changes and
// whether they were significant.
func (b *Broadcaster) Check(ctx context.Context) ([]Change, bool) {
	current := Tree(b.Snapshot(ctx))

	b.mu.Lock()
	last := b.lastTree
	b.mu.Unlock()

	changes := Diff(last, current)
	if !Significant(changes) {
		return changes, false
	}
	b.logger.Info("state changed significantly", "changes", len(changes), "first", changes[0].Path)
	b.ResetCounter()
	return changes, true
}

// RunBroadcast runs the broadcaster loop until ctx is done.
func (b *Broadcaster) RunBroadcast(ctx context.Context) error {
	return b.loop(ctx, b.tick, func() { b.Tick(ctx) })
}

// RunWatcher runs the change watcher until ctx is done.
func (b *Broadcaster) RunWatcher(ctx context.Context) error {
	return b.loop(ctx, b.watchInterval, func() { b.Check(ctx) })
}

// loop waits the start delay, then calls fn every period.
func (b *Broadcaster) loop(ctx context.Context, period time.Duration, fn func()) error {
	if b.startDelay > 0 {
		timer := time.NewTimer(b.startDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}
