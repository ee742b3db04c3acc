package mqtt

import (
	"fmt"
	"strconv"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is an inbound message delivered to topic handlers.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
	QoS      byte
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho goroutines. A returned error or a panic is logged
// and never reaches the network loop.
type MessageHandler func(msg Message) error

// subscription is one registered handler.
type subscription struct {
	id      string
	pattern string
	qos     byte
	handler MessageHandler
}

// Subscribe registers handler for topics matching pattern and returns an id
// for Unsubscribe.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "canvas/devices/+/simcoe/broadcast/state"
//   - # (multi-level): "canvas/devices/d1/#"
//
// If the session is connected the wire subscription is sent now; otherwise
// it is included in the batched subscribe on the next connect.
func (s *Session) Subscribe(pattern string, qos byte, handler MessageHandler) (string, error) {
	if pattern == "" {
		return "", ErrInvalidTopic
	}
	if qos > maxQoS {
		return "", ErrInvalidQoS
	}
	if handler == nil {
		return "", fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	sub := subscription{
		id:      "sub-" + strconv.FormatUint(s.nextID.Add(1), 10),
		pattern: pattern,
		qos:     qos,
		handler: handler,
	}

	s.subMu.Lock()
	current := *s.subs.Load()
	next := make([]subscription, len(current), len(current)+1)
	copy(next, current)
	next = append(next, sub)
	s.subs.Store(&next)
	s.subMu.Unlock()

	s.mu.Lock()
	client, state := s.client, s.state
	s.mu.Unlock()
	if state != StateConnected || client == nil {
		return sub.id, nil
	}

	token := client.Subscribe(pattern, qos, s.onMessage)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return sub.id, fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return sub.id, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return sub.id, nil
}

// Unsubscribe removes registrations by subscription id or by pattern.
//
// The wire subscription is dropped once no handler uses the pattern, unless
// the pattern is one of the request topics.
func (s *Session) Unsubscribe(idOrPattern string) error {
	if idOrPattern == "" {
		return ErrInvalidTopic
	}

	s.subMu.Lock()
	current := *s.subs.Load()
	next := make([]subscription, 0, len(current))
	removed := make(map[string]bool)
	for _, sub := range current {
		if sub.id == idOrPattern || sub.pattern == idOrPattern {
			removed[sub.pattern] = true
			continue
		}
		next = append(next, sub)
	}
	s.subs.Store(&next)
	s.subMu.Unlock()

	for _, sub := range next {
		delete(removed, sub.pattern)
	}

	s.mu.Lock()
	client, state, topics := s.client, s.state, s.cfg.Topics
	s.mu.Unlock()
	for _, t := range topics.RequestFilters() {
		delete(removed, t)
	}
	if len(removed) == 0 || state != StateConnected || client == nil {
		return nil
	}

	patterns := make([]string, 0, len(removed))
	for p := range removed {
		patterns = append(patterns, p)
	}
	token := client.Unsubscribe(patterns...)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// SubscriptionCount returns the number of registered handlers.
func (s *Session) SubscriptionCount() int {
	return len(*s.subs.Load())
}

// onMessage is the paho callback for every subscribed topic.
func (s *Session) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	s.deliver(Message{
		Topic:    msg.Topic(),
		Payload:  msg.Payload(),
		Retained: msg.Retained(),
		QoS:      msg.Qos(),
	})
}

// deliver hands msg to the dispatcher and then to every matching handler.
func (s *Session) deliver(msg Message) {
	if box := s.dispatcher.Load(); box != nil && box.d != nil {
		s.safely(msg.Topic, "dispatcher", func() error {
			box.d.Route(msg.Topic, msg.Payload)
			return nil
		})
	}

	for _, sub := range *s.subs.Load() {
		if !Match(sub.pattern, msg.Topic) {
			continue
		}
		handler := sub.handler
		s.safely(msg.Topic, sub.id, func() error { return handler(msg) })
	}
}

// safely runs fn with panic recovery and error logging.
func (s *Session) safely(topic, who string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("MQTT handler panic recovered",
				"topic", topic,
				"handler", who,
				"panic", r,
			)
		}
	}()

	if err := fn(); err != nil {
		s.logger.Warn("MQTT handler returned error",
			"topic", topic,
			"handler", who,
			"error", err,
		)
	}
}
