package mqtt

import "fmt"

// Maximum payload size for MQTT messages (128KB, the broker's limit).
const maxPayloadSize = 128 << 10

// Publish sends payload to topic.
//
// Structured payloads are encoded as JSON; strings and byte slices are sent
// as-is. The retain flag comes from the broker configuration.
//
// Returns:
//   - true, nil: published, or queued when offline and allowQueueing is set
//   - false, ErrNotConnected: offline and queueing not allowed
//   - false, error: invalid input or the broker rejected the publish
func (s *Session) Publish(topic string, payload any, qos byte, allowQueueing bool) (bool, error) {
	if topic == "" {
		return false, ErrInvalidTopic
	}
	if qos > maxQoS {
		return false, ErrInvalidQoS
	}
	data, err := encodePayload(payload)
	if err != nil {
		return false, fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	if len(data) > maxPayloadSize {
		return false, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(data), maxPayloadSize)
	}

	s.pubMu.Lock()
	s.mu.Lock()
	client, state, retain := s.client, s.state, s.cfg.Retain
	s.mu.Unlock()

	if state != StateConnected || client == nil {
		defer s.pubMu.Unlock()
		if !allowQueueing {
			return false, ErrNotConnected
		}
		if dropped := s.queue.push(queuedMessage{topic: topic, payload: data, qos: qos}); dropped {
			s.logger.Warn("offline publish queue full, dropped oldest entry")
		}
		s.logger.Debug("not connected, queued publish", "topic", topic)
		return true, nil
	}

	token := client.Publish(topic, qos, retain, data)
	s.pubMu.Unlock()

	if !token.WaitTimeout(defaultPublishTimeout) {
		return false, fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return true, nil
}
