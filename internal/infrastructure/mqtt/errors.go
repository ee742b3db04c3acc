package mqtt

import "errors"

// Session errors. Wrapped errors keep the sentinel for errors.Is.
var (
	// ErrNotConnected means a publish was neither sent nor queued.
	ErrNotConnected = errors.New("mqtt: session not connected")

	// ErrNoEndpoint means Connect ran before a broker endpoint was set.
	ErrNoEndpoint = errors.New("mqtt: broker endpoint not configured")

	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSessionActive rejects Reconfigure while connecting or connected.
	ErrSessionActive = errors.New("mqtt: session is connecting or connected")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
