package influxdb

import "errors"

var (
	// ErrNotConnected indicates the client was closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled indicates history recording is turned off in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
