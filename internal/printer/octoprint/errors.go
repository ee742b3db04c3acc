package octoprint

import (
	"errors"
	"fmt"
)

// Sentinel errors for the OctoPrint adapter.
var (
	// ErrNotConfigured is returned when no OctoPrint URL is configured.
	ErrNotConfigured = errors.New("octoprint: url not configured")

	// ErrRequestFailed indicates the request never produced a response.
	ErrRequestFailed = errors.New("octoprint: request failed")

	// ErrUnexpectedStatus indicates OctoPrint answered with an error status.
	ErrUnexpectedStatus = errors.New("octoprint: unexpected status")

	// ErrPrinterNotOperational is returned for 409 Conflict, which OctoPrint
	// sends when the printer is not connected or busy.
	ErrPrinterNotOperational = errors.New("octoprint: printer not operational")

	// ErrUnknownHeater is returned by SetTemperature for unsupported heaters.
	ErrUnknownHeater = errors.New("octoprint: unknown heater")
)

// StatusError carries the method, path and status of a failed call.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("octoprint: %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Is matches ErrUnexpectedStatus, and ErrPrinterNotOperational for 409.
func (e *StatusError) Is(target error) bool {
	if target == ErrUnexpectedStatus {
		return true
	}
	return target == ErrPrinterNotOperational && e.StatusCode == 409
}
