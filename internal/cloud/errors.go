package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors for cloud API operations.
//
//	if errors.Is(err, cloud.ErrUnexpectedStatus) {
//	    // the API answered, but not with success
//	}
var (
	// ErrRequestFailed indicates the request never produced a response.
	ErrRequestFailed = errors.New("cloud: request failed")

	// ErrUnexpectedStatus indicates a non-success HTTP status.
	ErrUnexpectedStatus = errors.New("cloud: unexpected status")

	// ErrDecodeFailed indicates the response body could not be decoded.
	ErrDecodeFailed = errors.New("cloud: decode failed")

	// ErrMissingDevice indicates a device-scoped call without a device id.
	ErrMissingDevice = errors.New("cloud: device id required")
)

// StatusError carries the status of a failed API call. It matches
// ErrUnexpectedStatus with errors.Is.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cloud: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("cloud: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is reports whether target is ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}
