package router

import "errors"

var (
	// ErrMalformedMessage is reported for payloads that are not JSON or lack
	// a header with an origin. Such messages get no reply.
	ErrMalformedMessage = errors.New("router: malformed message")

	// ErrBadQuery is returned when a request query does not decode into the
	// handler's parameters. The request is not answered.
	ErrBadQuery = errors.New("router: bad query")

	// ErrNotRegistered is reported for requests that arrive before the
	// device has an id to answer with.
	ErrNotRegistered = errors.New("router: device not registered")

	// ErrUnavailable is returned when a handler's collaborator is not
	// configured.
	ErrUnavailable = errors.New("router: collaborator unavailable")
)
