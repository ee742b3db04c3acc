package router

import "runtime/debug"

// ErrorHandler receives failures the router does not answer: malformed
// messages, handler errors and recovered panics.
type ErrorHandler interface {
	HandleError(err error)
}

// LogErrorHandler logs each error with the current stack.
type LogErrorHandler struct {
	Logger Logger
}

// HandleError logs err.
func (h LogErrorHandler) HandleError(err error) {
	if h.Logger == nil || err == nil {
		return
	}
	h.Logger.Error("router error", "error", err, "stack", string(debug.Stack()))
}
