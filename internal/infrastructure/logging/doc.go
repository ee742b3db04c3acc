// Package logging builds the daemon's log/slog logger.
//
// Every entry carries service and version; subsystems add their own
// component field:
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("registration").Info("device registered", "device_id", id)
//
// The logging section of config.yaml picks the level (debug, info, warn,
// error), the format (json or text) and the stream (stdout or stderr).
//
// Access tokens, refresh tokens and private keys must never be logged.
// Device ids and topic names may be.
package logging
