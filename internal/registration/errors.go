package registration

import "errors"

var (
	// ErrNotRegistered is returned by account operations before the device
	// has completed registration.
	ErrNotRegistered = errors.New("registration: device not registered")

	// ErrIncompleteRegistration is returned when the cloud accepted the
	// device but issued no refresh token. The attempt is retried.
	ErrIncompleteRegistration = errors.New("registration: response has no refresh token")

	// ErrNoRefreshToken is returned when an access token is needed but the
	// document holds no refresh token to obtain one.
	ErrNoRefreshToken = errors.New("registration: no refresh token")

	// ErrNoTLSMaterial is returned when the session cannot be configured
	// because credential files are missing.
	ErrNoTLSMaterial = errors.New("registration: TLS material unavailable")
)
