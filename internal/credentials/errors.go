package credentials

import "errors"

var (
	// ErrMissingCredentials is returned when the issued certificate or key is absent.
	ErrMissingCredentials = errors.New("credentials: certificate or key missing")

	// ErrRootCAMissing is returned when the pinned root CA has not been installed.
	ErrRootCAMissing = errors.New("credentials: root CA missing")

	// ErrInvalidRootCA is returned when the root CA file holds no usable certificate.
	ErrInvalidRootCA = errors.New("credentials: root CA contains no certificates")

	// ErrRootCADownload is returned when the root CA cannot be fetched.
	ErrRootCADownload = errors.New("credentials: root CA download failed")
)
