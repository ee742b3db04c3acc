package hubdata

import "errors"

var (
	// ErrLoadFailed is returned when the document cannot be read from disk.
	ErrLoadFailed = errors.New("hubdata: load failed")

	// ErrSaveFailed is returned when the document cannot be written.
	ErrSaveFailed = errors.New("hubdata: save failed")
)
