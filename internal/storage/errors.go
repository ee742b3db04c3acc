package storage

import "errors"

var (
	// ErrOutsideStorage is returned for paths outside the uploads folder and
	// the configured drives.
	ErrOutsideStorage = errors.New("storage: path outside storage roots")

	// ErrNotFolder is returned when listing a path that is not a folder.
	ErrNotFolder = errors.New("storage: not a folder")

	// ErrDownloadFailed is returned when an archive cannot be fetched.
	ErrDownloadFailed = errors.New("storage: download failed")

	// ErrArchiveTooLarge is returned when an archive exceeds MaxArchiveSize.
	ErrArchiveTooLarge = errors.New("storage: archive too large")

	// ErrInvalidArchive is returned for unreadable archives and entries that
	// would escape the extraction folder.
	ErrInvalidArchive = errors.New("storage: invalid archive")
)
