package archive

import "errors"

var (
	// ErrBadMagic is returned when a pack's header does not start with
	// the VaFs magic value.
	ErrBadMagic = errors.New("archive: bad magic")
	// ErrUnsupportedVersion is returned when a pack's format version is
	// not one this package knows how to read.
	ErrUnsupportedVersion = errors.New("archive: unsupported format version")
	// ErrNoFilter is returned by Open when a pack claims a filter
	// codec this package does not implement.
	ErrNoFilter = errors.New("archive: unknown filter codec")
)
