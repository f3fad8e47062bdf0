package shadercache

import "errors"

var (
	// ErrDestroyed is returned when a destroyed cache is used.
	ErrDestroyed = errors.New("shadercache: cache destroyed")

	// ErrCorrupt is reported (wrapped) when a cache file fails validation.
	ErrCorrupt = errors.New("shadercache: corrupt cache file")

	// ErrVersion is reported (wrapped) when a cache file has another format version.
	ErrVersion = errors.New("shadercache: unsupported cache version")
)
