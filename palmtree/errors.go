package palmtree

import (
	"errors"

	"github.com/palmtree-bci/go-palmtree/internal/alloc"
	"github.com/palmtree-bci/go-palmtree/internal/header"
)

// Common errors
var (
	// ErrUnsupportedVersion is returned for unknown version tags. The
	// partially parsed header is returned alongside it.
	ErrUnsupportedVersion = header.ErrUnsupportedVersion

	// ErrAllocationFailed is returned when the sample matrix would not fit
	// in available memory.
	ErrAllocationFailed = alloc.ErrMemoryExhausted

	// ErrUnsupported is returned by loaders that are not implemented yet.
	ErrUnsupported = errors.New("unsupported feature")
)
