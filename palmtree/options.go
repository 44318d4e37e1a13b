package palmtree

import (
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/palmtree-bci/go-palmtree/internal/alloc"
)

// Allocator produces the rows x cols sample matrix with every cell set to
// fill, or fails with an error wrapping ErrAllocationFailed. The default
// implementation verifies available system memory before committing.
type Allocator func(rows, cols int, fill float64) (*mat.Dense, error)

// Option configures a read operation.
type Option func(*readOptions)

type readOptions struct {
	log      zerolog.Logger
	allocate alloc.Func
}

func defaultReadOptions() *readOptions {
	return &readOptions{
		log:      zerolog.Nop(),
		allocate: alloc.Matrix,
	}
}

// WithLogger sets the logger used for decode warnings, such as truncated
// trailing packages. The default discards them.
func WithLogger(log zerolog.Logger) Option {
	return func(o *readOptions) {
		o.log = log
	}
}

// WithAllocator replaces the matrix allocator, for callers that want their
// own memory policy.
func WithAllocator(allocate Allocator) Option {
	return func(o *readOptions) {
		if allocate != nil {
			o.allocate = alloc.Func(allocate)
		}
	}
}
