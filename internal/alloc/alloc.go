// Package alloc allocates sample matrices behind a free-memory preflight.
//
// Decoded runs can be large, and an allocation that outruns physical memory
// kills the process before any error can surface. The allocator checks the
// available system memory first and reports ErrMemoryExhausted instead.
package alloc

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
	"gonum.org/v1/gonum/mat"
)

// ErrMemoryExhausted is returned when the requested matrix would not fit in
// the currently available system memory.
var ErrMemoryExhausted = errors.New("not enough free memory for sample matrix")

// Func is the allocation contract the decoder depends on. Implementations
// return a rows x cols float64 matrix with every cell set to fill, or an
// error wrapping ErrMemoryExhausted.
type Func func(rows, cols int, fill float64) (*mat.Dense, error)

// Matrix allocates a rows x cols matrix filled with fill, after verifying
// that enough system memory is available. A request for zero rows or columns
// returns a nil matrix: there is nothing to decode into.
func Matrix(rows, cols int, fill float64) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, nil
	}

	needed := uint64(rows) * uint64(cols) * 8
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("checking available memory: %w", err)
	}
	if vm.Available <= needed {
		return nil, fmt.Errorf("%w: need %d MiB, %d MiB available",
			ErrMemoryExhausted, needed/(1<<20), vm.Available/(1<<20))
	}

	m := mat.NewDense(rows, cols, nil)
	if fill != 0 {
		data := m.RawMatrix().Data
		for i := range data {
			data[i] = fill
		}
	}
	return m, nil
}
