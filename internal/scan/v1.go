package scan

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/palmtree-bci/go-palmtree/internal/alloc"
	"github.com/palmtree-bci/go-palmtree/internal/binary"
	"github.com/palmtree-bci/go-palmtree/internal/header"
)

// ReadV1 decodes the sample region of a version 1 file. Every row has the
// same byte width, so the row count comes straight from the file size and a
// trailing partial row is silently dropped.
func ReadV1(r *binary.Reader, h *header.Header, allocate alloc.Func) (*mat.Dense, error) {
	if h.Geometry == nil {
		return nil, fmt.Errorf("file has no fixed-row geometry")
	}
	rows := int(h.Geometry.NumRows)
	cols := int(h.NumColumns)
	if rows == 0 || cols == 0 {
		return nil, nil
	}

	m, err := allocate(rows, cols, math.NaN())
	if err != nil {
		return nil, err
	}

	r.Seek(h.PosDataStart)
	plugin := h.Kind() == header.KindPlugin

	for i := 0; i < rows; i++ {
		if plugin {
			// Plugin rows are doubles only, no sample id.
			vals, err := r.ReadFloat64Slice(cols)
			if err != nil {
				return nil, fmt.Errorf("reading row %d: %w", i, err)
			}
			m.SetRow(i, vals)
			continue
		}

		id, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("reading row %d sample id: %w", i, err)
		}
		vals, err := r.ReadFloat64Slice(cols - 1)
		if err != nil {
			return nil, fmt.Errorf("reading row %d values: %w", i, err)
		}
		m.Set(i, 0, float64(id))
		for j, v := range vals {
			m.Set(i, j+1, v)
		}
	}

	return m, nil
}
