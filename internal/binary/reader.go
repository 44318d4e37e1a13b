// Package binary provides low-level little-endian reads for Palmtree run files.
package binary

import (
	"encoding/binary"
	"io"
	"math"
)

// Reader is a positioned little-endian reader over an io.ReaderAt.
// All Palmtree run data is stored little-endian, so the byte order is fixed.
type Reader struct {
	r   io.ReaderAt
	pos int64
}

// NewReader creates a reader positioned at the start of the source.
func NewReader(r io.ReaderAt) *Reader {
	return &Reader{r: r}
}

// Pos returns the current read position.
func (r *Reader) Pos() int64 {
	return r.pos
}

// Seek repositions the reader at an absolute offset.
func (r *Reader) Seek(offset int64) {
	r.pos = offset
}

// Skip advances the position by n bytes without reading.
func (r *Reader) Skip(n int64) {
	r.pos += n
}

// ReadBytes reads exactly n bytes from the current position.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := r.r.ReadAt(buf, r.pos); err != nil {
		return nil, err
	}
	r.pos += int64(n)
	return buf, nil
}

// ReadUint8 reads an unsigned 8-bit integer.
func (r *Reader) ReadUint8() (uint8, error) {
	buf, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadBool reads a single byte as a boolean (0 = false, anything else = true).
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadUint16 reads an unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	buf, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// ReadUint32 reads an unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadUint64 reads an unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// ReadFloat64 reads a little-endian IEEE 754 double.
func (r *Reader) ReadFloat64() (float64, error) {
	bits, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// ReadFloat64Slice reads n little-endian doubles in one bulk read.
// The decode never depends on host endianness.
func (r *Reader) ReadFloat64Slice(n int) ([]float64, error) {
	if n <= 0 {
		return nil, nil
	}
	buf, err := r.ReadBytes(n * 8)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vals, nil
}

// ReadASCII reads n bytes and returns them as a string.
func (r *Reader) ReadASCII(n int) (string, error) {
	buf, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
