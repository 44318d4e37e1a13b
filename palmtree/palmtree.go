// Package palmtree reads Palmtree run data files.
//
// A Palmtree run produces source data (.src), the per-stream samples as
// captured by the source module, and pipeline data (.dat), the streams that
// went through the pipeline stages. Both kinds share a versioned preamble
// followed by a sample region; version 1 files use fixed-width rows while
// versions 2 and 3 store variable-length sample-packages.
//
// Read decodes one complete file into a header and a dense sample matrix.
// The matrix has one row per sample: column 0 is the sample-package id,
// column 1 the elapsed milliseconds since the previous sample, optionally
// column 2 the source input timestamp, and the remaining columns hold one
// value per stream in declared order.
package palmtree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/palmtree-bci/go-palmtree/internal/binary"
	"github.com/palmtree-bci/go-palmtree/internal/header"
	"github.com/palmtree-bci/go-palmtree/internal/scan"
)

// Header describes the layout of a run data file. Fields gated by version
// or kind are nil unless their gating condition holds.
type Header = header.Header

// Stream describes one declared stream in a version 2/3 header.
type Stream = header.Stream

// Kind identifies the logical kind of a run data file.
type Kind = header.Kind

// File kinds, derived from the 3-byte code in the preamble.
const (
	KindSource   = header.KindSource
	KindPipeline = header.KindPipeline
	KindPlugin   = header.KindPlugin
)

// ReadHeader reads only the header of a run data file. The sample region is
// still scanned (without allocating anything) so that derived counts such as
// the total number of samples are filled in, exactly as a full read would.
func ReadHeader(path string, opts ...Option) (*Header, error) {
	h, _, err := Read(path, false, opts...)
	return h, err
}

// Read loads a run data file. When withData is true the decoded sample
// matrix is returned alongside the header; otherwise the matrix is nil.
//
// I/O and version errors abort the load; the header parsed up to that point
// is returned with the error. Truncated trailing package data is not an
// error: the decode stops at the last complete package and returns
// everything read so far.
func Read(path string, withData bool, opts ...Option) (*Header, *mat.Dense, error) {
	o := defaultReadOptions()
	for _, opt := range opts {
		opt(o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening run data file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("reading run data file size: %w", err)
	}

	r := binary.NewReader(f)
	h, err := header.Read(r, fi.Size())
	if err != nil {
		return h, nil, err
	}

	if h.Version == 1 {
		if !withData {
			return h, nil, nil
		}
		m, err := scan.ReadV1(r, h, o.allocate)
		if err != nil {
			return h, nil, err
		}
		return h, m, nil
	}

	// Versions 2 and 3: pass 1 establishes the totals the header reports
	// and the shape pass 2 allocates.
	if err := scan.Count(r, h, o.log); err != nil {
		return h, nil, err
	}
	if !withData {
		return h, nil, nil
	}
	m, err := scan.Materialize(r, h, o.allocate, o.log)
	if err != nil {
		return h, nil, err
	}
	return h, m, nil
}

// ReadRun loads one of a run's data files given any path belonging to the
// run, with or without extension. Set source to load the source data (.src)
// instead of the pipeline data (.dat).
func ReadRun(path string, source bool, withData bool, opts ...Option) (*Header, *mat.Dense, error) {
	ext := ".dat"
	if source {
		ext = ".src"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".src", ".dat":
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}
	return Read(path+ext, withData, opts...)
}

// ReadLegacy loads a run recorded in the pre-release source format.
//
// Not implemented yet; returns ErrUnsupported.
func ReadLegacy(path string, withData bool, opts ...Option) (*Header, *mat.Dense, error) {
	return nil, nil, fmt.Errorf("legacy source format: %w", ErrUnsupported)
}
