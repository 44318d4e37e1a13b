// Package scan decodes the sample region of Palmtree run data files.
//
// Version 2/3 files store a self-describing sequence of variable-length
// sample-packages, so the matrix shape is unknown until the whole region has
// been walked once. The walk therefore runs twice: pass 1 only counts, pass 2
// allocates and writes. Both passes go through the same walkPackages routine,
// parameterized over a visitor, so their byte-offset traversals cannot
// diverge.
package scan

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/palmtree-bci/go-palmtree/internal/alloc"
	"github.com/palmtree-bci/go-palmtree/internal/binary"
	"github.com/palmtree-bci/go-palmtree/internal/header"
)

// visitor receives the decoded pieces of each sample-package during a walk.
type visitor interface {
	// decode reports whether the walker should decode value blocks; when
	// false the walker seeks past them and block receives a nil slice.
	decode() bool
	// begin is called once per package with its header fields. inputTime is
	// meaningful only when the file carries source input timestamps.
	begin(id uint32, elapsed, inputTime float64)
	// block delivers one value block covering streams
	// [stream, stream+nStreams) for nSamples rows, in row-major order.
	block(stream, nStreams, nSamples int, vals []float64)
	// commit accepts the current package, occupying nSamples matrix rows.
	commit(nSamples int)
}

// Count performs the first pass over the sample region and fills h.Totals.
// Truncated trailing data is tolerated: the walk stops at the last complete
// package and reports success.
func Count(r *binary.Reader, h *header.Header, log zerolog.Logger) error {
	c := &countVisitor{}
	if err := walkPackages(r, h, c, log); err != nil {
		return err
	}
	h.Totals = &header.Totals{Samples: c.samples, Packages: c.packages}
	return nil
}

// Materialize performs the second pass: it allocates a matrix sized by the
// totals from Count and re-runs the identical walk, writing decoded values.
// Count must have been called first.
func Materialize(r *binary.Reader, h *header.Header, allocate alloc.Func, log zerolog.Logger) (*mat.Dense, error) {
	if h.Totals == nil {
		return nil, fmt.Errorf("sample region has not been counted")
	}
	if h.Totals.Samples == 0 {
		return nil, nil
	}

	cols := h.HeaderColumns() + h.NumStreams()
	m, err := allocate(int(h.Totals.Samples), cols, math.NaN())
	if err != nil {
		return nil, err
	}

	w := &writeVisitor{m: m, headerCols: h.HeaderColumns()}
	if err := walkPackages(r, h, w, log); err != nil {
		return nil, err
	}
	return m, nil
}

// walkPackages traverses the sample region starting at PosDataStart. The
// loop stops, without error, as soon as fewer bytes remain than one package
// header; a package whose values run past the file end is discarded whole
// and the walk ends there.
func walkPackages(r *binary.Reader, h *header.Header, v visitor, log zerolog.Logger) error {
	kind := h.Kind()
	inputTime := kind == header.KindSource && h.SourceInputTime()
	chunked := kind == header.KindPipeline && h.MaxSamplesPerPackage() > 1
	numStreams := h.NumStreams()

	// .src packages carry a 2-byte sample count after id + elapsed
	// (+ input time); .dat packages are id + elapsed only.
	var pkgHeaderSize int64
	switch kind {
	case header.KindSource:
		pkgHeaderSize = 4 + 8 + 2
		if inputTime {
			pkgHeaderSize += 8
		}
	case header.KindPipeline:
		pkgHeaderSize = 4 + 8
	default:
		return fmt.Errorf("no package layout for %s data", kind)
	}

	r.Seek(h.PosDataStart)

	for r.Pos()+pkgHeaderSize <= h.FileSize {
		id, err := r.ReadUint32()
		if err != nil {
			return fmt.Errorf("reading package id: %w", err)
		}
		elapsed, err := r.ReadFloat64()
		if err != nil {
			return fmt.Errorf("reading package elapsed time: %w", err)
		}
		var srcInputTime float64
		if inputTime {
			if srcInputTime, err = r.ReadFloat64(); err != nil {
				return fmt.Errorf("reading package source input time: %w", err)
			}
		}
		v.begin(id, elapsed, srcInputTime)

		if chunked {
			done, err := walkChunks(r, h, v, id, numStreams, log)
			if err != nil || done {
				return err
			}
			continue
		}

		// Flat layout: the sample count comes from the package header
		// (source) or is fixed at one per stream (pipeline).
		nSamples := 1
		if kind == header.KindSource {
			count, err := r.ReadUint16()
			if err != nil {
				return fmt.Errorf("reading package sample count: %w", err)
			}
			nSamples = int(count)
		}
		nValues := numStreams * nSamples

		if r.Pos()+int64(nValues)*8 > h.FileSize {
			// The counting pass already warned; pass 2 stops quietly at
			// the same offset.
			if !v.decode() {
				log.Warn().
					Uint32("package", id).
					Int64("offset", r.Pos()).
					Msg("last sample-package is incomplete, discarding it and stopping the scan")
			}
			return nil
		}

		if err := visitBlock(r, v, 0, numStreams, nSamples); err != nil {
			return err
		}
		v.commit(nSamples)
	}

	return nil
}

// walkChunks consumes the chunked body of one pipeline package: sub-blocks
// of nStreams x nSamples doubles, each behind a 4-byte chunk header, until
// every declared stream is covered. It returns done=true when the walk must
// stop because the trailing package is incomplete.
func walkChunks(r *binary.Reader, h *header.Header, v visitor, id uint32, numStreams int, log zerolog.Logger) (done bool, err error) {
	stream := 0
	maxSamples := 0

	for stream < numStreams && r.Pos()+4 <= h.FileSize {
		chunkStreams, err := r.ReadUint16()
		if err != nil {
			return false, fmt.Errorf("reading chunk stream count: %w", err)
		}
		chunkSamples, err := r.ReadUint16()
		if err != nil {
			return false, fmt.Errorf("reading chunk sample count: %w", err)
		}
		nValues := int(chunkStreams) * int(chunkSamples)

		if r.Pos()+int64(nValues)*8 > h.FileSize {
			if !v.decode() {
				log.Warn().
					Uint32("package", id).
					Int64("offset", r.Pos()).
					Msg("last sample-chunk is incomplete, discarding its sample-package and stopping the scan")
			}
			return true, nil
		}

		if err := visitBlock(r, v, stream, int(chunkStreams), int(chunkSamples)); err != nil {
			return false, err
		}
		stream += int(chunkStreams)
		if int(chunkSamples) > maxSamples {
			maxSamples = int(chunkSamples)
		}
	}

	if stream != numStreams {
		if !v.decode() {
			log.Warn().
				Uint32("package", id).
				Int("streams", stream).
				Int("declared", numStreams).
				Msg("last sample-package does not cover all streams, discarding it and stopping the scan")
		}
		return true, nil
	}

	// Chunks may declare differing sample counts; rows are aligned to the
	// widest chunk and cells of narrower chunks stay at the fill value.
	v.commit(maxSamples)
	return false, nil
}

// visitBlock reads or skips one value block, depending on the visitor.
func visitBlock(r *binary.Reader, v visitor, stream, nStreams, nSamples int) error {
	nValues := nStreams * nSamples
	if !v.decode() {
		r.Skip(int64(nValues) * 8)
		v.block(stream, nStreams, nSamples, nil)
		return nil
	}
	vals, err := r.ReadFloat64Slice(nValues)
	if err != nil {
		return fmt.Errorf("reading sample values: %w", err)
	}
	v.block(stream, nStreams, nSamples, vals)
	return nil
}

// countVisitor tallies accepted packages without touching sample values.
type countVisitor struct {
	samples  int64
	packages int64
}

func (c *countVisitor) decode() bool                   { return false }
func (c *countVisitor) begin(uint32, float64, float64) {}
func (c *countVisitor) block(_, _, _ int, _ []float64) {}

func (c *countVisitor) commit(nSamples int) {
	c.samples += int64(nSamples)
	c.packages++
}

// writeVisitor fills the preallocated matrix. Package header values are
// broadcast to every row of the package only at commit, so a discarded
// trailing package never leaves bookkeeping columns behind.
type writeVisitor struct {
	m          *mat.Dense
	headerCols int
	row        int

	id        uint32
	elapsed   float64
	inputTime float64
}

func (w *writeVisitor) decode() bool { return true }

func (w *writeVisitor) begin(id uint32, elapsed, inputTime float64) {
	w.id = id
	w.elapsed = elapsed
	w.inputTime = inputTime
}

func (w *writeVisitor) block(stream, nStreams, nSamples int, vals []float64) {
	// A trailing package can be discarded mid-chunk after some of its
	// chunks were already visited; those rows lie past the counted total
	// and must not be written.
	rows, _ := w.m.Dims()
	for s := 0; s < nSamples && w.row+s < rows; s++ {
		for j := 0; j < nStreams; j++ {
			w.m.Set(w.row+s, w.headerCols+stream+j, vals[s*nStreams+j])
		}
	}
}

func (w *writeVisitor) commit(nSamples int) {
	rows, _ := w.m.Dims()
	for s := 0; s < nSamples && w.row+s < rows; s++ {
		w.m.Set(w.row+s, 0, float64(w.id))
		w.m.Set(w.row+s, 1, w.elapsed)
		if w.headerCols == 3 {
			w.m.Set(w.row+s, 2, w.inputTime)
		}
	}
	w.row += nSamples
}
