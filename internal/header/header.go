// Package header parses the preamble of Palmtree run data files.
//
// The preamble starts with a 4-byte version tag (1, 2 or 3) and a 3-byte
// file-kind code. Which fields follow depends on the version and the kind,
// so conditionally present fields are modeled as explicit optionals rather
// than zero values.
package header

import (
	"errors"
	"fmt"
	"strings"

	"github.com/palmtree-bci/go-palmtree/internal/binary"
)

// Errors
var (
	ErrUnsupportedVersion = errors.New("unsupported run data version")
)

// Kind identifies the logical kind of a run data file, derived from the
// 3-byte code in the preamble.
type Kind int

const (
	// KindSource is raw per-stream data as captured by the source module (code "src").
	KindSource Kind = iota
	// KindPipeline is multi-stage processed pipeline data (code "dat").
	KindPipeline
	// KindPlugin is plugin-recorded data (any other code, version 1 files only).
	KindPlugin
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindPipeline:
		return "pipeline"
	default:
		return "plugin"
	}
}

// Stream describes one declared stream in a version 2/3 preamble.
type Stream struct {
	// DataType is the stream's declared sample data type tag.
	DataType uint8
	// SamplesPerPackage is how many samples this stream wants to log per package.
	SamplesPerPackage uint16
}

// Epochs holds the absolute time references stored once per file (version 2+).
type Epochs struct {
	RunStart  uint64
	FileStart uint64
}

// Geometry holds the fixed-row layout derived for version 1 files.
type Geometry struct {
	// RowSize is the byte width of one row.
	RowSize int64
	// NumRows is floor((file_size - pos_data_start) / row_size); a trailing
	// partial row is not counted.
	NumRows int64
}

// Totals holds the counts established by the first scan pass over a
// version 2/3 sample region.
type Totals struct {
	// Samples is the total number of matrix rows the file decodes to.
	Samples int64
	// Packages is the number of complete sample-packages.
	Packages int64
}

// Header describes the layout of a Palmtree run data file. Fields gated by
// version or kind are nil unless their gating condition holds.
type Header struct {
	// FileSize is the total file size in bytes.
	FileSize int64
	// Version is the format version tag, 1, 2 or 3.
	Version uint32
	// Code is the 3-character file-kind tag ("src", "dat", or a plugin code).
	Code string

	// Epochs is present for versions 2 and 3.
	Epochs *Epochs
	// IncludesSourceInputTime is present only for source files of version 3.
	IncludesSourceInputTime *bool

	// SampleRate is the pipeline sample rate in Hz.
	SampleRate float64
	// NumPlaybackStreams is the declared number of playback streams.
	NumPlaybackStreams uint32

	// Streams holds the per-stream declarations; nil for version 1.
	Streams []Stream

	// NumColumns is the declared column count.
	NumColumns uint32
	// ColumnNames is the tab-separated column name list from the preamble.
	ColumnNames []string

	// PosDataStart is the byte offset where the sample region begins.
	PosDataStart int64

	// Geometry is present for version 1 files only.
	Geometry *Geometry
	// Totals is present for version 2/3 files once the sample region has
	// been scanned.
	Totals *Totals
}

// Read parses the preamble from a reader positioned at offset 0. On an
// unknown version tag it returns the partially populated header together
// with ErrUnsupportedVersion.
func Read(r *binary.Reader, fileSize int64) (*Header, error) {
	h := &Header{FileSize: fileSize}

	version, err := r.ReadUint32()
	if err != nil {
		return h, fmt.Errorf("reading version: %w", err)
	}
	h.Version = version
	if version < 1 || version > 3 {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	if h.Code, err = r.ReadASCII(3); err != nil {
		return h, fmt.Errorf("reading code: %w", err)
	}

	if version >= 2 {
		var ep Epochs
		if ep.RunStart, err = r.ReadUint64(); err != nil {
			return h, fmt.Errorf("reading run start epoch: %w", err)
		}
		if ep.FileStart, err = r.ReadUint64(); err != nil {
			return h, fmt.Errorf("reading file start epoch: %w", err)
		}
		h.Epochs = &ep
	}

	if h.Kind() == KindSource && version == 3 {
		flag, err := r.ReadBool()
		if err != nil {
			return h, fmt.Errorf("reading source input time flag: %w", err)
		}
		h.IncludesSourceInputTime = &flag
	}

	if h.SampleRate, err = r.ReadFloat64(); err != nil {
		return h, fmt.Errorf("reading sample rate: %w", err)
	}
	if h.NumPlaybackStreams, err = r.ReadUint32(); err != nil {
		return h, fmt.Errorf("reading playback stream count: %w", err)
	}

	if version >= 2 {
		numStreams, err := r.ReadUint32()
		if err != nil {
			return h, fmt.Errorf("reading stream count: %w", err)
		}
		h.Streams = make([]Stream, numStreams)
		for i := range h.Streams {
			if h.Streams[i].DataType, err = r.ReadUint8(); err != nil {
				return h, fmt.Errorf("reading stream %d data type: %w", i, err)
			}
			if h.Streams[i].SamplesPerPackage, err = r.ReadUint16(); err != nil {
				return h, fmt.Errorf("reading stream %d samples per package: %w", i, err)
			}
		}
	}

	if h.NumColumns, err = r.ReadUint32(); err != nil {
		return h, fmt.Errorf("reading column count: %w", err)
	}
	namesSize, err := r.ReadUint32()
	if err != nil {
		return h, fmt.Errorf("reading column names size: %w", err)
	}
	names, err := r.ReadASCII(int(namesSize))
	if err != nil {
		return h, fmt.Errorf("reading column names: %w", err)
	}
	if namesSize > 0 {
		h.ColumnNames = strings.Split(names, "\t")
	}

	h.PosDataStart = r.Pos()

	if version == 1 {
		h.Geometry = v1Geometry(h)
	}

	return h, nil
}

// v1Geometry derives the fixed-row layout of a version 1 file. Source and
// pipeline rows carry a 4-byte sample id followed by doubles; plugin rows
// are doubles only.
func v1Geometry(h *Header) *Geometry {
	g := &Geometry{}
	cols := int64(h.NumColumns)
	if h.Kind() == KindPlugin {
		g.RowSize = cols * 8
	} else {
		g.RowSize = 4 + (cols-1)*8
	}
	if g.RowSize > 0 {
		g.NumRows = (h.FileSize - h.PosDataStart) / g.RowSize
	}
	return g
}

// Kind derives the file kind from the code tag, case-insensitively.
func (h *Header) Kind() Kind {
	switch strings.ToLower(h.Code) {
	case "src":
		return KindSource
	case "dat":
		return KindPipeline
	default:
		return KindPlugin
	}
}

// NumStreams returns the declared stream count (0 for version 1 files).
func (h *Header) NumStreams() int {
	return len(h.Streams)
}

// SourceInputTime reports whether sample packages carry a source input
// timestamp. Only source files of version 3 can.
func (h *Header) SourceInputTime() bool {
	return h.IncludesSourceInputTime != nil && *h.IncludesSourceInputTime
}

// HeaderColumns returns the number of bookkeeping columns at the start of
// each decoded row: sample id and elapsed milliseconds, plus the source
// input timestamp when present.
func (h *Header) HeaderColumns() int {
	if h.Kind() == KindSource && h.SourceInputTime() {
		return 3
	}
	return 2
}

// MaxSamplesPerPackage returns the largest per-package sample count any
// declared stream wants to log. Zero for version 1 files.
func (h *Header) MaxSamplesPerPackage() uint16 {
	var max uint16
	for _, s := range h.Streams {
		if s.SamplesPerPackage > max {
			max = s.SamplesPerPackage
		}
	}
	return max
}

// DataColumns returns labels for the columns of the decoded sample matrix.
// For version 1 files these are the preamble's column names verbatim; for
// version 2/3 files the bookkeeping columns are followed by one label per
// stream.
func (h *Header) DataColumns() []string {
	if h.Version == 1 {
		return h.ColumnNames
	}
	cols := make([]string, 0, h.HeaderColumns()+len(h.Streams))
	cols = append(cols, "sample", "elapsed")
	if h.HeaderColumns() == 3 {
		cols = append(cols, "source_input_time")
	}
	names := h.ColumnNames
	// Preambles that label the bookkeeping columns list two extra names.
	if len(names) == len(h.Streams)+2 {
		names = names[2:]
	}
	for i := range h.Streams {
		if i < len(names) {
			cols = append(cols, names[i])
		} else {
			cols = append(cols, fmt.Sprintf("stream%d", i))
		}
	}
	return cols
}
