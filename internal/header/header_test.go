package header

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binpkg "github.com/palmtree-bci/go-palmtree/internal/binary"
)

// preamble builds run data file preambles for tests.
type preamble struct {
	buf bytes.Buffer
}

func (p *preamble) u8(v uint8)     { p.buf.WriteByte(v) }
func (p *preamble) u16(v uint16)   { binary.Write(&p.buf, binary.LittleEndian, v) }
func (p *preamble) u32(v uint32)   { binary.Write(&p.buf, binary.LittleEndian, v) }
func (p *preamble) u64(v uint64)   { binary.Write(&p.buf, binary.LittleEndian, v) }
func (p *preamble) f64(v float64)  { binary.Write(&p.buf, binary.LittleEndian, v) }
func (p *preamble) str(s string)   { p.buf.WriteString(s) }
func (p *preamble) names(s string) { p.u32(uint32(len(s))); p.str(s) }
func (p *preamble) bytes() []byte  { return p.buf.Bytes() }
func (p *preamble) size() int64    { return int64(p.buf.Len()) }

func parse(t *testing.T, p *preamble) (*Header, error) {
	t.Helper()
	r := binpkg.NewReader(bytes.NewReader(p.bytes()))
	return Read(r, p.size())
}

func TestReadVersion1(t *testing.T) {
	p := &preamble{}
	p.u32(1)
	p.str("dat")
	p.f64(512.0) // sample rate
	p.u32(0)     // playback streams
	p.u32(3)     // columns
	p.names("sample\telapsed\tch1")

	h, err := parse(t, p)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), h.Version)
	assert.Equal(t, "dat", h.Code)
	assert.Equal(t, KindPipeline, h.Kind())
	assert.Equal(t, 512.0, h.SampleRate)
	assert.Equal(t, uint32(3), h.NumColumns)
	assert.Equal(t, []string{"sample", "elapsed", "ch1"}, h.ColumnNames)
	assert.Equal(t, p.size(), h.PosDataStart)

	// version/kind gated fields must be absent
	assert.Nil(t, h.Epochs)
	assert.Nil(t, h.IncludesSourceInputTime)
	assert.Nil(t, h.Streams)
	assert.Nil(t, h.Totals)

	require.NotNil(t, h.Geometry)
	assert.Equal(t, int64(4+2*8), h.Geometry.RowSize)
	assert.Equal(t, int64(0), h.Geometry.NumRows)
}

func TestReadVersion1PluginRowSize(t *testing.T) {
	p := &preamble{}
	p.u32(1)
	p.str("xyz")
	p.f64(0)
	p.u32(0)
	p.u32(4)
	p.names("a\tb\tc\td")
	// two full rows plus a trailing partial row
	for i := 0; i < 9; i++ {
		p.f64(float64(i))
	}

	h, err := parse(t, p)
	require.NoError(t, err)

	assert.Equal(t, KindPlugin, h.Kind())
	require.NotNil(t, h.Geometry)
	assert.Equal(t, int64(4*8), h.Geometry.RowSize)
	assert.Equal(t, int64(2), h.Geometry.NumRows)
}

func TestReadVersion2(t *testing.T) {
	p := &preamble{}
	p.u32(2)
	p.str("dat")
	p.u64(1000) // run start epoch
	p.u64(1001) // file start epoch
	p.f64(256.0)
	p.u32(1) // playback streams
	p.u32(2) // streams
	p.u8(1)
	p.u16(1)
	p.u8(2)
	p.u16(4)
	p.u32(4)
	p.names("sample\telapsed\tch1\tch2")

	h, err := parse(t, p)
	require.NoError(t, err)

	require.NotNil(t, h.Epochs)
	assert.Equal(t, uint64(1000), h.Epochs.RunStart)
	assert.Equal(t, uint64(1001), h.Epochs.FileStart)

	// the flag only exists for source files of version 3
	assert.Nil(t, h.IncludesSourceInputTime)
	assert.False(t, h.SourceInputTime())

	require.Len(t, h.Streams, 2)
	assert.Equal(t, Stream{DataType: 1, SamplesPerPackage: 1}, h.Streams[0])
	assert.Equal(t, Stream{DataType: 2, SamplesPerPackage: 4}, h.Streams[1])
	assert.Equal(t, uint16(4), h.MaxSamplesPerPackage())

	assert.Nil(t, h.Geometry)
	assert.Equal(t, 2, h.HeaderColumns())
}

func TestReadVersion3SourceInputTime(t *testing.T) {
	for _, flag := range []uint8{0, 1} {
		p := &preamble{}
		p.u32(3)
		p.str("src")
		p.u64(0)
		p.u64(0)
		p.u8(flag)
		p.f64(128.0)
		p.u32(0)
		p.u32(1)
		p.u8(0)
		p.u16(1)
		p.u32(3)
		p.names("sample\telapsed\tch1")

		h, err := parse(t, p)
		require.NoError(t, err)

		require.NotNil(t, h.IncludesSourceInputTime)
		assert.Equal(t, flag == 1, *h.IncludesSourceInputTime)
		assert.Equal(t, flag == 1, h.SourceInputTime())
		want := 2
		if flag == 1 {
			want = 3
		}
		assert.Equal(t, want, h.HeaderColumns())
	}
}

func TestReadVersion3PipelineHasNoInputTimeFlag(t *testing.T) {
	p := &preamble{}
	p.u32(3)
	p.str("dat")
	p.u64(0)
	p.u64(0)
	p.f64(128.0)
	p.u32(0)
	p.u32(1)
	p.u8(0)
	p.u16(1)
	p.u32(3)
	p.names("sample\telapsed\tch1")

	h, err := parse(t, p)
	require.NoError(t, err)
	assert.Nil(t, h.IncludesSourceInputTime)
}

func TestReadUnknownVersion(t *testing.T) {
	p := &preamble{}
	p.u32(9)
	p.str("dat")

	h, err := parse(t, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))

	// the partial header still reports what was read
	require.NotNil(t, h)
	assert.Equal(t, uint32(9), h.Version)
	assert.Equal(t, p.size(), h.FileSize)
}

func TestKindIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, KindSource, (&Header{Code: "SRC"}).Kind())
	assert.Equal(t, KindPipeline, (&Header{Code: "Dat"}).Kind())
	assert.Equal(t, KindPlugin, (&Header{Code: "foo"}).Kind())
}

func TestDataColumns(t *testing.T) {
	flag := true
	h := &Header{
		Version:                 3,
		Code:                    "src",
		IncludesSourceInputTime: &flag,
		Streams:                 []Stream{{}, {}},
		ColumnNames:             []string{"sample", "elapsed", "ch1", "ch2"},
	}
	assert.Equal(t,
		[]string{"sample", "elapsed", "source_input_time", "ch1", "ch2"},
		h.DataColumns())
}

func TestReadTruncatedPreamble(t *testing.T) {
	p := &preamble{}
	p.u32(2)
	p.str("dat")
	// epochs missing

	_, err := parse(t, p)
	require.Error(t, err)
}
