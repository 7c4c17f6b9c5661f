package shp

import (
	"encoding/binary"
	"io/fs"
	"testing"

	"github.com/beetlebugorg/shapelib/pkg/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArcs creates base.shp/.shx holding arcs of 2, 5 and 3 vertices.
func writeArcs(t *testing.T, opts OpenOptions, base string) {
	t.Helper()
	h, err := CreateWithOptions(base, TypeArc, opts)
	require.NoError(t, err)
	for i, n := range []int{2, 5, 3} {
		x := make([]float64, n)
		y := make([]float64, n)
		for v := range x {
			x[v] = float64(i*10 + v)
			y[v] = float64(v)
		}
		_, err := h.WriteShape(Append, mustShape(t, TypeArc, i, nil, x, y, nil, nil))
		require.NoError(t, err)
	}
	require.NoError(t, h.Close())
}

// scanPairs walks a raw .shp independently of the codec and returns the
// (offset, content length) pairs in 16-bit words.
func scanPairs(t *testing.T, shp []byte) [][2]uint32 {
	t.Helper()
	var pairs [][2]uint32
	for off := headerSize; off+recordHeaderSize <= len(shp); {
		words := binary.BigEndian.Uint32(shp[off+4:])
		pairs = append(pairs, [2]uint32{uint32(off / 2), words})
		off += recordHeaderSize + int(words)*2
	}
	return pairs
}

func shxPairs(shx []byte) [][2]uint32 {
	var pairs [][2]uint32
	for p := headerSize; p+indexEntrySize <= len(shx); p += indexEntrySize {
		pairs = append(pairs, [2]uint32{
			binary.BigEndian.Uint32(shx[p:]),
			binary.BigEndian.Uint32(shx[p+4:]),
		})
	}
	return pairs
}

func TestRestoreIndexMatchesScan(t *testing.T) {
	opts, m, _ := memOptions(t)
	writeArcs(t, opts, "lines")

	shp, err := m.ReadFile("lines.shp")
	require.NoError(t, err)
	orig, err := m.ReadFile("lines.shx")
	require.NoError(t, err)
	require.NoError(t, m.Remove("lines.shx"))

	n, err := RestoreIndex("lines.shp", opts)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	restored, err := m.ReadFile("lines.shx")
	require.NoError(t, err)
	assert.Equal(t, scanPairs(t, shp), shxPairs(restored))
	assert.Equal(t, orig, restored)
	assert.Equal(t, uint32(len(restored)/2), binary.BigEndian.Uint32(restored[24:]))
}

func TestOpenMissingIndex(t *testing.T) {
	opts, m, _ := memOptions(t)
	writeArcs(t, opts, "lines")
	require.NoError(t, m.Remove("lines.shx"))

	_, err := OpenWithOptions("lines", ReadOnly, opts)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	opts.RestoreIndex = true
	h, err := OpenWithOptions("lines", ReadOnly, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Len())
	s, err := h.ReadShape(1)
	require.NoError(t, err)
	assert.Equal(t, 5, s.NumVertices())
	require.NoError(t, h.Close())
	assert.False(t, m.Exists("lines.shx"), "read-only restore stays in memory")

	h, err = OpenWithOptions("lines", ReadWrite, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Len())
	require.NoError(t, h.Close())

	shp, err := m.ReadFile("lines.shp")
	require.NoError(t, err)
	shx, err := m.ReadFile("lines.shx")
	require.NoError(t, err)
	assert.Equal(t, scanPairs(t, shp), shxPairs(shx))
	assert.Len(t, shxPairs(shx), 3)
}

func TestOpenCorruptIndexRestores(t *testing.T) {
	opts, m, msgs := memOptions(t)
	writeArcs(t, opts, "lines")

	shx, err := m.ReadFile("lines.shx")
	require.NoError(t, err)
	binary.BigEndian.PutUint32(shx[headerSize:], 0x7fffffff)
	m.WriteFile("lines.shx", shx)

	_, err = OpenWithOptions("lines", ReadOnly, opts)
	assert.ErrorIs(t, err, ErrFormat)

	opts.RestoreIndex = true
	h, err := OpenWithOptions("lines", ReadOnly, opts)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, 3, h.Len())
	assert.NotEmpty(t, *msgs)
}

func TestRestoreStopsAtTruncatedRecord(t *testing.T) {
	opts, m, msgs := memOptions(t)
	writeArcs(t, opts, "lines")

	shp, err := m.ReadFile("lines.shp")
	require.NoError(t, err)
	m.WriteFile("lines.shp", shp[:len(shp)-10])

	n, err := RestoreIndex("lines", opts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotEmpty(t, *msgs)
}

func TestReadRejectsBadPartStart(t *testing.T) {
	opts, m, _ := memOptions(t)
	writeArcs(t, opts, "lines")

	shp, err := m.ReadFile("lines.shp")
	require.NoError(t, err)
	// first part start of record 0
	binary.LittleEndian.PutUint32(shp[headerSize+recordHeaderSize+44:], 99)
	m.WriteFile("lines.shp", shp)

	h, err := OpenWithOptions("lines", ReadOnly, opts)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.ReadShape(0)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Reason, "record 0")

	s, err := h.ReadShape(1)
	require.NoError(t, err)
	assert.Equal(t, 5, s.NumVertices())
}

func TestReadRejectsOversizedCounts(t *testing.T) {
	opts, m, _ := memOptions(t)
	writeArcs(t, opts, "lines")

	shp, err := m.ReadFile("lines.shp")
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(shp[headerSize+recordHeaderSize+40:], maxVertices+1)
	m.WriteFile("lines.shp", shp)

	h, err := OpenWithOptions("lines", ReadOnly, opts)
	require.NoError(t, err)
	defer h.Close()
	_, err = h.ReadShape(0)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestWriteFailureSurfacesIOError(t *testing.T) {
	ffs := hooks.NewFaultyFS(nil)
	ffs.AddRule(".shp", hooks.Fault{FailAfterBytes: headerSize})
	opts := DefaultOpenOptions()
	opts.Hooks = hooks.Discard()
	opts.Hooks.FS = ffs

	h, err := CreateWithOptions("faulty", TypePoint, opts)
	require.NoError(t, err)

	_, err = h.WriteShape(Append, mustShape(t, TypePoint, 0, nil, []float64{1}, []float64{1}, nil, nil))
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, hooks.ErrInjected)
	assert.Equal(t, 0, h.Len())

	// nothing reached the file, so Close has no header to flush
	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Close(), ErrClosed)
}

func TestCreateFailureSurfacesIOError(t *testing.T) {
	ffs := hooks.NewFaultyFS(nil)
	ffs.AddRule(".shx", hooks.Fault{FailOnOpen: true})
	opts := DefaultOpenOptions()
	opts.Hooks.FS = ffs

	_, err := CreateWithOptions("faulty", TypePoint, opts)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, hooks.ErrInjected)
}
