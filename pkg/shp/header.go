package shp

import (
	"errors"
	"io/fs"
	"math"
	"path/filepath"
	"strings"

	"github.com/beetlebugorg/shapelib/internal/wire"
	"github.com/beetlebugorg/shapelib/pkg/hooks"
)

const (
	headerSize       = 100
	recordHeaderSize = 8
	indexEntrySize   = 8
	fileCode         = 9994
	fileVersion      = 1000

	// maxFileSize is the largest .shp the 32-bit length field describes
	// without wrapping on common readers.
	maxFileSize = math.MaxUint32
)

// fileHeader is the 100-byte header shared by .shp and .shx files.
//
//	0   file code 9994      int32 BE
//	4   unused              5 x int32
//	24  file length, words  int32 BE
//	28  version 1000        int32 LE
//	32  shape type          int32 LE
//	36  Xmin Ymin Xmax Ymax Zmin Zmax Mmin Mmax, float64 LE
type fileHeader struct {
	Length int64 // bytes
	Type   ShapeType
	Box    Box
}

func decodeHeader(path string, b []byte) (fileHeader, error) {
	if wire.Int32BE(b[0:]) != fileCode {
		return fileHeader{}, formatErr(path, "bad file code % x", b[0:4])
	}
	h := fileHeader{
		Length: int64(uint32(wire.Int32BE(b[24:]))) * 2,
		Type:   ShapeType(wire.Int32LE(b[32:])),
	}
	if h.Length < headerSize {
		return fileHeader{}, formatErr(path, "file length %d shorter than header", h.Length)
	}
	h.Box.Min[AxisX] = wire.Float64LE(b[36:])
	h.Box.Min[AxisY] = wire.Float64LE(b[44:])
	h.Box.Max[AxisX] = wire.Float64LE(b[52:])
	h.Box.Max[AxisY] = wire.Float64LE(b[60:])
	h.Box.Min[AxisZ] = wire.Float64LE(b[68:])
	h.Box.Max[AxisZ] = wire.Float64LE(b[76:])
	h.Box.Min[AxisM] = wire.Float64LE(b[84:])
	h.Box.Max[AxisM] = wire.Float64LE(b[92:])
	return h, nil
}

func (h fileHeader) encode(b []byte) {
	clear(b[:headerSize])
	wire.PutInt32BE(b[0:], fileCode)
	wire.PutInt32BE(b[24:], int32(uint32(h.Length/2)))
	wire.PutInt32LE(b[28:], fileVersion)
	wire.PutInt32LE(b[32:], int32(h.Type))
	wire.PutFloat64LE(b[36:], h.Box.Min[AxisX])
	wire.PutFloat64LE(b[44:], h.Box.Min[AxisY])
	wire.PutFloat64LE(b[52:], h.Box.Max[AxisX])
	wire.PutFloat64LE(b[60:], h.Box.Max[AxisY])
	wire.PutFloat64LE(b[68:], h.Box.Min[AxisZ])
	wire.PutFloat64LE(b[76:], h.Box.Max[AxisZ])
	wire.PutFloat64LE(b[84:], h.Box.Min[AxisM])
	wire.PutFloat64LE(b[92:], h.Box.Max[AxisM])
}

// encodeIndex renders a complete .shx: header followed by one
// (offset, content length) pair in 16-bit words per record.
func encodeIndex(hdr fileHeader, offsets, sizes []int64) []byte {
	b := make([]byte, headerSize+indexEntrySize*len(offsets))
	hdr.Length = int64(len(b))
	hdr.encode(b)
	for i := range offsets {
		p := b[headerSize+indexEntrySize*i:]
		wire.PutInt32BE(p[0:], int32(uint32(offsets[i]/2)))
		wire.PutInt32BE(p[4:], int32(uint32(sizes[i]/2)))
	}
	return b
}

// basePath strips a .shp or .shx extension in any case.
func basePath(path string) string {
	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".shp", ".shx":
		return strings.TrimSuffix(path, ext)
	}
	return path
}

// openSibling opens base+ext, falling back to the upper-case extension.
// The returned name is the one opened, or the lower-case one on failure.
func openSibling(h hooks.Hooks, base, ext string, write bool) (hooks.File, string, error) {
	name := base + ext
	f, err := h.Open(name, write)
	if err == nil {
		return f, name, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, name, err
	}
	upper := base + strings.ToUpper(ext)
	if f, uerr := h.Open(upper, write); uerr == nil {
		return f, upper, nil
	}
	return nil, name, err
}
