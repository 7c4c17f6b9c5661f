package shp

import (
	"errors"
	"fmt"
	"io"

	"github.com/beetlebugorg/shapelib/internal/wire"
)

// Sanity caps checked before any per-record allocation.
const (
	maxVertices = 50_000_000
	maxParts    = 10_000_000
)

// ReadShape decodes record i into a freshly allocated Shape owned by the
// caller.
func (h *Handle) ReadShape(i int) (*Shape, error) {
	s := &Shape{}
	if err := h.readInto(i, s, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// Borrowed is a record decoded into the handle's single reusable buffer.
//
// It stays valid until the next ReadShapeBorrowed call on the same handle
// or until the handle is closed; after that Shape returns ErrStaleShape.
// Use Clone for a copy that outlives the next read.
type Borrowed struct {
	h   *Handle
	gen uint64
}

// ReadShapeBorrowed decodes record i without allocating once the handle's
// buffer has grown to fit. Any Borrowed returned earlier is invalidated.
func (h *Handle) ReadShapeBorrowed(i int) (Borrowed, error) {
	h.gen++
	if err := h.readInto(i, &h.scratch.shape, &h.scratch); err != nil {
		return Borrowed{}, err
	}
	return Borrowed{h: h, gen: h.gen}, nil
}

// Shape returns the borrowed record. The pointer must not be retained past
// the next read on the handle.
func (b Borrowed) Shape() (*Shape, error) {
	if b.h == nil || b.h.closed || b.gen != b.h.gen {
		return nil, ErrStaleShape
	}
	return &b.h.scratch.shape, nil
}

// Clone returns a caller-owned copy of the borrowed record.
func (b Borrowed) Clone() (*Shape, error) {
	s, err := b.Shape()
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (h *Handle) readInto(i int, s *Shape, sc *scratchShape) error {
	if h.closed {
		return ErrClosed
	}
	if i < 0 || i >= len(h.offsets) {
		return &IndexError{Index: i, Count: len(h.offsets)}
	}
	off, size := h.offsets[i], h.sizes[i]
	if size < 4 {
		return formatErr(h.shpName, "record %d: content length %d too short", i, size)
	}

	h.buf = wire.Grow(h.buf, int(recordHeaderSize+size))
	if _, err := h.shp.Seek(off, io.SeekStart); err != nil {
		return ioErr("seek", h.shpName, err)
	}
	if _, err := io.ReadFull(h.shp, h.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return formatErr(h.shpName, "record %d truncated", i)
		}
		return ioErr("read", h.shpName, err)
	}
	if n := int64(uint32(wire.Int32BE(h.buf[4:]))) * 2; n != size {
		return formatErr(h.shpName, "record %d: content length %d disagrees with index size %d", i, n, size)
	}

	if err := decodeShape(h.buf[recordHeaderSize:], i, s, sc); err != nil {
		return &FormatError{Path: h.shpName, Reason: fmt.Sprintf("record %d: %v", i, err)}
	}
	return nil
}

// decodeShape dispatches on the record's shape type tag.
func decodeShape(b []byte, id int, s *Shape, sc *scratchShape) error {
	typ := ShapeType(wire.Int32LE(b))
	*s = Shape{Type: typ, ID: id}

	switch typ.family() {
	case familyNull:
		return nil
	case familyPoint:
		return decodePoint(b, s, sc)
	case familyMultiPoint:
		return decodeMultiPoint(b, s, sc)
	case familyPoly:
		return decodePoly(b, s, sc)
	default:
		return fmt.Errorf("unsupported shape type %d", int32(typ))
	}
}

// Point body: type, X, Y, [Z], [M].
func decodePoint(b []byte, s *Shape, sc *scratchShape) error {
	need := 20
	if s.Type.HasZ() {
		need += 8
	}
	if len(b) < need {
		return fmt.Errorf("%d bytes too short for %v", len(b), s.Type)
	}
	s.X = sc.xs(1)
	s.Y = sc.ys(1)
	s.X[0] = wire.Float64LE(b[4:])
	s.Y[0] = wire.Float64LE(b[12:])
	off := 20
	if s.Type.HasZ() {
		s.Z = sc.zs(1)
		s.Z[0] = wire.Float64LE(b[off:])
		off += 8
	}
	if s.Type.HasM() && len(b) >= off+8 {
		s.M = sc.ms(1)
		s.M[0] = wire.Float64LE(b[off:])
		s.MeasureIsUsed = true
	}
	s.ComputeExtents()
	return nil
}

// MultiPoint body: type, bbox, nPoints, points, [Z range, Z], [M range, M].
func decodeMultiPoint(b []byte, s *Shape, sc *scratchShape) error {
	if len(b) < 40 {
		return fmt.Errorf("%d bytes too short for %v", len(b), s.Type)
	}
	n := int(wire.Int32LE(b[36:]))
	if n < 0 || n > maxVertices {
		return fmt.Errorf("vertex count %d out of range", n)
	}
	need := 40 + 16*n
	if s.Type.HasZ() {
		need += 16 + 8*n
	}
	if len(b) < need {
		return fmt.Errorf("%d bytes, need %d for %d vertices", len(b), need, n)
	}
	decodeBox2D(b[4:], &s.Box)
	off := decodeXY(b, 40, n, s, sc)
	decodeZM(b, off, n, s, sc)
	return nil
}

// Poly body: type, bbox, nParts, nPoints, part starts, [part types],
// points, [Z range, Z], [M range, M].
func decodePoly(b []byte, s *Shape, sc *scratchShape) error {
	if len(b) < 44 {
		return fmt.Errorf("%d bytes too short for %v", len(b), s.Type)
	}
	nParts := int(wire.Int32LE(b[36:]))
	n := int(wire.Int32LE(b[40:]))
	if nParts < 0 || nParts > maxParts || n < 0 || n > maxVertices {
		return fmt.Errorf("%d parts and %d vertices out of range", nParts, n)
	}
	need := 44 + 4*nParts + 16*n
	if s.Type == TypeMultiPatch {
		need += 4 * nParts
	}
	if s.Type.HasZ() {
		need += 16 + 8*n
	}
	if len(b) < need {
		return fmt.Errorf("%d bytes, need %d for %d parts and %d vertices", len(b), need, nParts, n)
	}

	decodeBox2D(b[4:], &s.Box)
	s.Parts = sc.partBuf(nParts)
	off := 44
	for p := range s.Parts {
		s.Parts[p] = Part{Start: int(wire.Int32LE(b[off+4*p:])), Type: PartRing}
	}
	off += 4 * nParts
	if s.Type == TypeMultiPatch {
		for p := range s.Parts {
			s.Parts[p].Type = PartType(wire.Int32LE(b[off+4*p:]))
		}
		off += 4 * nParts
	}
	if reason := checkParts(s.Parts, n); reason != "" {
		return errors.New(reason)
	}

	off = decodeXY(b, off, n, s, sc)
	decodeZM(b, off, n, s, sc)
	return nil
}

func decodeBox2D(b []byte, box *Box) {
	box.Min[AxisX] = wire.Float64LE(b[0:])
	box.Min[AxisY] = wire.Float64LE(b[8:])
	box.Max[AxisX] = wire.Float64LE(b[16:])
	box.Max[AxisY] = wire.Float64LE(b[24:])
}

func decodeXY(b []byte, off, n int, s *Shape, sc *scratchShape) int {
	s.X = sc.xs(n)
	s.Y = sc.ys(n)
	for v := 0; v < n; v++ {
		s.X[v] = wire.Float64LE(b[off:])
		s.Y[v] = wire.Float64LE(b[off+8:])
		off += 16
	}
	return off
}

// decodeZM reads the Z block of Z types (length already checked) and the
// optional trailing M block.
func decodeZM(b []byte, off, n int, s *Shape, sc *scratchShape) {
	if s.Type.HasZ() {
		s.Box.Min[AxisZ] = wire.Float64LE(b[off:])
		s.Box.Max[AxisZ] = wire.Float64LE(b[off+8:])
		s.Z = sc.zs(n)
		readFloats(b[off+16:], s.Z)
		off += 16 + 8*n
	}
	if s.Type.HasM() && len(b) >= off+16+8*n {
		s.Box.Min[AxisM] = wire.Float64LE(b[off:])
		s.Box.Max[AxisM] = wire.Float64LE(b[off+8:])
		s.M = sc.ms(n)
		readFloats(b[off+16:], s.M)
		s.MeasureIsUsed = true
	}
}

func readFloats(b []byte, dst []float64) {
	for i := range dst {
		dst[i] = wire.Float64LE(b[8*i:])
	}
}

// checkParts validates part starts against the vertex count: each start
// lies in [0, n) and starts never decrease.
func checkParts(parts []Part, n int) string {
	for i, p := range parts {
		if p.Start < 0 || (n > 0 && p.Start >= n) || (n == 0 && p.Start != 0) {
			return fmt.Sprintf("part %d starts at %d outside %d vertices", i, p.Start, n)
		}
		if i > 0 && p.Start < parts[i-1].Start {
			return fmt.Sprintf("part %d starts at %d before part %d at %d", i, p.Start, i-1, parts[i-1].Start)
		}
	}
	return ""
}

// scratchShape backs the borrowed read path. A nil *scratchShape
// allocates fresh slices instead.
type scratchShape struct {
	shape      Shape
	parts      []Part
	x, y, z, m []float64
}

func (sc *scratchShape) xs(n int) []float64 {
	if sc == nil {
		return make([]float64, n)
	}
	sc.x = resize(sc.x, n)
	return sc.x
}

func (sc *scratchShape) ys(n int) []float64 {
	if sc == nil {
		return make([]float64, n)
	}
	sc.y = resize(sc.y, n)
	return sc.y
}

func (sc *scratchShape) zs(n int) []float64 {
	if sc == nil {
		return make([]float64, n)
	}
	sc.z = resize(sc.z, n)
	return sc.z
}

func (sc *scratchShape) ms(n int) []float64 {
	if sc == nil {
		return make([]float64, n)
	}
	sc.m = resize(sc.m, n)
	return sc.m
}

func (sc *scratchShape) partBuf(n int) []Part {
	if sc == nil {
		return make([]Part, n)
	}
	sc.parts = resize(sc.parts, n)
	return sc.parts
}

func resize[T any](s []T, n int) []T {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]T, n)
}
