package shp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/beetlebugorg/shapelib/internal/wire"
)

// Append as the index argument of WriteShape adds a new record.
const Append = -1

// WriteShape writes s as record i and returns the index written.
//
// i may be an existing record, Append, or Len() to append. An existing
// record is rewritten in place when the new body fits in the old one and
// moved to the end of the .shp otherwise. The shape type must be TypeNull
// or the file's type. The file bounds grow to cover s.
func (h *Handle) WriteShape(i int, s *Shape) (int, error) {
	if h.closed {
		return -1, ErrClosed
	}
	if h.access != ReadWrite {
		return -1, ErrReadOnly
	}
	if s.Type != TypeNull && s.Type != h.typ {
		return -1, formatErr(h.shpName, "cannot write %v record into %v file", s.Type, h.typ)
	}
	n := len(h.offsets)
	if i == Append {
		i = n
	}
	if i < 0 || i > n {
		return -1, &IndexError{Index: i, Count: n}
	}

	rec, err := encodeBody(h.wbuf[:0], s)
	if err != nil {
		return -1, formatErr(h.shpName, "record %d: %v", i, err)
	}
	h.wbuf = rec
	size := int64(len(rec) - recordHeaderSize)
	wire.PutInt32BE(rec[0:], int32(i+1))
	wire.PutInt32BE(rec[4:], int32(size/2))

	off := h.fileSize
	inPlace := i < n && h.sizes[i] >= size
	if inPlace {
		off = h.offsets[i]
	} else if off+int64(len(rec)) > maxFileSize {
		return -1, fmt.Errorf("%s: record %d: %w", h.shpName, i, ErrFileTooLarge)
	}
	if err := writeAt(h.shp, h.shpName, off, rec); err != nil {
		return -1, err
	}

	if i == n {
		h.offsets = append(h.offsets, off)
		h.sizes = append(h.sizes, size)
	} else {
		h.offsets[i] = off
		h.sizes[i] = size
	}
	if end := off + int64(len(rec)); end > h.fileSize {
		h.fileSize = end
	}
	h.expandBounds(s)
	h.updated = true
	return i, nil
}

// expandBounds grows the file bounds by the vertex extents of s. The
// first non-empty shape replaces the empty initial bounds.
func (h *Handle) expandBounds(s *Shape) {
	if s.Type == TypeNull || len(s.X) == 0 {
		return
	}
	b := extents(s)
	if !h.boxSet {
		h.box = b
		h.boxSet = true
		return
	}
	h.box = h.box.Union(b)
}

// encodeBody appends a record header placeholder and the record body of
// s to b.
func encodeBody(b []byte, s *Shape) ([]byte, error) {
	n := len(s.X)
	if len(s.Y) != n {
		return nil, fmt.Errorf("%d X values but %d Y values", n, len(s.Y))
	}
	if s.Z != nil && len(s.Z) != n {
		return nil, fmt.Errorf("%d Z values for %d vertices", len(s.Z), n)
	}
	if s.MeasureIsUsed && len(s.M) != n {
		return nil, fmt.Errorf("%d M values for %d vertices", len(s.M), n)
	}

	b = append(b, make([]byte, recordHeaderSize)...)
	b = appendInt32(b, int32(s.Type))

	switch s.Type.family() {
	case familyNull:
	case familyPoint:
		if n != 1 {
			return nil, fmt.Errorf("%v needs exactly one vertex, has %d", s.Type, n)
		}
		b = appendFloat64(b, s.X[0])
		b = appendFloat64(b, s.Y[0])
		if s.Type.HasZ() {
			b = appendFloat64(b, valueAt(s.Z, 0))
		}
		if s.MeasureIsUsed && s.Type.writesMeasure() {
			b = appendFloat64(b, s.M[0])
		}
	case familyMultiPoint:
		b = appendBox2D(b, s.Box)
		b = appendInt32(b, int32(n))
		b = appendXY(b, s)
		b = appendZM(b, s)
	case familyPoly:
		if reason := checkParts(s.Parts, n); reason != "" {
			return nil, errors.New(reason)
		}
		b = appendBox2D(b, s.Box)
		b = appendInt32(b, int32(len(s.Parts)))
		b = appendInt32(b, int32(n))
		for _, p := range s.Parts {
			b = appendInt32(b, int32(p.Start))
		}
		if s.Type == TypeMultiPatch {
			for _, p := range s.Parts {
				b = appendInt32(b, int32(p.Type))
			}
		}
		b = appendXY(b, s)
		b = appendZM(b, s)
	default:
		return nil, fmt.Errorf("unsupported shape type %d", int32(s.Type))
	}
	return b, nil
}

func appendXY(b []byte, s *Shape) []byte {
	for v := range s.X {
		b = appendFloat64(b, s.X[v])
		b = appendFloat64(b, s.Y[v])
	}
	return b
}

// appendZM writes the Z block of Z types and the M block when measures
// are in use and the type writes them.
func appendZM(b []byte, s *Shape) []byte {
	if s.Type.HasZ() {
		b = appendFloat64(b, s.Box.Min[AxisZ])
		b = appendFloat64(b, s.Box.Max[AxisZ])
		for v := range s.X {
			b = appendFloat64(b, valueAt(s.Z, v))
		}
	}
	if s.MeasureIsUsed && s.Type.writesMeasure() {
		b = appendFloat64(b, s.Box.Min[AxisM])
		b = appendFloat64(b, s.Box.Max[AxisM])
		for _, m := range s.M {
			b = appendFloat64(b, m)
		}
	}
	return b
}

func appendBox2D(b []byte, box Box) []byte {
	b = appendFloat64(b, box.Min[AxisX])
	b = appendFloat64(b, box.Min[AxisY])
	b = appendFloat64(b, box.Max[AxisX])
	return appendFloat64(b, box.Max[AxisY])
}

func appendInt32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func appendFloat64(b []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
}

func valueAt(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}
