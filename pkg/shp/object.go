package shp

import "fmt"

// NewShape builds a shape from caller-provided arrays, which are copied.
//
// For arc, polygon and multipatch types a nil parts yields a single part
// starting at vertex 0. z may be nil for Z types, in which case every Z is
// zero. m is kept only for types that may carry measures; a nil m leaves
// MeasureIsUsed unset. The bounds are computed from the vertices.
func NewShape(t ShapeType, id int, parts []Part, x, y, z, m []float64) (*Shape, error) {
	if !t.Valid() {
		return nil, formatErr("", "unsupported shape type %d", int32(t))
	}
	s := &Shape{Type: t, ID: id}
	if t == TypeNull {
		return s, nil
	}

	n := len(x)
	if len(y) != n {
		return nil, formatErr("", "%d X values but %d Y values", n, len(y))
	}
	if z != nil && len(z) != n {
		return nil, formatErr("", "%d Z values for %d vertices", len(z), n)
	}
	if m != nil && len(m) != n {
		return nil, formatErr("", "%d M values for %d vertices", len(m), n)
	}

	if t.family() == familyPoly {
		if len(parts) == 0 {
			s.Parts = []Part{{Start: 0, Type: PartRing}}
		} else {
			if parts[0].Start != 0 {
				return nil, formatErr("", "first part starts at %d, not 0", parts[0].Start)
			}
			s.Parts = cloneSlice(parts)
			if t != TypeMultiPatch {
				for i := range s.Parts {
					s.Parts[i].Type = PartRing
				}
			}
		}
		if reason := checkParts(s.Parts, n); reason != "" {
			return nil, formatErr("", "%s", reason)
		}
	}

	s.X = cloneSlice(x)
	s.Y = cloneSlice(y)
	if s.X == nil {
		s.X, s.Y = []float64{}, []float64{}
	}
	if t.HasZ() {
		if z != nil {
			s.Z = cloneSlice(z)
		} else {
			s.Z = make([]float64, n)
		}
	}
	if t.HasM() && m != nil {
		s.M = cloneSlice(m)
		s.MeasureIsUsed = true
	}
	s.ComputeExtents()
	return s, nil
}

// NewSimpleShape builds a single-part shape with no measures and ID -1.
func NewSimpleShape(t ShapeType, x, y, z []float64) (*Shape, error) {
	return NewShape(t, -1, nil, x, y, z, nil)
}

// ComputeExtents recomputes Box from the vertices. Axes without values
// are left at zero.
func (s *Shape) ComputeExtents() {
	s.Box = extents(s)
}

func extents(s *Shape) Box {
	var b Box
	if len(s.X) == 0 {
		return b
	}
	axes := [4][]float64{s.X, s.Y, s.Z, nil}
	if s.MeasureIsUsed {
		axes[AxisM] = s.M
	}
	for a, vals := range axes {
		if len(vals) == 0 {
			continue
		}
		b.Min[a], b.Max[a] = vals[0], vals[0]
		for _, v := range vals[1:] {
			if v < b.Min[a] {
				b.Min[a] = v
			}
			if v > b.Max[a] {
				b.Max[a] = v
			}
		}
	}
	return b
}

// String summarizes the shape for diagnostics.
func (s *Shape) String() string {
	return fmt.Sprintf("%v #%d (%d parts, %d vertices)", s.Type, s.ID, len(s.Parts), len(s.X))
}

// Rewind orients polygon rings so outer rings run clockwise and holes run
// counter-clockwise. A ring is a hole when a point on its first edge lies
// inside an odd number of the shape's other rings. Rewind reports whether
// any ring was reversed; non-polygon shapes are left unchanged.
func (s *Shape) Rewind() bool {
	if !s.Type.IsPolygon() {
		return false
	}
	changed := false
	for r := range s.Parts {
		start, end := s.PartRange(r)
		if end-start < 3 {
			continue
		}

		px := (s.X[start] + s.X[start+1]) / 2
		py := (s.Y[start] + s.Y[start+1]) / 2
		inner := false
		for o := range s.Parts {
			if o == r {
				continue
			}
			ostart, oend := s.PartRange(o)
			if pointInRing(s.X, s.Y, ostart, oend, px, py) {
				inner = !inner
			}
		}

		area := signedArea(s.X, s.Y, start, end)
		if (area > 0 && !inner) || (area < 0 && inner) {
			s.reverse(start, end)
			changed = true
		}
	}
	return changed
}

// signedArea is twice the shoelace area of a ring; positive when the ring
// runs counter-clockwise.
func signedArea(x, y []float64, start, end int) float64 {
	var sum float64
	for i := start; i < end; i++ {
		j := i + 1
		if j == end {
			j = start
		}
		sum += x[i]*y[j] - x[j]*y[i]
	}
	return sum
}

// pointInRing is the even-odd crossing test.
func pointInRing(x, y []float64, start, end int, px, py float64) bool {
	inside := false
	for i, j := start, end-1; i < end; j, i = i, i+1 {
		if (y[i] > py) != (y[j] > py) &&
			px < (x[j]-x[i])*(py-y[i])/(y[j]-y[i])+x[i] {
			inside = !inside
		}
	}
	return inside
}

// reverse flips a ring's vertex order. A closed ring keeps its shared
// first and last vertex in place.
func (s *Shape) reverse(start, end int) {
	lo, hi := start, end-1
	if s.X[lo] == s.X[hi] && s.Y[lo] == s.Y[hi] {
		lo++
		hi--
	}
	for ; lo < hi; lo, hi = lo+1, hi-1 {
		s.X[lo], s.X[hi] = s.X[hi], s.X[lo]
		s.Y[lo], s.Y[hi] = s.Y[hi], s.Y[lo]
		if len(s.Z) == len(s.X) {
			s.Z[lo], s.Z[hi] = s.Z[hi], s.Z[lo]
		}
		if len(s.M) == len(s.X) {
			s.M[lo], s.M[hi] = s.M[hi], s.M[lo]
		}
	}
}
