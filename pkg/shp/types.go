package shp

// ShapeType is the geometry kind tag stored in the file header and in
// every record.
type ShapeType int32

const (
	TypeNull        ShapeType = 0
	TypePoint       ShapeType = 1
	TypeArc         ShapeType = 3
	TypePolygon     ShapeType = 5
	TypeMultiPoint  ShapeType = 8
	TypePointZ      ShapeType = 11
	TypeArcZ        ShapeType = 13
	TypePolygonZ    ShapeType = 15
	TypeMultiPointZ ShapeType = 18
	TypePointM      ShapeType = 21
	TypeArcM        ShapeType = 23
	TypePolygonM    ShapeType = 25
	TypeMultiPointM ShapeType = 28
	TypeMultiPatch  ShapeType = 31
)

// String returns the conventional name of the shape type.
func (t ShapeType) String() string {
	switch t {
	case TypeNull:
		return "NullShape"
	case TypePoint:
		return "Point"
	case TypeArc:
		return "Arc"
	case TypePolygon:
		return "Polygon"
	case TypeMultiPoint:
		return "MultiPoint"
	case TypePointZ:
		return "PointZ"
	case TypeArcZ:
		return "ArcZ"
	case TypePolygonZ:
		return "PolygonZ"
	case TypeMultiPointZ:
		return "MultiPointZ"
	case TypePointM:
		return "PointM"
	case TypeArcM:
		return "ArcM"
	case TypePolygonM:
		return "PolygonM"
	case TypeMultiPointM:
		return "MultiPointM"
	case TypeMultiPatch:
		return "MultiPatch"
	default:
		return "UnknownShapeType"
	}
}

// family groups shape types that share a record body layout.
type family int

const (
	familyInvalid family = iota
	familyNull
	familyPoint
	familyMultiPoint
	familyPoly // arcs, polygons and multipatches
)

func (t ShapeType) family() family {
	switch t {
	case TypeNull:
		return familyNull
	case TypePoint, TypePointZ, TypePointM:
		return familyPoint
	case TypeMultiPoint, TypeMultiPointZ, TypeMultiPointM:
		return familyMultiPoint
	case TypeArc, TypeArcZ, TypeArcM, TypePolygon, TypePolygonZ, TypePolygonM, TypeMultiPatch:
		return familyPoly
	default:
		return familyInvalid
	}
}

// Valid reports whether t is one of the documented shape types.
func (t ShapeType) Valid() bool { return t.family() != familyInvalid }

// HasZ reports whether records of type t carry a Z array.
func (t ShapeType) HasZ() bool {
	switch t {
	case TypePointZ, TypeArcZ, TypePolygonZ, TypeMultiPointZ, TypeMultiPatch:
		return true
	}
	return false
}

// HasM reports whether records of type t may carry a measure array.
// Z types may carry measures as well.
func (t ShapeType) HasM() bool {
	switch t {
	case TypePointM, TypeArcM, TypePolygonM, TypeMultiPointM:
		return true
	}
	return t.HasZ()
}

// IsPolygon reports whether t is a polygon type subject to ring winding.
func (t ShapeType) IsPolygon() bool {
	return t == TypePolygon || t == TypePolygonZ || t == TypePolygonM
}

// writesMeasure reports whether the M block is emitted on write. Multipatch
// carries measures on read but never writes them.
func (t ShapeType) writesMeasure() bool {
	return t.HasM() && t != TypeMultiPatch
}

// PartType qualifies a part. Only multipatch records store it; every other
// type is implicitly PartRing.
type PartType int32

const (
	PartTriangleStrip PartType = 0
	PartTriangleFan   PartType = 1
	PartOuterRing     PartType = 2
	PartInnerRing     PartType = 3
	PartFirstRing     PartType = 4
	PartRing          PartType = 5
)

// String returns the conventional name of the part type.
func (p PartType) String() string {
	switch p {
	case PartTriangleStrip:
		return "TriangleStrip"
	case PartTriangleFan:
		return "TriangleFan"
	case PartOuterRing:
		return "OuterRing"
	case PartInnerRing:
		return "InnerRing"
	case PartFirstRing:
		return "FirstRing"
	case PartRing:
		return "Ring"
	default:
		return "UnknownPartType"
	}
}

// Axis indexes of a Box.
const (
	AxisX = 0
	AxisY = 1
	AxisZ = 2
	AxisM = 3
)

// Box is an axis-aligned bounding box over X, Y, Z and M.
type Box struct {
	Min [4]float64
	Max [4]float64
}

// Union returns the smallest box enclosing b and o on all four axes.
func (b Box) Union(o Box) Box {
	for i := 0; i < 4; i++ {
		if o.Min[i] < b.Min[i] {
			b.Min[i] = o.Min[i]
		}
		if o.Max[i] > b.Max[i] {
			b.Max[i] = o.Max[i]
		}
	}
	return b
}

// Contains reports whether o lies within b on the first dim axes.
func (b Box) Contains(o Box, dim int) bool {
	for i := 0; i < dim; i++ {
		if o.Min[i] < b.Min[i] || o.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Intersects reports whether b and o overlap on the first dim axes.
// Bounds are inclusive.
func (b Box) Intersects(o Box, dim int) bool {
	for i := 0; i < dim; i++ {
		if o.Max[i] < b.Min[i] || b.Max[i] < o.Min[i] {
			return false
		}
	}
	return true
}

// Part is one contiguous run of a shape's vertices.
type Part struct {
	Start int
	Type  PartType
}

// Shape is one geometry record.
//
// X and Y always have one entry per vertex. Z is nil unless the shape type
// carries a Z dimension, and M is nil unless measures were present, so an
// absent dimension is never confused with a run of zero values.
type Shape struct {
	Type  ShapeType
	ID    int
	Parts []Part
	X, Y  []float64
	Z, M  []float64
	Box   Box

	// MeasureIsUsed is set when M holds real measures.
	MeasureIsUsed bool
}

// NumVertices returns the vertex count.
func (s *Shape) NumVertices() int { return len(s.X) }

// PartRange returns the half-open vertex range of part i.
func (s *Shape) PartRange(i int) (start, end int) {
	start = s.Parts[i].Start
	end = len(s.X)
	if i+1 < len(s.Parts) {
		end = s.Parts[i+1].Start
	}
	return start, end
}

// Clone returns a deep copy that shares no storage with s.
func (s *Shape) Clone() *Shape {
	c := *s
	c.Parts = cloneSlice(s.Parts)
	c.X = cloneSlice(s.X)
	c.Y = cloneSlice(s.Y)
	c.Z = cloneSlice(s.Z)
	c.M = cloneSlice(s.M)
	return &c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
