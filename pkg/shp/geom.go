package shp

import (
	"fmt"
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Layout returns the coordinate layout Geometry produces for s. Z types
// carry Z; M is added only when MeasureIsUsed.
func (s *Shape) Layout() geom.Layout {
	z := s.Type.HasZ()
	m := s.MeasureIsUsed && s.Type.HasM()
	switch {
	case z && m:
		return geom.XYZM
	case z:
		return geom.XYZ
	case m:
		return geom.XYM
	}
	return geom.XY
}

// Geometry converts s to a go-geom geometry:
//
//	point        *geom.Point
//	multipoint   *geom.MultiPoint
//	arc          *geom.LineString, or *geom.MultiLineString for several parts
//	polygon      *geom.Polygon, or *geom.MultiPolygon for several outer rings
//	multipatch   *geom.MultiPolygon, triangle strips and fans expanded
//
// A null shape converts to nil.
func (s *Shape) Geometry() (geom.T, error) {
	if err := s.checkGeometry(); err != nil {
		return nil, err
	}
	layout := s.Layout()
	switch s.Type.family() {
	case familyNull:
		return nil, nil
	case familyPoint:
		return geom.NewPointFlat(layout, s.appendRange(nil, layout, 0, 1)), nil
	case familyMultiPoint:
		return geom.NewMultiPointFlat(layout, s.appendRange(nil, layout, 0, len(s.X))), nil
	}
	switch {
	case s.Type == TypeMultiPatch:
		return s.patchGeometry(layout), nil
	case s.Type.IsPolygon():
		return s.polygonGeometry(layout), nil
	}
	return s.arcGeometry(layout), nil
}

// Feature wraps Geometry in a GeoJSON feature carrying the shape id and
// its bounds. Properties are left nil.
func (s *Shape) Feature() (*geojson.Feature, error) {
	g, err := s.Geometry()
	if err != nil {
		return nil, err
	}
	f := &geojson.Feature{ID: strconv.Itoa(s.ID), Geometry: g}
	if g != nil && len(s.X) > 0 {
		f.BBox = s.geomBounds(s.Layout())
	}
	return f, nil
}

// Feature reads record i and converts it with Shape.Feature.
func (h *Handle) Feature(i int) (*geojson.Feature, error) {
	s, err := h.ReadShape(i)
	if err != nil {
		return nil, err
	}
	f, err := s.Feature()
	if err != nil {
		return nil, &FormatError{Path: h.shpName, Reason: fmt.Sprintf("record %d: %v", i, err)}
	}
	return f, nil
}

func (s *Shape) checkGeometry() error {
	if !s.Type.Valid() {
		return formatErr("", "unsupported shape type %d", int32(s.Type))
	}
	n := len(s.X)
	if len(s.Y) != n {
		return formatErr("", "%d X values but %d Y values", n, len(s.Y))
	}
	switch s.Type.family() {
	case familyPoint:
		if n != 1 {
			return formatErr("", "%v needs exactly one vertex, has %d", s.Type, n)
		}
	case familyPoly:
		if n > 0 && len(s.Parts) == 0 {
			return formatErr("", "%d vertices but no parts", n)
		}
		if reason := checkParts(s.Parts, n); reason != "" {
			return formatErr("", "%s", reason)
		}
	}
	return nil
}

func (s *Shape) appendCoord(flat []float64, layout geom.Layout, v int) []float64 {
	flat = append(flat, s.X[v], s.Y[v])
	if layout.ZIndex() >= 0 {
		flat = append(flat, valueAt(s.Z, v))
	}
	if layout.MIndex() >= 0 {
		flat = append(flat, valueAt(s.M, v))
	}
	return flat
}

func (s *Shape) appendRange(flat []float64, layout geom.Layout, start, end int) []float64 {
	for v := start; v < end; v++ {
		flat = s.appendCoord(flat, layout, v)
	}
	return flat
}

func (s *Shape) arcGeometry(layout geom.Layout) geom.T {
	flat := s.appendRange(nil, layout, 0, len(s.X))
	if len(s.Parts) == 1 {
		return geom.NewLineStringFlat(layout, flat)
	}
	ends := make([]int, len(s.Parts))
	for i := range s.Parts {
		_, end := s.PartRange(i)
		ends[i] = end * layout.Stride()
	}
	return geom.NewMultiLineStringFlat(layout, flat, ends)
}

// polygonGeometry groups rings into polygons by winding: clockwise rings
// are outer, counter-clockwise rings are holes of the first outer ring
// containing their first vertex, or of the closest preceding outer ring.
// A hole with no outer ring becomes a polygon of its own.
func (s *Shape) polygonGeometry(layout geom.Layout) geom.T {
	var polys [][]int // part indexes, outer ring first
	for i := range s.Parts {
		start, end := s.PartRange(i)
		if signedArea(s.X, s.Y, start, end) <= 0 || len(polys) == 0 {
			polys = append(polys, []int{i})
			continue
		}
		owner := len(polys) - 1
		for p, rings := range polys {
			ostart, oend := s.PartRange(rings[0])
			if pointInRing(s.X, s.Y, ostart, oend, s.X[start], s.Y[start]) {
				owner = p
				break
			}
		}
		polys[owner] = append(polys[owner], i)
	}

	flat := make([]float64, 0, len(s.X)*layout.Stride())
	endss := make([][]int, len(polys))
	for p, rings := range polys {
		for _, r := range rings {
			start, end := s.PartRange(r)
			flat = s.appendRange(flat, layout, start, end)
			endss[p] = append(endss[p], len(flat))
		}
	}
	if len(endss) == 1 {
		return geom.NewPolygonFlat(layout, flat, endss[0])
	}
	return geom.NewMultiPolygonFlat(layout, flat, endss)
}

// patchGeometry turns every multipatch part into polygons. Each triangle
// of a strip or fan is a closed polygon. Outer and first rings open a
// polygon; inner rings, and plain rings following a first ring, are its
// holes.
func (s *Shape) patchGeometry(layout geom.Layout) geom.T {
	var flat []float64
	var endss [][]int
	openPoly := func() { endss = append(endss, []int{len(flat)}) }
	addHole := func() {
		if len(endss) == 0 {
			openPoly()
			return
		}
		last := len(endss) - 1
		endss[last] = append(endss[last], len(flat))
	}

	inFirst := false
	for i, p := range s.Parts {
		start, end := s.PartRange(i)
		switch p.Type {
		case PartTriangleStrip, PartTriangleFan:
			inFirst = false
			for k := start + 2; k < end; k++ {
				a := k - 2
				if p.Type == PartTriangleFan {
					a = start
				}
				for _, v := range [4]int{a, k - 1, k, a} {
					flat = s.appendCoord(flat, layout, v)
				}
				openPoly()
			}
		case PartInnerRing:
			flat = s.appendRange(flat, layout, start, end)
			addHole()
		case PartRing:
			flat = s.appendRange(flat, layout, start, end)
			if inFirst {
				addHole()
			} else {
				openPoly()
			}
		default:
			inFirst = p.Type == PartFirstRing
			flat = s.appendRange(flat, layout, start, end)
			openPoly()
		}
	}
	return geom.NewMultiPolygonFlat(layout, flat, endss)
}

func (s *Shape) geomBounds(layout geom.Layout) *geom.Bounds {
	lo := []float64{s.Box.Min[AxisX], s.Box.Min[AxisY]}
	hi := []float64{s.Box.Max[AxisX], s.Box.Max[AxisY]}
	if layout.ZIndex() >= 0 {
		lo, hi = append(lo, s.Box.Min[AxisZ]), append(hi, s.Box.Max[AxisZ])
	}
	if layout.MIndex() >= 0 {
		lo, hi = append(lo, s.Box.Min[AxisM]), append(hi, s.Box.Max[AxisM])
	}
	return geom.NewBounds(layout).Set(append(lo, hi...)...)
}
