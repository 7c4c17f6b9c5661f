package shp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

// square is a clockwise outer ring, hole a counter-clockwise ring inside
// it and square2 a second clockwise ring beside it.
var (
	squareX  = []float64{0, 0, 10, 10, 0}
	squareY  = []float64{0, 10, 10, 0, 0}
	holeX    = []float64{2, 4, 4, 2, 2}
	holeY    = []float64{2, 2, 4, 4, 2}
	square2X = []float64{20, 20, 25, 25, 20}
	square2Y = []float64{0, 5, 5, 0, 0}
)

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func ringCoords(x, y []float64, extra ...[]float64) []geom.Coord {
	out := make([]geom.Coord, len(x))
	for i := range x {
		c := geom.Coord{x[i], y[i]}
		for _, e := range extra {
			c = append(c, e[i])
		}
		out[i] = c
	}
	return out
}

func TestGeometryConversion(t *testing.T) {
	tests := []struct {
		name   string
		shape  func(t *testing.T) *Shape
		layout geom.Layout
		check  func(t *testing.T, g geom.T)
	}{
		{
			name: "Point",
			shape: func(t *testing.T) *Shape {
				return mustShape(t, TypePoint, 0, nil, []float64{1}, []float64{2}, nil, nil)
			},
			layout: geom.XY,
			check: func(t *testing.T, g geom.T) {
				require.IsType(t, &geom.Point{}, g)
				assert.Equal(t, geom.Coord{1, 2}, g.(*geom.Point).Coords())
			},
		},
		{
			name: "PointZ with measure",
			shape: func(t *testing.T) *Shape {
				return mustShape(t, TypePointZ, 0, nil, []float64{1}, []float64{2}, []float64{3}, []float64{4})
			},
			layout: geom.XYZM,
			check: func(t *testing.T, g geom.T) {
				assert.Equal(t, geom.Coord{1, 2, 3, 4}, g.(*geom.Point).Coords())
			},
		},
		{
			name: "PointZ without measure",
			shape: func(t *testing.T) *Shape {
				return mustShape(t, TypePointZ, 0, nil, []float64{1}, []float64{2}, []float64{3}, nil)
			},
			layout: geom.XYZ,
			check: func(t *testing.T, g geom.T) {
				assert.Equal(t, geom.Coord{1, 2, 3}, g.(*geom.Point).Coords())
			},
		},
		{
			name: "PointM",
			shape: func(t *testing.T) *Shape {
				return mustShape(t, TypePointM, 0, nil, []float64{1}, []float64{2}, nil, []float64{4})
			},
			layout: geom.XYM,
			check: func(t *testing.T, g geom.T) {
				assert.Equal(t, geom.Coord{1, 2, 4}, g.(*geom.Point).Coords())
			},
		},
		{
			name: "MultiPoint",
			shape: func(t *testing.T) *Shape {
				return mustShape(t, TypeMultiPoint, 0, nil, []float64{0, 1, 2}, []float64{5, 6, 7}, nil, nil)
			},
			layout: geom.XY,
			check: func(t *testing.T, g geom.T) {
				require.IsType(t, &geom.MultiPoint{}, g)
				assert.Equal(t, []geom.Coord{{0, 5}, {1, 6}, {2, 7}}, g.(*geom.MultiPoint).Coords())
			},
		},
		{
			name: "MultiPointZ",
			shape: func(t *testing.T) *Shape {
				return mustShape(t, TypeMultiPointZ, 0, nil, []float64{0, 1}, []float64{5, 6}, []float64{8, 9}, nil)
			},
			layout: geom.XYZ,
			check: func(t *testing.T, g geom.T) {
				assert.Equal(t, []geom.Coord{{0, 5, 8}, {1, 6, 9}}, g.(*geom.MultiPoint).Coords())
			},
		},
		{
			name: "Arc single part",
			shape: func(t *testing.T) *Shape {
				return mustShape(t, TypeArc, 0, nil, []float64{0, 1, 2}, []float64{0, 1, 0}, nil, nil)
			},
			layout: geom.XY,
			check: func(t *testing.T, g geom.T) {
				require.IsType(t, &geom.LineString{}, g)
				assert.Equal(t, []geom.Coord{{0, 0}, {1, 1}, {2, 0}}, g.(*geom.LineString).Coords())
			},
		},
		{
			name: "ArcZ two parts",
			shape: func(t *testing.T) *Shape {
				return mustShape(t, TypeArcZ, 0, []Part{{Start: 0}, {Start: 2}},
					[]float64{0, 1, 5, 6, 7}, []float64{0, 1, 5, 6, 7}, []float64{1, 2, 3, 4, 5}, nil)
			},
			layout: geom.XYZ,
			check: func(t *testing.T, g geom.T) {
				require.IsType(t, &geom.MultiLineString{}, g)
				assert.Equal(t, [][]geom.Coord{
					{{0, 0, 1}, {1, 1, 2}},
					{{5, 5, 3}, {6, 6, 4}, {7, 7, 5}},
				}, g.(*geom.MultiLineString).Coords())
			},
		},
		{
			name: "ArcM",
			shape: func(t *testing.T) *Shape {
				return mustShape(t, TypeArcM, 0, nil, []float64{0, 1}, []float64{0, 1}, nil, []float64{7, 8})
			},
			layout: geom.XYM,
			check: func(t *testing.T, g geom.T) {
				assert.Equal(t, []geom.Coord{{0, 0, 7}, {1, 1, 8}}, g.(*geom.LineString).Coords())
			},
		},
		{
			name: "Polygon with hole",
			shape: func(t *testing.T) *Shape {
				return mustShape(t, TypePolygon, 0, []Part{{Start: 0}, {Start: 5}},
					concat(squareX, holeX), concat(squareY, holeY), nil, nil)
			},
			layout: geom.XY,
			check: func(t *testing.T, g geom.T) {
				require.IsType(t, &geom.Polygon{}, g)
				assert.Equal(t, [][]geom.Coord{
					ringCoords(squareX, squareY),
					ringCoords(holeX, holeY),
				}, g.(*geom.Polygon).Coords())
			},
		},
		{
			name: "PolygonZ hole after second outer",
			shape: func(t *testing.T) *Shape {
				z := make([]float64, 15)
				for i := range z {
					z[i] = float64(i)
				}
				return mustShape(t, TypePolygonZ, 0, []Part{{Start: 0}, {Start: 5}, {Start: 10}},
					concat(squareX, square2X, holeX), concat(squareY, square2Y, holeY), z, nil)
			},
			layout: geom.XYZ,
			check: func(t *testing.T, g geom.T) {
				require.IsType(t, &geom.MultiPolygon{}, g)
				mp := g.(*geom.MultiPolygon)
				require.Equal(t, 2, mp.NumPolygons())
				assert.Equal(t, [][]geom.Coord{
					ringCoords(squareX, squareY, []float64{0, 1, 2, 3, 4}),
					ringCoords(holeX, holeY, []float64{10, 11, 12, 13, 14}),
				}, mp.Polygon(0).Coords())
				assert.Equal(t, [][]geom.Coord{
					ringCoords(square2X, square2Y, []float64{5, 6, 7, 8, 9}),
				}, mp.Polygon(1).Coords())
			},
		},
		{
			name: "MultiPatch",
			shape: func(t *testing.T) *Shape {
				x := concat([]float64{0, 1, 0, 1}, []float64{5, 6, 6, 5}, squareX, holeX)
				y := concat([]float64{0, 0, 1, 1}, []float64{5, 5, 6, 6}, squareY, holeY)
				parts := []Part{
					{Start: 0, Type: PartTriangleStrip},
					{Start: 4, Type: PartTriangleFan},
					{Start: 8, Type: PartOuterRing},
					{Start: 13, Type: PartInnerRing},
				}
				return mustShape(t, TypeMultiPatch, 0, parts, x, y, nil, nil)
			},
			layout: geom.XYZ,
			check: func(t *testing.T, g geom.T) {
				mp := g.(*geom.MultiPolygon)
				require.Equal(t, 5, mp.NumPolygons())
				assert.Equal(t, [][]geom.Coord{{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 0}}}, mp.Polygon(0).Coords())
				assert.Equal(t, [][]geom.Coord{{{1, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}}, mp.Polygon(1).Coords())
				assert.Equal(t, [][]geom.Coord{{{5, 5, 0}, {6, 5, 0}, {6, 6, 0}, {5, 5, 0}}}, mp.Polygon(2).Coords())
				assert.Equal(t, [][]geom.Coord{{{5, 5, 0}, {6, 6, 0}, {5, 6, 0}, {5, 5, 0}}}, mp.Polygon(3).Coords())
				assert.Len(t, mp.Polygon(4).Coords(), 2)
			},
		},
		{
			name: "MultiPatch first ring with rings",
			shape: func(t *testing.T) *Shape {
				parts := []Part{
					{Start: 0, Type: PartFirstRing},
					{Start: 5, Type: PartRing},
					{Start: 10, Type: PartOuterRing},
					{Start: 15, Type: PartRing},
				}
				return mustShape(t, TypeMultiPatch, 0, parts,
					concat(squareX, holeX, square2X, holeX), concat(squareY, holeY, square2Y, holeY), nil, nil)
			},
			layout: geom.XYZ,
			check: func(t *testing.T, g geom.T) {
				mp := g.(*geom.MultiPolygon)
				require.Equal(t, 3, mp.NumPolygons())
				assert.Len(t, mp.Polygon(0).Coords(), 2)
				assert.Len(t, mp.Polygon(1).Coords(), 1)
				assert.Len(t, mp.Polygon(2).Coords(), 1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.shape(t)
			assert.Equal(t, tt.layout, s.Layout())

			g, err := s.Geometry()
			require.NoError(t, err)
			require.NotNil(t, g)
			assert.Equal(t, tt.layout, g.Layout())
			tt.check(t, g)
		})
	}
}

func TestFeature(t *testing.T) {
	s := mustShape(t, TypeArcZ, 42, nil, []float64{1, 4}, []float64{2, 8}, []float64{-1, 3}, nil)
	f, err := s.Feature()
	require.NoError(t, err)
	assert.Equal(t, "42", f.ID)
	assert.Nil(t, f.Properties)
	require.NotNil(t, f.BBox)
	assert.Equal(t, geom.XYZ, f.BBox.Layout())
	assert.Equal(t, []float64{1, 2, -1}, []float64{f.BBox.Min(0), f.BBox.Min(1), f.BBox.Min(2)})
	assert.Equal(t, []float64{4, 8, 3}, []float64{f.BBox.Max(0), f.BBox.Max(1), f.BBox.Max(2)})

	null, err := (&Shape{Type: TypeNull, ID: 3}).Feature()
	require.NoError(t, err)
	assert.Equal(t, "3", null.ID)
	assert.Nil(t, null.Geometry)
	assert.Nil(t, null.BBox)
}

func TestGeometryRejectsInconsistentShape(t *testing.T) {
	bad := []*Shape{
		{Type: TypePoint, X: []float64{1, 2}, Y: []float64{1, 2}},
		{Type: TypeArc, X: []float64{1, 2}, Y: []float64{1}},
		{Type: TypeArc, X: []float64{1, 2}, Y: []float64{1, 2}},
		{Type: TypePolygon, Parts: []Part{{Start: 5}}, X: []float64{1, 2}, Y: []float64{1, 2}},
		{Type: ShapeType(99)},
	}
	for _, s := range bad {
		_, err := s.Geometry()
		assert.ErrorIs(t, err, ErrFormat, "%+v", s)
	}
}

func TestHandleFeature(t *testing.T) {
	opts, _, _ := memOptions(t)
	h, err := CreateWithOptions("parcels", TypePolygon, opts)
	require.NoError(t, err)
	_, err = h.WriteShape(Append, mustShape(t, TypePolygon, 0, []Part{{Start: 0}, {Start: 5}},
		concat(squareX, holeX), concat(squareY, holeY), nil, nil))
	require.NoError(t, err)
	_, err = h.WriteShape(Append, &Shape{Type: TypeNull})
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h, err = OpenWithOptions("parcels", ReadOnly, opts)
	require.NoError(t, err)
	defer h.Close()

	f, err := h.Feature(0)
	require.NoError(t, err)
	assert.Equal(t, "0", f.ID)
	require.IsType(t, &geom.Polygon{}, f.Geometry)
	assert.Equal(t, 2, f.Geometry.(*geom.Polygon).NumLinearRings())

	f, err = h.Feature(1)
	require.NoError(t, err)
	assert.Equal(t, "1", f.ID)
	assert.Nil(t, f.Geometry)

	_, err = h.Feature(2)
	assert.ErrorIs(t, err, ErrIndex)
}
