package shp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShapeDefaults(t *testing.T) {
	s, err := NewSimpleShape(TypePolygonZ, []float64{0, 4, 4, 0}, []float64{0, 0, 3, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, -1, s.ID)
	assert.Equal(t, []Part{{Start: 0, Type: PartRing}}, s.Parts)
	assert.Equal(t, []float64{0, 0, 0, 0}, s.Z)
	assert.Nil(t, s.M)
	assert.False(t, s.MeasureIsUsed)
	assert.Equal(t, Box{Max: [4]float64{4, 3, 0, 0}}, s.Box)

	s, err = NewShape(TypeArcM, 7, nil, []float64{1, 2}, []float64{1, 2}, nil, []float64{10, 20})
	require.NoError(t, err)
	assert.True(t, s.MeasureIsUsed)
	assert.Equal(t, 10.0, s.Box.Min[AxisM])
	assert.Equal(t, 20.0, s.Box.Max[AxisM])

	s, err = NewShape(TypeArc, 0, nil, []float64{1}, []float64{1}, nil, []float64{5})
	require.NoError(t, err)
	assert.Nil(t, s.M, "measures dropped for a type without M")

	s, err = NewShape(TypeMultiPatch, 0, []Part{{Start: 0, Type: PartTriangleFan}},
		[]float64{0, 1, 1}, []float64{0, 0, 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, PartTriangleFan, s.Parts[0].Type)
}

func TestNewShapeRejects(t *testing.T) {
	_, err := NewShape(ShapeType(4), 0, nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = NewShape(TypeArc, 0, nil, []float64{1, 2}, []float64{1}, nil, nil)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = NewShape(TypeArc, 0, []Part{{Start: 1}}, []float64{1, 2}, []float64{1, 2}, nil, nil)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = NewShape(TypeArc, 0, []Part{{Start: 0}, {Start: 5}}, []float64{1, 2}, []float64{1, 2}, nil, nil)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestPartRangeAndClone(t *testing.T) {
	s := mustShape(t, TypeArc, 0, []Part{{Start: 0}, {Start: 2}},
		[]float64{0, 1, 2, 3, 4}, []float64{0, 1, 2, 3, 4}, nil, nil)
	start, end := s.PartRange(0)
	assert.Equal(t, [2]int{0, 2}, [2]int{start, end})
	start, end = s.PartRange(1)
	assert.Equal(t, [2]int{2, 5}, [2]int{start, end})

	c := s.Clone()
	c.X[0] = 99
	c.Parts[1].Start = 3
	assert.Equal(t, 0.0, s.X[0])
	assert.Equal(t, 2, s.Parts[1].Start)
	assert.Contains(t, s.String(), "Arc")
}

func TestRewind(t *testing.T) {
	// counter-clockwise outer ring with a clockwise hole: both wrong
	s := mustShape(t, TypePolygon, 0, []Part{{Start: 0}, {Start: 5}},
		[]float64{0, 10, 10, 0, 0, 2, 2, 8, 8, 2},
		[]float64{0, 0, 10, 10, 0, 2, 8, 8, 2, 2},
		nil, nil)

	require.True(t, s.Rewind())

	start, end := s.PartRange(0)
	assert.Less(t, signedArea(s.X, s.Y, start, end), 0.0, "outer ring clockwise")
	start, end = s.PartRange(1)
	assert.Greater(t, signedArea(s.X, s.Y, start, end), 0.0, "hole counter-clockwise")

	assert.Equal(t, []float64{0, 0, 10, 10, 0}, s.X[:5])
	assert.Equal(t, []float64{0, 10, 10, 0, 0}, s.Y[:5])

	assert.False(t, s.Rewind(), "already oriented")

	arc := mustShape(t, TypeArc, 0, nil, []float64{0, 1, 1}, []float64{0, 0, 1}, nil, nil)
	assert.False(t, arc.Rewind())
}

func TestRewindCarriesZAndM(t *testing.T) {
	s := mustShape(t, TypePolygonZ, 0, nil,
		[]float64{0, 1, 1, 0},
		[]float64{0, 0, 1, 0},
		[]float64{1, 2, 3, 1},
		[]float64{4, 5, 6, 4})

	require.True(t, s.Rewind())
	assert.Equal(t, []float64{0, 1, 1, 0}, s.X)
	assert.Equal(t, []float64{0, 1, 0, 0}, s.Y)
	assert.Equal(t, []float64{1, 3, 2, 1}, s.Z)
	assert.Equal(t, []float64{4, 6, 5, 4}, s.M)
}
