package sbn

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/beetlebugorg/shapelib/internal/wire"
)

// cellTolerance widens a converted query by a fraction of a cell so
// rounding in the writer never drops a shape.
const cellTolerance = 0.005

// Search returns the sorted 0-based shape ids whose cell bounds overlap
// the X/Y query box. The query is converted to the 0..255 cell grid,
// rounding outward.
//
// A truncated or inconsistent bin stops the search: the ids collected so
// far are returned together with an error wrapping ErrCorrupt.
func (ix *Index) Search(qMin, qMax [4]float64) ([]int, error) {
	minX, minY, maxX, maxY := ix.bounds[0], ix.bounds[1], ix.bounds[2], ix.bounds[3]
	if qMax[0] < minX || qMax[1] < minY || qMin[0] > maxX || qMin[1] > maxY {
		return []int{}, nil
	}
	return ix.SearchInt(
		toCell(qMin[0], minX, maxX, false),
		toCell(qMin[1], minY, maxY, false),
		toCell(qMax[0], minX, maxX, true),
		toCell(qMax[1], minY, maxY, true),
	)
}

// toCell maps v onto the 0..255 grid spanning [lo, hi]. A zero-width
// extent maps to the whole grid.
func toCell(v, lo, hi float64, upper bool) int {
	if !(hi > lo) {
		if upper {
			return 255
		}
		return 0
	}
	f := (v - lo) / (hi - lo) * 255
	var c float64
	if upper {
		c = math.Ceil(f + cellTolerance)
	} else {
		c = math.Floor(f - cellTolerance)
	}
	return int(min(max(c, 0), 255))
}

// SearchInt returns the sorted 0-based shape ids whose cell bounds
// overlap the query given directly in cell units. Coordinates are clamped
// to 0..255.
func (ix *Index) SearchInt(minX, minY, maxX, maxY int) ([]int, error) {
	if ix.closed {
		return nil, fmt.Errorf("%s: search on closed index", ix.name)
	}
	q := [4]int{clampCell(minX), clampCell(minY), clampCell(maxX), clampCell(maxY)}
	bm := roaring.New()
	err := ix.searchNode(0, 1, [4]int{0, 0, 255, 255}, q, bm)
	return toInts(bm), err
}

func clampCell(v int) int { return min(max(v, 0), 255) }

// searchNode visits node n at depth, whose cell is c, then descends into
// the children whose half of c the query reaches.
func (ix *Index) searchNode(n, depth int, c, q [4]int, bm *roaring.Bitmap) error {
	if n < len(ix.nodes) {
		if err := ix.collect(n, q, bm); err != nil {
			return err
		}
	}
	if depth >= ix.maxDepth {
		return nil
	}

	axis := 1
	if depth%2 == 1 {
		axis = 0
	}
	mid := (c[axis] + c[axis+2] + 1) / 2

	if q[axis+2] >= mid {
		upper := c
		upper[axis] = mid
		if err := ix.searchNode(2*n+1, depth+1, upper, q, bm); err != nil {
			return err
		}
	}
	if q[axis] < mid {
		lower := c
		lower[axis+2] = mid - 1
		if err := ix.searchNode(2*n+2, depth+1, lower, q, bm); err != nil {
			return err
		}
	}
	return nil
}

// collect adds the node's matching features. The node's content bounds
// are cached on first read so later queries can skip it without I/O.
func (ix *Index) collect(n int, q [4]int, bm *roaring.Bitmap) error {
	nd := &ix.nodes[n]
	if nd.shapeCount == 0 {
		return nil
	}
	if nd.boxSet && !overlaps(nd.box, q) {
		return nil
	}

	box := [4]uint8{255, 255, 0, 0}
	seen := 0
	for b := nd.binStart; seen < nd.shapeCount; b++ {
		if b-2 < 0 || b-2 >= len(ix.bins) {
			return fmt.Errorf("%w: %s: node %d refers to missing bin %d", ErrCorrupt, ix.name, n, b)
		}
		loc := ix.bins[b-2]
		data, err := ix.readAt(loc.offset, binHeaderSize+loc.features*featureSize)
		if err != nil {
			return fmt.Errorf("%w: %s: bin %d: %v", ErrCorrupt, ix.name, b, err)
		}
		if id := int(wire.Int32BE(data)); id != b {
			return fmt.Errorf("%w: %s: bin at %d has id %d, want %d", ErrCorrupt, ix.name, loc.offset, id, b)
		}
		if loc.features == 0 {
			return fmt.Errorf("%w: %s: bin %d is empty", ErrCorrupt, ix.name, b)
		}

		for i := 0; i < loc.features && seen < nd.shapeCount; i++ {
			f := data[binHeaderSize+i*featureSize:]
			fb := [4]uint8{f[0], f[1], f[2], f[3]}
			id := int(wire.Int32BE(f[4:]))
			if id < 1 || id > ix.count {
				return fmt.Errorf("%w: %s: bin %d: shape id %d out of range", ErrCorrupt, ix.name, b, id)
			}
			box[0], box[1] = min(box[0], fb[0]), min(box[1], fb[1])
			box[2], box[3] = max(box[2], fb[2]), max(box[3], fb[3])
			if overlaps(fb, q) {
				bm.Add(uint32(id - 1))
			}
			seen++
		}
	}
	nd.box = box
	nd.boxSet = true
	return nil
}

func overlaps(b [4]uint8, q [4]int) bool {
	return int(b[0]) <= q[2] && int(b[2]) >= q[0] &&
		int(b[1]) <= q[3] && int(b[3]) >= q[1]
}

func toInts(bm *roaring.Bitmap) []int {
	out := make([]int, 0, bm.GetCardinality())
	bm.Iterate(func(x uint32) bool {
		out = append(out, int(x))
		return true
	})
	return out
}
