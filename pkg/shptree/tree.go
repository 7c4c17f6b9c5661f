package shptree

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/beetlebugorg/shapelib/pkg/shp"
)

var (
	// ErrInvalidOptions is returned by New and Build for an unusable
	// Options value.
	ErrInvalidOptions = errors.New("shptree: invalid options")

	// ErrCorrupt is returned when a .qix file is malformed or truncated.
	ErrCorrupt = errors.New("shptree: corrupt index")
)

const (
	// splitRatio is the share of a node's longer side each half keeps, so
	// sibling bounds overlap by 10% of the parent.
	splitRatio = 0.55

	maxAutoDepth = 12

	// MaxDepthLimit bounds Options.MaxDepth so the disk reader's recursion
	// limit is never reached by a well-formed file.
	MaxDepthLimit = 30
)

// Options configures New and Build.
type Options struct {
	// Dimension is the number of axes (X, Y, Z, M order) used for
	// containment and overlap tests: 2, 3 or 4.
	// Default: 2
	Dimension int

	// MaxDepth is the number of split levels below the root. Zero derives
	// a depth from the shape count.
	// Default: 0
	MaxDepth int

	// FanOut is the number of subnodes a node is split into: 2 or 4.
	// Default: 4
	FanOut int

	// Bounds overrides the root bounds. When nil, Build uses the source's
	// file bounds.
	Bounds *shp.Box
}

// DefaultOptions returns tree options with defaults
func DefaultOptions() Options {
	return Options{
		Dimension: 2,
		MaxDepth:  0,
		FanOut:    4,
	}
}

func (o Options) validate() error {
	if o.Dimension < 2 || o.Dimension > 4 {
		return fmt.Errorf("%w: dimension %d not in [2, 4]", ErrInvalidOptions, o.Dimension)
	}
	if o.FanOut != 2 && o.FanOut != 4 {
		return fmt.Errorf("%w: fan-out %d not 2 or 4", ErrInvalidOptions, o.FanOut)
	}
	if o.MaxDepth < 0 || o.MaxDepth > MaxDepthLimit {
		return fmt.Errorf("%w: max depth %d not in [0, %d]", ErrInvalidOptions, o.MaxDepth, MaxDepthLimit)
	}
	return nil
}

// AutoDepth returns the depth Build picks for n shapes: deep enough that
// leaves hold a handful of shapes, at least 1 and at most 12.
func AutoDepth(n int) int {
	depth, nodes := 0, 1
	for nodes*4 < n {
		depth++
		nodes *= 2
	}
	return min(max(depth, 1), maxAutoDepth)
}

// node is one arena slot. sub holds arena indexes of the children.
type node struct {
	box shp.Box
	ids []int
	sub []int32
}

// Tree is an in-memory quadtree over shape bounding boxes.
//
// Each shape id is stored once, at the deepest node whose bounds fully
// contain the shape's bounds. Nodes live in a single arena slice with the
// root at index 0. A Tree is not safe for concurrent mutation.
type Tree struct {
	nodes    []node
	dim      int
	maxDepth int
	fanOut   int
	count    int
}

// Source is a record source a tree can be built from. *shp.Handle
// satisfies it.
type Source interface {
	Len() int
	Bounds() shp.Box
	ReadShapeBorrowed(i int) (shp.Borrowed, error)
}

// New returns an empty tree whose root covers bounds. A zero
// opts.MaxDepth is treated as AutoDepth(0).
func New(bounds shp.Box, opts Options) (*Tree, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	depth := opts.MaxDepth
	if depth == 0 {
		depth = AutoDepth(0)
	}
	return &Tree{
		nodes:    []node{{box: bounds}},
		dim:      opts.Dimension,
		maxDepth: depth,
		fanOut:   opts.FanOut,
	}, nil
}

// Build reads every record of src and inserts it. Null and empty records
// are skipped.
func Build(src Source, opts Options) (*Tree, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	if opts.Bounds != nil {
		bounds = *opts.Bounds
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = AutoDepth(src.Len())
	}

	t, err := New(bounds, opts)
	if err != nil {
		return nil, err
	}
	for i := 0; i < src.Len(); i++ {
		b, err := src.ReadShapeBorrowed(i)
		if err != nil {
			return nil, fmt.Errorf("building tree: %w", err)
		}
		s, err := b.Shape()
		if err != nil {
			return nil, fmt.Errorf("building tree: %w", err)
		}
		t.AddShape(s)
	}
	return t, nil
}

// Dimension returns the number of axes used by containment and overlap
// tests.
func (t *Tree) Dimension() int { return t.dim }

// MaxDepth returns the number of split levels below the root.
func (t *Tree) MaxDepth() int { return t.maxDepth }

// Len returns the number of shape ids held.
func (t *Tree) Len() int { return t.count }

// NodeCount returns the number of nodes, root included.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// Bounds returns the root bounds.
func (t *Tree) Bounds() shp.Box { return t.nodes[0].box }

// AddShape inserts s.ID using s.Box and reports whether it was added.
// Null and empty shapes and negative ids are skipped. The root bounds grow
// to cover a shape lying outside them; existing subnodes are not resplit.
func (t *Tree) AddShape(s *shp.Shape) bool {
	if s.Type == shp.TypeNull || s.NumVertices() == 0 || s.ID < 0 {
		return false
	}
	return t.Insert(s.ID, s.Box)
}

// Insert stores id under box and reports whether it was added. Negative
// ids are rejected.
func (t *Tree) Insert(id int, box shp.Box) bool {
	if id < 0 || id > math.MaxInt32 {
		return false
	}
	root := &t.nodes[0]
	if !root.box.Contains(box, t.dim) {
		root.box = root.box.Union(box)
	}

	n := int32(0)
	for depth := 0; depth < t.maxDepth; depth++ {
		next := int32(-1)
		if len(t.nodes[n].sub) == 0 {
			bounds := t.childBounds(t.nodes[n].box)
			hit := slices.IndexFunc(bounds, func(b shp.Box) bool { return b.Contains(box, t.dim) })
			if hit < 0 {
				break
			}
			first := int32(len(t.nodes))
			sub := make([]int32, len(bounds))
			for i, b := range bounds {
				t.nodes = append(t.nodes, node{box: b})
				sub[i] = first + int32(i)
			}
			t.nodes[n].sub = sub
			next = sub[hit]
		} else {
			for _, c := range t.nodes[n].sub {
				if t.nodes[c].box.Contains(box, t.dim) {
					next = c
					break
				}
			}
		}
		if next < 0 {
			break
		}
		n = next
	}
	t.nodes[n].ids = append(t.nodes[n].ids, id)
	t.count++
	return true
}

// RemoveShapeID removes id from every node holding it and reports whether
// it was found. Emptied nodes stay until TrimExtraNodes.
func (t *Tree) RemoveShapeID(id int) bool {
	found := false
	for i := range t.nodes {
		nd := &t.nodes[i]
		before := len(nd.ids)
		nd.ids = slices.DeleteFunc(nd.ids, func(v int) bool { return v == id })
		if removed := before - len(nd.ids); removed > 0 {
			t.count -= removed
			found = true
		}
	}
	return found
}

// TrimExtraNodes drops every subtree that holds no shape ids and folds a
// shapeless node with a single child into that child. Calling it again
// leaves the tree unchanged.
func (t *Tree) TrimExtraNodes() {
	t.trim(0)
	t.compact()
}

// trim reports whether the subtree at n holds no ids after trimming.
func (t *Tree) trim(n int32) bool {
	kept := t.nodes[n].sub[:0]
	for _, c := range t.nodes[n].sub {
		if !t.trim(c) {
			kept = append(kept, c)
		}
	}
	nd := &t.nodes[n]
	nd.sub = kept
	if len(nd.sub) == 0 {
		nd.sub = nil
	}

	if len(nd.ids) == 0 && len(nd.sub) == 1 {
		child := t.nodes[nd.sub[0]]
		nd.box = child.box
		nd.ids = child.ids
		nd.sub = child.sub
	}
	return len(nd.ids) == 0 && len(nd.sub) == 0
}

// compact rewrites the arena in depth-first order, dropping unreachable
// slots.
func (t *Tree) compact() {
	out := make([]node, 0, len(t.nodes))
	var visit func(n int32) int32
	visit = func(n int32) int32 {
		idx := int32(len(out))
		out = append(out, t.nodes[n])
		sub := t.nodes[n].sub
		if len(sub) > 0 {
			remapped := make([]int32, len(sub))
			for i, c := range sub {
				remapped[i] = visit(c)
			}
			out[idx].sub = remapped
		}
		return idx
	}
	visit(0)
	t.nodes = out
}

// FindLikelyShapes returns the sorted ids stored at every node whose
// bounds overlap the query box on the tree's dimensions. Every shape whose
// bounds overlap the query is returned; others may be too.
func (t *Tree) FindLikelyShapes(qMin, qMax [4]float64) []int {
	bm := roaring.New()
	t.collect(0, qMin, qMax, bm)
	return toInts(bm)
}

func (t *Tree) collect(n int32, qMin, qMax [4]float64, bm *roaring.Bitmap) {
	nd := &t.nodes[n]
	if !CheckBoundsOverlap(nd.box.Min, nd.box.Max, qMin, qMax, t.dim) {
		return
	}
	for _, id := range nd.ids {
		bm.Add(uint32(id))
	}
	for _, c := range nd.sub {
		t.collect(c, qMin, qMax, bm)
	}
}

// CheckBoundsOverlap reports whether boxes a and b overlap on each of the
// first dim axes. Bounds are inclusive.
func CheckBoundsOverlap(aMin, aMax, bMin, bMax [4]float64, dim int) bool {
	for i := 0; i < dim; i++ {
		if bMax[i] < aMin[i] || aMax[i] < bMin[i] {
			return false
		}
	}
	return true
}

// NodeInfo describes one node during Walk.
type NodeInfo struct {
	Depth       int
	Bounds      shp.Box
	IDs         []int
	NumSubNodes int
}

// Walk visits nodes depth-first, parents before children. Returning false
// from fn skips the node's children.
func (t *Tree) Walk(fn func(NodeInfo) bool) {
	var visit func(n int32, depth int)
	visit = func(n int32, depth int) {
		nd := &t.nodes[n]
		if !fn(NodeInfo{Depth: depth, Bounds: nd.box, IDs: nd.ids, NumSubNodes: len(nd.sub)}) {
			return
		}
		for _, c := range nd.sub {
			visit(c, depth+1)
		}
	}
	visit(0, 0)
}

// childBounds splits b into FanOut overlapping halves or quarters: first
// across the longer of X and Y, then each half again.
func (t *Tree) childBounds(b shp.Box) []shp.Box {
	h1, h2 := splitBounds(b)
	if t.fanOut == 2 {
		return []shp.Box{h1, h2}
	}
	q1, q2 := splitBounds(h1)
	q3, q4 := splitBounds(h2)
	return []shp.Box{q1, q2, q3, q4}
}

func splitBounds(b shp.Box) (shp.Box, shp.Box) {
	axis := shp.AxisY
	if b.Max[shp.AxisX]-b.Min[shp.AxisX] > b.Max[shp.AxisY]-b.Min[shp.AxisY] {
		axis = shp.AxisX
	}
	r := b.Max[axis] - b.Min[axis]
	lo, hi := b, b
	lo.Max[axis] = b.Min[axis] + r*splitRatio
	hi.Min[axis] = b.Max[axis] - r*splitRatio
	return lo, hi
}

func toInts(bm *roaring.Bitmap) []int {
	out := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}
