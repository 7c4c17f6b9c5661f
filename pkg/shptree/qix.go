package shptree

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/beetlebugorg/shapelib/pkg/hooks"
)

// .qix layout
//
//	0   "SQT"
//	3   byte order: 1 little-endian, 2 big-endian
//	4   version 1
//	5   3 reserved bytes
//	8   shape count          int32
//	12  depth, root included int32
//	16  root node
//
// Each node, written depth-first:
//
//	offset      int32  bytes taken by all descendant nodes
//	bounds      4 x float64  minX minY maxX maxY
//	nShapes     int32
//	ids         nShapes x int32
//	nSubNodes   int32
const (
	qixHeaderSize = 16
	qixVersion    = 1
	orderLSB      = 1
	orderMSB      = 2

	// nodeFixedSize counts offset, bounds, nShapes and nSubNodes.
	nodeFixedSize = 4 + 32 + 4 + 4
)

var qixSignature = [3]byte{'S', 'Q', 'T'}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// WriteQIX writes the tree to path through the hooks table.
//
// Nodes keep only their X/Y bounds on disk. For a tree of Dimension 3 or
// 4, DiskTree.Search therefore returns a superset of FindLikelyShapes;
// the two are identical for 2-D trees.
func (t *Tree) WriteQIX(path string, hk hooks.Hooks) error {
	f, err := hk.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := t.EncodeQIX(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// EncodeQIX writes the tree in .qix form, little-endian.
func (t *Tree) EncodeQIX(w io.Writer) error {
	return t.encodeQIX(w, binary.LittleEndian)
}

func (t *Tree) encodeQIX(w io.Writer, order byteOrder) error {
	bw := bufio.NewWriter(w)

	var hdr [qixHeaderSize]byte
	copy(hdr[:3], qixSignature[:])
	hdr[3] = orderLSB
	if order == binary.BigEndian {
		hdr[3] = orderMSB
	}
	hdr[4] = qixVersion
	order.PutUint32(hdr[8:], uint32(t.count))
	order.PutUint32(hdr[12:], uint32(t.maxDepth+1))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}

	sizes := make([]int64, len(t.nodes))
	t.subtreeSize(0, sizes)
	if sizes[0] > math.MaxInt32 {
		return fmt.Errorf("tree of %d bytes too large for .qix", sizes[0])
	}
	if err := t.encodeNode(bw, order, 0, sizes); err != nil {
		return err
	}
	return bw.Flush()
}

// subtreeSize fills sizes[n] with the encoded size of n's descendants.
func (t *Tree) subtreeSize(n int32, sizes []int64) int64 {
	var total int64
	for _, c := range t.nodes[n].sub {
		total += nodeFixedSize + 4*int64(len(t.nodes[c].ids)) + t.subtreeSize(c, sizes)
	}
	sizes[n] = total
	return total
}

func (t *Tree) encodeNode(w *bufio.Writer, order byteOrder, n int32, sizes []int64) error {
	nd := &t.nodes[n]
	buf := make([]byte, 0, nodeFixedSize+4*len(nd.ids))
	buf = order.AppendUint32(buf, uint32(sizes[n]))
	for _, v := range []float64{nd.box.Min[0], nd.box.Min[1], nd.box.Max[0], nd.box.Max[1]} {
		buf = order.AppendUint64(buf, math.Float64bits(v))
	}
	buf = order.AppendUint32(buf, uint32(len(nd.ids)))
	for _, id := range nd.ids {
		buf = order.AppendUint32(buf, uint32(id))
	}
	buf = order.AppendUint32(buf, uint32(len(nd.sub)))
	if _, err := w.Write(buf); err != nil {
		return err
	}
	for _, c := range nd.sub {
		if err := t.encodeNode(w, order, c, sizes); err != nil {
			return err
		}
	}
	return nil
}
