package shptree

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/beetlebugorg/shapelib/pkg/hooks"
	"github.com/beetlebugorg/shapelib/pkg/shp"
)

// maxDiskDepth caps node recursion while searching a .qix.
const maxDiskDepth = 32

// DiskTree searches a .qix file without loading it. Each Search streams
// the node list from the start, reading only the nodes whose bounds
// overlap the query and skipping over the rest.
type DiskTree struct {
	f      hooks.File
	name   string
	size   int64
	order  binary.ByteOrder
	count  int
	depth  int
	bounds shp.Box
	closed bool
}

// OpenDiskTree opens a .qix file read-only through the hooks table.
func OpenDiskTree(path string, hk hooks.Hooks) (*DiskTree, error) {
	f, err := hk.Open(path, false)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d := &DiskTree{f: f, name: path}
	if err := d.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func (d *DiskTree) readHeader() error {
	size, err := hooks.Size(d.f)
	if err != nil {
		return fmt.Errorf("%s: %w", d.name, err)
	}
	d.size = size
	if _, err := d.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%s: %w", d.name, err)
	}

	var b [qixHeaderSize + 4 + 32]byte
	if _, err := io.ReadFull(d.f, b[:]); err != nil {
		return fmt.Errorf("%w: %s: header: %v", ErrCorrupt, d.name, err)
	}
	if [3]byte(b[:3]) != qixSignature {
		return fmt.Errorf("%w: %s: bad signature %q", ErrCorrupt, d.name, b[:3])
	}
	switch b[3] {
	case orderLSB:
		d.order = binary.LittleEndian
	case orderMSB:
		d.order = binary.BigEndian
	default:
		return fmt.Errorf("%w: %s: unknown byte order %d", ErrCorrupt, d.name, b[3])
	}
	if b[4] != qixVersion {
		return fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, d.name, b[4])
	}
	d.count = int(int32(d.order.Uint32(b[8:])))
	d.depth = int(int32(d.order.Uint32(b[12:])))

	root := b[qixHeaderSize+4:]
	d.bounds.Min[shp.AxisX] = d.float(root[0:])
	d.bounds.Min[shp.AxisY] = d.float(root[8:])
	d.bounds.Max[shp.AxisX] = d.float(root[16:])
	d.bounds.Max[shp.AxisY] = d.float(root[24:])
	return nil
}

func (d *DiskTree) float(b []byte) float64 {
	return math.Float64frombits(d.order.Uint64(b))
}

// Len returns the shape count recorded in the header.
func (d *DiskTree) Len() int { return d.count }

// Depth returns the number of levels recorded in the header, root
// included.
func (d *DiskTree) Depth() int { return d.depth }

// Bounds returns the root node's X/Y bounds.
func (d *DiskTree) Bounds() shp.Box { return d.bounds }

// Search returns the sorted ids stored at every node whose X/Y bounds
// overlap the query box. Z and M in the query are ignored. For a tree
// written with Dimension 2 the result equals Tree.FindLikelyShapes;
// for 3-D and 4-D trees it is a superset.
//
// A truncated or malformed node stream stops the search: the ids collected
// so far are returned together with an error wrapping ErrCorrupt.
func (d *DiskTree) Search(qMin, qMax [4]float64) ([]int, error) {
	if d.closed {
		return nil, fmt.Errorf("%s: search on closed tree", d.name)
	}
	if _, err := d.f.Seek(qixHeaderSize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%s: %w", d.name, err)
	}
	s := &nodeStream{
		f:     d.f,
		r:     bufio.NewReader(d.f),
		pos:   qixHeaderSize,
		size:  d.size,
		order: d.order,
	}
	bm := roaring.New()
	err := d.searchNode(s, qMin, qMax, 0, bm)
	if err != nil {
		err = fmt.Errorf("%s: %w", d.name, err)
	}
	return toInts(bm), err
}

func (d *DiskTree) searchNode(s *nodeStream, qMin, qMax [4]float64, depth int, bm *roaring.Bitmap) error {
	if depth >= maxDiskDepth {
		return fmt.Errorf("%w: nodes nested deeper than %d", ErrCorrupt, maxDiskDepth)
	}
	at := s.pos
	b, err := s.read(4 + 32 + 4)
	if err != nil {
		return err
	}
	offset := int64(int32(d.order.Uint32(b[0:])))
	var nMin, nMax [4]float64
	nMin[0] = d.float(b[4:])
	nMin[1] = d.float(b[12:])
	nMax[0] = d.float(b[20:])
	nMax[1] = d.float(b[28:])
	nShapes := int64(int32(d.order.Uint32(b[36:])))
	if offset < 0 || nShapes < 0 || at+nodeFixedSize+4*nShapes+offset > s.size {
		return fmt.Errorf("%w: node at %d: offset %d and %d shapes run past end of file", ErrCorrupt, at, offset, nShapes)
	}

	if !CheckBoundsOverlap(nMin, nMax, qMin, qMax, 2) {
		return s.skip(4*nShapes + 4 + offset)
	}

	for remaining := nShapes; remaining > 0; {
		chunk := min(remaining, 1024)
		ids, err := s.read(int(4 * chunk))
		if err != nil {
			return err
		}
		for i := 0; i < int(chunk); i++ {
			id := int32(d.order.Uint32(ids[4*i:]))
			if id < 0 {
				return fmt.Errorf("%w: node at %d: negative shape id %d", ErrCorrupt, at, id)
			}
			bm.Add(uint32(id))
		}
		remaining -= chunk
	}

	b, err = s.read(4)
	if err != nil {
		return err
	}
	nSub := int32(d.order.Uint32(b))
	if nSub < 0 || nSub > 4 {
		return fmt.Errorf("%w: node at %d: %d subnodes", ErrCorrupt, at, nSub)
	}
	for i := int32(0); i < nSub; i++ {
		if err := d.searchNode(s, qMin, qMax, depth+1, bm); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the file. A second Close returns an error.
func (d *DiskTree) Close() error {
	if d.closed {
		return fmt.Errorf("%s: already closed", d.name)
	}
	d.closed = true
	return d.f.Close()
}

// nodeStream is a forward-only buffered reader over the node list that
// skips large spans by seeking.
type nodeStream struct {
	f     hooks.File
	r     *bufio.Reader
	pos   int64
	size  int64
	order binary.ByteOrder
	buf   []byte
}

func (s *nodeStream) read(n int) ([]byte, error) {
	if s.pos+int64(n) > s.size {
		return nil, fmt.Errorf("%w: %d bytes at %d run past end of file", ErrCorrupt, n, s.pos)
	}
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	b := s.buf[:n]
	if _, err := io.ReadFull(s.r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated at %d", ErrCorrupt, s.pos)
		}
		return nil, err
	}
	s.pos += int64(n)
	return b, nil
}

func (s *nodeStream) skip(n int64) error {
	if s.pos+n > s.size {
		return fmt.Errorf("%w: skip of %d bytes at %d runs past end of file", ErrCorrupt, n, s.pos)
	}
	if buffered := int64(s.r.Buffered()); n > buffered {
		if _, err := s.f.Seek(s.pos+n, io.SeekStart); err != nil {
			return err
		}
		s.r.Reset(s.f)
	} else if _, err := s.r.Discard(int(n)); err != nil {
		return err
	}
	s.pos += n
	return nil
}
