package sbn

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/beetlebugorg/shapelib/internal/wire"
	"github.com/beetlebugorg/shapelib/pkg/hooks"
)

var (
	// ErrFormat is returned by Open for a file that is not a bin index.
	ErrFormat = errors.New("sbn: not a bin index")

	// ErrCorrupt is returned when node descriptors or bins are
	// inconsistent.
	ErrCorrupt = errors.New("sbn: corrupt index")
)

const (
	headerSize     = 100
	binHeaderSize  = 8
	featureSize    = 8
	maxBinFeatures = 100
	maxShapeCount  = 256_000_000
	maxTreeDepth   = 24
)

var signature = [8]byte{0x00, 0x00, 0x27, 0x0A, 0xFF, 0xFF, 0xFE, 0x70}

// nodeDesc is one entry of the descriptor bin plus the content bounds
// cached after the node's bins are first read.
type nodeDesc struct {
	binStart   int // first bin id, 0 when the node is empty
	shapeCount int

	boxSet bool
	box    [4]uint8 // minX minY maxX maxY
}

// binLoc locates one feature bin. offset points at the bin header.
type binLoc struct {
	offset   int64
	features int
}

// Index is an open .sbn file.
//
// The node tree is implicit: node n has children 2n+1 and 2n+2, and the
// tree is MaxDepth levels deep. Node bounds are not stored; they follow
// from halving the 0..255 cell grid along X at odd depths and along Y at
// even depths, the root being depth 1.
type Index struct {
	f    hooks.File
	name string
	size int64

	count    int
	bounds   [8]float64 // minX minY maxX maxY minZ maxZ minM maxM
	maxDepth int
	descSize int // bytes of the descriptor bin after its header
	nodes    []nodeDesc
	bins     []binLoc // bin id k at bins[k-2]

	buf    []byte
	closed bool
}

// Open opens a .sbn read-only through the hooks table. path may name the
// .sbn, the .sbx or their base name. When a consistent .sbx is found its
// bin offsets are used; otherwise the bins are located by a sequential
// scan of the .sbn.
func Open(path string, hk hooks.Hooks) (*Index, error) {
	hk = hk.Resolve()
	base := basePath(path)

	f, name, err := openSibling(hk, base, ".sbn")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	ix := &Index{f: f, name: name}
	if err := ix.load(hk, base); err != nil {
		f.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *Index) load(hk hooks.Hooks, base string) error {
	size, err := hooks.Size(ix.f)
	if err != nil {
		return fmt.Errorf("%s: %w", ix.name, err)
	}
	ix.size = size

	hdr, err := ix.readAt(0, headerSize)
	if err != nil {
		return fmt.Errorf("%w: %s: header: %v", ErrFormat, ix.name, err)
	}
	if [8]byte(hdr[:8]) != signature {
		return fmt.Errorf("%w: %s: bad signature % x", ErrFormat, ix.name, hdr[:8])
	}
	ix.count = int(wire.Int32BE(hdr[28:]))
	if ix.count < 0 || ix.count > maxShapeCount {
		return fmt.Errorf("%w: %s: shape count %d out of range", ErrFormat, ix.name, ix.count)
	}
	for i := range ix.bounds {
		ix.bounds[i] = wire.Float64BE(hdr[32+8*i:])
	}

	ix.maxDepth = 2
	for ix.maxDepth < maxTreeDepth && ix.count > ((1<<ix.maxDepth)-1)*8 {
		ix.maxDepth++
	}
	ix.nodes = make([]nodeDesc, (1<<ix.maxDepth)-1)

	if err := ix.loadDescriptors(); err != nil {
		return err
	}

	want := ix.binCount()
	if bins, ok := readSBX(hk, base, ix.size, want); ok {
		ix.bins = bins
		return nil
	}
	bins, err := ix.scanBins(want)
	if err != nil {
		return err
	}
	ix.bins = bins
	return nil
}

// loadDescriptors reads bin 1, which holds one (first bin id, shape
// count) pair per node in node order.
func (ix *Index) loadDescriptors() error {
	bh, err := ix.readAt(headerSize, binHeaderSize)
	if err != nil {
		return fmt.Errorf("%w: %s: descriptor bin: %v", ErrCorrupt, ix.name, err)
	}
	if id := wire.Int32BE(bh); id != 1 {
		return fmt.Errorf("%w: %s: first bin has id %d", ErrCorrupt, ix.name, id)
	}
	descSize := int(wire.Int32BE(bh[4:])) * 2
	n := descSize / 8
	if descSize < 0 || descSize%8 != 0 || n > len(ix.nodes) {
		return fmt.Errorf("%w: %s: descriptor bin of %d bytes for %d nodes", ErrCorrupt, ix.name, descSize, len(ix.nodes))
	}

	ix.descSize = descSize

	b, err := ix.readAt(headerSize+binHeaderSize, descSize)
	if err != nil {
		return fmt.Errorf("%w: %s: descriptor bin: %v", ErrCorrupt, ix.name, err)
	}
	for i := 0; i < n; i++ {
		start := int(wire.Int32BE(b[8*i:]))
		count := int(wire.Int32BE(b[8*i+4:]))
		if count < 0 || count > ix.count || (start > 0 && count == 0) || (start <= 0 && count > 0) {
			return fmt.Errorf("%w: %s: node %d: bin %d with %d shapes", ErrCorrupt, ix.name, i, start, count)
		}
		ix.nodes[i] = nodeDesc{binStart: max(start, 0), shapeCount: count}
	}
	return nil
}

// binCount returns the highest bin id any node refers to, minus the
// descriptor bin.
func (ix *Index) binCount() int {
	last := 1
	for _, nd := range ix.nodes {
		if nd.shapeCount > 0 {
			last = max(last, nd.binStart+binsFor(nd.shapeCount)-1)
		}
	}
	return last - 1
}

func binsFor(shapes int) int {
	return (shapes + maxBinFeatures - 1) / maxBinFeatures
}

// scanBins walks the bin headers after the descriptor bin. Bin ids must
// run 2, 3, ... without gaps.
func (ix *Index) scanBins(want int) ([]binLoc, error) {
	pos := int64(headerSize + binHeaderSize + ix.descSize)
	if _, err := ix.f.Seek(pos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%s: %w", ix.name, err)
	}
	r := bufio.NewReader(ix.f)

	bins := make([]binLoc, 0, want)
	var bh [binHeaderSize]byte
	for len(bins) < want {
		if _, err := io.ReadFull(r, bh[:]); err != nil {
			return nil, fmt.Errorf("%w: %s: bin %d missing: %v", ErrCorrupt, ix.name, len(bins)+2, err)
		}
		id := int(wire.Int32BE(bh[:]))
		bytes := int64(wire.Int32BE(bh[4:])) * 2
		if id != len(bins)+2 {
			return nil, fmt.Errorf("%w: %s: bin at %d has id %d, want %d", ErrCorrupt, ix.name, pos, id, len(bins)+2)
		}
		if bytes < 0 || bytes%featureSize != 0 || bytes/featureSize > maxBinFeatures || pos+binHeaderSize+bytes > ix.size {
			return nil, fmt.Errorf("%w: %s: bin %d has %d bytes", ErrCorrupt, ix.name, id, bytes)
		}
		bins = append(bins, binLoc{offset: pos, features: int(bytes / featureSize)})
		if _, err := r.Discard(int(bytes)); err != nil {
			return nil, fmt.Errorf("%w: %s: bin %d: %v", ErrCorrupt, ix.name, id, err)
		}
		pos += binHeaderSize + bytes
	}
	return bins, nil
}

// readSBX loads bin locations from the .sbx next to base. Entry k
// describes bin k+1 as (offset, content length) in 16-bit words. It
// reports false when the file is absent or does not describe want bins
// inside an sbnSize-byte .sbn.
func readSBX(hk hooks.Hooks, base string, sbnSize int64, want int) ([]binLoc, bool) {
	f, name, err := openSibling(hk, base, ".sbx")
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			hk.Errorf("%s: %v; scanning bins instead", name, err)
		}
		return nil, false
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil || len(b) < headerSize+8*(want+1) {
		hk.Errorf("%s: too short for %d bins; scanning bins instead", name, want)
		return nil, false
	}
	if [8]byte(b[:8]) != signature {
		hk.Errorf("%s: bad signature; scanning bins instead", name)
		return nil, false
	}

	bins := make([]binLoc, want)
	for k := range bins {
		e := b[headerSize+8*(k+1):]
		off := int64(wire.Int32BE(e)) * 2
		bytes := int64(wire.Int32BE(e[4:])) * 2
		if off < headerSize || bytes < 0 || bytes%featureSize != 0 ||
			bytes/featureSize > maxBinFeatures || off+binHeaderSize+bytes > sbnSize {
			hk.Errorf("%s: entry for bin %d inconsistent; scanning bins instead", name, k+2)
			return nil, false
		}
		bins[k] = binLoc{offset: off, features: int(bytes / featureSize)}
	}
	return bins, true
}

// Len returns the shape count recorded in the header.
func (ix *Index) Len() int { return ix.count }

// MaxDepth returns the number of node levels.
func (ix *Index) MaxDepth() int { return ix.maxDepth }

// Bounds returns the X/Y extent the integer cell grid is scaled against,
// as minX, minY, maxX, maxY.
func (ix *Index) Bounds() [4]float64 {
	return [4]float64{ix.bounds[0], ix.bounds[1], ix.bounds[2], ix.bounds[3]}
}

// Close releases the file. A second Close returns an error.
func (ix *Index) Close() error {
	if ix.closed {
		return fmt.Errorf("%s: already closed", ix.name)
	}
	ix.closed = true
	return ix.f.Close()
}

func (ix *Index) readAt(off int64, n int) ([]byte, error) {
	if _, err := ix.f.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}
	ix.buf = wire.Grow(ix.buf, n)
	if _, err := io.ReadFull(ix.f, ix.buf); err != nil {
		return nil, err
	}
	return ix.buf, nil
}

func basePath(path string) string {
	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".sbn", ".sbx":
		return strings.TrimSuffix(path, ext)
	}
	return path
}

func openSibling(hk hooks.Hooks, base, ext string) (hooks.File, string, error) {
	name := base + ext
	f, err := hk.Open(name, false)
	if err == nil {
		return f, name, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, name, err
	}
	upper := base + strings.ToUpper(ext)
	if f, uerr := hk.Open(upper, false); uerr == nil {
		return f, upper, nil
	}
	return nil, name, err
}
