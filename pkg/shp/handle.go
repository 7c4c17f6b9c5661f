package shp

import (
	"errors"
	"io"
	"io/fs"

	"github.com/beetlebugorg/shapelib/internal/wire"
	"github.com/beetlebugorg/shapelib/pkg/hooks"
)

// Handle is an open .shp/.shx pair.
//
// A handle is Open until Close and must not be used from more than one
// goroutine at a time. Mutations only append to the .shp; the file-level
// bounds only ever grow.
type Handle struct {
	hooks   hooks.Hooks
	shpName string
	shxName string
	shp     hooks.File
	shx     hooks.File // nil for a read-only handle opened without an index
	access  Access

	typ      ShapeType
	box      Box
	boxSet   bool
	fileSize int64
	offsets  []int64 // record start, bytes
	sizes    []int64 // content length after the record header, bytes

	updated bool
	closed  bool

	buf  []byte // raw record buffer, reused across reads
	wbuf []byte // encode buffer, reused across writes

	scratch scratchShape
	gen     uint64
}

// Open opens an existing shapefile with default options.
func Open(path string, access Access) (*Handle, error) {
	return OpenWithOptions(path, access, DefaultOpenOptions())
}

// OpenWithOptions opens an existing shapefile.
//
// path may name the .shp, the .shx or their common base name. The .shp
// header is validated and the record table is loaded from the .shx. With
// opts.RestoreIndex a missing or corrupt .shx is rebuilt by scanning the
// .shp instead of failing.
func OpenWithOptions(path string, access Access, opts OpenOptions) (*Handle, error) {
	hk := opts.Hooks.Resolve()
	base := basePath(path)

	f, name, err := openSibling(hk, base, ".shp", access == ReadWrite)
	if err != nil {
		return nil, ioErr("open", name, err)
	}

	h := &Handle{
		hooks:   hk,
		shpName: name,
		shp:     f,
		access:  access,
	}
	if err := h.load(base, opts.RestoreIndex); err != nil {
		h.closeFiles()
		return nil, err
	}
	return h, nil
}

// Create creates an empty shapefile of the given type with default options.
func Create(path string, typ ShapeType) (*Handle, error) {
	return CreateWithOptions(path, typ, DefaultOpenOptions())
}

// CreateWithOptions creates, or truncates, a .shp/.shx pair holding no
// records and returns a read-write handle on it.
func CreateWithOptions(path string, typ ShapeType, opts OpenOptions) (*Handle, error) {
	if !typ.Valid() {
		return nil, formatErr(path, "unsupported shape type %d", int32(typ))
	}
	hk := opts.Hooks.Resolve()
	base := basePath(path)

	h := &Handle{
		hooks:    hk,
		shpName:  base + ".shp",
		shxName:  base + ".shx",
		access:   ReadWrite,
		typ:      typ,
		fileSize: headerSize,
		updated:  true,
	}
	var err error
	if h.shp, err = hk.Create(h.shpName); err != nil {
		return nil, ioErr("create", h.shpName, err)
	}
	if h.shx, err = hk.Create(h.shxName); err != nil {
		h.closeFiles()
		return nil, ioErr("create", h.shxName, err)
	}
	if err := h.WriteHeader(); err != nil {
		h.closeFiles()
		return nil, err
	}
	return h, nil
}

func (h *Handle) load(base string, restore bool) error {
	hdr, size, err := readFileHeader(h.shp, h.shpName)
	if err != nil {
		return err
	}
	if !hdr.Type.Valid() {
		return formatErr(h.shpName, "unsupported shape type %d", int32(hdr.Type))
	}
	h.typ = hdr.Type
	h.box = hdr.Box
	h.fileSize = hdr.Length
	if hdr.Length != size {
		h.hooks.Errorf("%s: header length %d does not match file size %d", h.shpName, hdr.Length, size)
		h.fileSize = size
	}

	shx, name, err := openSibling(h.hooks, base, ".shx", h.access == ReadWrite)
	h.shxName = name
	if err != nil {
		h.shxName = indexName(h.shpName)
		if restore && errors.Is(err, fs.ErrNotExist) {
			return h.restore()
		}
		return ioErr("open", name, err)
	}
	h.shx = shx

	if err := h.loadIndex(); err != nil {
		if restore && errors.Is(err, ErrFormat) {
			h.hooks.Errorf("%v; rebuilding index from %s", err, h.shpName)
			return h.restore()
		}
		return err
	}
	h.boxSet = len(h.offsets) > 0
	return nil
}

func readFileHeader(f hooks.File, name string) (fileHeader, int64, error) {
	size, err := hooks.Size(f)
	if err != nil {
		return fileHeader{}, 0, ioErr("seek", name, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fileHeader{}, 0, ioErr("seek", name, err)
	}
	var b [headerSize]byte
	if _, err := io.ReadFull(f, b[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fileHeader{}, 0, formatErr(name, "file shorter than %d-byte header", headerSize)
		}
		return fileHeader{}, 0, ioErr("read", name, err)
	}
	hdr, err := decodeHeader(name, b[:])
	return hdr, size, err
}

// loadIndex replays the .shx entries into the offset/size table.
func (h *Handle) loadIndex() error {
	hdr, size, err := readFileHeader(h.shx, h.shxName)
	if err != nil {
		return err
	}
	if hdr.Length > size {
		return formatErr(h.shxName, "header length %d exceeds file size %d", hdr.Length, size)
	}
	n := (hdr.Length - headerSize) / indexEntrySize

	b := make([]byte, n*indexEntrySize)
	if _, err := io.ReadFull(h.shx, b); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return formatErr(h.shxName, "index truncated before %d records", n)
		}
		return ioErr("read", h.shxName, err)
	}

	h.offsets = make([]int64, n)
	h.sizes = make([]int64, n)
	for i := range h.offsets {
		p := b[i*indexEntrySize:]
		off := int64(uint32(wire.Int32BE(p[0:]))) * 2
		sz := int64(uint32(wire.Int32BE(p[4:]))) * 2
		if off < headerSize || off+recordHeaderSize+sz > h.fileSize {
			return formatErr(h.shxName, "record %d: offset %d and size %d outside %d-byte .shp", i, off, sz, h.fileSize)
		}
		h.offsets[i] = off
		h.sizes[i] = sz
	}
	return nil
}

// Type returns the shape type declared by the file header.
func (h *Handle) Type() ShapeType { return h.typ }

// Len returns the number of records.
func (h *Handle) Len() int { return len(h.offsets) }

// Bounds returns the file-level bounds over X, Y, Z and M.
func (h *Handle) Bounds() Box { return h.box }

// Path returns the name of the open .shp.
func (h *Handle) Path() string { return h.shpName }

// Access returns the access mode the handle was opened with.
func (h *Handle) Access() Access { return h.access }

// WriteHeader flushes the .shp header and the complete .shx.
func (h *Handle) WriteHeader() error {
	if h.closed {
		return ErrClosed
	}
	if h.access != ReadWrite {
		return ErrReadOnly
	}

	hdr := fileHeader{Length: h.fileSize, Type: h.typ, Box: h.box}
	var b [headerSize]byte
	hdr.encode(b[:])
	if err := writeAt(h.shp, h.shpName, 0, b[:]); err != nil {
		return err
	}
	if err := h.shp.Sync(); err != nil {
		return ioErr("sync", h.shpName, err)
	}

	if err := writeAt(h.shx, h.shxName, 0, encodeIndex(hdr, h.offsets, h.sizes)); err != nil {
		return err
	}
	if err := h.shx.Sync(); err != nil {
		return ioErr("sync", h.shxName, err)
	}
	h.updated = false
	return nil
}

// Close flushes dirty headers and releases both files. A handle closes
// exactly once; later calls return ErrClosed.
func (h *Handle) Close() error {
	if h.closed {
		return ErrClosed
	}
	var errs []error
	if h.updated {
		if err := h.WriteHeader(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, h.closeFiles()...)
	h.closed = true
	h.gen++
	return errors.Join(errs...)
}

func (h *Handle) closeFiles() []error {
	var errs []error
	if h.shp != nil {
		if err := h.shp.Close(); err != nil {
			errs = append(errs, ioErr("close", h.shpName, err))
		}
		h.shp = nil
	}
	if h.shx != nil {
		if err := h.shx.Close(); err != nil {
			errs = append(errs, ioErr("close", h.shxName, err))
		}
		h.shx = nil
	}
	return errs
}

func writeAt(f hooks.File, name string, off int64, b []byte) error {
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return ioErr("seek", name, err)
	}
	if _, err := f.Write(b); err != nil {
		return ioErr("write", name, err)
	}
	return nil
}
