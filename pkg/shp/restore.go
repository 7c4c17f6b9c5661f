package shp

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/beetlebugorg/shapelib/internal/wire"
	"github.com/beetlebugorg/shapelib/pkg/hooks"
)

// RestoreIndex rebuilds the .shx next to path by scanning the .shp record
// headers and returns the number of records indexed. An existing .shx is
// overwritten.
func RestoreIndex(path string, opts OpenOptions) (int, error) {
	hk := opts.Hooks.Resolve()
	base := basePath(path)

	f, name, err := openSibling(hk, base, ".shp", false)
	if err != nil {
		return 0, ioErr("open", name, err)
	}
	defer f.Close()

	hdr, size, err := readFileHeader(f, name)
	if err != nil {
		return 0, err
	}
	offsets, sizes, err := scanRecords(f, name, size, hk)
	if err != nil {
		return 0, err
	}

	shxName := indexName(name)
	out, err := hk.Create(shxName)
	if err != nil {
		return 0, ioErr("create", shxName, err)
	}
	hdr.Length = size
	if err := writeAt(out, shxName, 0, encodeIndex(hdr, offsets, sizes)); err != nil {
		out.Close()
		return 0, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return 0, ioErr("sync", shxName, err)
	}
	if err := out.Close(); err != nil {
		return 0, ioErr("close", shxName, err)
	}
	return len(offsets), nil
}

// restore replaces the record table with one scanned from the .shp. A
// read-write handle also rewrites its .shx.
func (h *Handle) restore() error {
	offsets, sizes, err := scanRecords(h.shp, h.shpName, h.fileSize, h.hooks)
	if err != nil {
		return err
	}
	h.offsets, h.sizes = offsets, sizes
	h.boxSet = len(offsets) > 0

	if h.shx != nil {
		h.shx.Close()
		h.shx = nil
	}
	if h.access != ReadWrite {
		return nil
	}

	f, err := h.hooks.Create(h.shxName)
	if err != nil {
		return ioErr("create", h.shxName, err)
	}
	h.shx = f
	hdr := fileHeader{Length: h.fileSize, Type: h.typ, Box: h.box}
	if err := writeAt(f, h.shxName, 0, encodeIndex(hdr, offsets, sizes)); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return ioErr("sync", h.shxName, err)
	}
	return nil
}

// scanRecords walks the record headers from the end of the file header.
// The walk stops at the first header whose content length runs past the
// end of the file; the records before it are kept.
func scanRecords(f hooks.File, name string, fileSize int64, hk hooks.Hooks) ([]int64, []int64, error) {
	if _, err := f.Seek(headerSize, io.SeekStart); err != nil {
		return nil, nil, ioErr("seek", name, err)
	}
	r := bufio.NewReader(f)

	var offsets, sizes []int64
	var rh [recordHeaderSize]byte
	off := int64(headerSize)
	for off+recordHeaderSize <= fileSize {
		if _, err := io.ReadFull(r, rh[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, nil, ioErr("read", name, err)
		}
		sz := int64(uint32(wire.Int32BE(rh[4:]))) * 2
		if sz < 4 || off+recordHeaderSize+sz > fileSize {
			hk.Errorf("%s: record %d at offset %d has content length %d past end of file; index stops there",
				name, len(offsets), off, sz)
			break
		}
		if _, err := r.Discard(int(sz)); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, ioErr("read", name, err)
		}
		offsets = append(offsets, off)
		sizes = append(sizes, sz)
		off += recordHeaderSize + sz
	}
	return offsets, sizes, nil
}

// indexName returns the .shx name matching the case of a .shp name.
func indexName(shpName string) string {
	base := basePath(shpName)
	if strings.HasSuffix(shpName, ".SHP") {
		return base + ".SHX"
	}
	return base + ".shx"
}
