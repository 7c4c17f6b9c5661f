package hooks

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
)

// MemFS is an in-memory FileSystem. Files survive Close and can be
// reopened by name, so a shapefile written through MemFS can be read back
// by a second handle.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memData
}

type memData struct {
	mu sync.Mutex
	b  []byte
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string]*memData)}
}

func (m *MemFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.files[name]
	switch {
	case !ok && flag&os.O_CREATE == 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	case ok && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	case !ok:
		d = &memData{}
		m.files[name] = d
	}
	if flag&os.O_TRUNC != 0 {
		d.mu.Lock()
		d.b = d.b[:0]
		d.mu.Unlock()
	}

	return &memFile{
		name:     name,
		d:        d,
		writable: flag&(os.O_WRONLY|os.O_RDWR) != 0,
		append:   flag&os.O_APPEND != 0,
	}, nil
}

func (m *MemFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, name)
	return nil
}

// Exists reports whether name is present.
func (m *MemFS) Exists(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok
}

// ReadFile returns a copy of the contents of name.
func (m *MemFS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	d, ok := m.files[name]
	m.mu.Unlock()
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.b...), nil
}

// WriteFile replaces the contents of name, creating it if needed.
func (m *MemFS) WriteFile(name string, b []byte) {
	m.mu.Lock()
	d, ok := m.files[name]
	if !ok {
		d = &memData{}
		m.files[name] = d
	}
	m.mu.Unlock()
	d.mu.Lock()
	d.b = append(d.b[:0], b...)
	d.mu.Unlock()
}

type memFile struct {
	name     string
	d        *memData
	pos      int64
	writable bool
	append   bool
	closed   bool
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: fs.ErrClosed}
	}
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	if f.pos >= int64(len(f.d.b)) {
		return 0, io.EOF
	}
	n := copy(p, f.d.b[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, &fs.PathError{Op: "write", Path: f.name, Err: fs.ErrClosed}
	}
	if !f.writable {
		return 0, &fs.PathError{Op: "write", Path: f.name, Err: fs.ErrPermission}
	}
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	if f.append {
		f.pos = int64(len(f.d.b))
	}
	end := f.pos + int64(len(p))
	if n := int64(len(f.d.b)); end > n {
		if end > int64(cap(f.d.b)) {
			grown := make([]byte, end, end*2)
			copy(grown, f.d.b)
			f.d.b = grown
		} else {
			f.d.b = f.d.b[:end]
			clear(f.d.b[n:])
		}
	}
	copy(f.d.b[f.pos:end], p)
	f.pos = end
	return len(p), nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: fs.ErrClosed}
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		f.d.mu.Lock()
		base = int64(len(f.d.b))
		f.d.mu.Unlock()
	default:
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: errors.New("invalid whence")}
	}
	if base+offset < 0 {
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: errors.New("negative position")}
	}
	f.pos = base + offset
	return f.pos, nil
}

func (f *memFile) Sync() error {
	if f.closed {
		return &fs.PathError{Op: "sync", Path: f.name, Err: fs.ErrClosed}
	}
	return nil
}

func (f *memFile) Close() error {
	if f.closed {
		return &fs.PathError{Op: "close", Path: f.name, Err: fs.ErrClosed}
	}
	f.closed = true
	return nil
}
