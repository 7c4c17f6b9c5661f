package hooks

import (
	"io"
	"os"
)

// File is an open file as seen by the codecs.
//
// Tell is Seek(0, io.SeekCurrent) and Flush is Sync.
type File interface {
	io.ReadWriteCloser
	io.Seeker
	Sync() error
}

// FileSystem abstracts the filesystem operations the codecs need.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
}

// LocalFS implements FileSystem using the local os package.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (LocalFS) Remove(name string) error { return os.Remove(name) }

// Tell reports the current offset of f.
func Tell(f File) (int64, error) {
	return f.Seek(0, io.SeekCurrent)
}

// Size reports the size of f and restores the current offset.
func Size(f File) (int64, error) {
	cur, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}
