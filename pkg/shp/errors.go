package shp

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat matches every *FormatError.
	ErrFormat = errors.New("malformed shapefile")

	// ErrIndex matches every *IndexError.
	ErrIndex = errors.New("shape index out of range")

	// ErrIO matches every *IOError.
	ErrIO = errors.New("shapefile i/o failure")

	// ErrClosed is returned by any call on a closed handle.
	ErrClosed = errors.New("shapefile handle is closed")

	// ErrReadOnly is returned by write calls on a read-only handle.
	ErrReadOnly = errors.New("shapefile handle is read-only")

	// ErrStaleShape is returned by a Borrowed whose buffer was reused.
	ErrStaleShape = errors.New("borrowed shape invalidated by a later read")

	// ErrFileTooLarge is returned when a write would overflow the 32-bit
	// file length field.
	ErrFileTooLarge = errors.New("shapefile size limit reached")
)

// FormatError reports bad magic, inconsistent lengths, out-of-range part
// starts or an unsupported shape type.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %v: %s", e.Path, ErrFormat, e.Reason)
	}
	return fmt.Sprintf("%v: %s", ErrFormat, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// IndexError reports a shape index outside the record table.
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%v: %d not in [0, %d)", ErrIndex, e.Index, e.Count)
}

func (e *IndexError) Is(target error) bool { return target == ErrIndex }

// IOError reports a failed open, read, write or seek.
//
// The original underlying error can be accessed via errors.Unwrap.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

func formatErr(path, format string, args ...any) error {
	return &FormatError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func ioErr(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
