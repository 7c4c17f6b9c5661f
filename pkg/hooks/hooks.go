package hooks

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Hooks is the table every open call takes.
//
// A nil field is filled from [Default] by [Hooks.Resolve].
type Hooks struct {
	// FS performs open and remove-by-name. Read, write, seek, tell,
	// flush and close go through the File values it returns.
	FS FileSystem

	// Error receives non-fatal diagnostics.
	Error func(msg string)

	// Atof converts a string to a double independently of the locale.
	Atof func(s string) float64
}

// New returns a table over the local filesystem that reports diagnostics
// to logger at WARN level.
func New(logger *slog.Logger) Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "shapelib")
	return Hooks{
		FS: LocalFS{},
		Error: func(msg string) {
			logger.Warn(msg)
		},
		Atof: ParseFloat,
	}
}

// Default returns a table over the local filesystem that reports
// diagnostics to slog.Default().
func Default() Hooks {
	return New(nil)
}

// Discard returns a table over the local filesystem that drops diagnostics.
func Discard() Hooks {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Resolve fills nil fields from Default.
func (h Hooks) Resolve() Hooks {
	if h.FS != nil && h.Error != nil && h.Atof != nil {
		return h
	}
	d := Default()
	if h.FS == nil {
		h.FS = d.FS
	}
	if h.Error == nil {
		h.Error = d.Error
	}
	if h.Atof == nil {
		h.Atof = d.Atof
	}
	return h
}

// Open opens an existing file for reading, or for reading and writing
// when write is set.
func (h Hooks) Open(name string, write bool) (File, error) {
	flag := os.O_RDONLY
	if write {
		flag = os.O_RDWR
	}
	return h.Resolve().FS.OpenFile(name, flag, 0)
}

// Create creates or truncates name for reading and writing.
func (h Hooks) Create(name string) (File, error) {
	return h.Resolve().FS.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

// Remove deletes name.
func (h Hooks) Remove(name string) error {
	return h.Resolve().FS.Remove(name)
}

// Errorf formats a diagnostic and hands it to the Error hook.
func (h Hooks) Errorf(format string, args ...any) {
	if h.Error == nil {
		h = h.Resolve()
	}
	h.Error(fmt.Sprintf(format, args...))
}

// ParseFloat converts the longest numeric prefix of s to a double using
// '.' as the decimal separator. It returns 0 when s has no numeric prefix.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := numericPrefix(s)
	if end == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return v
}

func numericPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}
