package hooks

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFSRoundTrip(t *testing.T) {
	m := NewMemFS()
	h := Hooks{FS: m}

	f, err := h.Create("a.shp")
	require.NoError(t, err)

	_, err = f.Write([]byte("hello world"))
	require.NoError(t, err)

	pos, err := Tell(f)
	require.NoError(t, err)
	assert.Equal(t, int64(11), pos)

	_, err = f.Seek(6, io.SeekStart)
	require.NoError(t, err)
	_, err = f.Write([]byte("there"))
	require.NoError(t, err)

	size, err := Size(f)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	got, err := m.ReadFile("a.shp")
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(got))

	r, err := h.Open("a.shp", false)
	require.NoError(t, err)
	_, err = r.Write([]byte("x"))
	assert.ErrorIs(t, err, fs.ErrPermission)

	buf := make([]byte, 5)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	require.NoError(t, r.Close())
	assert.Error(t, r.Close())
}

func TestMemFSSparseWrite(t *testing.T) {
	m := NewMemFS()
	f, err := Hooks{FS: m}.Create("sparse")
	require.NoError(t, err)

	_, err = f.Seek(4, io.SeekStart)
	require.NoError(t, err)
	_, err = f.Write([]byte{1})
	require.NoError(t, err)

	got, err := m.ReadFile("sparse")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 1}, got)
}

func TestMemFSMissingAndRemove(t *testing.T) {
	m := NewMemFS()
	h := Hooks{FS: m}

	_, err := h.Open("missing.shx", true)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	m.WriteFile("x.qix", []byte{1, 2})
	assert.True(t, m.Exists("x.qix"))
	require.NoError(t, h.Remove("x.qix"))
	assert.False(t, m.Exists("x.qix"))
	assert.ErrorIs(t, h.Remove("x.qix"), fs.ErrNotExist)
}

func TestLocalFS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.bin")
	h := Discard()

	f, err := h.Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := h.Open(path, false)
	require.NoError(t, err)
	size, err := Size(r)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
	require.NoError(t, r.Close())

	require.NoError(t, h.Remove(path))
}

func TestErrorHookUsesLogger(t *testing.T) {
	var buf bytes.Buffer
	h := New(slog.New(slog.NewTextHandler(&buf, nil)))

	h.Errorf("bad record %d", 7)
	assert.Contains(t, buf.String(), "bad record 7")
	assert.Contains(t, buf.String(), "component=shapelib")
}

func TestResolveFillsNilFields(t *testing.T) {
	var got []string
	h := Hooks{Error: func(msg string) { got = append(got, msg) }}.Resolve()

	assert.NotNil(t, h.FS)
	assert.NotNil(t, h.Atof)
	h.Errorf("warn")
	assert.Equal(t, []string{"warn"}, got)
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12.5", 12.5},
		{"  -3.25  ", -3.25},
		{"1e3", 1000},
		{"2.5E-1xyz", 0.25},
		{"7abc", 7},
		{"1e", 1},
		{".5", 0.5},
		{"", 0},
		{"abc", 0},
		{"-", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFloat(tt.in))
		})
	}
}

func TestFaultyFS(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule(".shx", Fault{FailAfterBytes: 4})
	h := Hooks{FS: ffs}

	f, err := h.Create("a.shx")
	require.NoError(t, err)
	_, err = f.Write([]byte("1234"))
	require.NoError(t, err)
	_, err = f.Write([]byte("5"))
	assert.ErrorIs(t, err, ErrInjected)

	g, err := h.Create("a.shp")
	require.NoError(t, err)
	_, err = g.Write([]byte(strings.Repeat("x", 64)))
	assert.NoError(t, err)

	custom := errors.New("disk gone")
	ffs.AddRule(".qix", Fault{FailOnOpen: true, FailAfterBytes: -1, Err: custom})
	_, err = h.Create("a.qix")
	assert.ErrorIs(t, err, custom)

	ffs.ClearRules()
	ffs.AddRule(".dat", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnClose: true})
	d, err := h.Create("a.dat")
	require.NoError(t, err)
	assert.ErrorIs(t, d.Sync(), ErrInjected)
	assert.ErrorIs(t, d.Close(), ErrInjected)
}

func TestMemFSTruncateClearsGap(t *testing.T) {
	m := NewMemFS()
	m.WriteFile("reuse", []byte{9, 9, 9, 9, 9, 9})
	f, err := Hooks{FS: m}.Create("reuse")
	require.NoError(t, err)

	_, err = f.Seek(3, io.SeekStart)
	require.NoError(t, err)
	_, err = f.Write([]byte{1})
	require.NoError(t, err)

	got, err := m.ReadFile("reuse")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 1}, got)
}

func TestFaultyFSLastMatchingRuleWins(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	for i := 0; i < 20; i++ {
		ffs := NewFaultyFS(nil)
		ffs.AddRule("roads", Fault{FailOnOpen: true, FailAfterBytes: -1, Err: first})
		ffs.AddRule(".shp", Fault{FailOnOpen: true, FailAfterBytes: -1, Err: second})
		h := Hooks{FS: ffs}

		_, err := h.Create("roads.shp")
		require.ErrorIs(t, err, second)
		_, err = h.Create("roads.shx")
		require.ErrorIs(t, err, first)

		// re-adding makes the rule the most recent
		ffs.AddRule("roads", Fault{FailOnOpen: true, FailAfterBytes: -1, Err: first})
		_, err = h.Create("roads.shp")
		require.ErrorIs(t, err, first)
	}
}
