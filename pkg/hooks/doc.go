// Package hooks is the I/O boundary of the shapefile codecs.
//
// Every file the geometry codec or the index codecs touch is opened,
// read, written, positioned, flushed, closed and removed through a [Hooks]
// table. Nothing below this package calls the os package directly, so a
// table backed by [MemFS] gives a fully virtual, deterministic store and a
// table wrapping [FaultyFS] injects I/O failures.
//
// # Tables
//
//   - [Default]: local filesystem, diagnostics to slog.Default()
//   - [New]: local filesystem, diagnostics to the given *slog.Logger
//   - [Discard]: local filesystem, diagnostics dropped
//
// A table is a plain value. Callers pass it explicitly at open time; there
// is no package-level mutable default.
//
// # Diagnostics
//
// The Error hook is the only channel for non-fatal messages such as
// malformed-file warnings. It must not abort the process.
//
//	h := hooks.New(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
//	h.FS = hooks.NewMemFS()
//	f, err := h.Create("roads.shp")
package hooks
