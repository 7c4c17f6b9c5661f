// Package shp reads and writes ESRI Shapefile geometry: the .shp record
// file and its .shx offset index.
//
// # Opening
//
//	h, err := shp.Open("roads.shp", shp.ReadOnly)
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	for i := 0; i < h.Len(); i++ {
//		s, err := h.ReadShape(i)
//		...
//	}
//
// All file access goes through the [hooks.Hooks] table in [OpenOptions].
// Passing a table over [hooks.MemFS] keeps a shapefile entirely in memory.
//
// # Writing
//
// [Create] starts an empty file of one shape type. [Handle.WriteShape]
// appends a record or rewrites an existing one; a record that no longer
// fits is moved to the end of the .shp. Headers are flushed by
// [Handle.WriteHeader] and on [Handle.Close].
//
// # Borrowed reads
//
// [Handle.ReadShapeBorrowed] decodes into a buffer owned by the handle.
// The next borrowed read invalidates it; [Borrowed.Shape] then returns
// [ErrStaleShape] instead of silently exposing reused memory.
//
// # Errors
//
// Failures match one of the sentinels with errors.Is: [ErrFormat] for
// malformed content, [ErrIndex] for an out-of-range record, [ErrIO] for a
// failed hook call, plus [ErrClosed], [ErrReadOnly] and [ErrFileTooLarge].
package shp
