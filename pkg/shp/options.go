package shp

import "github.com/beetlebugorg/shapelib/pkg/hooks"

// Access selects how a handle opens its files.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// OpenOptions configures Open and Create.
type OpenOptions struct {
	// Hooks is the I/O table. Nil fields fall back to hooks.Default().
	Hooks hooks.Hooks

	// RestoreIndex rebuilds a missing or corrupt .shx by scanning the
	// .shp. Under read-write access the rebuilt index is written to disk;
	// under read-only access it is kept in memory only.
	// Default: false (a missing or corrupt index fails the open)
	RestoreIndex bool
}

// DefaultOpenOptions returns open options with defaults
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		Hooks:        hooks.Default(),
		RestoreIndex: false,
	}
}
