package fs

import (
	"errors"

	"github.com/kestrelfs/ccfs/ccfserr"
)

// NodeType distinguishes directories from files in VFS-facing results.
type NodeType int

const (
	// NodeTypeFile marks a node as a file.
	NodeTypeFile NodeType = iota
	// NodeTypeDir marks a node as a directory.
	NodeTypeDir
)

// Attr is the VFS-facing attribute set returned by GetAttr on both
// DirNode and FileNode. Mode carries plain permission bits; the node type
// lives in Type rather than being packed into the mode.
type Attr struct {
	Type   NodeType
	Mode   uint32
	Size   uint64
	Blocks uint64
}

// External error classification. Internally every layer below fs returns
// *ccfserr.Error sentinels; callers working against the node tree see this
// smaller, VFS-shaped taxonomy instead.
var (
	// ErrNotFound reports that a named entry does not exist.
	ErrNotFound = errors.New("ccfs: not found")
	// ErrInvalidInput reports a malformed path or argument.
	ErrInvalidInput = errors.New("ccfs: invalid input")
	// ErrDirectoryNotEmpty reports an attempt to remove a non-empty directory.
	ErrDirectoryNotEmpty = errors.New("ccfs: directory not empty")
	// ErrUnsupported reports an operation the engine does not implement.
	ErrUnsupported = errors.New("ccfs: unsupported")
)

// translateError maps an internal ccfserr sentinel onto the external,
// VFS-facing taxonomy. Errors that don't match any of the sentinels below
// are reported as ErrUnsupported.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ccfserr.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ccfserr.ErrExists):
		return ErrInvalidInput
	case errors.Is(err, ccfserr.ErrInvalidArgument):
		return ErrInvalidInput
	case errors.Is(err, ccfserr.ErrNotADirectory):
		return ErrInvalidInput
	case errors.Is(err, ccfserr.ErrNotEmpty):
		return ErrDirectoryNotEmpty
	case errors.Is(err, ccfserr.ErrUnsupported):
		return ErrUnsupported
	default:
		return ErrUnsupported
	}
}
