package vfs

import (
	"io"
	"iter"
)

// Entries is a lazy sequence of directory entries. Consumers range over
// it with `for stat, err := range entries`; an iteration that stops
// early (break) lets the producer release any resources it holds open.
type Entries = iter.Seq2[FileStatus, error]

// FileSystem is the uniform contract every backend and every composed
// backend (alias, union, metadata-cache, block-cache) satisfies. All
// operations take a *Context as the first argument and observe its
// cancellation at suspension points.
type FileSystem interface {
	// Stat returns the status of p, or (nil, nil) if p does not exist.
	Stat(ctx *Context, p Path) (*FileStatus, error)
	// Exists reports whether p names an existing file or directory.
	Exists(ctx *Context, p Path) (bool, error)
	// List enumerates the children of directory p.
	List(ctx *Context, p Path, opts ListOptions) Entries
	// OpenRead opens a lazy byte stream over p, optionally bounded by
	// opts. The caller must Close the result.
	OpenRead(ctx *Context, p Path, opts ReadOptions) (io.ReadCloser, error)
	// OpenWrite opens a streaming sink at p. Bytes are durable only once
	// Close succeeds.
	OpenWrite(ctx *Context, p Path, opts WriteOptions) (io.WriteCloser, error)
	// WriteBytes writes the full buffer data to p.
	WriteBytes(ctx *Context, p Path, data []byte, opts WriteOptions) error
	// ReadAsBytes reads the full (optionally bounded) content of p.
	ReadAsBytes(ctx *Context, p Path, opts ReadOptions) ([]byte, error)
	// CreateDirectory creates directory p, optionally creating missing
	// ancestors.
	CreateDirectory(ctx *Context, p Path, opts CreateDirectoryOptions) error
	// Delete removes a file, or a directory (optionally recursively).
	Delete(ctx *Context, p Path, opts DeleteOptions) error
	// Copy copies src onto dst per the generic copy driver semantics.
	Copy(ctx *Context, src, dst Path, opts CopyOptions) error
	// Move copies then deletes src, by default.
	Move(ctx *Context, src, dst Path, opts MoveOptions) error
	// Dispose releases backend resources (connections, timers, handles).
	Dispose() error
}

// Primitive is the smaller surface a concrete backend must implement.
// Recursive list/delete/createDirectory and the full copy/move matrix
// are synthesized once, generically, by Wrap (see helpers.go) from
// these non-recursive operations.
type Primitive interface {
	Stat(ctx *Context, p Path) (*FileStatus, error)
	// ListDirect enumerates only the immediate children of p.
	ListDirect(ctx *Context, p Path) Entries
	OpenRead(ctx *Context, p Path, opts ReadOptions) (io.ReadCloser, error)
	OpenWrite(ctx *Context, p Path, opts WriteOptions) (io.WriteCloser, error)
	// CreateDirectoryDirect creates exactly p; it does not create
	// ancestors and fails CodeNotFound if the parent is absent.
	CreateDirectoryDirect(ctx *Context, p Path) error
	// DeleteDirect removes a file, or an already-empty directory.
	// Non-empty directories raise CodeNotEmptyDirectory.
	DeleteDirect(ctx *Context, p Path) error
	// CopyFile copies a single file from src to dst. dst's parent is
	// guaranteed to exist and be a directory by the time this is called.
	CopyFile(ctx *Context, src, dst Path, overwrite bool) error
	Dispose() error
}
