// Package memory implements an in-process vfs.Primitive backed by a
// mutex-guarded map of nodes. It is the reference backend used by the
// vfstest suite and is useful as a cache tier or for tests that should
// not touch disk.
package memory

import (
	"bytes"
	"io"
	"mime"
	"path/filepath"
	"sync"
	"time"

	"github.com/zhangzqs/govfs/pkg/vfs"
)

type node struct {
	isDir    bool
	data     []byte
	mimeType string
	modTime  time.Time
}

// FileSystem is a vfs.Primitive storing every node in memory.
type FileSystem struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

// NewFileSystem returns an empty in-memory backend, pre-seeded with the
// root directory.
func NewFileSystem() *FileSystem {
	return &FileSystem{
		nodes: map[string]*node{
			vfs.Root.String(): {isDir: true, modTime: time.Now()},
		},
	}
}

func (fs *FileSystem) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, ok := fs.nodes[p.String()]
	if !ok {
		return nil, nil
	}

	if n.isDir {
		st := vfs.NewDirectoryStatus(p)
		return &st, nil
	}

	st := vfs.NewFileStatus(p, int64(len(n.data)), n.mimeType)
	return &st, nil
}

func (fs *FileSystem) ListDirect(ctx *vfs.Context, p vfs.Path) vfs.Entries {
	return func(yield func(vfs.FileStatus, error) bool) {
		if err := ctx.CheckCancelled(); err != nil {
			yield(vfs.FileStatus{}, err)
			return
		}

		fs.mu.RLock()

		parent, ok := fs.nodes[p.String()]
		if !ok {
			fs.mu.RUnlock()
			yield(vfs.FileStatus{}, vfs.NewError(vfs.CodeNotFound, &p, "directory does not exist"))
			return
		}
		if !parent.isDir {
			fs.mu.RUnlock()
			yield(vfs.FileStatus{}, vfs.NewError(vfs.CodeNotADirectory, &p, "not a directory"))
			return
		}

		// Children are collected under the lock and yielded after it is
		// released, so the consumer may call back into fs.
		var children []vfs.FileStatus
		for path, n := range fs.nodes {
			child, err := vfs.ParsePath(path)
			if err != nil {
				continue
			}
			if child.IsRoot() || !child.Parent().Equal(p) {
				continue
			}

			var st vfs.FileStatus
			if n.isDir {
				st = vfs.NewDirectoryStatus(child)
			} else {
				st = vfs.NewFileStatus(child, int64(len(n.data)), n.mimeType)
			}
			children = append(children, st)
		}
		fs.mu.RUnlock()

		for _, st := range children {
			if !yield(st, nil) {
				return
			}
		}
	}
}

func (fs *FileSystem) OpenRead(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) (io.ReadCloser, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	n, ok := fs.nodes[p.String()]
	fs.mu.RUnlock()
	if !ok {
		return nil, vfs.NewError(vfs.CodeNotFound, &p, "file does not exist")
	}

	data := n.data
	start := int64(0)
	end := int64(len(data))
	if opts.Start != nil {
		start = *opts.Start
	}
	if opts.End != nil {
		end = *opts.End
	}
	if start < 0 || end > int64(len(data)) || start > end {
		return nil, vfs.NewError(vfs.CodeIOError, &p, "invalid byte range")
	}

	return io.NopCloser(bytes.NewReader(data[start:end])), nil
}

type writer struct {
	fs   *FileSystem
	path vfs.Path
	buf  bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()

	n, exists := w.fs.nodes[w.path.String()]
	if !exists {
		n = &node{}
		w.fs.nodes[w.path.String()] = n
	}
	n.data = w.buf.Bytes()
	n.mimeType = mime.TypeByExtension(filepath.Ext(w.path.Filename()))
	n.modTime = time.Now()
	return nil
}

func (fs *FileSystem) OpenWrite(ctx *vfs.Context, p vfs.Path, opts vfs.WriteOptions) (io.WriteCloser, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	w := &writer{fs: fs, path: p}

	if opts.Mode == vfs.WriteModeAppend {
		fs.mu.RLock()
		if n, ok := fs.nodes[p.String()]; ok {
			w.buf.Write(n.data)
		}
		fs.mu.RUnlock()
	}

	return w, nil
}

func (fs *FileSystem) CreateDirectoryDirect(ctx *vfs.Context, p vfs.Path) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !p.IsRoot() {
		parent, ok := fs.nodes[p.Parent().String()]
		if !ok || !parent.isDir {
			return vfs.NewError(vfs.CodeNotFound, &p, "parent directory does not exist")
		}
	}

	fs.nodes[p.String()] = &node{isDir: true, modTime: time.Now()}
	return nil
}

func (fs *FileSystem) DeleteDirect(ctx *vfs.Context, p vfs.Path) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, ok := fs.nodes[p.String()]
	if !ok {
		return vfs.NewError(vfs.CodeNotFound, &p, "path does not exist")
	}

	if n.isDir {
		for path := range fs.nodes {
			child, err := vfs.ParsePath(path)
			if err != nil || child.IsRoot() {
				continue
			}
			if child.Parent().Equal(p) {
				return vfs.NewError(vfs.CodeNotEmptyDirectory, &p, "directory is not empty")
			}
		}
	}

	delete(fs.nodes, p.String())
	return nil
}

func (fs *FileSystem) CopyFile(ctx *vfs.Context, src, dst vfs.Path, overwrite bool) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	srcNode, ok := fs.nodes[src.String()]
	if !ok {
		return vfs.NewError(vfs.CodeNotFound, &src, "source does not exist")
	}

	if _, exists := fs.nodes[dst.String()]; exists && !overwrite {
		return vfs.NewError(vfs.CodeAlreadyExists, &dst, "destination already exists")
	}

	data := make([]byte, len(srcNode.data))
	copy(data, srcNode.data)

	fs.nodes[dst.String()] = &node{
		data:     data,
		mimeType: srcNode.mimeType,
		modTime:  time.Now(),
	}
	return nil
}

func (fs *FileSystem) Dispose() error {
	return nil
}
