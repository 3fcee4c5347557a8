// Package alias implements a path-reprojection decorator: a FileSystem
// that rebases every call under a subDirectory prefix of an inner
// FileSystem.
package alias

import (
	"io"

	"github.com/zhangzqs/govfs/pkg/vfs"
)

// FileSystem rewrites every incoming path p to subDir.JoinAll(p.Segments())
// before delegating to inner, and strips subDir back off of every path
// in a result. A result whose path does not fall under subDir does not
// belong to this alias and is dropped.
type FileSystem struct {
	inner  vfs.FileSystem
	subDir vfs.Path
}

// NewFileSystem roots a view of inner at subDir.
func NewFileSystem(inner vfs.FileSystem, subDir vfs.Path) *FileSystem {
	return &FileSystem{inner: inner, subDir: subDir}
}

func (f *FileSystem) rebase(p vfs.Path) vfs.Path {
	return f.subDir.JoinAll(p.Segments())
}

// project strips subDir off p, reporting ok=false if p does not fall
// under subDir.
func (f *FileSystem) project(p vfs.Path) (vfs.Path, bool) {
	if !p.HasPrefix(f.subDir) {
		return vfs.Path{}, false
	}
	return p.TrimPrefix(f.subDir), true
}

func (f *FileSystem) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	st, err := f.inner.Stat(ctx, f.rebase(p))
	if err != nil || st == nil {
		return st, err
	}
	projected, ok := f.project(st.Path)
	if !ok {
		return nil, nil
	}
	st.Path = projected
	return st, nil
}

func (f *FileSystem) Exists(ctx *vfs.Context, p vfs.Path) (bool, error) {
	return f.inner.Exists(ctx, f.rebase(p))
}

func (f *FileSystem) List(ctx *vfs.Context, p vfs.Path, opts vfs.ListOptions) vfs.Entries {
	return func(yield func(vfs.FileStatus, error) bool) {
		for st, err := range f.inner.List(ctx, f.rebase(p), opts) {
			if err != nil {
				if !yield(vfs.FileStatus{}, err) {
					return
				}
				continue
			}
			projected, ok := f.project(st.Path)
			if !ok {
				continue
			}
			st.Path = projected
			if !yield(st, nil) {
				return
			}
		}
	}
}

func (f *FileSystem) OpenRead(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) (io.ReadCloser, error) {
	return f.inner.OpenRead(ctx, f.rebase(p), opts)
}

func (f *FileSystem) OpenWrite(ctx *vfs.Context, p vfs.Path, opts vfs.WriteOptions) (io.WriteCloser, error) {
	return f.inner.OpenWrite(ctx, f.rebase(p), opts)
}

func (f *FileSystem) WriteBytes(ctx *vfs.Context, p vfs.Path, data []byte, opts vfs.WriteOptions) error {
	return f.inner.WriteBytes(ctx, f.rebase(p), data, opts)
}

func (f *FileSystem) ReadAsBytes(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) ([]byte, error) {
	return f.inner.ReadAsBytes(ctx, f.rebase(p), opts)
}

func (f *FileSystem) CreateDirectory(ctx *vfs.Context, p vfs.Path, opts vfs.CreateDirectoryOptions) error {
	return f.inner.CreateDirectory(ctx, f.rebase(p), opts)
}

func (f *FileSystem) Delete(ctx *vfs.Context, p vfs.Path, opts vfs.DeleteOptions) error {
	return f.inner.Delete(ctx, f.rebase(p), opts)
}

func (f *FileSystem) Copy(ctx *vfs.Context, src, dst vfs.Path, opts vfs.CopyOptions) error {
	return f.inner.Copy(ctx, f.rebase(src), f.rebase(dst), opts)
}

func (f *FileSystem) Move(ctx *vfs.Context, src, dst vfs.Path, opts vfs.MoveOptions) error {
	return f.inner.Move(ctx, f.rebase(src), f.rebase(dst), opts)
}

func (f *FileSystem) Dispose() error {
	return nil
}
