// Package local implements a vfs.Primitive backed by a directory on the
// host filesystem.
package local

import (
	"errors"
	"io"
	"mime"
	"os"
	"path/filepath"
	"syscall"

	"github.com/zhangzqs/govfs/pkg/vfs"
)

// FileSystem roots every vfs.Path under Dir on the host filesystem.
type FileSystem struct {
	dir string
}

// NewFileSystem returns a backend rooted at dir. dir must already exist.
func NewFileSystem(dir string) *FileSystem {
	return &FileSystem{dir: dir}
}

func (fs *FileSystem) resolve(p vfs.Path) string {
	return filepath.Join(append([]string{fs.dir}, p.Segments()...)...)
}

func osErrToVFS(err error, p vfs.Path) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return vfs.NewError(vfs.CodeNotFound, &p, "path does not exist")
	}
	if os.IsExist(err) {
		return vfs.NewError(vfs.CodeAlreadyExists, &p, "path already exists")
	}
	if os.IsPermission(err) {
		return vfs.NewError(vfs.CodePermissionDenied, &p, "permission denied")
	}
	if errors.Is(err, syscall.ENOTDIR) {
		return vfs.NewError(vfs.CodeNotADirectory, &p, "not a directory")
	}
	if errors.Is(err, syscall.ENOTEMPTY) {
		return vfs.NewError(vfs.CodeNotEmptyDirectory, &p, "directory is not empty")
	}
	return vfs.WrapError(vfs.CodeIOError, &p, err)
}

func (fs *FileSystem) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	info, err := os.Stat(fs.resolve(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, osErrToVFS(err, p)
	}

	if info.IsDir() {
		st := vfs.NewDirectoryStatus(p)
		return &st, nil
	}

	// Sockets, devices and fifos have no sensible byte-stream contract.
	if !info.Mode().IsRegular() {
		return nil, vfs.NewError(vfs.CodeUnsupportedEntity, &p, "not a regular file or directory")
	}

	mimeType := mime.TypeByExtension(filepath.Ext(p.Filename()))
	st := vfs.NewFileStatus(p, info.Size(), mimeType)
	return &st, nil
}

func (fs *FileSystem) ListDirect(ctx *vfs.Context, p vfs.Path) vfs.Entries {
	return func(yield func(vfs.FileStatus, error) bool) {
		if err := ctx.CheckCancelled(); err != nil {
			yield(vfs.FileStatus{}, err)
			return
		}

		entries, err := os.ReadDir(fs.resolve(p))
		if err != nil {
			yield(vfs.FileStatus{}, osErrToVFS(err, p))
			return
		}

		for _, entry := range entries {
			child := p.Join(entry.Name())

			if entry.IsDir() {
				if !yield(vfs.NewDirectoryStatus(child), nil) {
					return
				}
				continue
			}

			info, err := entry.Info()
			if err != nil {
				yield(vfs.FileStatus{}, osErrToVFS(err, child))
				return
			}

			if !info.Mode().IsRegular() {
				continue
			}

			mimeType := mime.TypeByExtension(filepath.Ext(entry.Name()))
			if !yield(vfs.NewFileStatus(child, info.Size(), mimeType), nil) {
				return
			}
		}
	}
}

func (fs *FileSystem) OpenRead(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) (io.ReadCloser, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	f, err := os.Open(fs.resolve(p))
	if err != nil {
		return nil, osErrToVFS(err, p)
	}

	if opts.Start != nil {
		if _, err := f.Seek(*opts.Start, io.SeekStart); err != nil {
			f.Close()
			return nil, osErrToVFS(err, p)
		}
	}

	if opts.End != nil {
		start := int64(0)
		if opts.Start != nil {
			start = *opts.Start
		}
		return &limitedReadCloser{r: io.LimitReader(f, *opts.End-start), c: f}, nil
	}

	return f, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

func (fs *FileSystem) OpenWrite(ctx *vfs.Context, p vfs.Path, opts vfs.WriteOptions) (io.WriteCloser, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	flags := os.O_CREATE | os.O_WRONLY
	switch opts.Mode {
	case vfs.WriteModeAppend:
		flags |= os.O_APPEND
	case vfs.WriteModeFailIfExists:
		flags |= os.O_EXCL
	default:
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(fs.resolve(p), flags, 0o644)
	if err != nil {
		return nil, osErrToVFS(err, p)
	}
	return f, nil
}

func (fs *FileSystem) CreateDirectoryDirect(ctx *vfs.Context, p vfs.Path) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}
	if err := os.Mkdir(fs.resolve(p), 0o755); err != nil {
		return osErrToVFS(err, p)
	}
	return nil
}

func (fs *FileSystem) DeleteDirect(ctx *vfs.Context, p vfs.Path) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	path := fs.resolve(p)

	info, err := os.Stat(path)
	if err != nil {
		return osErrToVFS(err, p)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return osErrToVFS(err, p)
		}
		if len(entries) > 0 {
			return vfs.NewError(vfs.CodeNotEmptyDirectory, &p, "directory is not empty")
		}
	}

	if err := os.Remove(path); err != nil {
		return osErrToVFS(err, p)
	}
	return nil
}

func (fs *FileSystem) CopyFile(ctx *vfs.Context, src, dst vfs.Path, overwrite bool) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	srcFile, err := os.Open(fs.resolve(src))
	if err != nil {
		return osErrToVFS(err, src)
	}
	defer srcFile.Close()

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}

	dstFile, err := os.OpenFile(fs.resolve(dst), flags, 0o644)
	if err != nil {
		return osErrToVFS(err, dst)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return osErrToVFS(err, dst)
	}
	return nil
}

func (fs *FileSystem) Dispose() error {
	return nil
}
