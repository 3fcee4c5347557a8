// Package s3 implements a vfs.Primitive backed by an S3-compatible
// object store via the minio client. Directories have no first-class
// representation in S3: a zero-byte ".keepdir" marker object under each
// directory prefix stands in for them.
package s3

import (
	"bytes"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

const (
	keepDirFile     = ".keepdir"
	defaultBufSize  = 1 << 20 // 1MB
)

// FileSystem is a vfs.Primitive storing objects in a single S3 bucket.
type FileSystem struct {
	client *minio.Client
	bucket string
}

// NewFileSystem returns a backend writing to bucket through client.
func NewFileSystem(client *minio.Client, bucket string) *FileSystem {
	return &FileSystem{client: client, bucket: bucket}
}

func key(p vfs.Path) string {
	return strings.Join(p.Segments(), "/")
}

func dirPrefix(p vfs.Path) string {
	k := key(p)
	if k == "" {
		return ""
	}
	return k + "/"
}

func s3ErrToVFS(err error, p vfs.Path) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return vfs.NewError(vfs.CodeNotFound, &p, "object does not exist")
	}
	return vfs.WrapError(vfs.CodeIOError, &p, err)
}

func (fs *FileSystem) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	if p.IsRoot() {
		st := vfs.NewDirectoryStatus(p)
		return &st, nil
	}

	info, err := fs.client.StatObject(ctx.Context, fs.bucket, key(p), minio.GetObjectOptions{})
	if err == nil {
		mimeType := info.ContentType
		st := vfs.NewFileStatus(p, info.Size, mimeType)
		return &st, nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code != "NoSuchKey" {
		return nil, vfs.WrapError(vfs.CodeIOError, &p, err)
	}

	// Might be a directory: any object under the prefix proves existence.
	exists, err := fs.hasAnyUnderPrefix(ctx, dirPrefix(p))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	st := vfs.NewDirectoryStatus(p)
	return &st, nil
}

func (fs *FileSystem) hasAnyUnderPrefix(ctx *vfs.Context, prefix string) (bool, error) {
	ch := fs.client.ListObjects(ctx.Context, fs.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: false})
	for obj := range ch {
		if obj.Err != nil {
			return false, vfs.WrapError(vfs.CodeIOError, nil, obj.Err)
		}
		return true, nil
	}
	return false, nil
}

func (fs *FileSystem) ListDirect(ctx *vfs.Context, p vfs.Path) vfs.Entries {
	return func(yield func(vfs.FileStatus, error) bool) {
		if err := ctx.CheckCancelled(); err != nil {
			yield(vfs.FileStatus{}, err)
			return
		}

		// Prefixes exist for any key, so a plain prefix scan cannot
		// distinguish a missing directory from an empty one or a file.
		st, err := fs.Stat(ctx, p)
		if err != nil {
			yield(vfs.FileStatus{}, err)
			return
		}
		if st == nil {
			yield(vfs.FileStatus{}, vfs.NewError(vfs.CodeNotFound, &p, "directory does not exist"))
			return
		}
		if !st.IsDirectory {
			yield(vfs.FileStatus{}, vfs.NewError(vfs.CodeNotADirectory, &p, "not a directory"))
			return
		}

		prefix := dirPrefix(p)
		ch := fs.client.ListObjects(ctx.Context, fs.bucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: false,
		})

		seenDirs := map[string]bool{}

		for obj := range ch {
			if obj.Err != nil {
				yield(vfs.FileStatus{}, vfs.WrapError(vfs.CodeIOError, &p, obj.Err))
				return
			}

			name := strings.TrimPrefix(obj.Key, prefix)
			if name == "" {
				continue
			}

			if strings.HasSuffix(name, "/") {
				dirName := strings.TrimSuffix(name, "/")
				if seenDirs[dirName] {
					continue
				}
				seenDirs[dirName] = true
				if !yield(vfs.NewDirectoryStatus(p.Join(dirName)), nil) {
					return
				}
				continue
			}

			if name == keepDirFile {
				continue
			}

			child := p.Join(name)
			if !yield(vfs.NewFileStatus(child, obj.Size, obj.ContentType), nil) {
				return
			}
		}
	}
}

func (fs *FileSystem) OpenRead(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) (io.ReadCloser, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	getOpts := minio.GetObjectOptions{}
	if opts.Start != nil || opts.End != nil {
		start := int64(0)
		if opts.Start != nil {
			start = *opts.Start
		}
		if opts.End != nil {
			if err := getOpts.SetRange(start, *opts.End-1); err != nil {
				return nil, vfs.WrapError(vfs.CodeIOError, &p, err)
			}
		} else {
			if err := getOpts.SetRange(start, 0); err != nil {
				return nil, vfs.WrapError(vfs.CodeIOError, &p, err)
			}
		}
	}

	obj, err := fs.client.GetObject(ctx.Context, fs.bucket, key(p), getOpts)
	if err != nil {
		return nil, s3ErrToVFS(err, p)
	}

	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, s3ErrToVFS(err, p)
	}

	return obj, nil
}

type uploadWriter struct {
	ctx  *vfs.Context
	fs   *FileSystem
	path vfs.Path
	buf  bytes.Buffer
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *uploadWriter) Close() error {
	_, err := w.fs.client.PutObject(w.ctx.Context, w.fs.bucket, key(w.path), bytes.NewReader(w.buf.Bytes()), int64(w.buf.Len()), minio.PutObjectOptions{
		ContentType: mimeTypeFor(w.path),
	})
	if err != nil {
		return vfs.WrapError(vfs.CodeIOError, &w.path, err)
	}
	return nil
}

func mimeTypeFor(p vfs.Path) string {
	if t := mime.TypeByExtension(filepath.Ext(p.Filename())); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (fs *FileSystem) OpenWrite(ctx *vfs.Context, p vfs.Path, opts vfs.WriteOptions) (io.WriteCloser, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	w := &uploadWriter{ctx: ctx, fs: fs, path: p}

	if opts.Mode == vfs.WriteModeAppend {
		existing, err := fs.OpenRead(ctx, p, vfs.ReadOptions{})
		if err == nil {
			data, readErr := io.ReadAll(existing)
			existing.Close()
			if readErr == nil {
				w.buf.Write(data)
			}
		}
	}

	return w, nil
}

func (fs *FileSystem) CreateDirectoryDirect(ctx *vfs.Context, p vfs.Path) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	if !p.IsRoot() {
		parentSt, err := fs.Stat(ctx, p.Parent())
		if err != nil {
			return err
		}
		if parentSt == nil {
			return vfs.NewError(vfs.CodeNotFound, &p, "parent directory does not exist")
		}
		if !parentSt.IsDirectory {
			return vfs.NewError(vfs.CodeNotADirectory, &p, "parent is not a directory")
		}
	}

	marker := dirPrefix(p) + keepDirFile
	_, err := fs.client.PutObject(ctx.Context, fs.bucket, marker, bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return vfs.WrapError(vfs.CodeIOError, &p, err)
	}
	return nil
}

func (fs *FileSystem) DeleteDirect(ctx *vfs.Context, p vfs.Path) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	st, err := fs.Stat(ctx, p)
	if err != nil {
		return err
	}
	if st == nil {
		return vfs.NewError(vfs.CodeNotFound, &p, "object does not exist")
	}

	if !st.IsDirectory {
		if err := fs.client.RemoveObject(ctx.Context, fs.bucket, key(p), minio.RemoveObjectOptions{}); err != nil {
			return s3ErrToVFS(err, p)
		}
		return nil
	}

	marker := dirPrefix(p) + keepDirFile
	if err := fs.client.RemoveObject(ctx.Context, fs.bucket, marker, minio.RemoveObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code != "NoSuchKey" {
			return vfs.WrapError(vfs.CodeIOError, &p, err)
		}
	}
	return nil
}

func (fs *FileSystem) CopyFile(ctx *vfs.Context, src, dst vfs.Path, overwrite bool) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	if !overwrite {
		dstSt, err := fs.Stat(ctx, dst)
		if err != nil {
			return err
		}
		if dstSt != nil {
			return vfs.NewError(vfs.CodeAlreadyExists, &dst, "destination already exists")
		}
	}

	_, err := fs.client.CopyObject(ctx.Context,
		minio.CopyDestOptions{Bucket: fs.bucket, Object: key(dst)},
		minio.CopySrcOptions{Bucket: fs.bucket, Object: key(src)},
	)
	if err != nil {
		return s3ErrToVFS(err, src)
	}
	return nil
}

func (fs *FileSystem) Dispose() error {
	return nil
}
