// Package sqlitefs implements a vfs.Primitive backed by a single SQLite
// database: one row per path in a files table, blob content in a
// sibling table. Useful as a self-contained origin store, or as the
// storage engine behind the metadata/block caches.
package sqlitefs

import (
	"bytes"
	"io"
	"time"

	"github.com/zhangzqs/govfs/pkg/vfs"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitemigration"
	"zombiezen.com/go/sqlite/sqlitex"
)

// FileSystem stores every node as a row in pool's "files"/"file_contents"
// tables.
type FileSystem struct {
	pool *sqlitemigration.Pool
}

// NewFileSystem wraps an already-migrated connection pool.
func NewFileSystem(pool *sqlitemigration.Pool) *FileSystem {
	return &FileSystem{pool: pool}
}

func (fs *FileSystem) withConn(ctx *vfs.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := fs.pool.Get(ctx.Context)
	if err != nil {
		return vfs.WrapError(vfs.CodeIOError, nil, err)
	}
	defer fs.pool.Put(conn)
	return fn(conn)
}

func (fs *FileSystem) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	var st *vfs.FileStatus
	err := fs.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT is_dir, size FROM files WHERE path = ?`, &sqlitex.ExecOptions{
			Args: []any{p.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				isDir := stmt.GetInt64("is_dir") != 0
				size := stmt.GetInt64("size")
				if isDir {
					v := vfs.NewDirectoryStatus(p)
					st = &v
				} else {
					v := vfs.NewFileStatus(p, size, "")
					st = &v
				}
				return nil
			},
		})
	})
	if err != nil {
		return nil, vfs.WrapError(vfs.CodeIOError, &p, err)
	}
	return st, nil
}

func (fs *FileSystem) ListDirect(ctx *vfs.Context, p vfs.Path) vfs.Entries {
	return func(yield func(vfs.FileStatus, error) bool) {
		if err := ctx.CheckCancelled(); err != nil {
			yield(vfs.FileStatus{}, err)
			return
		}

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

		var entries []vfs.FileStatus

		err = fs.withConn(ctx, func(conn *sqlite.Conn) error {
			return sqlitex.Execute(conn, `SELECT path, is_dir, size FROM files WHERE path != ?`, &sqlitex.ExecOptions{
				Args: []any{p.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					childPath, err := vfs.ParsePath(stmt.GetText("path"))
					if err != nil {
						return nil
					}
					if childPath.IsRoot() || !childPath.Parent().Equal(p) {
						return nil
					}
					isDir := stmt.GetInt64("is_dir") != 0
					if isDir {
						entries = append(entries, vfs.NewDirectoryStatus(childPath))
					} else {
						entries = append(entries, vfs.NewFileStatus(childPath, stmt.GetInt64("size"), ""))
					}
					return nil
				},
			})
		})
		if err != nil {
			yield(vfs.FileStatus{}, vfs.WrapError(vfs.CodeIOError, &p, err))
			return
		}

		for _, st := range entries {
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

	var data []byte
	found := false
	err := fs.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT content FROM file_contents WHERE path = ?`, &sqlitex.ExecOptions{
			Args: []any{p.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				reader := stmt.GetReader("content")
				buf, err := io.ReadAll(reader)
				if err != nil {
					return err
				}
				data = buf
				return nil
			},
		})
	})
	if err != nil {
		return nil, vfs.WrapError(vfs.CodeIOError, &p, err)
	}
	if !found {
		return nil, vfs.NewError(vfs.CodeNotFound, &p, "file does not exist")
	}

	start, end := int64(0), int64(len(data))
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
	ctx  *vfs.Context
	path vfs.Path
	buf  bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	now := time.Now().Unix()
	data := w.buf.Bytes()

	return w.fs.withConn(w.ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `
			INSERT INTO files (path, is_dir, mode, size, mtime) VALUES (?, 0, 420, ?, ?)
			ON CONFLICT(path) DO UPDATE SET size = excluded.size, mtime = excluded.mtime
		`, &sqlitex.ExecOptions{Args: []any{w.path.String(), len(data), now}}); err != nil {
			return err
		}

		return sqlitex.Execute(conn, `
			INSERT INTO file_contents (path, content) VALUES (?, ?)
			ON CONFLICT(path) DO UPDATE SET content = excluded.content
		`, &sqlitex.ExecOptions{Args: []any{w.path.String(), data}})
	})
}

func (fs *FileSystem) OpenWrite(ctx *vfs.Context, p vfs.Path, opts vfs.WriteOptions) (io.WriteCloser, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	w := &writer{fs: fs, ctx: ctx, path: p}

	if opts.Mode == vfs.WriteModeAppend {
		if existing, err := fs.OpenRead(ctx, p, vfs.ReadOptions{}); err == nil {
			data, _ := io.ReadAll(existing)
			existing.Close()
			w.buf.Write(data)
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

	now := time.Now().Unix()
	return fs.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO files (path, is_dir, mode, size, mtime) VALUES (?, 1, 493, 0, ?)
		`, &sqlitex.ExecOptions{Args: []any{p.String(), now}})
	})
}

func (fs *FileSystem) DeleteDirect(ctx *vfs.Context, p vfs.Path) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	return fs.withConn(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, `DELETE FROM file_contents WHERE path = ?`, &sqlitex.ExecOptions{Args: []any{p.String()}}); err != nil {
			return err
		}
		return sqlitex.Execute(conn, `DELETE FROM files WHERE path = ?`, &sqlitex.ExecOptions{Args: []any{p.String()}})
	})
}

func (fs *FileSystem) CopyFile(ctx *vfs.Context, src, dst vfs.Path, overwrite bool) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	r, err := fs.OpenRead(ctx, src, vfs.ReadOptions{})
	if err != nil {
		return err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return vfs.WrapError(vfs.CodeIOError, &src, err)
	}

	mode := vfs.WriteModeFailIfExists
	if overwrite {
		mode = vfs.WriteModeOverwrite
	}

	w, err := fs.OpenWrite(ctx, dst, vfs.WriteOptions{Mode: mode})
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return vfs.WrapError(vfs.CodeIOError, &dst, err)
	}
	return w.Close()
}

func (fs *FileSystem) Dispose() error {
	return fs.pool.Close()
}
