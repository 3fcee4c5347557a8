package vfs

import (
	"io"
	"log/slog"
)

// WithLogger decorates fs so that every operation logs its outcome
// through logger at debug level (error on failure), stamped with the
// operation id carried by ctx.
func WithLogger(fs FileSystem, logger *slog.Logger) FileSystem {
	return &loggingFileSystem{fs: fs, logger: logger}
}

type loggingFileSystem struct {
	fs     FileSystem
	logger *slog.Logger
}

func (l *loggingFileSystem) log(ctx *Context, op string, p Path, err error) {
	attrs := []any{slog.String("op", op), slog.String("path", p.String()), slog.String("operation_id", ctx.OperationID)}
	if err != nil {
		l.logger.ErrorContext(ctx, "filesystem operation failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	l.logger.DebugContext(ctx, "filesystem operation", attrs...)
}

func (l *loggingFileSystem) Stat(ctx *Context, p Path) (*FileStatus, error) {
	st, err := l.fs.Stat(ctx, p)
	l.log(ctx, "stat", p, err)
	return st, err
}

func (l *loggingFileSystem) Exists(ctx *Context, p Path) (bool, error) {
	ok, err := l.fs.Exists(ctx, p)
	l.log(ctx, "exists", p, err)
	return ok, err
}

func (l *loggingFileSystem) List(ctx *Context, p Path, opts ListOptions) Entries {
	l.log(ctx, "list", p, nil)
	return l.fs.List(ctx, p, opts)
}

func (l *loggingFileSystem) OpenRead(ctx *Context, p Path, opts ReadOptions) (io.ReadCloser, error) {
	r, err := l.fs.OpenRead(ctx, p, opts)
	l.log(ctx, "open_read", p, err)
	return r, err
}

func (l *loggingFileSystem) OpenWrite(ctx *Context, p Path, opts WriteOptions) (io.WriteCloser, error) {
	w, err := l.fs.OpenWrite(ctx, p, opts)
	l.log(ctx, "open_write", p, err)
	return w, err
}

func (l *loggingFileSystem) WriteBytes(ctx *Context, p Path, data []byte, opts WriteOptions) error {
	err := l.fs.WriteBytes(ctx, p, data, opts)
	l.log(ctx, "write_bytes", p, err)
	return err
}

func (l *loggingFileSystem) ReadAsBytes(ctx *Context, p Path, opts ReadOptions) ([]byte, error) {
	data, err := l.fs.ReadAsBytes(ctx, p, opts)
	l.log(ctx, "read_as_bytes", p, err)
	return data, err
}

func (l *loggingFileSystem) CreateDirectory(ctx *Context, p Path, opts CreateDirectoryOptions) error {
	err := l.fs.CreateDirectory(ctx, p, opts)
	l.log(ctx, "create_directory", p, err)
	return err
}

func (l *loggingFileSystem) Delete(ctx *Context, p Path, opts DeleteOptions) error {
	err := l.fs.Delete(ctx, p, opts)
	l.log(ctx, "delete", p, err)
	return err
}

func (l *loggingFileSystem) Copy(ctx *Context, src, dst Path, opts CopyOptions) error {
	err := l.fs.Copy(ctx, src, dst, opts)
	l.log(ctx, "copy", src, err)
	return err
}

func (l *loggingFileSystem) Move(ctx *Context, src, dst Path, opts MoveOptions) error {
	err := l.fs.Move(ctx, src, dst, opts)
	l.log(ctx, "move", src, err)
	return err
}

func (l *loggingFileSystem) Dispose() error {
	return l.fs.Dispose()
}
