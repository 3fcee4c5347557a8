// Package capped decorates a filesystem with a total-size cap: when the
// bytes stored through it exceed maxSize, the least recently accessed
// files are evicted until the cap holds again. Intended for cache tiers
// (e.g. the cacheBackend of a block or metadata cache) whose disk usage
// must stay bounded.
package capped

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zhangzqs/govfs/pkg/log"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

type fileInfo struct {
	size       int64
	lastAccess time.Time
}

// FileSystem tracks the size and last access time of every file behind
// it and evicts oldest-first whenever the total exceeds maxSize.
// Directories do not count toward the cap.
type FileSystem struct {
	inner   vfs.FileSystem
	maxSize int64
	logger  *slog.Logger

	mu          sync.Mutex
	files       map[string]*fileInfo
	curSize     int64
	initialized bool
}

// NewFileSystem caps inner at maxSize bytes.
func NewFileSystem(inner vfs.FileSystem, maxSize int64, logger *slog.Logger) *FileSystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSystem{
		inner:   inner,
		maxSize: maxSize,
		logger:  logger,
		files:   map[string]*fileInfo{},
	}
}

// ensureInitialized scans the existing tree once so pre-existing files
// count toward the cap.
func (f *FileSystem) ensureInitialized(ctx *vfs.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return nil
	}

	for st, err := range f.inner.List(ctx, vfs.Root, vfs.ListOptions{Recursive: true}) {
		if err != nil {
			return err
		}
		if st.IsDirectory || st.Size == nil {
			continue
		}
		f.files[st.Path.String()] = &fileInfo{size: *st.Size, lastAccess: time.Now()}
		f.curSize += *st.Size
	}

	f.initialized = true
	return nil
}

func (f *FileSystem) touch(p vfs.Path) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.files[p.String()]; ok {
		info.lastAccess = time.Now()
	}
}

// record replaces the tracked size of p and evicts as needed.
func (f *FileSystem) record(ctx *vfs.Context, p vfs.Path, size int64) {
	f.mu.Lock()
	if info, ok := f.files[p.String()]; ok {
		f.curSize -= info.size
	}
	f.files[p.String()] = &fileInfo{size: size, lastAccess: time.Now()}
	f.curSize += size

	victims := f.pickVictimsLocked(p)
	f.mu.Unlock()

	for _, victim := range victims {
		if err := f.inner.Delete(ctx, victim, vfs.DeleteOptions{}); err != nil && !vfs.Is(err, vfs.CodeNotFound) {
			f.logger.Warn("could not evict file over size cap", slog.String("path", victim.String()), log.Error(err))
		}
	}
}

func (f *FileSystem) forget(p vfs.Path) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgetLocked(p)
}

func (f *FileSystem) forgetLocked(p vfs.Path) {
	key := p.String()
	if info, ok := f.files[key]; ok {
		f.curSize -= info.size
		delete(f.files, key)
	}
	// A directory delete takes its descendants with it.
	for path, info := range f.files {
		tracked, err := vfs.ParsePath(path)
		if err != nil {
			continue
		}
		if tracked.StrictlyUnder(p) {
			f.curSize -= info.size
			delete(f.files, path)
		}
	}
}

// pickVictimsLocked selects least-recently-accessed files (never the
// just-written one) until the cap holds, removing them from the table.
func (f *FileSystem) pickVictimsLocked(justWritten vfs.Path) []vfs.Path {
	if f.maxSize <= 0 || f.curSize <= f.maxSize {
		return nil
	}

	type candidate struct {
		path string
		info *fileInfo
	}
	candidates := make([]candidate, 0, len(f.files))
	for path, info := range f.files {
		if path == justWritten.String() {
			continue
		}
		candidates = append(candidates, candidate{path: path, info: info})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].info.lastAccess.Before(candidates[j].info.lastAccess)
	})

	var victims []vfs.Path
	for _, c := range candidates {
		if f.curSize <= f.maxSize {
			break
		}
		p, err := vfs.ParsePath(c.path)
		if err != nil {
			continue
		}
		f.curSize -= c.info.size
		delete(f.files, c.path)
		victims = append(victims, p)
	}
	return victims
}

func (f *FileSystem) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	return f.inner.Stat(ctx, p)
}

func (f *FileSystem) Exists(ctx *vfs.Context, p vfs.Path) (bool, error) {
	return f.inner.Exists(ctx, p)
}

func (f *FileSystem) List(ctx *vfs.Context, p vfs.Path, opts vfs.ListOptions) vfs.Entries {
	return f.inner.List(ctx, p, opts)
}

func (f *FileSystem) OpenRead(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) (io.ReadCloser, error) {
	if err := f.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	f.touch(p)
	return f.inner.OpenRead(ctx, p, opts)
}

func (f *FileSystem) ReadAsBytes(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) ([]byte, error) {
	if err := f.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	f.touch(p)
	return f.inner.ReadAsBytes(ctx, p, opts)
}

// trackingWriter counts the bytes streamed through an inner sink and
// records them against the cap exactly once on close.
type trackingWriter struct {
	io.WriteCloser
	written int64
	once    sync.Once
	onClose func(written int64)
}

func (w *trackingWriter) Write(p []byte) (int, error) {
	n, err := w.WriteCloser.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *trackingWriter) Close() error {
	err := w.WriteCloser.Close()
	if err == nil {
		w.once.Do(func() { w.onClose(w.written) })
	}
	return err
}

func (f *FileSystem) OpenWrite(ctx *vfs.Context, p vfs.Path, opts vfs.WriteOptions) (io.WriteCloser, error) {
	if err := f.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	sink, err := f.inner.OpenWrite(ctx, p, opts)
	if err != nil {
		return nil, err
	}

	appending := opts.Mode == vfs.WriteModeAppend
	return &trackingWriter{
		WriteCloser: sink,
		onClose: func(written int64) {
			size := written
			if appending {
				f.mu.Lock()
				if info, ok := f.files[p.String()]; ok {
					size += info.size
				}
				f.mu.Unlock()
			}
			f.record(ctx, p, size)
		},
	}, nil
}

func (f *FileSystem) WriteBytes(ctx *vfs.Context, p vfs.Path, data []byte, opts vfs.WriteOptions) error {
	sink, err := f.OpenWrite(ctx, p, opts)
	if err != nil {
		return err
	}
	if _, err := sink.Write(data); err != nil {
		sink.Close()
		return err
	}
	return sink.Close()
}

func (f *FileSystem) CreateDirectory(ctx *vfs.Context, p vfs.Path, opts vfs.CreateDirectoryOptions) error {
	return f.inner.CreateDirectory(ctx, p, opts)
}

func (f *FileSystem) Delete(ctx *vfs.Context, p vfs.Path, opts vfs.DeleteOptions) error {
	if err := f.ensureInitialized(ctx); err != nil {
		return err
	}
	if err := f.inner.Delete(ctx, p, opts); err != nil {
		return err
	}
	f.forget(p)
	return nil
}

func (f *FileSystem) Copy(ctx *vfs.Context, src, dst vfs.Path, opts vfs.CopyOptions) error {
	if err := f.ensureInitialized(ctx); err != nil {
		return err
	}
	if err := f.inner.Copy(ctx, src, dst, opts); err != nil {
		return err
	}
	f.resync(ctx, dst)
	return nil
}

func (f *FileSystem) Move(ctx *vfs.Context, src, dst vfs.Path, opts vfs.MoveOptions) error {
	if err := f.ensureInitialized(ctx); err != nil {
		return err
	}
	if err := f.inner.Move(ctx, src, dst, opts); err != nil {
		return err
	}
	f.forget(src)
	f.resync(ctx, dst)
	return nil
}

// resync refreshes the tracked state of dst (a file or a whole subtree)
// after a copy or move.
func (f *FileSystem) resync(ctx *vfs.Context, dst vfs.Path) {
	st, err := f.inner.Stat(ctx, dst)
	if err != nil || st == nil {
		return
	}

	if !st.IsDirectory {
		if st.Size != nil {
			f.record(ctx, dst, *st.Size)
		}
		return
	}

	for child, err := range f.inner.List(ctx, dst, vfs.ListOptions{Recursive: true}) {
		if err != nil {
			return
		}
		if child.IsDirectory || child.Size == nil {
			continue
		}
		f.record(ctx, child.Path, *child.Size)
	}
}

func (f *FileSystem) Dispose() error {
	return nil
}
