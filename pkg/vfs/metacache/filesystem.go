// Package metacache decorates an origin filesystem with a persisted
// metadata cache: stat results and small-directory listings are stored
// as JSON blobs in a second (cache) filesystem, hashed over a three
// level directory fan-out, validated by path, schema version and age.
package metacache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/zhangzqs/govfs/pkg/log"
	"github.com/zhangzqs/govfs/pkg/vfs"
	"github.com/zhangzqs/govfs/pkg/vfs/cachepath"
)

// FileSystem serves metadata reads from the cache when possible and
// keeps the cache consistent across mutations. Origin errors always
// propagate; only cache-layer failures are swallowed (with a warning).
type FileSystem struct {
	origin   vfs.FileSystem
	cacheFS  vfs.FileSystem
	cacheDir vfs.Path

	maxCacheAge             time.Duration
	largeDirectoryThreshold int

	logger  *slog.Logger
	records *recordTable
	sweeper *sweeper

	// refreshing coalesces refreshes: at most one per path in flight;
	// concurrent callers wait on the channel instead of re-running.
	refreshMu  sync.Mutex
	refreshing map[string]chan struct{}

	background sync.WaitGroup
}

// Config bundles the construction parameters of the cache.
type Config struct {
	Origin                  vfs.FileSystem
	CacheFS                 vfs.FileSystem
	CacheDir                vfs.Path
	MaxCacheAge             time.Duration
	LargeDirectoryThreshold int
	MaxCacheSize            int
	CleanupInterval         time.Duration
	CleanupBatchSize        int
	Logger                  *slog.Logger
}

// NewFileSystem wires the cache and starts its background sweeper.
func NewFileSystem(cfg Config) *FileSystem {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxCacheAge <= 0 {
		cfg.MaxCacheAge = time.Hour
	}
	if cfg.LargeDirectoryThreshold <= 0 {
		cfg.LargeDirectoryThreshold = 1000
	}
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = 10000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.CleanupBatchSize <= 0 {
		cfg.CleanupBatchSize = 100
	}

	records := newRecordTable()
	fs := &FileSystem{
		origin:                  cfg.Origin,
		cacheFS:                 cfg.CacheFS,
		cacheDir:                cfg.CacheDir,
		maxCacheAge:             cfg.MaxCacheAge,
		largeDirectoryThreshold: cfg.LargeDirectoryThreshold,
		logger:                  cfg.Logger,
		records:                 records,
		refreshing:              map[string]chan struct{}{},
	}
	fs.sweeper = newSweeper(records, cfg.CacheFS, cfg.MaxCacheSize, cfg.CleanupBatchSize, cfg.CleanupInterval, cfg.Logger)
	fs.sweeper.Start()
	return fs
}

func (f *FileSystem) cachePath(p vfs.Path) vfs.Path {
	return cachepath.For(f.cacheDir, p.String(), ".json")
}

// backgroundContext derives a fresh context for asynchronous cache work,
// detached from any request-scoped cancellation.
func (f *FileSystem) backgroundContext() *vfs.Context {
	return vfs.NewContext(context.Background(), f.logger)
}

// readEntry loads and validates the cached entry for p. Any failure is
// a miss; invalid entries are deleted asynchronously.
func (f *FileSystem) readEntry(ctx *vfs.Context, p vfs.Path) *entry {
	cachePath := f.cachePath(p)

	data, err := f.cacheFS.ReadAsBytes(ctx, cachePath, vfs.ReadOptions{})
	if err != nil {
		return nil
	}

	e, err := decodeEntry(data)
	if err != nil {
		f.deleteEntryAsync(p)
		return nil
	}

	if !e.valid(p, time.Now(), f.maxCacheAge) {
		f.deleteEntryAsync(p)
		return nil
	}

	f.records.Touch(p.String(), cachePath)
	return e
}

// writeEntry persists e under p's hashed cache path, writing to a
// temporary sibling first so concurrent readers never observe a
// truncated blob.
func (f *FileSystem) writeEntry(ctx *vfs.Context, p vfs.Path, e *entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}

	cachePath := f.cachePath(p)

	if err := f.cacheFS.CreateDirectory(ctx, cachePath.Parent(), vfs.CreateDirectoryOptions{CreateParents: true}); err != nil && !vfs.Is(err, vfs.CodeAlreadyExists) {
		return err
	}

	tmp := cachePath.Parent().Join(cachePath.Filename() + ".tmp-" + xid.New().String())
	if err := f.cacheFS.WriteBytes(ctx, tmp, data, vfs.WriteOptions{Mode: vfs.WriteModeOverwrite}); err != nil {
		return err
	}
	if err := f.cacheFS.Move(ctx, tmp, cachePath, vfs.MoveOptions{Overwrite: true}); err != nil {
		return err
	}

	f.records.Touch(p.String(), cachePath)
	return nil
}

func (f *FileSystem) deleteEntry(ctx *vfs.Context, p vfs.Path) {
	f.records.Forget(p.String())
	if err := f.cacheFS.Delete(ctx, f.cachePath(p), vfs.DeleteOptions{}); err != nil && !vfs.Is(err, vfs.CodeNotFound) {
		f.logger.Warn("could not delete cache entry", slog.String("path", p.String()), log.Error(err))
	}
}

func (f *FileSystem) deleteEntryAsync(p vfs.Path) {
	f.background.Add(1)
	go func() {
		defer f.background.Done()
		f.deleteEntry(f.backgroundContext(), p)
	}()
}

// refresh rebuilds the entry for p from origin: stat, then (for
// directories) a direct listing truncated at largeDirectoryThreshold.
// Refresh failures invalidate the entry. Redundant refreshes are
// coalesced best-effort per path.
func (f *FileSystem) refresh(ctx *vfs.Context, p vfs.Path) {
	key := p.String()

	f.refreshMu.Lock()
	if inflight, ok := f.refreshing[key]; ok {
		f.refreshMu.Unlock()
		// Another refresh is already rebuilding this entry; wait for it
		// so callers that need the refreshed state observe one.
		<-inflight
		return
	}
	done := make(chan struct{})
	f.refreshing[key] = done
	f.refreshMu.Unlock()

	defer func() {
		f.refreshMu.Lock()
		delete(f.refreshing, key)
		f.refreshMu.Unlock()
		close(done)
	}()

	st, err := f.origin.Stat(ctx, p)
	if err != nil {
		f.deleteEntry(ctx, p)
		return
	}
	if st == nil {
		f.deleteEntry(ctx, p)
		return
	}

	e := &entry{
		Path:        key,
		Stat:        toStatJSON(*st),
		LastUpdated: time.Now(),
		Version:     entryVersion,
	}

	if st.IsDirectory {
		children := make([]statJSON, 0, 16)
		large := false
		for child, err := range f.origin.List(ctx, p, vfs.ListOptions{}) {
			if err != nil {
				f.deleteEntry(ctx, p)
				return
			}
			if len(children) >= f.largeDirectoryThreshold {
				large = true
				break
			}
			children = append(children, toStatJSON(child))
		}
		if large {
			e.IsLargeDirectory = true
			e.Children = nil
		} else {
			e.Children = children
		}
	}

	if err := f.writeEntry(ctx, p, e); err != nil {
		f.logger.Warn("could not persist cache entry", slog.String("path", key), log.Error(err))
		f.deleteEntry(ctx, p)
	}
}

func (f *FileSystem) refreshAsync(p vfs.Path) {
	f.background.Add(1)
	go func() {
		defer f.background.Done()
		f.refresh(f.backgroundContext(), p)
	}()
}

// afterMutation re-caches p and synchronously refreshes its parent so a
// subsequent list of the parent on the same context observes the
// mutation.
func (f *FileSystem) afterMutation(ctx *vfs.Context, p vfs.Path) {
	f.refresh(ctx, p)
	if !p.IsRoot() {
		f.refresh(ctx, p.Parent())
	}
}

func (f *FileSystem) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	if e := f.readEntry(ctx, p); e != nil {
		st, err := e.Stat.toStatus()
		if err == nil {
			return &st, nil
		}
		f.deleteEntryAsync(p)
	}

	st, err := f.origin.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if st != nil {
		f.refreshAsync(p)
	}
	return st, nil
}

func (f *FileSystem) Exists(ctx *vfs.Context, p vfs.Path) (bool, error) {
	st, err := f.Stat(ctx, p)
	if err != nil {
		return false, err
	}
	return st != nil, nil
}

func (f *FileSystem) List(ctx *vfs.Context, p vfs.Path, opts vfs.ListOptions) vfs.Entries {
	if !opts.Recursive {
		return f.listDirect(ctx, p)
	}

	return func(yield func(vfs.FileStatus, error) bool) {
		queue := []vfs.Path{p}
		visited := map[string]bool{p.String(): true}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]

			if err := ctx.CheckCancelled(); err != nil {
				yield(vfs.FileStatus{}, err)
				return
			}

			for st, err := range f.listDirect(ctx, cur) {
				if err != nil {
					yield(vfs.FileStatus{}, err)
					return
				}
				if !yield(st, nil) {
					return
				}
				if st.IsDirectory && !visited[st.Path.String()] {
					visited[st.Path.String()] = true
					queue = append(queue, st.Path)
				}
			}
		}
	}
}

func (f *FileSystem) listDirect(ctx *vfs.Context, p vfs.Path) vfs.Entries {
	return func(yield func(vfs.FileStatus, error) bool) {
		if err := ctx.CheckCancelled(); err != nil {
			yield(vfs.FileStatus{}, err)
			return
		}

		if e := f.readEntry(ctx, p); e != nil && e.Stat.IsDirectory && !e.IsLargeDirectory {
			children, ok := decodeChildren(e)
			if !ok {
				f.deleteEntryAsync(p)
			} else {
				for _, st := range children {
					if !yield(st, nil) {
						return
					}
				}
				return
			}
		}

		// Miss or large directory: stream from origin and re-cache in
		// the background.
		for st, err := range f.origin.List(ctx, p, vfs.ListOptions{}) {
			if err != nil {
				yield(vfs.FileStatus{}, err)
				return
			}
			if !yield(st, nil) {
				return
			}
		}
		f.refreshAsync(p)
	}
}

func (f *FileSystem) OpenRead(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) (io.ReadCloser, error) {
	return f.origin.OpenRead(ctx, p, opts)
}

func (f *FileSystem) ReadAsBytes(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) ([]byte, error) {
	return f.origin.ReadAsBytes(ctx, p, opts)
}

// invalidatingWriter decorates the origin sink so the cache refresh runs
// exactly once when the stream is closed, including on error paths.
type invalidatingWriter struct {
	io.WriteCloser
	once    sync.Once
	onClose func()
}

func (w *invalidatingWriter) Close() error {
	err := w.WriteCloser.Close()
	w.once.Do(w.onClose)
	return err
}

func (f *FileSystem) OpenWrite(ctx *vfs.Context, p vfs.Path, opts vfs.WriteOptions) (io.WriteCloser, error) {
	sink, err := f.origin.OpenWrite(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	return &invalidatingWriter{
		WriteCloser: sink,
		onClose: func() {
			f.afterMutation(ctx, p)
		},
	}, nil
}

func (f *FileSystem) WriteBytes(ctx *vfs.Context, p vfs.Path, data []byte, opts vfs.WriteOptions) error {
	if err := f.origin.WriteBytes(ctx, p, data, opts); err != nil {
		return err
	}
	f.afterMutation(ctx, p)
	return nil
}

func (f *FileSystem) CreateDirectory(ctx *vfs.Context, p vfs.Path, opts vfs.CreateDirectoryOptions) error {
	if err := f.origin.CreateDirectory(ctx, p, opts); err != nil {
		return err
	}
	f.afterMutation(ctx, p)
	return nil
}

// invalidateSubtree drops the entries of p and every cached descendant
// (recursive deletes and moves take whole subtrees with them).
func (f *FileSystem) invalidateSubtree(ctx *vfs.Context, p vfs.Path) {
	for _, cached := range f.records.Under(p) {
		f.deleteEntry(ctx, cached)
	}
	f.deleteEntry(ctx, p)
}

func (f *FileSystem) Delete(ctx *vfs.Context, p vfs.Path, opts vfs.DeleteOptions) error {
	if err := f.origin.Delete(ctx, p, opts); err != nil {
		return err
	}
	f.invalidateSubtree(ctx, p)
	if !p.IsRoot() {
		f.refresh(ctx, p.Parent())
	}
	return nil
}

func (f *FileSystem) Copy(ctx *vfs.Context, src, dst vfs.Path, opts vfs.CopyOptions) error {
	if err := f.origin.Copy(ctx, src, dst, opts); err != nil {
		return err
	}
	f.afterMutation(ctx, dst)
	return nil
}

func (f *FileSystem) Move(ctx *vfs.Context, src, dst vfs.Path, opts vfs.MoveOptions) error {
	if err := f.origin.Move(ctx, src, dst, opts); err != nil {
		return err
	}
	f.invalidateSubtree(ctx, src)
	if !src.IsRoot() {
		f.refresh(ctx, src.Parent())
	}
	f.afterMutation(ctx, dst)
	return nil
}

// Dispose stops the background sweeper and waits for in-flight
// asynchronous cache work. The origin and cache filesystems are shared
// components owned by the blueprint engine.
func (f *FileSystem) Dispose() error {
	f.sweeper.Stop()
	f.background.Wait()
	return nil
}
