// Package blockcache decorates an origin filesystem with a fixed-size
// block cache over ranged reads: every read is decomposed into
// blockSize-aligned fetches, each cached as a raw block file in a
// second (cache) filesystem, with optional sequential read-ahead.
package blockcache

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rs/xid"
	"github.com/zhangzqs/govfs/pkg/log"
	"github.com/zhangzqs/govfs/pkg/vfs"
	"github.com/zhangzqs/govfs/pkg/vfs/cachepath"
)

// DefaultBlockSize is used when no blockSize is configured.
const DefaultBlockSize = 4 << 20

// FileSystem caches origin content block by block. Cache writes are
// best-effort: a failed cache write is logged and swallowed, never
// surfaced to the reader.
type FileSystem struct {
	origin   vfs.FileSystem
	cacheFS  vfs.FileSystem
	cacheDir vfs.Path

	blockSize       int64
	readAheadBlocks int
	enableReadAhead bool

	logger *slog.Logger

	// invalidated marks paths whose cached blocks could not be deleted
	// eagerly (old size unknown); consulted before any cache hit.
	invalidatedMu sync.Mutex
	invalidated   map[string]bool

	// inflight coalesces concurrent fetches of the same block.
	inflightMu sync.Mutex
	inflight   map[string]bool

	background sync.WaitGroup
}

// Config bundles the construction parameters of the cache.
type Config struct {
	Origin          vfs.FileSystem
	CacheFS         vfs.FileSystem
	CacheDir        vfs.Path
	BlockSize       int64
	ReadAheadBlocks int
	EnableReadAhead bool
	Logger          *slog.Logger
}

func NewFileSystem(cfg Config) *FileSystem {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.ReadAheadBlocks <= 0 {
		cfg.ReadAheadBlocks = 2
	}

	return &FileSystem{
		origin:          cfg.Origin,
		cacheFS:         cfg.CacheFS,
		cacheDir:        cfg.CacheDir,
		blockSize:       cfg.BlockSize,
		readAheadBlocks: cfg.ReadAheadBlocks,
		enableReadAhead: cfg.EnableReadAhead,
		logger:          cfg.Logger,
		invalidated:     map[string]bool{},
		inflight:        map[string]bool{},
	}
}

// blockPath hashes (originPath, blockIndex) into the shared cache
// layout.
func (f *FileSystem) blockPath(p vfs.Path, index int64) vfs.Path {
	return cachepath.For(f.cacheDir, fmt.Sprintf("%s:%d", p.String(), index), ".blk")
}

// blockLength is the expected byte length of block index for a file of
// the given total size.
func (f *FileSystem) blockLength(total, index int64) int64 {
	start := index * f.blockSize
	if start >= total {
		return 0
	}
	length := f.blockSize
	if start+length > total {
		length = total - start
	}
	return length
}

// purge removes the cached blocks 0..ceil(size/blockSize)-1 of p.
// Per-block failures are logged and do not abort the purge.
func (f *FileSystem) purge(ctx *vfs.Context, p vfs.Path, size int64) {
	blocks := (size + f.blockSize - 1) / f.blockSize
	for i := int64(0); i < blocks; i++ {
		if err := f.cacheFS.Delete(ctx, f.blockPath(p, i), vfs.DeleteOptions{}); err != nil && !vfs.Is(err, vfs.CodeNotFound) {
			f.logger.Warn("could not delete cached block",
				slog.String("path", p.String()),
				slog.Int64("block", i),
				log.Error(err),
			)
		}
	}
}

// invalidate drops every cached block of p. With a known previous size
// the block files are deleted eagerly; otherwise the path is marked and
// purged on its next read, when the current size is known again.
func (f *FileSystem) invalidate(ctx *vfs.Context, p vfs.Path, oldSize *int64) {
	if oldSize != nil {
		f.purge(ctx, p, *oldSize)
		return
	}
	f.invalidatedMu.Lock()
	f.invalidated[p.String()] = true
	f.invalidatedMu.Unlock()
}

// settleInvalidation purges any deferred invalidation for p now that
// the current total size is known.
func (f *FileSystem) settleInvalidation(ctx *vfs.Context, p vfs.Path, total int64) {
	f.invalidatedMu.Lock()
	marked := f.invalidated[p.String()]
	if marked {
		delete(f.invalidated, p.String())
	}
	f.invalidatedMu.Unlock()

	if marked {
		// Purge one read-ahead window past the current end as well, in
		// case the file shrank.
		f.purge(ctx, p, total+int64(f.readAheadBlocks+1)*f.blockSize)
	}
}

// prior describes what p looked like on origin just before a mutation:
// whether cached blocks may exist for it, and the file size if known.
type prior struct {
	mayHaveBlocks bool
	size          *int64
}

// priorOf looks up p on origin for eager block invalidation before a
// mutation. A path that did not exist as a file cannot have cached
// blocks; a stat failure is treated conservatively.
func (f *FileSystem) priorOf(ctx *vfs.Context, p vfs.Path) prior {
	st, err := f.origin.Stat(ctx, p)
	if err != nil {
		return prior{mayHaveBlocks: true}
	}
	if st == nil || st.IsDirectory {
		return prior{}
	}
	return prior{mayHaveBlocks: true, size: st.Size}
}

func (f *FileSystem) invalidatePrior(ctx *vfs.Context, p vfs.Path, pr prior) {
	if !pr.mayHaveBlocks {
		return
	}
	f.invalidate(ctx, p, pr.size)
}

// filePrior records one file that is about to disappear under a
// recursive mutation.
type filePrior struct {
	path  vfs.Path
	prior prior
}

// subtreePriors snapshots every file below dir before a recursive
// delete or move, so their cached blocks can be dropped afterwards.
// Best-effort: a listing failure yields an empty snapshot and the
// mutation itself will surface the real error.
func (f *FileSystem) subtreePriors(ctx *vfs.Context, dir vfs.Path) []filePrior {
	var out []filePrior
	for st, err := range f.origin.List(ctx, dir, vfs.ListOptions{Recursive: true}) {
		if err != nil {
			return out
		}
		if st.IsDirectory {
			continue
		}
		out = append(out, filePrior{path: st.Path, prior: prior{mayHaveBlocks: true, size: st.Size}})
	}
	return out
}

// priorsOf snapshots p (and, for a directory, its files) before a
// mutation that removes it.
func (f *FileSystem) priorsOf(ctx *vfs.Context, p vfs.Path) []filePrior {
	st, err := f.origin.Stat(ctx, p)
	if err != nil {
		return []filePrior{{path: p, prior: prior{mayHaveBlocks: true}}}
	}
	if st == nil {
		return nil
	}
	if !st.IsDirectory {
		return []filePrior{{path: p, prior: prior{mayHaveBlocks: true, size: st.Size}}}
	}
	return f.subtreePriors(ctx, p)
}

func (f *FileSystem) invalidatePriors(ctx *vfs.Context, priors []filePrior) {
	for _, fp := range priors {
		f.invalidatePrior(ctx, fp.path, fp.prior)
	}
}

// block returns the raw content of the given block, from cache when
// possible, fetching from origin (and write-through caching) otherwise.
func (f *FileSystem) block(ctx *vfs.Context, p vfs.Path, index, total int64) ([]byte, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	expected := f.blockLength(total, index)
	blockPath := f.blockPath(p, index)

	data, err := f.cacheFS.ReadAsBytes(ctx, blockPath, vfs.ReadOptions{})
	if err == nil && int64(len(data)) == expected {
		return data, nil
	}

	start := index * f.blockSize
	end := start + expected
	data, err = f.origin.ReadAsBytes(ctx, p, vfs.ReadOptions{Start: &start, End: &end})
	if err != nil {
		return nil, err
	}

	f.storeBlock(ctx, p, blockPath, data)
	return data, nil
}

// storeBlock persists a fetched block best-effort, via a temporary
// sibling so a concurrent reader never observes a short block file.
func (f *FileSystem) storeBlock(ctx *vfs.Context, p vfs.Path, blockPath vfs.Path, data []byte) {
	if err := f.cacheFS.CreateDirectory(ctx, blockPath.Parent(), vfs.CreateDirectoryOptions{CreateParents: true}); err != nil && !vfs.Is(err, vfs.CodeAlreadyExists) {
		f.logger.Warn("could not create block cache directory", slog.String("path", p.String()), log.Error(err))
		return
	}

	tmp := blockPath.Parent().Join(blockPath.Filename() + ".tmp-" + xid.New().String())
	if err := f.cacheFS.WriteBytes(ctx, tmp, data, vfs.WriteOptions{Mode: vfs.WriteModeOverwrite}); err != nil {
		f.logger.Warn("could not write cached block", slog.String("path", p.String()), log.Error(err))
		return
	}
	if err := f.cacheFS.Move(ctx, tmp, blockPath, vfs.MoveOptions{Overwrite: true}); err != nil {
		f.logger.Warn("could not finalize cached block", slog.String("path", p.String()), log.Error(err))
	}
}

// readAhead schedules background fetches of the blocks after index that
// are not cached yet. It never blocks the foreground read; each fetch
// observes ctx, so cancelling the request aborts the look-ahead too.
func (f *FileSystem) readAhead(ctx *vfs.Context, p vfs.Path, index, total int64) {
	lastBlock := (total - 1) / f.blockSize
	for i := index + 1; i <= index+int64(f.readAheadBlocks) && i <= lastBlock; i++ {
		key := fmt.Sprintf("%s:%d", p.String(), i)

		f.inflightMu.Lock()
		if f.inflight[key] {
			f.inflightMu.Unlock()
			continue
		}
		f.inflight[key] = true
		f.inflightMu.Unlock()

		f.background.Add(1)
		go func(i int64) {
			defer f.background.Done()
			defer func() {
				f.inflightMu.Lock()
				delete(f.inflight, key)
				f.inflightMu.Unlock()
			}()

			blockPath := f.blockPath(p, i)
			st, err := f.cacheFS.Stat(ctx, blockPath)
			if err != nil || st != nil {
				return
			}
			if _, err := f.block(ctx, p, i, total); err != nil && !vfs.Is(err, vfs.CodeCancelled) {
				f.logger.Debug("read-ahead fetch failed",
					slog.String("path", p.String()),
					slog.Int64("block", i),
					log.Error(err),
				)
			}
		}(i)
	}
}

// blockReader streams [pos, end) of a file block by block.
type blockReader struct {
	ctx   *vfs.Context
	fs    *FileSystem
	path  vfs.Path
	total int64
	pos   int64
	end   int64
	cur   []byte
}

func (r *blockReader) Read(out []byte) (int, error) {
	if len(r.cur) == 0 {
		if r.pos >= r.end {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
	}

	n := copy(out, r.cur)
	r.cur = r.cur[n:]
	r.pos += int64(n)
	return n, nil
}

func (r *blockReader) fill() error {
	index := r.pos / r.fs.blockSize

	data, err := r.fs.block(r.ctx, r.path, index, r.total)
	if err != nil {
		return err
	}

	blockStart := index * r.fs.blockSize
	from := r.pos - blockStart
	to := int64(len(data))
	if blockStart+to > r.end {
		to = r.end - blockStart
	}
	if from > to {
		from = to
	}
	r.cur = data[from:to]

	if r.fs.enableReadAhead {
		r.fs.readAhead(r.ctx, r.path, index, r.total)
	}
	return nil
}

func (r *blockReader) Close() error {
	r.cur = nil
	r.pos = r.end
	return nil
}

func (f *FileSystem) OpenRead(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) (io.ReadCloser, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	st, err := f.origin.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, vfs.NewError(vfs.CodeNotFound, &p, "file does not exist")
	}
	if st.IsDirectory {
		return nil, vfs.NewError(vfs.CodeNotAFile, &p, "cannot open a directory for reading")
	}
	if st.Size == nil {
		return f.origin.OpenRead(ctx, p, opts)
	}
	total := *st.Size

	start, end := int64(0), total
	if opts.Start != nil {
		start = *opts.Start
	}
	if opts.End != nil {
		end = *opts.End
	}
	if start < 0 || end > total || start > end {
		return nil, vfs.NewError(vfs.CodeIOError, &p, "byte range out of bounds")
	}

	f.settleInvalidation(ctx, p, total)

	return &blockReader{
		ctx:   ctx,
		fs:    f,
		path:  p,
		total: total,
		pos:   start,
		end:   end,
	}, nil
}

func (f *FileSystem) ReadAsBytes(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) ([]byte, error) {
	r, err := f.OpenRead(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *FileSystem) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	return f.origin.Stat(ctx, p)
}

func (f *FileSystem) Exists(ctx *vfs.Context, p vfs.Path) (bool, error) {
	return f.origin.Exists(ctx, p)
}

func (f *FileSystem) List(ctx *vfs.Context, p vfs.Path, opts vfs.ListOptions) vfs.Entries {
	return f.origin.List(ctx, p, opts)
}

// invalidatingWriter drops the cached blocks of its path exactly once
// when the sink is closed, including on error paths.
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
	pr := f.priorOf(ctx, p)

	sink, err := f.origin.OpenWrite(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	return &invalidatingWriter{
		WriteCloser: sink,
		onClose: func() {
			f.invalidatePrior(ctx, p, pr)
		},
	}, nil
}

func (f *FileSystem) WriteBytes(ctx *vfs.Context, p vfs.Path, data []byte, opts vfs.WriteOptions) error {
	pr := f.priorOf(ctx, p)
	if err := f.origin.WriteBytes(ctx, p, data, opts); err != nil {
		return err
	}
	f.invalidatePrior(ctx, p, pr)
	return nil
}

func (f *FileSystem) CreateDirectory(ctx *vfs.Context, p vfs.Path, opts vfs.CreateDirectoryOptions) error {
	return f.origin.CreateDirectory(ctx, p, opts)
}

func (f *FileSystem) Delete(ctx *vfs.Context, p vfs.Path, opts vfs.DeleteOptions) error {
	priors := f.priorsOf(ctx, p)
	if err := f.origin.Delete(ctx, p, opts); err != nil {
		return err
	}
	f.invalidatePriors(ctx, priors)
	return nil
}

func (f *FileSystem) Copy(ctx *vfs.Context, src, dst vfs.Path, opts vfs.CopyOptions) error {
	pr := f.priorOf(ctx, dst)
	if err := f.origin.Copy(ctx, src, dst, opts); err != nil {
		return err
	}
	f.invalidatePrior(ctx, dst, pr)
	return nil
}

func (f *FileSystem) Move(ctx *vfs.Context, src, dst vfs.Path, opts vfs.MoveOptions) error {
	priorSrc := f.priorsOf(ctx, src)
	priorDst := f.priorOf(ctx, dst)
	if err := f.origin.Move(ctx, src, dst, opts); err != nil {
		return err
	}
	f.invalidatePriors(ctx, priorSrc)
	f.invalidatePrior(ctx, dst, priorDst)
	return nil
}

// Dispose waits for in-flight read-ahead work. The origin and cache
// filesystems are shared components owned by the blueprint engine.
func (f *FileSystem) Dispose() error {
	f.background.Wait()
	return nil
}
