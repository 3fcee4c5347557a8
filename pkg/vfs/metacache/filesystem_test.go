package metacache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/vfs"
	"github.com/zhangzqs/govfs/pkg/vfs/memory"
	"github.com/zhangzqs/govfs/pkg/vfs/vfstest"
)

func newContext() *vfs.Context {
	return vfs.NewContext(context.Background(), nil)
}

func p(s string) vfs.Path {
	return vfs.MustParsePath(s)
}

func newCache(t *testing.T, cfg Config) *FileSystem {
	t.Helper()

	if cfg.Origin == nil {
		cfg.Origin = vfs.Wrap(memory.NewFileSystem())
	}
	if cfg.CacheFS == nil {
		cfg.CacheFS = vfs.Wrap(memory.NewFileSystem())
	}
	if cfg.CacheDir.IsRoot() {
		cfg.CacheDir = p("/cache")
		ctx := newContext()
		if err := cfg.CacheFS.CreateDirectory(ctx, cfg.CacheDir, vfs.CreateDirectoryOptions{CreateParents: true}); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	fs := NewFileSystem(cfg)
	t.Cleanup(func() {
		if err := fs.Dispose(); err != nil {
			t.Errorf("%+v", errors.WithStack(err))
		}
	})
	return fs
}

func TestFileSystemSuite(t *testing.T) {
	vfstest.TestFileSystem(t, func(t *testing.T) vfs.FileSystem {
		return newCache(t, Config{})
	})
}

// countingFS counts origin operations so tests can assert cache hits.
// Counters are atomic: background refreshes touch the origin
// concurrently with the test goroutine.
type countingFS struct {
	vfs.FileSystem
	stats atomic.Int64
	lists atomic.Int64
}

func (c *countingFS) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	c.stats.Add(1)
	return c.FileSystem.Stat(ctx, p)
}

func (c *countingFS) List(ctx *vfs.Context, p vfs.Path, opts vfs.ListOptions) vfs.Entries {
	c.lists.Add(1)
	return c.FileSystem.List(ctx, p, opts)
}

func TestStatServedFromCache(t *testing.T) {
	ctx := newContext()

	origin := &countingFS{FileSystem: vfs.Wrap(memory.NewFileSystem())}
	cache := newCache(t, Config{Origin: origin})

	path := p("/cached.txt")
	if err := cache.WriteBytes(ctx, path, []byte("payload"), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	// The write refreshed the entry synchronously, so this stat must be
	// served from the cache without touching the origin.
	statsBefore := origin.stats.Load()
	st, err := cache.Stat(ctx, path)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if st == nil || st.IsDirectory {
		t.Fatalf("expected a cached file status, got %v", st)
	}
	if st.Size == nil || *st.Size != 7 {
		t.Errorf("cached size: expected 7, got %v", st.Size)
	}
	if extra := origin.stats.Load() - statsBefore; extra != 0 {
		t.Errorf("stat should not touch origin on a cache hit (%d extra calls)", extra)
	}
}

func TestListReflectsSiblingCreation(t *testing.T) {
	ctx := newContext()

	cache := newCache(t, Config{})

	if err := cache.WriteBytes(ctx, p("/a"), []byte("a"), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	names := vfstest.Names(t, ctx, cache, vfs.Root)
	if !names["a"] {
		t.Fatalf("listing should contain 'a', got %v", names)
	}

	if err := cache.WriteBytes(ctx, p("/b"), []byte("b"), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	// The parent refresh is synchronous: the new sibling must be visible
	// immediately.
	names = vfstest.Names(t, ctx, cache, vfs.Root)
	if !names["b"] {
		t.Errorf("listing right after create should contain 'b', got %v", names)
	}
}

func TestDeleteInvalidatesEntry(t *testing.T) {
	ctx := newContext()

	cache := newCache(t, Config{})

	path := p("/gone.txt")
	if err := cache.WriteBytes(ctx, path, []byte("x"), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if err := cache.Delete(ctx, path, vfs.DeleteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	st, err := cache.Stat(ctx, path)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if st != nil {
		t.Errorf("stat after delete should be nil, got %v", st)
	}

	names := vfstest.Names(t, ctx, cache, vfs.Root)
	if names["gone.txt"] {
		t.Errorf("listing after delete should not contain the file, got %v", names)
	}
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	ctx := newContext()

	origin := &countingFS{FileSystem: vfs.Wrap(memory.NewFileSystem())}
	cache := newCache(t, Config{Origin: origin, MaxCacheAge: time.Nanosecond})

	path := p("/expiring.txt")
	if err := cache.WriteBytes(ctx, path, []byte("x"), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	time.Sleep(10 * time.Millisecond)

	statsBefore := origin.stats.Load()
	if _, err := cache.Stat(ctx, path); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if origin.stats.Load() == statsBefore {
		t.Errorf("an expired entry should fall through to origin")
	}
}

func TestLargeDirectoryChildrenAreNotCached(t *testing.T) {
	ctx := newContext()

	origin := &countingFS{FileSystem: vfs.Wrap(memory.NewFileSystem())}
	cache := newCache(t, Config{Origin: origin, LargeDirectoryThreshold: 3})

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if err := cache.WriteBytes(ctx, p("/"+name), []byte(name), vfs.WriteOptions{}); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	listsBefore := origin.lists.Load()
	names := vfstest.Names(t, ctx, cache, vfs.Root)
	if len(names) != 5 {
		t.Fatalf("expected 5 children, got %v", names)
	}
	if origin.lists.Load() == listsBefore {
		t.Errorf("a large directory listing should stream from origin")
	}
}

func TestOriginErrorsPropagate(t *testing.T) {
	ctx := newContext()

	cache := newCache(t, Config{})

	// Listing a missing directory is an origin error, never a cached
	// miss.
	var firstErr error
	for _, err := range cache.List(ctx, p("/missing"), vfs.ListOptions{}) {
		if err != nil {
			firstErr = err
			break
		}
	}
	if !vfs.Is(firstErr, vfs.CodeNotFound) {
		t.Errorf("listing a missing directory: expected notFound, got %v", firstErr)
	}
}

func TestSweeperBoundsRecordTable(t *testing.T) {
	ctx := newContext()

	cache := newCache(t, Config{
		MaxCacheSize:     4,
		CleanupBatchSize: 2,
		CleanupInterval:  time.Hour,
	})

	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		if err := cache.WriteBytes(ctx, p("/"+name), []byte(name), vfs.WriteOptions{}); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	cache.sweeper.Sweep()

	if size := cache.records.Len(); size > 4+2 {
		t.Errorf("record table after sweep: expected at most maxCacheSize+batch entries, got %d", size)
	}
}
