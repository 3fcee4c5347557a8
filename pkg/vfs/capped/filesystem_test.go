package capped

import (
	"bytes"
	"context"
	"testing"

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

func TestFileSystemSuite(t *testing.T) {
	vfstest.TestFileSystem(t, func(t *testing.T) vfs.FileSystem {
		// A cap far above anything the suite writes, so semantics stay
		// untouched.
		return NewFileSystem(vfs.Wrap(memory.NewFileSystem()), 1<<30, nil)
	})
}

func TestEvictsLeastRecentlyAccessed(t *testing.T) {
	ctx := newContext()

	inner := vfs.Wrap(memory.NewFileSystem())
	fs := NewFileSystem(inner, 25, nil)

	payload := bytes.Repeat([]byte("x"), 10)

	if err := fs.WriteBytes(ctx, p("/old.bin"), payload, vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if err := fs.WriteBytes(ctx, p("/mid.bin"), payload, vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	// Touch the oldest file so "mid" becomes the eviction candidate.
	if _, err := fs.ReadAsBytes(ctx, p("/old.bin"), vfs.ReadOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if err := fs.WriteBytes(ctx, p("/new.bin"), payload, vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if exists, err := inner.Exists(ctx, p("/mid.bin")); err != nil || exists {
		t.Errorf("mid.bin should be evicted (exists=%v, err=%v)", exists, err)
	}
	for _, kept := range []string{"/old.bin", "/new.bin"} {
		if exists, err := inner.Exists(ctx, p(kept)); err != nil || !exists {
			t.Errorf("%s should survive eviction (exists=%v, err=%v)", kept, exists, err)
		}
	}
}

func TestPreexistingFilesCountTowardCap(t *testing.T) {
	ctx := newContext()

	inner := vfs.Wrap(memory.NewFileSystem())
	if err := inner.WriteBytes(ctx, p("/seeded.bin"), bytes.Repeat([]byte("s"), 20), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	fs := NewFileSystem(inner, 25, nil)

	if err := fs.WriteBytes(ctx, p("/fresh.bin"), bytes.Repeat([]byte("f"), 10), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if exists, err := inner.Exists(ctx, p("/seeded.bin")); err != nil || exists {
		t.Errorf("the pre-existing file should be evicted to make room (exists=%v, err=%v)", exists, err)
	}
	if exists, err := inner.Exists(ctx, p("/fresh.bin")); err != nil || !exists {
		t.Errorf("the fresh file should be kept (exists=%v, err=%v)", exists, err)
	}
}

func TestDeleteReleasesTrackedBytes(t *testing.T) {
	ctx := newContext()

	inner := vfs.Wrap(memory.NewFileSystem())
	fs := NewFileSystem(inner, 25, nil)

	if err := fs.WriteBytes(ctx, p("/a.bin"), bytes.Repeat([]byte("a"), 20), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if err := fs.Delete(ctx, p("/a.bin"), vfs.DeleteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	// With a.bin released, 20 more bytes fit without evicting anything.
	if err := fs.WriteBytes(ctx, p("/b.bin"), bytes.Repeat([]byte("b"), 20), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if fs.curSize != 20 {
		t.Errorf("tracked size: expected 20, got %d", fs.curSize)
	}
}
