package union

import (
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
		return NewFileSystem([]Item{
			{FS: vfs.Wrap(memory.NewFileSystem()), MountPath: vfs.Root},
		})
	})
}

func TestMergedListingAndRouting(t *testing.T) {
	ctx := newContext()

	fsA := vfs.Wrap(memory.NewFileSystem())
	fsB := vfs.Wrap(memory.NewFileSystem())

	vfstest.WriteTree(t, ctx, fsA, vfs.Root, map[string]string{"file1.txt": "a1"})
	if err := fsA.CreateDirectory(ctx, p("/dir1"), vfs.CreateDirectoryOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	vfstest.WriteTree(t, ctx, fsB, vfs.Root, map[string]string{"file2.txt": "b2"})

	union := NewFileSystem([]Item{
		{FS: fsA, MountPath: vfs.Root},
		{FS: fsB, MountPath: p("/fs2")},
	})

	names := vfstest.Names(t, ctx, union, vfs.Root)
	for _, expected := range []string{"file1.txt", "dir1", "fs2"} {
		if !names[expected] {
			t.Errorf("listing of '/' should contain '%s', got %v", expected, names)
		}
	}

	data, err := union.ReadAsBytes(ctx, p("/fs2/file2.txt"), vfs.ReadOptions{})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if e, g := "b2", string(data); e != g {
		t.Errorf("ReadAsBytes: expected '%s', got '%s'", e, g)
	}
}

func TestSynthesizedMountDirectories(t *testing.T) {
	ctx := newContext()

	inner := vfs.Wrap(memory.NewFileSystem())
	union := NewFileSystem([]Item{
		{FS: inner, MountPath: p("/deep/mount/point")},
	})

	for _, path := range []vfs.Path{vfs.Root, p("/deep"), p("/deep/mount"), p("/deep/mount/point")} {
		st, err := union.Stat(ctx, path)
		if err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
		if st == nil || !st.IsDirectory {
			t.Errorf("'%s' should stat as a synthesized directory", path)
		}
	}

	names := vfstest.Names(t, ctx, union, p("/deep"))
	if !names["mount"] {
		t.Errorf("listing of '/deep' should contain the synthesized 'mount' entry, got %v", names)
	}

	st, err := union.Stat(ctx, p("/unrelated"))
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if st != nil {
		t.Errorf("'/unrelated' should not exist, got %v", st)
	}
}

func TestReadOnlyWriteIsRejected(t *testing.T) {
	ctx := newContext()

	union := NewFileSystem([]Item{
		{FS: vfs.Wrap(memory.NewFileSystem()), MountPath: vfs.Root, ReadOnly: true},
	})

	err := union.WriteBytes(ctx, p("/x"), []byte("x"), vfs.WriteOptions{})
	if !vfs.Is(err, vfs.CodePermissionDenied) {
		t.Errorf("write to a read-only union: expected permissionDenied, got %v", err)
	}
}

func TestResolutionOrderGovernsReadsAndWrites(t *testing.T) {
	ctx := newContext()

	low := vfs.Wrap(memory.NewFileSystem())
	high := vfs.Wrap(memory.NewFileSystem())

	vfstest.WriteTree(t, ctx, low, vfs.Root, map[string]string{"shared.txt": "low"})
	vfstest.WriteTree(t, ctx, high, vfs.Root, map[string]string{"shared.txt": "high"})

	union := NewFileSystem([]Item{
		{FS: low, MountPath: vfs.Root, Priority: 1},
		{FS: high, MountPath: vfs.Root, Priority: 10},
	})

	data, err := union.ReadAsBytes(ctx, p("/shared.txt"), vfs.ReadOptions{})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if e, g := "high", string(data); e != g {
		t.Errorf("read should be served by the highest-priority item: expected '%s', got '%s'", e, g)
	}

	// Writes follow the same resolution order as reads.
	if err := union.WriteBytes(ctx, p("/new.txt"), []byte("routed"), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if _, err := high.ReadAsBytes(ctx, p("/new.txt"), vfs.ReadOptions{}); err != nil {
		t.Errorf("write should land on the highest-priority writable item: %+v", err)
	}
	if _, err := low.ReadAsBytes(ctx, p("/new.txt"), vfs.ReadOptions{}); !vfs.Is(err, vfs.CodeNotFound) {
		t.Errorf("write should not land on the lower-priority item, got %v", err)
	}
}

func TestWriteSkipsReadOnlyItems(t *testing.T) {
	ctx := newContext()

	frozen := vfs.Wrap(memory.NewFileSystem())
	writable := vfs.Wrap(memory.NewFileSystem())

	union := NewFileSystem([]Item{
		{FS: frozen, MountPath: vfs.Root, Priority: 10, ReadOnly: true},
		{FS: writable, MountPath: vfs.Root, Priority: 1},
	})

	if err := union.WriteBytes(ctx, p("/f.txt"), []byte("w"), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if _, err := writable.ReadAsBytes(ctx, p("/f.txt"), vfs.ReadOptions{}); err != nil {
		t.Errorf("write should land on the first writable item: %+v", err)
	}
}

func TestNoFallbackOnMissingParent(t *testing.T) {
	ctx := newContext()

	primary := vfs.Wrap(memory.NewFileSystem())
	secondary := vfs.Wrap(memory.NewFileSystem())

	// Only the secondary has the parent directory; the union must still
	// route the write to the primary and surface its notFound.
	if err := secondary.CreateDirectory(ctx, p("/present"), vfs.CreateDirectoryOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	union := NewFileSystem([]Item{
		{FS: primary, MountPath: vfs.Root, Priority: 10},
		{FS: secondary, MountPath: vfs.Root, Priority: 1},
	})

	err := union.WriteBytes(ctx, p("/present/f.txt"), []byte("x"), vfs.WriteOptions{})
	if !vfs.Is(err, vfs.CodeNotFound) {
		t.Errorf("write with a missing parent on the routed item: expected notFound, got %v", err)
	}
}

func TestCrossItemCopy(t *testing.T) {
	ctx := newContext()

	fsA := vfs.Wrap(memory.NewFileSystem())
	fsB := vfs.Wrap(memory.NewFileSystem())

	vfstest.WriteTree(t, ctx, fsB, vfs.Root, map[string]string{"origin.txt": "payload"})

	union := NewFileSystem([]Item{
		{FS: fsA, MountPath: vfs.Root},
		{FS: fsB, MountPath: p("/ro"), ReadOnly: true},
	})

	if err := union.Copy(ctx, p("/ro/origin.txt"), p("/copied.txt"), vfs.CopyOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	data, err := fsA.ReadAsBytes(ctx, p("/copied.txt"), vfs.ReadOptions{})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if e, g := "payload", string(data); e != g {
		t.Errorf("cross-item copy: expected '%s', got '%s'", e, g)
	}
}
