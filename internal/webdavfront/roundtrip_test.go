package webdavfront

import (
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/internal/frontend"
	"github.com/zhangzqs/govfs/pkg/vfs"
	"github.com/zhangzqs/govfs/pkg/vfs/memory"
	"github.com/zhangzqs/govfs/pkg/vfs/vfstest"
	"github.com/zhangzqs/govfs/pkg/vfs/webdavfs"
)

// newRoundtrip serves a memory backend through the WebDAV front-end and
// connects the WebDAV client backend to it, exercising both ends of the
// wire protocol against each other.
func newRoundtrip(t *testing.T) (vfs.FileSystem, vfs.FileSystem) {
	t.Helper()

	origin := vfs.Wrap(memory.NewFileSystem())
	handler := frontend.WithRequestContext(nil)(NewHandler(origin, nil))

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	baseURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	remote := webdavfs.NewFileSystem(baseURL, server.Client(), nil)
	t.Cleanup(func() {
		if err := remote.Dispose(); err != nil {
			t.Errorf("%+v", errors.WithStack(err))
		}
	})

	return remote, origin
}

func TestRoundtripReadAndWrite(t *testing.T) {
	remote, origin := newRoundtrip(t)
	ctx := newContext()

	if err := remote.WriteBytes(ctx, p("/over-the-wire.txt"), []byte("hello dav"), vfs.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	data, err := origin.ReadAsBytes(ctx, p("/over-the-wire.txt"), vfs.ReadOptions{})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if e, g := "hello dav", string(data); e != g {
		t.Errorf("origin content: expected '%s', got '%s'", e, g)
	}

	start, end := int64(6), int64(9)
	ranged, err := remote.ReadAsBytes(ctx, p("/over-the-wire.txt"), vfs.ReadOptions{Start: &start, End: &end})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if e, g := "dav", string(ranged); e != g {
		t.Errorf("ranged read over the wire: expected '%s', got '%s'", e, g)
	}
}

func TestRoundtripListing(t *testing.T) {
	remote, origin := newRoundtrip(t)
	ctx := newContext()

	vfstest.WriteTree(t, ctx, origin, vfs.Root, map[string]string{
		"notes.txt":  "n",
		"docs/a.txt": "a",
	})

	names := vfstest.Names(t, ctx, remote, vfs.Root)
	for _, expected := range []string{"notes.txt", "docs"} {
		if !names[expected] {
			t.Errorf("remote listing should contain '%s', got %v", expected, names)
		}
	}

	st, err := remote.Stat(ctx, p("/docs"))
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if st == nil || !st.IsDirectory {
		t.Errorf("'/docs' should stat as a directory over the wire, got %v", st)
	}
}

func TestRoundtripDeleteAndMkcol(t *testing.T) {
	remote, origin := newRoundtrip(t)
	ctx := newContext()

	if err := remote.CreateDirectory(ctx, p("/made-remotely"), vfs.CreateDirectoryOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if exists, err := origin.Exists(ctx, p("/made-remotely")); err != nil || !exists {
		t.Fatalf("collection should exist on origin (exists=%v, err=%v)", exists, err)
	}

	vfstest.WriteTree(t, ctx, origin, vfs.Root, map[string]string{"made-remotely/f.txt": "f"})

	if err := remote.Delete(ctx, p("/made-remotely"), vfs.DeleteOptions{Recursive: true}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if exists, err := origin.Exists(ctx, p("/made-remotely")); err != nil || exists {
		t.Errorf("collection should be gone on origin (exists=%v, err=%v)", exists, err)
	}
}

func TestRoundtripMissingFile(t *testing.T) {
	remote, _ := newRoundtrip(t)
	ctx := newContext()

	st, err := remote.Stat(ctx, p("/not-there"))
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	if st != nil {
		t.Errorf("missing path should stat nil over the wire, got %v", st)
	}

	if _, err := remote.ReadAsBytes(ctx, p("/not-there"), vfs.ReadOptions{}); !vfs.Is(err, vfs.CodeNotFound) {
		t.Errorf("reading a missing remote file: expected notFound, got %v", err)
	}
}
