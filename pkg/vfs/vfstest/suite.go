// Package vfstest runs the universal filesystem test suite against any
// vfs.FileSystem implementation. Every backend package wires its own
// constructor into TestFileSystem from its _test.go file.
package vfstest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

type testCase struct {
	Name string
	Run  func(ctx *vfs.Context, fs vfs.FileSystem) error
}

func p(s string) vfs.Path {
	return vfs.MustParsePath(s)
}

var testCases = []testCase{
	{
		Name: "StatReflectsCreateAndDelete",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			path := p("/stat-lifecycle.txt")

			st, err := fs.Stat(ctx, path)
			if err != nil {
				return errors.WithStack(err)
			}
			if st != nil {
				return errors.Errorf("stat before create: expected nil, got %v", st)
			}

			exists, err := fs.Exists(ctx, path)
			if err != nil {
				return errors.WithStack(err)
			}
			if exists {
				return errors.New("exists before create: expected false")
			}

			if err := fs.WriteBytes(ctx, path, []byte("alive"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}

			st, err = fs.Stat(ctx, path)
			if err != nil {
				return errors.WithStack(err)
			}
			if st == nil {
				return errors.New("stat after create: expected non-nil")
			}
			if st.IsDirectory {
				return errors.New("stat after create: expected a file")
			}
			if st.Size == nil || *st.Size != 5 {
				return errors.Errorf("stat after create: unexpected size %v", st.Size)
			}

			if err := fs.Delete(ctx, path, vfs.DeleteOptions{}); err != nil {
				return errors.WithStack(err)
			}

			st, err = fs.Stat(ctx, path)
			if err != nil {
				return errors.WithStack(err)
			}
			if st != nil {
				return errors.Errorf("stat after delete: expected nil, got %v", st)
			}

			return nil
		},
	},
	{
		Name: "WriteReadRoundtrip",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			path := p("/roundtrip.bin")
			data := bytes.Repeat([]byte("0123456789abcdef"), 1024)

			if err := fs.WriteBytes(ctx, path, data, vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}

			read, err := fs.ReadAsBytes(ctx, path, vfs.ReadOptions{})
			if err != nil {
				return errors.WithStack(err)
			}
			if !bytes.Equal(data, read) {
				return errors.Errorf("read bytes differ from written bytes (%d vs %d)", len(read), len(data))
			}

			return nil
		},
	},
	{
		Name: "OverwriteSemantics",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			path := p("/overwrite.txt")

			if err := fs.WriteBytes(ctx, path, []byte("first"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}

			err := fs.WriteBytes(ctx, path, []byte("second"), vfs.WriteOptions{})
			if !vfs.Is(err, vfs.CodeAlreadyExists) {
				return errors.Errorf("rewriting without overwrite: expected alreadyExists, got %v", err)
			}

			if err := fs.WriteBytes(ctx, path, []byte("second"), vfs.WriteOptions{Mode: vfs.WriteModeOverwrite}); err != nil {
				return errors.WithStack(err)
			}

			read, err := fs.ReadAsBytes(ctx, path, vfs.ReadOptions{})
			if err != nil {
				return errors.WithStack(err)
			}
			if e, g := "second", string(read); e != g {
				return errors.Errorf("after overwrite: expected '%s', got '%s'", e, g)
			}

			return nil
		},
	},
	{
		Name: "AppendSemantics",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			path := p("/append.txt")

			if err := fs.WriteBytes(ctx, path, []byte("head-"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}

			err := fs.WriteBytes(ctx, path, []byte("tail"), vfs.WriteOptions{Mode: vfs.WriteModeAppend})
			if vfs.Is(err, vfs.CodeNotImplemented) {
				return nil
			}
			if err != nil {
				return errors.WithStack(err)
			}

			read, err := fs.ReadAsBytes(ctx, path, vfs.ReadOptions{})
			if err != nil {
				return errors.WithStack(err)
			}
			if e, g := "head-tail", string(read); e != g {
				return errors.Errorf("after append: expected '%s', got '%s'", e, g)
			}

			return nil
		},
	},
	{
		Name: "CreateDirectorySemantics",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			dir := p("/mkdir")

			if err := fs.CreateDirectory(ctx, dir, vfs.CreateDirectoryOptions{}); err != nil {
				return errors.WithStack(err)
			}

			err := fs.CreateDirectory(ctx, dir, vfs.CreateDirectoryOptions{})
			if !vfs.Is(err, vfs.CodeAlreadyExists) {
				return errors.Errorf("recreating a directory: expected alreadyExists, got %v", err)
			}

			file := dir.Join("occupied.txt")
			if err := fs.WriteBytes(ctx, file, []byte("x"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}
			err = fs.CreateDirectory(ctx, file, vfs.CreateDirectoryOptions{})
			if !vfs.Is(err, vfs.CodeAlreadyExists) {
				return errors.Errorf("mkdir over a file: expected alreadyExists, got %v", err)
			}

			deep := p("/mkdir/a/b/c")
			err = fs.CreateDirectory(ctx, deep, vfs.CreateDirectoryOptions{})
			if !vfs.Is(err, vfs.CodeNotFound) {
				return errors.Errorf("mkdir without parents: expected notFound, got %v", err)
			}

			if err := fs.CreateDirectory(ctx, deep, vfs.CreateDirectoryOptions{CreateParents: true}); err != nil {
				return errors.WithStack(err)
			}

			for _, ancestor := range []vfs.Path{p("/mkdir/a"), p("/mkdir/a/b"), deep} {
				st, err := fs.Stat(ctx, ancestor)
				if err != nil {
					return errors.WithStack(err)
				}
				if st == nil || !st.IsDirectory {
					return errors.Errorf("ancestor '%s' should be a directory", ancestor)
				}
			}

			return nil
		},
	},
	{
		Name: "DeleteSemantics",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			dir := p("/rmdir")

			if err := fs.CreateDirectory(ctx, dir, vfs.CreateDirectoryOptions{}); err != nil {
				return errors.WithStack(err)
			}
			if err := fs.CreateDirectory(ctx, dir.Join("sub"), vfs.CreateDirectoryOptions{}); err != nil {
				return errors.WithStack(err)
			}
			if err := fs.WriteBytes(ctx, dir.Join("sub").Join("f.txt"), []byte("f"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}

			err := fs.Delete(ctx, dir, vfs.DeleteOptions{})
			if !vfs.Is(err, vfs.CodeNotEmptyDirectory) {
				return errors.Errorf("deleting a non-empty directory: expected notEmptyDirectory, got %v", err)
			}

			if err := fs.Delete(ctx, dir, vfs.DeleteOptions{Recursive: true}); err != nil {
				return errors.WithStack(err)
			}

			for _, gone := range []vfs.Path{dir, dir.Join("sub"), dir.Join("sub").Join("f.txt")} {
				st, err := fs.Stat(ctx, gone)
				if err != nil {
					return errors.WithStack(err)
				}
				if st != nil {
					return errors.Errorf("'%s' should be gone after recursive delete", gone)
				}
			}

			return nil
		},
	},
	{
		Name: "ListSemantics",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			dir := p("/listing")

			if err := fs.CreateDirectory(ctx, dir, vfs.CreateDirectoryOptions{}); err != nil {
				return errors.WithStack(err)
			}

			empty := dir.Join("empty")
			if err := fs.CreateDirectory(ctx, empty, vfs.CreateDirectoryOptions{}); err != nil {
				return errors.WithStack(err)
			}
			count := 0
			for _, err := range fs.List(ctx, empty, vfs.ListOptions{}) {
				if err != nil {
					return errors.WithStack(err)
				}
				count++
			}
			if count != 0 {
				return errors.Errorf("listing an empty directory: expected 0 entries, got %d", count)
			}

			file := dir.Join("plain.txt")
			if err := fs.WriteBytes(ctx, file, []byte("plain"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}
			if err := firstError(fs.List(ctx, file, vfs.ListOptions{})); !vfs.Is(err, vfs.CodeNotADirectory) {
				return errors.Errorf("listing a file: expected notADirectory, got %v", err)
			}

			if err := firstError(fs.List(ctx, dir.Join("missing"), vfs.ListOptions{})); !vfs.Is(err, vfs.CodeNotFound) {
				return errors.Errorf("listing a missing path: expected notFound, got %v", err)
			}

			sub := dir.Join("sub")
			if err := fs.CreateDirectory(ctx, sub, vfs.CreateDirectoryOptions{}); err != nil {
				return errors.WithStack(err)
			}
			if err := fs.WriteBytes(ctx, sub.Join("nested.txt"), []byte("nested"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}

			seen := map[string]int{}
			for st, err := range fs.List(ctx, dir, vfs.ListOptions{Recursive: true}) {
				if err != nil {
					return errors.WithStack(err)
				}
				seen[st.Path.String()]++
			}
			expected := []string{"/listing/empty", "/listing/plain.txt", "/listing/sub", "/listing/sub/nested.txt"}
			if len(seen) != len(expected) {
				return errors.Errorf("recursive list: expected %d entries, got %v", len(expected), seen)
			}
			for _, path := range expected {
				if seen[path] != 1 {
					return errors.Errorf("recursive list: expected '%s' exactly once, got %d", path, seen[path])
				}
			}

			for st, err := range fs.List(ctx, dir, vfs.ListOptions{}) {
				if err != nil {
					return errors.WithStack(err)
				}
				if !st.Path.Parent().Equal(dir) {
					return errors.Errorf("listed entry '%s' should be a direct child of '%s'", st.Path, dir)
				}
			}

			return nil
		},
	},
	{
		Name: "CopyFileOntoExistingRequiresOverwrite",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			src := p("/copy-src.txt")
			dst := p("/copy-dst.txt")

			if err := fs.WriteBytes(ctx, src, []byte("source"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}
			if err := fs.WriteBytes(ctx, dst, []byte("old"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}

			err := fs.Copy(ctx, src, dst, vfs.CopyOptions{})
			if !vfs.Is(err, vfs.CodeAlreadyExists) {
				return errors.Errorf("copy onto an existing file: expected alreadyExists, got %v", err)
			}

			if err := fs.Copy(ctx, src, dst, vfs.CopyOptions{Overwrite: true}); err != nil {
				return errors.WithStack(err)
			}

			read, err := fs.ReadAsBytes(ctx, dst, vfs.ReadOptions{})
			if err != nil {
				return errors.WithStack(err)
			}
			if e, g := "source", string(read); e != g {
				return errors.Errorf("after copy with overwrite: expected '%s', got '%s'", e, g)
			}

			return nil
		},
	},
	{
		Name: "CopyDirectoryRecursive",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			src := p("/tree-src")
			dst := p("/tree-dst")

			files := map[string]string{
				"a.txt":       "alpha",
				"sub/b.txt":   "beta",
				"sub/c.bin":   "gamma",
				"sub/d/e.txt": "delta",
			}

			if err := fs.CreateDirectory(ctx, src, vfs.CreateDirectoryOptions{}); err != nil {
				return errors.WithStack(err)
			}
			for rel, content := range files {
				path := src.JoinAll(p("/" + rel).Segments())
				if err := fs.CreateDirectory(ctx, path.Parent(), vfs.CreateDirectoryOptions{CreateParents: true}); err != nil && !vfs.Is(err, vfs.CodeAlreadyExists) {
					return errors.WithStack(err)
				}
				if err := fs.WriteBytes(ctx, path, []byte(content), vfs.WriteOptions{}); err != nil {
					return errors.WithStack(err)
				}
			}

			err := fs.Copy(ctx, src, dst, vfs.CopyOptions{})
			if !vfs.Is(err, vfs.CodeRecursiveNotSpecified) {
				return errors.Errorf("directory copy without recursive: expected recursiveNotSpecified, got %v", err)
			}

			if err := fs.Copy(ctx, src, dst, vfs.CopyOptions{Recursive: true}); err != nil {
				return errors.WithStack(err)
			}

			for rel, content := range files {
				path := dst.JoinAll(p("/" + rel).Segments())
				read, err := fs.ReadAsBytes(ctx, path, vfs.ReadOptions{})
				if err != nil {
					return errors.WithStack(err)
				}
				if e, g := content, string(read); e != g {
					return errors.Errorf("copied file '%s': expected '%s', got '%s'", path, e, g)
				}
			}

			return nil
		},
	},
	{
		Name: "RangedRead",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			path := p("/ranged.txt")
			if err := fs.WriteBytes(ctx, path, []byte("0123456789"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}

			cases := []struct {
				start, end int64
				expected   string
			}{
				{0, 10, "0123456789"},
				{2, 8, "234567"},
				{9, 10, "9"},
				{0, 1, "0"},
			}
			for _, c := range cases {
				read, err := fs.ReadAsBytes(ctx, path, vfs.ReadOptions{Start: &c.start, End: &c.end})
				if err != nil {
					return errors.WithStack(err)
				}
				if e, g := c.expected, string(read); e != g {
					return errors.Errorf("range [%d,%d): expected '%s', got '%s'", c.start, c.end, e, g)
				}
			}

			start, end := int64(5), int64(50)
			if _, err := fs.ReadAsBytes(ctx, path, vfs.ReadOptions{Start: &start, End: &end}); err == nil {
				return errors.New("out-of-range read: expected an error")
			}

			return nil
		},
	},
	{
		Name: "MoveFile",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			src := p("/move-src.txt")
			dst := p("/move-dst.txt")

			if err := fs.WriteBytes(ctx, src, []byte("moved"), vfs.WriteOptions{}); err != nil {
				return errors.WithStack(err)
			}
			if err := fs.Move(ctx, src, dst, vfs.MoveOptions{}); err != nil {
				return errors.WithStack(err)
			}

			st, err := fs.Stat(ctx, src)
			if err != nil {
				return errors.WithStack(err)
			}
			if st != nil {
				return errors.New("source should be gone after move")
			}

			read, err := fs.ReadAsBytes(ctx, dst, vfs.ReadOptions{})
			if err != nil {
				return errors.WithStack(err)
			}
			if e, g := "moved", string(read); e != g {
				return errors.Errorf("after move: expected '%s', got '%s'", e, g)
			}

			return nil
		},
	},
	{
		Name: "ReadMissingFile",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			if _, err := fs.ReadAsBytes(ctx, p("/nope.txt"), vfs.ReadOptions{}); !vfs.Is(err, vfs.CodeNotFound) {
				return errors.Errorf("reading a missing file: expected notFound, got %v", err)
			}
			return nil
		},
	},
	{
		Name: "WriteIntoMissingParent",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			err := fs.WriteBytes(ctx, p("/no-such-dir/f.txt"), []byte("x"), vfs.WriteOptions{})
			if !vfs.Is(err, vfs.CodeNotFound) {
				return errors.Errorf("writing under a missing parent: expected notFound, got %v", err)
			}
			return nil
		},
	},
	{
		Name: "CancelledContextFailsFast",
		Run: func(ctx *vfs.Context, fs vfs.FileSystem) error {
			cancelled, cancel := vfs.WithCancel(ctx)
			cancel()

			if _, err := fs.Stat(cancelled, p("/whatever")); !vfs.Is(err, vfs.CodeCancelled) {
				return errors.Errorf("stat on a cancelled context: expected cancelled, got %v", err)
			}
			return nil
		},
	},
}

func firstError(entries vfs.Entries) error {
	for _, err := range entries {
		if err != nil {
			return err
		}
	}
	return nil
}

// TestFileSystem runs the universal suite against the filesystem
// returned by build. build is called once per test case so cases run on
// independent state wherever the backend supports it; backends with
// shared external state (e.g. a bucket) may return the same instance and
// rely on the per-case path prefixes staying disjoint.
func TestFileSystem(t *testing.T, build func(t *testing.T) vfs.FileSystem) {
	t.Helper()

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			fs := build(t)

			inner, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			ctx := vfs.NewContext(inner, nil)

			if err := tc.Run(ctx, fs); err != nil {
				t.Errorf("%+v", errors.WithStack(err))
			}
		})
	}
}

// WriteTree populates fs with the given relative path -> content map,
// creating intermediate directories. Paths are rooted at base.
func WriteTree(t *testing.T, ctx *vfs.Context, fs vfs.FileSystem, base vfs.Path, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := base.JoinAll(p("/" + rel).Segments())
		if err := fs.CreateDirectory(ctx, path.Parent(), vfs.CreateDirectoryOptions{CreateParents: true}); err != nil && !vfs.Is(err, vfs.CodeAlreadyExists) {
			t.Fatalf("%+v", errors.WithStack(err))
		}
		if err := fs.WriteBytes(ctx, path, []byte(content), vfs.WriteOptions{}); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}
}

// Names collects the filenames of the direct children of dir, failing
// the test on any iteration error.
func Names(t *testing.T, ctx *vfs.Context, fs vfs.FileSystem, dir vfs.Path) map[string]bool {
	t.Helper()

	names := map[string]bool{}
	for st, err := range fs.List(ctx, dir, vfs.ListOptions{}) {
		if err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
		names[st.Path.Filename()] = true
	}
	return names
}
