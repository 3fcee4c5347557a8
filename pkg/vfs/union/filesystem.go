// Package union implements a merged view over N inner filesystems, each
// mounted at a path prefix with a priority and an optional read-only
// flag.
package union

import (
	"io"
	"sort"

	"github.com/zhangzqs/govfs/pkg/vfs"
)

// Item mounts an inner filesystem at MountPath. The inner filesystem is
// shared, not owned: the blueprint engine owns each component once, so
// Dispose on the union never touches its members.
type Item struct {
	FS        vfs.FileSystem
	MountPath vfs.Path
	Priority  int
	ReadOnly  bool
}

// FileSystem merges its items into a single tree. Resolution order is
// priority descending, ties broken by declaration order; it governs
// which item serves a read and which item receives a write.
type FileSystem struct {
	items []Item
}

// NewFileSystem builds a union over items. The declaration order of
// equal-priority items is preserved.
func NewFileSystem(items []Item) *FileSystem {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &FileSystem{items: sorted}
}

// candidates returns the items p is attributable to, in resolution
// order: p equals the mount path or sits strictly under it.
func (f *FileSystem) candidates(p vfs.Path) []Item {
	var out []Item
	for _, item := range f.items {
		if p.HasPrefix(item.MountPath) {
			out = append(out, item)
		}
	}
	return out
}

// mountPrefix reports whether p is a mount path or a strict prefix of
// one; such a path is always a directory even when no inner filesystem
// backs it explicitly.
func (f *FileSystem) mountPrefix(p vfs.Path) bool {
	for _, item := range f.items {
		if item.MountPath.HasPrefix(p) {
			return true
		}
	}
	return false
}

// serving returns the first candidate whose inner filesystem knows p,
// with p translated into that filesystem, or ok=false when no item
// backs p explicitly.
func (f *FileSystem) serving(ctx *vfs.Context, p vfs.Path) (Item, *vfs.FileStatus, bool, error) {
	for _, item := range f.candidates(p) {
		st, err := item.FS.Stat(ctx, p.TrimPrefix(item.MountPath))
		if err != nil {
			return Item{}, nil, false, err
		}
		if st != nil {
			return item, st, true, nil
		}
	}
	return Item{}, nil, false, nil
}

// writeTarget returns the first writable candidate for p. All-read-only
// candidates raise CodePermissionDenied; no candidate at all raises
// CodeNotFound.
func (f *FileSystem) writeTarget(p vfs.Path) (Item, error) {
	candidates := f.candidates(p)
	if len(candidates) == 0 {
		return Item{}, vfs.NewError(vfs.CodeNotFound, &p, "no filesystem mounted for path")
	}
	for _, item := range candidates {
		if !item.ReadOnly {
			return item, nil
		}
	}
	return Item{}, vfs.NewError(vfs.CodePermissionDenied, &p, "all mounted filesystems are read-only")
}

func (f *FileSystem) Stat(ctx *vfs.Context, p vfs.Path) (*vfs.FileStatus, error) {
	_, st, ok, err := f.serving(ctx, p)
	if err != nil {
		return nil, err
	}
	if ok {
		st.Path = p
		return st, nil
	}

	if f.mountPrefix(p) {
		synthesized := vfs.NewDirectoryStatus(p)
		return &synthesized, nil
	}

	return nil, nil
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

// listDirect merges the direct children of p from every candidate, plus
// a synthesized directory entry per mount point reachable from p.
// Children are deduplicated by name; the first occurrence in resolution
// order wins.
func (f *FileSystem) listDirect(ctx *vfs.Context, p vfs.Path) vfs.Entries {
	return func(yield func(vfs.FileStatus, error) bool) {
		if err := ctx.CheckCancelled(); err != nil {
			yield(vfs.FileStatus{}, err)
			return
		}

		seen := map[string]bool{}
		exists := false

		for _, item := range f.candidates(p) {
			translated := p.TrimPrefix(item.MountPath)

			st, err := item.FS.Stat(ctx, translated)
			if err != nil {
				yield(vfs.FileStatus{}, err)
				return
			}
			if st == nil {
				continue
			}
			if !st.IsDirectory {
				// The winning candidate decides; a lower-priority file
				// shadowed by a directory is simply skipped.
				if !exists {
					yield(vfs.FileStatus{}, vfs.NewError(vfs.CodeNotADirectory, &p, "not a directory"))
					return
				}
				continue
			}
			exists = true

			for child, err := range item.FS.List(ctx, translated, vfs.ListOptions{}) {
				if err != nil {
					yield(vfs.FileStatus{}, err)
					return
				}

				name := child.Path.Filename()
				if seen[name] {
					continue
				}
				seen[name] = true

				child.Path = p.Join(name)
				if !yield(child, nil) {
					return
				}
			}
		}

		for _, item := range f.items {
			if !item.MountPath.StrictlyUnder(p) {
				continue
			}
			exists = true
			name := item.MountPath.Segments()[p.Depth()]
			if seen[name] {
				continue
			}
			seen[name] = true
			if !yield(vfs.NewDirectoryStatus(p.Join(name)), nil) {
				return
			}
		}

		if !exists && !f.mountPrefix(p) {
			yield(vfs.FileStatus{}, vfs.NewError(vfs.CodeNotFound, &p, "directory does not exist"))
		}
	}
}

func (f *FileSystem) OpenRead(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) (io.ReadCloser, error) {
	item, st, ok, err := f.serving(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		if f.mountPrefix(p) {
			return nil, vfs.NewError(vfs.CodeNotAFile, &p, "cannot open a directory for reading")
		}
		return nil, vfs.NewError(vfs.CodeNotFound, &p, "file does not exist")
	}
	if st.IsDirectory {
		return nil, vfs.NewError(vfs.CodeNotAFile, &p, "cannot open a directory for reading")
	}
	return item.FS.OpenRead(ctx, p.TrimPrefix(item.MountPath), opts)
}

func (f *FileSystem) ReadAsBytes(ctx *vfs.Context, p vfs.Path, opts vfs.ReadOptions) ([]byte, error) {
	r, err := f.OpenRead(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, vfs.WrapError(vfs.CodeIOError, &p, err)
	}
	return data, nil
}

func (f *FileSystem) OpenWrite(ctx *vfs.Context, p vfs.Path, opts vfs.WriteOptions) (io.WriteCloser, error) {
	item, err := f.writeTarget(p)
	if err != nil {
		return nil, err
	}
	// Writes are strictly routed: a failure inside the chosen backend
	// (e.g. a missing parent) never falls back to a lower-priority item.
	return item.FS.OpenWrite(ctx, p.TrimPrefix(item.MountPath), opts)
}

func (f *FileSystem) WriteBytes(ctx *vfs.Context, p vfs.Path, data []byte, opts vfs.WriteOptions) error {
	item, err := f.writeTarget(p)
	if err != nil {
		return err
	}
	return item.FS.WriteBytes(ctx, p.TrimPrefix(item.MountPath), data, opts)
}

func (f *FileSystem) CreateDirectory(ctx *vfs.Context, p vfs.Path, opts vfs.CreateDirectoryOptions) error {
	item, err := f.writeTarget(p)
	if err != nil {
		return err
	}
	return item.FS.CreateDirectory(ctx, p.TrimPrefix(item.MountPath), opts)
}

func (f *FileSystem) Delete(ctx *vfs.Context, p vfs.Path, opts vfs.DeleteOptions) error {
	item, err := f.writeTarget(p)
	if err != nil {
		return err
	}
	return item.FS.Delete(ctx, p.TrimPrefix(item.MountPath), opts)
}

func (f *FileSystem) Copy(ctx *vfs.Context, src, dst vfs.Path, opts vfs.CopyOptions) error {
	srcItem, srcSt, ok, err := f.serving(ctx, src)
	if err != nil {
		return err
	}
	if !ok {
		if f.mountPrefix(src) {
			srcSt = &vfs.FileStatus{Path: src, IsDirectory: true}
		} else {
			return vfs.NewError(vfs.CodeNotFound, &src, "source does not exist")
		}
	}

	dstItem, err := f.writeTarget(dst)
	if err != nil {
		return err
	}

	if ok && sameItem(srcItem, dstItem) {
		return srcItem.FS.Copy(ctx, src.TrimPrefix(srcItem.MountPath), dst.TrimPrefix(dstItem.MountPath), opts)
	}

	if !srcSt.IsDirectory {
		return f.copyFileAcross(ctx, src, dst, opts)
	}

	if !opts.Recursive {
		return vfs.NewError(vfs.CodeRecursiveNotSpecified, &src, "directory copy requires recursive")
	}
	return f.copyDirectoryAcross(ctx, src, dst, opts)
}

func sameItem(a, b Item) bool {
	return a.FS == b.FS && a.MountPath.Equal(b.MountPath)
}

// copyFileAcross streams a single file between two different mounted
// filesystems through the union's own read and write routing.
func (f *FileSystem) copyFileAcross(ctx *vfs.Context, src, dst vfs.Path, opts vfs.CopyOptions) error {
	dstSt, err := f.Stat(ctx, dst)
	if err != nil {
		return err
	}

	target := dst
	if dstSt != nil {
		if dstSt.IsDirectory {
			target = dst.Join(src.Filename())
			targetSt, err := f.Stat(ctx, target)
			if err != nil {
				return err
			}
			if targetSt != nil && targetSt.IsDirectory {
				return vfs.NewError(vfs.CodeAlreadyExists, &target, "destination is a directory")
			}
			if targetSt != nil && !opts.Overwrite {
				return vfs.NewError(vfs.CodeAlreadyExists, &target, "destination file already exists")
			}
		} else if !opts.Overwrite {
			return vfs.NewError(vfs.CodeAlreadyExists, &dst, "destination file already exists")
		}
	} else {
		parentSt, err := f.Stat(ctx, dst.Parent())
		if err != nil {
			return err
		}
		if parentSt == nil {
			return vfs.NewError(vfs.CodeNotFound, pathPtr(dst.Parent()), "destination parent does not exist")
		}
	}

	r, err := f.OpenRead(ctx, src, vfs.ReadOptions{})
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := f.OpenWrite(ctx, target, vfs.WriteOptions{Mode: vfs.WriteModeOverwrite})
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return vfs.WrapError(vfs.CodeIOError, &target, err)
	}
	if err := w.Close(); err != nil {
		return vfs.WrapError(vfs.CodeIOError, &target, err)
	}
	return nil
}

func (f *FileSystem) copyDirectoryAcross(ctx *vfs.Context, src, dst vfs.Path, opts vfs.CopyOptions) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	dstSt, err := f.Stat(ctx, dst)
	if err != nil {
		return err
	}
	if dstSt == nil {
		if err := f.CreateDirectory(ctx, dst, vfs.CreateDirectoryOptions{}); err != nil {
			return err
		}
	} else if !dstSt.IsDirectory {
		return vfs.NewError(vfs.CodeAlreadyExists, &dst, "destination is a file")
	}

	for child, err := range f.listDirect(ctx, src) {
		if err != nil {
			return err
		}
		childDst := dst.Join(child.Path.Filename())
		if child.IsDirectory {
			if err := f.copyDirectoryAcross(ctx, child.Path, childDst, opts); err != nil {
				return err
			}
			continue
		}
		if err := f.copyFileAcross(ctx, child.Path, childDst, opts); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileSystem) Move(ctx *vfs.Context, src, dst vfs.Path, opts vfs.MoveOptions) error {
	if err := f.Copy(ctx, src, dst, vfs.CopyOptions{Overwrite: opts.Overwrite, Recursive: opts.Recursive}); err != nil {
		return err
	}
	return f.Delete(ctx, src, vfs.DeleteOptions{Recursive: true})
}

// Dispose is a no-op: union items are shared references owned by the
// blueprint engine.
func (f *FileSystem) Dispose() error {
	return nil
}

func pathPtr(p vfs.Path) *vfs.Path {
	return &p
}
