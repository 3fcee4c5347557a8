package vfs

import (
	"io"
)

// Wrap decorates a Primitive backend with the generic recursive
// list/delete/createDirectory drivers and the copy/move cross-product,
// producing a fully capable FileSystem. Every concrete leaf backend
// (memory, local, webdavfs, s3, sqlitefs) is constructed by calling
// Wrap once over its own Primitive implementation.
func Wrap(p Primitive) FileSystem {
	return &wrapped{p: p}
}

type wrapped struct {
	p Primitive
}

func (w *wrapped) Stat(ctx *Context, p Path) (*FileStatus, error) {
	return w.p.Stat(ctx, p)
}

func (w *wrapped) Exists(ctx *Context, p Path) (bool, error) {
	st, err := w.p.Stat(ctx, p)
	if err != nil {
		return false, err
	}
	return st != nil, nil
}

func (w *wrapped) List(ctx *Context, p Path, opts ListOptions) Entries {
	if !opts.Recursive {
		return w.p.ListDirect(ctx, p)
	}
	return recursiveList(ctx, w.p, p)
}

// recursiveList performs a BFS over ListDirect, skipping any path it has
// already descended into (cycle safety), yielding every discovered
// status.
func recursiveList(ctx *Context, p Primitive, root Path) Entries {
	return func(yield func(FileStatus, error) bool) {
		queue := []Path{root}
		visited := map[string]bool{root.String(): true}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]

			if err := ctx.CheckCancelled(); err != nil {
				yield(FileStatus{}, err)
				return
			}

			for st, err := range p.ListDirect(ctx, cur) {
				if err != nil {
					yield(FileStatus{}, err)
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

func (w *wrapped) OpenRead(ctx *Context, p Path, opts ReadOptions) (io.ReadCloser, error) {
	st, err := w.p.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, NewError(CodeNotFound, pathPtr(p), "file does not exist")
	}
	if st.IsDirectory {
		return nil, NewError(CodeNotAFile, pathPtr(p), "cannot open a directory for reading")
	}
	if st.Size != nil {
		start, end := int64(0), *st.Size
		if opts.Start != nil {
			start = *opts.Start
		}
		if opts.End != nil {
			end = *opts.End
		}
		if start < 0 || end > *st.Size || start > end {
			return nil, NewError(CodeIOError, pathPtr(p), "byte range out of bounds")
		}
	}
	return w.p.OpenRead(ctx, p, opts)
}

func (w *wrapped) OpenWrite(ctx *Context, p Path, opts WriteOptions) (io.WriteCloser, error) {
	st, err := w.p.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if st != nil {
		if st.IsDirectory {
			return nil, NewError(CodeNotAFile, pathPtr(p), "cannot open a directory for writing")
		}
		if opts.Mode == WriteModeFailIfExists {
			return nil, NewError(CodeAlreadyExists, pathPtr(p), "file already exists")
		}
	} else {
		parentSt, err := w.p.Stat(ctx, p.Parent())
		if err != nil {
			return nil, err
		}
		if parentSt == nil {
			return nil, NewError(CodeNotFound, pathPtr(p.Parent()), "parent directory does not exist")
		}
		if !parentSt.IsDirectory {
			return nil, NewError(CodeNotADirectory, pathPtr(p.Parent()), "parent is not a directory")
		}
	}
	return w.p.OpenWrite(ctx, p, opts)
}

func (w *wrapped) WriteBytes(ctx *Context, p Path, data []byte, opts WriteOptions) error {
	sink, err := w.OpenWrite(ctx, p, opts)
	if err != nil {
		return err
	}
	if _, err := sink.Write(data); err != nil {
		sink.Close()
		return WrapError(CodeIOError, pathPtr(p), err)
	}
	if err := sink.Close(); err != nil {
		return WrapError(CodeIOError, pathPtr(p), err)
	}
	return nil
}

func (w *wrapped) ReadAsBytes(ctx *Context, p Path, opts ReadOptions) ([]byte, error) {
	r, err := w.OpenRead(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, WrapError(CodeIOError, pathPtr(p), err)
	}
	return data, nil
}

func (w *wrapped) CreateDirectory(ctx *Context, p Path, opts CreateDirectoryOptions) error {
	if !opts.CreateParents {
		return w.createDirectorySingle(ctx, p)
	}

	// Walk from root, creating each missing ancestor; an ancestor that is
	// already a directory is skipped. The target itself is created last
	// and, as without CreateParents, fails if it already exists.
	for depth := 1; depth < p.Depth(); depth++ {
		ancestor := Path{segments: p.Segments()[:depth]}
		if err := w.createDirectorySingle(ctx, ancestor); err != nil {
			if Is(err, CodeAlreadyExists) {
				st, statErr := w.p.Stat(ctx, ancestor)
				if statErr != nil {
					return statErr
				}
				if st != nil && st.IsDirectory {
					continue
				}
			}
			return err
		}
	}
	return w.createDirectorySingle(ctx, p)
}

func (w *wrapped) createDirectorySingle(ctx *Context, p Path) error {
	st, err := w.p.Stat(ctx, p)
	if err != nil {
		return err
	}
	if st != nil {
		return NewError(CodeAlreadyExists, pathPtr(p), "path already exists")
	}
	return w.p.CreateDirectoryDirect(ctx, p)
}

func (w *wrapped) Delete(ctx *Context, p Path, opts DeleteOptions) error {
	st, err := w.p.Stat(ctx, p)
	if err != nil {
		return err
	}
	if st == nil {
		return NewError(CodeNotFound, pathPtr(p), "nothing to delete")
	}

	if !st.IsDirectory {
		return w.p.DeleteDirect(ctx, p)
	}

	if !opts.Recursive {
		empty, err := w.directoryIsEmpty(ctx, p)
		if err != nil {
			return err
		}
		if !empty {
			return NewError(CodeNotEmptyDirectory, pathPtr(p), "directory is not empty")
		}
		return w.p.DeleteDirect(ctx, p)
	}

	return w.deleteRecursive(ctx, p)
}

func (w *wrapped) directoryIsEmpty(ctx *Context, p Path) (bool, error) {
	for _, err := range w.p.ListDirect(ctx, p) {
		if err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// deleteRecursive performs a post-order traversal: delete files, recurse
// into subdirectories, then delete the now-empty directory.
func (w *wrapped) deleteRecursive(ctx *Context, dir Path) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	var children []FileStatus
	for st, err := range w.p.ListDirect(ctx, dir) {
		if err != nil {
			return err
		}
		children = append(children, st)
	}

	for _, child := range children {
		if child.IsDirectory {
			if err := w.deleteRecursive(ctx, child.Path); err != nil {
				return err
			}
		} else {
			if err := w.p.DeleteDirect(ctx, child.Path); err != nil {
				return err
			}
		}
	}

	return w.p.DeleteDirect(ctx, dir)
}

// Copy implements the generic cross-product driver of spec.md §4.1.
func (w *wrapped) Copy(ctx *Context, src, dst Path, opts CopyOptions) error {
	srcSt, err := w.p.Stat(ctx, src)
	if err != nil {
		return err
	}
	if srcSt == nil {
		return NewError(CodeNotFound, pathPtr(src), "source does not exist")
	}

	dstSt, err := w.p.Stat(ctx, dst)
	if err != nil {
		return err
	}

	if !srcSt.IsDirectory {
		return w.copyFile(ctx, src, dst, dstSt, opts)
	}

	if !opts.Recursive {
		return NewError(CodeRecursiveNotSpecified, pathPtr(src), "directory copy requires recursive")
	}
	if dstSt != nil && !dstSt.IsDirectory {
		return NewError(CodeAlreadyExists, pathPtr(dst), "destination is a file")
	}
	return w.copyDirectory(ctx, src, dst, opts)
}

func (w *wrapped) copyFile(ctx *Context, src, dst Path, dstSt *FileStatus, opts CopyOptions) error {
	if dstSt == nil {
		parentSt, err := w.p.Stat(ctx, dst.Parent())
		if err != nil {
			return err
		}
		if parentSt == nil {
			return NewError(CodeNotFound, pathPtr(dst.Parent()), "destination parent does not exist")
		}
		return w.p.CopyFile(ctx, src, dst, false)
	}

	if dstSt.IsDirectory {
		target := dst.Join(src.Filename())
		targetSt, err := w.p.Stat(ctx, target)
		if err != nil {
			return err
		}
		if targetSt != nil && targetSt.IsDirectory {
			return NewError(CodeAlreadyExists, pathPtr(target), "destination is a directory")
		}
		if targetSt != nil && !opts.Overwrite {
			return NewError(CodeAlreadyExists, pathPtr(target), "destination file already exists")
		}
		return w.p.CopyFile(ctx, src, target, opts.Overwrite)
	}

	if !opts.Overwrite {
		return NewError(CodeAlreadyExists, pathPtr(dst), "destination file already exists")
	}
	return w.p.CopyFile(ctx, src, dst, true)
}

func (w *wrapped) copyDirectory(ctx *Context, src, dst Path, opts CopyOptions) error {
	if err := ctx.CheckCancelled(); err != nil {
		return err
	}

	dstSt, err := w.p.Stat(ctx, dst)
	if err != nil {
		return err
	}
	if dstSt == nil {
		if err := w.p.CreateDirectoryDirect(ctx, dst); err != nil {
			return err
		}
	}

	for child, err := range w.p.ListDirect(ctx, src) {
		if err != nil {
			return err
		}
		childDst := dst.Join(child.Path.Filename())
		if child.IsDirectory {
			if err := w.copyDirectory(ctx, child.Path, childDst, opts); err != nil {
				return err
			}
			continue
		}
		childDstSt, err := w.p.Stat(ctx, childDst)
		if err != nil {
			return err
		}
		if err := w.copyFile(ctx, child.Path, childDst, childDstSt, opts); err != nil {
			return err
		}
	}

	return nil
}

// Move implements copy-then-delete, the default per spec.md §4.1.
func (w *wrapped) Move(ctx *Context, src, dst Path, opts MoveOptions) error {
	if err := w.Copy(ctx, src, dst, CopyOptions{Overwrite: opts.Overwrite, Recursive: opts.Recursive}); err != nil {
		return err
	}

	srcSt, err := w.p.Stat(ctx, src)
	if err != nil {
		return err
	}
	if srcSt == nil {
		return nil
	}
	return w.Delete(ctx, src, DeleteOptions{Recursive: true})
}

func (w *wrapped) Dispose() error {
	return w.p.Dispose()
}
