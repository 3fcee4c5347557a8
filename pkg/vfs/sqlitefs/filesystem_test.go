package sqlitefs

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/vfs"
	"github.com/zhangzqs/govfs/pkg/vfs/vfstest"
)

func TestFileSystem(t *testing.T) {
	vfstest.TestFileSystem(t, func(t *testing.T) vfs.FileSystem {
		dbPath := filepath.Join(t.TempDir(), "vfs.db")

		fs, err := CreateFileSystemFromOptions(map[string]any{"path": dbPath})
		if err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}

		t.Cleanup(func() {
			if err := fs.Dispose(); err != nil {
				t.Errorf("%+v", errors.WithStack(err))
			}
		})
		return fs
	})
}
