package memory

import (
	"testing"

	"github.com/zhangzqs/govfs/pkg/vfs"
	"github.com/zhangzqs/govfs/pkg/vfs/vfstest"
)

func TestFileSystem(t *testing.T) {
	vfstest.TestFileSystem(t, func(t *testing.T) vfs.FileSystem {
		return vfs.Wrap(NewFileSystem())
	})
}
