// Package all registers every built-in backend by importing it for its
// side effects.
package all

import (
	_ "github.com/zhangzqs/govfs/pkg/vfs/alias"
	_ "github.com/zhangzqs/govfs/pkg/vfs/blockcache"
	_ "github.com/zhangzqs/govfs/pkg/vfs/capped"
	_ "github.com/zhangzqs/govfs/pkg/vfs/local"
	_ "github.com/zhangzqs/govfs/pkg/vfs/memory"
	_ "github.com/zhangzqs/govfs/pkg/vfs/metacache"
	_ "github.com/zhangzqs/govfs/pkg/vfs/s3"
	_ "github.com/zhangzqs/govfs/pkg/vfs/sqlitefs"
	_ "github.com/zhangzqs/govfs/pkg/vfs/union"
	_ "github.com/zhangzqs/govfs/pkg/vfs/webdavfs"
)
