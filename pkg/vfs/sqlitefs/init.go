package sqlitefs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/vfs"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitemigration"
	"zombiezen.com/go/sqlite/sqlitex"
)

const Type vfs.Type = "sqlite"

// BlueprintType is the component type name used in blueprint
// configurations, per the backend.sqlite {path} schema.
const BlueprintType = "backend.sqlite"

func init() {
	vfs.Register(Type, CreateFileSystemFromOptions)
	blueprint.RegisterProvider(BlueprintType, blueprint.FileSystemProvider(CreateFileSystemFromOptions))
}

type Options struct {
	Path string `mapstructure:"path"`
}

func CreateFileSystemFromOptions(options any) (vfs.FileSystem, error) {
	opts := Options{}

	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' filesystem options", Type)
	}

	schema := sqlitemigration.Schema{
		Migrations: []string{
			`CREATE TABLE IF NOT EXISTS files (
				path TEXT PRIMARY KEY,
				is_dir INTEGER NOT NULL,
				mode INTEGER NOT NULL,
				size INTEGER NOT NULL,
				mtime INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_parent_path ON files(path);`,
			`CREATE TABLE IF NOT EXISTS file_contents (
				path TEXT PRIMARY KEY REFERENCES files(path) ON DELETE CASCADE,
				content BLOB
			);`,
		},
		RepeatableMigration: fmt.Sprintf(`INSERT OR IGNORE INTO files (path, is_dir, mode, size, mtime) VALUES ('/', 1, 493, 0, %d)`, time.Now().Unix()),
	}

	pool := sqlitemigration.NewPool(opts.Path, schema, sqlitemigration.Options{
		Flags: sqlite.OpenCreate | sqlite.OpenReadWrite | sqlite.OpenWAL,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecScript(conn, `PRAGMA foreign_keys = ON; PRAGMA auto_vacuum=FULL`)
		},
		OnError: func(e error) {
			slog.Error("sqlite filesystem pool error", slog.Any("error", e))
		},
	})

	return vfs.Wrap(NewFileSystem(pool)), nil
}
