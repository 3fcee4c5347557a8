package local

import (
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

const Type vfs.Type = "local"

// BlueprintType is the component type name used in blueprint
// configurations, per the backend.local {baseDir} schema.
const BlueprintType = "backend.local"

func init() {
	vfs.Register(Type, CreateFileSystemFromOptions)
	blueprint.RegisterProvider(BlueprintType, blueprint.FileSystemProvider(CreateFileSystemFromOptions))
}

type Options struct {
	Dir string `mapstructure:"baseDir"`
}

func CreateFileSystemFromOptions(options any) (vfs.FileSystem, error) {
	opts := Options{}

	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' filesystem options", Type)
	}

	if opts.Dir == "" {
		return nil, errors.Errorf("'%s' filesystem requires a non-empty baseDir", Type)
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create root directory '%s'", opts.Dir)
	}

	return vfs.Wrap(NewFileSystem(opts.Dir)), nil
}
