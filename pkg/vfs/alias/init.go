package alias

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

const Type vfs.Type = "alias"

// BlueprintType is the component type name used in blueprint
// configurations, per the backend.alias {backend, subDirectory} schema.
const BlueprintType = "backend.alias"

func init() {
	vfs.Register(Type, CreateFileSystemFromOptions)
	blueprint.RegisterProvider(BlueprintType, blueprint.FileSystemProvider(CreateFileSystemFromOptions))
}

type Options struct {
	Backend      string `mapstructure:"backend"`
	SubDirectory string `mapstructure:"subDirectory"`
}

// CreateFileSystemFromOptions resolves Options.Backend through the
// blueprint build context currently in scope. Components configured as
// `backend.alias` must be built by the blueprint engine (which stashes
// the active *blueprint.BuildContext before invoking factories) rather
// than via vfs.New directly from a standalone options struct.
func CreateFileSystemFromOptions(options any) (vfs.FileSystem, error) {
	opts := Options{}
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' filesystem options", Type)
	}

	inner, err := blueprint.CurrentFileSystem(opts.Backend)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve backend component '%s'", opts.Backend)
	}

	subDir, err := vfs.ParsePath(opts.SubDirectory)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid subDirectory '%s'", opts.SubDirectory)
	}

	return NewFileSystem(inner, subDir), nil
}
