package union

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

const Type vfs.Type = "union"

// BlueprintType is the component type name used in blueprint
// configurations, per the backend.union {items} schema.
const BlueprintType = "backend.union"

func init() {
	vfs.Register(Type, CreateFileSystemFromOptions)
	blueprint.RegisterProvider(BlueprintType, blueprint.FileSystemProvider(CreateFileSystemFromOptions))
}

type ItemOptions struct {
	Backend   string `mapstructure:"backend"`
	MountPath string `mapstructure:"mountPath"`
	ReadOnly  bool   `mapstructure:"readOnly"`
	Priority  int    `mapstructure:"priority"`
}

type Options struct {
	Items []ItemOptions `mapstructure:"items"`
}

// CreateFileSystemFromOptions resolves each item's backend through the
// blueprint build context currently in scope.
func CreateFileSystemFromOptions(options any) (vfs.FileSystem, error) {
	opts := Options{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not create '%s' filesystem options decoder", Type)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' filesystem options", Type)
	}

	if len(opts.Items) == 0 {
		return nil, errors.Errorf("'%s' filesystem requires at least one item", Type)
	}

	items := make([]Item, 0, len(opts.Items))
	for _, itemOpts := range opts.Items {
		inner, err := blueprint.CurrentFileSystem(itemOpts.Backend)
		if err != nil {
			return nil, errors.Wrapf(err, "could not resolve backend component '%s'", itemOpts.Backend)
		}

		mountPath, err := vfs.ParsePath(itemOpts.MountPath)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid mountPath '%s'", itemOpts.MountPath)
		}

		items = append(items, Item{
			FS:        inner,
			MountPath: mountPath,
			ReadOnly:  itemOpts.ReadOnly,
			Priority:  itemOpts.Priority,
		})
	}

	return NewFileSystem(items), nil
}
