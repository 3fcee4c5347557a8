package capped

import (
	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

const Type vfs.Type = "capped"

// BlueprintType is the component type name used in blueprint
// configurations, per the backend.capped {backend, maxSize} schema.
const BlueprintType = "backend.capped"

func init() {
	vfs.Register(Type, CreateFileSystemFromOptions)
	blueprint.RegisterProvider(BlueprintType, blueprint.FileSystemProvider(CreateFileSystemFromOptions))
}

type Options struct {
	Backend string `mapstructure:"backend"`
	// MaxSize accepts either a plain byte count or a human-readable
	// size such as "512MiB".
	MaxSize string `mapstructure:"maxSize"`
}

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

	inner, err := blueprint.CurrentFileSystem(opts.Backend)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve backend component '%s'", opts.Backend)
	}

	maxSize, err := humanize.ParseBytes(opts.MaxSize)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid maxSize '%s'", opts.MaxSize)
	}

	return NewFileSystem(inner, int64(maxSize), nil), nil
}
