package blockcache

import (
	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

const Type vfs.Type = "blockcache"

// BlueprintType is the component type name used in blueprint
// configurations, per the backend.block_cache schema.
const BlueprintType = "backend.block_cache"

func init() {
	vfs.Register(Type, CreateFileSystemFromOptions)
	blueprint.RegisterProvider(BlueprintType, blueprint.FileSystemProvider(CreateFileSystemFromOptions))
}

type Options struct {
	OriginBackend   string `mapstructure:"originBackend"`
	CacheBackend    string `mapstructure:"cacheBackend"`
	CacheDir        string `mapstructure:"cacheDir"`
	// BlockSize accepts either a plain byte count or a human-readable
	// size such as "4MiB".
	BlockSize       string `mapstructure:"blockSize"`
	ReadAheadBlocks int    `mapstructure:"readAheadBlocks"`
	EnableReadAhead bool   `mapstructure:"enableReadAhead"`
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

	origin, err := blueprint.CurrentFileSystem(opts.OriginBackend)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve origin backend component '%s'", opts.OriginBackend)
	}

	cacheFS, err := blueprint.CurrentFileSystem(opts.CacheBackend)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve cache backend component '%s'", opts.CacheBackend)
	}

	cacheDir, err := vfs.ParsePath(opts.CacheDir)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cacheDir '%s'", opts.CacheDir)
	}

	var blockSize int64
	if opts.BlockSize != "" {
		parsed, err := humanize.ParseBytes(opts.BlockSize)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid blockSize '%s'", opts.BlockSize)
		}
		blockSize = int64(parsed)
	}

	return NewFileSystem(Config{
		Origin:          origin,
		CacheFS:         cacheFS,
		CacheDir:        cacheDir,
		BlockSize:       blockSize,
		ReadAheadBlocks: opts.ReadAheadBlocks,
		EnableReadAhead: opts.EnableReadAhead,
	}), nil
}
