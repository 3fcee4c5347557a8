package metacache

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

const Type vfs.Type = "metacache"

// BlueprintType is the component type name used in blueprint
// configurations, per the backend.metadata_cache schema.
const BlueprintType = "backend.metadata_cache"

func init() {
	vfs.Register(Type, CreateFileSystemFromOptions)
	blueprint.RegisterProvider(BlueprintType, blueprint.FileSystemProvider(CreateFileSystemFromOptions))
}

type Options struct {
	OriginBackend           string        `mapstructure:"originBackend"`
	CacheBackend            string        `mapstructure:"cacheBackend"`
	CacheDir                string        `mapstructure:"cacheDir"`
	MaxCacheAge             time.Duration `mapstructure:"maxCacheAge"`
	LargeDirectoryThreshold int           `mapstructure:"largeDirectoryThreshold"`
	MaxCacheSize            int           `mapstructure:"maxCacheSize"`
	CleanupInterval         time.Duration `mapstructure:"cleanupInterval"`
	CleanupBatchSize        int           `mapstructure:"cleanupBatchSize"`
}

func CreateFileSystemFromOptions(options any) (vfs.FileSystem, error) {
	opts := Options{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
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

	return NewFileSystem(Config{
		Origin:                  origin,
		CacheFS:                 cacheFS,
		CacheDir:                cacheDir,
		MaxCacheAge:             opts.MaxCacheAge,
		LargeDirectoryThreshold: opts.LargeDirectoryThreshold,
		MaxCacheSize:            opts.MaxCacheSize,
		CleanupInterval:         opts.CleanupInterval,
		CleanupBatchSize:        opts.CleanupBatchSize,
	}), nil
}
