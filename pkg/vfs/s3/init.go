package s3

import (
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

const Type vfs.Type = "s3"

// BlueprintType is the component type name used in blueprint
// configurations for the S3-compatible object-store backend, a domain
// store beyond the three named in the base specification.
const BlueprintType = "backend.s3"

func init() {
	vfs.Register(Type, CreateFileSystemFromOptions)
	blueprint.RegisterProvider(BlueprintType, blueprint.FileSystemProvider(CreateFileSystemFromOptions))
}

type Options struct {
	Endpoint     string `mapstructure:"endpoint"`
	User         string `mapstructure:"user"`
	Secret       string `mapstructure:"secret"`
	Token        string `mapstructure:"token"`
	Secure       bool   `mapstructure:"secure"`
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	BucketLookup string `mapstructure:"bucketLookup"`
	Trace        bool   `mapstructure:"trace"`
}

func CreateFileSystemFromOptions(options any) (vfs.FileSystem, error) {
	opts := Options{}

	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' filesystem options", Type)
	}

	creds := credentials.NewStaticV4(opts.User, opts.Secret, opts.Token)

	minioOpts := &minio.Options{
		Creds:  creds,
		Secure: opts.Secure,
		Region: opts.Region,
	}

	switch opts.BucketLookup {
	case "dns":
		minioOpts.BucketLookup = minio.BucketLookupDNS
	case "path", "":
		minioOpts.BucketLookup = minio.BucketLookupPath
	default:
		return nil, errors.Errorf("unknown bucket lookup value '%s', expected 'dns' or 'path'", opts.BucketLookup)
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if opts.Trace {
		client.TraceOn(os.Stdout)
	}

	return vfs.Wrap(NewFileSystem(client, opts.Bucket)), nil
}
