package memory

import (
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

const Type vfs.Type = "memory"

// BlueprintType is the component type name used in blueprint
// configurations, per the backend.memory {} schema.
const BlueprintType = "backend.memory"

func init() {
	vfs.Register(Type, CreateFileSystemFromOptions)
	blueprint.RegisterProvider(BlueprintType, blueprint.FileSystemProvider(CreateFileSystemFromOptions))
}

// Options is empty: the memory backend takes no configuration.
type Options struct{}

func CreateFileSystemFromOptions(options any) (vfs.FileSystem, error) {
	return vfs.Wrap(NewFileSystem()), nil
}
