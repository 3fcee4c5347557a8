package vfs

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Type names a backend or decorator kind known to the registry, e.g.
// "memory", "local", "webdav", "s3", "sqlite", "alias", "union",
// "metacache", "blockcache".
type Type string

// Factory builds a FileSystem from its blueprint options. options is the
// raw decoded YAML/mapstructure payload for the component.
type Factory func(options any) (FileSystem, error)

var (
	registryMu sync.RWMutex
	registry   = map[Type]Factory{}
)

// Register associates a Type with the Factory used to build it. Backend
// packages call this from an init() func, mirroring how each concrete
// backend in this module registers itself on import.
func Register(t Type, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = factory
}

// New builds a FileSystem of the given Type from options. The caller is
// responsible for importing the package that registers t for its side
// effect.
func New(t Type, options any) (FileSystem, error) {
	registryMu.RLock()
	factory, ok := registry[t]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown filesystem type '%s'", t)
	}
	return factory(options)
}

// Registered returns the sorted list of currently registered Types.
func Registered() []Type {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
