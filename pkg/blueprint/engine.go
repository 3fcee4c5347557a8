// Package blueprint implements the declarative component wiring layer:
// a flat list of named component descriptors is loaded in order, each
// resolved by a provider keyed on the descriptor's type, with
// cross-component references recorded as dependency edges.
package blueprint

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

// Descriptor is one entry of a blueprint configuration.
type Descriptor struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Type   string `mapstructure:"type" yaml:"type"`
	Config any    `mapstructure:"config" yaml:"config"`
}

// Component is anything a provider can build: a vfs.FileSystem, a
// front-end server, or any other named collaborator. Components that
// hold resources implement Dispose() error or io.Closer; the engine
// releases them in reverse declaration order.
type Component any

// Provider builds the component described by config. Providers that
// need to reference sibling components call blueprint.CurrentComponent
// (or CurrentFileSystem) from within this call, which is only valid
// while the engine is actively building.
type Provider func(config any) (Component, error)

// FileSystemProvider adapts a vfs.FileSystem factory to the Provider
// signature. Backend packages use it when registering themselves.
func FileSystemProvider(build func(config any) (vfs.FileSystem, error)) Provider {
	return func(config any) (Component, error) {
		return build(config)
	}
}

var (
	providersMu sync.RWMutex
	providers   = map[string]Provider{}
)

// RegisterProvider associates a blueprint component type with the
// Provider used to build it.
func RegisterProvider(typ string, provider Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[typ] = provider
}

func providerFor(typ string) (Provider, bool) {
	providersMu.RLock()
	defer providersMu.RUnlock()
	p, ok := providers[typ]
	return p, ok
}

// Edge records that dependent resolved dependency via Component.
type Edge struct {
	Dependent  string
	Dependency string
}

// Engine builds and owns the set of named components described by a
// blueprint configuration, in the order they were declared.
type Engine struct {
	order      []string
	components map[string]Component
	descriptor map[string]Descriptor
	edges      []Edge
}

// NewEngine returns an empty engine. Call Load once per descriptor, in
// the order they should be wired, then Build.
func NewEngine() *Engine {
	return &Engine{
		components: map[string]Component{},
		descriptor: map[string]Descriptor{},
	}
}

// Load registers a descriptor under its name. Duplicate names fail
// immediately with alreadyLoaded semantics.
func (e *Engine) Load(d Descriptor) error {
	if _, exists := e.descriptor[d.Name]; exists {
		return errors.Errorf("component '%s' already loaded", d.Name)
	}
	e.descriptor[d.Name] = d
	e.order = append(e.order, d.Name)
	return nil
}

// Build instantiates every loaded component in declaration order. A
// component is only actually constructed the first time it is reached —
// either by declaration order here, or by an earlier component's
// Component(name) lookup, whichever comes first.
func (e *Engine) Build() error {
	bc := &BuildContext{engine: e}

	currentMu.Lock()
	current = bc
	currentMu.Unlock()
	defer func() {
		currentMu.Lock()
		current = nil
		currentMu.Unlock()
	}()

	for _, name := range e.order {
		if _, err := bc.Component(name); err != nil {
			return err
		}
	}
	return nil
}

// Component returns the named, already-built component.
func (e *Engine) Component(name string) (Component, error) {
	c, ok := e.components[name]
	if !ok {
		return nil, errors.Errorf("component '%s' not built", name)
	}
	return c, nil
}

// FileSystem returns the named, already-built component, asserting that
// it is a vfs.FileSystem.
func (e *Engine) FileSystem(name string) (vfs.FileSystem, error) {
	c, err := e.Component(name)
	if err != nil {
		return nil, err
	}
	fs, ok := c.(vfs.FileSystem)
	if !ok {
		return nil, errors.Errorf("component '%s' is not a filesystem", name)
	}
	return fs, nil
}

// Names returns the component names in declaration order.
func (e *Engine) Names() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Edges returns the recorded dependency edges discovered during Build.
func (e *Engine) Edges() []Edge {
	return e.edges
}

// disposable is satisfied by vfs.FileSystem and any component exposing
// the same release hook.
type disposable interface {
	Dispose() error
}

// Dispose releases every component in reverse declaration order. Components
// implementing Dispose() error or io.Closer are released; anything else
// is skipped.
func (e *Engine) Dispose() error {
	var firstErr error
	for i := len(e.order) - 1; i >= 0; i-- {
		c, ok := e.components[e.order[i]]
		if !ok {
			continue
		}

		var err error
		switch v := c.(type) {
		case disposable:
			err = v.Dispose()
		case io.Closer:
			err = v.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildContext is handed to providers indirectly (via CurrentComponent)
// during Engine.Build. Component resolves and, if necessary, lazily
// constructs a sibling by name, recording the dependency edge.
type BuildContext struct {
	engine   *Engine
	building []string
}

// Component resolves name, building it on first reference and recording
// the edge from whichever component is currently under construction (if
// any) to name. The engine performs no upfront topological validation:
// a missing or cyclic dependency fails here, at wire time.
func (bc *BuildContext) Component(name string) (Component, error) {
	// Every lookup from inside a provider records an edge, whether or
	// not the dependency is already built.
	if len(bc.building) > 0 {
		bc.engine.edges = append(bc.engine.edges, Edge{Dependent: bc.building[len(bc.building)-1], Dependency: name})
	}

	if c, ok := bc.engine.components[name]; ok {
		return c, nil
	}

	for _, b := range bc.building {
		if b == name {
			return nil, errors.Errorf("cyclic component dependency involving '%s'", name)
		}
	}

	d, ok := bc.engine.descriptor[name]
	if !ok {
		return nil, errors.Errorf("no component named '%s'", name)
	}

	provider, ok := providerFor(d.Type)
	if !ok {
		return nil, errors.Errorf("no provider for component type '%s'", d.Type)
	}

	bc.building = append(bc.building, name)
	c, err := provider(d.Config)
	bc.building = bc.building[:len(bc.building)-1]
	if err != nil {
		return nil, errors.Wrapf(err, "could not build component '%s' of type '%s'", name, d.Type)
	}

	bc.engine.components[name] = c
	return c, nil
}

var (
	currentMu sync.Mutex
	current   *BuildContext
)

// CurrentComponent resolves name against the BuildContext of the
// blueprint.Engine currently executing Build. It is only valid to call
// this from within a Provider; outside of a build it returns an error.
func CurrentComponent(name string) (Component, error) {
	currentMu.Lock()
	bc := current
	currentMu.Unlock()
	if bc == nil {
		return nil, errors.New("blueprint.CurrentComponent called outside of an active build")
	}
	return bc.Component(name)
}

// CurrentFileSystem is CurrentComponent with a vfs.FileSystem
// assertion, for providers whose dependency must be a backend.
func CurrentFileSystem(name string) (vfs.FileSystem, error) {
	c, err := CurrentComponent(name)
	if err != nil {
		return nil, err
	}
	fs, ok := c.(vfs.FileSystem)
	if !ok {
		return nil, errors.Errorf("component '%s' is not a filesystem", name)
	}
	return fs, nil
}
