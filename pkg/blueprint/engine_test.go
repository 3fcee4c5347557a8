package blueprint

import (
	"testing"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/zhangzqs/govfs/pkg/vfs"
)

type fakeComponent struct {
	name     string
	inner    vfs.FileSystem
	disposed *[]string
}

func (c *fakeComponent) Dispose() error {
	*c.disposed = append(*c.disposed, c.name)
	return nil
}

type fakeOptions struct {
	Name    string `mapstructure:"name"`
	Backend string `mapstructure:"backend"`
}

func registerFakeProvider(t *testing.T, disposed *[]string) {
	t.Helper()

	RegisterProvider("test.fake", func(config any) (Component, error) {
		opts := fakeOptions{}
		if err := mapstructure.Decode(config, &opts); err != nil {
			return nil, errors.WithStack(err)
		}

		c := &fakeComponent{name: opts.Name, disposed: disposed}

		if opts.Backend != "" {
			inner, err := CurrentFileSystem(opts.Backend)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			c.inner = inner
		}

		return c, nil
	})
}

func TestEngineRejectsDuplicateNames(t *testing.T) {
	engine := NewEngine()

	if err := engine.Load(Descriptor{Name: "a", Type: "test.fake"}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if err := engine.Load(Descriptor{Name: "a", Type: "test.fake"}); err == nil {
		t.Errorf("loading a duplicate component name should fail")
	}
}

func TestEngineFailsOnUnknownProvider(t *testing.T) {
	engine := NewEngine()

	if err := engine.Load(Descriptor{Name: "a", Type: "test.unregistered"}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if err := engine.Build(); err == nil {
		t.Errorf("building a component with no provider should fail")
	}
}

// nullFS satisfies vfs.FileSystem without implementing any operation;
// it stands in for a real backend in wiring tests.
type nullFS struct {
	vfs.FileSystem
}

func (nullFS) Dispose() error { return nil }

func TestEngineRecordsDependencyEdges(t *testing.T) {
	var disposed []string
	registerFakeProvider(t, &disposed)

	RegisterProvider("test.nullfs", func(config any) (Component, error) {
		return nullFS{}, nil
	})

	engine := NewEngine()

	descriptors := []Descriptor{
		{Name: "leaf", Type: "test.nullfs"},
		{Name: "wrapper", Type: "test.fake", Config: map[string]any{"name": "wrapper", "backend": "leaf"}},
	}
	for _, d := range descriptors {
		if err := engine.Load(d); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	if err := engine.Build(); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	edges := engine.Edges()
	if len(edges) != 1 {
		t.Fatalf("len(edges): expected 1, got %d (%v)", len(edges), edges)
	}
	if e, g := "wrapper", edges[0].Dependent; e != g {
		t.Errorf("edges[0].Dependent: expected '%s', got '%s'", e, g)
	}
	if e, g := "leaf", edges[0].Dependency; e != g {
		t.Errorf("edges[0].Dependency: expected '%s', got '%s'", e, g)
	}
}

func TestEngineFailsOnMissingDependency(t *testing.T) {
	var disposed []string
	registerFakeProvider(t, &disposed)

	engine := NewEngine()

	d := Descriptor{Name: "wrapper", Type: "test.fake", Config: map[string]any{"name": "wrapper", "backend": "nope"}}
	if err := engine.Load(d); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if err := engine.Build(); err == nil {
		t.Errorf("building with a missing dependency should fail at wire time")
	}
}

func TestEngineBuildsAndDisposesInOrder(t *testing.T) {
	var disposed []string
	registerFakeProvider(t, &disposed)

	engine := NewEngine()

	for _, name := range []string{"first", "second", "third"} {
		d := Descriptor{Name: name, Type: "test.fake", Config: map[string]any{"name": name}}
		if err := engine.Load(d); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	if err := engine.Build(); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	for _, name := range []string{"first", "second", "third"} {
		if _, err := engine.Component(name); err != nil {
			t.Errorf("component '%s' should be built: %+v", name, err)
		}
	}

	if err := engine.Dispose(); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	expected := []string{"third", "second", "first"}
	if len(disposed) != len(expected) {
		t.Fatalf("disposed: expected %v, got %v", expected, disposed)
	}
	for i, name := range expected {
		if disposed[i] != name {
			t.Errorf("disposed[%d]: expected '%s', got '%s'", i, name, disposed[i])
		}
	}
}

func TestCurrentComponentOutsideBuildFails(t *testing.T) {
	if _, err := CurrentComponent("anything"); err == nil {
		t.Errorf("CurrentComponent outside of an active build should fail")
	}
}
