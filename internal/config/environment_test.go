package config

import (
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// withEnv swaps the environment lookup for the duration of one test.
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()

	previous := getEnv
	getEnv = func(key string) string {
		return env[key]
	}
	t.Cleanup(func() {
		getEnv = previous
	})
}

func TestComponentInterpolation(t *testing.T) {
	withEnv(t, map[string]string{
		"GOVFS_TEST_TYPE": "backend.local",
		"GOVFS_TEST_DIR":  "/srv/files",
	})

	raw := `
name: root
type: ${GOVFS_TEST_TYPE:-backend.memory}
config:
  baseDir: ${GOVFS_TEST_DIR}
`

	component := Component{}
	if err := yaml.Unmarshal([]byte(raw), &component); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	descriptor := component.Descriptor()

	if e, g := "root", descriptor.Name; e != g {
		t.Errorf("descriptor.Name: expected '%s', got '%s'", e, g)
	}
	if e, g := "backend.local", descriptor.Type; e != g {
		t.Errorf("descriptor.Type: expected '%s', got '%s'", e, g)
	}

	payload, ok := descriptor.Config.(map[string]any)
	if !ok {
		t.Fatalf("descriptor.Config: expected a map, got %T", descriptor.Config)
	}
	if e, g := "/srv/files", payload["baseDir"]; e != g {
		t.Errorf("config baseDir: expected '%v', got '%v'", e, g)
	}
}

func TestComponentInterpolationDefaults(t *testing.T) {
	withEnv(t, nil)

	raw := `
name: root
type: ${GOVFS_TEST_TYPE:-backend.memory}
config:
  baseDir: ${GOVFS_TEST_DIR:-./data}
`

	component := Component{}
	if err := yaml.Unmarshal([]byte(raw), &component); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	descriptor := component.Descriptor()

	if e, g := "backend.memory", descriptor.Type; e != g {
		t.Errorf("descriptor.Type fallback: expected '%s', got '%s'", e, g)
	}
	if e, g := "./data", descriptor.Config.(map[string]any)["baseDir"]; e != g {
		t.Errorf("config baseDir fallback: expected '%v', got '%v'", e, g)
	}
}

func TestInterpolationReachesNestedSequences(t *testing.T) {
	withEnv(t, map[string]string{
		"GOVFS_TEST_CACHE": "cache-store",
	})

	// A union component's items list: references nested inside
	// sequences of mappings are substituted too.
	raw := `
name: root
type: backend.union
config:
  items:
    - backend: ${GOVFS_TEST_CACHE}
      mountPath: /
    - backend: plain
      mountPath: /b
`

	component := Component{}
	if err := yaml.Unmarshal([]byte(raw), &component); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	items, ok := component.Config.Data["items"].([]any)
	if !ok {
		t.Fatalf("items: expected a sequence, got %T", component.Config.Data["items"])
	}
	if e, g := 2, len(items); e != g {
		t.Fatalf("len(items): expected %d, got %d", e, g)
	}

	first, ok := items[0].(map[string]any)
	if !ok {
		t.Fatalf("items[0]: expected a mapping, got %T", items[0])
	}
	if e, g := "cache-store", first["backend"]; e != g {
		t.Errorf("items[0].backend: expected '%v', got '%v'", e, g)
	}
}

func TestLoggerLevelInterpolation(t *testing.T) {
	withEnv(t, map[string]string{
		"GOVFS_TEST_LOG_LEVEL": "-4",
	})

	logger := Logger{}
	if err := yaml.Unmarshal([]byte(`level: ${GOVFS_TEST_LOG_LEVEL:-0}`), &logger); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := InterpolatedInt(-4), logger.Level; e != g {
		t.Errorf("logger.Level: expected %d, got %d", e, g)
	}
}

func TestInterpolatedIntRejectsNonNumeric(t *testing.T) {
	withEnv(t, map[string]string{
		"GOVFS_TEST_LOG_LEVEL": "verbose",
	})

	logger := Logger{}
	if err := yaml.Unmarshal([]byte(`level: ${GOVFS_TEST_LOG_LEVEL}`), &logger); err == nil {
		t.Errorf("a non-numeric level should fail to decode")
	}
}
