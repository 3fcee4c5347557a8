package config

import (
	"os"
	"strconv"

	"github.com/drone/envsubst"
	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// Every configuration value supports the ${VAR} / ${VAR:-default}
// grammar: scalars are substituted as they are decoded, and component
// config mappings are substituted recursively before their payload is
// handed to a blueprint provider.

// getEnv is swapped out by tests.
var getEnv = os.Getenv

// evalScalar decodes a YAML scalar as a string and substitutes
// environment references in it.
func evalScalar(unmarshal func(any) error) (string, error) {
	var raw string

	if err := unmarshal(&raw); err != nil {
		return "", errors.WithStack(err)
	}

	value, err := envsubst.Eval(raw, getEnv)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return value, nil
}

type InterpolatedString string

// UnmarshalYAML implements yaml.InterfaceUnmarshaler.
func (is *InterpolatedString) UnmarshalYAML(unmarshal func(any) error) error {
	value, err := evalScalar(unmarshal)
	if err != nil {
		return err
	}

	*is = InterpolatedString(value)

	return nil
}

var _ yaml.InterfaceUnmarshaler = new(InterpolatedString)

type InterpolatedInt int

// UnmarshalYAML implements yaml.InterfaceUnmarshaler.
func (ii *InterpolatedInt) UnmarshalYAML(unmarshal func(any) error) error {
	value, err := evalScalar(unmarshal)
	if err != nil {
		return err
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return errors.WithStack(err)
	}

	*ii = InterpolatedInt(parsed)

	return nil
}

var _ yaml.InterfaceUnmarshaler = new(InterpolatedInt)

// InterpolatedMap is a free-form YAML mapping (a component's config
// payload) with environment references substituted on every nested
// string, including inside sequences.
type InterpolatedMap struct {
	Data map[string]any
}

// UnmarshalYAML implements yaml.InterfaceUnmarshaler.
func (im *InterpolatedMap) UnmarshalYAML(unmarshal func(any) error) error {
	var data map[string]any

	if err := unmarshal(&data); err != nil {
		return errors.WithStack(err)
	}

	interpolated, err := interpolateTree(data)
	if err != nil {
		return errors.WithStack(err)
	}

	im.Data = interpolated.(map[string]any)

	return nil
}

// MarshalYAML implements yaml.InterfaceMarshaler.
func (im *InterpolatedMap) MarshalYAML() (any, error) {
	return im.Data, nil
}

var _ yaml.InterfaceUnmarshaler = new(InterpolatedMap)
var _ yaml.InterfaceMarshaler = new(InterpolatedMap)

// interpolateTree walks a decoded YAML value, substituting environment
// references in every string it reaches.
func interpolateTree(node any) (any, error) {
	switch typed := node.(type) {
	case string:
		value, err := envsubst.Eval(typed, getEnv)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return value, nil

	case map[string]any:
		for key, child := range typed {
			value, err := interpolateTree(child)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			typed[key] = value
		}
		return typed, nil

	case []any:
		for idx, child := range typed {
			value, err := interpolateTree(child)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			typed[idx] = value
		}
		return typed, nil
	}

	return node, nil
}
