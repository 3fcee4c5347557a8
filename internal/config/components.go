package config

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/zhangzqs/govfs/pkg/blueprint"
	"github.com/zhangzqs/govfs/pkg/vfs/local"
	"github.com/zhangzqs/govfs/pkg/vfs/memory"
)

// Component is one blueprint descriptor as it appears in the YAML
// configuration. Values are environment-interpolated on load.
type Component struct {
	Name   InterpolatedString `yaml:"name"`
	Type   InterpolatedString `yaml:"type"`
	Config *InterpolatedMap   `yaml:"config"`
}

// Descriptor converts the parsed component into the blueprint engine's
// input form.
func (c Component) Descriptor() blueprint.Descriptor {
	var config any
	if c.Config != nil {
		config = c.Config.Data
	}
	return blueprint.Descriptor{
		Name:   string(c.Name),
		Type:   string(c.Type),
		Config: config,
	}
}

// NewDefaultComponents wires a local backend under ./data, browsable
// over HTTP and writable over WebDAV.
func NewDefaultComponents() []Component {
	return []Component{
		{
			Name: "root",
			Type: InterpolatedString(fmt.Sprintf("${GOVFS_BACKEND_TYPE:-%s}", local.BlueprintType)),
			Config: &InterpolatedMap{
				Data: map[string]any{
					"baseDir": "${GOVFS_BACKEND_DIR:-./data}",
				},
			},
		},
		{
			Name: "http",
			Type: "frontend.http",
			Config: &InterpolatedMap{
				Data: map[string]any{
					"backend": "root",
					"address": "${GOVFS_HTTP_ADDRESS:-127.0.0.1}",
					"port":    "${GOVFS_HTTP_PORT:-8080}",
				},
			},
		},
		{
			Name: "webdav",
			Type: "frontend.webdav",
			Config: &InterpolatedMap{
				Data: map[string]any{
					"backend": "root",
					"address": "${GOVFS_WEBDAV_ADDRESS:-127.0.0.1}",
					"port":    "${GOVFS_WEBDAV_PORT:-8081}",
				},
			},
		},
	}
}

func NewComponentsConfigCommentMap() yaml.CommentMap {
	return yaml.CommentMap{
		"": []*yaml.Comment{yaml.HeadComment(
			" Component graph",
			" Components are built in declaration order; later components",
			fmt.Sprintf(" reference earlier ones by name (e.g. a '%s' origin)", memory.BlueprintType),
		)},
	}
}
