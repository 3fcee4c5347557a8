package config

import (
	"log/slog"

	"github.com/goccy/go-yaml"
)

type Logger struct {
	Level InterpolatedInt `yaml:"level"`
}

// SlogLevel converts the configured level into the slog form used to
// build the process logger.
func (l Logger) SlogLevel() slog.Level {
	return slog.Level(l.Level)
}

func NewDefaultLoggerConfig() Logger {
	return Logger{
		Level: InterpolatedInt(slog.LevelInfo),
	}
}

func NewLoggerConfigCommentMap() yaml.CommentMap {
	return yaml.CommentMap{
		"":       []*yaml.Comment{yaml.HeadComment(" Logger configuration")},
		".level": []*yaml.Comment{yaml.HeadComment(" Log level, slog scale (debug: -4, info: 0, warn: 4, error: 8)", " Interpolates: level: ${GOVFS_LOG_LEVEL:-0}")},
	}
}
