package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// newHandler 根据配置构建 slog.Handler 与可动态调整的级别变量（内部使用）
func newHandler(config *Config) (slog.Handler, *slog.LevelVar, error) {
	var out io.Writer
	switch config.Output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log output %s: %w", config.Output, err)
		}
		out = f
	}

	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, nil, err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return handler, levelVar, nil
}
