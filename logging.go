package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"
)

func newLogger(cfg LogSettings, out io.Writer) (hclog.Logger, error) {
	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	var json bool
	switch strings.ToLower(cfg.Format) {
	case "", "text":
	case "json":
		json = true
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       "stokercloud",
		Level:      level,
		Output:     out,
		JSONFormat: json,
	}), nil
}
