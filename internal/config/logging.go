package config

import (
	"fmt"
	"io"
	"log/slog"
)

// NewLogger returns a text slog.Logger writing to w at the named level
// ("debug", "info", "warn" or "error", case-insensitive).
func NewLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("config: log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
