// Package common provides shared utilities for the tdesoracle commands.
//
// This package contains helpers used by the server, client and demo
// binaries:
//
//   - YAML configuration loading with defaults
//   - slog logger construction
//   - secret payload loading
package common

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a text or JSON slog logger writing to stderr.
func NewLogger(level string, json bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// LoadSecret returns the reveal payload. An inline secret wins over
// secretFile. Trailing line endings of the file are dropped.
func LoadSecret(inline, secretFile string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if secretFile == "" {
		return nil, fmt.Errorf("either secret or secret_file is required")
	}
	b, err := os.ReadFile(secretFile)
	if err != nil {
		return nil, fmt.Errorf("read secret: %w", err)
	}
	return bytes.TrimRight(b, "\r\n"), nil
}
