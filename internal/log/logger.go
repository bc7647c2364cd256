// Copyright 2026 Clier Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides the daemon's structured logging setup: a thin
// wrapper over log/slog with environment-driven configuration and a small
// set of field-key constants so every package logs the same shape.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format is the log output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// LevelTrace is more verbose than slog.LevelDebug, used for very chatty
// detail such as per-line stdout/stderr capture.
const LevelTrace = slog.Level(-8)

// Standard field keys, kept as constants so call sites don't typo them.
const (
	ProcessKey   = "process"
	EventKey     = "event"
	WorkflowKey  = "workflow"
	StepKey      = "step"
	RunIDKey     = "run_id"
	DurationKey  = "duration_ms"
	ComponentKey = "component"
)

// Config holds the logging configuration.
type Config struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string
	// Format selects json or text output. Default: json.
	Format Format
	// Output is the destination writer. Default: os.Stderr.
	Output io.Writer
	// AddSource adds source file:line to each record.
	AddSource bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv builds a Config from the process environment.
//
// Recognized variables:
//   - CLIER_DEBUG: "true"/"1" enables debug level plus source info.
//   - CLIER_LOG_LEVEL: trace, debug, info, warn, error.
//   - CLIER_LOG_FORMAT: json, text.
//   - CLIER_LOG_SOURCE: "1" to force source file/line annotation.
func FromEnv() *Config {
	cfg := DefaultConfig()

	if debug := os.Getenv("CLIER_DEBUG"); debug == "true" || debug == "1" {
		cfg.Level = "debug"
		cfg.AddSource = true
	} else if level := os.Getenv("CLIER_LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}

	if format := os.Getenv("CLIER_LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	if os.Getenv("CLIER_LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}

	return cfg
}

// New builds a *slog.Logger from cfg. A nil cfg yields DefaultConfig().
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(cfg.Output, opts)
	default:
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a derived logger tagged with the given component
// name, so every line it emits is attributable to a subsystem.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(ComponentKey, component)
}

// WithProcess returns a derived logger tagged with a pipeline item name.
func WithProcess(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(ProcessKey, name)
}
