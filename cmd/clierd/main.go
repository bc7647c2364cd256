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

// Command clierd is the daemon entrypoint: boots the Supervisor, handles
// IPC-adjacent bookkeeping (pid file, daemon-state.json), and shuts down
// cleanly on SIGINT/SIGTERM. Grounded on tombee-conductor's
// cmd/conductord/main.go (env-driven config load, signal handling,
// cancel-then-deadline shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clierhq/clier/internal/config"
	"github.com/clierhq/clier/internal/daemonstate"
	clierlog "github.com/clierhq/clier/internal/log"
	"github.com/clierhq/clier/internal/supervisor"
	"github.com/clierhq/clier/internal/tracing"
)

const (
	exitOK int = iota
	exitConfigError
	exitInitError
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Println("clierd (dev)")
		os.Exit(exitOK)
	}

	logger := clierlog.New(clierlog.FromEnv())
	slog.SetDefault(logger)

	if os.Getenv("CLIER_DAEMON_MODE") != "1" {
		logger.Error("clierd must be launched with CLIER_DAEMON_MODE=1")
		os.Exit(exitInitError)
	}

	configPath := os.Getenv("CLIER_CONFIG_PATH")
	projectRoot := os.Getenv("CLIER_PROJECT_ROOT")
	if configPath == "" || projectRoot == "" {
		logger.Error("CLIER_CONFIG_PATH and CLIER_PROJECT_ROOT are required in daemon mode")
		os.Exit(exitInitError)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(exitConfigError)
	}

	tracerProvider, err := tracing.NewProvider("clier")
	if err != nil {
		logger.Error("failed to build tracer provider", slog.Any("error", err))
		os.Exit(exitInitError)
	}

	sup, err := supervisor.New(supervisor.Options{
		Config:         cfg,
		ProjectRoot:    projectRoot,
		ConfigPath:     configPath,
		Logger:         logger,
		TracerProvider: tracerProvider,
		ReloadConfig: func(path string) (config.Config, error) {
			return config.Load(path)
		},
	})
	if err != nil {
		logger.Error("failed to build supervisor", slog.Any("error", err))
		os.Exit(exitInitError)
	}

	paths := daemonstate.NewPaths(projectRoot)
	if err := daemonstate.WritePid(paths.PidPath, os.Getpid()); err != nil {
		logger.Error("failed to write pid file", slog.Any("error", err))
		os.Exit(exitInitError)
	}
	defer daemonstate.RemovePid(paths.PidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sup.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
		result := sup.Shutdown(context.Background(), 10*time.Second)
		if len(result.Failed) > 0 {
			logger.Warn("some processes failed to stop cleanly", slog.Any("failed", result.Failed))
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("supervisor start failed", slog.Any("error", err))
			os.Exit(exitInitError)
		}
	}

	os.Exit(exitOK)
}
