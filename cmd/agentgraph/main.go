// Package main implements the entry point for the agentgraph runtime: it
// loads a property file, brings up an app with its predefined graphs, and
// runs until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/agentgraph/app"
	"github.com/c360/agentgraph/config"
)

// Build information constants.
const (
	Version = "0.1.0"
	appName = "agentgraph"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(cliCfg.PropertyPath)
	if err != nil {
		return fmt.Errorf("load property file: %w", err)
	}
	if cliCfg.LogLevel != "" {
		cfg.LogLevel = cliCfg.LogLevel
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := setupLogger(level, cliCfg.LogFormat)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Property file is valid",
			"path", cliCfg.PropertyPath, "graphs", len(cfg.PredefinedGraphs))
		return nil
	}

	slog.Info("Starting agentgraph",
		"version", Version,
		"property_path", cliCfg.PropertyPath,
		"graphs", len(cfg.PredefinedGraphs))

	if err := app.Init(); err != nil {
		return err
	}
	defer func() {
		if err := app.Deinit(); err != nil {
			slog.Warn("Process deinit", "error", err)
		}
	}()

	a, err := app.New(cliCfg.AppName, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}
