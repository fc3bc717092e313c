package main

import (
	"flag"
	"fmt"
	"os"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	PropertyPath string
	LogLevel     string
	LogFormat    string
	AppName      string
	ShowVersion  bool
	Validate     bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.PropertyPath, "property",
		getEnv("AGENTGRAPH_PROPERTY", "property.json"),
		"Path to property file (env: AGENTGRAPH_PROPERTY)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("AGENTGRAPH_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error; overrides the property file (env: AGENTGRAPH_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("AGENTGRAPH_LOG_FORMAT", "json"),
		"Log format: json, text (env: AGENTGRAPH_LOG_FORMAT)")

	flag.StringVar(&cfg.AppName, "name",
		getEnv("AGENTGRAPH_APP_NAME", appName),
		"App instance name (env: AGENTGRAPH_APP_NAME)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate the property file and exit")

	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	if cfg.AppName == "" {
		return fmt.Errorf("app name must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
