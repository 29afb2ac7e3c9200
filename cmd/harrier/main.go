// Harrier - Withdrawal decisions with evidence you can replay.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/harrier/internal/config"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "harrier",
	Short: "Withdrawal decision engine",
	Long: `Harrier evaluates pending casino withdrawals against the player's
transaction history, bonus policies and operator rules, and records an
immutable evidence snapshot for every decision.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default .env)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig() (*domain.Config, error) {
	setupLogger("info", "json")

	cfg, err := config.Load(config.Options{Path: configPath, EnvFile: envFile})
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func setupLogger(level, format string) {
	logLevel := config.LogLevel(level)
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
