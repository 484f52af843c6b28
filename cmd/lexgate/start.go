// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexgate-dev/lexgate/internal/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway",
		Long:  "Start the LexGate gateway: credential pools, the retry coordinator, and the ops API.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "ops API listen address (overrides config)")

	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	setupLogging(cfg.Logging)
	config.WarnInsecurePermissions(cfg.SecretFilePaths(cfgPath)...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := WireGateway(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := gw.Close(); cerr != nil {
			slog.Warn("shutdown cleanup failed", "error", cerr)
		}
	}()

	slog.Info("starting lexgate",
		"version", version,
		"listen", cfg.Server.Listen,
		"providers", gw.Registry.Names(),
		"config", cfgPath,
	)

	return gw.Start(ctx)
}

// setupLogging installs the process-wide slog handler. Text output goes
// through tint for readable local runs; json is for log collectors.
func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	slog.SetDefault(slog.New(handler))
}
