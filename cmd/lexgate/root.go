// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/lexgate-dev/lexgate/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root lexgate command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lexgate",
		Short: "LexGate — multi-key request coordinator",
		Long: "LexGate coordinates outbound API requests across pools of interchangeable\n" +
			"credentials: rotating keys, classifying vendor errors, cooling down or revoking\n" +
			"bad credentials, and retrying so transient limits never surface to callers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags, applied as config overrides in loadConfig.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newStartCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newKeysCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig resolves the config path (flag first, then discovery) and loads
// it, then applies persistent flag overrides so the standard precedence
// (flag > env > file > defaults) holds.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = discoverConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}

	return cfg, path, nil
}

// discoverConfigPath looks for lexgate.yaml in the standard locations. When
// none exists, a commented default is bootstrapped to ~/.config/lexgate/ on
// first run. Empty means run on defaults and environment alone.
func discoverConfigPath() string {
	candidates := []string{"lexgate.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "lexgate", "lexgate.yaml"))
	}
	candidates = append(candidates, "/etc/lexgate/lexgate.yaml")

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return config.BootstrapConfig()
}
