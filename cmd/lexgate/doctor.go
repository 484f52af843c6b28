// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/lexgate-dev/lexgate/internal/config"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check binary health, configuration, credential references, the audit journal, and disk space.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", "127.0.0.1:8187", "ops API address to check")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr, _ := cmd.Flags().GetString("address")

	cfg, cfgPath, cfgErr := loadConfig(cmd)
	if cfgErr != nil {
		// Diagnostics should still run when the config is broken; that is
		// exactly when an operator reaches for doctor.
		cfg = &config.Config{}
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share", "lexgate")
	}

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Gateway", func() string { return checkGateway(addr) }},
		{"Config", func() string { return checkConfig(cfgPath, cfgErr) }},
		{"Credentials", func() string { return checkCredentials(cfg) }},
		{"Audit Journal", func() string { return checkJournal(cfg, dataDir) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("lexgate %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkGateway(addr string) string {
	ops := newOpsClient(addr)
	var body struct {
		Status string `json:"status"`
	}
	if err := ops.getJSON("/health", &body); err != nil {
		if lexerr.HasCode(err, lexerr.CodeCLIServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'lexgate start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkConfig(cfgPath string, cfgErr error) string {
	if cfgErr != nil {
		return fmt.Sprintf("error: %s", cfgErr)
	}
	if cfgPath == "" {
		return "using defaults (no config file found)"
	}

	if info, err := os.Stat(cfgPath); err == nil && info.Mode().Perm()&0o077 != 0 {
		return fmt.Sprintf("loaded from %s (WARNING: mode %04o is readable by others, want 0600)",
			cfgPath, info.Mode().Perm())
	}
	return fmt.Sprintf("loaded from %s", cfgPath)
}

func checkCredentials(cfg *config.Config) string {
	providers := cfg.EnabledProviders()
	if len(providers) == 0 {
		return "no providers enabled"
	}

	total := 0
	for _, p := range providers {
		refs, err := cfg.KeyRefsFor(p)
		if err != nil {
			return fmt.Sprintf("error reading references for %s: %s", p, err)
		}
		if len(refs) == 0 {
			return fmt.Sprintf("%s is enabled but has no credentials (run 'lexgate keys check')", p)
		}
		total += len(refs)
	}
	return fmt.Sprintf("%d provider(s) enabled, %d reference(s) (run 'lexgate keys check' to resolve)",
		len(providers), total)
}

func checkJournal(cfg *config.Config, dataDir string) string {
	if !cfg.Audit.Enabled {
		return "disabled"
	}

	path := cfg.Audit.JournalFile(dataDir)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("will be created at %s on first run", path)
		}
		return fmt.Sprintf("unable to check %s: %s", path, err)
	}
	return fmt.Sprintf("%s (%s)", path, formatBytes(uint64(info.Size())))
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
