// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions checks each path for overly permissive modes
// (group- or world-readable) and logs a warning for offenders. Empty paths
// are skipped. This is a best-effort check — it does not fail startup, but
// alerts the operator that API keys may be exposed to other users on the
// system.
func WarnInsecurePermissions(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		warnIfShared(path)
	}
}

func warnIfShared(path string) {
	info, err := os.Stat(path)
	if err != nil {
		// File missing or inaccessible. Already surfaced elsewhere.
		slog.Debug("could not stat file for permission check", "path", path, "error", err)
		return
	}

	mode := info.Mode()
	perm := mode.Perm()

	// Group- or world-readable (any of bits 040, 004).
	const groupRead fs.FileMode = 0o040
	const otherRead fs.FileMode = 0o004

	if perm&(groupRead|otherRead) != 0 {
		slog.Warn(
			"file has insecure permissions — API keys may be exposed to other users",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
