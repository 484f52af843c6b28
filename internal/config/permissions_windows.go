// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

//go:build windows

package config

import "log/slog"

// WarnInsecurePermissions is a no-op on Windows.
// Windows uses ACLs rather than Unix mode bits, so this check is not applicable.
func WarnInsecurePermissions(paths ...string) {
	for _, path := range paths {
		if path != "" {
			slog.Debug("file permission check not implemented on Windows", "path", path)
		}
	}
}
