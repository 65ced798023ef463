// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ResolveToolBin returns the effective path for an external tool.
//
// Resolution order:
// 1) Explicit configured path
// 2) Bundled binary under the runtime bin directory
// 3) PATH lookup
// 4) Empty string (tool unavailable)
func ResolveToolBin(explicit, bundleDir, name string) string {
	return resolveToolBinWith(explicit, bundleDir, name, os.Stat, exec.LookPath)
}

func resolveToolBinWith(explicit, bundleDir, name string,
	stat func(string) (os.FileInfo, error),
	lookPath func(string) (string, error),
) string {
	explicit = strings.TrimSpace(explicit)
	if explicit != "" {
		return explicit
	}

	if bundleDir = strings.TrimSpace(bundleDir); bundleDir != "" {
		candidate := filepath.Join(bundleDir, name)
		if fi, err := stat(candidate); err == nil && fi != nil && !fi.IsDir() {
			return candidate
		}
	}

	if found, err := lookPath(name); err == nil {
		return found
	}
	return ""
}
