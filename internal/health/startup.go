// SPDX-License-Identifier: MIT

package health

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/config"
)

// StartupChecks validates the environment before the daemon starts
// serving: the data root must be writable, and optional tool binaries
// are reported so a missing ffmpeg shows up in the log instead of on
// the first recording attempt. Only the data root is fatal.
func StartupChecks(logger zerolog.Logger, cfg config.Config, paths config.Paths) error {
	if err := checkWritableDir(paths.Root); err != nil {
		return fmt.Errorf("data root check: %w", err)
	}
	logger.Info().Str("path", paths.Root).Msg("data root is writable")

	if bin := config.ResolveToolBin(cfg.FFmpegBin, paths.RuntimeBin, "ffmpeg"); bin == "" {
		logger.Warn().Msg("ffmpeg not found; recording is disabled until it is installed")
	} else {
		logger.Info().Str("ffmpeg", bin).Msg("encoder binary resolved")
	}
	if bin := config.ResolveToolBin(cfg.TesseractBin, paths.RuntimeBin, "tesseract"); bin == "" {
		logger.Info().Msg("tesseract not found; analysis will rely on the vision model only")
	}

	tempDir := filepath.Clean(os.TempDir())
	root := filepath.Clean(paths.Root)
	if root == tempDir || strings.HasPrefix(root, tempDir+string(filepath.Separator)) {
		logger.Warn().Str("data_root", paths.Root).
			Msg("data root is under temp; recordings may be lost on reboot")
	}
	return nil
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}
	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	return os.Remove(probe)
}
