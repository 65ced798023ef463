// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds every resolved location under the data root.
type Paths struct {
	Root       string
	Videos     string
	Audio      string
	DB         string
	Vectors    string
	Logs       string
	Runtime    string
	RuntimeBin string
	Tmp        string

	MetadataDB   string
	SettingsFile string
	ConfigFile   string
	LogFile      string
}

// DefaultRoot returns the per-user data root, <home>/.memscreen.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".memscreen"), nil
}

// ResolvePaths derives all subpaths from the root and creates the
// directories with owner-only permissions.
func ResolvePaths(root string) (Paths, error) {
	if root == "" {
		var err error
		root, err = DefaultRoot()
		if err != nil {
			return Paths{}, err
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve data root: %w", err)
	}

	p := Paths{
		Root:       abs,
		Videos:     filepath.Join(abs, "videos"),
		Audio:      filepath.Join(abs, "audio"),
		DB:         filepath.Join(abs, "db"),
		Vectors:    filepath.Join(abs, "db", "vectors"),
		Logs:       filepath.Join(abs, "logs"),
		Runtime:    filepath.Join(abs, "runtime"),
		RuntimeBin: filepath.Join(abs, "runtime", "bin"),
		Tmp:        filepath.Join(abs, "tmp"),
	}
	p.MetadataDB = filepath.Join(p.DB, "metadata.db")
	p.SettingsFile = filepath.Join(abs, "flutter_settings.json")
	p.ConfigFile = filepath.Join(abs, "config.yaml")
	p.LogFile = filepath.Join(p.Logs, "memscreend.log")

	for _, dir := range []string{p.Root, p.Videos, p.Audio, p.DB, p.Vectors, p.Logs, p.Runtime, p.RuntimeBin, p.Tmp} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Paths{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return p, nil
}

// ScratchDir returns the encoder scratch directory for one recording.
func (p Paths) ScratchDir(recordingID string) string {
	return filepath.Join(p.Tmp, recordingID)
}

// VideoFile returns the playable file path for one recording.
func (p Paths) VideoFile(recordingID string) string {
	return filepath.Join(p.Videos, recordingID+".mp4")
}

// AudioFile returns the retained WAV path for one recording.
func (p Paths) AudioFile(recordingID string) string {
	return filepath.Join(p.Audio, recordingID+".wav")
}
