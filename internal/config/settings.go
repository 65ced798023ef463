// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/fsutil"
	"github.com/memscreen/memscreen/internal/log"
)

// Settings is the runtime-mutable subset of configuration, persisted in
// flutter_settings.json. The desktop client may rewrite the file; nil
// pointer fields mean "no preference, use the config default".
type Settings struct {
	ChatModel          string   `json:"chat_model,omitempty"`
	AutoTrackInput     *bool    `json:"auto_track_input_with_recording,omitempty"`
	DefaultDurationSec *float64 `json:"recording_default_duration_sec,omitempty"`
	DefaultIntervalSec *float64 `json:"recording_default_interval_sec,omitempty"`
	AudioSource        string   `json:"recording_audio_source,omitempty"`
}

// SettingsStore serializes access to the settings file. Writes go through
// a temp file and an atomic rename; external rewrites are picked up by
// Watch.
type SettingsStore struct {
	path   string
	logger zerolog.Logger

	mu sync.RWMutex
	s  Settings
}

// OpenSettings loads the settings file if it exists and returns the store.
func OpenSettings(path string) (*SettingsStore, error) {
	st := &SettingsStore{
		path:   path,
		logger: log.WithComponent("settings"),
	}
	if err := st.reload(); err != nil {
		return nil, err
	}
	return st, nil
}

// Snapshot returns a copy of the current settings.
func (st *SettingsStore) Snapshot() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Update applies mutate under the lock and persists atomically.
func (st *SettingsStore) Update(mutate func(*Settings)) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	mutate(&st.s)
	if err := fsutil.WriteJSONAtomic(st.path, st.s); err != nil {
		return err
	}
	st.logger.Info().Str("event", "settings.saved").Str(log.FieldPath, st.path).Msg("settings persisted")
	return nil
}

// EffectiveChatModel resolves the active chat model against the config
// default.
func (st *SettingsStore) EffectiveChatModel(cfg Config) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.s.ChatModel != "" {
		return st.s.ChatModel
	}
	return cfg.ChatModel
}

// EffectiveAutoTrack resolves the auto-track flag against the config
// default.
func (st *SettingsStore) EffectiveAutoTrack(cfg Config) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.s.AutoTrackInput != nil {
		return *st.s.AutoTrackInput
	}
	return cfg.AutoTrackInputWithRecording
}

func (st *SettingsStore) reload() error {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		st.logger.Warn().Err(err).Str(log.FieldPath, st.path).
			Msg("settings file unreadable, keeping previous values")
		return nil
	}
	st.mu.Lock()
	st.s = s
	st.mu.Unlock()
	return nil
}

// Watch reloads the settings whenever the file is rewritten. It blocks
// until ctx is cancelled. Atomic rename shows up as Create on the watched
// directory, so the parent is watched rather than the file itself.
func (st *SettingsStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(st.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != st.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := st.reload(); err != nil {
				st.logger.Warn().Err(err).Str("event", "settings.reload_failed").Msg("settings reload failed")
				continue
			}
			st.logger.Debug().Str("event", "settings.reloaded").Msg("settings reloaded from disk")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			st.logger.Warn().Err(err).Str("event", "settings.watch_error").Msg("settings watcher error")
		}
	}
}
