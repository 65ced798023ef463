// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flutter_settings.json")

	st, err := OpenSettings(path)
	require.NoError(t, err)
	assert.Equal(t, Settings{}, st.Snapshot())

	require.NoError(t, st.Update(func(s *Settings) {
		s.ChatModel = "qwen2.5"
		on := true
		s.AutoTrackInput = &on
	}))

	// Reopen and confirm persistence.
	st2, err := OpenSettings(path)
	require.NoError(t, err)
	got := st2.Snapshot()
	assert.Equal(t, "qwen2.5", got.ChatModel)
	require.NotNil(t, got.AutoTrackInput)
	assert.True(t, *got.AutoTrackInput)
}

func TestSettingsEffectiveValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flutter_settings.json")
	st, err := OpenSettings(path)
	require.NoError(t, err)

	cfg := Defaults()
	assert.Equal(t, cfg.ChatModel, st.EffectiveChatModel(cfg))
	assert.Equal(t, cfg.AutoTrackInputWithRecording, st.EffectiveAutoTrack(cfg))

	require.NoError(t, st.Update(func(s *Settings) {
		s.ChatModel = "mistral"
		on := true
		s.AutoTrackInput = &on
	}))
	assert.Equal(t, "mistral", st.EffectiveChatModel(cfg))
	assert.True(t, st.EffectiveAutoTrack(cfg))
}

func TestSettingsCorruptFileKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flutter_settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	st, err := OpenSettings(path)
	require.NoError(t, err)
	assert.Equal(t, Settings{}, st.Snapshot())
}

func TestResolvePaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	p, err := ResolvePaths(root)
	require.NoError(t, err)

	for _, dir := range []string{p.Videos, p.Audio, p.DB, p.Vectors, p.Logs, p.Runtime, p.Tmp} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(p.DB, "metadata.db"), p.MetadataDB)
	assert.Equal(t, filepath.Join(p.Videos, "abc.mp4"), p.VideoFile("abc"))
	assert.Equal(t, filepath.Join(p.Tmp, "abc"), p.ScratchDir("abc"))
}

func TestResolveToolBin(t *testing.T) {
	statYes := func(string) (os.FileInfo, error) { return fakeInfo{}, nil }
	statNo := func(string) (os.FileInfo, error) { return nil, os.ErrNotExist }
	lookYes := func(name string) (string, error) { return "/usr/bin/" + name, nil }
	lookNo := func(string) (string, error) { return "", os.ErrNotExist }

	// Explicit wins over everything.
	got := resolveToolBinWith("/opt/ffmpeg", "/bundle", "ffmpeg", statYes, lookYes)
	assert.Equal(t, "/opt/ffmpeg", got)

	// Bundled binary preferred over PATH.
	got = resolveToolBinWith("", "/bundle", "ffmpeg", statYes, lookYes)
	assert.Equal(t, filepath.Join("/bundle", "ffmpeg"), got)

	// PATH fallback.
	got = resolveToolBinWith("", "/bundle", "ffmpeg", statNo, lookYes)
	assert.Equal(t, "/usr/bin/ffmpeg", got)

	// Nothing found.
	got = resolveToolBinWith("", "/bundle", "ffmpeg", statNo, lookNo)
	assert.Equal(t, "", got)
}

type fakeInfo struct{ os.FileInfo }

func (fakeInfo) IsDir() bool { return false }
