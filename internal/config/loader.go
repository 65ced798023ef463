// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/memscreen/memscreen/internal/log"
)

// Loader loads configuration with precedence defaults < file < environment.
// Command-line flags are applied by the caller on the loaded Config before
// Validate runs.
type Loader struct {
	configPath string
}

// NewLoader creates a configuration loader. configPath may be empty, in
// which case only defaults and environment apply.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load merges defaults, the optional YAML file, and MEMSCREEN_* environment
// variables. The result is not yet validated; callers apply flag overrides
// first and then run Validate.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.mergeFile(&cfg, l.configPath); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	return cfg, nil
}

func (l *Loader) mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	warnUnknownKeys(data)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// warnUnknownKeys probes the document for keys outside the recognized set.
// Unknown keys never fail the load; they are logged once each.
func warnUnknownKeys(data []byte) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return
	}

	known := make(map[string]struct{})
	var probe Config
	t := yaml.Node{}
	if err := t.Encode(&probe); err == nil {
		// Mapping nodes alternate key and value entries.
		for i := 0; i+1 < len(t.Content); i += 2 {
			known[t.Content[i].Value] = struct{}{}
		}
	}

	logger := log.WithComponent("config")
	var unknown []string
	for key := range raw {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		logger.Warn().Str("key", key).Err(ErrUnknownConfigField).
			Msg("ignoring unrecognized config key")
	}
}

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.APIBind = ParseString("MEMSCREEN_API_BIND", cfg.APIBind)
	cfg.MetricsBind = ParseString("MEMSCREEN_METRICS_BIND", cfg.MetricsBind)
	cfg.DataRoot = ParseString("MEMSCREEN_DATA_ROOT", cfg.DataRoot)
	cfg.RuntimeBaseURL = ParseString("MEMSCREEN_RUNTIME_URL", cfg.RuntimeBaseURL)
	cfg.VisionModel = ParseString("MEMSCREEN_VISION_MODEL", cfg.VisionModel)
	cfg.EmbeddingModel = ParseString("MEMSCREEN_EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.ChatModel = ParseString("MEMSCREEN_CHAT_MODEL", cfg.ChatModel)
	cfg.RecordingDefaultDurationSec = ParseFloat("MEMSCREEN_RECORDING_DURATION", cfg.RecordingDefaultDurationSec)
	cfg.RecordingDefaultIntervalSec = ParseFloat("MEMSCREEN_RECORDING_INTERVAL", cfg.RecordingDefaultIntervalSec)
	cfg.RecordingAudioSource = ParseString("MEMSCREEN_AUDIO_SOURCE", cfg.RecordingAudioSource)
	cfg.AutoTrackInputWithRecording = ParseBool("MEMSCREEN_AUTO_TRACK", cfg.AutoTrackInputWithRecording)
	cfg.AnalysisFrameStride = ParseInt("MEMSCREEN_FRAME_STRIDE", cfg.AnalysisFrameStride)
	cfg.MaxConcurrentAnalyses = ParseInt("MEMSCREEN_MAX_ANALYSES", cfg.MaxConcurrentAnalyses)
	cfg.EmbedCache = ParseString("MEMSCREEN_EMBED_CACHE", cfg.EmbedCache)
	cfg.RedisAddr = ParseString("MEMSCREEN_REDIS_ADDR", cfg.RedisAddr)
	cfg.FFmpegBin = ParseString("MEMSCREEN_FFMPEG_BIN", cfg.FFmpegBin)
	cfg.TesseractBin = ParseString("MEMSCREEN_TESSERACT_BIN", cfg.TesseractBin)
	cfg.RuntimeSpawnCmd = ParseString("MEMSCREEN_RUNTIME_SPAWN", cfg.RuntimeSpawnCmd)
	cfg.LogLevel = ParseString("MEMSCREEN_LOG_LEVEL", cfg.LogLevel)
	cfg.CaptureBackend = ParseString("MEMSCREEN_CAPTURE_BACKEND", cfg.CaptureBackend)
}
