// SPDX-License-Identifier: MIT

// Package config resolves the per-user data root, loads configuration with
// defaults < file < environment < flags precedence, and owns the small set
// of runtime-mutable settings persisted in flutter_settings.json.
package config

import (
	"net"

	"github.com/memscreen/memscreen/internal/netutil"
	"github.com/memscreen/memscreen/internal/types"
)

// Config holds every recognized option. It is immutable for the process
// lifetime; runtime-mutable settings live in Settings.
type Config struct {
	APIBind     string `yaml:"api_bind" json:"api_bind"`
	MetricsBind string `yaml:"metrics_bind" json:"metrics_bind,omitempty"`
	DataRoot    string `yaml:"data_root" json:"data_root"`

	RuntimeBaseURL string `yaml:"runtime_base_url" json:"runtime_base_url"`
	VisionModel    string `yaml:"vision_model" json:"vision_model"`
	EmbeddingModel string `yaml:"embedding_model" json:"embedding_model"`
	ChatModel      string `yaml:"chat_model" json:"chat_model"`

	RecordingDefaultDurationSec float64 `yaml:"recording_default_duration_sec" json:"recording_default_duration_sec"`
	RecordingDefaultIntervalSec float64 `yaml:"recording_default_interval_sec" json:"recording_default_interval_sec"`
	RecordingAudioSource        string  `yaml:"recording_audio_source" json:"recording_audio_source"`
	AutoTrackInputWithRecording bool    `yaml:"auto_track_input_with_recording" json:"auto_track_input_with_recording"`

	AnalysisFrameStride   int `yaml:"analysis_frame_stride" json:"analysis_frame_stride"`
	MaxConcurrentAnalyses int `yaml:"max_concurrent_analyses" json:"max_concurrent_analyses"`

	EmbedCache string `yaml:"embed_cache" json:"embed_cache"`
	RedisAddr  string `yaml:"redis_addr" json:"redis_addr,omitempty"`

	FFmpegBin       string `yaml:"ffmpeg_bin" json:"ffmpeg_bin,omitempty"`
	TesseractBin    string `yaml:"tesseract_bin" json:"tesseract_bin,omitempty"`
	RuntimeSpawnCmd string `yaml:"runtime_spawn_cmd" json:"runtime_spawn_cmd,omitempty"`

	LogLevel       string `yaml:"log_level" json:"log_level"`
	CaptureBackend string `yaml:"capture_backend" json:"capture_backend"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		APIBind:                     "127.0.0.1:8765",
		MetricsBind:                 "",
		RuntimeBaseURL:              "http://127.0.0.1:11434",
		VisionModel:                 "llava",
		EmbeddingModel:              "nomic-embed-text",
		ChatModel:                   "llama3.2",
		RecordingDefaultDurationSec: 300,
		RecordingDefaultIntervalSec: 1.0,
		RecordingAudioSource:        "none",
		AutoTrackInputWithRecording: false,
		AnalysisFrameStride:         15,
		MaxConcurrentAnalyses:       2,
		EmbedCache:                  "memory",
		LogLevel:                    "info",
		CaptureBackend:              "auto",
	}
}

// Validate checks ranges and cross-field rules. The first violation is
// returned as a ValidationError.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.APIBind); err != nil {
		return ValidationError{Field: "api_bind", Reason: "must be host:port"}
	}
	if c.MetricsBind != "" {
		if _, _, err := net.SplitHostPort(c.MetricsBind); err != nil {
			return ValidationError{Field: "metrics_bind", Reason: "must be host:port"}
		}
	}

	normalized, err := netutil.ValidateBaseURL(c.RuntimeBaseURL)
	if err != nil {
		return ValidationError{Field: "runtime_base_url", Reason: err.Error()}
	}
	c.RuntimeBaseURL = normalized

	if _, err := types.ParseAudioSource(c.RecordingAudioSource); err != nil {
		return ValidationError{Field: "recording_audio_source", Reason: err.Error()}
	}
	if c.RecordingDefaultDurationSec <= 0 {
		return ValidationError{Field: "recording_default_duration_sec", Reason: "must be > 0"}
	}
	if c.RecordingDefaultIntervalSec <= 0 {
		return ValidationError{Field: "recording_default_interval_sec", Reason: "must be > 0"}
	}
	if c.AnalysisFrameStride < 1 {
		return ValidationError{Field: "analysis_frame_stride", Reason: "must be >= 1"}
	}
	if c.MaxConcurrentAnalyses < 1 {
		return ValidationError{Field: "max_concurrent_analyses", Reason: "must be >= 1"}
	}

	switch c.EmbedCache {
	case "memory", "redis", "none":
	default:
		return ValidationError{Field: "embed_cache", Reason: "must be memory, redis or none"}
	}
	if c.EmbedCache == "redis" && c.RedisAddr == "" {
		return ValidationError{Field: "redis_addr", Reason: "required when embed_cache=redis"}
	}

	switch c.CaptureBackend {
	case "auto", "synthetic":
	default:
		return ValidationError{Field: "capture_backend", Reason: "must be auto or synthetic"}
	}
	return nil
}

// AudioSource returns the parsed default audio source. Validate must have
// accepted the config first.
func (c *Config) AudioSource() types.AudioSource {
	src, err := types.ParseAudioSource(c.RecordingAudioSource)
	if err != nil {
		return types.AudioNone
	}
	return src
}
