// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the memscreen daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture metrics
	framesCapturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memscreen_frames_captured_total",
		Help: "Total number of frames captured, by capture mode",
	}, []string{"mode"}) // mode=fullscreen|region

	framesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memscreen_frames_dropped_total",
		Help: "Total number of captured frames dropped because a consumer fell behind",
	}, []string{"stage"}) // stage=capture|encode

	// Recording lifecycle metrics
	recordingsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memscreen_recordings_started_total",
		Help: "Total number of recordings started",
	})

	recordingsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memscreen_recordings_finished_total",
		Help: "Total number of recordings finished, by outcome",
	}, []string{"outcome"}) // outcome=completed|failed|cancelled

	recordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memscreen_recording_active",
		Help: "Whether a recording is currently in progress (1) or not (0)",
	})

	recordingDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "memscreen_recording_duration_seconds",
		Help:    "Wall-clock duration of finished recordings",
		Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
	})

	// Encoder metrics
	encodeJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memscreen_encode_jobs_total",
		Help: "Total number of video encode jobs, by outcome",
	}, []string{"outcome"}) // outcome=completed|failed|cancelled

	encodeDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "memscreen_encode_duration_seconds",
		Help:    "Time spent finalizing a recording into a video file",
		Buckets: prometheus.DefBuckets,
	})

	// Input tracking metrics
	inputEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memscreen_input_events_total",
		Help: "Total number of input events recorded, by kind",
	}, []string{"kind"}) // kind=keystroke|mouse_click|mouse_move|scroll
)

func IncFrameCaptured(mode string) { framesCapturedTotal.WithLabelValues(mode).Inc() }

func AddFramesDropped(stage string, n int) {
	framesDroppedTotal.WithLabelValues(stage).Add(float64(n))
}

func IncRecordingStarted() { recordingsStartedTotal.Inc() }

func RecordRecordingFinished(outcome string, seconds float64) {
	recordingsFinishedTotal.WithLabelValues(outcome).Inc()
	recordingDurationSeconds.Observe(seconds)
}

func SetRecordingActive(active bool) {
	if active {
		recordingActive.Set(1)
	} else {
		recordingActive.Set(0)
	}
}

func RecordEncode(outcome string, seconds float64) {
	encodeJobsTotal.WithLabelValues(outcome).Inc()
	encodeDurationSeconds.Observe(seconds)
}

func AddInputEvents(kind string, n int) {
	inputEventsTotal.WithLabelValues(kind).Add(float64(n))
}
