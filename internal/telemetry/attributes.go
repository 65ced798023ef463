// SPDX-License-Identifier: MIT
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Recording attributes
	RecordingIDKey     = "recording.id"
	RecordingModeKey   = "recording.mode"
	RecordingFPSKey    = "recording.fps"
	RecordingFramesKey = "recording.frames"
	RecordingAudioKey  = "recording.audio"

	// Analysis attributes
	AnalysisModelKey  = "analysis.model"
	AnalysisFramesKey = "analysis.frames"
	AnalysisStateKey  = "analysis.state"

	// Model runtime attributes
	RuntimeOpKey    = "runtime.op"
	RuntimeModelKey = "runtime.model"

	// Search attributes
	SearchTopKKey    = "search.top_k"
	SearchResultsKey = "search.results"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// RecordingAttributes creates recording span attributes. Empty values
// are skipped so callers can pass partial information.
func RecordingAttributes(id, mode string, fps float64, frames int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if id != "" {
		attrs = append(attrs, attribute.String(RecordingIDKey, id))
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(RecordingModeKey, mode))
	}
	if fps > 0 {
		attrs = append(attrs, attribute.Float64(RecordingFPSKey, fps))
	}
	if frames > 0 {
		attrs = append(attrs, attribute.Int(RecordingFramesKey, frames))
	}
	return attrs
}

// AnalysisAttributes creates analysis span attributes.
func AnalysisAttributes(model string, frames int, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AnalysisModelKey, model),
		attribute.Int(AnalysisFramesKey, frames),
		attribute.String(AnalysisStateKey, state),
	}
}

// RuntimeAttributes creates model runtime call span attributes.
func RuntimeAttributes(op, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RuntimeOpKey, op),
		attribute.String(RuntimeModelKey, model),
	}
}

// SearchAttributes creates hybrid search span attributes.
func SearchAttributes(topK, results int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(SearchTopKKey, topK),
		attribute.Int(SearchResultsKey, results),
	}
}

// ErrorAttributes creates error span attributes.
func ErrorAttributes(err error, errorType string) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
