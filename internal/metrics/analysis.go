// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Analysis pipeline metrics
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memscreen_analyses_total",
		Help: "Total number of recording analyses, by outcome",
	}, []string{"outcome"}) // outcome=completed|failed|cancelled

	analysisDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "memscreen_analysis_duration_seconds",
		Help:    "Time spent analyzing a recording end to end",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	})

	framesAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memscreen_frames_analyzed_total",
		Help: "Total number of frames run through OCR and vision description",
	})

	ocrFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memscreen_ocr_failures_total",
		Help: "Total number of frames where text extraction failed",
	})

	// Model runtime metrics
	runtimeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memscreen_runtime_requests_total",
		Help: "Total number of model runtime requests, by operation and outcome",
	}, []string{"op", "outcome"}) // op=chat|embed|vision|pull|tags outcome=success|error

	runtimeRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memscreen_runtime_request_duration_seconds",
		Help:    "Latency of model runtime requests, by operation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"op"})

	// Embedding cache metrics
	embedCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memscreen_embed_cache_hits_total",
		Help: "Total number of embedding cache hits",
	})

	embedCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memscreen_embed_cache_misses_total",
		Help: "Total number of embedding cache misses",
	})

	// Vector store metrics
	vectorsUpsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memscreen_vectors_upserted_total",
		Help: "Total number of vectors written to the vector store",
	})

	vectorQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memscreen_vector_queries_total",
		Help: "Total number of similarity queries against the vector store",
	})

	// Search metrics
	searchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memscreen_search_requests_total",
		Help: "Total number of hybrid search requests, by outcome",
	}, []string{"outcome"}) // outcome=success|error

	// Streaming metrics
	sseSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "memscreen_sse_subscribers",
		Help: "Current number of connected SSE subscribers, by stream",
	}, []string{"stream"}) // stream=recording_status|chat
)

func RecordAnalysis(outcome string, seconds float64) {
	analysesTotal.WithLabelValues(outcome).Inc()
	analysisDurationSeconds.Observe(seconds)
}

func AddFramesAnalyzed(n int) { framesAnalyzedTotal.Add(float64(n)) }
func IncOCRFailure()          { ocrFailuresTotal.Inc() }

func RecordRuntimeRequest(op string, err error, seconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	runtimeRequestsTotal.WithLabelValues(op, outcome).Inc()
	runtimeRequestDurationSeconds.WithLabelValues(op).Observe(seconds)
}

func IncEmbedCacheHit()  { embedCacheHitsTotal.Inc() }
func IncEmbedCacheMiss() { embedCacheMissesTotal.Inc() }

func AddVectorsUpserted(n int) { vectorsUpsertedTotal.Add(float64(n)) }
func IncVectorQuery()          { vectorQueriesTotal.Inc() }

func IncSearchRequest(outcome string) { searchRequestsTotal.WithLabelValues(outcome).Inc() }

func AddSSESubscriber(stream string, delta int) {
	sseSubscribers.WithLabelValues(stream).Add(float64(delta))
}
