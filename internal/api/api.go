// SPDX-License-Identifier: MIT

// Package api serves the daemon's HTTP surface to the local desktop
// client: recording control, the video library, chat, input tracking,
// model management and the indicator method channel. Everything speaks
// JSON; the two live feeds (recording status, chat replies) stream over
// SSE.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memscreen/memscreen/internal/api/middleware"
	"github.com/memscreen/memscreen/internal/audio"
	"github.com/memscreen/memscreen/internal/capture"
	"github.com/memscreen/memscreen/internal/config"
	"github.com/memscreen/memscreen/internal/health"
	"github.com/memscreen/memscreen/internal/ingest"
	"github.com/memscreen/memscreen/internal/input"
	"github.com/memscreen/memscreen/internal/log"
	"github.com/memscreen/memscreen/internal/query"
	"github.com/memscreen/memscreen/internal/recorder"
	"github.com/memscreen/memscreen/internal/runtime"
	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/types"
	"github.com/memscreen/memscreen/internal/vector"
)

// Recorder is the slice of the orchestrator the API drives.
type Recorder interface {
	Start(ctx context.Context, req recorder.StartRequest) error
	Stop() error
	Status() recorder.Status
	Subscribe() (<-chan recorder.Status, func())
}

var _ Recorder = (*recorder.Orchestrator)(nil)

// CaptureLister enumerates screens and windows for the pickers.
type CaptureLister interface {
	ListDisplays() ([]capture.Display, error)
	ListWindows() ([]capture.Window, error)
}

// AudioDiagnoser probes audio capability for a requested source.
type AudioDiagnoser interface {
	Diagnose(requested types.AudioSource) audio.Diagnosis
}

// Tracker is the slice of the input tracker the API drives.
type Tracker interface {
	Start() error
	Stop()
	MarkStart()
	Status() input.Status
	SaveFromTracking(ctx context.Context) (*types.InputSession, error)
}

var _ Tracker = (*input.Tracker)(nil)

// Ingestor accepts re-analysis requests.
type Ingestor interface {
	TryEnqueue(recordingID string) error
}

var _ Ingestor = (*ingest.Pipeline)(nil)

// Chatter answers chat turns, blocking or streamed.
type Chatter interface {
	Chat(ctx context.Context, threadID, message string) (reply, usedThreadID string, err error)
	ChatStream(ctx context.Context, threadID, message string) (<-chan runtime.Chunk, string, error)
}

var _ Chatter = (*query.Engine)(nil)

// Store is the slice of the metadata store the API reads and mutates.
type Store interface {
	GetRecording(ctx context.Context, id string) (*types.Recording, error)
	ListRecordings(ctx context.Context, f store.RecordingFilter) ([]types.Recording, error)
	DeleteRecording(ctx context.Context, id string) error
	DeleteFrameArtifacts(ctx context.Context, recordingID string) (int, error)

	SaveInputSession(ctx context.Context, start, end time.Time, events []types.InputEvent) (*types.InputSession, error)
	GetInputSession(ctx context.Context, id string) (*types.InputSession, error)
	ListInputSessions(ctx context.Context, limit int) ([]types.InputSession, error)
	ListInputEvents(ctx context.Context, sessionID string) ([]types.InputEvent, error)
	DeleteInputSession(ctx context.Context, id string) (int, error)

	ListThreads(ctx context.Context) ([]types.ChatThread, error)
	CreateThread(ctx context.Context, title string) (*types.ChatThread, error)
	GetThread(ctx context.Context, id string) (*types.ChatThread, error)
	ActiveThread(ctx context.Context) (*types.ChatThread, error)
	RenameThread(ctx context.Context, id, title string) error
	SetActiveThread(ctx context.Context, id string) error
	History(ctx context.Context, threadID string) ([]types.ChatMessage, error)
}

var _ Store = (*store.Store)(nil)

// Vectors is the slice of the vector store the cascade delete touches.
type Vectors interface {
	DeleteByFilter(ctx context.Context, collection string, f vector.Filter) (int, error)
}

var _ Vectors = (*vector.Store)(nil)

// Runtime is the slice of the model runtime the API exposes.
type Runtime interface {
	BaseURL() string
	Ping(ctx context.Context) error
	Catalog(ctx context.Context) ([]runtime.ModelCatalogEntry, string)
	EnsureModel(ctx context.Context, name string) error
}

var _ Runtime = (*runtime.Client)(nil)

// HealthChecker serves the cached dependency report.
type HealthChecker interface {
	Last() health.Report
}

var _ HealthChecker = (*health.Checker)(nil)

// Config carries what the handlers need beyond their dependencies.
type Config struct {
	Version string

	// Tracing wires otelhttp instrumentation into the router.
	Tracing bool

	App   config.Config
	Paths config.Paths
}

// Deps are the components behind the HTTP surface. Tracker, Ingest,
// Chat, Vectors and Runtime degrade to "unavailable" responses when nil.
type Deps struct {
	Recorder Recorder
	Capture  CaptureLister
	Audio    AudioDiagnoser
	Tracker  Tracker
	Ingest   Ingestor
	Chat     Chatter
	Store    Store
	Vectors  Vectors
	Runtime  Runtime
	Health   HealthChecker
	Settings *config.SettingsStore
}

// Server holds the handler state. Construct with New, mount with Router.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

// New wires the HTTP surface.
func New(cfg Config, deps Deps) *Server {
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithComponent("api"),
	}
}

// Router builds the chi router with the full endpoint surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders())
	if s.cfg.Tracing {
		r.Use(middleware.OTelHTTP("memscreend"))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/config", s.handleConfig)

	r.Route("/recording", func(r chi.Router) {
		r.Get("/status", s.handleRecordingStatus)
		r.Get("/status/stream", s.handleRecordingStatusStream)
		r.Get("/screens", s.handleScreens)
		r.Get("/windows", s.handleWindows)
		r.Get("/audio/diagnose", s.handleAudioDiagnose)
		r.Group(func(r chi.Router) {
			r.Use(middleware.MutationRateLimit())
			r.Post("/start", s.handleRecordingStart)
			r.Post("/stop", s.handleRecordingStop)
		})
	})

	r.Route("/video", func(r chi.Router) {
		r.Get("/list", s.handleVideoList)
		r.Group(func(r chi.Router) {
			r.Use(middleware.MutationRateLimit())
			r.Post("/reanalyze", s.handleVideoReanalyze)
			r.Post("/playable", s.handleVideoPlayable)
			r.Post("/delete", s.handleVideoDelete)
		})
	})

	r.Route("/chat", func(r chi.Router) {
		r.Get("/models", s.handleChatModels)
		r.Get("/model", s.handleChatModelGet)
		r.Put("/model", s.handleChatModelPut)
		r.Get("/history", s.handleChatHistory)
		r.Get("/threads", s.handleThreadsList)
		r.Post("/threads", s.handleThreadsCreate)
		r.Put("/threads", s.handleThreadsUpdate)
		r.Group(func(r chi.Router) {
			r.Use(middleware.MutationRateLimit())
			r.Post("/", s.handleChat)
			r.Post("/stream", s.handleChatStream)
		})
	})

	r.Route("/process", func(r chi.Router) {
		r.Route("/tracking", func(r chi.Router) {
			r.Get("/status", s.handleTrackingStatus)
			r.Post("/start", s.handleTrackingStart)
			r.Post("/stop", s.handleTrackingStop)
			r.Post("/mark-start", s.handleTrackingMarkStart)
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleSessionsList)
			r.Post("/", s.handleSessionsCreate)
			r.Delete("/", s.handleSessionsDeleteAll)
			r.Post("/from-tracking", s.handleSessionsFromTracking)
			r.Get("/{id}", s.handleSessionGet)
			r.Delete("/{id}", s.handleSessionDelete)
			r.Get("/{id}/analysis", s.handleSessionAnalysis)
		})
	})

	r.Route("/models", func(r chi.Router) {
		r.Get("/catalog", s.handleModelsCatalog)
		r.With(middleware.MutationRateLimit()).Post("/download", s.handleModelsDownload)
	})

	r.Post("/indicator/message", s.handleIndicatorMessage)

	return r
}

// requestID assigns each request a uuid carried in the log context and
// echoed in the X-Request-ID header.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
	})
}

// accessLog writes one line per completed request. Streaming endpoints
// log on disconnect with their full duration, which is expected.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Info().
			Str("event", "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}
