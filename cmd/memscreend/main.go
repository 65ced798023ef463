// SPDX-License-Identifier: MIT

// memscreend is the local visual-memory daemon: it records the screen,
// analyzes recordings with local models and serves the results to the
// desktop client over a localhost HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/memscreen/memscreen/internal/api"
	"github.com/memscreen/memscreen/internal/audio"
	"github.com/memscreen/memscreen/internal/cache"
	"github.com/memscreen/memscreen/internal/capture"
	"github.com/memscreen/memscreen/internal/config"
	"github.com/memscreen/memscreen/internal/daemon"
	"github.com/memscreen/memscreen/internal/encoder"
	"github.com/memscreen/memscreen/internal/health"
	"github.com/memscreen/memscreen/internal/ingest"
	"github.com/memscreen/memscreen/internal/input"
	mslog "github.com/memscreen/memscreen/internal/log"
	"github.com/memscreen/memscreen/internal/query"
	"github.com/memscreen/memscreen/internal/recorder"
	"github.com/memscreen/memscreen/internal/runtime"
	"github.com/memscreen/memscreen/internal/store"
	"github.com/memscreen/memscreen/internal/telemetry"
	"github.com/memscreen/memscreen/internal/vector"
	"github.com/memscreen/memscreen/internal/version"
)

const healthInterval = 30 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	bind := flag.String("bind", "", "API listen address (host:port)")
	dataRoot := flag.String("data-root", "", "data root directory")
	runtimeURL := flag.String("runtime-url", "", "model runtime base URL")
	flag.Parse()

	if *showVersion {
		fmt.Printf("memscreend %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	if err := run(*configPath, *bind, *dataRoot, *runtimeURL); err != nil {
		logger := mslog.WithComponent("daemon")
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}

func run(configPath, bind, dataRoot, runtimeURL string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The config file lives inside the data root, so an explicit
	// --config wins and otherwise the default location is probed.
	if configPath == "" {
		root := dataRoot
		if root == "" {
			if def, err := config.DefaultRoot(); err == nil {
				root = def
			}
		}
		if root != "" {
			candidate := filepath.Join(root, "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
			}
		}
	}

	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if bind != "" {
		cfg.APIBind = bind
	}
	if dataRoot != "" {
		cfg.DataRoot = dataRoot
	}
	if runtimeURL != "" {
		cfg.RuntimeBaseURL = runtimeURL
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	paths, err := config.ResolvePaths(cfg.DataRoot)
	if err != nil {
		return fmt.Errorf("resolve data root: %w", err)
	}

	mslog.Configure(mslog.Config{
		Level:   cfg.LogLevel,
		File:    paths.LogFile,
		Service: "memscreend",
	})
	logger := mslog.WithComponent("daemon")
	logger.Info().
		Str("version", version.Version).
		Str("data_root", paths.Root).
		Str("api_bind", cfg.APIBind).
		Msg("memscreend starting")

	if err := health.StartupChecks(logger, cfg, paths); err != nil {
		return err
	}

	// Storage.
	st, err := store.Open(paths.MetadataDB)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	vs, err := vector.Open(paths.Vectors)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("open vector store: %w", err)
	}
	settings, err := config.OpenSettings(paths.SettingsFile)
	if err != nil {
		_ = vs.Close()
		_ = st.Close()
		return fmt.Errorf("open settings: %w", err)
	}

	// Model runtime.
	embeds, err := cache.ForKind(cfg.EmbedCache, cfg.RedisAddr, mslog.WithComponent("cache"))
	if err != nil {
		_ = vs.Close()
		_ = st.Close()
		return err
	}
	rt := runtime.New(cfg.RuntimeBaseURL,
		runtime.WithEmbedCache(embeds),
		runtime.WithLogger(mslog.WithComponent("runtime")),
	)

	var runtimeProc *runtime.Process
	if cfg.RuntimeSpawnCmd != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		pingErr := rt.Ping(pingCtx)
		cancel()
		if pingErr != nil {
			proc, spawnErr := runtime.Spawn(ctx, cfg.RuntimeSpawnCmd, mslog.WithComponent("runtime"))
			if spawnErr != nil {
				logger.Warn().Err(spawnErr).Msg("runtime spawn failed, continuing without local runtime")
			} else {
				runtimeProc = proc
			}
		}
	}

	// Capture and encode.
	capt, err := capture.New(cfg.CaptureBackend, mslog.WithComponent("capture"))
	if err != nil {
		_ = vs.Close()
		_ = st.Close()
		return fmt.Errorf("capture backend: %w", err)
	}
	aud := audio.New(mslog.WithComponent("audio"))
	ffmpegBin := config.ResolveToolBin(cfg.FFmpegBin, paths.RuntimeBin, "ffmpeg")
	enc := encoder.New(ffmpegBin, mslog.WithComponent("encoder"))

	tracker := input.NewTracker(input.NewSource(mslog.WithComponent("input")), st, mslog.WithComponent("input"))

	pipeline := ingest.New(ingest.Config{
		VisionModel:    cfg.VisionModel,
		EmbeddingModel: cfg.EmbeddingModel,
		ChatModel:      settings.EffectiveChatModel(cfg),
		FrameStride:    cfg.AnalysisFrameStride,
		Workers:        cfg.MaxConcurrentAnalyses,
		ScratchRoot:    paths.Tmp,
		FFmpegBin:      ffmpegBin,
		TesseractBin:   config.ResolveToolBin(cfg.TesseractBin, paths.RuntimeBin, "tesseract"),
	}, ingest.Deps{
		Store:   st,
		Vectors: vs,
		Runtime: rt,
		Logger:  mslog.WithComponent("ingest"),
	})

	orchestrator := recorder.New(recorder.Config{
		VideosDir:       paths.Videos,
		ScratchRoot:     paths.Tmp,
		DefaultDuration: time.Duration(cfg.RecordingDefaultDurationSec * float64(time.Second)),
		DefaultInterval: time.Duration(cfg.RecordingDefaultIntervalSec * float64(time.Second)),
		DefaultAudio:    cfg.AudioSource(),
		AutoTrackInput:  settings.EffectiveAutoTrack(cfg),
	}, recorder.Deps{
		Capture: capt,
		Audio:   aud,
		Store:   st,
		Encoder: enc,
		Tracker: tracker,
		Ingest:  pipeline,
		Logger:  mslog.WithComponent("recorder"),
	})

	engine := query.New(query.Config{
		EmbeddingModel: cfg.EmbeddingModel,
		ChatModel:      func() string { return settings.EffectiveChatModel(cfg) },
	}, st, vs, rt, mslog.WithComponent("query"))

	checker := health.New(version.Version, st, rt, enc)

	otlpEndpoint := os.Getenv("MEMSCREEN_OTLP_ENDPOINT")
	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        otlpEndpoint != "",
		ServiceName:    "memscreend",
		ServiceVersion: version.Version,
		ExporterType:   "grpc",
		Endpoint:       otlpEndpoint,
		SamplingRate:   1,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled, provider init failed")
	}

	apiServer := api.New(api.Config{
		Version: version.Version,
		Tracing: otlpEndpoint != "",
		App:     cfg,
		Paths:   paths,
	}, api.Deps{
		Recorder: orchestrator,
		Capture:  capt,
		Audio:    aud,
		Tracker:  tracker,
		Ingest:   pipeline,
		Chat:     engine,
		Store:    st,
		Vectors:  vs,
		Runtime:  rt,
		Health:   checker,
		Settings: settings,
	})

	mgr, err := daemon.NewManager(
		daemon.DefaultServerConfig(cfg.APIBind, cfg.MetricsBind),
		daemon.Deps{
			APIHandler:     apiServer.Router(),
			MetricsHandler: promhttp.Handler(),
			Logger:         mslog.WithComponent("manager"),
		},
	)
	if err != nil {
		_ = vs.Close()
		_ = st.Close()
		return err
	}

	// Background work shares a context that falls when the manager
	// begins shutting down.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	group, groupCtx := errgroup.WithContext(bgCtx)

	group.Go(func() error { return ignoreCancel(pipeline.Run(groupCtx)) })
	group.Go(func() error { return ignoreCancel(settings.Watch(groupCtx)) })
	group.Go(func() error {
		checker.Run(groupCtx, healthInterval)
		return nil
	})
	group.Go(func() error {
		if n, err := orchestrator.ScanOrphans(groupCtx); err != nil {
			logger.Warn().Err(err).Msg("orphan scan failed")
		} else if n > 0 {
			logger.Info().Int("recovered", n).Msg("orphaned recordings recovered")
		}
		if n, err := pipeline.EnqueuePending(groupCtx); err != nil {
			logger.Warn().Err(err).Msg("pending re-enqueue failed")
		} else if n > 0 {
			logger.Info().Int("queued", n).Msg("unfinished analyses re-queued")
		}
		return nil
	})

	// Hooks run LIFO: the stores registered first close last, after
	// everything that writes to them has stopped.
	mgr.RegisterShutdownHook("metadata-store", func(context.Context) error { return st.Close() })
	mgr.RegisterShutdownHook("vector-store", func(context.Context) error { return vs.Close() })
	mgr.RegisterShutdownHook("background-tasks", func(context.Context) error {
		bgCancel()
		return ignoreCancel(group.Wait())
	})
	mgr.RegisterShutdownHook("recorder", orchestrator.Close)
	if runtimeProc != nil {
		mgr.RegisterShutdownHook("runtime-process", func(context.Context) error {
			return runtimeProc.Stop(5 * time.Second)
		})
	}
	if tracing != nil {
		mgr.RegisterShutdownHook("tracing", tracing.Shutdown)
	}

	return mgr.Start(ctx)
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
