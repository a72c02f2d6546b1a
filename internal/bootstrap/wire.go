// Package bootstrap assembles the pipeline's runtime graph: config,
// database, durable store, metrics, stitcher, transcription gateway,
// summarizer, fan-out, scheduler, and the registry wiring them all together
// behind the HTTP/websocket router. The logger is configured by the caller
// before Build runs.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"scribecore/internal/config"
	"scribecore/internal/fanout"
	"scribecore/internal/log"
	"scribecore/internal/metrics"
	"scribecore/internal/persistence"
	"scribecore/internal/registry"
	"scribecore/internal/scheduler"
	"scribecore/internal/stitcher"
	"scribecore/internal/store"
	"scribecore/internal/summarizer"
	"scribecore/internal/transcription"
	"scribecore/internal/wsapi"
)

// Services is the assembled runtime graph returned to cmd/server.
type Services struct {
	Config   config.Config
	DB       *gorm.DB
	Registry *registry.Registry
	Router   http.Handler
	Store    *closer
}

// closer bundles the one component (the durable fragment store) that owns a
// background goroutine the process must stop on shutdown.
type closer struct {
	stop func()
}

func (c *closer) Close() {
	if c != nil && c.stop != nil {
		c.stop()
	}
}

// Build wires every pipeline component per the configuration resolved from
// the environment, then runs crash recovery before returning.
func Build(ctx context.Context) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, fmt.Errorf("load config: %w", err)
	}

	db, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		return Services{}, fmt.Errorf("open database: %w", err)
	}

	fragmentStore, err := store.New(cfg.Store.Root, cfg.Store.Retention)
	if err != nil {
		return Services{}, fmt.Errorf("open fragment store: %w", err)
	}
	fragmentStore.StartRetentionSweep(24 * time.Hour)

	sessionDB := persistence.NewSessionStore(db)
	chunkDB := persistence.NewChunkStore(db)

	metricsInstance := metrics.New()

	stitch := stitcher.New(stitcher.Config{
		FFmpegCommand:     cfg.Stitch.FFmpegCommand,
		FFprobeCommand:    cfg.Stitch.FFprobeCommand,
		ToolTimeout:       cfg.Stitch.ToolTimeout,
		ToolTimeoutFilter: cfg.Stitch.ToolTimeoutFilter,
		ToolStdoutMax:     cfg.Stitch.ToolStdoutMax,
		DebugSaveStitched: cfg.Stitch.DebugSaveStitched,
		Metrics:           metricsInstance,
	})

	transcriber := transcription.NewHTTPTranscriber(cfg.Transcription.TranscriberURL, cfg.Transcription.Model)
	gateway := transcription.New(transcriber, transcription.Config{
		ContextChunks: cfg.Transcription.ContextChunks,
		ContextChars:  cfg.Transcription.ContextChars,
		Attempts:      cfg.Transcription.Attempts,
		RetryBase:     cfg.Transcription.RetryBase,
		Metrics:       metricsInstance,
	})

	summarize := summarizer.New(summarizer.Config{
		BaseURL: cfg.Transcription.SummarizerURL,
		Model:   cfg.Transcription.SummarizerModel,
	})

	broadcaster := fanout.New()
	sched := scheduler.New(cfg.Session.ChunkPeriod)

	reg := registry.New(registry.Config{
		MinFragmentBytes:  cfg.Session.MinFragmentBytes,
		MaxSessionBytes:   cfg.Session.MaxSessionBytes,
		MinStitchBytes:    cfg.Stitch.MinStitchBytes,
		SilenceEnergy:     cfg.Stitch.SilenceEnergy,
		SilenceMaxBytes:   cfg.Stitch.SilenceMaxBytes,
		StoreRoot:         cfg.Store.Root,
		DebugSaveStitched: cfg.Stitch.DebugSaveStitched,
	}, registry.Dependencies{
		Store:         fragmentStore,
		SessionDB:     sessionDB,
		ChunkDB:       chunkDB,
		Stitcher:      stitch,
		Gateway:       gateway,
		Summarizer:    summarize,
		Broadcaster:   broadcaster,
		Scheduler:     sched,
		Metrics:       metricsInstance,
		ContextChunks: cfg.Transcription.ContextChunks,
	})

	if err := reg.Recover(ctx); err != nil {
		log.WithComponent("bootstrap").Warn().Err(err).Msg("crash recovery pass failed")
	}

	router := wsapi.NewRouter(reg, metricsInstance.Handler(), func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	return Services{
		Config:   cfg,
		DB:       db,
		Registry: reg,
		Router:   router,
		Store:    &closer{stop: fragmentStore.Close},
	}, nil
}
