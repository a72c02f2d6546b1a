// Command server runs the streaming transcription core: it accepts
// websocket connections, buffers and stitches audio fragments into
// chunks, drives the transcription and summarization gateways, and
// persists sessions and transcript chunks to sqlite.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scribecore/internal/bootstrap"
	"scribecore/internal/log"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log.Configure(log.Config{Level: envOrDefault("SCRIBE_LOG_LEVEL", "info"), JSON: envOrDefault("SCRIBE_LOG_JSON", "") == "true"})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Build(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build service graph")
	}
	defer services.Store.Close()

	srv := &http.Server{
		Addr:    services.Config.HTTP.Addr,
		Handler: services.Router,
	}

	go func() {
		logger.Info().Str("addr", services.Config.HTTP.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown timed out")
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
