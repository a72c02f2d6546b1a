// Package log wraps zerolog with the handful of helpers the rest of the
// core uses: a configurable base logger, component-scoped child loggers,
// and an HTTP request-logging middleware for the chi router.
package log

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// Config controls the base logger's level and output format.
type Config struct {
	Level  string
	JSON   bool
	Output *os.File
}

// Configure replaces the package-level base logger. Call once at startup.
func Configure(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSON {
		base = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	base = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// L returns the base logger.
func L() *zerolog.Logger {
	return &base
}

// WithComponent returns a child logger tagged with a component name, e.g.
// "stitcher" or "registry".
func WithComponent(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// Middleware logs method, path, status, and duration for every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		WithComponent("http").Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}
