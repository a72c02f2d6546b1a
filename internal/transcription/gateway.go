// Package transcription implements the transcription gateway (§4.6): it
// assembles rolling context, calls the external Transcriber with
// retry/backoff honouring a server-suggested delay, and scrubs the result
// through the 7-step post-processing pipeline.
package transcription

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"scribecore/internal/domain"
	"scribecore/internal/log"
	"scribecore/internal/metrics"
	"scribecore/internal/ports"
)

// Config bounds the gateway's context window and retry policy (§6).
type Config struct {
	ContextChunks int
	ContextChars  int
	Attempts      int
	RetryBase     time.Duration
	Metrics       *metrics.Metrics
}

// Gateway wraps a ports.Transcriber with context assembly, retry, and
// post-processing.
type Gateway struct {
	transcriber ports.Transcriber
	cfg         Config
}

func New(transcriber ports.Transcriber, cfg Config) *Gateway {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Second
	}
	if cfg.ContextChunks <= 0 {
		cfg.ContextChunks = 5
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = 500
	}
	return &Gateway{transcriber: transcriber, cfg: cfg}
}

// Transcribe builds the rolling context from recentChunkTexts (already
// limited to the last cfg.ContextChunks entries by the caller), invokes the
// transcriber with retry, and returns the post-processed text.
func (g *Gateway) Transcribe(ctx context.Context, audioBase64, mimeType string, recentChunkTexts []string) (string, error) {
	rollingContext := BuildContext(recentChunkTexts, g.cfg.ContextChars)
	prompt := BuildPrompt(rollingContext)

	text, err := g.callWithRetry(ctx, audioBase64, mimeType, rollingContext)
	if err != nil {
		return "", errors.Join(domain.ErrTranscribe, err)
	}

	return PostProcess(text, prompt), nil
}

func (g *Gateway) callWithRetry(ctx context.Context, audioBase64, mimeType, rollingContext string) (string, error) {
	logger := log.WithComponent("transcription")
	start := time.Now()

	first := true
	operation := func() (string, error) {
		if !first && g.cfg.Metrics != nil {
			g.cfg.Metrics.TranscribeRetries.Inc()
		}
		first = false

		text, err := g.transcriber.Transcribe(ctx, audioBase64, mimeType, rollingContext)
		if err == nil {
			return text, nil
		}

		var te ports.TranscribeError
		if errors.As(err, &te) {
			if delayMs, ok := te.ServerRetryDelay(); ok {
				return "", &backoff.RetryAfterError{Duration: time.Duration(delayMs) * time.Millisecond}
			}
			if te.IsTimeout() || te.IsRateLimit() || te.IsServerError() {
				return "", err // retryable: backoff computes the delay
			}
			return "", backoff.Permanent(err)
		}
		return "", backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.RetryBase

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(g.cfg.Attempts)),
	)
	if g.cfg.Metrics != nil {
		g.cfg.Metrics.TranscribeLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		logger.Warn().Err(err).Msg("transcription failed after retries")
		return "", err
	}
	return result, nil
}
