package registry

import (
	"context"
	"encoding/base64"
	"time"

	"scribecore/internal/domain"
	"scribecore/internal/log"
	"scribecore/internal/ports"
	"scribecore/internal/stitcher"
)

// runTickLocked is the scheduler callback body (§4.4). Called with e.mu
// already held by the timer closure in armIfNeeded, so it never races
// AddFragment for the same session.
func (r *Registry) runTickLocked(ctx context.Context, e *entry) {
	// 1. If session state != Recording, disarm and return.
	if e.state != domain.StateRecording {
		return
	}

	r.drainPending(ctx, e)

	// 4. Re-arm for the next period, unless cancelled/stopped meanwhile.
	if e.state == domain.StateRecording {
		r.armIfNeeded(e)
	}
}

// drainPending runs one stitch/transcribe/persist/fan-out pass over
// whatever is currently buffered, regardless of lifecycle state. Called
// from the armed timer (via runTickLocked), from the finalizer's drain
// step, and from crash recovery. Caller holds e.mu.
func (r *Registry) drainPending(ctx context.Context, e *entry) {
	logger := log.WithComponent("scheduler")

	if len(e.pending) == 0 {
		return
	}

	// 2. Atomically swap the buffered-fragment list with empty; draw the
	// same number of paths from the durable store.
	batch := e.pending
	e.pending = nil
	paths := make([]string, len(batch))
	for i, p := range batch {
		paths[i] = p.Path
	}
	if _, err := r.store.TakeBatch(e.sessionID, len(batch)); err != nil {
		logger.Warn().Err(err).Str("session_id", e.sessionID).Msg("failed to advance durable store queue")
	}

	// 3. Invoke Stitch -> Transcribe -> Persist chunk -> Fan-out. On any
	// failure, restore the paths without advancing chunk index.
	if err := r.processBatch(ctx, e, batch); err != nil {
		logger.Warn().Err(err).Str("session_id", e.sessionID).Msg("chunk tick failed, restoring fragments")
		_ = r.store.Restore(e.sessionID, paths)
		e.pending = append(batch, e.pending...)
		e.cumulativeBytes = totalBytes(e.pending)
	}
}

func (r *Registry) processBatch(ctx context.Context, e *entry, batch []pendingFragment) error {
	combinedBytes := totalBytes(batch)
	avgEnergy := averageEnergy(batch)

	// Gating and short-circuits (§4.5).
	if combinedBytes < r.cfg.MinStitchBytes {
		return nil // too small; this chunk produces no row, not a failure
	}
	if avgEnergy < r.cfg.SilenceEnergy && combinedBytes < r.cfg.SilenceMaxBytes {
		return nil // likely silence
	}

	fragments := toStitchFragments(batch)
	hash := stitcher.CombinedHash(fragments)
	if hash == e.lastHash {
		return nil // duplicate batch; do not advance chunk index
	}

	result, err := r.stitch.Stitch(ctx, e.sessionID, fragments, r.debugDir(e.sessionID))
	if err != nil {
		return domain.ErrStitchFailed
	}

	audioBase64 := base64.StdEncoding.EncodeToString(result.MP3)

	recentTexts, err := r.chunkDB.ListTexts(ctx, e.sessionID, r.contextChunks)
	if err != nil {
		log.WithComponent("scheduler").Warn().Err(err).Str("session_id", e.sessionID).Msg("failed to load rolling context")
	}

	text, err := r.gateway.Transcribe(ctx, audioBase64, "audio/mp3", recentTexts)
	if err != nil {
		return domain.ErrTranscribe
	}

	e.lastHash = result.Hash

	// Only persist/fan-out non-whitespace text (§4.6).
	if isBlank(text) {
		return nil
	}

	index := e.chunkCount
	if err := r.chunkDB.Insert(ctx, e.sessionID, index, text, avgEnergy); err != nil {
		return err
	}
	e.chunkCount++

	if r.metrics != nil {
		r.metrics.ChunksPersisted.Inc()
	}

	r.broadcaster.PublishUpdate(ports.LiveUpdate{
		SessionID:   e.sessionID,
		ChunkIndex:  index,
		Text:        text,
		TimestampMs: time.Now().UnixMilli(),
	})

	return nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
