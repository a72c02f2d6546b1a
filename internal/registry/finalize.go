package registry

import (
	"context"
	"strings"
	"time"

	"scribecore/internal/domain"
	"scribecore/internal/log"
	"scribecore/internal/ports"
	"scribecore/internal/summarizer"
)

// Stop implements the finalizer (§4.7): drain any buffered fragments with
// one last synchronous tick, disarm the scheduler, transition through
// Processing, summarize the full transcript, and persist the completed
// session. Stop is only legal from Recording or Paused.
func (r *Registry) Stop(ctx context.Context, sessionID string) error {
	e, ok := r.getEntry(sessionID)
	if !ok {
		return domain.ErrNotFound
	}

	e.mu.Lock()
	next, legal := fire(e.state, domain.EventStop)
	if !legal {
		e.mu.Unlock()
		return domain.ErrBadState
	}
	e.state = next
	r.scheduler.Disarm(sessionID)
	r.drainPending(ctx, e)
	e.mu.Unlock()

	r.finishProcessing(ctx, e)
	return nil
}

// finishProcessing runs the rest of the finalizer (§4.7) once a session's
// entry is already in Processing with its buffer drained: summarize the
// full transcript, persist completion, purge the fragment directory, and
// drop the in-memory entry. Shared by Stop and by crash recovery of
// sessions that crashed mid-finalize.
func (r *Registry) finishProcessing(ctx context.Context, e *entry) {
	sessionID := e.sessionID

	if err := r.sessionDB.UpdateState(ctx, sessionID, string(domain.StateProcessing)); err != nil {
		log.WithComponent("registry").Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist processing state")
	}
	r.broadcaster.PublishStatus(ports.StatusUpdate{SessionID: sessionID, Status: "processing"})

	transcript, err := r.buildTranscript(ctx, sessionID)
	if err != nil {
		log.WithComponent("registry").Warn().Err(err).Str("session_id", sessionID).Msg("failed to load transcript chunks")
	}

	summary := r.summarize(ctx, sessionID, transcript)

	e.mu.Lock()
	startTime := e.startTime
	e.mu.Unlock()
	duration := time.Since(startTime).Seconds()

	if err := r.sessionDB.Complete(ctx, sessionID, transcript, summary, duration); err != nil {
		log.WithComponent("registry").Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist completed session")
	}

	if err := r.store.PurgeSession(sessionID, r.cfg.DebugSaveStitched); err != nil {
		log.WithComponent("registry").Warn().Err(err).Str("session_id", sessionID).Msg("failed to purge session directory")
	}

	e.mu.Lock()
	e.state = domain.StateCompleted
	e.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SessionsActive.Dec()
		r.metrics.SessionsCompleted.Inc()
	}
	r.broadcaster.PublishCompleted(ports.CompletedUpdate{SessionID: sessionID, Transcript: transcript, Summary: summary})
	r.broadcaster.PublishStatus(ports.StatusUpdate{SessionID: sessionID, Status: "completed"})
	r.remove(sessionID)
	r.broadcaster.Drop(sessionID)
}

// boilerplateChunks are chunk texts that carry no transcribed content and
// are dropped from the final transcript rather than joined in (§4.7d) —
// distinct from the chunk-time refusal scrub in internal/transcription,
// which runs before a chunk is ever persisted.
var boilerplateChunks = map[string]bool{
	"[silence]":   true,
	"[inaudible]": true,
	"[unclear]":   true,
}

func (r *Registry) buildTranscript(ctx context.Context, sessionID string) (string, error) {
	texts, err := r.chunkDB.ListOrdered(ctx, sessionID)
	if err != nil {
		return "", err
	}

	var kept []string
	for _, text := range texts {
		if boilerplateChunks[strings.TrimSpace(text)] {
			continue
		}
		kept = append(kept, text)
	}
	return strings.Join(kept, "\n\n"), nil
}

// summarize never fails the finalization: on any summarizer error it falls
// back to the fixed unavailable-summary string (§4.7). The hallucination
// scrub (§4.7f) is applied here rather than inside ports.Summarizer
// implementations, so every Summarizer — not just the HTTP default — gets
// it for free.
func (r *Registry) summarize(ctx context.Context, sessionID, transcript string) string {
	if strings.TrimSpace(transcript) == "" {
		return domain.SummaryUnavailable
	}
	summary, err := r.summarizer.Summarize(ctx, transcript)
	if err != nil {
		log.WithComponent("registry").Warn().Err(err).Str("session_id", sessionID).Msg("summarization failed, using placeholder")
		return domain.SummaryUnavailable
	}
	return summarizer.ScrubHallucinations(summary, transcript)
}
