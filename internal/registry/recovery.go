package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"scribecore/internal/domain"
	"scribecore/internal/log"
)

// Recover rehydrates in-memory registry state after a restart (§4.9). It
// walks every session the database still reports as active, reloads its
// buffered fragments from the durable store, and either resumes ingestion
// (Recording/Paused) or completes an interrupted finalize (Processing).
// Sessions with no active database row are untouched; their fragment
// directories age out via the store's retention sweep.
func (r *Registry) Recover(ctx context.Context) error {
	logger := log.WithComponent("registry")

	sessionIDs, states, err := r.sessionDB.ListActive(ctx)
	if err != nil {
		return err
	}

	for i, sessionID := range sessionIDs {
		state := domain.SessionState(states[i])
		if !state.Active() {
			continue
		}

		paths, err := r.store.List(sessionID)
		if err != nil {
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to list fragments during recovery")
			continue
		}

		e := newEntry(sessionID, "")
		e.pending = loadFragments(paths)
		e.cumulativeBytes = totalBytes(e.pending)
		r.store.SeedQueue(sessionID, paths)

		count, err := r.chunkDB.Count(ctx, sessionID)
		if err != nil {
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to count persisted chunks during recovery")
		}
		e.chunkCount = count

		switch state {
		case domain.StateRecording, domain.StatePaused:
			e.state = domain.StateRecording
			r.mu.Lock()
			r.sessions[sessionID] = e
			r.mu.Unlock()
			if r.metrics != nil {
				r.metrics.SessionsActive.Inc()
			}

			if err := r.sessionDB.UpdateState(ctx, sessionID, string(domain.StateRecording)); err != nil {
				logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist recovered state")
			}
			e.mu.Lock()
			r.armIfNeeded(e)
			e.mu.Unlock()
			logger.Info().Str("session_id", sessionID).Int("pending_fragments", len(e.pending)).Msg("recovered active session")

		case domain.StateProcessing:
			e.state = domain.StateProcessing
			r.mu.Lock()
			r.sessions[sessionID] = e
			r.mu.Unlock()
			if r.metrics != nil {
				r.metrics.SessionsActive.Inc()
			}

			e.mu.Lock()
			r.drainPending(ctx, e)
			e.mu.Unlock()
			r.finishProcessing(ctx, e)
			logger.Info().Str("session_id", sessionID).Msg("resumed interrupted finalize")

		default:
			continue
		}
	}

	return nil
}

// loadFragments reads fragment payloads back from disk so the stitcher has
// the same bytes it would have held in memory before the crash. The
// container hint is recovered from the file extension the store wrote it
// under.
func loadFragments(paths []string) []pendingFragment {
	out := make([]pendingFragment, 0, len(paths))
	for _, path := range paths {
		payload, err := os.ReadFile(path)
		if err != nil {
			log.WithComponent("registry").Warn().Err(err).Str("path", path).Msg("failed to read fragment during recovery")
			continue
		}
		out = append(out, pendingFragment{
			Payload:   payload,
			Path:      path,
			Container: containerFromExt(filepath.Ext(path)),
			Length:    len(payload),
		})
	}
	return out
}

func containerFromExt(ext string) domain.ContainerHint {
	switch strings.TrimPrefix(ext, ".") {
	case "webm":
		return domain.ContainerWebMOpus
	case "ogg":
		return domain.ContainerOggOpus
	case "mp3":
		return domain.ContainerMP3
	case "m4a":
		return domain.ContainerMP4
	case "aac":
		return domain.ContainerAAC
	case "flac":
		return domain.ContainerFLAC
	case "wav":
		return domain.ContainerWAV
	default:
		return domain.ContainerWebMOpus
	}
}
