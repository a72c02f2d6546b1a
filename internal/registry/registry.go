// Package registry implements the session registry & lifecycle (§4.1), the
// ingest buffer (§4.2), the chunk scheduler's tick body (§4.4), the
// finalizer (§4.7), and crash recovery (§4.9). It is the one package that
// depends on every other pipeline component, wiring them into the flow:
// fragment -> ingest buffer (+durable store) -> (timer) stitcher ->
// transcription gateway -> chunk store + fan-out -> loop; close ->
// finalizer -> summarizer -> persist -> cleanup.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"scribecore/internal/domain"
	"scribecore/internal/log"
	"scribecore/internal/metrics"
	"scribecore/internal/ports"
	"scribecore/internal/scheduler"
	"scribecore/internal/stitcher"
	"scribecore/internal/transcription"
)

// Config bounds the registry's ingest/stitch thresholds (§6).
type Config struct {
	MinFragmentBytes  int64
	MaxSessionBytes   int64
	MinStitchBytes    int64
	SilenceEnergy     float64
	SilenceMaxBytes   int64
	StoreRoot         string
	DebugSaveStitched bool
}

// Registry owns every in-memory session entry and the components the
// pipeline calls through on each tick.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*entry

	store       ports.FragmentStore
	sessionDB   ports.SessionStore
	chunkDB     ports.ChunkStore
	stitch      *stitcher.Stitcher
	gateway     *transcription.Gateway
	summarizer  ports.Summarizer
	broadcaster ports.Broadcaster
	scheduler   *scheduler.Scheduler
	metrics     *metrics.Metrics

	contextChunks int
}

// Dependencies bundles the collaborators Build() wires together.
type Dependencies struct {
	Store         ports.FragmentStore
	SessionDB     ports.SessionStore
	ChunkDB       ports.ChunkStore
	Stitcher      *stitcher.Stitcher
	Gateway       *transcription.Gateway
	Summarizer    ports.Summarizer
	Broadcaster   ports.Broadcaster
	Scheduler     *scheduler.Scheduler
	Metrics       *metrics.Metrics
	ContextChunks int
}

func New(cfg Config, deps Dependencies) *Registry {
	return &Registry{
		cfg:           cfg,
		sessions:      make(map[string]*entry),
		store:         deps.Store,
		sessionDB:     deps.SessionDB,
		chunkDB:       deps.ChunkDB,
		stitch:        deps.Stitcher,
		gateway:       deps.Gateway,
		summarizer:    deps.Summarizer,
		broadcaster:   deps.Broadcaster,
		scheduler:     deps.Scheduler,
		metrics:       deps.Metrics,
		contextChunks: deps.ContextChunks,
	}
}

// InitializeSession persists a session row in Recording and creates empty
// in-memory state (§4.1). Fails if the ID collides.
func (r *Registry) InitializeSession(ctx context.Context, sessionID, userID string) error {
	r.mu.Lock()
	if _, exists := r.sessions[sessionID]; exists {
		r.mu.Unlock()
		return domain.ErrAlreadyExists
	}
	e := newEntry(sessionID, userID)
	r.sessions[sessionID] = e
	r.mu.Unlock()

	if err := r.sessionDB.Create(ctx, sessionID, userID, ""); err != nil {
		r.mu.Lock()
		delete(r.sessions, sessionID)
		r.mu.Unlock()
		return fmt.Errorf("create session row: %w", err)
	}

	if r.metrics != nil {
		r.metrics.SessionsActive.Inc()
	}
	r.broadcaster.PublishStatus(ports.StatusUpdate{SessionID: sessionID, Status: "recording"})
	return nil
}

func (r *Registry) getEntry(sessionID string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	return e, ok
}

func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// Pause cancels the scheduler tick and flips persisted state to Paused.
// Ingest continues to accept fragments while paused (§4.1, invariant 5).
func (r *Registry) Pause(ctx context.Context, sessionID string) error {
	return r.transition(ctx, sessionID, domain.EventPause, "paused", func(e *entry) {
		r.scheduler.Disarm(sessionID)
	})
}

// Resume restarts the scheduler tick and flips persisted state back to
// Recording.
func (r *Registry) Resume(ctx context.Context, sessionID string) error {
	return r.transition(ctx, sessionID, domain.EventResume, "recording", func(e *entry) {
		r.armIfNeeded(e)
	})
}

func (r *Registry) transition(ctx context.Context, sessionID string, event domain.SessionEvent, statusLabel string, effect func(*entry)) error {
	e, ok := r.getEntry(sessionID)
	if !ok {
		return domain.ErrNotFound
	}

	e.mu.Lock()
	next, legal := fire(e.state, event)
	if !legal {
		e.mu.Unlock()
		return domain.ErrBadState
	}
	e.state = next
	e.mu.Unlock()

	if err := r.sessionDB.UpdateState(ctx, sessionID, string(next)); err != nil {
		log.WithComponent("registry").Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist state transition")
	}

	if effect != nil {
		effect(e)
	}

	r.broadcaster.PublishStatus(ports.StatusUpdate{SessionID: sessionID, Status: statusLabel})
	return nil
}

// Cancel tears down the scheduler, discards buffered/persisted fragments,
// and flips state to Cancelled. Safe from any non-terminal state;
// idempotent (§4.1, §8 property 8).
func (r *Registry) Cancel(ctx context.Context, sessionID string) error {
	e, ok := r.getEntry(sessionID)
	if !ok {
		return nil // idempotent: already gone
	}

	e.mu.Lock()
	if e.state.Terminal() {
		e.mu.Unlock()
		return nil // idempotent: Cancel after Cancel/Stop is a no-op
	}
	e.state = domain.StateCancelled
	e.mu.Unlock()

	r.scheduler.Disarm(sessionID)

	if err := r.sessionDB.UpdateState(ctx, sessionID, string(domain.StateCancelled)); err != nil {
		log.WithComponent("registry").Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist cancel")
	}
	if err := r.store.PurgeSession(sessionID, r.cfg.DebugSaveStitched); err != nil {
		log.WithComponent("registry").Warn().Err(err).Str("session_id", sessionID).Msg("failed to purge session directory")
	}

	if r.metrics != nil {
		r.metrics.SessionsActive.Dec()
		r.metrics.SessionsCancelled.Inc()
	}
	r.broadcaster.PublishStatus(ports.StatusUpdate{SessionID: sessionID, Status: "cancelled"})
	r.remove(sessionID)
	r.broadcaster.Drop(sessionID)
	return nil
}

// ActiveSessionCount reports how many sessions currently live in the
// in-memory registry, used by the health endpoint (SPEC_FULL.md §D.2).
func (r *Registry) ActiveSessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Status reports the current lifecycle state of a session, if present.
func (r *Registry) Status(sessionID string) (domain.SessionState, bool) {
	e, ok := r.getEntry(sessionID)
	if !ok {
		return "", false
	}
	return e.getState(), true
}

// Subscribe joins a connection to a session's live update and status fan-out
// (§4.8, join-session). The returned unsubscribe must be called once the
// connection closes.
func (r *Registry) Subscribe(sessionID string) (<-chan any, func()) {
	return r.broadcaster.Subscribe(sessionID)
}

func (r *Registry) armIfNeeded(e *entry) {
	sessionID := e.sessionID
	r.scheduler.Arm(sessionID, func() {
		ctx := context.Background()
		e.mu.Lock()
		defer e.mu.Unlock()
		r.runTickLocked(ctx, e)
	})
}

func (r *Registry) debugDir(sessionID string) string {
	return filepath.Join(r.cfg.StoreRoot, sessionID, "debug")
}
