// Package ports declares the narrow interfaces the core pipeline depends on
// for everything that lives outside its own process boundary: the upstream
// transcription/summarization models, the durable store, and subscriber
// fan-out. The core only ever depends on these contracts, never on a
// concrete provider.
package ports

import (
	"context"
)

// TranscribeError exposes the predicates the transcription gateway needs to
// decide whether a failure is retryable, independent of the concrete
// upstream error type.
type TranscribeError interface {
	error
	IsTimeout() bool
	IsRateLimit() bool
	IsServerError() bool
	ServerRetryDelay() (delay int64, ok bool) // milliseconds
}

// Transcriber is the external transcription collaborator (§6). Context may
// be empty when no substantive prior chunk exists yet.
type Transcriber interface {
	Transcribe(ctx context.Context, audioBase64 string, mimeType string, rollingContext string) (text string, err error)
}

// Summarizer is the external summarization collaborator (§6).
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (summary string, err error)
}

// FragmentStore persists fragment bytes to durable storage and enumerates
// them for stitching and recovery (§4.3).
type FragmentStore interface {
	Append(ctx context.Context, sessionID string, payload []byte, ext string) (path string, err error)
	TakeBatch(sessionID string, n int) (paths []string, err error)
	Restore(sessionID string, paths []string) error
	List(sessionID string) (paths []string, err error)
	SeedQueue(sessionID string, paths []string)
	PurgeSession(sessionID string, preserveDebug bool) error
}

// SessionStore is the persistent recording_session table (§6).
type SessionStore interface {
	Create(ctx context.Context, sessionID, userID, title string) error
	UpdateState(ctx context.Context, sessionID string, state string) error
	Complete(ctx context.Context, sessionID, transcriptText, summary string, durationSeconds float64) error
	Get(ctx context.Context, sessionID string) (id, userID, state string, found bool, err error)
	ListActive(ctx context.Context) (sessionIDs []string, states []string, err error)
}

// ChunkStore is the persistent transcript_chunk table (§6).
type ChunkStore interface {
	Insert(ctx context.Context, sessionID string, index int, text string, confidence float64) error
	ListTexts(ctx context.Context, sessionID string, lastN int) ([]string, error)
	ListOrdered(ctx context.Context, sessionID string) ([]string, error)
	Count(ctx context.Context, sessionID string) (int, error)
}

// LiveUpdate is broadcast to every subscriber of a session as chunks land.
type LiveUpdate struct {
	SessionID  string
	ChunkIndex int
	Text       string
	TimestampMs int64
}

// StatusUpdate is broadcast on every lifecycle transition.
type StatusUpdate struct {
	SessionID string
	Status    string
}

// CompletedUpdate is broadcast once when a session finishes finalizing,
// carrying the full transcript and summary (§6, recording-completed).
type CompletedUpdate struct {
	SessionID  string
	Transcript string
	Summary    string
}

// Broadcaster fans live updates and status updates out to subscribers of a
// session (§4.8). Delivery is best-effort per subscriber.
type Broadcaster interface {
	Subscribe(sessionID string) (ch <-chan any, unsubscribe func())
	PublishUpdate(update LiveUpdate)
	PublishStatus(update StatusUpdate)
	PublishCompleted(update CompletedUpdate)
	// Drop releases a session's subscriber registry once it reaches a
	// terminal state; safe to call even if no subscriber ever joined.
	Drop(sessionID string)
}

// Clock abstracts the current time. No component in this module takes a
// Clock: the scheduler and the retention sweep read the system clock
// directly.
type Clock interface {
	Now() int64 // unix millis
}
