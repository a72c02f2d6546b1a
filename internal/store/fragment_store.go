// Package store implements the durable per-session fragment store (§4.3):
// every fragment received from a client is written to
// sessions/<sessionId>/chunk-<receiveMillis>.<ext> before the ingest call
// returns, so a crash never loses an already-acknowledged fragment.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"scribecore/internal/log"
)

// FragmentStore is a filesystem-backed durable store, one directory per
// session. Writes are atomic (write-to-temp, fsync, rename) via renameio so
// a crash mid-write never leaves a partially-written fragment visible.
type FragmentStore struct {
	root      string
	retention time.Duration

	mu     sync.Mutex
	queues map[string][]string // sessionID -> pending file paths, arrival order

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New creates a fragment store rooted at root. Call Close to stop the
// background retention sweep.
func New(root string, retention time.Duration) (*FragmentStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FragmentStore{
		root:      root,
		retention: retention,
		queues:    make(map[string][]string),
		stopSweep: make(chan struct{}),
	}, nil
}

func (s *FragmentStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// Append durably writes payload to sessions/<sessionId>/chunk-<ms>.<ext> and
// records the path in the session's in-memory arrival queue.
func (s *FragmentStore) Append(ctx context.Context, sessionID string, payload []byte, ext string) (string, error) {
	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}

	name := fmt.Sprintf("chunk-%d.%s", time.Now().UnixMilli(), ext)
	path := filepath.Join(dir, name)

	if err := renameio.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("durable write: %w", err)
	}

	s.mu.Lock()
	s.queues[sessionID] = append(s.queues[sessionID], path)
	s.mu.Unlock()

	return path, nil
}

// TakeBatch removes and returns the first n paths in arrival order.
func (s *FragmentStore) TakeBatch(sessionID string, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[sessionID]
	if n > len(q) {
		n = len(q)
	}
	taken := append([]string(nil), q[:n]...)
	s.queues[sessionID] = q[n:]
	return taken, nil
}

// Restore pushes paths back to the head of the queue, used when a stitch
// attempt fails and the fragments must be retried on the next tick.
func (s *FragmentStore) Restore(sessionID string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[sessionID] = append(append([]string(nil), paths...), s.queues[sessionID]...)
	return nil
}

// List enumerates every fragment file physically present for a session, in
// arrival order (by filename, which embeds the receive timestamp). Used for
// crash recovery, where the in-memory queue has been lost.
func (s *FragmentStore) List(sessionID string) ([]string, error) {
	dir := s.sessionDir(sessionID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list session dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// SeedQueue replaces the in-memory arrival queue for a session, used by
// recovery to rehydrate state from List() results after a restart.
func (s *FragmentStore) SeedQueue(sessionID string, paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[sessionID] = append([]string(nil), paths...)
}

// PurgeSession deletes the session directory. When preserveDebug is true,
// the debug/ subdirectory is moved out to the store root's debug-archive
// area first (§4.3, §4.5).
func (s *FragmentStore) PurgeSession(sessionID string, preserveDebug bool) error {
	dir := s.sessionDir(sessionID)

	if preserveDebug {
		debugDir := filepath.Join(dir, "debug")
		if info, err := os.Stat(debugDir); err == nil && info.IsDir() {
			archiveRoot := filepath.Join(s.root, "_debug-archive")
			if err := os.MkdirAll(archiveRoot, 0o755); err == nil {
				dest := filepath.Join(archiveRoot, sessionID)
				_ = os.Rename(debugDir, dest)
			}
		}
	}

	s.mu.Lock()
	delete(s.queues, sessionID)
	s.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("purge session dir: %w", err)
	}
	return nil
}

// StartRetentionSweep runs a background goroutine that deletes session
// directories whose last-modified time is older than the store's retention
// window. Stopped by Close.
func (s *FragmentStore) StartRetentionSweep(interval time.Duration) {
	logger := log.WithComponent("store")
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopSweep:
				return
			case <-ticker.C:
				if err := s.sweepOnceNow(); err != nil {
					logger.Warn().Err(err).Msg("retention sweep failed")
				}
			}
		}
	}()
}

func (s *FragmentStore) sweepOnceNow() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-s.retention)
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "_debug-archive" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.RemoveAll(filepath.Join(s.root, e.Name()))
		}
	}
	return nil
}

// Close stops the retention sweep goroutine, if running.
func (s *FragmentStore) Close() {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
}
