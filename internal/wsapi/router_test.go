package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"scribecore/internal/fanout"
	"scribecore/internal/registry"
	"scribecore/internal/scheduler"
	"scribecore/internal/stitcher"
	"scribecore/internal/transcription"
)

type fakeFragmentStore struct {
	mu     sync.Mutex
	queues map[string][]string
}

func newFakeFragmentStore() *fakeFragmentStore {
	return &fakeFragmentStore{queues: make(map[string][]string)}
}

func (f *fakeFragmentStore) Append(ctx context.Context, sessionID string, payload []byte, ext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := sessionID + "-" + ext
	f.queues[sessionID] = append(f.queues[sessionID], path)
	return path, nil
}

func (f *fakeFragmentStore) TakeBatch(sessionID string, n int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queues[sessionID]
	if n > len(q) {
		n = len(q)
	}
	taken := append([]string(nil), q[:n]...)
	f.queues[sessionID] = q[n:]
	return taken, nil
}

func (f *fakeFragmentStore) Restore(sessionID string, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[sessionID] = append(append([]string(nil), paths...), f.queues[sessionID]...)
	return nil
}

func (f *fakeFragmentStore) List(sessionID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queues[sessionID]...), nil
}

func (f *fakeFragmentStore) SeedQueue(sessionID string, paths []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[sessionID] = append([]string(nil), paths...)
}

func (f *fakeFragmentStore) PurgeSession(sessionID string, preserveDebug bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.queues, sessionID)
	return nil
}

type fakeSessionStore struct {
	mu   sync.Mutex
	rows map[string]string
}

func newFakeSessionStore() *fakeSessionStore { return &fakeSessionStore{rows: make(map[string]string)} }

func (s *fakeSessionStore) Create(ctx context.Context, sessionID, userID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sessionID] = "recording"
	return nil
}

func (s *fakeSessionStore) UpdateState(ctx context.Context, sessionID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sessionID] = state
	return nil
}

func (s *fakeSessionStore) Complete(ctx context.Context, sessionID, transcriptText, summary string, durationSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sessionID] = "completed"
	return nil
}

func (s *fakeSessionStore) Get(ctx context.Context, sessionID string) (string, string, string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.rows[sessionID]
	return sessionID, "", state, ok, nil
}

func (s *fakeSessionStore) ListActive(ctx context.Context) ([]string, []string, error) {
	return nil, nil, nil
}

type fakeChunkStore struct {
	mu   sync.Mutex
	rows map[string][]string
}

func newFakeChunkStore() *fakeChunkStore { return &fakeChunkStore{rows: make(map[string][]string)} }

func (c *fakeChunkStore) Insert(ctx context.Context, sessionID string, index int, text string, confidence float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[sessionID] = append(c.rows[sessionID], text)
	return nil
}

func (c *fakeChunkStore) ListTexts(ctx context.Context, sessionID string, lastN int) ([]string, error) {
	return nil, nil
}

func (c *fakeChunkStore) ListOrdered(ctx context.Context, sessionID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.rows[sessionID]...), nil
}

func (c *fakeChunkStore) Count(ctx context.Context, sessionID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows[sessionID]), nil
}

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, audioBase64, mimeType, rollingContext string) (string, error) {
	return "a transcribed sentence", nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	return "a summary", nil
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := registry.New(registry.Config{
		MinFragmentBytes: 1,
		MaxSessionBytes:  1 << 20,
		MinStitchBytes:   1,
		StoreRoot:        t.TempDir(),
	}, registry.Dependencies{
		Store:         newFakeFragmentStore(),
		SessionDB:     newFakeSessionStore(),
		ChunkDB:       newFakeChunkStore(),
		Stitcher:      stitcher.New(stitcher.Config{}),
		Gateway:       transcription.New(fakeTranscriber{}, transcription.Config{}),
		Summarizer:    fakeSummarizer{},
		Broadcaster:   fanout.New(),
		Scheduler:     scheduler.New(50 * time.Millisecond),
		ContextChunks: 5,
	})

	router := NewRouter(reg, nil, nil)
	return httptest.NewServer(router)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestStartRecordingAcksAndAudioChunkRoundTrip(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: typeStartRecording, SessionID: "s1", UserID: "u1"}))

	var started outboundSimple
	require.NoError(t, conn.ReadJSON(&started))
	require.Equal(t, typeRecordingStarted, started.Type)
	require.Equal(t, "s1", started.SessionID)

	require.NoError(t, conn.WriteJSON(inboundMessage{
		Type:      typeAudioChunk,
		SessionID: "s1",
		AudioData: "aGVsbG8gd29ybGQgdGhpcyBpcyBhIHRlc3QgZnJhZ21lbnQ=",
		MimeType:  "audio/webm",
		ChunkID:   "c1",
	}))

	found := false
	for i := 0; i < 10 && !found; i++ {
		var raw map[string]any
		require.NoError(t, conn.ReadJSON(&raw))
		if raw["type"] == typeChunkReceived {
			require.Equal(t, "c1", raw["chunkId"])
			found = true
		}
	}
	require.True(t, found, "expected a chunk-received ack")
}

func TestUnknownSessionReturnsErrorMessage(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: typePauseRecording, SessionID: "missing"}))

	var errMsg outboundError
	require.NoError(t, conn.ReadJSON(&errMsg))
	require.Equal(t, typeError, errMsg.Type)
}

func TestStopRecordingDrainsAndAcks(t *testing.T) {
	server := testServer(t)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: typeStartRecording, SessionID: "s2", UserID: "u1"}))
	var started outboundSimple
	require.NoError(t, conn.ReadJSON(&started))

	require.NoError(t, conn.WriteJSON(inboundMessage{
		Type:      typeAudioChunk,
		SessionID: "s2",
		AudioData: "aGVsbG8gd29ybGQgdGhpcyBpcyBhIHRlc3QgZnJhZ21lbnQ=",
		MimeType:  "audio/webm",
	}))
	for i := 0; i < 10; i++ {
		var raw map[string]any
		require.NoError(t, conn.ReadJSON(&raw))
		if raw["type"] == typeChunkReceived {
			break
		}
	}

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: typeStopRecording, SessionID: "s2"}))

	// Stop fans out several broadcast events (processing/completed status,
	// the completed transcript) concurrently with its own direct ack; read
	// until a recording-completed-typed message shows up, in whichever
	// order it arrives.
	found := false
	for i := 0; i < 10 && !found; i++ {
		var raw map[string]any
		require.NoError(t, conn.ReadJSON(&raw))
		if raw["type"] == typeRecordingCompleted {
			found = true
		}
	}
	require.True(t, found, "expected a recording-completed message")
}

func TestHealthzReportsDBStatusAndActiveSessions(t *testing.T) {
	reg := registry.New(registry.Config{
		MinFragmentBytes: 1,
		MaxSessionBytes:  1 << 20,
		MinStitchBytes:   1,
		StoreRoot:        t.TempDir(),
	}, registry.Dependencies{
		Store:         newFakeFragmentStore(),
		SessionDB:     newFakeSessionStore(),
		ChunkDB:       newFakeChunkStore(),
		Stitcher:      stitcher.New(stitcher.Config{}),
		Gateway:       transcription.New(fakeTranscriber{}, transcription.Config{}),
		Summarizer:    fakeSummarizer{},
		Broadcaster:   fanout.New(),
		Scheduler:     scheduler.New(50 * time.Millisecond),
		ContextChunks: 5,
	})
	require.NoError(t, reg.InitializeSession(context.Background(), "s1", "u1"))

	pingCalls := 0
	router := NewRouter(reg, nil, func() error {
		pingCalls++
		return nil
	})
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, "ok", body.DB)
	require.Equal(t, 1, body.ActiveSessions)
	require.Equal(t, 1, pingCalls)
}

func TestHealthzReportsDegradedWhenDBUnreachable(t *testing.T) {
	reg := registry.New(registry.Config{StoreRoot: t.TempDir()}, registry.Dependencies{
		Store:       newFakeFragmentStore(),
		SessionDB:   newFakeSessionStore(),
		ChunkDB:     newFakeChunkStore(),
		Stitcher:    stitcher.New(stitcher.Config{}),
		Gateway:     transcription.New(fakeTranscriber{}, transcription.Config{}),
		Summarizer:  fakeSummarizer{},
		Broadcaster: fanout.New(),
		Scheduler:   scheduler.New(50 * time.Millisecond),
	})

	router := NewRouter(reg, nil, func() error { return errors.New("db unreachable") })
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "degraded", body.Status)
	require.Equal(t, "unreachable", body.DB)
}
