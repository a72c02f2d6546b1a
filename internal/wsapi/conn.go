package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scribecore/internal/domain"
	"scribecore/internal/log"
	"scribecore/internal/ports"
	"scribecore/internal/registry"
)

const (
	pingInterval = 10 * time.Second
	pongWait     = 20 * time.Second
	writeWait    = 5 * time.Second
)

// connection owns one client websocket and its own read and write loops, in
// the shape of the teacher's streaming provider: a buffered outbound
// channel, a done channel closed exactly once, and a WaitGroup joining both
// loops before cleanup runs.
type connection struct {
	ws  *websocket.Conn
	reg *registry.Registry

	out  chan any
	done chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once

	joinedMu sync.Mutex
	joined   map[string]func() // sessionID -> unsubscribe
}

func newConnection(ws *websocket.Conn, reg *registry.Registry) *connection {
	return &connection{
		ws:     ws,
		reg:    reg,
		out:    make(chan any, 64),
		done:   make(chan struct{}),
		joined: make(map[string]func()),
	}
}

// serve blocks until the connection closes, running the read and write
// loops concurrently.
func (c *connection) serve() {
	logger := log.WithComponent("wsapi")

	c.ws.SetReadDeadline(time.Now().Add(pongWait))

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	c.wg.Wait()

	c.joinedMu.Lock()
	for _, unsubscribe := range c.joined {
		unsubscribe()
	}
	c.joinedMu.Unlock()

	logger.Debug().Msg("connection closed")
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *connection) send(msg any) {
	select {
	case c.out <- msg:
	case <-c.done:
	default:
		// outbound buffer full; drop rather than block the read loop
	}
}

func (c *connection) readLoop() {
	defer c.wg.Done()
	defer c.close()

	logger := log.WithComponent("wsapi")

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(newError("malformed message"))
			continue
		}

		c.handle(context.Background(), msg)
	}
}

func (c *connection) writeLoop() {
	defer c.wg.Done()
	defer c.close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(outboundSimple{Type: typePing}); err != nil {
				return
			}
		case msg, ok := <-c.out:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func (c *connection) handle(ctx context.Context, msg inboundMessage) {
	switch msg.Type {
	case typeStartRecording:
		c.handleStart(ctx, msg)
	case typeAudioChunk:
		c.handleAudioChunk(ctx, msg)
	case typePauseRecording:
		c.handleTransition(ctx, msg.SessionID, c.reg.Pause, typeRecordingPaused)
	case typeResumeRecording:
		c.handleTransition(ctx, msg.SessionID, c.reg.Resume, typeRecordingResumed)
	case typeStopRecording:
		c.handleStop(ctx, msg.SessionID)
	case typeCancelRecording:
		c.handleTransition(ctx, msg.SessionID, c.reg.Cancel, typeRecordingCancelled)
	case typeJoinSession:
		c.handleJoin(msg.SessionID)
	case typePong:
		// liveness acknowledged; readLoop already refreshed the read deadline
	default:
		c.send(newError("unknown message type: " + msg.Type))
	}
}

func (c *connection) handleStart(ctx context.Context, msg inboundMessage) {
	if msg.SessionID == "" || msg.UserID == "" {
		c.send(newError("start-recording requires sessionId and userId"))
		return
	}
	if err := c.reg.InitializeSession(ctx, msg.SessionID, msg.UserID); err != nil {
		c.send(newError(describeErr(err)))
		return
	}
	c.handleJoin(msg.SessionID)
	c.send(outboundSimple{Type: typeRecordingStarted, SessionID: msg.SessionID})
}

func (c *connection) handleAudioChunk(ctx context.Context, msg inboundMessage) {
	if msg.SessionID == "" || msg.AudioData == "" {
		c.send(newError("audio-chunk requires sessionId and audioData"))
		return
	}
	payload, err := decodeAudio(msg.AudioData)
	if err != nil {
		c.send(newError("audio-chunk: malformed base64 payload"))
		return
	}

	container := domain.ContainerFromMIME(msg.MimeType)
	if err := c.reg.AddFragment(ctx, msg.SessionID, payload, container, msg.AudioLevel, msg.ChunkID); err != nil {
		c.send(newError(describeErr(err)))
		return
	}
	c.send(outboundSimple{Type: typeChunkReceived, SessionID: msg.SessionID, ChunkID: msg.ChunkID})
}

func (c *connection) handleTransition(ctx context.Context, sessionID string, fn func(context.Context, string) error, ackType string) {
	if sessionID == "" {
		c.send(newError("sessionId is required"))
		return
	}
	if err := fn(ctx, sessionID); err != nil {
		c.send(newError(describeErr(err)))
		return
	}
	c.send(outboundSimple{Type: ackType, SessionID: sessionID})
}

func (c *connection) handleStop(ctx context.Context, sessionID string) {
	if sessionID == "" {
		c.send(newError("sessionId is required"))
		return
	}
	if err := c.reg.Stop(ctx, sessionID); err != nil {
		c.send(newError(describeErr(err)))
		return
	}
	c.send(outboundSimple{Type: typeRecordingCompleted, SessionID: sessionID})
}

func (c *connection) handleJoin(sessionID string) {
	if sessionID == "" {
		c.send(newError("sessionId is required"))
		return
	}

	c.joinedMu.Lock()
	if _, already := c.joined[sessionID]; already {
		c.joinedMu.Unlock()
		return
	}
	ch, unsubscribe := c.reg.Subscribe(sessionID)
	c.joined[sessionID] = unsubscribe
	c.joinedMu.Unlock()

	c.wg.Add(1)
	go c.forward(sessionID, ch)
}

func (c *connection) forward(sessionID string, ch <-chan any) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			c.send(translate(sessionID, event))
		}
	}
}

func translate(sessionID string, event any) any {
	switch ev := event.(type) {
	case ports.LiveUpdate:
		return outboundLiveTranscript{
			Type:      typeLiveTranscript,
			SessionID: ev.SessionID,
			NewChunk: liveChunk{
				ChunkIndex: ev.ChunkIndex,
				Text:       ev.Text,
				Timestamp:  ev.TimestampMs,
			},
		}
	case ports.StatusUpdate:
		return outboundStatus{Type: typeStatusUpdate, SessionID: ev.SessionID, Status: ev.Status}
	case ports.CompletedUpdate:
		return outboundCompleted{
			Type:       typeRecordingCompleted,
			SessionID:  ev.SessionID,
			Transcript: ev.Transcript,
			Summary:    ev.Summary,
		}
	default:
		return newError("unrecognized internal event")
	}
}

func describeErr(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "session not found"
	case errors.Is(err, domain.ErrBufferOverflow):
		return "Buffer overflow: Session exceeds maximum size"
	case errors.Is(err, domain.ErrBadState):
		return "operation is not valid for the session's current state"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "session already exists"
	case errors.Is(err, domain.ErrIO):
		return "failed to persist audio fragment"
	default:
		return "internal error"
	}
}
