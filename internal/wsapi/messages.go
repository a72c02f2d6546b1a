package wsapi

// inboundMessage covers every client->server message type in one flat
// struct (§6); unused fields for a given Type are simply absent from the
// wire payload and left at their zero value.
type inboundMessage struct {
	Type       string  `json:"type"`
	SessionID  string  `json:"sessionId"`
	UserID     string  `json:"userId,omitempty"`
	MimeType   string  `json:"mimeType,omitempty"`
	AudioData  string  `json:"audioData,omitempty"`
	AudioLevel *float64 `json:"audioLevel,omitempty"`
	ChunkID    string  `json:"chunkId,omitempty"`
}

const (
	typeStartRecording  = "start-recording"
	typeAudioChunk      = "audio-chunk"
	typePauseRecording  = "pause-recording"
	typeResumeRecording = "resume-recording"
	typeStopRecording   = "stop-recording"
	typeCancelRecording = "cancel-recording"
	typeJoinSession     = "join-session"
	typePong            = "pong"
)

const (
	typeRecordingStarted   = "recording-started"
	typeChunkReceived      = "chunk-received"
	typeRecordingPaused    = "recording-paused"
	typeRecordingResumed   = "recording-resumed"
	typeRecordingCompleted = "recording-completed"
	typeRecordingCancelled = "recording-cancelled"
	typeLiveTranscript     = "live-transcript-update"
	typeStatusUpdate       = "status-update"
	typeError              = "error"
	typePing               = "ping"
)

type outboundSimple struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	ChunkID   string `json:"chunkId,omitempty"`
}

type outboundError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type liveChunk struct {
	ChunkIndex int    `json:"chunkIndex"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

type outboundLiveTranscript struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	NewChunk  liveChunk `json:"newChunk"`
}

type outboundStatus struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type outboundCompleted struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	Transcript string `json:"transcript"`
	Summary    string `json:"summary"`
}

func newError(message string) outboundError {
	return outboundError{Type: typeError, Message: message}
}
