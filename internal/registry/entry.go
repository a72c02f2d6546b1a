package registry

import (
	"sync"
	"time"

	"scribecore/internal/domain"
	"scribecore/internal/stitcher"
)

// pendingFragment is one fragment buffered in memory, awaiting the next
// scheduler tick — its payload, its durable-store path, and its metadata,
// kept in arrival order (§3 "SessionState registry entry").
type pendingFragment struct {
	Payload   []byte
	Path      string
	Container domain.ContainerHint
	Energy    *float64
	Length    int
}

// entry is the runtime-only registry record for one session. A per-entry
// mutex serializes ingest against scheduler ticks so the two never observe
// partial state (§5).
type entry struct {
	mu sync.Mutex

	sessionID string
	userID    string
	state     domain.SessionState

	pending         []pendingFragment
	cumulativeBytes int64

	startTime time.Time

	lastHash   string
	chunkCount int
}

func newEntry(sessionID, userID string) *entry {
	return &entry{
		sessionID: sessionID,
		userID:    userID,
		state:     domain.StateRecording,
		startTime: time.Now(),
	}
}

func (e *entry) getState() domain.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *entry) setState(s domain.SessionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

// toStitchFragments converts the pending buffer into the stitcher's input
// shape, in arrival order.
func toStitchFragments(pending []pendingFragment) []stitcher.Fragment {
	out := make([]stitcher.Fragment, len(pending))
	for i, p := range pending {
		out[i] = stitcher.Fragment{Payload: p.Payload, Container: p.Container}
	}
	return out
}

func averageEnergy(pending []pendingFragment) float64 {
	var sum float64
	var n int
	for _, p := range pending {
		if p.Energy != nil {
			sum += *p.Energy
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func totalBytes(pending []pendingFragment) int64 {
	var total int64
	for _, p := range pending {
		total += int64(p.Length)
	}
	return total
}
