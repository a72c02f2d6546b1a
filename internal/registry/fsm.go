package registry

import "scribecore/internal/domain"

// transition describes one legal lifecycle move (§4.1).
type transition struct {
	from  domain.SessionState
	event domain.SessionEvent
	to    domain.SessionState
}

var transitions = []transition{
	{domain.StateRecording, domain.EventPause, domain.StatePaused},
	{domain.StateRecording, domain.EventStop, domain.StateProcessing},
	{domain.StateRecording, domain.EventCancel, domain.StateCancelled},

	{domain.StatePaused, domain.EventResume, domain.StateRecording},
	{domain.StatePaused, domain.EventStop, domain.StateProcessing},
	{domain.StatePaused, domain.EventCancel, domain.StateCancelled},

	{domain.StateProcessing, domain.EventFinalize, domain.StateCompleted},
	{domain.StateProcessing, domain.EventCancel, domain.StateCancelled},

	// crash-recovery replay re-enters Recording from either in-flight state
	{domain.StateRecording, domain.EventRecover, domain.StateRecording},
	{domain.StatePaused, domain.EventRecover, domain.StateRecording},
}

var transitionIndex = buildIndex()

func buildIndex() map[domain.SessionState]map[domain.SessionEvent]domain.SessionState {
	idx := make(map[domain.SessionState]map[domain.SessionEvent]domain.SessionState)
	for _, tr := range transitions {
		if idx[tr.from] == nil {
			idx[tr.from] = make(map[domain.SessionEvent]domain.SessionState)
		}
		idx[tr.from][tr.event] = tr.to
	}
	return idx
}

// fire returns the next state for (from, event), or ok=false if the
// transition is illegal — callers surface domain.ErrBadState in that case.
func fire(from domain.SessionState, event domain.SessionEvent) (domain.SessionState, bool) {
	byEvent, ok := transitionIndex[from]
	if !ok {
		return "", false
	}
	to, ok := byEvent[event]
	return to, ok
}
