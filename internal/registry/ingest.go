package registry

import (
	"context"

	"scribecore/internal/domain"
)

// AddFragment implements the ingest buffer contract (§4.2). Two concurrent
// calls for the same session are serialized by the entry's mutex; across
// sessions they proceed in parallel.
func (r *Registry) AddFragment(ctx context.Context, sessionID string, payload []byte, container domain.ContainerHint, energy *float64, fragmentID string) error {
	e, ok := r.getEntry(sessionID)
	if !ok {
		return domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != domain.StateRecording && e.state != domain.StatePaused {
		return domain.ErrBadState
	}

	// Guard: near-empty tail fragments destabilize the stitcher and are
	// silently dropped (§4.2); they never count against the cap (§3
	// invariant 2).
	if int64(len(payload)) < r.cfg.MinFragmentBytes {
		if r.metrics != nil {
			r.metrics.FragmentsRejected.WithLabelValues("too_small").Inc()
		}
		return nil
	}

	if e.cumulativeBytes+int64(len(payload)) > r.cfg.MaxSessionBytes {
		if r.metrics != nil {
			r.metrics.FragmentsRejected.WithLabelValues("overflow").Inc()
		}
		return domain.ErrBufferOverflow
	}

	path, err := r.store.Append(ctx, sessionID, payload, container.Ext())
	if err != nil {
		return domain.ErrIO
	}

	e.pending = append(e.pending, pendingFragment{
		Payload:   payload,
		Path:      path,
		Container: container,
		Energy:    energy,
		Length:    len(payload),
	})
	e.cumulativeBytes += int64(len(payload))

	if r.metrics != nil {
		r.metrics.FragmentsIngested.Inc()
		r.metrics.FragmentBytes.Add(float64(len(payload)))
	}

	if e.state == domain.StateRecording {
		r.armIfNeeded(e)
	}

	return nil
}
