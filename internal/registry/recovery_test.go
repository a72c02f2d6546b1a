package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"scribecore/internal/domain"
)

// TestRecoverSeedsChunkCountFromPersistedRows reproduces the post-restart
// scenario where a session already has two persisted chunks (index 0, 1)
// before the process exits; Recover must resume numbering at 2, not 0, or
// the next tick would re-use chunk_index 0 (§3 invariant 3, §8 property 9).
func TestRecoverSeedsChunkCountFromPersistedRows(t *testing.T) {
	r, sessionDB, chunkDB := testRegistry(t)
	ctx := context.Background()

	sessionDB.rows["s1"] = string(domain.StateRecording)
	chunkDB.rows["s1"] = []string{"[Speaker 1]: first chunk", "[Speaker 1]: second chunk"}

	require.NoError(t, r.Recover(ctx))

	e, ok := r.getEntry("s1")
	require.True(t, ok)
	e.mu.Lock()
	count := e.chunkCount
	e.mu.Unlock()
	require.Equal(t, 2, count)
}

func TestRecoverLeavesChunkCountAtZeroWithNoPersistedRows(t *testing.T) {
	r, sessionDB, _ := testRegistry(t)
	ctx := context.Background()

	sessionDB.rows["s1"] = string(domain.StateRecording)

	require.NoError(t, r.Recover(ctx))

	e, ok := r.getEntry("s1")
	require.True(t, ok)
	e.mu.Lock()
	count := e.chunkCount
	e.mu.Unlock()
	require.Equal(t, 0, count)
}
