package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildTranscriptDropsBoilerplateChunks(t *testing.T) {
	r, _, chunkDB := testRegistry(t)
	ctx := context.Background()

	chunkDB.rows["s1"] = []string{
		"[Speaker 1]: hello, welcome to the call",
		"[silence]",
		"[Speaker 1]: let's get started then",
		"[inaudible]",
		"[unclear]",
	}

	transcript, err := r.buildTranscript(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t,
		"[Speaker 1]: hello, welcome to the call\n\n[Speaker 1]: let's get started then",
		transcript,
	)
}

func TestBuildTranscriptAllBoilerplateYieldsEmptyTranscript(t *testing.T) {
	r, _, chunkDB := testRegistry(t)
	ctx := context.Background()

	chunkDB.rows["s1"] = []string{"[silence]", "[silence]"}

	transcript, err := r.buildTranscript(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, transcript)
}
