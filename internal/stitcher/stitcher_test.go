package stitcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"scribecore/internal/domain"
)

func TestCombinedHashIsDeterministic(t *testing.T) {
	frags := []Fragment{
		{Payload: []byte("a"), Container: domain.ContainerWebMOpus},
		{Payload: []byte("b"), Container: domain.ContainerWebMOpus},
	}
	h1 := CombinedHash(frags)
	h2 := CombinedHash(frags)
	require.Equal(t, h1, h2)

	frags[0].Payload = []byte("c")
	require.NotEqual(t, h1, CombinedHash(frags))
}

func TestStitchFallsBackToRawBytesWhenToolsFail(t *testing.T) {
	script := writeScript(t, "ffmpeg.sh", "#!/usr/bin/env bash\nexit 1\n")
	probeScript := writeScript(t, "ffprobe.sh", "#!/usr/bin/env bash\nexit 1\n")

	s := New(Config{FFmpegCommand: script, FFprobeCommand: probeScript})

	frags := []Fragment{
		{Payload: []byte("raw-bytes"), Container: domain.ContainerWebMOpus},
	}
	result, err := s.Stitch(context.Background(), "sess-X", frags, "")
	require.NoError(t, err)
	require.Equal(t, []byte("raw-bytes"), result.MP3)
	require.Equal(t, CombinedHash(frags), result.Hash)
}

func TestStitchUsesStreamingPipeOutputWhenFFmpegSucceeds(t *testing.T) {
	script := writeScript(t, "ffmpeg.sh", "#!/usr/bin/env bash\nprintf 'stitched-mp3-bytes'\n")
	probeScript := writeScript(t, "ffprobe.sh", "#!/usr/bin/env bash\nprintf '30.0'\n")

	s := New(Config{FFmpegCommand: script, FFprobeCommand: probeScript})

	frags := []Fragment{
		{Payload: []byte("single-fragment"), Container: domain.ContainerMP3},
	}
	result, err := s.Stitch(context.Background(), "sess-Y", frags, "")
	require.NoError(t, err)
	require.Equal(t, []byte("stitched-mp3-bytes"), result.MP3)
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o700))
	return path
}
