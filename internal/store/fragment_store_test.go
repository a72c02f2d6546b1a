package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendWritesDurableFile(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, 7*24*time.Hour)
	require.NoError(t, err)
	defer s.Close()

	path, err := s.Append(context.Background(), "sess-A", []byte("hello"), "webm")
	require.NoError(t, err)
	require.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestTakeBatchAndRestorePreserveOrder(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, 7*24*time.Hour)
	require.NoError(t, err)
	defer s.Close()

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := s.Append(context.Background(), "sess-B", []byte{byte(i)}, "webm")
		require.NoError(t, err)
		paths = append(paths, p)
		time.Sleep(time.Millisecond)
	}

	batch, err := s.TakeBatch("sess-B", 2)
	require.NoError(t, err)
	require.Equal(t, paths[:2], batch)

	require.NoError(t, s.Restore("sess-B", batch))
	remaining, err := s.TakeBatch("sess-B", 3)
	require.NoError(t, err)
	require.Equal(t, paths, remaining)
}

func TestListEnumeratesArrivalOrder(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, 7*24*time.Hour)
	require.NoError(t, err)
	defer s.Close()

	var appended []string
	for i := 0; i < 3; i++ {
		p, err := s.Append(context.Background(), "sess-C", []byte{byte(i)}, "webm")
		require.NoError(t, err)
		appended = append(appended, p)
		time.Sleep(time.Millisecond)
	}

	paths, err := s.List("sess-C")
	require.NoError(t, err)
	require.Len(t, paths, 3)
	require.Equal(t, appended, paths)
}

func TestPurgeSessionRemovesDirectory(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, 7*24*time.Hour)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(context.Background(), "sess-D", []byte("x"), "webm")
	require.NoError(t, err)

	require.NoError(t, s.PurgeSession("sess-D", false))
	_, err = os.Stat(filepath.Join(root, "sess-D"))
	require.True(t, os.IsNotExist(err))
}
