package fanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scribecore/internal/ports"
)

func TestSubscribeReceivesPublishedUpdate(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe("sess-A")
	defer unsubscribe()

	b.PublishUpdate(ports.LiveUpdate{SessionID: "sess-A", ChunkIndex: 0, Text: "hello"})

	select {
	case event := <-ch:
		update, ok := event.(ports.LiveUpdate)
		require.True(t, ok)
		require.Equal(t, 0, update.ChunkIndex)
	case <-time.After(time.Second):
		t.Fatal("expected update, got none")
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe("sess-B")
	defer unsubscribe()

	for i := 0; i < 64; i++ {
		b.PublishUpdate(ports.LiveUpdate{SessionID: "sess-B", ChunkIndex: i})
	}

	require.NotEmpty(t, ch)
}

func TestOtherSessionsAreIsolated(t *testing.T) {
	b := New()
	chA, unsubA := b.Subscribe("sess-C")
	defer unsubA()
	chB, unsubB := b.Subscribe("sess-D")
	defer unsubB()

	b.PublishUpdate(ports.LiveUpdate{SessionID: "sess-C", ChunkIndex: 1})

	select {
	case <-chA:
	case <-time.After(time.Second):
		t.Fatal("expected update on sess-C")
	}

	select {
	case <-chB:
		t.Fatal("did not expect update on sess-D")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropClosesAllSubscriberChannels(t *testing.T) {
	b := New()
	ch, _ := b.Subscribe("sess-E")
	b.Drop("sess-E")

	_, ok := <-ch
	require.False(t, ok)
}
