package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestArmFiresOnceAfterPeriod(t *testing.T) {
	s := New(20 * time.Millisecond)
	var fired int32

	s.Arm("sess-A", func() { atomic.AddInt32(&fired, 1) })
	require.True(t, s.Armed("sess-A"))

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&fired))
	require.False(t, s.Armed("sess-A"))
}

func TestArmIsNoOpWhileAlreadyArmed(t *testing.T) {
	s := New(50 * time.Millisecond)
	var fired int32

	s.Arm("sess-B", func() { atomic.AddInt32(&fired, 1) })
	s.Arm("sess-B", func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestDisarmPreventsFiring(t *testing.T) {
	s := New(20 * time.Millisecond)
	var fired int32

	s.Arm("sess-C", func() { atomic.AddInt32(&fired, 1) })
	s.Disarm("sess-C")

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
