package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyQueueOrderedByEffectivePriority(t *testing.T) {
	s := New(PolicyPriorityDonation)
	low := s.NewThread("low", 5)
	mid := s.NewThread("mid", 20)
	high := s.NewThread("high", 40)

	s.Unblock(low)
	s.Unblock(mid)
	s.Unblock(high)

	require.Equal(t, high, s.PopReady())
	require.Equal(t, mid, s.PopReady())
	require.Equal(t, low, s.PopReady())
	require.Nil(t, s.PopReady())
}

func TestShouldPreemptDetectsHigherPriorityReady(t *testing.T) {
	s := New(PolicyPriorityDonation)
	current := s.NewThread("current", 10)
	s.SetCurrent(current)

	assert.False(t, s.ShouldPreempt(current))

	higher := s.NewThread("higher", 40)
	s.Unblock(higher)
	assert.True(t, s.ShouldPreempt(current))
}

func TestMLFQSRecentCPUIncreasesWhileRunning(t *testing.T) {
	s := New(PolicyMLFQS)
	cur := s.NewThread("cur", PriDefault)
	s.SetCurrent(cur)

	for i := 0; i < 4; i++ {
		s.Tick()
	}

	assert.Greater(t, int64(cur.recentCPU), int64(0))
}

func TestMLFQSPriorityRecomputationLowersCPUHogPriority(t *testing.T) {
	assert.Equal(t, PriMax, mlfqsPriority(0, NiceDefault))
	lowered := mlfqsPriority(itox(80), NiceDefault)
	assert.Less(t, lowered, PriMax)
	assert.GreaterOrEqual(t, lowered, PriMin)
}

func TestExitWakesWaitExit(t *testing.T) {
	s := New(PolicyPriorityDonation)
	th := s.NewThread("child", PriDefault)
	s.Exit(th, 7)
	assert.Equal(t, 7, WaitExit(th))
}
