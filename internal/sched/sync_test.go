package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startAndDispatch launches t's goroutine body after the scheduler
// delivers its first wake signal, the minimal run loop every thread in
// these tests needs: NewThread leaves a thread Blocked until something
// calls Unblock on it.
func startAndDispatch(s *Scheduler, t *Thread, body func()) {
	go func() {
		<-t.wake
		s.SetCurrent(t)
		body()
	}()
}

func TestSemaphoreBlocksUntilSignaled(t *testing.T) {
	s := New(PolicyPriorityDonation)
	sem := s.NewSemaphore(0)

	waiter := s.NewThread("waiter", PriDefault)
	acquired := make(chan struct{})
	startAndDispatch(s, waiter, func() {
		sem.Down(waiter)
		close(acquired)
	})
	s.Unblock(waiter)

	select {
	case <-acquired:
		t.Fatal("Down returned before Up was called")
	case <-time.After(20 * time.Millisecond):
	}

	sem.Up()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Down never returned after Up")
	}
}

func TestSemaphoreWakesHighestPriorityWaiter(t *testing.T) {
	s := New(PolicyPriorityDonation)
	sem := s.NewSemaphore(0)

	low := s.NewThread("low", 5)
	high := s.NewThread("high", 50)

	order := make(chan string, 2)
	startAndDispatch(s, low, func() {
		sem.Down(low)
		order <- "low"
	})
	startAndDispatch(s, high, func() {
		sem.Down(high)
		order <- "high"
	})
	s.Unblock(low)
	s.Unblock(high)
	time.Sleep(20 * time.Millisecond) // let both register as waiters

	sem.Up()
	require.Equal(t, "high", <-order)
	sem.Up()
	require.Equal(t, "low", <-order)
}

func TestLockDonationChainBoostsHolder(t *testing.T) {
	s := New(PolicyPriorityDonation)
	lock := s.NewLock()

	low := s.NewThread("low", 10)
	high := s.NewThread("high", 50)

	lowAcquired := make(chan struct{})
	release := make(chan struct{})
	lowDone := make(chan struct{})
	startAndDispatch(s, low, func() {
		lock.Acquire(low)
		close(lowAcquired)
		<-release
		lock.Release(low)
		close(lowDone)
	})
	s.Unblock(low)
	<-lowAcquired

	highAcquired := make(chan struct{})
	startAndDispatch(s, high, func() {
		lock.Acquire(high)
		close(highAcquired)
	})
	s.Unblock(high)

	require.Eventually(t, func() bool {
		return low.EffectivePriority() == high.BasePriority()
	}, time.Second, time.Millisecond, "low thread was never boosted to high's priority")

	close(release)
	<-lowDone
	<-highAcquired

	assert.Equal(t, high, lock.Holder())
	assert.Equal(t, low.BasePriority(), low.EffectivePriority(), "donation should be released along with the lock")
}

func TestCondWaitSignal(t *testing.T) {
	s := New(PolicyPriorityDonation)
	lock := s.NewLock()
	cond := s.NewCond(lock)

	waiter := s.NewThread("waiter", PriDefault)
	signaler := s.NewThread("signaler", PriDefault)

	woken := make(chan struct{})
	startAndDispatch(s, waiter, func() {
		lock.Acquire(waiter)
		cond.Wait(waiter)
		lock.Release(waiter)
		close(woken)
	})
	s.Unblock(waiter)
	time.Sleep(20 * time.Millisecond) // let waiter block on the condvar

	startAndDispatch(s, signaler, func() {
		lock.Acquire(signaler)
		cond.Signal()
		lock.Release(signaler)
	})
	s.Unblock(signaler)

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("Signal never woke the waiter")
	}
}
