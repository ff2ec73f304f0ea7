package sched

import "sync"

// Semaphore is a counting semaphore whose waiter list is served in
// priority order, matching spec.md §4.2's FIFO-in-priority-order
// requirement.
type Semaphore struct {
	s   *Scheduler
	mu  sync.Mutex
	val int
	wq  []*Thread
}

// NewSemaphore creates a semaphore with the given initial value.
func (s *Scheduler) NewSemaphore(value int) *Semaphore {
	return &Semaphore{s: s, val: value}
}

// Down decrements the semaphore, blocking the calling thread if the
// value is already zero.
func (sem *Semaphore) Down(t *Thread) {
	sem.mu.Lock()
	for sem.val == 0 {
		sem.wq = append(sem.wq, t)
		sem.mu.Unlock()
		sem.s.Block(t)
		sem.mu.Lock()
	}
	sem.val--
	sem.mu.Unlock()
}

// Up increments the semaphore and, if threads are waiting, unblocks the
// highest-effective-priority waiter.
func (sem *Semaphore) Up() {
	sem.mu.Lock()
	sem.val++
	var woken *Thread
	if len(sem.wq) > 0 {
		best := 0
		for i, w := range sem.wq {
			if w.EffectivePriority() > sem.wq[best].EffectivePriority() {
				best = i
			}
		}
		woken = sem.wq[best]
		sem.wq = append(sem.wq[:best], sem.wq[best+1:]...)
	}
	sem.mu.Unlock()
	if woken != nil {
		sem.s.Unblock(woken)
	}
}

// Lock is a priority-donating mutex. Exactly one thread may hold it at a
// time; while a higher-priority thread waits on it, the holder's
// effective priority is boosted to match, transitively across chained
// locks, per spec.md §4.1.
type Lock struct {
	s       *Scheduler
	mu      sync.Mutex
	holder  *Thread
	waiters []*Thread
}

// NewLock creates an unheld lock.
func (s *Scheduler) NewLock() *Lock {
	return &Lock{s: s}
}

// Holder returns the thread currently holding l, or nil.
func (l *Lock) Holder() *Thread {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

// Acquire blocks until l is free, then takes it. If l is already held,
// the calling thread donates its effective priority to the holder (and
// transitively to whatever the holder is itself waiting on).
func (l *Lock) Acquire(t *Thread) {
	for {
		l.mu.Lock()
		if l.holder == nil || l.holder == t {
			// l.holder == t happens when Release handed the lock directly to
			// this thread as the chosen next waiter.
			l.holder = t
			l.mu.Unlock()
			t.mu.Lock()
			t.waitingOn = nil
			t.mu.Unlock()
			return
		}
		holder := l.holder
		l.waiters = append(l.waiters, t)
		l.mu.Unlock()

		t.mu.Lock()
		t.waitingOn = l
		t.mu.Unlock()
		donateChain(holder, t)

		l.s.Block(t)
		// Re-check: we were unblocked because the lock was released to us
		// specifically, or merely because of spurious donation bookkeeping.
	}
}

// donateChain adds waiter as a donor of holder and walks the chain of
// locks holder itself may be blocked on, recomputing effective priority
// at every link — spec.md's "transferred transitively across a chain of
// nested lock holders".
func donateChain(holder, waiter *Thread) {
	seen := map[*Thread]bool{}
	cur := holder
	for cur != nil && !seen[cur] {
		seen[cur] = true
		cur.mu.Lock()
		cur.donors[waiter] = true
		cur.recomputeEffective()
		next := cur.waitingOn
		cur.mu.Unlock()
		if next == nil {
			break
		}
		next.mu.Lock()
		nh := next.holder
		next.mu.Unlock()
		cur = nh
	}
}

// Release gives up l, handing it directly to the highest-priority
// waiter (if any) and stripping donations this waiter chain contributed
// to the releaser, per spec.md's release-time donation bookkeeping.
func (l *Lock) Release(t *Thread) {
	l.mu.Lock()
	if l.holder != t {
		l.mu.Unlock()
		return
	}
	var next *Thread
	if len(l.waiters) > 0 {
		best := 0
		for i, w := range l.waiters {
			if w.EffectivePriority() > l.waiters[best].EffectivePriority() {
				best = i
			}
		}
		next = l.waiters[best]
		l.waiters = append(l.waiters[:best], l.waiters[best+1:]...)
	}
	l.holder = next
	remaining := append([]*Thread(nil), l.waiters...)
	l.mu.Unlock()

	t.mu.Lock()
	for d := range t.donors {
		if d.State() != Blocked || d.currentWaitLock() != l {
			continue
		}
		delete(t.donors, d)
	}
	t.recomputeEffective()
	t.mu.Unlock()

	if next != nil {
		// Any waiter still queued on l donated to t; now that next holds
		// l, re-run donation onto next (and transitively beyond) so the
		// donation invariant holds at the new holder too, per spec.md's
		// "transferred transitively across a chain of nested lock
		// holders".
		for _, w := range remaining {
			donateChain(next, w)
		}
		l.s.Unblock(next)
	}
}

func (t *Thread) currentWaitLock() *Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waitingOn
}

// Cond is a condition variable tied to an external Lock, following the
// classic monitor pattern: callers must hold lock across Wait/Signal.
type Cond struct {
	s     *Scheduler
	lock  *Lock
	mu    sync.Mutex
	queue []*Semaphore
}

// NewCond creates a condition variable guarded by lock.
func (s *Scheduler) NewCond(lock *Lock) *Cond {
	return &Cond{s: s, lock: lock}
}

// Wait atomically releases the condition's lock and blocks the calling
// thread, then reacquires the lock before returning.
func (c *Cond) Wait(t *Thread) {
	waiter := c.s.NewSemaphore(0)
	c.mu.Lock()
	c.queue = append(c.queue, waiter)
	c.mu.Unlock()

	c.lock.Release(t)
	waiter.Down(t)
	c.lock.Acquire(t)
}

// Signal wakes the longest-waiting blocked thread, if any.
func (c *Cond) Signal() {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	w := c.queue[0]
	c.queue = c.queue[1:]
	c.mu.Unlock()
	w.Up()
}

// Broadcast wakes every thread currently waiting on c.
func (c *Cond) Broadcast() {
	c.mu.Lock()
	q := c.queue
	c.queue = nil
	c.mu.Unlock()
	for _, w := range q {
		w.Up()
	}
}
