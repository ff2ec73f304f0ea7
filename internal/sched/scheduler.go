package sched

import (
	"sort"
	"sync"

	"kcore/internal/defs"
	"kcore/internal/kstats"
)

// Policy selects between the two interchangeable scheduling policies
// spec.md §4.1 describes.
type Policy int

const (
	PolicyPriorityDonation Policy = iota
	PolicyMLFQS
)

// ticksPerSecond matches the conventional Pintos timer frequency; MLFQS
// recomputation cadence is expressed in terms of it.
const ticksPerSecond = 100

// Scheduler owns the ready queue, sleep queue, and MLFQS accounting. It is
// a singleton per spec.md §9 ("global mutable state... explicitly
// initialized modules with an init -> steady -> shutdown lifecycle").
type Scheduler struct {
	mu sync.Mutex

	policy Policy

	ready []*Thread
	sleep []*Thread // kept sorted by wakeTick ascending

	tick     uint64
	loadAvg  fixed
	all      map[defs.Tid_t]*Thread
	nextTid  defs.Tid_t
	current  *Thread
}

// New creates a Scheduler using the given policy. Call it once at boot;
// this is the "init" phase of the init -> steady -> shutdown lifecycle.
func New(policy Policy) *Scheduler {
	return &Scheduler{
		policy:  policy,
		all:     make(map[defs.Tid_t]*Thread),
		nextTid: 1,
	}
}

// NewThread allocates a thread in the Blocked state (not yet runnable);
// callers insert it into the ready queue once set up (e.g. after its
// goroutine is started) via Unblock.
func (s *Scheduler) NewThread(name string, prio int) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prio < PriMin || prio > PriMax {
		prio = PriDefault
	}
	t := &Thread{
		Tid:      s.nextTid,
		Name:     name,
		state:    Blocked,
		basePrio: prio,
		effPrio:  prio,
		donors:   make(map[*Thread]bool),
		nice:     NiceDefault,
		wake:     make(chan struct{}, 1),
		exitCh:   make(chan struct{}),
	}
	s.nextTid++
	s.all[t.Tid] = t
	kstats.Global.ThreadsCreated.Inc()
	return t
}

// Lookup returns the thread with the given id, if it still exists.
func (s *Scheduler) Lookup(tid defs.Tid_t) (*Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.all[tid]
	return t, ok
}

// Current returns the thread this goroutine is simulating as "running",
// set via SetCurrent by the caller's run loop.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetCurrent marks t as the running thread. Used by a thread's run loop
// immediately after it has been dispatched.
func (s *Scheduler) SetCurrent(t *Thread) {
	s.mu.Lock()
	t.mu.Lock()
	t.state = Running
	t.mu.Unlock()
	s.current = t
	s.mu.Unlock()
	kstats.Global.ContextSwitches.Inc()
}

// readyInsert inserts t into the ready queue, keeping it priority-ordered
// (highest effective priority first; FIFO among equal priorities), per
// spec.md's "priority-ordered list" ready queue.
func (s *Scheduler) readyInsert(t *Thread) {
	ep := t.EffectivePriority()
	i := sort.Search(len(s.ready), func(i int) bool {
		return s.ready[i].EffectivePriority() < ep
	})
	s.ready = append(s.ready, nil)
	copy(s.ready[i+1:], s.ready[i:])
	s.ready[i] = t
}

func (s *Scheduler) readyRemove(t *Thread) {
	for i, r := range s.ready {
		if r == t {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			return
		}
	}
}

// Unblock moves t from Blocked to Ready and enqueues it. If t is a higher
// effective priority than the currently running thread it is dispatched
// immediately (its wake channel is signaled): this models "a thread may
// suspend on ... condition wait" style wakeups needing a reschedule
// check, per spec.md §4.2's ordering guarantee.
func (s *Scheduler) Unblock(t *Thread) {
	s.mu.Lock()
	t.mu.Lock()
	if t.state == Ready || t.state == Running {
		t.mu.Unlock()
		s.mu.Unlock()
		return
	}
	t.state = Ready
	t.mu.Unlock()
	s.readyInsert(t)
	s.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Block marks the calling thread Blocked and parks its goroutine on its
// wake channel until a later Unblock. Callers (semaphore/lock/condvar
// wait, sleep) must not hold any scheduler-adjacent lock when calling
// this, matching spec.md's "callers that attempt to block in an
// interrupt context must be rejected"; here that is enforced by callers
// simply never calling Block from inside mu-protected sections.
func (s *Scheduler) Block(t *Thread) {
	s.mu.Lock()
	t.mu.Lock()
	t.state = Blocked
	t.mu.Unlock()
	if s.current == t {
		s.current = nil
	}
	s.readyRemove(t)
	s.mu.Unlock()

	<-t.wake
	s.SetCurrent(t)
}

// Yield puts the calling thread back on the ready queue at its current
// priority and parks until rescheduled; used for voluntary CPU release
// and at the end of a tick when preemption is due.
func (s *Scheduler) Yield(t *Thread) {
	s.mu.Lock()
	t.mu.Lock()
	t.state = Ready
	t.mu.Unlock()
	if s.current == t {
		s.current = nil
	}
	s.readyInsert(t)
	s.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
	<-t.wake
	s.SetCurrent(t)
}

// PopReady removes and returns the highest-priority ready thread, or nil.
func (s *Scheduler) PopReady() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return nil
	}
	t := s.ready[0]
	s.ready = s.ready[1:]
	return t
}

// ReadyLen reports the number of ready threads plus the running thread,
// if any, the count the MLFQS load-average formula uses.
func (s *Scheduler) ReadyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ready)
	if s.current != nil {
		n++
	}
	return n
}

// Sleep parks the calling thread until wakeTick, inserting it into the
// sleep list in wake-order, matching spec.md's timer-sleep semantics.
func (s *Scheduler) Sleep(t *Thread, wakeTick uint64) {
	s.mu.Lock()
	t.mu.Lock()
	t.state = Blocked
	t.wakeTick = wakeTick
	t.mu.Unlock()
	if s.current == t {
		s.current = nil
	}
	i := sort.Search(len(s.sleep), func(i int) bool { return s.sleep[i].wakeTick > wakeTick })
	s.sleep = append(s.sleep, nil)
	copy(s.sleep[i+1:], s.sleep[i:])
	s.sleep[i] = t
	s.mu.Unlock()

	<-t.wake
	s.SetCurrent(t)
}

// Tick advances the global tick counter by one, waking any threads whose
// sleep deadline has arrived, and — under the MLFQS policy — updating
// recent_cpu/load_avg/priority per spec.md §4.1's MLFQS formulas
// (transliterated from the Pintos fixed-point arithmetic).
func (s *Scheduler) Tick() {
	s.mu.Lock()
	s.tick++
	tick := s.tick
	cur := s.current
	ready := len(s.ready)
	if cur != nil {
		ready++
	}

	var due []*Thread
	i := 0
	for i < len(s.sleep) && s.sleep[i].wakeTick <= tick {
		due = append(due, s.sleep[i])
		i++
	}
	s.sleep = s.sleep[i:]

	policy := s.policy
	if policy == PolicyMLFQS {
		if cur != nil {
			cur.mu.Lock()
			cur.recentCPU = addxn(cur.recentCPU, 1)
			cur.mu.Unlock()
		}
		if tick%ticksPerSecond == 0 {
			s.recomputeLoadAvgLocked(ready)
			for _, t := range s.all {
				t.mu.Lock()
				t.recentCPU = mlfqsRecentCPU(s.loadAvg, t.recentCPU, t.nice)
				t.mu.Unlock()
			}
		}
		if tick%4 == 0 {
			for _, t := range s.all {
				t.mu.Lock()
				t.basePrio = mlfqsPriority(t.recentCPU, t.nice)
				t.recomputeEffective()
				t.mu.Unlock()
			}
			s.ready = nil
			for _, t := range s.all {
				if t.State() == Ready {
					s.readyInsert(t)
				}
			}
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.Unblock(t)
	}
}

// recomputeLoadAvgLocked updates load_avg using the standard Pintos
// formula: (59/60)*load_avg + (1/60)*ready_threads. Caller must hold mu.
func (s *Scheduler) recomputeLoadAvgLocked(readyThreads int) {
	fiftyNineSixtieths := divxy(itox(59), itox(60))
	oneSixtieth := divxy(itox(1), itox(60))
	s.loadAvg = mulxy(fiftyNineSixtieths, s.loadAvg) + mulxn(oneSixtieth, readyThreads)
}

// mlfqsRecentCPU computes (2*load_avg)/(2*load_avg+1) * recent_cpu + nice.
func mlfqsRecentCPU(loadAvg, recentCPU fixed, nice int) fixed {
	twoLoad := mulxn(loadAvg, 2)
	coeff := divxy(twoLoad, addxn(twoLoad, 1))
	return addxn(mulxy(coeff, recentCPU), nice)
}

// mlfqsPriority computes PRI_MAX - (recent_cpu/4) - (nice*2), clamped to
// [PriMin, PriMax].
func mlfqsPriority(recentCPU fixed, nice int) int {
	p := xtoi(itox(PriMax) - divxn(recentCPU, 4) - itox(nice*2))
	if p < PriMin {
		p = PriMin
	}
	if p > PriMax {
		p = PriMax
	}
	return p
}

// ShouldPreempt reports whether a strictly higher priority thread is
// ready, per spec.md §4.1's end-of-tick preemption check; the
// interrupt-return path (outside this core's scope, spec.md §1) calls
// this after Tick and Yields the current thread if it reports true.
func (s *Scheduler) ShouldPreempt(t *Thread) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return false
	}
	preempt := s.ready[0].EffectivePriority() > t.EffectivePriority()
	if preempt {
		kstats.Global.Preemptions.Inc()
	}
	return preempt
}

// Exit finalizes a thread: marks Dying and wakes anyone in Wait.
func (s *Scheduler) Exit(t *Thread, status int) {
	s.mu.Lock()
	t.mu.Lock()
	t.state = Dying
	t.ExitCode = status
	t.exited = true
	t.mu.Unlock()
	if s.current == t {
		s.current = nil
	}
	s.readyRemove(t)
	s.mu.Unlock()
	close(t.exitCh)
}

// WaitExit blocks until t has exited and returns its exit status.
func WaitExit(t *Thread) int {
	<-t.exitCh
	return t.ExitCode
}
