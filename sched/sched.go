// Package sched is a cooperative, single-threaded task scheduler.
//
// Tasks are plain functions registered once and then planned to run at a
// tick. A task has at most one pending run: planning an already planned task
// moves it instead of queueing a second run. Task bodies execute one at a time
// on the goroutine calling Run (or RunDue) and must not block; a task that
// needs to wait re-plans itself with PlanCurrentFromNow.
//
// Work originating on other goroutines (interrupt callbacks, link readers)
// enters the scheduler thread through Post.
package sched

import (
	"container/heap"
	"context"
	"math"
	"sync"
	"time"
)

// Tick is milliseconds since boot.
type Tick int64

// Infinity is a tick that is never reached; planning a task at Infinity
// leaves it idle.
const Infinity Tick = math.MaxInt64

// Ticks converts a duration to ticks, rounding down to whole milliseconds.
func Ticks(d time.Duration) Tick {
	if d < 0 {
		return 0
	}
	return Tick(d / time.Millisecond)
}

// Duration converts ticks back to a time.Duration.
func (t Tick) Duration() time.Duration {
	if t == Infinity {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(t) * time.Millisecond
}

// Add returns t+d saturating at Infinity.
func (t Tick) Add(d Tick) Tick {
	if t == Infinity || d == Infinity || d > Infinity-t {
		return Infinity
	}
	return t + d
}

// TaskID identifies a registered task.
type TaskID int

// NoTask is returned by Current outside a task body.
const NoTask TaskID = -1

const defaultPostQueue = 32

type task struct {
	id        TaskID
	fn        func()
	due       Tick
	lastStart Tick
	index     int // position in heap, -1 when idle
	pass      uint32
	live      bool
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].id < h[j].id
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x any)   { t := x.(*task); t.index = len(*h); *h = append(*h, t) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler runs registered tasks in due order.
type Scheduler struct {
	mu      sync.Mutex
	clock   Clock
	tasks   []*task
	free    []TaskID
	h       taskHeap
	current TaskID
	pass    uint32

	posts chan func()
	wake  chan struct{}
}

// New creates a scheduler reading time from clock (nil selects the system clock).
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Scheduler{
		clock:   clock,
		current: NoTask,
		posts:   make(chan func(), defaultPostQueue),
		wake:    make(chan struct{}, 1),
	}
}

// Now returns the scheduler's current tick.
func (s *Scheduler) Now() Tick { return s.clock.Now() }

// Register adds fn as a task first planned at tick at (Infinity: not planned).
func (s *Scheduler) Register(fn func(), at Tick) TaskID {
	s.mu.Lock()
	var t *task
	if n := len(s.free); n > 0 {
		id := s.free[n-1]
		s.free = s.free[:n-1]
		t = s.tasks[id]
		*t = task{id: id}
	} else {
		t = &task{id: TaskID(len(s.tasks))}
		s.tasks = append(s.tasks, t)
	}
	t.fn = fn
	t.live = true
	t.index = -1
	t.lastStart = s.clock.Now()
	s.planLocked(t, at)
	s.mu.Unlock()
	s.wakeup()
	return t.id
}

// Unregister removes a task; a pending run is dropped.
func (s *Scheduler) Unregister(id TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.lookup(id)
	if t == nil {
		return
	}
	if t.index >= 0 {
		heap.Remove(&s.h, t.index)
	}
	t.live = false
	t.fn = nil
	s.free = append(s.free, id)
}

// PlanNow plans id to run as soon as possible. Repeated calls before the task
// runs still produce a single run.
func (s *Scheduler) PlanNow(id TaskID) { s.plan(id, func(*task) Tick { return s.clock.Now() }) }

// PlanAbsolute plans id to run at tick at.
func (s *Scheduler) PlanAbsolute(id TaskID, at Tick) { s.plan(id, func(*task) Tick { return at }) }

// PlanRelative plans id to run d ticks after the start of its last run.
func (s *Scheduler) PlanRelative(id TaskID, d Tick) {
	s.plan(id, func(t *task) Tick { return t.lastStart.Add(d) })
}

// PlanFromNow plans id to run d ticks from now.
func (s *Scheduler) PlanFromNow(id TaskID, d Tick) {
	s.plan(id, func(*task) Tick { return s.clock.Now().Add(d) })
}

// PlanCurrentNow re-plans the running task to run again immediately.
func (s *Scheduler) PlanCurrentNow() { s.PlanNow(s.Current()) }

// PlanCurrentFromNow re-plans the running task to run again after d ticks.
func (s *Scheduler) PlanCurrentFromNow(d Tick) { s.PlanFromNow(s.Current(), d) }

// Current returns the task being executed, or NoTask.
func (s *Scheduler) Current() TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Planned reports the tick id is planned for (Infinity when idle).
func (s *Scheduler) Planned(id TaskID) Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.lookup(id)
	if t == nil || t.index < 0 {
		return Infinity
	}
	return t.due
}

func (s *Scheduler) plan(id TaskID, at func(*task) Tick) {
	s.mu.Lock()
	t := s.lookup(id)
	if t == nil {
		s.mu.Unlock()
		return
	}
	s.planLocked(t, at(t))
	s.mu.Unlock()
	s.wakeup()
}

func (s *Scheduler) planLocked(t *task, at Tick) {
	if at == Infinity {
		if t.index >= 0 {
			heap.Remove(&s.h, t.index)
		}
		return
	}
	t.due = at
	if t.index >= 0 {
		heap.Fix(&s.h, t.index)
	} else {
		heap.Push(&s.h, t)
	}
}

func (s *Scheduler) lookup(id TaskID) *task {
	if id < 0 || int(id) >= len(s.tasks) {
		return nil
	}
	t := s.tasks[id]
	if !t.live {
		return nil
	}
	return t
}

// Post queues fn to run on the scheduler thread. It never blocks; false means
// the queue is full and fn was dropped.
func (s *Scheduler) Post(fn func()) bool {
	select {
	case s.posts <- fn:
		s.wakeup()
		return true
	default:
		return false
	}
}

// RunDue executes pending posts, then every task due at the current tick, and
// returns the number of task runs. Each task runs at most once per call; a
// task that re-plans itself for now runs again on the next call.
func (s *Scheduler) RunDue() int {
	s.drainPosts()

	s.mu.Lock()
	s.pass++
	pass := s.pass
	s.mu.Unlock()

	ran := 0
	for {
		s.mu.Lock()
		now := s.clock.Now()
		top := s.next(now, pass)
		if top == nil {
			s.mu.Unlock()
			return ran
		}
		heap.Remove(&s.h, top.index)
		top.pass = pass
		top.lastStart = now
		s.current = top.id
		fn := top.fn
		s.mu.Unlock()

		fn()
		ran++

		s.mu.Lock()
		s.current = NoTask
		s.mu.Unlock()

		s.drainPosts()
	}
}

// Settle repeats RunDue until a pass runs nothing or limit passes have been
// made, and returns the total number of task runs. Used with a manual clock.
func (s *Scheduler) Settle(limit int) int {
	total := 0
	for i := 0; i < limit; i++ {
		n := s.RunDue()
		if n == 0 {
			break
		}
		total += n
	}
	return total
}

func (s *Scheduler) drainPosts() {
	for {
		select {
		case fn := <-s.posts:
			fn()
		default:
			return
		}
	}
}

// next returns the earliest task due by now that has not run in this pass.
// Tasks that already ran stay planned for the next pass without hiding
// later ones due at the same tick.
func (s *Scheduler) next(now Tick, pass uint32) *task {
	if t := s.top(); t == nil || t.due > now {
		return nil
	} else if t.pass != pass {
		return t
	}
	var best *task
	for _, t := range s.h {
		if t.due > now || t.pass == pass {
			continue
		}
		if best == nil || t.due < best.due || (t.due == best.due && t.id < best.id) {
			best = t
		}
	}
	return best
}

func (s *Scheduler) top() *task {
	if len(s.h) == 0 {
		return nil
	}
	return s.h[0]
}

// NextDue returns the earliest planned tick, or Infinity.
func (s *Scheduler) NextDue() Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.top(); t != nil {
		return t.due
	}
	return Infinity
}

// Run executes tasks until ctx is cancelled, sleeping until the next due
// task or the next Post.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.RunDue()

		var wait time.Duration
		switch next := s.NextDue(); {
		case next == Infinity:
			wait = time.Hour
		case next <= s.clock.Now():
			wait = 0
		default:
			wait = (next - s.clock.Now()).Duration()
		}
		resetTimer(timer, wait)

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

func (s *Scheduler) wakeup() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// resetTimer safely stops, drains, and resets a timer.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}
