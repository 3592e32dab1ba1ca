package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestScheduler() (*Scheduler, *ManualClock) {
	clk := &ManualClock{}
	return New(clk), clk
}

func TestPlanNowIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler()
	runs := 0
	id := s.Register(func() { runs++ }, Infinity)

	s.PlanNow(id)
	s.PlanNow(id)
	s.PlanNow(id)

	require.Equal(t, 1, s.RunDue())
	require.Equal(t, 1, runs)
	require.Equal(t, 0, s.RunDue())
}

func TestPlanNowMovesLaterPlanEarlier(t *testing.T) {
	s, _ := newTestScheduler()
	runs := 0
	id := s.Register(func() { runs++ }, 5000)

	s.PlanNow(id)
	require.Equal(t, Tick(0), s.Planned(id))
	s.RunDue()
	require.Equal(t, 1, runs)
	require.Equal(t, Infinity, s.Planned(id))
}

func TestDueOrderAndTies(t *testing.T) {
	s, clk := newTestScheduler()
	var order []string
	a := s.Register(func() { order = append(order, "a") }, Infinity)
	b := s.Register(func() { order = append(order, "b") }, Infinity)
	c := s.Register(func() { order = append(order, "c") }, Infinity)

	s.PlanAbsolute(c, 10)
	s.PlanAbsolute(b, 20)
	s.PlanAbsolute(a, 20)

	require.Equal(t, 0, s.RunDue())
	clk.Set(20)
	require.Equal(t, 3, s.RunDue())
	require.Equal(t, []string{"c", "a", "b"}, order)
}

func TestPlanCurrentFromNow(t *testing.T) {
	s, clk := newTestScheduler()
	attempts := 0
	var id TaskID
	id = s.Register(func() {
		attempts++
		require.Equal(t, id, s.Current())
		if attempts < 3 {
			s.PlanCurrentFromNow(10)
		}
	}, 0)

	require.Equal(t, 1, s.RunDue())
	require.Equal(t, Tick(10), s.Planned(id))
	require.Equal(t, NoTask, s.Current())

	clk.Advance(9)
	require.Equal(t, 0, s.RunDue())
	clk.Advance(1)
	require.Equal(t, 1, s.RunDue())
	clk.Advance(10)
	require.Equal(t, 1, s.RunDue())
	require.Equal(t, 3, attempts)
	require.Equal(t, Infinity, s.Planned(id))
}

func TestSelfReplanNowRunsOncePerPass(t *testing.T) {
	s, _ := newTestScheduler()
	runs := 0
	s.Register(func() {
		runs++
		s.PlanCurrentNow()
	}, 0)

	require.Equal(t, 1, s.RunDue())
	require.Equal(t, 1, s.RunDue())
	require.Equal(t, 2, runs)
}

func TestSelfReplanDoesNotStarveLaterTask(t *testing.T) {
	s, _ := newTestScheduler()
	var order []string
	s.Register(func() {
		order = append(order, "a")
		s.PlanCurrentNow()
	}, 0)
	s.Register(func() { order = append(order, "b") }, 0)

	require.Equal(t, 2, s.RunDue())
	require.Equal(t, []string{"a", "b"}, order)
	require.Equal(t, 1, s.RunDue())
	require.Equal(t, []string{"a", "b", "a"}, order)
}

func TestPlanRelativeUsesLastStart(t *testing.T) {
	s, clk := newTestScheduler()
	var id TaskID
	id = s.Register(func() { s.PlanRelative(id, 100) }, 50)

	clk.Set(60)
	s.RunDue()
	require.Equal(t, Tick(160), s.Planned(id))
}

func TestPlanInfinityUnplans(t *testing.T) {
	s, clk := newTestScheduler()
	runs := 0
	id := s.Register(func() { runs++ }, 10)
	s.PlanFromNow(id, Infinity)

	clk.Set(1_000_000)
	require.Equal(t, 0, s.RunDue())
	require.Equal(t, Infinity, s.NextDue())
}

func TestUnregisterDropsPendingAndReusesSlot(t *testing.T) {
	s, _ := newTestScheduler()
	runs := 0
	id := s.Register(func() { runs++ }, 0)
	s.Unregister(id)
	require.Equal(t, 0, s.RunDue())

	// Planning an unregistered task is ignored.
	s.PlanNow(id)
	require.Equal(t, 0, s.RunDue())

	id2 := s.Register(func() { runs += 10 }, 0)
	require.Equal(t, id, id2)
	s.RunDue()
	require.Equal(t, 10, runs)
}

func TestPostRunsBeforeTasks(t *testing.T) {
	s, _ := newTestScheduler()
	var order []string
	id := s.Register(func() { order = append(order, "task") }, Infinity)

	require.True(t, s.Post(func() {
		order = append(order, "post")
		s.PlanNow(id)
	}))
	s.RunDue()
	require.Equal(t, []string{"post", "task"}, order)
}

func TestPostQueueFull(t *testing.T) {
	s, _ := newTestScheduler()
	for i := 0; i < defaultPostQueue; i++ {
		require.True(t, s.Post(func() {}))
	}
	require.False(t, s.Post(func() {}))
}

func TestTickHelpers(t *testing.T) {
	require.Equal(t, Tick(1500), Ticks(1500*time.Millisecond))
	require.Equal(t, Tick(0), Ticks(-time.Second))
	require.Equal(t, 10*time.Millisecond, Tick(10).Duration())
	require.Equal(t, Infinity, Tick(5).Add(Infinity))
	require.Equal(t, Infinity, (Infinity - 1).Add(2))
}

func TestRunWithSystemClock(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	done := make(chan struct{})
	var id TaskID
	id = s.Register(func() {
		if runs.Add(1) == 2 {
			close(done)
			return
		}
		s.PlanCurrentFromNow(5)
	}, Infinity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.True(t, s.Post(func() { s.PlanNow(id) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run twice")
	}
}

func TestSettleRunsChainedWork(t *testing.T) {
	s, _ := newTestScheduler()
	var a, b TaskID
	order := []string{}
	b = s.Register(func() { order = append(order, "b") }, Infinity)
	a = s.Register(func() {
		order = append(order, "a")
		s.PlanNow(b)
	}, 0)

	require.Equal(t, 2, s.Settle(10))
	require.Equal(t, []string{"a", "b"}, order)
	require.Equal(t, Infinity, s.Planned(a))

	// A task that always re-plans itself is bounded by the limit.
	loop := s.Register(func() { s.PlanCurrentNow() }, 0)
	require.Equal(t, 3, s.Settle(3))
	s.Unregister(loop)
}
