package button

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mailbox-monitor/sched"
)

type rig struct {
	clk    *sched.ManualClock
	s      *sched.Scheduler
	level  bool
	b      *Button
	events []Event
}

func newRig() *rig {
	r := &rig{clk: &sched.ManualClock{}}
	r.s = sched.New(r.clk)
	r.b = New(r.s, func() bool { return r.level })
	r.b.SetEventHandler(func(_ *Button, e Event) { r.events = append(r.events, e) })
	return r
}

// hold keeps the level for d, scanning as the scheduler would.
func (r *rig) hold(level bool, d sched.Tick) {
	r.level = level
	for end := r.clk.Now() + d; r.clk.Now() < end; r.clk.Advance(ScanInterval) {
		r.s.Settle(5)
	}
}

func TestClick(t *testing.T) {
	r := newRig()
	r.hold(false, 100)
	r.hold(true, 200)
	r.hold(false, 100)
	require.Equal(t, []Event{EventPress, EventRelease, EventClick}, r.events)
}

func TestBounceIsIgnored(t *testing.T) {
	r := newRig()
	r.level = true
	r.s.Settle(5) // one 20 ms glitch sample only
	r.clk.Advance(ScanInterval - 1)
	r.level = false
	r.clk.Advance(1)
	r.s.Settle(5)
	r.hold(false, 200)
	require.Empty(t, r.events)
}

func TestHold(t *testing.T) {
	r := newRig()
	r.hold(true, 2500)
	r.hold(false, 100)
	require.Equal(t, []Event{EventPress, EventHold, EventRelease}, r.events)
	require.False(t, r.b.Pressed())
}

func TestFeedWithoutInput(t *testing.T) {
	clk := &sched.ManualClock{}
	s := sched.New(clk)
	b := New(s, nil)
	var got []Event
	b.SetEventHandler(func(_ *Button, e Event) { got = append(got, e) })
	b.Feed(true)
	clk.Advance(DebounceTime)
	b.Feed(true)
	require.True(t, b.Pressed())
	require.Equal(t, []Event{EventPress}, got)
	require.Equal(t, "click", EventClick.String())
}
