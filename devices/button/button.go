// Package button debounces a push button sampled by a scheduler task.
package button

import (
	"mailbox-monitor/sched"
)

// Event is passed to the handler.
type Event uint8

const (
	EventPress Event = iota
	EventRelease
	EventClick
	EventHold
)

func (e Event) String() string {
	return [...]string{"press", "release", "click", "hold"}[e&3]
}

// Timing defaults.
const (
	ScanInterval sched.Tick = 20
	DebounceTime sched.Tick = 20
	ClickTimeout sched.Tick = 500
	HoldTime     sched.Tick = 2000
)

// Input reads the raw pressed state.
type Input func() bool

// Button turns raw samples into press/release/click/hold events.
type Button struct {
	s       *sched.Scheduler
	in      Input
	task    sched.TaskID
	handler func(*Button, Event)

	Debounce sched.Tick
	Click    sched.Tick
	Hold     sched.Tick

	raw       bool
	rawSince  sched.Tick
	pressed   bool
	pressedAt sched.Tick
	holdFired bool
}

// New starts scanning in. in may be nil when samples are pushed with Feed.
func New(s *sched.Scheduler, in Input) *Button {
	b := &Button{s: s, in: in, Debounce: DebounceTime, Click: ClickTimeout, Hold: HoldTime}
	if in != nil {
		b.task = s.Register(b.scan, s.Now())
	} else {
		b.task = sched.NoTask
	}
	return b
}

// SetEventHandler installs fn.
func (b *Button) SetEventHandler(fn func(*Button, Event)) { b.handler = fn }

// Pressed reports the debounced state.
func (b *Button) Pressed() bool { return b.pressed }

func (b *Button) scan() {
	b.Feed(b.in())
	b.s.PlanCurrentFromNow(ScanInterval)
}

// Feed processes one raw sample taken now.
func (b *Button) Feed(pressed bool) {
	now := b.s.Now()
	if pressed != b.raw {
		b.raw = pressed
		b.rawSince = now
	}
	if b.raw != b.pressed && now-b.rawSince >= b.Debounce {
		b.pressed = b.raw
		if b.pressed {
			b.pressedAt = now
			b.holdFired = false
			b.emit(EventPress)
		} else {
			b.emit(EventRelease)
			if now-b.pressedAt < b.Click {
				b.emit(EventClick)
			}
		}
	}
	if b.pressed && !b.holdFired && now-b.pressedAt >= b.Hold {
		b.holdFired = true
		b.emit(EventHold)
	}
}

func (b *Button) emit(e Event) {
	if b.handler != nil {
		b.handler(b, e)
	}
}
