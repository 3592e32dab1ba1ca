// Package led drives a single LED channel through 32-slot blink patterns
// stepped by the scheduler.
package led

import (
	"mailbox-monitor/sched"
	"mailbox-monitor/types"
)

// Driver sets the level of one output channel. GPIO pins and the LCD
// module's RGB channels both implement it.
type Driver interface {
	Set(channel int, on bool)
}

// DriverFunc adapts a function to Driver.
type DriverFunc func(channel int, on bool)

func (f DriverFunc) Set(channel int, on bool) { f(channel, on) }

// SlotInterval is the time one pattern bit is shown.
const SlotInterval sched.Tick = 100

// Patterns, MSB first.
const (
	PatternOff       uint32 = 0x00000000
	PatternOn        uint32 = 0xffffffff
	PatternBlink     uint32 = 0xf0f0f0f0
	PatternBlinkSlow uint32 = 0xffff0000
	PatternBlinkFast uint32 = 0xaaaaaaaa
	PatternFlash     uint32 = 0x80000000
)

// LED is a virtual LED on a driver channel.
type LED struct {
	s       *sched.Scheduler
	drv     Driver
	channel int
	idle    bool // output level that means off

	task    sched.TaskID
	mode    types.LEDMode
	pattern uint32
	slot    uint8
	lit     bool

	pulseUntil sched.Tick
}

// NewVirtual returns an LED on channel of drv, switched off. idleState is
// the output level for "off" (true for active-low wiring).
func NewVirtual(s *sched.Scheduler, drv Driver, channel int, idleState bool) *LED {
	l := &LED{s: s, drv: drv, channel: channel, idle: idleState, pulseUntil: sched.Infinity}
	l.task = s.Register(l.step, sched.Infinity)
	l.output(false)
	return l
}

// SetMode selects a mode. Static modes apply at once; patterned modes start
// from their first slot.
func (l *LED) SetMode(m types.LEDMode) {
	l.mode = m
	l.pulseUntil = sched.Infinity
	switch m {
	case types.LEDOn:
		l.setStatic(true)
	case types.LEDBlink:
		l.SetPattern(PatternBlink)
	case types.LEDBlinkSlow:
		l.SetPattern(PatternBlinkSlow)
	case types.LEDBlinkFast:
		l.SetPattern(PatternBlinkFast)
	case types.LEDFlash:
		l.SetPattern(PatternFlash)
	default:
		l.mode = types.LEDOff
		l.setStatic(false)
	}
}

// Mode returns the current mode.
func (l *LED) Mode() types.LEDMode { return l.mode }

// SetPattern runs a custom 32-slot pattern.
func (l *LED) SetPattern(p uint32) {
	l.pattern = p
	l.slot = 0
	l.s.PlanNow(l.task)
}

// Pulse lights the LED for d and then restores the current mode.
func (l *LED) Pulse(d sched.Tick) {
	l.output(true)
	l.pulseUntil = l.s.Now().Add(d)
	l.s.PlanAbsolute(l.task, l.pulseUntil)
}

// Lit reports the logical LED state.
func (l *LED) Lit() bool { return l.lit }

func (l *LED) setStatic(on bool) {
	l.pattern = 0
	l.s.PlanAbsolute(l.task, sched.Infinity)
	l.output(on)
}

func (l *LED) step() {
	if l.pulseUntil != sched.Infinity {
		l.pulseUntil = sched.Infinity
		l.SetMode(l.mode)
		return
	}
	if l.pattern == 0 {
		return
	}
	l.output(l.pattern&(0x80000000>>l.slot) != 0)
	l.slot = (l.slot + 1) % 32
	l.s.PlanCurrentFromNow(SlotInterval)
}

func (l *LED) output(on bool) {
	l.lit = on
	l.drv.Set(l.channel, on != l.idle)
}
