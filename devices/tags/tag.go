// Package tags runs the environmental sensors as periodic scheduler tasks.
//
// Every tag follows the same cycle: trigger a conversion, wait the sensor's
// conversion time, collect (retrying briefly while the sensor reports not
// ready), emit Update or Error, then wait for the next interval. Failures are
// reported once per cycle and never retried beyond the next interval.
package tags

import (
	"errors"
	"log/slog"

	"mailbox-monitor/errcode"
	"mailbox-monitor/sched"
)

// Event is passed to a tag's handler.
type Event uint8

const (
	EventUpdate Event = iota
	EventError
)

func (e Event) String() string {
	if e == EventUpdate {
		return "update"
	}
	return "error"
}

const (
	collectRetryDelay sched.Tick = 10
	collectRetries               = 20
)

type phase uint8

const (
	phaseIdle phase = iota
	phaseCollect
)

// cycle is the measurement state machine shared by all tags.
type cycle struct {
	s   *sched.Scheduler
	log *slog.Logger

	task     sched.TaskID
	interval sched.Tick
	conv     sched.Tick
	next     sched.Tick
	phase    phase
	retries  int
	err      error

	trigger  func() error
	collect  func() error
	notReady func(error) bool
	emit     func(Event)
}

func (c *cycle) init(s *sched.Scheduler, log *slog.Logger, name string, conv sched.Tick) {
	if log == nil {
		log = slog.Default()
	}
	c.s = s
	c.log = log.With("tag", name)
	c.conv = conv
	c.interval = sched.Infinity
	c.next = sched.Infinity
	c.task = s.Register(c.run, sched.Infinity)
}

// SetUpdateInterval starts periodic measurement with the first one now;
// sched.Infinity stops it.
func (c *cycle) SetUpdateInterval(t sched.Tick) {
	c.interval = t
	if c.phase != phaseIdle {
		return
	}
	if t == sched.Infinity {
		c.next = sched.Infinity
		c.s.PlanAbsolute(c.task, sched.Infinity)
		return
	}
	c.s.PlanNow(c.task)
}

// Measure starts a measurement now unless one is in progress.
func (c *cycle) Measure() bool {
	if c.phase != phaseIdle {
		return false
	}
	c.s.PlanNow(c.task)
	return true
}

// Err returns the error behind the last EventError.
func (c *cycle) Err() error { return c.err }

func (c *cycle) run() {
	switch c.phase {
	case phaseIdle:
		if c.interval != sched.Infinity {
			c.next = c.s.Now().Add(c.interval)
		}
		if err := c.trigger(); err != nil {
			c.finish(err)
			return
		}
		c.phase = phaseCollect
		c.retries = 0
		c.s.PlanCurrentFromNow(c.conv)

	case phaseCollect:
		err := c.collect()
		if err != nil && c.notReady(err) {
			if c.retries < collectRetries {
				c.retries++
				c.s.PlanCurrentFromNow(collectRetryDelay)
				return
			}
			err = &errcode.E{C: errcode.Timeout, Op: "tags.collect", Err: err}
		}
		c.finish(err)
	}
}

func (c *cycle) finish(err error) {
	c.phase = phaseIdle
	if c.interval != sched.Infinity {
		if c.next == sched.Infinity {
			c.next = c.s.Now().Add(c.interval)
		}
		c.s.PlanAbsolute(c.task, c.next)
	}
	if err != nil {
		c.err = errcode.Driver("tags.measure", err)
		c.log.Error("measurement failed", "err", c.err)
		c.emit(EventError)
		return
	}
	c.err = nil
	c.emit(EventUpdate)
}

func isErr(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}
