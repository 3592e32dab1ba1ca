// Package accel runs a LIS2DH12 accelerometer from the scheduler: periodic
// sampling, alarm arming and interrupt handling, reported through a single
// event handler.
package accel

import (
	"log/slog"

	"mailbox-monitor/drivers/lis2dh12"
	"mailbox-monitor/errcode"
	"mailbox-monitor/sched"
	"mailbox-monitor/types"
)

// Event is passed to the handler.
type Event uint8

const (
	EventUpdate Event = iota // new sample in Result
	EventAlarm               // INT1 fired
	EventError               // read failed, see Err
)

func (e Event) String() string {
	switch e {
	case EventUpdate:
		return "update"
	case EventAlarm:
		return "alarm"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Sensor is the driver surface used here; *lis2dh12.Device satisfies it.
type Sensor interface {
	SetResolution(lis2dh12.Resolution) error
	SetScale(lis2dh12.Scale) error
	ReadAcceleration() (x, y, z float32, err error)
	SetAlarm(*lis2dh12.Alarm) error
	AlarmSource() (byte, bool, error)
}

// Device is the scheduler-facing accelerometer.
type Device struct {
	s   *sched.Scheduler
	drv Sensor
	log *slog.Logger

	task     sched.TaskID
	interval sched.Tick
	handler  func(*Device, Event)

	result types.Vector
	alarm  types.Alarm
	err    error
}

// New registers the measurement task. Nothing is sampled until an update
// interval is set, an alarm is armed or Measure is called.
func New(s *sched.Scheduler, drv Sensor, log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}
	d := &Device{s: s, drv: drv, log: log.With("component", "accel"), interval: sched.Infinity}
	d.task = s.Register(d.run, sched.Infinity)
	return d
}

// SetEventHandler installs fn; nil removes it.
func (d *Device) SetEventHandler(fn func(*Device, Event)) { d.handler = fn }

// SetResolution and SetScale pass through to the driver.
func (d *Device) SetResolution(r lis2dh12.Resolution) error {
	return errcode.Driver("accel.SetResolution", d.drv.SetResolution(r))
}

func (d *Device) SetScale(s lis2dh12.Scale) error {
	if err := d.drv.SetScale(s); err != nil {
		return errcode.Driver("accel.SetScale", err)
	}
	// threshold LSB weight depends on scale
	if d.alarm.Armed() {
		return d.SetAlarm(&d.alarm)
	}
	return nil
}

// SetUpdateInterval sets the sampling period; sched.Infinity stops periodic
// sampling. A finite interval takes its first sample immediately.
func (d *Device) SetUpdateInterval(t sched.Tick) {
	d.interval = t
	if t == sched.Infinity {
		d.s.PlanAbsolute(d.task, sched.Infinity)
		return
	}
	d.s.PlanNow(d.task)
}

// UpdateInterval returns the sampling period.
func (d *Device) UpdateInterval() sched.Tick { return d.interval }

// SetAlarm arms the threshold interrupt. A nil alarm or one with no axes
// disarms it (the threshold is kept). Arming takes a sample immediately so
// the caller sees the current orientation.
func (d *Device) SetAlarm(a *types.Alarm) error {
	if a == nil {
		d.alarm = types.Alarm{Threshold: d.alarm.Threshold}
	} else {
		d.alarm = *a
	}
	if !d.alarm.Armed() {
		return errcode.Driver("accel.SetAlarm", d.drv.SetAlarm(nil))
	}
	err := d.drv.SetAlarm(&lis2dh12.Alarm{
		XLow: d.alarm.XLow, XHigh: d.alarm.XHigh,
		YLow: d.alarm.YLow, YHigh: d.alarm.YHigh,
		ZLow: d.alarm.ZLow, ZHigh: d.alarm.ZHigh,
		Threshold: d.alarm.Threshold,
		Duration:  d.alarm.Duration,
	})
	if err != nil {
		return errcode.Driver("accel.SetAlarm", err)
	}
	d.Measure()
	return nil
}

// Alarm returns the configured alarm.
func (d *Device) Alarm() types.Alarm { return d.alarm }

// Measure plans a sample as soon as possible.
func (d *Device) Measure() { d.s.PlanNow(d.task) }

// Result returns the last good sample.
func (d *Device) Result() types.Vector { return d.result }

// Err returns the error behind the last EventError.
func (d *Device) Err() error { return d.err }

// Interrupt is called from the INT1 edge handler on any goroutine.
func (d *Device) Interrupt() bool {
	return d.s.Post(d.onInterrupt)
}

func (d *Device) onInterrupt() {
	_, active, err := d.drv.AlarmSource()
	if err != nil {
		d.fail(err)
		return
	}
	if !active {
		return
	}
	d.log.Debug("alarm")
	d.emit(EventAlarm)
	d.Measure()
}

func (d *Device) run() {
	if d.interval != sched.Infinity {
		d.s.PlanRelative(d.task, d.interval)
	}
	x, y, z, err := d.drv.ReadAcceleration()
	if err != nil {
		d.fail(err)
		return
	}
	d.err = nil
	d.result = types.Vector{X: x, Y: y, Z: z}
	d.emit(EventUpdate)
}

func (d *Device) fail(err error) {
	d.err = errcode.Driver("accel.read", err)
	d.log.Error("read failed", "err", d.err)
	d.emit(EventError)
}

func (d *Device) emit(e Event) {
	if d.handler != nil {
		d.handler(d, e)
	}
}
