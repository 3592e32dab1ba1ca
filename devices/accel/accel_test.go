package accel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"mailbox-monitor/drivers/lis2dh12"
	"mailbox-monitor/errcode"
	"mailbox-monitor/sched"
	"mailbox-monitor/types"
)

type fakeSensor struct {
	x, y, z   float32
	readErr   error
	reads     int
	alarms    []*lis2dh12.Alarm
	srcActive bool
	scale     lis2dh12.Scale
	res       lis2dh12.Resolution
}

func (f *fakeSensor) SetResolution(r lis2dh12.Resolution) error { f.res = r; return nil }
func (f *fakeSensor) SetScale(s lis2dh12.Scale) error           { f.scale = s; return nil }
func (f *fakeSensor) ReadAcceleration() (float32, float32, float32, error) {
	f.reads++
	return f.x, f.y, f.z, f.readErr
}
func (f *fakeSensor) SetAlarm(a *lis2dh12.Alarm) error {
	f.alarms = append(f.alarms, a)
	return nil
}
func (f *fakeSensor) AlarmSource() (byte, bool, error) {
	if f.srcActive {
		f.srcActive = false
		return 0x40, true, nil
	}
	return 0, false, nil
}

func setup() (*Device, *fakeSensor, *sched.Scheduler, *sched.ManualClock, *[]Event) {
	clk := &sched.ManualClock{}
	s := sched.New(clk)
	f := &fakeSensor{z: 1}
	d := New(s, f, nil)
	events := &[]Event{}
	d.SetEventHandler(func(_ *Device, e Event) { *events = append(*events, e) })
	return d, f, s, clk, events
}

func TestPeriodicSampling(t *testing.T) {
	d, f, s, clk, events := setup()

	require.Equal(t, 0, s.Settle(5), "idle until an interval is set")

	d.SetUpdateInterval(5000)
	s.Settle(5)
	require.Equal(t, 1, f.reads)
	require.Equal(t, types.Vector{Z: 1}, d.Result())

	clk.Advance(4999)
	s.Settle(5)
	require.Equal(t, 1, f.reads)

	clk.Advance(1)
	s.Settle(5)
	require.Equal(t, 2, f.reads)
	require.Equal(t, []Event{EventUpdate, EventUpdate}, *events)

	d.SetUpdateInterval(sched.Infinity)
	clk.Advance(60000)
	require.Equal(t, 0, s.Settle(5))
}

func TestStopFromHandler(t *testing.T) {
	d, f, s, clk, _ := setup()
	d.SetEventHandler(func(d *Device, e Event) {
		if e == EventUpdate {
			d.SetUpdateInterval(sched.Infinity)
		}
	})
	d.SetUpdateInterval(100)
	s.Settle(5)
	clk.Advance(1000)
	s.Settle(5)
	require.Equal(t, 1, f.reads)
}

func TestSetAlarmTakesSample(t *testing.T) {
	d, f, s, _, events := setup()

	require.NoError(t, d.SetAlarm(&types.Alarm{YLow: true, Threshold: 0.5}))
	require.Len(t, f.alarms, 1)
	require.True(t, f.alarms[0].YLow)
	require.Equal(t, float32(0.5), f.alarms[0].Threshold)

	s.Settle(5)
	require.Equal(t, 1, f.reads)
	require.Equal(t, []Event{EventUpdate}, *events)

	// Threshold-only alarm disarms the driver but keeps the threshold.
	require.NoError(t, d.SetAlarm(&types.Alarm{Threshold: 0.5}))
	require.Nil(t, f.alarms[1])
	require.Equal(t, float32(0.5), d.Alarm().Threshold)
	require.NoError(t, d.SetAlarm(nil))
	require.Equal(t, float32(0.5), d.Alarm().Threshold)
}

func TestScaleChangeReprogramsAlarm(t *testing.T) {
	d, f, _, _, _ := setup()
	require.NoError(t, d.SetAlarm(&types.Alarm{ZLow: true, Threshold: 0.5}))
	require.NoError(t, d.SetScale(lis2dh12.Scale8G))
	require.Equal(t, lis2dh12.Scale8G, f.scale)
	require.Len(t, f.alarms, 2)
	require.True(t, f.alarms[1].ZLow)
}

func TestInterrupt(t *testing.T) {
	d, f, s, _, events := setup()

	f.srcActive = true
	require.True(t, d.Interrupt())
	s.Settle(5)
	require.Equal(t, []Event{EventAlarm, EventUpdate}, *events)

	// Spurious edge: source not active, nothing happens.
	*events = nil
	require.True(t, d.Interrupt())
	s.Settle(5)
	s.RunDue()
	require.Empty(t, *events)
}

func TestReadError(t *testing.T) {
	d, f, s, _, events := setup()
	f.readErr = errors.New("nack")
	d.Measure()
	s.Settle(5)
	require.Equal(t, []Event{EventError}, *events)
	require.Equal(t, errcode.IOError, errcode.Of(d.Err()))

	f.readErr = nil
	d.Measure()
	s.Settle(5)
	require.NoError(t, d.Err())
}
