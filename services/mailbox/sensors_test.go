package mailbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"mailbox-monitor/bus"
	"mailbox-monitor/devices/accel"
	"mailbox-monitor/devices/tags"
	"mailbox-monitor/drivers/mpl3115a2"
	"mailbox-monitor/sched"
	"mailbox-monitor/types"
)

type thermo struct {
	c   float32
	err error
}

func (t *thermo) Trigger() error            { return nil }
func (t *thermo) Collect() (float32, error) { return t.c, t.err }

type baro struct{}

func (baro) Trigger() error { return nil }
func (baro) Collect(s *mpl3115a2.Sample) error {
	*s = mpl3115a2.Sample{Pascal: 99000, Meter: 310}
	return nil
}

func TestSensorsPublish(t *testing.T) {
	clk := &sched.ManualClock{}
	s := sched.New(clk)
	th := &thermo{c: 19.5}
	rad := &fakeRadio{}
	b := bus.NewBus(8)
	conn := b.NewConnection("mailbox")
	cfg := DefaultConfig()
	app := New(cfg, Deps{
		Sched:       s,
		Accel:       accel.New(s, &fakeAccel{v: types.Vector{Z: 1}}, nil),
		Radio:       rad,
		Temperature: tags.NewTemperature(s, th, nil),
		Pressure:    tags.NewPressure(s, baro{}, nil),
		Humidity:    tags.NewHumidity(s, nil, func() (float32, float32, error) { return 20, 48, nil }, nil),
		Bus:         conn,
		Fault:       (&Recorder{}).Func(),
	})
	require.NoError(t, app.Init())

	for i := 0; i < 10; i++ {
		s.Settle(10)
		clk.Advance(100)
	}
	require.Equal(t, []float32{19.5}, rad.temps)
	require.Equal(t, [][2]float32{{99000, 310}}, rad.baros)
	require.Equal(t, []float32{48}, rad.hums)

	sub := b.NewConnection("watcher").Subscribe(bus.T("sensors", "barometer", "value"))
	select {
	case m := <-sub.Channel():
		v := m.Payload.(types.BarometerValue)
		require.Equal(t, float32(99000), v.Pascal)
		require.Equal(t, float32(310), v.Meter)
	default:
		t.Fatal("barometer reading not retained")
	}

	// an error cycle is logged and skipped
	th.err = errors.New("nack")
	clk.Set(cfg.TemperatureInterval)
	for i := 0; i < 5; i++ {
		s.Settle(10)
		clk.Advance(100)
	}
	require.Equal(t, []float32{19.5}, rad.temps)
}
