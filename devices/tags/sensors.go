package tags

import (
	"log/slog"
	"math"

	"mailbox-monitor/drivers/mpl3115a2"
	"mailbox-monitor/sched"
	"mailbox-monitor/x/mathx"
)

// ---- Temperature ----

// Thermometer is satisfied by *TMP.
type Thermometer interface {
	Trigger() error
	Collect() (float32, error)
}

// Temperature is a temperature tag.
type Temperature struct {
	cycle
	drv     Thermometer
	celsius float32
	handler func(*Temperature, Event)
}

// NewTemperature returns an idle tag around drv.
func NewTemperature(s *sched.Scheduler, drv Thermometer, log *slog.Logger) *Temperature {
	t := &Temperature{drv: drv, celsius: float32(math.NaN())}
	t.trigger = drv.Trigger
	t.collect = func() error {
		c, err := drv.Collect()
		if err == nil {
			t.celsius = c
		}
		return err
	}
	t.notReady = isErr(ErrTMPNotReady)
	t.emit = func(e Event) {
		if t.handler != nil {
			t.handler(t, e)
		}
	}
	t.init(s, log, "temperature", sched.Ticks(TMPConversionTime))
	return t
}

func (t *Temperature) SetEventHandler(fn func(*Temperature, Event)) { t.handler = fn }

// Celsius returns the last value; NaN before the first update.
func (t *Temperature) Celsius() float32 { return t.celsius }

// ---- Barometer ----

// Barometer is satisfied by *mpl3115a2.Device.
type Barometer interface {
	Trigger() error
	Collect(*mpl3115a2.Sample) error
}

// Pressure is a barometer tag reporting pressure and altitude.
type Pressure struct {
	cycle
	drv     Barometer
	sample  mpl3115a2.Sample
	handler func(*Pressure, Event)
}

// NewPressure returns an idle tag around drv.
func NewPressure(s *sched.Scheduler, drv Barometer, log *slog.Logger) *Pressure {
	nan := float32(math.NaN())
	p := &Pressure{drv: drv, sample: mpl3115a2.Sample{Pascal: nan, Meter: nan, Celsius: nan}}
	p.trigger = drv.Trigger
	p.collect = func() error {
		var s mpl3115a2.Sample
		err := drv.Collect(&s)
		if err == nil {
			p.sample = s
		}
		return err
	}
	p.notReady = isErr(mpl3115a2.ErrNotReady)
	p.emit = func(e Event) {
		if p.handler != nil {
			p.handler(p, e)
		}
	}
	// First poll well before the worst case; retries cover the rest.
	p.init(s, log, "barometer", 350)
	return p
}

func (p *Pressure) SetEventHandler(fn func(*Pressure, Event)) { p.handler = fn }

func (p *Pressure) Pascal() float32 { return p.sample.Pascal }
func (p *Pressure) Meter() float32  { return p.sample.Meter }

// ---- Humidity ----

// HumidityReader returns one complete reading.
type HumidityReader func() (celsius, percent float32, err error)

// Humidity is a humidity tag around a single-shot reader.
type Humidity struct {
	cycle
	read    HumidityReader
	percent float32
	handler func(*Humidity, Event)
}

// NewHumidity returns an idle tag. wake runs as the trigger step (nil for
// none); read performs the conversion.
func NewHumidity(s *sched.Scheduler, wake func() error, read HumidityReader, log *slog.Logger) *Humidity {
	return newHumidity(s, wake, read, 1, func(error) bool { return false }, log)
}

func newHumidity(s *sched.Scheduler, wake func() error, read HumidityReader, conv sched.Tick, notReady func(error) bool, log *slog.Logger) *Humidity {
	h := &Humidity{read: read, percent: float32(math.NaN())}
	if wake == nil {
		wake = func() error { return nil }
	}
	h.trigger = wake
	h.collect = func() error {
		_, rh, err := read()
		if err == nil {
			h.percent = mathx.Percent(rh)
		}
		return err
	}
	h.notReady = notReady
	h.emit = func(e Event) {
		if h.handler != nil {
			h.handler(h, e)
		}
	}
	h.init(s, log, "humidity", conv)
	return h
}

func (h *Humidity) SetEventHandler(fn func(*Humidity, Event)) { h.handler = fn }

// Percent returns relative humidity; NaN before the first update.
func (h *Humidity) Percent() float32 { return h.percent }
