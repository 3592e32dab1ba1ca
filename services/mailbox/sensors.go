package mailbox

import (
	"mailbox-monitor/bus"
	"mailbox-monitor/devices/tags"
	"mailbox-monitor/sched"
	"mailbox-monitor/services/radio"
	"mailbox-monitor/types"
)

// Publish channels of the sensor tags.
const (
	ChannelTemperature = radio.ChannelR1I2C0Default
	ChannelBarometer   = radio.ChannelR1I2C0Default
	ChannelHumidity    = radio.ChannelR2I2C0Default
)

func (a *App) initSensors() {
	if t := a.d.Temperature; t != nil {
		t.SetEventHandler(a.onTemperature)
		start(t.SetUpdateInterval, a.cfg.TemperatureInterval)
	}
	if p := a.d.Pressure; p != nil {
		p.SetEventHandler(a.onPressure)
		start(p.SetUpdateInterval, a.cfg.BarometerInterval)
	}
	if h := a.d.Humidity; h != nil {
		h.SetEventHandler(a.onHumidity)
		start(h.SetUpdateInterval, a.cfg.HumidityInterval)
	}
}

func start(set func(sched.Tick), interval sched.Tick) {
	if interval > 0 {
		set(interval)
	}
}

func (a *App) onTemperature(t *tags.Temperature, ev tags.Event) {
	if ev != tags.EventUpdate {
		a.log.Error("thermometer error", "err", t.Err())
		return
	}
	c := t.Celsius()
	a.log.Debug("temperature", "celsius", c)
	a.publishValue("temperature", types.TemperatureValue{Celsius: c, TSms: int64(a.s.Now())})
	if a.d.Radio != nil {
		if err := a.d.Radio.PubTemperature(ChannelTemperature, c); err != nil {
			a.log.Warn("temperature publish failed", "err", err)
		}
	}
}

func (a *App) onPressure(p *tags.Pressure, ev tags.Event) {
	if ev != tags.EventUpdate {
		a.log.Error("barometer error", "err", p.Err())
		return
	}
	pa, m := p.Pascal(), p.Meter()
	a.log.Debug("pressure", "hpa", pa/100, "altitude_m", m)
	a.publishValue("barometer", types.BarometerValue{Pascal: pa, Meter: m, TSms: int64(a.s.Now())})
	if a.d.Radio != nil {
		if err := a.d.Radio.PubBarometer(ChannelBarometer, pa, m); err != nil {
			a.log.Warn("barometer publish failed", "err", err)
		}
	}
}

func (a *App) onHumidity(h *tags.Humidity, ev tags.Event) {
	if ev != tags.EventUpdate {
		a.log.Error("hygrometer error", "err", h.Err())
		return
	}
	rh := h.Percent()
	a.log.Debug("humidity", "percent", rh)
	a.publishValue("humidity", types.HumidityValue{Percent: rh, TSms: int64(a.s.Now())})
	if a.d.Radio != nil {
		if err := a.d.Radio.PubHumidity(ChannelHumidity, rh); err != nil {
			a.log.Warn("humidity publish failed", "err", err)
		}
	}
}

// publishValue retains the latest reading under sensors/<kind>/value.
func (a *App) publishValue(kind string, v any) {
	if a.d.Bus == nil {
		return
	}
	a.d.Bus.Publish(a.d.Bus.NewMessage(bus.T("sensors", kind, "value"), v, true))
}
