package mailbox

import (
	"mailbox-monitor/orient"
	"mailbox-monitor/sched"
	"mailbox-monitor/services/config"
)

// FromConfig converts the loaded configuration. Disabled sensors get a zero
// interval and are left idle.
func FromConfig(c config.Config) (Config, error) {
	rev, err := orient.ParseRevision(c.Board.Revision)
	if err != nil {
		return Config{}, err
	}
	interval := func(s config.SensorConfig) sched.Tick {
		if !s.Enabled {
			return 0
		}
		return sched.Ticks(s.Interval)
	}
	return Config{
		Name:                c.Node.Name,
		Version:             c.Node.Version,
		Revision:            rev,
		Threshold:           c.Orientation.Threshold,
		MinRatio:            c.Orientation.MinRatio,
		PollInterval:        sched.Ticks(c.Orientation.PollInterval),
		StaleAfter:          sched.Ticks(c.Display.StaleAfter),
		RetryDelay:          sched.Ticks(c.Display.RetryDelay),
		Indoor:              c.Display.Labels.Indoor,
		Outdoor:             c.Display.Labels.Outdoor,
		TemperatureInterval: interval(c.Sensors.Temperature),
		BarometerInterval:   interval(c.Sensors.Barometer),
		HumidityInterval:    interval(c.Sensors.Humidity),
	}, nil
}
