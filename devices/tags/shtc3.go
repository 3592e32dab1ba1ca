package tags

import (
	"log/slog"

	"tinygo.org/x/drivers/shtc3"

	"mailbox-monitor/sched"
)

// NewSHTC3 returns a humidity tag around a Sensirion SHTC3. The sensor is
// woken for each reading and put back to sleep afterwards.
func NewSHTC3(s *sched.Scheduler, dev *shtc3.Device, log *slog.Logger) *Humidity {
	return NewHumidity(s, dev.WakeUp, func() (float32, float32, error) {
		defer func() { _ = dev.Sleep() }()
		tmc, rhx100, err := dev.ReadTemperatureHumidity()
		if err != nil {
			return 0, 0, err
		}
		return float32(tmc) / 1000, float32(rhx100) / 100, nil
	}, log)
}
