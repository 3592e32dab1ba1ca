package tags

import (
	"log/slog"

	"mailbox-monitor/drivers/aht20"
	"mailbox-monitor/sched"
)

// NewAHT20 returns a humidity tag around an AHT20, polled through the
// sensor's busy flag.
func NewAHT20(s *sched.Scheduler, dev *aht20.Device, log *slog.Logger) *Humidity {
	read := func() (float32, float32, error) {
		var smp aht20.Sample
		if err := dev.Collect(&smp); err != nil {
			return 0, 0, err
		}
		return smp.Celsius(), smp.Percent(), nil
	}
	return newHumidity(s, dev.Trigger, read, sched.Ticks(aht20.ConversionTime), isErr(aht20.ErrNotReady), log)
}
