//go:build linux && !rp2040

package platform

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"mailbox-monitor/services/config"
)

const consumer = "mailbox-monitor"

// Open opens the configured character devices. Empty paths and negative
// line offsets leave the matching resource nil. On error everything opened
// so far is released.
func Open(cfg config.PlatformConfig) (_ *Resources, err error) {
	r := &Resources{}
	defer func() {
		if err != nil {
			_ = r.Close()
		}
	}()

	if cfg.I2C != "" {
		b, err := openI2C(cfg.I2C)
		if err != nil {
			return nil, fmt.Errorf("platform: i2c: %w", err)
		}
		r.onClose(b.Close)
		r.I2C = b
	}
	if cfg.SPI != "" {
		s, err := openSPI(cfg.SPI, cfg.SPISpeedHz)
		if err != nil {
			return nil, fmt.Errorf("platform: spi: %w", err)
		}
		r.onClose(s.Close)
		r.SPI = s
	}
	if cfg.GPIOChip == "" {
		return r, nil
	}

	chip, err := gpiocdev.NewChip(cfg.GPIOChip, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("platform: gpio chip %s: %w", cfg.GPIOChip, err)
	}
	r.onClose(chip.Close)

	output := func(offset int) (func(bool), error) {
		l, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			return nil, fmt.Errorf("platform: gpio line %d: %w", offset, err)
		}
		r.onClose(l.Close)
		return func(on bool) {
			v := 0
			if on {
				v = 1
			}
			_ = l.SetValue(v)
		}, nil
	}

	if cfg.LCDCSLine >= 0 {
		if r.LCDCS, err = output(cfg.LCDCSLine); err != nil {
			return nil, err
		}
	}
	for i, off := range cfg.LCDLEDLines {
		if i >= len(r.LEDs) {
			break
		}
		if off < 0 {
			continue
		}
		if r.LEDs[i], err = output(off); err != nil {
			return nil, err
		}
	}
	if cfg.ButtonLine >= 0 {
		// Pressed pulls the line low.
		l, err := chip.RequestLine(cfg.ButtonLine, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
		if err != nil {
			return nil, fmt.Errorf("platform: button line %d: %w", cfg.ButtonLine, err)
		}
		r.onClose(l.Close)
		r.Button = func() bool {
			v, err := l.Value()
			return err == nil && v == 1
		}
	}
	if cfg.AccelIRQLine >= 0 {
		off := cfg.AccelIRQLine
		r.watchIRQ = func(fn func()) error {
			l, err := chip.RequestLine(off, gpiocdev.AsInput, gpiocdev.WithRisingEdge,
				gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { fn() }))
			if err != nil {
				return fmt.Errorf("platform: accel irq line %d: %w", off, err)
			}
			r.onClose(l.Close)
			return nil
		}
	}
	return r, nil
}
