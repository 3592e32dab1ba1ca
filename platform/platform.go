// Package platform opens the board peripherals: the I2C sensor bus, the LCD
// SPI bus and chip select, the LCD module's RGB lines, the button and the
// accelerometer interrupt line.
//
// Open is provided per build: Linux hosts use the kernel character devices,
// RP2040 boards use the machine package, and other builds fail with
// ErrUnsupported.
package platform

import (
	"errors"

	"tinygo.org/x/drivers"
)

var ErrUnsupported = errors.New("platform: no peripherals on this build")

// Resources are the opened peripherals. Nil members are absent.
type Resources struct {
	I2C   drivers.I2C
	SPI   drivers.SPI
	LCDCS func(high bool)
	// LEDs are the LCD module's red, green and blue channels.
	LEDs [3]func(on bool)
	// Button reads the pressed state.
	Button func() bool

	watchIRQ func(fn func()) error
	closers  []func() error
}

// OnAccelIRQ calls fn on each rising edge of the accelerometer interrupt
// line. fn may run on any goroutine, or in interrupt context on a
// microcontroller, so it must only hand off work.
func (r *Resources) OnAccelIRQ(fn func()) error {
	if r.watchIRQ == nil {
		return ErrUnsupported
	}
	return r.watchIRQ(fn)
}

// Close releases everything Open acquired, last first.
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Resources) onClose(fn func() error) { r.closers = append(r.closers, fn) }
