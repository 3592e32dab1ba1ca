//go:build rp2040

package platform

import (
	"context"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"mailbox-monitor/services/config"
	"mailbox-monitor/services/radio"
)

// Open configures I2C0 and SPI0 on their default pins and treats the line
// numbers in cfg as GPIO numbers. Paths select whether a bus is used at all.
func Open(cfg config.PlatformConfig) (*Resources, error) {
	r := &Resources{}
	if cfg.I2C != "" {
		if err := machine.I2C0.Configure(machine.I2CConfig{Frequency: 400 * machine.KHz}); err != nil {
			return nil, err
		}
		r.I2C = machine.I2C0
	}
	if cfg.SPI != "" {
		if err := machine.SPI0.Configure(machine.SPIConfig{Frequency: cfg.SPISpeedHz, Mode: 0}); err != nil {
			return nil, err
		}
		r.SPI = machine.SPI0
	}
	output := func(n int) func(bool) {
		p := machine.Pin(n)
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
		return p.Set
	}
	if cfg.LCDCSLine >= 0 {
		r.LCDCS = output(cfg.LCDCSLine)
	}
	for i, n := range cfg.LCDLEDLines {
		if i < len(r.LEDs) && n >= 0 {
			r.LEDs[i] = output(n)
		}
	}
	if cfg.ButtonLine >= 0 {
		p := machine.Pin(cfg.ButtonLine)
		p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		r.Button = func() bool { return !p.Get() }
	}
	if cfg.AccelIRQLine >= 0 {
		p := machine.Pin(cfg.AccelIRQLine)
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
		r.watchIRQ = func(fn func()) error {
			return p.SetInterrupt(machine.PinRising, func(machine.Pin) { fn() })
		}
	}
	return r, nil
}

// DialUART configures the hardware UART whose pins match u and returns it as
// a stream. UART0 is used unless the pins belong to UART1.
func DialUART(ctx context.Context, u radio.UARTConfig) (io.ReadWriteCloser, error) {
	hw := uartx.UART0
	if u.TXPin == 4 || u.TXPin == 8 {
		hw = uartx.UART1
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: u.Baud,
		TX:       machine.Pin(u.TXPin),
		RX:       machine.Pin(u.RXPin),
	}); err != nil {
		return nil, err
	}
	return &uartStream{ctx: ctx, u: hw}, nil
}

type uartStream struct {
	ctx context.Context
	u   *uartx.UART
}

func (s *uartStream) Read(b []byte) (int, error)  { return s.u.RecvSomeContext(s.ctx, b) }
func (s *uartStream) Write(b []byte) (int, error) { return s.u.Write(b) }
func (s *uartStream) Close() error                { return nil }
