// Package lcd is the LCD module: a Sharp memory LCD with an asynchronous
// flush worker, a drawing context and the module's RGB indicator channels.
//
// Drawing happens on the scheduler goroutine into the module's own frame.
// Update snapshots that frame and hands it to the worker goroutine, which is
// the only user of the panel driver and its SPI bus. The module reports not
// ready until that flush completes.
package lcd

import (
	"context"
	"image/color"
	"log/slog"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/sharpmem"

	"mailbox-monitor/devices/led"
	"mailbox-monitor/errcode"
	"mailbox-monitor/gfx"
	"mailbox-monitor/orient"
)

// LED channels of the module.
const (
	LEDRed = iota
	LEDGreen
	LEDBlue
)

// sharpmem treats opaque black as the reflective state and anything else as
// a dark pixel.
var (
	dark  = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	light = color.RGBA{A: 0xff}
)

// Panel is the display driver surface; *sharpmem.Device satisfies it.
type Panel interface {
	Size() (w, h int16)
	SetPixel(x, y int16, c color.RGBA)
	Display() error
}

// Pin adapts a GPIO setter to sharpmem.Pin. A nil Pin does nothing.
type Pin func(high bool)

func (p Pin) High() {
	if p != nil {
		p(true)
	}
}

func (p Pin) Low() {
	if p != nil {
		p(false)
	}
}

// NewPanel configures an LS013B7DH03 on bus. The panel expects every byte
// LSB first; wrap an MSB-first bus with LSBFirst.
func NewPanel(bus drivers.SPI, cs Pin) *sharpmem.Device {
	d := sharpmem.New(bus, cs)
	d.Configure(sharpmem.ConfigLS013B7DH03)
	return &d
}

// Config for New. Zero values are usable.
type Config struct {
	// LEDs are the red, green and blue outputs; nil entries are ignored.
	LEDs [3]func(on bool)
	// VCOMInterval refreshes the panel while idle, which toggles VCOM.
	// Zero disables it.
	VCOMInterval time.Duration
	// OnFlushed runs on the worker goroutine after each flush.
	OnFlushed func(error)

	Logger *slog.Logger
}

// Module drives one LCD module.
type Module struct {
	panel  Panel
	cfg    Config
	log    *slog.Logger
	gfx    *gfx.Context
	w, h   int16
	stride int

	busy   atomic.Bool
	frames chan []byte
	frame  []byte
	back   []byte
	rot    orient.Rotation
}

// New wraps panel. Run must be started before Update is used.
func New(panel Panel, cfg Config) *Module {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	w, h := panel.Size()
	stride := (int(w) + 7) / 8
	m := &Module{
		panel:  panel,
		cfg:    cfg,
		log:    log.With("component", "lcd"),
		w:      w,
		h:      h,
		stride: stride,
		frames: make(chan []byte, 1),
		frame:  make([]byte, stride*int(h)),
		back:   make([]byte, stride*int(h)),
	}
	m.gfx = gfx.New(m)
	return m
}

// GFX returns the drawing context.
func (m *Module) GFX() *gfx.Context { return m.gfx }

// IsReady reports whether a new frame can be drawn and flushed.
func (m *Module) IsReady() bool { return !m.busy.Load() }

// SetRotation selects the rotation for subsequent drawing. Pixels already
// drawn keep their place on the panel.
func (m *Module) SetRotation(r orient.Rotation) { m.rot = r % 4 }

// Rotation returns the selected rotation.
func (m *Module) Rotation() orient.Rotation { return m.rot }

func (m *Module) physical(x, y int16) (int16, int16) {
	switch m.rot {
	case orient.Rotation90:
		return m.w - 1 - y, x
	case orient.Rotation180:
		return m.w - 1 - x, m.h - 1 - y
	case orient.Rotation270:
		return y, m.h - 1 - x
	}
	return x, y
}

func (m *Module) bit(px, py int16) (int, byte) {
	return int(py)*m.stride + int(px)/8, 0x80 >> uint(px%8)
}

// Size returns the logical size. The panel is square, so rotation keeps it.
func (m *Module) Size() (w, h int16) { return m.w, m.h }

// SetPixel sets a logical pixel. Out-of-range coordinates are ignored.
func (m *Module) SetPixel(x, y int16, on bool) {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return
	}
	i, mask := m.bit(m.physical(x, y))
	if on {
		m.frame[i] |= mask
	} else {
		m.frame[i] &^= mask
	}
}

// Pixel reports a logical pixel of the frame being drawn.
func (m *Module) Pixel(x, y int16) bool {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return false
	}
	i, mask := m.bit(m.physical(x, y))
	return m.frame[i]&mask != 0
}

// ClearBuffer blanks the frame being drawn.
func (m *Module) ClearBuffer() { clear(m.frame) }

// Display makes the module a gfx.Displayer.
func (m *Module) Display() error { return m.Update() }

// Update queues the frame for flushing. It fails with errcode.Busy while
// the previous frame is still being written.
func (m *Module) Update() error {
	if !m.busy.CompareAndSwap(false, true) {
		return &errcode.E{C: errcode.Busy, Op: "lcd.Update"}
	}
	copy(m.back, m.frame)
	m.frames <- m.back
	return nil
}

// Run is the flush worker. It returns when ctx is done.
func (m *Module) Run(ctx context.Context) {
	var tick <-chan time.Time
	if m.cfg.VCOMInterval > 0 {
		t := time.NewTicker(m.cfg.VCOMInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-m.frames:
			err := m.flush(frame)
			if err != nil {
				m.log.Error("flush failed", "err", err)
			}
			m.busy.Store(false)
			if m.cfg.OnFlushed != nil {
				m.cfg.OnFlushed(err)
			}
		case <-tick:
			// An unchanged frame only toggles VCOM.
			if err := m.panel.Display(); err != nil {
				m.log.Warn("vcom refresh failed", "err", err)
			}
		}
	}
}

func (m *Module) flush(frame []byte) error {
	for y := int16(0); y < m.h; y++ {
		for x := int16(0); x < m.w; x++ {
			i, mask := m.bit(x, y)
			if frame[i]&mask != 0 {
				m.panel.SetPixel(x, y, dark)
			} else {
				m.panel.SetPixel(x, y, light)
			}
		}
	}
	return m.panel.Display()
}

// SetLED drives one of the module's indicator channels.
func (m *Module) SetLED(channel int, on bool) {
	if channel < 0 || channel >= len(m.cfg.LEDs) || m.cfg.LEDs[channel] == nil {
		return
	}
	m.cfg.LEDs[channel](on)
}

// LEDDriver returns the indicator channels as a led.Driver.
func (m *Module) LEDDriver() led.Driver { return led.DriverFunc(m.SetLED) }
