package lcd

import (
	"math/bits"
	"sync"

	"tinygo.org/x/drivers"
)

// LSBFirst wraps an MSB-first SPI bus so bytes go out least significant bit
// first, as the memory LCD expects. Read bytes are reversed back.
func LSBFirst(bus drivers.SPI) drivers.SPI { return &lsbFirst{bus: bus} }

type lsbFirst struct {
	bus drivers.SPI
	buf []byte
}

func (l *lsbFirst) Tx(w, r []byte) error {
	l.buf = append(l.buf[:0], w...)
	for i, b := range l.buf {
		l.buf[i] = bits.Reverse8(b)
	}
	if err := l.bus.Tx(l.buf, r); err != nil {
		return err
	}
	for i, b := range r {
		r[i] = bits.Reverse8(b)
	}
	return nil
}

func (l *lsbFirst) Transfer(b byte) (byte, error) {
	v, err := l.bus.Transfer(bits.Reverse8(b))
	return bits.Reverse8(v), err
}

// Panel command bits, as the driver emits them before bit reversal.
const (
	cmdWrite = 0x01
	cmdClear = 0x04
)

// Mirror is a drivers.SPI standing in for the panel. It decodes the line
// protocol into the image the panel would show. The simulator uses it as
// its display.
type Mirror struct {
	mu      sync.Mutex
	w, h    int16
	stride  int
	mem     []byte // panel memory: 1 is reflective
	line    int    // line whose data comes next, or -1
	inFrame bool

	lines int
	holds int
}

// NewMirror returns a blank w x h panel.
func NewMirror(w, h int16) *Mirror {
	m := &Mirror{w: w, h: h, stride: ((int(w) + 15) / 16) * 2, line: -1}
	m.mem = make([]byte, m.stride*int(h))
	m.blank()
	return m
}

func (m *Mirror) blank() {
	for i := range m.mem {
		m.mem[i] = 0xff
	}
}

func (m *Mirror) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.line >= 0 {
		copy(m.mem[m.line*m.stride:(m.line+1)*m.stride], w)
		m.line = -1
		m.lines++
		return nil
	}
	if len(w) != 2 {
		return nil
	}
	switch {
	case w[0]&cmdWrite != 0:
		m.inFrame = true
		if n := int(w[1]); n >= 1 && n <= int(m.h) {
			m.line = n - 1
		}
	case w[0]&cmdClear != 0:
		m.blank()
	case m.inFrame && w[0] == 0 && w[1] == 0:
		m.inFrame = false
	default:
		m.holds++
	}
	return nil
}

func (m *Mirror) Transfer(b byte) (byte, error) { return 0, nil }

// Size returns the panel size.
func (m *Mirror) Size() (w, h int16) { return m.w, m.h }

// Pixel reports whether the panel shows (x, y) dark.
func (m *Mirror) Pixel(x, y int16) bool {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mem[int(y)*m.stride+int(x)/8]&(1<<uint(x%8)) == 0
}

// Counts returns the lines written and the transfers that wrote nothing.
func (m *Mirror) Counts() (lines, holds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines, m.holds
}
