package aht20

import (
	"errors"
	"testing"

	"tinygo.org/x/drivers"
)

var _ drivers.I2C = (*fakeI2C)(nil)

// Scripted AHT20-like fake. busyReads data reads answer busy after each
// trigger.
type fakeI2C struct {
	calib      bool
	busyReads  int
	pending    int
	hraw, traw uint32
	inits      int
	err        error
}

func newFake() *fakeI2C {
	// 25.0°C, 55.0 %RH
	return &fakeI2C{calib: true, hraw: 576_717, traw: 393_216}
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	if f.err != nil {
		return f.err
	}
	status := func() byte {
		var s byte
		if f.calib {
			s |= statusCalibrated
		}
		if f.pending > 0 {
			s |= statusBusy
		}
		return s
	}
	switch {
	case len(w) == 1 && w[0] == cmdStatus && len(r) == 1:
		r[0] = status()
	case len(w) == 3 && w[0] == cmdInitialize:
		f.inits++
		f.calib = true
	case len(w) == 3 && w[0] == cmdTrigger:
		f.pending = f.busyReads
	case len(w) == 0 && len(r) == 7:
		r[0] = status()
		if f.pending > 0 {
			f.pending--
		}
		h, t := f.hraw, f.traw
		r[1] = byte(h >> 12)
		r[2] = byte(h >> 4)
		r[3] = byte((h&0xF)<<4 | (t>>16)&0x0F)
		r[4] = byte(t >> 8)
		r[5] = byte(t)
		r[6] = 0
	}
	return nil
}

func TestTwoPhase(t *testing.T) {
	bus := newFake()
	bus.busyReads = 1
	d := New(bus)
	if err := d.Configure(0); err != nil {
		t.Fatal(err)
	}
	if bus.inits != 0 {
		t.Fatalf("calibrated sensor re-initialised")
	}
	if err := d.Trigger(); err != nil {
		t.Fatal(err)
	}
	if err := d.Collect(nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("want ErrNotReady, got %v", err)
	}
	var s Sample
	if err := d.Collect(&s); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := s.DeciCelsius(); got != 250 {
		t.Fatalf("deci_c = %d, want 250", got)
	}
	if got := s.DeciRelHumidity(); got != 550 {
		t.Fatalf("deci_rh = %d, want 550", got)
	}
	if c := s.Celsius(); c < 24.99 || c > 25.01 {
		t.Fatalf("celsius = %v", c)
	}
	if p := s.Percent(); p < 54.99 || p > 55.01 {
		t.Fatalf("percent = %v", p)
	}
	if d.Last() != s {
		t.Fatalf("cache not updated")
	}
}

func TestConfigureInitialises(t *testing.T) {
	bus := newFake()
	bus.calib = false
	d := New(bus)
	if err := d.Configure(0x39); err != nil {
		t.Fatal(err)
	}
	if bus.inits != 1 || d.Address != 0x39 {
		t.Fatalf("inits=%d addr=%#x", bus.inits, d.Address)
	}
}

func TestUncalibratedIsProtocolError(t *testing.T) {
	bus := newFake()
	bus.calib = false
	d := New(bus)
	if err := d.Collect(nil); !errors.Is(err, ErrProtocol) {
		t.Fatalf("want ErrProtocol, got %v", err)
	}
}

func TestBusError(t *testing.T) {
	bus := newFake()
	bus.err = errors.New("nack")
	d := New(bus)
	if err := d.Configure(0); err == nil {
		t.Fatal("expected error")
	}
}
