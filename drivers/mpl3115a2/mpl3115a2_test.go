package mpl3115a2

import (
	"errors"
	"math"
	"testing"
)

type fakeBus struct {
	regs   [0x30]byte
	ready  bool
	ctrl1s []byte
}

func newFakeBus() *fakeBus {
	f := &fakeBus{}
	f.regs[regWhoAmI] = whoAmIValue
	return f
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	if addr != Address {
		return errors.New("nack")
	}
	reg := w[0]
	if len(w) == 2 {
		f.regs[reg] = w[1]
		if reg == regCtrl1 {
			f.ctrl1s = append(f.ctrl1s, w[1])
		}
		return nil
	}
	if reg == regStatus && f.ready {
		f.regs[regStatus] = statusPTDR
	}
	copy(r, f.regs[reg:])
	return nil
}

// setPressure stores pascal (multiple of 0.25) and celsius (multiple of 1/16).
func (f *fakeBus) setPressure(pascal float64, celsius float64) {
	p := uint32(pascal*4) << 4
	f.regs[regOutPMSB] = byte(p >> 16)
	f.regs[regOutPMSB+1] = byte(p >> 8)
	f.regs[regOutPMSB+2] = byte(p)
	t := uint16(int16(celsius*16) << 4)
	f.regs[regOutPMSB+3] = byte(t >> 8)
	f.regs[regOutPMSB+4] = byte(t)
}

func TestConfigure(t *testing.T) {
	bus := newFakeBus()
	d := New(bus)
	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	if bus.regs[regPTDataCfg] != ptDataEvents {
		t.Fatalf("PT_DATA_CFG=%#x", bus.regs[regPTDataCfg])
	}
	if bus.regs[regCtrl1]&ctrl1OST != 0 {
		t.Fatal("configure must not start a conversion")
	}

	bus.regs[regWhoAmI] = 0
	if err := d.Configure(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestTriggerCollect(t *testing.T) {
	bus := newFakeBus()
	d := New(bus)
	if err := d.Trigger(); err != nil {
		t.Fatal(err)
	}
	if got := bus.ctrl1s[len(bus.ctrl1s)-1]; got&ctrl1OST == 0 {
		t.Fatalf("CTRL_REG1=%#x, OST not set", got)
	}

	var s Sample
	if err := d.Collect(&s); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err=%v want ErrNotReady", err)
	}

	bus.setPressure(98765.25, -3.5)
	bus.ready = true
	if err := d.Collect(&s); err != nil {
		t.Fatal(err)
	}
	if s.Pascal != 98765.25 {
		t.Fatalf("pascal=%v", s.Pascal)
	}
	if s.Celsius != -3.5 {
		t.Fatalf("celsius=%v", s.Celsius)
	}
	if s.Meter < 215 || s.Meter > 217 {
		t.Fatalf("meter=%v", s.Meter)
	}
	if d.Last() != s {
		t.Fatal("Last does not match collected sample")
	}
}

func TestAltitude(t *testing.T) {
	if a := Altitude(SeaLevelPascal); math.Abs(float64(a)) > 0.01 {
		t.Fatalf("sea level altitude=%v", a)
	}
	if a := Altitude(89875); a < 990 || a > 1010 {
		t.Fatalf("altitude at 898.75 hPa=%v, want ~1000 m", a)
	}
	if a := Altitude(0); !math.IsNaN(float64(a)) {
		t.Fatalf("altitude at 0 Pa=%v, want NaN", a)
	}
}
