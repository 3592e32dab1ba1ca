// Package mpl3115a2 provides a driver for the NXP MPL3115A2 pressure sensor in
// barometer mode. Measurements are one-shot:
//
//	d.Trigger()
//	err := d.Collect(&s)   // ErrNotReady until the conversion completes
//
// Altitude is derived from pressure with the international barometric
// formula rather than using the sensor's altimeter mode, so one conversion
// yields both values.
package mpl3115a2

import (
	"errors"
	"math"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address.
const Address = 0x60

const whoAmIValue = 0xC4

const (
	regStatus    = 0x00
	regOutPMSB   = 0x01
	regWhoAmI    = 0x0C
	regPTDataCfg = 0x13
	regCtrl1     = 0x26

	statusPTDR = 0x08

	ctrl1OST = 0x02
	ctrl1RST = 0x04
	// oversampling 128, conversion takes up to 512 ms
	ctrl1OS128 = 0x38

	ptDataEvents = 0x07 // DREM | PDEFE | TDEFE
)

// ConversionTime is the worst case one-shot conversion time at OS=128.
const ConversionTime = 512 * time.Millisecond

// SeaLevelPascal is the reference pressure for Altitude.
const SeaLevelPascal = 101326

var (
	ErrNotFound = errors.New("mpl3115a2: device not found")
	ErrNotReady = errors.New("mpl3115a2: not ready")
)

// Sample is one barometer reading.
type Sample struct {
	Pascal  float32
	Meter   float32
	Celsius float32
}

// Device wraps an I2C connection to an MPL3115A2.
type Device struct {
	bus     drivers.I2C
	Address uint16

	last Sample
	buf  [5]byte
}

// New creates a Device. It does not touch the bus.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Connected checks the WHO_AM_I register.
func (d *Device) Connected() bool {
	var b [1]byte
	err := d.bus.Tx(d.Address, []byte{regWhoAmI}, b[:])
	return err == nil && b[0] == whoAmIValue
}

// Configure verifies the device and leaves it in standby, barometer mode.
func (d *Device) Configure() error {
	if !d.Connected() {
		return ErrNotFound
	}
	if err := d.bus.Tx(d.Address, []byte{regCtrl1, ctrl1OS128}, nil); err != nil {
		return err
	}
	return d.bus.Tx(d.Address, []byte{regPTDataCfg, ptDataEvents}, nil)
}

// Reset issues a software reset. The device does not acknowledge the write.
func (d *Device) Reset() {
	_ = d.bus.Tx(d.Address, []byte{regCtrl1, ctrl1RST}, nil)
}

// Trigger starts a one-shot conversion.
func (d *Device) Trigger() error {
	return d.bus.Tx(d.Address, []byte{regCtrl1, ctrl1OS128 | ctrl1OST}, nil)
}

// Collect reads a completed conversion into out (which may be nil).
func (d *Device) Collect(out *Sample) error {
	var st [1]byte
	if err := d.bus.Tx(d.Address, []byte{regStatus}, st[:]); err != nil {
		return err
	}
	if st[0]&statusPTDR == 0 {
		return ErrNotReady
	}
	b := d.buf[:]
	if err := d.bus.Tx(d.Address, []byte{regOutPMSB}, b); err != nil {
		return err
	}
	// Pressure is unsigned Q18.2 in the upper 20 bits, temperature Q8.4.
	p := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	t := int16(uint16(b[3])<<8|uint16(b[4])) >> 4

	d.last.Pascal = float32(p>>4) / 4
	d.last.Celsius = float32(t) / 16
	d.last.Meter = Altitude(d.last.Pascal)
	if out != nil {
		*out = d.last
	}
	return nil
}

// Last returns the last collected sample.
func (d *Device) Last() Sample { return d.last }

// Altitude converts pressure to metres above sea level.
func Altitude(pascal float32) float32 {
	if pascal <= 0 {
		return float32(math.NaN())
	}
	return float32(44330.77 * (1 - math.Pow(float64(pascal)/SeaLevelPascal, 0.1902632)))
}
