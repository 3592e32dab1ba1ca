// Package lis2dh12 provides a driver for the ST LIS2DH12 3-axis accelerometer.
//
// The driver is register-level only: it configures the output data rate,
// resolution and full scale, reads acceleration in g and programs the INT1
// threshold generator. It never sleeps; callers decide when to read (after
// the data-ready bit is set or an interrupt fired).
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package lis2dh12

import (
	"errors"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/lis3dh"
)

// I2C addresses (SA0 low/high). The register map is shared with the
// LIS3DH.
const (
	Address0 = lis3dh.Address0
	Address1 = lis3dh.Address1
)

const whoAmIValue = 0x33

// Registers.
const (
	regWhoAmI     = lis3dh.WHO_AM_I
	regCtrl1      = lis3dh.REG_CTRL1
	regCtrl2      = lis3dh.REG_CTRL2
	regCtrl3      = lis3dh.REG_CTRL3
	regCtrl4      = lis3dh.REG_CTRL4
	regCtrl5      = lis3dh.REG_CTRL5
	regCtrl6      = lis3dh.REG_CTRL6
	regStatus     = lis3dh.REG_STATUS2
	regOutXL      = lis3dh.REG_OUT_X_L
	regInt1Cfg    = lis3dh.REG_INT1CFG
	regInt1Src    = lis3dh.REG_INT1SRC
	regInt1Ths    = lis3dh.REG_INT1THS
	regInt1Dur    = lis3dh.REG_INT1DUR
	autoIncrement = 0x80
)

// Bits.
const (
	ctrl1LPen   = 0x08
	ctrl1XYZen  = 0x07
	ctrl3I1IA1  = 0x40
	ctrl4BDU    = 0x80
	ctrl4HR     = 0x08
	ctrl5LIR1   = 0x08
	statusZYXDA = 0x08
	int1SrcIA   = 0x40

	int1XLIE = 0x01
	int1XHIE = 0x02
	int1YLIE = 0x04
	int1YHIE = 0x08
	int1ZLIE = 0x10
	int1ZHIE = 0x20
)

// Errors returned by the driver.
var (
	ErrNotFound = errors.New("lis2dh12: device not found")
	ErrNotReady = errors.New("lis2dh12: not ready")
)

// Resolution selects the operating mode.
type Resolution uint8

const (
	Resolution8Bit  Resolution = iota // low-power
	Resolution10Bit                   // normal
	Resolution12Bit                   // high-resolution
)

// Scale selects the full-scale range.
type Scale uint8

const (
	Scale2G Scale = iota
	Scale4G
	Scale8G
	Scale16G
)

// Rate is the output data rate.
type Rate uint8

const (
	RatePowerDown Rate = 0x0
	Rate1Hz       Rate = 0x1
	Rate10Hz      Rate = 0x2
	Rate25Hz      Rate = 0x3
	Rate50Hz      Rate = 0x4
	Rate100Hz     Rate = 0x5
	Rate200Hz     Rate = 0x6
	Rate400Hz     Rate = 0x7
)

// Alarm configures the INT1 threshold generator. Flags are OR-combined.
type Alarm struct {
	XLow, XHigh bool
	YLow, YHigh bool
	ZLow, ZHigh bool
	Threshold   float32 // g
	Duration    uint8   // ODR periods, 0..127
}

// Config holds the initial settings applied by Configure.
type Config struct {
	// Address defaults to Address1 if zero.
	Address    uint16
	Resolution Resolution
	Scale      Scale
	Rate       Rate
}

// Device wraps an I2C connection to a LIS2DH12.
type Device struct {
	bus     drivers.I2C
	Address uint16

	res   Resolution
	scale Scale
	rate  Rate
	buf   [6]byte
}

// New creates a Device; it does not touch the bus.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address1, rate: RatePowerDown}
}

// Connected checks the WHO_AM_I register.
func (d *Device) Connected() bool {
	v, err := d.readReg(regWhoAmI)
	return err == nil && v == whoAmIValue
}

// Configure verifies the device and applies cfg. The interrupt generator is
// left disabled.
func (d *Device) Configure(cfg Config) error {
	if cfg.Address != 0 {
		d.Address = cfg.Address
	}
	if !d.Connected() {
		return ErrNotFound
	}
	d.res = cfg.Resolution
	d.scale = cfg.Scale
	d.rate = cfg.Rate
	if err := d.writeReg(regCtrl2, 0x00); err != nil {
		return err
	}
	if err := d.writeReg(regCtrl3, 0x00); err != nil {
		return err
	}
	if err := d.writeReg(regCtrl5, ctrl5LIR1); err != nil {
		return err
	}
	if err := d.writeReg(regCtrl6, 0x00); err != nil {
		return err
	}
	if err := d.writeReg(regInt1Cfg, 0x00); err != nil {
		return err
	}
	if err := d.writeCtrl4(); err != nil {
		return err
	}
	return d.writeCtrl1()
}

// SetResolution changes the operating mode.
func (d *Device) SetResolution(r Resolution) error {
	d.res = r
	if err := d.writeCtrl4(); err != nil {
		return err
	}
	return d.writeCtrl1()
}

// SetScale changes the full-scale range. Any armed alarm threshold must be
// reprogrammed afterwards since its LSB weight depends on the scale.
func (d *Device) SetScale(s Scale) error {
	d.scale = s
	return d.writeCtrl4()
}

// SetRate changes the output data rate; RatePowerDown stops sampling.
func (d *Device) SetRate(r Rate) error {
	d.rate = r
	return d.writeCtrl1()
}

func (d *Device) Resolution() Resolution { return d.res }
func (d *Device) Scale() Scale           { return d.scale }
func (d *Device) Rate() Rate             { return d.rate }

// DataReady reports whether a new XYZ sample is available.
func (d *Device) DataReady() (bool, error) {
	v, err := d.readReg(regStatus)
	if err != nil {
		return false, err
	}
	return v&statusZYXDA != 0, nil
}

// ReadAcceleration returns the latest sample in g. ErrNotReady is returned
// when the device is powered down.
func (d *Device) ReadAcceleration() (x, y, z float32, err error) {
	if d.rate == RatePowerDown {
		return 0, 0, 0, ErrNotReady
	}
	data := d.buf[:]
	if err := d.bus.Tx(d.Address, []byte{regOutXL | autoIncrement}, data); err != nil {
		return 0, 0, 0, err
	}
	shift, mg := d.format()
	conv := func(lo, hi byte) float32 {
		raw := int16(uint16(hi)<<8 | uint16(lo))
		return float32(raw>>shift) * mg / 1000
	}
	return conv(data[0], data[1]), conv(data[2], data[3]), conv(data[4], data[5]), nil
}

// SetAlarm programs INT1. A nil alarm, or one with no flags, disables it.
func (d *Device) SetAlarm(a *Alarm) error {
	if a == nil || !(a.XLow || a.XHigh || a.YLow || a.YHigh || a.ZLow || a.ZHigh) {
		if err := d.writeReg(regInt1Cfg, 0x00); err != nil {
			return err
		}
		return d.writeReg(regCtrl3, 0x00)
	}
	if err := d.writeReg(regInt1Ths, ThresholdRegister(a.Threshold, d.scale)); err != nil {
		return err
	}
	if err := d.writeReg(regInt1Dur, a.Duration&0x7F); err != nil {
		return err
	}
	var cfg byte
	if a.XLow {
		cfg |= int1XLIE
	}
	if a.XHigh {
		cfg |= int1XHIE
	}
	if a.YLow {
		cfg |= int1YLIE
	}
	if a.YHigh {
		cfg |= int1YHIE
	}
	if a.ZLow {
		cfg |= int1ZLIE
	}
	if a.ZHigh {
		cfg |= int1ZHIE
	}
	if err := d.writeReg(regInt1Cfg, cfg); err != nil {
		return err
	}
	// Reading INT1_SRC releases a latched interrupt from the previous alarm.
	if _, _, err := d.AlarmSource(); err != nil {
		return err
	}
	return d.writeReg(regCtrl3, ctrl3I1IA1)
}

// AlarmSource reads (and thereby clears) INT1_SRC. active reports whether the
// interrupt condition was met.
func (d *Device) AlarmSource() (src byte, active bool, err error) {
	src, err = d.readReg(regInt1Src)
	if err != nil {
		return 0, false, err
	}
	return src, src&int1SrcIA != 0, nil
}

// ThresholdRegister converts a threshold in g to the INT1_THS value for scale.
func ThresholdRegister(g float32, s Scale) byte {
	lsb := [...]float32{0.016, 0.032, 0.062, 0.186}[s&3]
	v := g/lsb + 0.5
	if v < 0 {
		v = 0
	}
	if v > 127 {
		v = 127
	}
	return byte(v)
}

// format returns the right shift and mg per digit for the current mode.
func (d *Device) format() (shift uint, mg float32) {
	switch d.res {
	case Resolution8Bit:
		return 8, [...]float32{16, 32, 64, 192}[d.scale&3]
	case Resolution10Bit:
		return 6, [...]float32{4, 8, 16, 48}[d.scale&3]
	default:
		return 4, [...]float32{1, 2, 4, 12}[d.scale&3]
	}
}

func (d *Device) writeCtrl1() error {
	v := byte(d.rate)<<4 | ctrl1XYZen
	if d.res == Resolution8Bit {
		v |= ctrl1LPen
	}
	return d.writeReg(regCtrl1, v)
}

func (d *Device) writeCtrl4() error {
	v := byte(ctrl4BDU) | byte(d.scale&3)<<4
	if d.res == Resolution12Bit {
		v |= ctrl4HR
	}
	return d.writeReg(regCtrl4, v)
}

func (d *Device) readReg(reg byte) (byte, error) {
	var b [1]byte
	if err := d.bus.Tx(d.Address, []byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) writeReg(reg, v byte) error {
	return d.bus.Tx(d.Address, []byte{reg, v}, nil)
}
