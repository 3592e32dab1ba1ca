// Package aht20 drives the AHT20 temperature/humidity sensor with a
// two-phase measurement:
//
//	d.Trigger()            // start a conversion
//	err := d.Collect(&s)   // ErrNotReady while the sensor is busy
//
// Nothing in the driver sleeps; the caller schedules Collect after
// ConversionTime.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package aht20

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address.
const Address = 0x38

// ConversionTime is the nominal measurement time after Trigger.
const ConversionTime = 80 * time.Millisecond

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

var (
	ErrNotReady = errors.New("aht20: not ready")
	ErrProtocol = errors.New("aht20: not calibrated")
)

// Device is one AHT20 on an I2C bus.
type Device struct {
	bus     drivers.I2C
	Address uint16

	buf  [7]byte
	last Sample
}

// New returns a device at the default address. The bus must already be
// configured; nothing is sent until Configure.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure sends the calibration command unless the sensor reports it is
// already calibrated. address 0 keeps the default.
func (d *Device) Configure(address uint16) error {
	if address != 0 {
		d.Address = address
	}
	st, err := d.Status()
	if err != nil {
		return err
	}
	if st&statusCalibrated != 0 {
		return nil
	}
	return d.bus.Tx(d.Address, []byte{cmdInitialize, 0x08, 0x00}, nil)
}

// Reset issues a soft reset; the sensor needs about 20 ms afterwards.
func (d *Device) Reset() error {
	return d.bus.Tx(d.Address, []byte{cmdSoftReset}, nil)
}

// Status reads the status byte.
func (d *Device) Status() (byte, error) {
	var b [1]byte
	if err := d.bus.Tx(d.Address, []byte{cmdStatus}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Trigger starts a conversion.
func (d *Device) Trigger() error {
	return d.bus.Tx(d.Address, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// Collect reads the conversion result into out (which may be nil) and the
// device cache.
func (d *Device) Collect(out *Sample) error {
	data := d.buf[:]
	if err := d.bus.Tx(d.Address, nil, data); err != nil {
		return err
	}
	if data[0]&statusBusy != 0 {
		return ErrNotReady
	}
	if data[0]&statusCalibrated == 0 {
		return ErrProtocol
	}
	s := Sample{
		RawHumidity: uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4,
		RawTemp:     uint32(data[3]&0x0F)<<16 | uint32(data[4])<<8 | uint32(data[5]),
	}
	d.last = s
	if out != nil {
		*out = s
	}
	return nil
}

// Last returns the most recent sample.
func (d *Device) Last() Sample { return d.last }

// Sample holds 20-bit raw readings.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

// Percent returns relative humidity in %.
func (s Sample) Percent() float32 { return float32(s.RawHumidity) * 100 / 0x100000 }

// Celsius returns the temperature in °C.
func (s Sample) Celsius() float32 { return float32(s.RawTemp)*200/0x100000 - 50 }

// DeciRelHumidity returns tenths of %RH without floating point.
func (s Sample) DeciRelHumidity() int32 { return int32(int64(s.RawHumidity) * 1000 / 0x100000) }

// DeciCelsius returns tenths of °C without floating point.
func (s Sample) DeciCelsius() int32 { return int32(int64(s.RawTemp)*2000/0x100000) - 500 }
