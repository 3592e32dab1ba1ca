package tags

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/tmp102"
)

// Configuration register, first byte: OS R1 R0 F1 F0 POL TM SD. The second
// byte selects 4 Hz continuous rate, unused in shutdown mode.
const (
	tmpOneShot  = 0x80
	tmpRes12    = 0x60
	tmpShutdown = 0x01
	tmpByte2    = 0xA0
)

// TMPConversionTime is the typical one-shot conversion time.
const TMPConversionTime = 35 * time.Millisecond

var (
	ErrTMPNotReady = errors.New("tmp102: conversion in progress")
	ErrTMPProtocol = errors.New("tmp102: unexpected configuration")
)

// TMP runs a TMP102-compatible sensor (the board fits a TMP112) in shutdown
// mode so it converts only when triggered. Results are read through the
// tmp102 driver.
type TMP struct {
	bus  drivers.I2C
	addr uint16
	dev  tmp102.Device
	cfg  [2]byte
}

// NewTMP returns a sensor at address; 0 selects tmp102.Address. Nothing is
// sent until Configure.
func NewTMP(bus drivers.I2C, address uint16) *TMP {
	if address == 0 {
		address = tmp102.Address
	}
	t := &TMP{bus: bus, addr: address, dev: tmp102.New(bus)}
	t.dev.Configure(tmp102.Config{Address: uint8(address)})
	return t
}

// Configure enters shutdown mode.
func (t *TMP) Configure() error {
	return t.bus.Tx(t.addr, []byte{tmp102.RegConfiguration, tmpRes12 | tmpShutdown, tmpByte2}, nil)
}

// Trigger starts a one-shot conversion.
func (t *TMP) Trigger() error {
	return t.bus.Tx(t.addr, []byte{tmp102.RegConfiguration, tmpOneShot | tmpRes12 | tmpShutdown, tmpByte2}, nil)
}

// Collect returns the converted temperature in °C. OS reads zero while the
// conversion runs.
func (t *TMP) Collect() (float32, error) {
	b := t.cfg[:]
	if err := t.bus.Tx(t.addr, []byte{tmp102.RegConfiguration}, b); err != nil {
		return 0, err
	}
	if b[0]&tmpRes12 != tmpRes12 {
		return 0, ErrTMPProtocol
	}
	if b[0]&tmpOneShot == 0 {
		return 0, ErrTMPNotReady
	}
	mc, err := t.dev.ReadTemperature()
	if err != nil {
		return 0, err
	}
	return float32(mc) / 1000, nil
}
