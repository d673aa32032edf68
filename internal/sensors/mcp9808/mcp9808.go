package mcp9808

import (
	"fmt"

	"ledbrick-ng/internal/i2c"
)

// Minimal MCP9808 driver.
//
// Verifies manufacturer/device IDs, selects the highest resolution and reads
// the ambient temperature register.

const (
	addrDefault = 0x18

	regConfig     = 0x01
	regTAmbient   = 0x05
	regManufID    = 0x06
	regDeviceID   = 0x07
	regResolution = 0x08

	manufIDMicrochip = 0x0054
	deviceIDMCP9808  = 0x04

	// 0.0625 C per LSB.
	resolutionMax = 0x03

	tempValueMask = 0x1FFF
	tempSignBit   = 0x1000
)

type Device struct {
	dev regIO
}

type regIO interface {
	ReadReg(reg byte, dst []byte) error
	ReadRegU16BE(reg byte) (uint16, error)
	Write(p []byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("mcp9808: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("mcp9808: dev is nil")
	}
	d := &Device{dev: dev}

	manuf, err := d.dev.ReadRegU16BE(regManufID)
	if err != nil {
		return nil, fmt.Errorf("mcp9808: manufacturer id read failed: %w", err)
	}
	if manuf != manufIDMicrochip {
		return nil, fmt.Errorf("mcp9808: manufacturer id=0x%04X want 0x%04X", manuf, manufIDMicrochip)
	}

	devID, err := d.dev.ReadRegU16BE(regDeviceID)
	if err != nil {
		return nil, fmt.Errorf("mcp9808: device id read failed: %w", err)
	}
	if byte(devID>>8) != deviceIDMCP9808 {
		return nil, fmt.Errorf("mcp9808: device id=0x%02X want 0x%02X", byte(devID>>8), deviceIDMCP9808)
	}

	// Continuous conversion, alerts off.
	if err := d.dev.Write([]byte{regConfig, 0x00, 0x00}); err != nil {
		return nil, fmt.Errorf("mcp9808: config write failed: %w", err)
	}
	if err := d.dev.Write([]byte{regResolution, resolutionMax}); err != nil {
		return nil, fmt.Errorf("mcp9808: resolution write failed: %w", err)
	}

	return d, nil
}

// ReadTemperature returns the ambient temperature in C.
func (d *Device) ReadTemperature() (float64, error) {
	raw, err := d.dev.ReadRegU16BE(regTAmbient)
	if err != nil {
		return 0, fmt.Errorf("mcp9808: read temperature failed: %w", err)
	}
	// Upper 3 bits are alert flags.
	v := int(raw & tempValueMask)
	if v&tempSignBit != 0 {
		v -= tempSignBit << 1
	}
	return float64(v) * 0.0625, nil
}
