// Package eeprom24 drives 24Cxx-family serial EEPROMs (24C32..24C512,
// two-byte addressing). Reads are a single set-offset write followed by a
// repeated-start read of any length; writes are chunked on page
// boundaries with acknowledge polling between pages.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read
// when both w and r are provided, without releasing the bus.
package eeprom24

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"mainboard-go/x/mathx"
)

// I2C base address for the family (A2..A0 strapped low).
const Address = 0x50

// Errors returned by the driver.
var (
	ErrTimeout    = errors.New("eeprom24: timeout waiting for write cycle")
	ErrOutOfRange = errors.New("eeprom24: offset out of range")
)

// Config describes the part. All fields are optional.
type Config struct {
	// Address defaults to 0x50 if zero.
	Address uint16
	// Size is the array size in bytes. Default 8192 (24C64).
	Size int
	// PageSize is the write-page size. Default 32.
	PageSize int
	// PollInterval spaces acknowledge polls during a write cycle.
	// Default 1 ms.
	PollInterval time.Duration
	// SettleTimeout bounds the wait for one write cycle to finish.
	// Default 50 ms, several times a typical 5 ms cycle.
	SettleTimeout time.Duration
}

// Device wraps an I2C connection to one EEPROM.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg   Config
	wbuf  []byte  // offset header + one page, reused across chunks
	probe [1]byte // acknowledge-poll read target
}

// New creates the connection object; it does not touch the device.
// The I2C bus must already be configured.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
	}
}

// Configure applies part parameters. It may be called with no cfg for
// the defaults.
func (d *Device) Configure(cfgs ...Config) {
	c := Config{}
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.Size <= 0 {
		c.Size = 8192
	}
	if c.PageSize <= 0 {
		c.PageSize = 32
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Millisecond
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = 50 * time.Millisecond
	}
	d.cfg = c
	d.wbuf = make([]byte, 0, 2+c.PageSize)
}

func (d *Device) Size() int     { return d.cfg.Size }
func (d *Device) PageSize() int { return d.cfg.PageSize }

// ReadAt fills buf from the array starting at off. The part streams
// sequentially, so any length is one bus operation.
func (d *Device) ReadAt(off int, buf []byte) error {
	d.ensureConfigured()
	if off < 0 || off+len(buf) > d.cfg.Size {
		return ErrOutOfRange
	}
	if len(buf) == 0 {
		return nil
	}
	return d.bus.Tx(d.Address, []byte{byte(off >> 8), byte(off)}, buf)
}

// WriteAt writes data starting at off, splitting on page boundaries and
// acknowledge-polling out each internal write cycle.
func (d *Device) WriteAt(off int, data []byte) error {
	d.ensureConfigured()
	if off < 0 || off+len(data) > d.cfg.Size {
		return ErrOutOfRange
	}
	for len(data) > 0 {
		n := mathx.Min(len(data), d.cfg.PageSize-off%d.cfg.PageSize)
		d.wbuf = d.wbuf[:0]
		d.wbuf = append(d.wbuf, byte(off>>8), byte(off))
		d.wbuf = append(d.wbuf, data[:n]...)
		if err := d.bus.Tx(d.Address, d.wbuf, nil); err != nil {
			return err
		}
		if err := d.WaitReady(d.cfg.SettleTimeout); err != nil {
			return err
		}
		off += n
		data = data[n:]
	}
	return nil
}

// WaitReady polls until the part acknowledges again after a write cycle.
// The part NAKs every access while its internal write runs.
func (d *Device) WaitReady(timeout time.Duration) error {
	d.ensureConfigured()
	deadline := time.Now().Add(timeout)
	for {
		if err := d.bus.Tx(d.Address, nil, d.probe[:]); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(d.cfg.PollInterval)
	}
}

func (d *Device) ensureConfigured() {
	if d.cfg.PageSize == 0 {
		d.Configure()
	}
}
