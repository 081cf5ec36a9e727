package i2cbus

import (
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"mainboard-go/errcode"
)

// Conn presents a Device as a tinygo driver bus, so existing drivers run
// on top of a socket device unchanged. A driver addressing a different
// target simply retargets the handle first.
type Conn struct {
	dev     *Device
	timeout time.Duration
}

var _ drivers.I2C = (*Conn)(nil)

// NewConn wraps dev. timeout bounds each Tx; zero selects one second.
func NewConn(dev *Device, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Conn{dev: dev, timeout: timeout}
}

func (c *Conn) Tx(addr uint16, w, r []byte) error {
	if addr != c.dev.Address() {
		c.dev.SetAddress(addr)
	}
	txns := make([]Transaction, 0, 2)
	if len(w) > 0 {
		txns = append(txns, Write(w))
	}
	if len(r) > 0 {
		txns = append(txns, Read(r))
	}
	if len(txns) == 0 {
		txns = append(txns, Write(nil)) // address-only probe
	}
	_, err := c.dev.Execute(txns, c.timeout)
	return err
}

// DriverPort adapts any tinygo driver bus into a Port, so an indirection
// factory can hand the core a bus that already exists (a USB bridge
// adapter, another MCU controller, a fake). Clock changes cannot cross the
// drivers interface; Configure records them and programs only the address.
type DriverPort struct {
	bus drivers.I2C

	mu       sync.Mutex
	cfg      DeviceConfig
	released bool
}

var _ Port = (*DriverPort)(nil)

func NewDriverPort(bus drivers.I2C) *DriverPort {
	return &DriverPort{bus: bus, cfg: DeviceConfig{ClockKHz: DefaultClockKHz}}
}

func (p *DriverPort) Configure(cfg DeviceConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errcode.InvalidState
	}
	p.cfg = cfg
	return nil
}

// Transfer runs the list synchronously. The drivers interface has no
// deadline support, so the timeout is checked between legs: a sequence
// never starts a new leg past its budget.
func (p *DriverPort) Transfer(txns []Transaction, timeout time.Duration) (int, error) {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return 0, errcode.InvalidState
	}
	addr := p.cfg.Address
	p.mu.Unlock()

	start := time.Now()
	done := 0
	for _, op := range Ops(txns) {
		if time.Since(start) > timeout {
			return done, errcode.Timeout
		}
		if err := p.bus.Tx(addr, op.W, op.R); err != nil {
			return done, errcode.AsBus("tx", err)
		}
		done += len(op.W) + len(op.R)
	}
	return done, nil
}

func (p *DriverPort) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errcode.InvalidState
	}
	p.released = true
	return nil
}
