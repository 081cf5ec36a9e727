// Package sim is a simulated bus world for host builds: address-decoded
// targets behind an i2cbus.Port, with full configure and transfer logs.
// Tests assert against the logs; demos run whole device stacks with no
// hardware attached.
package sim

import (
	"sync"
	"time"

	"mainboard-go/errcode"
	"mainboard-go/i2cbus"
)

// Target is one simulated device. Transfer handles a single controller
// operation: consume w, fill r. len(w) == len(r) == 0 is an address-only
// probe; returning nil acks it. Returning an error models a NAK or a
// device fault.
type Target interface {
	Transfer(w, r []byte) error
}

// OpRecord is one logged controller operation and the configuration it
// ran under.
type OpRecord struct {
	Cfg  i2cbus.DeviceConfig
	W    []byte
	RLen int
}

// Bus is the simulated wire: targets by address plus logs. Ports from
// Port or Indirect all drive the same wire.
type Bus struct {
	mu      sync.Mutex
	targets map[uint16]Target
	cfgLog  []i2cbus.DeviceConfig
	ops     []OpRecord
	latency time.Duration
}

func New() *Bus {
	return &Bus{targets: make(map[uint16]Target)}
}

// Attach wires a target at addr, replacing anything already there.
func (b *Bus) Attach(addr uint16, tgt Target) {
	b.mu.Lock()
	b.targets[addr] = tgt
	b.mu.Unlock()
}

func (b *Bus) Detach(addr uint16) {
	b.mu.Lock()
	delete(b.targets, addr)
	b.mu.Unlock()
}

// SetLatency adds a fixed delay to every transfer, for timeout tests.
func (b *Bus) SetLatency(d time.Duration) {
	b.mu.Lock()
	b.latency = d
	b.mu.Unlock()
}

// ConfigLog returns every configuration installed so far, in order.
func (b *Bus) ConfigLog() []i2cbus.DeviceConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]i2cbus.DeviceConfig(nil), b.cfgLog...)
}

// Operations returns every transfer operation logged so far, in order.
func (b *Bus) Operations() []OpRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]OpRecord(nil), b.ops...)
}

// Port opens a new view on the wire. Each view carries its own installed
// configuration and releases independently, so it can back one device.
func (b *Bus) Port() i2cbus.Port {
	return &view{world: b}
}

// Indirect wires this bus as a socket's indirection factory.
func (b *Bus) Indirect() i2cbus.IndirectFactory {
	return func(sock i2cbus.Socket, cfg i2cbus.DeviceConfig, owner string) (i2cbus.Port, error) {
		return b.Port(), nil
	}
}

type view struct {
	world *Bus

	mu       sync.Mutex
	cfg      i2cbus.DeviceConfig
	released bool
}

var _ i2cbus.Port = (*view)(nil)

func (v *view) Configure(cfg i2cbus.DeviceConfig) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return errcode.InvalidState
	}
	v.cfg = cfg
	v.world.mu.Lock()
	v.world.cfgLog = append(v.world.cfgLog, cfg)
	v.world.mu.Unlock()
	return nil
}

func (v *view) Transfer(txns []i2cbus.Transaction, timeout time.Duration) (int, error) {
	v.mu.Lock()
	if v.released {
		v.mu.Unlock()
		return 0, errcode.InvalidState
	}
	cfg := v.cfg
	v.mu.Unlock()

	v.world.mu.Lock()
	latency := v.world.latency
	v.world.mu.Unlock()
	if latency > 0 {
		if latency >= timeout {
			time.Sleep(timeout)
			return 0, errcode.Timeout
		}
		time.Sleep(latency)
	}

	n := 0
	for _, op := range i2cbus.Ops(txns) {
		v.world.mu.Lock()
		tgt := v.world.targets[cfg.Address]
		if tgt != nil {
			v.world.ops = append(v.world.ops, OpRecord{
				Cfg:  cfg,
				W:    append([]byte(nil), op.W...),
				RLen: len(op.R),
			})
		}
		v.world.mu.Unlock()

		if tgt == nil {
			return n, &errcode.E{C: errcode.BusError, Op: "tx", Msg: "no ack"}
		}
		if err := tgt.Transfer(op.W, op.R); err != nil {
			return n, errcode.AsBus("tx", err)
		}
		n += len(op.W) + len(op.R)
	}
	return n, nil
}

func (v *view) Release() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return errcode.InvalidState
	}
	v.released = true
	return nil
}
