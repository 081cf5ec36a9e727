package i2cbus

import (
	"sync"
	"time"

	"mainboard-go/errcode"
)

// Device is one logical device on a socket: an address, a clock rate, and
// a claim on the socket's bus pins. Handles are safe to share between
// goroutines; the configuration travels with every transfer, so two
// handles on the same controller never interleave under the wrong
// settings.
type Device struct {
	mu     sync.Mutex
	cfg    DeviceConfig
	sock   Socket
	owner  string
	bus    *SharedBus
	closed bool
}

// Open claims sock for an I2C device at addr. The socket must carry the
// I2C type tag and have both bus pins free. Sockets with a bus indirection
// get a private backend from their factory; all others share the board's
// native controller. clockKHz zero selects DefaultClockKHz.
func Open(sock Socket, addr uint16, clockKHz int32, owner string) (*Device, error) {
	if err := sock.EnsureI2C(owner); err != nil {
		return nil, err
	}
	if err := sock.ReserveI2CPins(owner); err != nil {
		return nil, err
	}
	cfg := NewConfig(addr, clockKHz)

	var bus *SharedBus
	if fac := sock.I2CIndirect(); fac != nil {
		port, err := fac(sock, cfg, owner)
		if err != nil {
			sock.ReleaseI2CPins(owner)
			return nil, err
		}
		bus = NewSharedBus(port, nil)
	} else {
		b, err := sock.NativeBus()
		if err != nil {
			sock.ReleaseI2CPins(owner)
			return nil, err
		}
		bus = b
	}

	return &Device{cfg: cfg, sock: sock, owner: owner, bus: bus}, nil
}

// Address reports the device address transfers are issued to.
func (d *Device) Address() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Address
}

// SetAddress retargets the handle. No bus traffic happens here; the new
// address rides along with the next transfer.
func (d *Device) SetAddress(addr uint16) {
	d.mu.Lock()
	d.cfg = d.cfg.WithAddress(addr)
	d.mu.Unlock()
}

func (d *Device) ClockKHz() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.ClockKHz
}

func (d *Device) SetClockKHz(khz int32) {
	d.mu.Lock()
	d.cfg = d.cfg.WithClockKHz(khz)
	d.mu.Unlock()
}

// Config snapshots the handle's current configuration.
func (d *Device) Config() DeviceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Write sends buf and returns the bytes written.
func (d *Device) Write(buf []byte, timeout time.Duration) (int, error) {
	return d.Execute([]Transaction{Write(buf)}, timeout)
}

// Read fills buf and returns the bytes read.
func (d *Device) Read(buf []byte, timeout time.Duration) (int, error) {
	return d.Execute([]Transaction{Read(buf)}, timeout)
}

// WriteRead sends wbuf then fills rbuf in one bus operation (repeated
// start, no release in between). Returns the combined count.
func (d *Device) WriteRead(wbuf, rbuf []byte, timeout time.Duration) (int, error) {
	return d.Execute([]Transaction{Write(wbuf), Read(rbuf)}, timeout)
}

// Execute runs an arbitrary transaction list under the handle's current
// configuration. The list runs atomically with respect to other handles on
// the same controller.
func (d *Device) Execute(txns []Transaction, timeout time.Duration) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, errcode.InvalidState
	}
	cfg := d.cfg
	bus := d.bus
	d.mu.Unlock()

	return bus.Execute(cfg, txns, timeout)
}

// Close frees the socket pins and drops the handle's bus reference. Other
// handles on the same controller keep working; the controller itself goes
// away with its last handle. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	bus := d.bus
	d.mu.Unlock()

	err := bus.Release()
	d.sock.ReleaseI2CPins(d.owner)
	if errcode.Of(err) == errcode.InvalidState {
		// The bus was already torn down elsewhere; the handle is still
		// considered cleanly closed.
		return nil
	}
	return err
}
