package i2cbus

import "time"

// Port drives one physical or virtual bus controller. Implementations:
// the machine-backed port on RP2 targets, sim.Bus on hosts, bridge.Client
// for a bus head on the far side of a serial link, and DriverPort over any
// tinygo driver bus.
//
// Transfer runs the whole list as one bus operation and returns the bytes
// moved before completion or failure. Configure applies before the next
// Transfer; ports may defer hardware writes until then. Release frees the
// controller; afterwards both other calls return InvalidState.
type Port interface {
	Configure(cfg DeviceConfig) error
	Transfer(txns []Transaction, timeout time.Duration) (int, error)
	Release() error
}

// IndirectFactory builds a private Port for a device on a socket whose bus
// is not wired to the native controller. The factory owns backend
// construction; the returned Port is exclusive to the requesting device.
type IndirectFactory func(sock Socket, cfg DeviceConfig, owner string) (Port, error)

// Socket is what the bus core needs from a board socket. The socket
// package provides the concrete implementation; tests substitute stubs.
type Socket interface {
	// Ref names the socket for error context, e.g. "socket3".
	Ref() string

	// EnsureI2C fails with IncompatibleSocket when the socket does not
	// carry the I2C type tag.
	EnsureI2C(owner string) error

	// ReserveI2CPins claims the socket's SDA and SCL pins for owner, or
	// fails with PinConflict leaving nothing reserved.
	ReserveI2CPins(owner string) error
	ReleaseI2CPins(owner string)

	// I2CIndirect returns nil when the socket is wired to the native
	// controller.
	I2CIndirect() IndirectFactory

	// NativeBus returns the board's shared controller with a reference
	// already taken for the caller. The caller releases it via Close.
	NativeBus() (*SharedBus, error)
}
