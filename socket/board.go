package socket

import (
	"sync"

	"mainboard-go/errcode"
	"mainboard-go/i2cbus"
	"mainboard-go/x/strconvx"
)

// I2CPlan routes the native controller: which on-chip controller, which
// GPIOs carry the bus, and its power-on clock.
type I2CPlan struct {
	Controller int
	SDA, SCL   int
	ClockKHz   int32
}

// NativePortFunc builds the platform port for a plan. Host builds have
// none and leave it unset.
type NativePortFunc func(plan I2CPlan) (i2cbus.Port, error)

// Board is a socket set over one pin ledger, plus the lazily initialised
// shared I2C controller.
type Board struct {
	name    string
	ledger  *Ledger
	sockets map[int]*Socket

	mu     sync.Mutex
	plan   I2CPlan
	native NativePortFunc
	shared *i2cbus.SharedBus
}

func NewBoard(name string, gpioMin, gpioMax int) *Board {
	return &Board{
		name:    name,
		ledger:  NewLedger(gpioMin, gpioMax),
		sockets: make(map[int]*Socket),
	}
}

func (b *Board) Name() string    { return b.name }
func (b *Board) Ledger() *Ledger { return b.ledger }

// SetI2CPlan wires the native controller factory. Boards without one
// serve only indirected sockets.
func (b *Board) SetI2CPlan(plan I2CPlan, native NativePortFunc) {
	b.mu.Lock()
	b.plan = plan
	b.native = native
	b.mu.Unlock()
}

// AddSocket registers a socket. Numbers are unique per board.
func (b *Board) AddSocket(number int, types string, pins map[Pin]int) (*Socket, error) {
	if _, dup := b.sockets[number]; dup {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "socket", Msg: "duplicate socket " + strconvx.Itoa(number)}
	}
	cp := make(map[Pin]int, len(pins))
	for k, v := range pins {
		cp[k] = v
	}
	s := &Socket{board: b, number: number, types: types, pins: cp}
	b.sockets[number] = s
	return s, nil
}

// Socket looks a socket up by number.
func (b *Board) Socket(number int) (*Socket, error) {
	s, ok := b.sockets[number]
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownSocket, Op: "socket", Msg: "socket" + strconvx.Itoa(number)}
	}
	return s, nil
}

// Sockets lists the board's sockets in number order... callers that need
// order sort; map iteration is fine for the few sockets a board has.
func (b *Board) Sockets() []*Socket {
	out := make([]*Socket, 0, len(b.sockets))
	for _, s := range b.sockets {
		out = append(out, s)
	}
	return out
}

// SharedI2C returns the board's native controller, creating it on first
// demand: the plan's bus GPIOs are reserved under the controller's own
// tag, the platform port is built, and teardown (on the last handle's
// close) releases both again so a later handle can re-initialise.
// Every successful return carries one reference for the caller.
func (b *Board) SharedI2C() (*i2cbus.SharedBus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shared != nil && !b.shared.Released() {
		if err := b.shared.Retain(); err != nil {
			return nil, err
		}
		return b.shared, nil
	}
	if b.native == nil {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "i2c", Msg: "no native controller on " + b.name}
	}

	tag := "i2c" + strconvx.Itoa(b.plan.Controller)
	if err := b.ledger.Reserve(b.plan.SDA, tag); err != nil {
		return nil, err
	}
	if err := b.ledger.Reserve(b.plan.SCL, tag); err != nil {
		b.ledger.Release(b.plan.SDA, tag)
		return nil, err
	}

	port, err := b.native(b.plan)
	if err != nil {
		b.ledger.Release(b.plan.SDA, tag)
		b.ledger.Release(b.plan.SCL, tag)
		return nil, err
	}

	// The hook checks it still owns the cache slot: a replacement bus built
	// between the last Release and the hook firing holds the same pin
	// reservations, and they must survive.
	plan := b.plan
	var bus *i2cbus.SharedBus
	bus = i2cbus.NewSharedBus(port, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.shared == bus {
			b.shared = nil
			b.ledger.Release(plan.SDA, tag)
			b.ledger.Release(plan.SCL, tag)
		}
	})
	b.shared = bus
	return bus, nil
}
