package i2cbus

import (
	"sync"
	"time"

	"mainboard-go/errcode"
)

// SharedBus serialises access to one Port across any number of device
// handles. Each Execute call installs the caller's configuration and runs
// its transaction list inside the same critical section, so the
// configuration on the wire always belongs to the caller.
//
// The bus is reference counted: construction takes the first reference,
// Retain takes another, Release drops one. The last Release releases the
// underlying Port and fires the teardown hook, after which every call
// fails with InvalidState.
type SharedBus struct {
	slot chan struct{} // capacity 1; holding the token = owning the bus
	port Port

	mu         sync.Mutex
	active     DeviceConfig
	refs       int
	released   bool
	onTeardown func()
}

// NewSharedBus wraps port. The caller holds the first reference. hook may
// be nil; it runs once, after the port is released.
func NewSharedBus(port Port, hook func()) *SharedBus {
	return &SharedBus{
		slot:       make(chan struct{}, 1),
		port:       port,
		active:     DeviceConfig{Address: 0, ClockKHz: 50}, // power-on placeholder
		refs:       1,
		onTeardown: hook,
	}
}

// Execute acquires the bus, applies cfg, runs the list, and frees the bus.
// The timeout bounds the whole call, waiting for the bus included. The
// active configuration is left as installed; the next caller installs its
// own.
func (b *SharedBus) Execute(cfg DeviceConfig, txns []Transaction, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, &errcode.E{C: errcode.InvalidParams, Op: "execute", Msg: "non-positive timeout"}
	}
	if err := validate(txns); err != nil {
		return 0, err
	}
	b.mu.Lock()
	released := b.released
	b.mu.Unlock()
	if released {
		return 0, errcode.InvalidState
	}

	start := time.Now()
	tm := time.NewTimer(timeout)
	defer tm.Stop()

	select {
	case b.slot <- struct{}{}:
	case <-tm.C:
		return 0, errcode.Timeout
	}
	defer func() { <-b.slot }()

	// Teardown may have won the race for the slot.
	b.mu.Lock()
	released = b.released
	b.mu.Unlock()
	if released {
		return 0, errcode.InvalidState
	}

	if err := b.port.Configure(cfg); err != nil {
		return 0, errcode.AsBus("configure", err)
	}
	b.mu.Lock()
	b.active = cfg
	b.mu.Unlock()

	remain := timeout - time.Since(start)
	if remain <= 0 {
		return 0, errcode.Timeout
	}
	n, err := b.port.Transfer(txns, remain)
	return n, errcode.AsBus("transfer", err)
}

// ActiveConfig reports the configuration most recently installed on the
// controller. It is a snapshot for diagnostics; by the time it returns,
// another handle may have replaced it.
func (b *SharedBus) ActiveConfig() DeviceConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Retain takes an additional reference.
func (b *SharedBus) Retain() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return errcode.InvalidState
	}
	b.refs++
	return nil
}

// Release drops one reference. Dropping the last waits for any in-flight
// transfer, releases the Port, and fires the teardown hook.
func (b *SharedBus) Release() error {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return errcode.InvalidState
	}
	b.refs--
	if b.refs > 0 {
		b.mu.Unlock()
		return nil
	}
	b.released = true
	hook := b.onTeardown
	b.mu.Unlock()

	// In-flight Execute calls still own the slot; wait them out, then let
	// stragglers acquire it and observe released.
	b.slot <- struct{}{}
	err := b.port.Release()
	<-b.slot

	if hook != nil {
		hook()
	}
	return err
}

// Released reports whether the last reference is gone.
func (b *SharedBus) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Refs reports the current reference count.
func (b *SharedBus) Refs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs
}
