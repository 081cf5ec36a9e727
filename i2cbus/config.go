// Package i2cbus exposes one physical I2C controller to many logical
// devices. Each device handle carries its own bus configuration (address,
// clock rate); the shared controller applies the caller's configuration and
// runs its transaction list inside a single critical section, so concurrent
// handles never see each other's settings on the wire.
package i2cbus

import (
	"mainboard-go/x/mathx"
)

// Clock rate bounds in kHz. Standard mode starts at 10, high-speed tops
// out at 3400.
const (
	MinClockKHz     = 10
	MaxClockKHz     = 3400
	DefaultClockKHz = 100
)

// DeviceConfig is the bus configuration one device transfers under.
// Values are immutable; the With helpers return adjusted copies.
type DeviceConfig struct {
	Address  uint16
	ClockKHz int32
}

// NewConfig builds a config with the clock rate normalised: zero or
// negative selects DefaultClockKHz, anything else is clamped to the
// supported range.
func NewConfig(addr uint16, clockKHz int32) DeviceConfig {
	return DeviceConfig{Address: addr, ClockKHz: normalizeClock(clockKHz)}
}

func normalizeClock(khz int32) int32 {
	if khz <= 0 {
		return DefaultClockKHz
	}
	return mathx.Clamp(khz, MinClockKHz, MaxClockKHz)
}

func (c DeviceConfig) WithAddress(addr uint16) DeviceConfig {
	c.Address = addr
	return c
}

func (c DeviceConfig) WithClockKHz(khz int32) DeviceConfig {
	c.ClockKHz = normalizeClock(khz)
	return c
}
