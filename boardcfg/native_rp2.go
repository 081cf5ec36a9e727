//go:build rp2040 || rp2350

package boardcfg

import (
	"mainboard-go/i2cbus"
	"mainboard-go/socket"
)

// nativePort binds board plans to the on-chip controllers.
func nativePort() socket.NativePortFunc {
	return func(plan socket.I2CPlan) (i2cbus.Port, error) {
		return i2cbus.NewNativePort(plan.Controller, plan.SDA, plan.SCL, plan.ClockKHz)
	}
}
