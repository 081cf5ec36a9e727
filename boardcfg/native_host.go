//go:build !rp2040 && !rp2350

package boardcfg

import "mainboard-go/socket"

// Hosts have no on-chip controller; boards built here serve their
// sockets through indirection only.
func nativePort() socket.NativePortFunc { return nil }
