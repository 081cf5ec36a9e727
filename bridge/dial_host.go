//go:build !rp2040 && !rp2350

package bridge

import (
	"io"

	"github.com/tarm/serial"
)

// Dial opens the serial device a remote bus head answers on. Reads stay
// blocking; the Client's own deadlines bound each exchange.
func Dial(device string, baud int) (io.ReadWriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: device, Baud: baud})
}
