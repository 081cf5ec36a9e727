//go:build rp2040 || rp2350

package bridge

import (
	"context"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"mainboard-go/errcode"
)

// DialUART opens one of the chip's UARTs as a bridge link, for boards
// that serve their bus to a host over a cable.
func DialUART(index int, baud uint32, tx, rx int) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch index {
	case 0:
		hw = uartx.UART0
	case 1:
		hw = uartx.UART1
	default:
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "dial", Msg: "no such uart"}
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       machine.Pin(tx),
		RX:       machine.Pin(rx),
	}); err != nil {
		return nil, errcode.AsBus("dial", err)
	}
	return &uartLink{hw: hw}, nil
}

type uartLink struct{ hw *uartx.UART }

func (l *uartLink) Read(p []byte) (int, error) {
	return l.hw.RecvSomeContext(context.Background(), p)
}

func (l *uartLink) Write(p []byte) (int, error) { return l.hw.Write(p) }

// Close is a no-op; the UART stays configured for the next link.
func (l *uartLink) Close() error { return nil }
