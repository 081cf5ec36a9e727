package bridge

import (
	"context"
	"io"
	"time"

	"mainboard-go/errcode"
	"mainboard-go/i2cbus"
)

// Budget for one remote-requested transfer. The wire carries no deadline;
// the requesting side enforces its own and discards late responses.
const serveTransferBudget = time.Second

// Serve answers framed requests against port until ctx ends or the link
// fails. A corrupted frame is answered with a protocol error and the
// link carries on; the reader resyncs on the next sync byte.
func Serve(ctx context.Context, rwc io.ReadWriteCloser, port i2cbus.Port) error {
	rd := &frameReader{r: rwc}
	wr := &frameWriter{w: rwc}

	in := make(chan linkMsg)
	go func() {
		for {
			f, err := rd.ReadFrame()
			select {
			case in <- linkMsg{f: f, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil && errcode.Of(err) != errcode.ProtocolError {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-in:
			if m.err != nil {
				if errcode.Of(m.err) == errcode.ProtocolError {
					if err := wr.WriteFrame(errFrame(errcode.ProtocolError)); err != nil {
						return err
					}
					continue
				}
				return m.err
			}
			if err := wr.WriteFrame(handle(m.f, port)); err != nil {
				return err
			}
		}
	}
}

// handle runs one request against the local port and builds the response.
func handle(f frame, port i2cbus.Port) frame {
	switch f.typ {
	case frameConfigure:
		cfg, err := decodeConfigure(f.payload)
		if err != nil {
			return errFrame(errcode.ProtocolError)
		}
		if err := port.Configure(cfg); err != nil {
			return errFrame(errcode.Of(err))
		}
		return frame{typ: frameOK}
	case frameTransfer:
		txns, err := decodeTransfer(f.payload)
		if err != nil {
			return errFrame(errcode.ProtocolError)
		}
		n, err := port.Transfer(txns, serveTransferBudget)
		if err != nil {
			return errFrame(errcode.Of(err))
		}
		return frame{typ: frameOK, payload: encodeOK(n, txns)}
	case frameRelease:
		if err := port.Release(); err != nil {
			return errFrame(errcode.Of(err))
		}
		return frame{typ: frameOK}
	default:
		return errFrame(errcode.ProtocolError)
	}
}

func errFrame(c errcode.Code) frame {
	return frame{typ: frameErr, payload: []byte{codeToByte(c)}}
}
