package bridge

import (
	"io"
	"sync"
	"time"

	"mainboard-go/errcode"
	"mainboard-go/i2cbus"
)

// Client drives a remote bus head over a framed link. One request is in
// flight at a time; the transfer timeout covers the whole exchange, so a
// slow or dead peer surfaces as Timeout, not a hang.
type Client struct {
	mu          sync.Mutex
	rwc         io.ReadWriteCloser
	wr          *frameWriter
	in          chan linkMsg
	respTimeout time.Duration
	released    bool
}

var _ i2cbus.Port = (*Client)(nil)

type linkMsg struct {
	f   frame
	err error
}

func NewClient(rwc io.ReadWriteCloser) *Client {
	c := &Client{
		rwc:         rwc,
		wr:          &frameWriter{w: rwc},
		in:          make(chan linkMsg, 1),
		respTimeout: time.Second,
	}
	go c.readLoop()
	return c
}

// SetResponseTimeout bounds Configure and Release exchanges. Transfer
// uses its own timeout argument.
func (c *Client) SetResponseTimeout(d time.Duration) {
	c.mu.Lock()
	if d > 0 {
		c.respTimeout = d
	}
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	rd := &frameReader{r: c.rwc}
	for {
		f, err := rd.ReadFrame()
		select {
		case c.in <- linkMsg{f: f, err: err}:
		default:
			// No waiter: a stale response from a timed-out exchange.
		}
		if err != nil && errcode.Of(err) != errcode.ProtocolError {
			return
		}
	}
}

// roundTrip sends one request and waits for its response. A response
// left over from an earlier timed-out exchange is discarded first.
func (c *Client) roundTrip(f frame, timeout time.Duration) (frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return frame{}, errcode.InvalidState
	}

	select {
	case <-c.in:
	default:
	}

	if err := c.wr.WriteFrame(f); err != nil {
		return frame{}, errcode.AsBus("link write", err)
	}

	tm := time.NewTimer(timeout)
	defer tm.Stop()
	select {
	case m := <-c.in:
		if m.err != nil {
			if errcode.Of(m.err) == errcode.ProtocolError {
				return frame{}, m.err
			}
			return frame{}, errcode.AsBus("link read", m.err)
		}
		return m.f, nil
	case <-tm.C:
		return frame{}, errcode.Timeout
	}
}

// checkReply maps a response frame to the outcome of the remote call.
func checkReply(f frame) error {
	switch f.typ {
	case frameOK:
		return nil
	case frameErr:
		if len(f.payload) != 1 {
			return &errcode.E{C: errcode.ProtocolError, Op: "reply", Msg: "bad err payload"}
		}
		return byteToCode(f.payload[0])
	default:
		return &errcode.E{C: errcode.ProtocolError, Op: "reply", Msg: "unexpected frame"}
	}
}

func (c *Client) Configure(cfg i2cbus.DeviceConfig) error {
	c.mu.Lock()
	d := c.respTimeout
	c.mu.Unlock()
	f, err := c.roundTrip(frame{typ: frameConfigure, payload: encodeConfigure(cfg)}, d)
	if err != nil {
		return err
	}
	return checkReply(f)
}

func (c *Client) Transfer(txns []i2cbus.Transaction, timeout time.Duration) (int, error) {
	payload, err := encodeTransfer(txns)
	if err != nil {
		return 0, err
	}
	f, err := c.roundTrip(frame{typ: frameTransfer, payload: payload}, timeout)
	if err != nil {
		return 0, err
	}
	if err := checkReply(f); err != nil {
		return 0, err
	}
	return decodeOK(f.payload, txns)
}

// Release tells the remote head to free its port, then closes the link.
// Link failures do not block teardown: the local side always ends up
// closed.
func (c *Client) Release() error {
	c.mu.Lock()
	d := c.respTimeout
	c.mu.Unlock()
	f, rerr := c.roundTrip(frame{typ: frameRelease}, d)
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return errcode.InvalidState
	}
	c.released = true
	c.mu.Unlock()

	cerr := c.rwc.Close()
	if rerr != nil {
		return rerr
	}
	if err := checkReply(f); err != nil {
		return err
	}
	return cerr
}

// Factory adapts a dialler into a socket indirection: every device opened
// on the socket gets its own link and Client.
func Factory(dial func() (io.ReadWriteCloser, error)) i2cbus.IndirectFactory {
	return func(i2cbus.Socket, i2cbus.DeviceConfig, string) (i2cbus.Port, error) {
		rwc, err := dial()
		if err != nil {
			return nil, errcode.AsBus("dial", err)
		}
		return NewClient(rwc), nil
	}
}
