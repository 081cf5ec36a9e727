//go:build rp2040 || rp2350

package i2cbus

import (
	"machine"
	"sync"
	"time"

	"mainboard-go/errcode"
)

// nativeReq is one coalesced operation posted to the bus worker.
type nativeReq struct {
	addr uint16
	ops  []Op
	done chan nativeResult // buffered(1); worker replies best-effort
}

type nativeResult struct {
	n   int
	err error
}

// NativePort drives an on-chip controller. All hardware access happens on
// a single worker goroutine; Transfer posts a request and waits with a
// deadline, so a wedged bus stalls the worker, not the caller. A late
// completion after a timeout is dropped; the bus state is unknown until
// the next configure.
type nativePort struct {
	hw       *machine.I2C
	sda, scl machine.Pin
	reqs     chan nativeReq
	quit     chan struct{}

	mu       sync.Mutex
	addr     uint16
	khz      int32
	released bool
}

var _ Port = (*nativePort)(nil)

// NewNativePort claims controller index 0 or 1, routes it to the given
// GPIOs, and programs the initial clock.
func NewNativePort(index int, sdaGPIO, sclGPIO int, khz int32) (Port, error) {
	var hw *machine.I2C
	switch index {
	case 0:
		hw = machine.I2C0
	case 1:
		hw = machine.I2C1
	default:
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "native", Msg: "no such controller"}
	}
	khz = normalizeClock(khz)
	sda := machine.Pin(sdaGPIO)
	scl := machine.Pin(sclGPIO)
	sda.Configure(machine.PinConfig{Mode: machine.PinI2C})
	scl.Configure(machine.PinConfig{Mode: machine.PinI2C})
	if err := hw.Configure(machine.I2CConfig{
		SCL:       scl,
		SDA:       sda,
		Frequency: uint32(khz) * 1000,
	}); err != nil {
		return nil, errcode.AsBus("configure", err)
	}

	p := &nativePort{
		hw:   hw,
		sda:  sda,
		scl:  scl,
		reqs: make(chan nativeReq, 4),
		quit: make(chan struct{}),
		khz:  khz,
	}
	go p.loop()
	return p, nil
}

func (p *nativePort) loop() {
	for {
		select {
		case req := <-p.reqs:
			res := nativeResult{}
			for _, op := range req.ops {
				if err := p.hw.Tx(req.addr, op.W, op.R); err != nil {
					res.err = errcode.AsBus("tx", err)
					break
				}
				res.n += len(op.W) + len(op.R)
			}
			select {
			case req.done <- res:
			default:
			}
		case <-p.quit:
			return
		}
	}
}

// Configure records the target address and reprograms the clock when it
// changed. The address itself travels per transfer on this hardware.
func (p *nativePort) Configure(cfg DeviceConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errcode.InvalidState
	}
	p.addr = cfg.Address
	if cfg.ClockKHz == p.khz {
		return nil
	}
	if err := p.hw.Configure(machine.I2CConfig{
		SCL:       p.scl,
		SDA:       p.sda,
		Frequency: uint32(cfg.ClockKHz) * 1000,
	}); err != nil {
		return errcode.AsBus("configure", err)
	}
	p.khz = cfg.ClockKHz
	return nil
}

func (p *nativePort) Transfer(txns []Transaction, timeout time.Duration) (int, error) {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return 0, errcode.InvalidState
	}
	addr := p.addr
	p.mu.Unlock()

	req := nativeReq{addr: addr, ops: Ops(txns), done: make(chan nativeResult, 1)}

	t := time.NewTimer(timeout)
	select {
	case p.reqs <- req:
		if !t.Stop() {
			<-t.C
		}
	case <-t.C:
		return 0, errcode.Busy
	}

	t = time.NewTimer(timeout)
	defer t.Stop()
	select {
	case res := <-req.done:
		return res.n, res.err
	case <-t.C:
		return 0, errcode.Timeout
	}
}

func (p *nativePort) Release() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return errcode.InvalidState
	}
	p.released = true
	p.mu.Unlock()

	close(p.quit)
	p.sda.Configure(machine.PinConfig{Mode: machine.PinInput})
	p.scl.Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}
