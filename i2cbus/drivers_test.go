package i2cbus

import (
	"sync"
	"testing"
	"time"

	"tinygo.org/x/drivers"

	"mainboard-go/errcode"
)

type fakeDrvBus struct {
	mu   sync.Mutex
	log  []drvTx
	err  error
	fill byte
}

type drvTx struct {
	addr uint16
	w    []byte
	rn   int
}

var _ drivers.I2C = (*fakeDrvBus)(nil)

func (f *fakeDrvBus) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for i := range r {
		r[i] = f.fill
	}
	f.log = append(f.log, drvTx{addr: addr, w: append([]byte(nil), w...), rn: len(r)})
	return nil
}

func openOverDriverBus(t *testing.T, fdb *fakeDrvBus, addr uint16) *Device {
	t.Helper()
	s := newFakeSocket("socketD")
	s.indirect = func(sock Socket, cfg DeviceConfig, owner string) (Port, error) {
		return NewDriverPort(fdb), nil
	}
	d, err := Open(s, addr, 100, "drivertest")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return d
}

func TestConnMergesWriteReadIntoOneTx(t *testing.T) {
	fdb := &fakeDrvBus{fill: 0x5A}
	d := openOverDriverBus(t, fdb, 0x50)
	defer d.Close()

	conn := NewConn(d, time.Second)
	r := make([]byte, 2)
	if err := conn.Tx(0x50, []byte{0x01, 0x02}, r); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if r[0] != 0x5A || r[1] != 0x5A {
		t.Fatalf("read buffer %v", r)
	}

	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	if len(fdb.log) != 1 {
		t.Fatalf("driver bus saw %d operations, want 1 merged write-read", len(fdb.log))
	}
	got := fdb.log[0]
	if got.addr != 0x50 || len(got.w) != 2 || got.rn != 2 {
		t.Fatalf("unexpected operation %+v", got)
	}
}

func TestConnRetargetsHandle(t *testing.T) {
	fdb := &fakeDrvBus{}
	d := openOverDriverBus(t, fdb, 0x50)
	defer d.Close()

	conn := NewConn(d, time.Second)
	if err := conn.Tx(0x68, []byte{0xFE}, nil); err != nil {
		t.Fatalf("tx: %v", err)
	}
	if d.Address() != 0x68 {
		t.Fatalf("handle address %#x after driver retarget", d.Address())
	}

	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	if fdb.log[0].addr != 0x68 {
		t.Fatalf("operation went to %#x", fdb.log[0].addr)
	}
}

func TestConnAddressOnlyProbe(t *testing.T) {
	fdb := &fakeDrvBus{}
	d := openOverDriverBus(t, fdb, 0x50)
	defer d.Close()

	conn := NewConn(d, time.Second)
	if err := conn.Tx(0x50, nil, nil); err != nil {
		t.Fatalf("probe: %v", err)
	}

	fdb.mu.Lock()
	defer fdb.mu.Unlock()
	if len(fdb.log) != 1 || len(fdb.log[0].w) != 0 || fdb.log[0].rn != 0 {
		t.Fatalf("probe recorded as %+v", fdb.log)
	}
}

func TestDriverPortErrorsBecomeBusErrors(t *testing.T) {
	fdb := &fakeDrvBus{err: errTxNak{}}
	p := NewDriverPort(fdb)
	if err := p.Configure(NewConfig(0x41, 100)); err != nil {
		t.Fatalf("configure: %v", err)
	}
	_, err := p.Transfer([]Transaction{Write([]byte{1})}, time.Second)
	if errcode.Of(err) != errcode.BusError {
		t.Fatalf("expected bus_error, got %v", err)
	}
}

func TestDriverPortRelease(t *testing.T) {
	p := NewDriverPort(&fakeDrvBus{})
	if err := p.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := p.Configure(NewConfig(0x41, 100)); errcode.Of(err) != errcode.InvalidState {
		t.Fatalf("configure after release: %v", err)
	}
	if _, err := p.Transfer([]Transaction{Write([]byte{1})}, time.Second); errcode.Of(err) != errcode.InvalidState {
		t.Fatalf("transfer after release: %v", err)
	}
	if err := p.Release(); errcode.Of(err) != errcode.InvalidState {
		t.Fatalf("double release: %v", err)
	}
}

type errTxNak struct{}

func (errTxNak) Error() string { return "nak" }
