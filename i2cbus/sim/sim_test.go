package sim

import (
	"bytes"
	"testing"
	"time"

	"mainboard-go/errcode"
	"mainboard-go/i2cbus"
)

func TestUnknownAddressNaks(t *testing.T) {
	b := New()
	p := b.Port()
	if err := p.Configure(i2cbus.NewConfig(0x99, 100)); err != nil {
		t.Fatalf("configure: %v", err)
	}
	n, err := p.Transfer([]i2cbus.Transaction{i2cbus.Write([]byte{1})}, time.Second)
	if errcode.Of(err) != errcode.BusError {
		t.Fatalf("expected bus_error, got %v", err)
	}
	if n != 0 {
		t.Fatalf("moved %d bytes to nobody", n)
	}
}

func TestMemoryPointerSemantics(t *testing.T) {
	b := New()
	mem := NewMemory()
	b.Attach(0x48, mem)

	p := b.Port()
	if err := p.Configure(i2cbus.NewConfig(0x48, 100)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	n, err := p.Transfer([]i2cbus.Transaction{i2cbus.Write([]byte{0x02, 0xAA, 0xBB})}, time.Second)
	if err != nil || n != 3 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if mem.Peek(0x02) != 0xAA || mem.Peek(0x03) != 0xBB {
		t.Fatalf("registers %#x %#x", mem.Peek(0x02), mem.Peek(0x03))
	}

	r := make([]byte, 2)
	n, err = p.Transfer([]i2cbus.Transaction{i2cbus.Write([]byte{0x02}), i2cbus.Read(r)}, time.Second)
	if err != nil || n != 3 {
		t.Fatalf("writeread: n=%d err=%v", n, err)
	}
	if r[0] != 0xAA || r[1] != 0xBB {
		t.Fatalf("read back %v", r)
	}
}

func TestLogsCarryConfig(t *testing.T) {
	b := New()
	b.Attach(0x50, NewMemory())

	p := b.Port()
	cfg := i2cbus.NewConfig(0x50, 400)
	p.Configure(cfg)
	p.Transfer([]i2cbus.Transaction{i2cbus.Write([]byte{0, 1})}, time.Second)

	if log := b.ConfigLog(); len(log) != 1 || log[0] != cfg {
		t.Fatalf("config log %+v", log)
	}
	ops := b.Operations()
	if len(ops) != 1 || ops[0].Cfg != cfg || len(ops[0].W) != 2 || ops[0].RLen != 0 {
		t.Fatalf("op log %+v", ops)
	}
}

func TestLatencyTriggersTimeout(t *testing.T) {
	b := New()
	b.Attach(0x50, NewMemory())
	b.SetLatency(50 * time.Millisecond)

	p := b.Port()
	p.Configure(i2cbus.NewConfig(0x50, 100))
	_, err := p.Transfer([]i2cbus.Transaction{i2cbus.Write([]byte{1})}, 10*time.Millisecond)
	if errcode.Of(err) != errcode.Timeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestViewsReleaseIndependently(t *testing.T) {
	b := New()
	b.Attach(0x50, NewMemory())

	p1 := b.Port()
	p2 := b.Port()
	p1.Configure(i2cbus.NewConfig(0x50, 100))
	p2.Configure(i2cbus.NewConfig(0x50, 100))

	if err := p1.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := p1.Transfer([]i2cbus.Transaction{i2cbus.Write([]byte{1})}, time.Second); errcode.Of(err) != errcode.InvalidState {
		t.Fatalf("released view transferred: %v", err)
	}
	if _, err := p2.Transfer([]i2cbus.Transaction{i2cbus.Write([]byte{1})}, time.Second); err != nil {
		t.Fatalf("sibling view broken by release: %v", err)
	}
}

func TestEEPROMPageWrapAndBusy(t *testing.T) {
	e := NewEEPROM(64, 8)
	e.WriteCycle = 20 * time.Millisecond

	// Write 4 bytes starting at offset 6: two land at 6,7, the rest wrap
	// to the start of the same page.
	if err := e.Transfer([]byte{0x00, 0x06, 0x10, 0x11, 0x12, 0x13}, nil); err != nil {
		t.Fatalf("page write: %v", err)
	}

	// Part is busy now; probes NAK until the write cycle ends.
	if err := e.Transfer(nil, nil); err == nil {
		t.Fatal("probe acked during write cycle")
	}
	time.Sleep(30 * time.Millisecond)
	if err := e.Transfer(nil, nil); err != nil {
		t.Fatalf("probe after write cycle: %v", err)
	}

	got := e.Bytes()
	want := make([]byte, 64)
	want[6], want[7] = 0x10, 0x11
	want[0], want[1] = 0x12, 0x13
	if !bytes.Equal(got, want) {
		t.Fatalf("memory after wrapped write:\n got %v\nwant %v", got[:16], want[:16])
	}
}

func TestEEPROMSequentialRead(t *testing.T) {
	e := NewEEPROM(32, 8)
	if err := e.Transfer([]byte{0x00, 0x00, 1, 2, 3}, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := make([]byte, 5)
	if err := e.Transfer([]byte{0x00, 0x00}, r); err != nil {
		t.Fatalf("read: %v", err)
	}
	if r[0] != 1 || r[1] != 2 || r[2] != 3 || r[3] != 0 {
		t.Fatalf("read back %v", r)
	}
}
