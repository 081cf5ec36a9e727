// cmd/boardtest/main.go
//
// Host smoke run over the simboard profile: builds the board, routes one
// socket straight into a simulated bus and a second one through the serial
// bridge framing over an in-process pipe, then drives the address scanner
// service and an EEPROM driver across both paths.
package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"mainboard-go/boardcfg"
	"mainboard-go/bridge"
	"mainboard-go/drivers/eeprom24"
	"mainboard-go/i2cbus"
	"mainboard-go/i2cbus/sim"
	"mainboard-go/msgbus"
	"mainboard-go/services/busscan"
)

// ---------- Configuration ----------

const (
	reportTimeout = 3 * time.Second
	scanRetry     = 2 * time.Second

	memoryAddr = 0x68

	eepromOffset = 0x0100
)

var eepromMessage = []byte("boardtest was here")

// ---------- Topics ----------

func tScanConfig() msgbus.Topic { return msgbus.T("config", "busscan") }
func tScanState() msgbus.Topic  { return msgbus.T("busscan", "state") }
func tScanFound() msgbus.Topic  { return msgbus.T("busscan", "found") }
func tScanScan() msgbus.Topic   { return msgbus.T("busscan", "control", "scan") }

// ---------- Bridged link ----------

type pipeLink struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (l *pipeLink) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l *pipeLink) Write(p []byte) (int, error) { return l.w.Write(p) }
func (l *pipeLink) Close() error {
	l.w.Close()
	return l.r.Close()
}

// serveWorld starts a transfer server against the simulated bus and hands
// back the client end of the link.
func serveWorld(ctx context.Context, world *sim.Bus) io.ReadWriteCloser {
	hr, dw := io.Pipe()
	dr, hw := io.Pipe()
	go func() { _ = bridge.Serve(ctx, &pipeLink{r: dr, w: dw}, world.Port()) }()
	return &pipeLink{r: hr, w: hw}
}

// ---------- Helpers ----------

func drainSub(sub *msgbus.Subscription) {
	for {
		select {
		case <-sub.Channel():
		default:
			return
		}
	}
}

func waitStatus(sub *msgbus.Subscription, status string, d time.Duration) bool {
	dead := time.Now().Add(d)
	for time.Now().Before(dead) {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(map[string]any); ok && st["status"] == status {
				return true
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	return false
}

func waitFound(sub *msgbus.Subscription, d time.Duration) ([]int, bool) {
	dead := time.Now().Add(d)
	for time.Now().Before(dead) {
		select {
		case m := <-sub.Channel():
			if rep, ok := m.Payload.(map[string]any); ok {
				if addrs, ok := rep["addrs"].([]int); ok {
					return addrs, true
				}
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	return nil, false
}

// requestScan asks for a sweep, retrying while the service reports busy.
func requestScan(ctx context.Context, ui *msgbus.Connection, d time.Duration) error {
	dead := time.Now().Add(d)
	for {
		reply, err := ui.RequestWait(ctx, ui.NewMessage(tScanScan(), nil, false))
		if err == nil {
			if rep, ok := reply.Payload.(map[string]any); ok && rep["ok"] == true {
				return nil
			}
			err = fmt.Errorf("scan refused: %v", reply.Payload)
		}
		if !time.Now().Before(dead) {
			return err
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func hasAddr(addrs []int, want int) bool {
	for _, a := range addrs {
		if a == want {
			return true
		}
	}
	return false
}

// ---------- Main ----------

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("=== boardtest: simboard smoke run ===")

	// One simulated bus behind every socket in this run.
	world := sim.New()
	world.Attach(eeprom24.Address, sim.NewEEPROM(8192, 32))
	world.Attach(memoryAddr, sim.NewMemory())

	board, err := boardcfg.Build("simboard")
	if err != nil {
		fmt.Println("[FAIL] build board:", err)
		return
	}

	// Socket 1 talks to the world directly; socket 2 goes through the
	// bridge wire format, so the EEPROM phase exercises framing and CRC.
	s1, _ := board.Socket(1)
	s1.SetI2CIndirect(world.Indirect())
	s2, _ := board.Socket(2)
	s2.SetI2CIndirect(bridge.Factory(func() (io.ReadWriteCloser, error) {
		return serveWorld(ctx, world), nil
	}))

	b := msgbus.NewBus(32)
	ui := b.NewConnection("ui")
	stateSub := ui.Subscribe(tScanState())
	foundSub := ui.Subscribe(tScanFound())

	boardcfg.NewService("simboard").Start(ctx, b.NewConnection("boardcfg"))
	go busscan.Run(ctx, b.NewConnection("busscan"), board)

	pass := true

	// Phase 1: the profile config sweeps 0x50..0x5f on socket 1.
	if addrs, ok := waitFound(foundSub, reportTimeout); ok {
		fmt.Printf("profile sweep found %d device(s): %#x\n", len(addrs), addrs)
		if !hasAddr(addrs, int(eeprom24.Address)) {
			fmt.Println("[FAIL] eeprom missing from profile sweep")
			pass = false
		}
	} else {
		fmt.Println("[FAIL] no report from profile sweep")
		pass = false
	}

	// Phase 2: widen the window over the whole 7-bit range and rescan.
	drainSub(stateSub)
	ui.Publish(ui.NewMessage(tScanConfig(), map[string]any{
		"socket": 1, "khz": 400, "from": 0x03, "to": 0x77,
	}, true))
	if !waitStatus(stateSub, "configured", reportTimeout) {
		fmt.Println("[FAIL] wide window not applied")
		pass = false
	} else if err := requestScan(ctx, ui, scanRetry); err != nil {
		fmt.Println("[FAIL] scan request:", err)
		pass = false
	} else if addrs, ok := waitFound(foundSub, reportTimeout); ok {
		fmt.Printf("wide sweep found %d device(s): %#x\n", len(addrs), addrs)
		if !hasAddr(addrs, memoryAddr) {
			fmt.Println("[FAIL] memory device missing from wide sweep")
			pass = false
		}
	} else {
		fmt.Println("[FAIL] no report from wide sweep")
		pass = false
	}

	// Phase 3: EEPROM roundtrip over the bridged socket.
	dev, err := i2cbus.Open(s2, eeprom24.Address, 400, "boardtest")
	if err != nil {
		fmt.Println("[FAIL] open bridged socket:", err)
		pass = false
	} else {
		part := eeprom24.New(i2cbus.NewConn(dev, time.Second))
		part.Configure()
		got := make([]byte, len(eepromMessage))
		if err := part.WriteAt(eepromOffset, eepromMessage); err != nil {
			fmt.Println("[FAIL] eeprom write:", err)
			pass = false
		} else if err := part.ReadAt(eepromOffset, got); err != nil {
			fmt.Println("[FAIL] eeprom read:", err)
			pass = false
		} else if string(got) != string(eepromMessage) {
			fmt.Printf("[FAIL] eeprom readback mismatch: %q\n", got)
			pass = false
		} else {
			fmt.Printf("bridged eeprom roundtrip ok: %q\n", got)
		}
		if err := dev.Close(); err != nil {
			fmt.Println("[FAIL] close bridged device:", err)
			pass = false
		}
	}

	if pass {
		fmt.Println("[PASS] scan + bridged eeprom phases complete")
	} else {
		fmt.Println("[FAIL] see lines above")
	}
}
