package main

import (
	"context"
	"runtime"
	"time"

	"mainboard-go/boardcfg"
	"mainboard-go/msgbus"
	"mainboard-go/services/busscan"
	"mainboard-go/services/heartbeat"
	"mainboard-go/x/fmtx"
)

const scanPeriod = 5 * time.Second

func printTopic(prefix string, t msgbus.Topic) {
	print(prefix)
	print(" ")
	for i, part := range t {
		if i > 0 {
			print("/")
		}
		print(part)
	}
	println()
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(3 * time.Second)
	ctx := context.Background()

	println("[main] building picoboard …")
	board, err := boardcfg.Build("picoboard")
	if err != nil {
		println("[main] board build failed:", err.Error())
		return
	}

	println("[main] bootstrapping bus …")
	b := msgbus.NewBus(4)
	uiConn := b.NewConnection("ui")

	println("[main] subscribing to busscan/# for diagnostics …")
	mon := uiConn.Subscribe(msgbus.T("busscan", "#"))
	go func() {
		for m := range mon.Channel() {
			printTopic("[monitor] <-", m.Topic)
			if len(m.Topic) == 2 && m.Topic[1] == "found" {
				if rep, ok := m.Payload.(map[string]any); ok {
					if n, ok := rep["count"].(int); ok {
						print(fmtx.Sprintf("[monitor] sweep found %d device(s)\n", n))
					}
				}
			}
		}
	}()

	println("[main] publishing board config …")
	boardcfg.NewService("picoboard").Start(ctx, b.NewConnection("boardcfg"))

	println("[main] starting heartbeat …")
	var hb heartbeat.Service
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		println("[main] heartbeat start failed:", err.Error())
	}

	println("[main] starting busscan.Run …")
	go busscan.Run(ctx, b.NewConnection("busscan"), board)

	scan := msgbus.T("busscan", "control", "scan")

	for {
		time.Sleep(scanPeriod)
		reply, err := uiConn.RequestWait(ctx, uiConn.NewMessage(scan, nil, false))
		if err != nil {
			println("[main] scan error:", err.Error())
		} else if rep, ok := reply.Payload.(map[string]any); ok && rep["ok"] != true {
			if msg, ok := rep["error"].(string); ok {
				println("[main] scan refused:", msg)
			}
		}
		printMem()
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
// Uses builtin println to avoid fmt overhead/allocations.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
