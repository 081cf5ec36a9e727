package heartbeat

import (
	"context"
	"time"

	"mainboard-go/msgbus"
	"mainboard-go/x/mathx"
	"mainboard-go/x/timex"
)

const (
	defaultPeriodMS = 5000
	minPeriodMS     = 100
	maxPeriodMS     = 3_600_000
)

type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *msgbus.Connection) {
	cfgSub := conn.Subscribe(msgbus.T("config", "heartbeat"))
	defer conn.Unsubscribe(cfgSub)

	started := timex.NowMs()
	beats := 0

	tick := time.NewTicker(timex.Ms(defaultPeriodMS))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case <-tick.C:
			beats++
			now := timex.NowMs()
			conn.Publish(conn.NewMessage(msgbus.T("heartbeat", "state"), map[string]any{
				"beats":     beats,
				"ts_ms":     now,
				"uptime_ms": now - started,
			}, true))
		case msg := <-cfgSub.Channel():
			m, ok := msg.Payload.(map[string]any)
			if !ok {
				continue
			}
			raw, ok := m["period_ms"]
			if !ok {
				continue
			}
			var period int
			switch v := raw.(type) {
			case float64:
				period = int(v)
			case int:
				period = v
			default:
				continue
			}
			period = mathx.Clamp(period, minPeriodMS, maxPeriodMS)
			tick.Reset(timex.Ms(period))
			println("Info: heartbeat period set to", period, "ms")
		}
	}
}

// Start launches the heartbeat loop. It publishes a retained liveness
// record on heartbeat/state and retunes its period from config/heartbeat.
func (s *Service) Start(ctx context.Context, conn *msgbus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
