// Package busscan sweeps a socket's bus for acknowledging addresses and
// publishes what it finds. It owns one device handle and retargets it per
// probe, so a sweep holds the controller only one address at a time and
// other handles interleave freely.
package busscan

import (
	"context"
	"encoding/json"
	"time"

	"mainboard-go/errcode"
	"mainboard-go/i2cbus"
	"mainboard-go/msgbus"
	"mainboard-go/socket"
	"mainboard-go/x/mathx"
	"mainboard-go/x/timex"
)

const owner = "busscan"

// Bounds one address probe. Absent devices fail fast with a NAK; this
// only matters on a wedged bus.
const probeTimeout = 100 * time.Millisecond

// Config is the JSON section expected on {config,busscan}.
type Config struct {
	Socket   int    `json:"socket"`
	KHz      int32  `json:"khz"`
	From     uint16 `json:"from"`
	To       uint16 `json:"to"`
	PeriodMS int    `json:"period_ms,omitempty"`
}

// Run blocks until ctx is cancelled. It listens for JSON config on
// {config,busscan} and control verbs on {busscan,control,<verb>}.
func Run(ctx context.Context, conn *msgbus.Connection, board *socket.Board) {
	s := &service{
		conn:    conn,
		board:   board,
		results: make(chan sweepResult, 1),
	}
	s.loop(ctx)
}

type sweepResult struct {
	found []uint16
	err   error
}

type service struct {
	conn  *msgbus.Connection
	board *socket.Board

	dev      *i2cbus.Device
	cfg      Config
	scanning bool
	pending  *Config // config that arrived mid-sweep
	nextDue  time.Time
	timer    *time.Timer

	results chan sweepResult
}

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(msgbus.T("config", "busscan"))
	ctrlSub := s.conn.Subscribe(msgbus.T("busscan", "control", "+"))
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		drainTimer(s.timer)
	}

	for {
		s.armTimer()

		select {
		case <-ctx.Done():
			s.closeDev()
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg Config
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			if s.scanning {
				s.pending = &cfg
				continue
			}
			s.applyAndReport(cfg)

		case msg := <-ctrlSub.Channel():
			if len(msg.Topic) < 3 {
				continue
			}
			s.handleControl(msg)

		case <-s.timer.C:
			if s.dev != nil && !s.scanning && s.cfg.PeriodMS > 0 {
				s.startSweep()
			}
			if s.cfg.PeriodMS > 0 {
				s.nextDue = time.Now().Add(timex.Ms(s.cfg.PeriodMS))
			}

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

func (s *service) armTimer() {
	if !s.timer.Stop() {
		drainTimer(s.timer)
	}
	if s.dev == nil || s.cfg.PeriodMS <= 0 || s.nextDue.IsZero() {
		s.timer.Reset(time.Hour)
		return
	}
	d := time.Until(s.nextDue)
	if d < 0 {
		d = 0
	}
	s.timer.Reset(d)
}

// applyConfig swaps the owned handle for one on the configured socket.
// The old handle closes first so a same-socket reconfigure does not
// trip over its own pin claims.
func (s *service) applyConfig(cfg Config) error {
	if cfg.To < cfg.From {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "empty address range"}
	}
	cfg.From = mathx.Clamp(cfg.From, 0x03, 0x77)
	cfg.To = mathx.Clamp(cfg.To, 0x03, 0x77)

	sock, err := s.board.Socket(cfg.Socket)
	if err != nil {
		return err
	}
	s.closeDev()
	dev, err := i2cbus.Open(sock, cfg.From, cfg.KHz, owner)
	if err != nil {
		return err
	}
	s.dev = dev
	s.cfg = cfg
	if cfg.PeriodMS > 0 {
		s.nextDue = time.Now().Add(timex.Ms(cfg.PeriodMS))
	} else {
		s.nextDue = time.Time{}
	}
	return nil
}

func (s *service) applyAndReport(cfg Config) {
	if err := s.applyConfig(cfg); err != nil {
		s.publishState("error", "apply_config_failed", err)
		return
	}
	s.publishState("ready", "configured", nil)
}

func (s *service) handleControl(msg *msgbus.Message) {
	switch verb := msg.Topic[2]; verb {
	case "scan":
		if s.dev == nil {
			s.replyErr(msg, "not configured")
			return
		}
		if s.scanning {
			s.replyErr(msg, "busy")
			return
		}
		s.startSweep()
		s.replyOK(msg, nil)
	case "set_period":
		ms := parsePeriodMS(msg.Payload)
		if ms <= 0 {
			s.replyErr(msg, "invalid period")
			return
		}
		s.cfg.PeriodMS = mathx.Clamp(ms, 100, 3_600_000)
		s.nextDue = time.Now().Add(timex.Ms(s.cfg.PeriodMS))
		s.replyOK(msg, map[string]any{"period_ms": s.cfg.PeriodMS})
	case "stop":
		s.cfg.PeriodMS = 0
		s.nextDue = time.Time{}
		s.replyOK(msg, nil)
	default:
		s.replyErr(msg, "unknown verb")
	}
}

func (s *service) startSweep() {
	s.scanning = true
	s.publishState("scanning", "sweep_started", nil)
	dev, from, to := s.dev, s.cfg.From, s.cfg.To
	go func() {
		found, err := sweep(dev, from, to, s.conn)
		s.results <- sweepResult{found: found, err: err}
	}()
}

func (s *service) handleResult(r sweepResult) {
	s.scanning = false
	if r.err != nil {
		s.publishState("error", "sweep_failed", r.err)
	} else {
		addrs := make([]int, 0, len(r.found))
		for _, a := range r.found {
			addrs = append(addrs, int(a))
		}
		s.conn.Publish(s.conn.NewMessage(msgbus.T("busscan", "found"), map[string]any{
			"addrs": addrs,
			"count": len(addrs),
			"ts_ms": timex.NowMs(),
		}, true))
		s.publishState("ready", "sweep_complete", nil)
	}
	if s.pending != nil {
		cfg := *s.pending
		s.pending = nil
		s.applyAndReport(cfg)
	}
}

// sweep probes every address in [from,to] with a one-byte read,
// retargeting the shared handle per address. Acknowledging addresses are
// reported as they are found.
func sweep(dev *i2cbus.Device, from, to uint16, conn *msgbus.Connection) ([]uint16, error) {
	var probe [1]byte
	var found []uint16
	for addr := from; addr <= to; addr++ {
		dev.SetAddress(addr)
		_, err := dev.Read(probe[:], probeTimeout)
		switch errcode.Of(err) {
		case errcode.OK:
			found = append(found, addr)
			conn.Publish(conn.NewMessage(msgbus.T("busscan", "event", "found"), map[string]any{
				"addr":  int(addr),
				"ts_ms": timex.NowMs(),
			}, false))
		case errcode.BusError:
			// no acknowledge, nothing there
		default:
			return found, err
		}
	}
	return found, nil
}

func (s *service) closeDev() {
	if s.dev != nil {
		_ = s.dev.Close()
		s.dev = nil
	}
}

// ---- helpers ----

func (s *service) publishState(level, status string, err error) {
	payload := map[string]any{"level": level, "status": status, "ts_ms": timex.NowMs()}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(msgbus.T("busscan", "state"), payload, true))
}

func (s *service) replyOK(req *msgbus.Message, extra map[string]any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	m := map[string]any{"ok": true}
	for k, v := range extra {
		m[k] = v
	}
	s.conn.Reply(req, m, false)
}

func (s *service) replyErr(req *msgbus.Message, e string) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, map[string]any{"ok": false, "error": e}, false)
}

func parsePeriodMS(p any) int {
	if m, ok := p.(map[string]any); ok {
		switch v := m["period_ms"].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
