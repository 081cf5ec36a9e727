package boardcfg

import (
	"context"
	"strings"
	"testing"
	"time"

	"mainboard-go/errcode"
	"mainboard-go/msgbus"
	"mainboard-go/socket"
)

func overrideLookup(t *testing.T, profiles map[string]string) {
	t.Helper()
	old := ProfileLookup
	ProfileLookup = func(name string) ([]byte, bool) {
		raw, ok := profiles[name]
		return []byte(raw), ok
	}
	t.Cleanup(func() { ProfileLookup = old })
}

func waitMsg(t *testing.T, sub *msgbus.Subscription) *msgbus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(600 * time.Millisecond):
		t.Fatal("no message within deadline")
		return nil
	}
}

func TestBuildFromEmbeddedProfile(t *testing.T) {
	b, err := Build("simboard")
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Name(); got != "simboard" {
		t.Fatalf("name = %q", got)
	}
	s, err := b.Socket(1)
	if err != nil {
		t.Fatal(err)
	}
	if !s.HasType(socket.TypeI2C) {
		t.Fatal("socket 1 lost its I tag")
	}
	gpio, err := s.GPIO(socket.SDAPin)
	if err != nil || gpio != 8 {
		t.Fatalf("GPIO(SDA) = %d, %v, want 8", gpio, err)
	}
	if _, err := b.Socket(9); errcode.Of(err) != errcode.UnknownSocket {
		t.Fatalf("Socket(9) = %v, want UnknownSocket", err)
	}
}

func TestBuildHostBoardHasNoNativeController(t *testing.T) {
	b, err := Build("simboard")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.SharedI2C(); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("SharedI2C = %v, want Unsupported", err)
	}
}

func TestBuildUnknownProfile(t *testing.T) {
	_, err := Build("nonesuch")
	if got := errcode.Of(err); got != errcode.Unsupported {
		t.Fatalf("code = %v, want %v", got, errcode.Unsupported)
	}
}

func TestLoadRejectsMalformedProfiles(t *testing.T) {
	overrideLookup(t, map[string]string{
		"garbled": `{"name": "garbled",`,
		"empty":   `{"name": "empty", "gpio": {"min": 0, "max": 9}, "sockets": []}`,
		"badpin":  `{"name": "badpin", "gpio": {"min": 0, "max": 9}, "sockets": [{"number": 1, "types": "I", "pins": {"12": 4}}]}`,
		"dupsock": `{"name": "dupsock", "gpio": {"min": 0, "max": 9}, "sockets": [{"number": 1, "types": "I"}, {"number": 1, "types": "X"}]}`,
		"nonnum":  `{"name": "nonnum", "gpio": {"min": 0, "max": 9}, "sockets": [{"number": 1, "types": "I", "pins": {"sda": 4}}]}`,
	})
	for _, name := range []string{"garbled", "empty", "badpin", "dupsock", "nonnum"} {
		_, err := Build(name)
		if got := errcode.Of(err); got != errcode.InvalidParams {
			t.Fatalf("%s: code = %v, want %v", name, got, errcode.InvalidParams)
		}
	}
}

func TestPublishConfigRetainedPerSection(t *testing.T) {
	overrideLookup(t, map[string]string{
		"demo": `{
			"name": "demo",
			"gpio": {"min": 0, "max": 9},
			"sockets": [{"number": 1, "types": "I", "pins": {"8": 2, "9": 3}}],
			"services": {
				"busscan": {"socket": 1, "khz": 100, "from": 8, "to": 119},
				"display": {"rotate": true}
			}
		}`,
	})

	b := msgbus.NewBus(16)
	conn := b.NewConnection("test-config")
	if err := PublishConfig(conn, "demo"); err != nil {
		t.Fatal(err)
	}

	// Retained sections arrive on a late subscription.
	sub := conn.Subscribe(msgbus.T(configPrefix, "+"))
	got := map[string]any{}
	for len(got) < 2 {
		m := waitMsg(t, sub)
		got[m.Topic[1]] = m.Payload
	}

	scan, ok := got["busscan"].(map[string]any)
	if !ok {
		t.Fatalf("busscan payload type %T", got["busscan"])
	}
	if v, ok := scan["socket"].(float64); !ok || v != 1 {
		t.Fatalf("busscan.socket = %#v, want 1", scan["socket"])
	}
	disp, ok := got["display"].(map[string]any)
	if !ok {
		t.Fatalf("display payload type %T", got["display"])
	}
	if v, ok := disp["rotate"].(bool); !ok || !v {
		t.Fatalf("display.rotate = %#v, want true", disp["rotate"])
	}
}

func TestServiceReportsState(t *testing.T) {
	b := msgbus.NewBus(16)
	conn := b.NewConnection("test-state")

	NewService("simboard").Start(context.Background(), conn)

	sub := conn.Subscribe(msgbus.T(configPrefix, "state"))
	m := waitMsg(t, sub)
	if m.Payload != "ready" {
		t.Fatalf("state = %#v, want ready", m.Payload)
	}
}

func TestServiceReportsErrorState(t *testing.T) {
	b := msgbus.NewBus(16)
	conn := b.NewConnection("test-state-err")

	NewService("nonesuch").Start(context.Background(), conn)

	sub := conn.Subscribe(msgbus.T(configPrefix, "state"))
	m := waitMsg(t, sub)
	s, ok := m.Payload.(string)
	if !ok || !strings.HasPrefix(s, "error") {
		t.Fatalf("state = %#v, want error prefix", m.Payload)
	}
}
