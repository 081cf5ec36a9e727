// Package boardcfg holds the embedded board profiles and assembles wired
// boards from them. A profile names the GPIO range, the native I2C plan
// and the socket map; services read their own sections of the same
// profile as retained {config,<name>} messages.
package boardcfg

import (
	"context"
	"encoding/json"

	"mainboard-go/errcode"
	"mainboard-go/msgbus"
	"mainboard-go/socket"
	"mainboard-go/x/strconvx"
	"mainboard-go/x/strx"
)

const configPrefix = "config"

// ProfileLookup resolves a profile name to its raw JSON. Swappable for
// tests and for generated profile sets.
var ProfileLookup = func(name string) ([]byte, bool) {
	raw, ok := embeddedProfiles[name]
	return raw, ok
}

type Profile struct {
	Name     string                     `json:"name"`
	GPIO     GPIORange                  `json:"gpio"`
	I2C      *I2CWiring                 `json:"i2c,omitempty"`
	Sockets  []SocketDef                `json:"sockets"`
	Services map[string]json.RawMessage `json:"services,omitempty"`
}

type GPIORange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// I2CWiring is the native controller plan: which on-chip controller and
// which GPIOs carry the shared bus.
type I2CWiring struct {
	Controller int   `json:"controller"`
	SDA        int   `json:"sda"`
	SCL        int   `json:"scl"`
	KHz        int32 `json:"khz"`
}

// SocketDef maps one socket's header positions (3..9, as JSON keys) to
// board GPIOs.
type SocketDef struct {
	Number int            `json:"number"`
	Types  string         `json:"types"`
	Pins   map[string]int `json:"pins"`
}

// Load decodes the named embedded profile.
func Load(name string) (*Profile, error) {
	raw, ok := ProfileLookup(name)
	if !ok || len(raw) == 0 {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "profile", Msg: "no profile " + name}
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "profile", Msg: "profile " + name, Err: err}
	}
	if p.Name == "" {
		p.Name = name
	}
	if len(p.Sockets) == 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "profile", Msg: "profile " + name + " has no sockets"}
	}
	return &p, nil
}

// Build assembles a wired board from the named profile. On targets with a
// native controller the plan is bound to it; elsewhere the plan stays
// unserved and the board's sockets work through indirection only.
func Build(name string) (*socket.Board, error) {
	p, err := Load(name)
	if err != nil {
		return nil, err
	}
	b := socket.NewBoard(p.Name, p.GPIO.Min, p.GPIO.Max)
	for _, sd := range p.Sockets {
		pins, err := pinMap(sd)
		if err != nil {
			return nil, err
		}
		if _, err := b.AddSocket(sd.Number, sd.Types, pins); err != nil {
			return nil, err
		}
	}
	if p.I2C != nil {
		b.SetI2CPlan(socket.I2CPlan{
			Controller: p.I2C.Controller,
			SDA:        p.I2C.SDA,
			SCL:        p.I2C.SCL,
			ClockKHz:   p.I2C.KHz,
		}, nativePort())
	}
	return b, nil
}

func pinMap(sd SocketDef) (map[socket.Pin]int, error) {
	pins := make(map[socket.Pin]int, len(sd.Pins))
	for key, gpio := range sd.Pins {
		pos, err := strconvx.Atoi(key)
		if err != nil || pos < int(socket.Pin3) || pos > int(socket.Pin9) {
			return nil, &errcode.E{
				C:   errcode.InvalidParams,
				Op:  "profile",
				Msg: "socket " + strconvx.Itoa(sd.Number) + " pin " + key,
			}
		}
		pins[socket.Pin(pos)] = gpio
	}
	return pins, nil
}

// PublishConfig pushes each service section of the named profile as a
// retained {config,<key>} message, so services that subscribe late still
// see their section.
func PublishConfig(conn *msgbus.Connection, name string) error {
	p, err := Load(name)
	if err != nil {
		return err
	}
	for key, raw := range p.Services {
		var val any
		if err := json.Unmarshal(raw, &val); err != nil {
			return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "section " + key, Err: err}
		}
		conn.Publish(&msgbus.Message{
			Topic:    msgbus.T(configPrefix, key),
			Payload:  val,
			Retained: true,
		})
	}
	return nil
}

// Service publishes the profile's service sections once at startup and
// reports the outcome on {config,state}.
type Service struct {
	Profile string
}

func NewService(profile string) *Service { return &Service{Profile: profile} }

// DefaultProfile is used when a Service is started with an empty name.
const DefaultProfile = "picoboard"

func (s *Service) Start(ctx context.Context, conn *msgbus.Connection) {
	profile := strx.Coalesce(s.Profile, DefaultProfile)
	go func() {
		state := "ready"
		if err := PublishConfig(conn, profile); err != nil {
			state = "error: " + err.Error()
		}
		conn.Publish(&msgbus.Message{
			Topic:    msgbus.T(configPrefix, "state"),
			Payload:  state,
			Retained: true,
		})
	}()
}
