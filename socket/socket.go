// Package socket models the board's numbered sockets: which bus types
// each one carries, which GPIOs its pins map to, and who has claimed
// them. It is the concrete provider behind the bus core's Socket
// contract.
package socket

import (
	"mainboard-go/errcode"
	"mainboard-go/i2cbus"
	"mainboard-go/x/strconvx"
)

// TypeTag is a socket capability letter, matching the letters silkscreened
// next to the socket.
type TypeTag byte

const (
	TypeI2C   TypeTag = 'I'
	TypeGPIOX TypeTag = 'X'
	TypeGPIOY TypeTag = 'Y'
	TypeUART  TypeTag = 'U'
	TypeSPI   TypeTag = 'S'
)

// Pin is a position on the socket header. Position 1 is 3V3 and 2 is 5V;
// signal positions run 3..9 and 10 is ground, so only 3..9 are mappable.
type Pin int

const (
	Pin3 Pin = 3
	Pin4 Pin = 4
	Pin5 Pin = 5
	Pin6 Pin = 6
	Pin7 Pin = 7
	Pin8 Pin = 8
	Pin9 Pin = 9

	// I2C-capable sockets put the data line on pin 8 and the clock on 9.
	SDAPin = Pin8
	SCLPin = Pin9
)

// Socket is one physical socket on a board.
type Socket struct {
	board    *Board
	number   int
	types    string // capability letters, e.g. "IXY"
	pins     map[Pin]int
	indirect i2cbus.IndirectFactory
}

var _ i2cbus.Socket = (*Socket)(nil)

// Ref names the socket for error context.
func (s *Socket) Ref() string { return "socket" + strconvx.Itoa(s.number) }

func (s *Socket) Number() int { return s.number }

func (s *Socket) HasType(t TypeTag) bool {
	for i := 0; i < len(s.types); i++ {
		if s.types[i] == byte(t) {
			return true
		}
	}
	return false
}

// EnsureType fails with IncompatibleSocket when the socket lacks the tag.
func (s *Socket) EnsureType(t TypeTag, owner string) error {
	if s.HasType(t) {
		return nil
	}
	return &errcode.E{
		C:   errcode.IncompatibleSocket,
		Op:  "ensure",
		Msg: s.Ref() + " lacks type " + string(rune(t)) + " (" + owner + ")",
	}
}

func (s *Socket) EnsureI2C(owner string) error { return s.EnsureType(TypeI2C, owner) }

// GPIO resolves a socket pin to its board GPIO.
func (s *Socket) GPIO(p Pin) (int, error) {
	gpio, ok := s.pins[p]
	if !ok {
		return 0, &errcode.E{
			C:   errcode.UnknownPin,
			Op:  "gpio",
			Msg: s.Ref() + " pin " + strconvx.Itoa(int(p)) + " not mapped",
		}
	}
	return gpio, nil
}

// ReservePin claims one socket pin's GPIO through the board ledger.
func (s *Socket) ReservePin(p Pin, owner string) error {
	gpio, err := s.GPIO(p)
	if err != nil {
		return err
	}
	return s.board.ledger.Reserve(gpio, owner)
}

func (s *Socket) ReleasePin(p Pin, owner string) {
	if gpio, err := s.GPIO(p); err == nil {
		s.board.ledger.Release(gpio, owner)
	}
}

// ReserveI2CPins claims SDA and SCL together. On a clock-pin conflict the
// data pin is released again, so failure leaves nothing held.
func (s *Socket) ReserveI2CPins(owner string) error {
	if err := s.ReservePin(SDAPin, owner); err != nil {
		return err
	}
	if err := s.ReservePin(SCLPin, owner); err != nil {
		s.ReleasePin(SDAPin, owner)
		return err
	}
	return nil
}

func (s *Socket) ReleaseI2CPins(owner string) {
	s.ReleasePin(SDAPin, owner)
	s.ReleasePin(SCLPin, owner)
}

// SetI2CIndirect routes this socket's bus through a factory instead of
// the native controller. Used by bridged sockets and host simulations.
func (s *Socket) SetI2CIndirect(f i2cbus.IndirectFactory) { s.indirect = f }

func (s *Socket) I2CIndirect() i2cbus.IndirectFactory { return s.indirect }

// NativeBus hands out the board's shared controller, reference included.
func (s *Socket) NativeBus() (*i2cbus.SharedBus, error) { return s.board.SharedI2C() }
