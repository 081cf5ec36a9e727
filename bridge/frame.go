// Package bridge tunnels a bus Port over a byte link. The Client side
// implements i2cbus.Port, so a board on one end of a serial cable can
// drive a controller (or a simulated world) living on the other end.
// Serve answers on the far side against any local Port.
//
// Frame layout, both directions:
//
//	0x7E | len_hi len_lo | type | payload... | crc_hi crc_lo
//
// The length counts type plus payload; the CRC covers the same span.
// Bytes between frames are skipped until the next sync byte, so a
// corrupted frame costs one exchange, not the link.
package bridge

import (
	"io"

	"mainboard-go/errcode"
	"mainboard-go/x/strconvx"
)

const (
	syncByte byte = 0x7E

	// Caps one frame body. Bounds allocation on the receive path; a
	// transaction list that encodes larger than this cannot cross the
	// bridge.
	maxBody = 4096
)

// Frame types.
const (
	frameConfigure byte = 0x01
	frameTransfer  byte = 0x02
	frameRelease   byte = 0x03
	frameOK        byte = 0x10
	frameErr       byte = 0x11
)

// crc16 is the polynomial form the pack's MCU serial protocols use.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

type frame struct {
	typ     byte
	payload []byte
}

type frameReader struct{ r io.Reader }
type frameWriter struct{ w io.Writer }

// ReadFrame blocks for the next frame. A length or CRC violation returns
// ProtocolError and leaves the reader usable; the next call rescans for
// the sync byte. Link failures return the underlying read error.
func (fr *frameReader) ReadFrame() (frame, error) {
	var b [1]byte
	for {
		if _, err := io.ReadFull(fr.r, b[:]); err != nil {
			return frame{}, err
		}
		if b[0] == syncByte {
			break
		}
	}
	var hdr [2]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return frame{}, err
	}
	n := int(hdr[0])<<8 | int(hdr[1])
	if n < 1 || n > maxBody {
		return frame{}, &errcode.E{C: errcode.ProtocolError, Op: "read", Msg: "frame length " + strconvx.Itoa(n)}
	}
	body := make([]byte, n+2)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return frame{}, err
	}
	want := uint16(body[n])<<8 | uint16(body[n+1])
	if got := crc16(body[:n]); got != want {
		return frame{}, &errcode.E{C: errcode.ProtocolError, Op: "read", Msg: "crc mismatch"}
	}
	return frame{typ: body[0], payload: body[1:n]}, nil
}

// WriteFrame emits f as one Write call, so frames never interleave on
// writers shared with nothing else and half-frames never sit in a serial
// FIFO across calls.
func (fw *frameWriter) WriteFrame(f frame) error {
	n := 1 + len(f.payload)
	if n > maxBody {
		return &errcode.E{C: errcode.ProtocolError, Op: "write", Msg: "frame too large"}
	}
	buf := make([]byte, 0, 3+n+2)
	buf = append(buf, syncByte, byte(n>>8), byte(n&0xFF), f.typ)
	buf = append(buf, f.payload...)
	crc := crc16(buf[3:])
	buf = append(buf, byte(crc>>8), byte(crc&0xFF))
	_, err := fw.w.Write(buf)
	return err
}
