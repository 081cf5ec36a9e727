package bridge

import (
	"mainboard-go/errcode"
	"mainboard-go/i2cbus"
)

// Payload layouts.
//
//	configure: addr_hi addr_lo khz_hi khz_lo
//	transfer:  count, then per leg: dir, len_hi, len_lo, write bytes
//	release:   empty
//	ok:        total_hi total_lo, then the read payloads in leg order
//	err:       one code byte

func encodeConfigure(cfg i2cbus.DeviceConfig) []byte {
	khz := uint16(cfg.ClockKHz)
	return []byte{
		byte(cfg.Address >> 8), byte(cfg.Address & 0xFF),
		byte(khz >> 8), byte(khz & 0xFF),
	}
}

func decodeConfigure(p []byte) (i2cbus.DeviceConfig, error) {
	if len(p) != 4 {
		return i2cbus.DeviceConfig{}, &errcode.E{C: errcode.ProtocolError, Op: "configure", Msg: "bad payload"}
	}
	return i2cbus.DeviceConfig{
		Address:  uint16(p[0])<<8 | uint16(p[1]),
		ClockKHz: int32(uint16(p[2])<<8 | uint16(p[3])),
	}, nil
}

func encodeTransfer(txns []i2cbus.Transaction) ([]byte, error) {
	if len(txns) > 0xFF {
		return nil, &errcode.E{C: errcode.ProtocolError, Op: "transfer", Msg: "list too long"}
	}
	out := []byte{byte(len(txns))}
	for _, t := range txns {
		if len(t.Buf) > 0xFFFF {
			return nil, &errcode.E{C: errcode.ProtocolError, Op: "transfer", Msg: "leg too long"}
		}
		out = append(out, byte(t.Dir), byte(len(t.Buf)>>8), byte(len(t.Buf)&0xFF))
		if t.Dir == i2cbus.DirWrite {
			out = append(out, t.Buf...)
		}
	}
	return out, nil
}

func decodeTransfer(p []byte) ([]i2cbus.Transaction, error) {
	bad := func(msg string) error {
		return &errcode.E{C: errcode.ProtocolError, Op: "transfer", Msg: msg}
	}
	if len(p) < 1 {
		return nil, bad("empty payload")
	}
	count := int(p[0])
	p = p[1:]
	txns := make([]i2cbus.Transaction, 0, count)
	for i := 0; i < count; i++ {
		if len(p) < 3 {
			return nil, bad("truncated leg header")
		}
		dir := i2cbus.Direction(p[0])
		n := int(p[1])<<8 | int(p[2])
		p = p[3:]
		switch dir {
		case i2cbus.DirWrite:
			if len(p) < n {
				return nil, bad("truncated write leg")
			}
			buf := make([]byte, n)
			copy(buf, p[:n])
			p = p[n:]
			txns = append(txns, i2cbus.Write(buf))
		case i2cbus.DirRead:
			txns = append(txns, i2cbus.Read(make([]byte, n)))
		default:
			return nil, bad("bad direction")
		}
	}
	if len(p) != 0 {
		return nil, bad("trailing bytes")
	}
	return txns, nil
}

// encodeOK packs the byte count and, in leg order, every read leg's
// buffer as filled by the local port.
func encodeOK(total int, txns []i2cbus.Transaction) []byte {
	out := []byte{byte(total >> 8), byte(total & 0xFF)}
	for _, t := range txns {
		if t.Dir == i2cbus.DirRead {
			out = append(out, t.Buf...)
		}
	}
	return out
}

// decodeOK distributes the response's read payloads back into the
// caller's read buffers.
func decodeOK(p []byte, txns []i2cbus.Transaction) (int, error) {
	bad := func(msg string) error {
		return &errcode.E{C: errcode.ProtocolError, Op: "transfer", Msg: msg}
	}
	if len(p) < 2 {
		return 0, bad("short ok payload")
	}
	total := int(p[0])<<8 | int(p[1])
	p = p[2:]
	for _, t := range txns {
		if t.Dir != i2cbus.DirRead {
			continue
		}
		if len(p) < len(t.Buf) {
			return 0, bad("short read payload")
		}
		copy(t.Buf, p[:len(t.Buf)])
		p = p[len(t.Buf):]
	}
	if len(p) != 0 {
		return 0, bad("trailing bytes")
	}
	return total, nil
}

// Stable wire bytes for error codes. Unknown bytes decode to the generic
// code so a newer peer still fails cleanly.
var wireCodes = [...]errcode.Code{
	1:  errcode.Busy,
	2:  errcode.InvalidParams,
	3:  errcode.Timeout,
	4:  errcode.BusError,
	5:  errcode.InvalidState,
	6:  errcode.Unsupported,
	7:  errcode.ProtocolError,
	8:  errcode.IncompatibleSocket,
	9:  errcode.PinConflict,
	10: errcode.UnknownSocket,
	11: errcode.UnknownPin,
}

func codeToByte(c errcode.Code) byte {
	for b, wc := range wireCodes {
		if wc == c {
			return byte(b)
		}
	}
	return 0
}

func byteToCode(b byte) errcode.Code {
	if int(b) < len(wireCodes) && wireCodes[b] != "" {
		return wireCodes[b]
	}
	return errcode.Error
}
