package i2cbus

import (
	"mainboard-go/errcode"
)

type Direction uint8

const (
	DirWrite Direction = iota
	DirRead
)

// Transaction is one read or write leg of a bus operation. Write legs carry
// the bytes to send; read legs carry the buffer the received bytes land in.
// A []Transaction passed to Execute runs as one uninterrupted sequence on
// the wire.
type Transaction struct {
	Dir Direction
	Buf []byte
}

// Write builds a write leg. An empty buffer is legal and addresses the
// device without moving data (address probe).
func Write(buf []byte) Transaction { return Transaction{Dir: DirWrite, Buf: buf} }

// Read builds a read leg into buf. The leg length is len(buf).
func Read(buf []byte) Transaction { return Transaction{Dir: DirRead, Buf: buf} }

// validate rejects lists no backend could run: empty lists and zero-length
// read legs.
func validate(txns []Transaction) error {
	if len(txns) == 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "execute", Msg: "empty transaction list"}
	}
	for _, tx := range txns {
		if tx.Dir == DirRead && len(tx.Buf) == 0 {
			return &errcode.E{C: errcode.InvalidParams, Op: "execute", Msg: "zero-length read"}
		}
		if tx.Dir != DirRead && tx.Dir != DirWrite {
			return &errcode.E{C: errcode.InvalidParams, Op: "execute", Msg: "bad direction"}
		}
	}
	return nil
}

// Op is one controller-level operation: a write, a read, or a
// write-then-read with repeated start.
type Op struct {
	W, R []byte
}

// Ops folds a transaction list into controller operations. A write leg
// directly followed by a read leg becomes a single write-read with
// repeated start, which is what hardware controllers and the drivers
// interface natively speak. Port implementations replay these in order.
func Ops(txns []Transaction) []Op {
	out := make([]Op, 0, len(txns))
	for i := 0; i < len(txns); i++ {
		t := txns[i]
		if t.Dir == DirWrite {
			if i+1 < len(txns) && txns[i+1].Dir == DirRead {
				out = append(out, Op{W: t.Buf, R: txns[i+1].Buf})
				i++
				continue
			}
			out = append(out, Op{W: t.Buf})
			continue
		}
		out = append(out, Op{R: t.Buf})
	}
	return out
}
