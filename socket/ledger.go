package socket

import (
	"sync"

	"mainboard-go/errcode"
	"mainboard-go/x/strconvx"
)

// Ledger tracks which module owns which GPIO. Claims are by owner tag;
// re-reserving a pin you already hold is a no-op, anyone else's claim is a
// conflict.
type Ledger struct {
	mu     sync.Mutex
	min    int
	max    int
	owners map[int]string
}

// NewLedger covers the board's GPIO range, inclusive.
func NewLedger(min, max int) *Ledger {
	return &Ledger{min: min, max: max, owners: make(map[int]string)}
}

func (l *Ledger) Reserve(gpio int, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gpio < l.min || gpio > l.max {
		return &errcode.E{C: errcode.UnknownPin, Op: "reserve", Msg: "gpio" + strconvx.Itoa(gpio)}
	}
	if cur, held := l.owners[gpio]; held && cur != owner {
		return &errcode.E{
			C:   errcode.PinConflict,
			Op:  "reserve",
			Msg: "gpio" + strconvx.Itoa(gpio) + " held by " + cur,
		}
	}
	l.owners[gpio] = owner
	return nil
}

// Release frees the pin if owner holds it; anyone else's claim stays.
func (l *Ledger) Release(gpio int, owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, held := l.owners[gpio]; held && cur == owner {
		delete(l.owners, gpio)
	}
}

// Owner reports who holds the pin, empty when free.
func (l *Ledger) Owner(gpio int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owners[gpio]
}
