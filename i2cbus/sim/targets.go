package sim

import (
	"errors"
	"sync"
	"time"
)

var errNak = errors.New("nak")

// Memory is a register-file target: the first written byte sets the
// register pointer, further bytes write through it, reads stream from it.
// The pointer auto-increments and wraps at 256. Covers the common
// pointer-register devices (sensors, RTCs, small expanders).
type Memory struct {
	mu   sync.Mutex
	regs [256]byte
	ptr  uint8
}

func NewMemory() *Memory { return &Memory{} }

// Poke seeds a register directly, bypassing the wire.
func (m *Memory) Poke(reg, val byte) {
	m.mu.Lock()
	m.regs[reg] = val
	m.mu.Unlock()
}

// Peek reads a register directly, bypassing the wire.
func (m *Memory) Peek(reg byte) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

func (m *Memory) Transfer(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(w) > 0 {
		m.ptr = w[0]
		for _, b := range w[1:] {
			m.regs[m.ptr] = b
			m.ptr++
		}
	}
	for i := range r {
		r[i] = m.regs[m.ptr]
		m.ptr++
	}
	return nil
}

// EEPROM models a 24Cxx part: two-byte addressing, page-bounded writes,
// and a write cycle during which the part NAKs everything (drivers poll
// for the ack). Reads auto-increment across the whole array.
type EEPROM struct {
	mu        sync.Mutex
	mem       []byte
	page      int
	ptr       int
	busyUntil time.Time

	// WriteCycle is the post-write busy window. Zero means instant.
	WriteCycle time.Duration
}

// NewEEPROM builds a part of the given size and write-page size.
func NewEEPROM(size, page int) *EEPROM {
	if page <= 0 {
		page = 32
	}
	return &EEPROM{mem: make([]byte, size), page: page}
}

// Bytes exposes the array for test assertions.
func (e *EEPROM) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.mem...)
}

func (e *EEPROM) Transfer(w, r []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Now().Before(e.busyUntil) {
		return errNak
	}
	if len(w) >= 2 {
		e.ptr = (int(w[0])<<8 | int(w[1])) % len(e.mem)
		if data := w[2:]; len(data) > 0 {
			// Writes wrap inside the addressed page, like the real part.
			pageStart := (e.ptr / e.page) * e.page
			off := e.ptr - pageStart
			for _, b := range data {
				e.mem[pageStart+off] = b
				off = (off + 1) % e.page
			}
			e.ptr = pageStart + off
			e.busyUntil = time.Now().Add(e.WriteCycle)
			return nil
		}
	}
	for i := range r {
		r[i] = e.mem[e.ptr]
		e.ptr = (e.ptr + 1) % len(e.mem)
	}
	return nil
}
