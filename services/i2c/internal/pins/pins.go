// Package pins tracks GPIO ownership. System pins are fixed at construction
// and can never be released.
package pins

import "fmt"

// Mask has one bit per pin.
type Mask uint64

// Bit returns the mask for a single pin, or 0 when pin is outside 0..63.
func Bit(pin int) Mask {
	if pin < 0 || pin >= 64 {
		return 0
	}
	return 1 << uint(pin)
}

// Arbiter is single-writer; the dispatcher owns it.
type Arbiter struct {
	count  int
	valid  Mask
	system Mask
	user   Mask
}

// New builds an arbiter for pinCount pins (capped at 64) with the given
// system reservation. System bits beyond pinCount are dropped.
func New(pinCount int, system Mask) *Arbiter {
	if pinCount > 64 {
		pinCount = 64
	}
	if pinCount < 0 {
		pinCount = 0
	}
	valid := ^Mask(0)
	if pinCount < 64 {
		valid = Mask(1)<<uint(pinCount) - 1
	}
	return &Arbiter{count: pinCount, valid: valid, system: system & valid}
}

// Reserve claims every pin in m, or none. Bits outside the pin range are ignored.
func (a *Arbiter) Reserve(m Mask) bool {
	m &= a.valid
	if m&(a.system|a.user) != 0 {
		return false
	}
	a.user |= m
	return true
}

// Release frees every pin in m. It fails with no effect if m touches a
// system pin.
func (a *Arbiter) Release(m Mask) bool {
	m &= a.valid
	if m&a.system != 0 {
		return false
	}
	a.user &^= m
	return true
}

func (a *Arbiter) IsReserved(pin int) bool {
	b := Bit(pin) & a.valid
	return b != 0 && (a.system|a.user)&b != 0
}

// Valid reports whether pin exists on this platform.
func (a *Arbiter) Valid(pin int) bool { return Bit(pin)&a.valid != 0 }

func (a *Arbiter) Snapshot() Mask { return a.system | a.user }
func (a *Arbiter) System() Mask   { return a.system }
func (a *Arbiter) User() Mask     { return a.user }
func (a *Arbiter) PinCount() int  { return a.count }

// Describe renders a one-line status for pin.
func (a *Arbiter) Describe(pin int) string {
	b := Bit(pin) & a.valid
	switch {
	case b == 0:
		return fmt.Sprintf("IO%02d does not exist", pin)
	case a.system&b != 0:
		return fmt.Sprintf("IO%02d is reserved (system)", pin)
	case a.user&b != 0:
		return fmt.Sprintf("IO%02d is reserved (user)", pin)
	}
	return fmt.Sprintf("IO%02d is free", pin)
}
