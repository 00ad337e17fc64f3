package pins

import (
	"math/rand"
	"testing"
)

func TestReserveDisjoint(t *testing.T) {
	a := New(40, Bit(6)|Bit(7))
	m1 := Bit(21) | Bit(22)
	m2 := Bit(4) | Bit(5)

	if !a.Reserve(m1) || !a.Reserve(m2) {
		t.Fatal("disjoint reservations should both succeed")
	}
	before := a.Snapshot()
	if a.Reserve(m1) {
		t.Fatal("second reservation of the same mask should fail")
	}
	if a.Snapshot() != before {
		t.Fatal("failed reserve changed state")
	}
}

func TestReserveIsAllOrNothing(t *testing.T) {
	a := New(40, 0)
	a.Reserve(Bit(22))
	if a.Reserve(Bit(21) | Bit(22)) {
		t.Fatal("overlapping reserve should fail")
	}
	if a.IsReserved(21) {
		t.Fatal("partial reservation leaked")
	}
}

func TestSystemPinsImmutable(t *testing.T) {
	sys := Bit(6) | Bit(11)
	a := New(40, sys)
	a.Reserve(Bit(21))
	before := a.Snapshot()

	if a.Release(Bit(6) | Bit(21)) {
		t.Fatal("release touching a system pin should fail")
	}
	if a.Snapshot() != before {
		t.Fatal("failed release changed state")
	}
	if a.Reserve(Bit(11)) {
		t.Fatal("system pin reserved by user")
	}
	if !a.Release(Bit(21)) || a.IsReserved(21) {
		t.Fatal("user pin should release")
	}
}

func TestOutOfRangeIgnored(t *testing.T) {
	a := New(30, Bit(40)) // system bit beyond range is dropped
	if a.System() != 0 {
		t.Fatalf("system = %#x", a.System())
	}
	if !a.Reserve(Bit(35)) || a.Snapshot() != 0 {
		t.Fatal("out-of-range bits must be ignored")
	}
	if a.IsReserved(35) || a.Valid(35) || a.IsReserved(-1) {
		t.Fatal("out-of-range pins are never reserved")
	}
	full := New(64, 0)
	if !full.Reserve(Bit(63)) || !full.IsReserved(63) {
		t.Fatal("pin 63 on a 64-pin platform")
	}
}

func TestRandomMasks(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sys := Bit(6) | Bit(7) | Bit(8)
	for i := 0; i < 500; i++ {
		a := New(40, sys)
		m1 := Mask(rng.Uint64()) &^ sys
		m2 := Mask(rng.Uint64()) &^ sys &^ m1
		if !a.Reserve(m1) || !a.Reserve(m2) {
			t.Fatalf("disjoint non-system masks %#x %#x", m1, m2)
		}
		if (m1&a.valid) != 0 && a.Reserve(m1) {
			t.Fatalf("repeat reserve of %#x succeeded", m1)
		}
		if a.System() != sys {
			t.Fatal("system mask changed")
		}
	}
}

func TestDescribe(t *testing.T) {
	a := New(40, Bit(6))
	a.Reserve(Bit(21))
	cases := map[int]string{
		6:  "IO06 is reserved (system)",
		21: "IO21 is reserved (user)",
		22: "IO22 is free",
		45: "IO45 does not exist",
	}
	for pin, want := range cases {
		if got := a.Describe(pin); got != want {
			t.Fatalf("Describe(%d) = %q, want %q", pin, got, want)
		}
	}
}
