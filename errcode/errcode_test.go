package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"ok":                      OK,
		"not_found":               NotFound,
		"timeout":                 Timeout,
		"bad_args":                BadArgs,
		"no_mem":                  NoMem,
		"no_more_buses":           NoMoreBuses,
		"pin_in_use":              PinInUse,
		"device_already_attached": DeviceAlreadyAttached,
		"device_not_found":        DeviceNotFound,
		"device_not_ack":          DeviceNotAck,
		"unknown":                 Unknown,
		"bus_teardown_failed":     BusTeardownFailed,
		"busy":                    Busy,
	}
	for want, c := range cases {
		if c.Error() != want {
			t.Fatalf("code %q mismatch: got %q", want, c.Error())
		}
	}
}

func TestNumRoundTrip(t *testing.T) {
	seen := map[uint16]Code{}
	for c := range codeNums {
		n := c.Num()
		if prev, dup := seen[n]; dup {
			t.Fatalf("codes %q and %q share wire number %d", prev, c, n)
		}
		seen[n] = c
		if got := FromNum(n); got != c {
			t.Fatalf("FromNum(%d) = %q, want %q", n, got, c)
		}
	}
	if OK.Num() != 0 {
		t.Fatalf("OK must be wire number 0, got %d", OK.Num())
	}
	if FromNum(0xFFFF) != Unknown {
		t.Fatal("unmapped number should decode as unknown")
	}
	if Code("made_up").Num() != Unknown.Num() {
		t.Fatal("unmapped code should encode as unknown")
	}
}

func TestPairPack(t *testing.T) {
	p := Pair{Code: PinInUse, Sub: SubPins}
	v := p.Pack()
	if v>>16 != uint32(PinInUse.Num()) || v&0xFFFF != uint32(SubPins) {
		t.Fatalf("bad packing: %#08x", v)
	}
	if got := UnpackPair(v); got != p {
		t.Fatalf("UnpackPair = %+v, want %+v", got, p)
	}
}

func TestOfAndPairOf(t *testing.T) {
	cause := errors.New("engine exploded")
	err := fmt.Errorf("attach: %w", Wrap(NoMoreBuses, SubBus, "create_bus", cause))

	if got := Of(err); got != NoMoreBuses {
		t.Fatalf("Of = %q, want %q", got, NoMoreBuses)
	}
	if got := PairOf(err); got != (Pair{Code: NoMoreBuses, Sub: SubBus}) {
		t.Fatalf("PairOf = %+v", got)
	}
	if !errors.Is(err, NoMoreBuses) {
		t.Fatal("errors.Is should match the wrapped code")
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the cause")
	}
	if Of(nil) != OK {
		t.Fatal("nil error should be OK")
	}
	if Of(errors.New("plain")) != Unknown {
		t.Fatal("plain error should be unknown")
	}
	if Of(Timeout) != Timeout {
		t.Fatal("bare code should map to itself")
	}
	if PairOf(DeviceNotAck) != (Pair{Code: DeviceNotAck}) {
		t.Fatal("bare code should have no subcode")
	}
}
