package errcode

import "errors"

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                    Code = "ok"
	NotFound              Code = "not_found"
	Timeout               Code = "timeout"
	BadArgs               Code = "bad_args"
	NoMem                 Code = "no_mem"
	NoMoreBuses           Code = "no_more_buses"
	PinInUse              Code = "pin_in_use"
	DeviceAlreadyAttached Code = "device_already_attached"
	DeviceNotFound        Code = "device_not_found"
	DeviceNotAck          Code = "device_not_ack"
	Unknown               Code = "unknown" // generic fallback

	// The bus entry was dropped but the engine refused to delete the bus.
	BusTeardownFailed Code = "bus_teardown_failed"
	// The command channel was saturated; nothing was enqueued.
	Busy Code = "busy"
)

// Wire numbers. Zero is reserved for OK so a zeroed envelope reads as success.
var codeNums = map[Code]uint16{
	OK:                    0,
	NotFound:              1,
	Timeout:               2,
	BadArgs:               3,
	NoMem:                 4,
	NoMoreBuses:           5,
	PinInUse:              6,
	DeviceAlreadyAttached: 7,
	DeviceNotFound:        8,
	DeviceNotAck:          9,
	Unknown:               10,
	BusTeardownFailed:     11,
	Busy:                  12,
}

var numCodes = func() map[uint16]Code {
	m := make(map[uint16]Code, len(codeNums))
	for c, n := range codeNums {
		m[n] = c
	}
	return m
}()

// Num returns the wire number of c. Unrecognised codes map to Unknown.
func (c Code) Num() uint16 {
	if n, ok := codeNums[c]; ok {
		return n
	}
	return codeNums[Unknown]
}

// FromNum is the inverse of Num.
func FromNum(n uint16) Code {
	if c, ok := numCodes[n]; ok {
		return c
	}
	return Unknown
}

// Sub identifies the stage that produced a code.
type Sub uint16

const (
	SubNone Sub = iota
	SubPins
	SubBus
	SubDevice
	SubEngine
	SubTeardown
	SubQueue
	SubArgs
)

// Pair is the two-level {code, subcode} form, packed as 16+16 bits with the
// code in the high half.
type Pair struct {
	Code Code
	Sub  Sub
}

func (p Pair) Pack() uint32 { return uint32(p.Code.Num())<<16 | uint32(p.Sub) }

func UnpackPair(v uint32) Pair {
	return Pair{Code: FromNum(uint16(v >> 16)), Sub: Sub(v & 0xFFFF)}
}

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	S   Sub
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	if e.Err != nil {
		return string(e.C) + ": " + e.Err.Error()
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }
func (e *E) Pair() Pair    { return Pair{Code: e.C, Sub: e.S} }

// Is lets errors.Is(err, errcode.X) match a wrapped code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E for op with an optional cause.
func Wrap(c Code, s Sub, op string, err error) error {
	return &E{C: c, S: s, Op: op, Err: err}
}

// Of extracts a Code from an error, defaulting to Unknown.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Unknown
}

// PairOf extracts the {code, subcode} pair from an error.
func PairOf(err error) Pair {
	var e *E
	if errors.As(err, &e) {
		return e.Pair()
	}
	return Pair{Code: Of(err)}
}
