// Package engine defines the bus transaction engine the broker drives.
package engine

import (
	"errors"
	"time"

	"i2cbroker-go/errcode"
	"i2cbroker-go/types"
)

var (
	// CreateBus: no controller left.
	ErrCapacity = errors.New("capacity_exhausted")
	// AddDevice: no room for another device handle.
	ErrNoMem = errors.New("no_mem")

	// Transact outcomes
	ErrNack    = errors.New("nack")
	ErrTimeout = errors.New("timeout")

	ErrBadHandle = errors.New("bad_handle")
)

// DefaultTimeout bounds a single transaction when the caller gives none.
const DefaultTimeout = 50 * time.Millisecond

type BusHandle uint32
type DeviceHandle uint32

// BusConfig describes a controller to bring up.
type BusConfig struct {
	Index int // controller port, 0..types.MaxBuses-1
	Pins  types.Pins
}

// Engine performs electrical transactions. Every call must return within a
// bounded time; Transact must honour timeout.
type Engine interface {
	CreateBus(cfg BusConfig) (BusHandle, error)
	DeleteBus(h BusHandle) error
	AddDevice(bus BusHandle, cfg types.DeviceConfig) (DeviceHandle, error)
	RemoveDevice(h DeviceHandle) error
	// Transact runs op. Probe ignores w and r. Read fills r, Write sends w,
	// ReadWrite sends w then fills r.
	Transact(h DeviceHandle, op types.ExecKind, w, r []byte, timeout time.Duration) error
}

// TransactCode maps a Transact result onto the protocol codes.
func TransactCode(err error) errcode.Code {
	switch {
	case err == nil:
		return errcode.OK
	case errors.Is(err, ErrNack):
		return errcode.DeviceNotAck
	case errors.Is(err, ErrTimeout):
		return errcode.Timeout
	default:
		return errcode.Unknown
	}
}
