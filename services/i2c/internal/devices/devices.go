// Package devices assigns device ids and owns device handles.
package devices

import (
	"errors"

	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/engine"
	"i2cbroker-go/services/i2c/internal/buses"
	"i2cbroker-go/types"
)

type Entry struct {
	ID     types.DeviceID
	Handle engine.DeviceHandle
	Bus    *buses.Entry
	Config types.DeviceConfig
}

type Registry struct {
	eng   engine.Engine
	buses *buses.Registry
	max   int
	byID  map[types.DeviceID]*Entry
}

// New builds a registry. maxDevices caps live entries; 0 means no cap.
func New(eng engine.Engine, br *buses.Registry, maxDevices int) *Registry {
	return &Registry{
		eng:   eng,
		buses: br,
		max:   maxDevices,
		byID:  make(map[types.DeviceID]*Entry),
	}
}

// Attach registers cfg on bus. Any failure leaves no device entry, and a bus
// left without devices is torn down.
func (r *Registry) Attach(bus *buses.Entry, cfg types.DeviceConfig) (types.DeviceID, error) {
	id := types.PackDeviceID(cfg.Address, bus.Index, bus.Pins)
	if _, dup := r.byID[id]; dup {
		return 0, errcode.Wrap(errcode.DeviceAlreadyAttached, errcode.SubDevice, "attach", nil)
	}
	if r.max > 0 && len(r.byID) >= r.max {
		return 0, r.rollback(bus, errcode.Wrap(errcode.NoMem, errcode.SubDevice, "attach", nil))
	}
	h, err := r.eng.AddDevice(bus.Handle, cfg)
	if err != nil {
		code := errcode.Unknown
		if errors.Is(err, engine.ErrNoMem) {
			code = errcode.NoMem
		}
		return 0, r.rollback(bus, errcode.Wrap(code, errcode.SubEngine, "add_device", err))
	}
	r.byID[id] = &Entry{ID: id, Handle: h, Bus: bus, Config: cfg}
	bus.Devices++
	return id, nil
}

// rollback releases an empty bus. The attach error keeps its code; a
// teardown failure is joined behind it so it is still reported.
func (r *Registry) rollback(bus *buses.Entry, err error) error {
	if terr := r.buses.ReleaseIfEmpty(bus); terr != nil {
		return errors.Join(err, terr)
	}
	return err
}

// Detach removes id. The entry is kept if the engine refuses to remove the
// handle. A BusTeardownFailed error means the device is gone but its bus
// could not be deleted.
func (r *Registry) Detach(id types.DeviceID) error {
	e, ok := r.byID[id]
	if !ok {
		return errcode.Wrap(errcode.DeviceNotFound, errcode.SubDevice, "detach", nil)
	}
	if err := r.eng.RemoveDevice(e.Handle); err != nil {
		return errcode.Wrap(errcode.Unknown, errcode.SubEngine, "remove_device", err)
	}
	delete(r.byID, id)
	e.Bus.Devices--
	return r.buses.ReleaseIfEmpty(e.Bus)
}

func (r *Registry) Find(id types.DeviceID) (*Entry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

func (r *Registry) Len() int { return len(r.byID) }

// Each visits entries in no particular order.
func (r *Registry) Each(fn func(*Entry)) {
	for _, e := range r.byID {
		fn(e)
	}
}
