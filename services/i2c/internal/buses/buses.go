// Package buses maps pin pairs to live engine buses, creating them lazily
// and tearing them down when their last device leaves.
package buses

import (
	"errors"
	"fmt"

	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/engine"
	"i2cbroker-go/services/i2c/internal/pins"
	"i2cbroker-go/types"
)

type Entry struct {
	Pins    types.Pins
	Index   int
	Handle  engine.BusHandle
	Devices int
}

func (e *Entry) mask() pins.Mask { return pins.Bit(e.Pins.SCL) | pins.Bit(e.Pins.SDA) }

type Registry struct {
	eng    engine.Engine
	arb    *pins.Arbiter
	max    int
	byPins map[types.Pins]*Entry
	used   [types.MaxBuses]bool
	leaked []leak
}

// leak is a bus the engine refused to delete. Its pins and index stay
// reserved for the life of the registry.
type leak struct {
	pins  types.Pins
	index int
}

// New builds a registry over eng and arb. maxBuses caps live buses at
// min(maxBuses, types.MaxBuses); 0 means types.MaxBuses.
func New(eng engine.Engine, arb *pins.Arbiter, maxBuses int) *Registry {
	if maxBuses <= 0 || maxBuses > types.MaxBuses {
		maxBuses = types.MaxBuses
	}
	return &Registry{
		eng:    eng,
		arb:    arb,
		max:    maxBuses,
		byPins: make(map[types.Pins]*Entry),
	}
}

// FindOrCreate returns the bus for p, creating it if needed. On failure no
// pins stay reserved and no index stays allocated.
func (r *Registry) FindOrCreate(p types.Pins) (*Entry, error) {
	if e, ok := r.byPins[p]; ok {
		return e, nil
	}
	m := pins.Bit(p.SCL) | pins.Bit(p.SDA)
	if !r.arb.Reserve(m) {
		return nil, errcode.Wrap(errcode.PinInUse, errcode.SubPins, "find_or_create",
			fmt.Errorf("%v", p))
	}
	idx := r.allocIndex()
	if idx < 0 {
		r.arb.Release(m)
		return nil, errcode.Wrap(errcode.NoMoreBuses, errcode.SubBus, "find_or_create", nil)
	}
	h, err := r.eng.CreateBus(engine.BusConfig{Index: idx, Pins: p})
	if err != nil {
		r.used[idx] = false
		r.arb.Release(m)
		if errors.Is(err, engine.ErrCapacity) {
			return nil, errcode.Wrap(errcode.NoMoreBuses, errcode.SubEngine, "create_bus", err)
		}
		return nil, errcode.Wrap(errcode.Unknown, errcode.SubEngine, "create_bus", err)
	}
	e := &Entry{Pins: p, Index: idx, Handle: h}
	r.byPins[p] = e
	return e, nil
}

func (r *Registry) allocIndex() int {
	for i := 0; i < r.max; i++ {
		if !r.used[i] {
			r.used[i] = true
			return i
		}
	}
	return -1
}

// ReleaseIfEmpty tears e down when it has no devices. The entry is always
// removed; if the engine refuses to delete the bus its pins and index stay
// reserved and the bus is recorded in Leaked.
func (r *Registry) ReleaseIfEmpty(e *Entry) error {
	if e.Devices > 0 {
		return nil
	}
	if cur, ok := r.byPins[e.Pins]; !ok || cur != e {
		return nil
	}
	delete(r.byPins, e.Pins)

	if err := r.eng.DeleteBus(e.Handle); err != nil {
		r.leaked = append(r.leaked, leak{pins: e.Pins, index: e.Index})
		return errcode.Wrap(errcode.BusTeardownFailed, errcode.SubTeardown, "delete_bus", err)
	}
	r.used[e.Index] = false
	r.arb.Release(e.mask())
	return nil
}

func (r *Registry) Find(p types.Pins) (*Entry, bool) {
	e, ok := r.byPins[p]
	return e, ok
}

func (r *Registry) Len() int { return len(r.byPins) }

// Each visits entries in no particular order.
func (r *Registry) Each(fn func(*Entry)) {
	for _, e := range r.byPins {
		fn(e)
	}
}

// Leaked lists pin pairs quarantined after a failed bus deletion.
func (r *Registry) Leaked() []types.Pins {
	out := make([]types.Pins, 0, len(r.leaked))
	for _, l := range r.leaked {
		out = append(out, l.pins)
	}
	return out
}
