// Package sim is an in-memory transaction engine with virtual targets and
// fault injection.
package sim

import (
	"sync"
	"time"

	"i2cbroker-go/services/i2c/engine"
	"i2cbroker-go/types"
)

// Target is a virtual device on a simulated bus.
type Target interface {
	Tx(w, r []byte) error
}

// Op names an engine call for fault injection.
type Op uint8

const (
	OpCreateBus Op = iota
	OpDeleteBus
	OpAddDevice
	OpRemoveDevice
	OpTransact
	opCount
)

type Options struct {
	Controllers  int           // max live buses; 0 means types.MaxBuses
	DevicesPerCh int           // max devices per bus; 0 means unlimited
	Latency      time.Duration // added to every transaction
}

type busEntry struct {
	cfg  engine.BusConfig
	devs int
}

type devEntry struct {
	bus engine.BusHandle
	cfg types.DeviceConfig
}

type targetKey struct {
	pins types.Pins
	addr uint16
}

type Engine struct {
	mu      sync.Mutex
	opt     Options
	next    uint32
	buses   map[engine.BusHandle]*busEntry
	devs    map[engine.DeviceHandle]*devEntry
	targets map[targetKey]Target
	faults  [opCount]error
	calls   [opCount]int
}

var _ engine.Engine = (*Engine)(nil)

func New(opt Options) *Engine {
	if opt.Controllers <= 0 {
		opt.Controllers = types.MaxBuses
	}
	return &Engine{
		opt:     opt,
		buses:   make(map[engine.BusHandle]*busEntry),
		devs:    make(map[engine.DeviceHandle]*devEntry),
		targets: make(map[targetKey]Target),
	}
}

// Place puts a target on the wire at pins/addr. A nil target removes it.
func (e *Engine) Place(p types.Pins, addr uint16, t Target) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := targetKey{pins: p, addr: addr}
	if t == nil {
		delete(e.targets, k)
		return
	}
	e.targets[k] = t
}

// Fail makes every later call of op return err until cleared with nil.
func (e *Engine) Fail(op Op, err error) {
	e.mu.Lock()
	e.faults[op] = err
	e.mu.Unlock()
}

func (e *Engine) SetLatency(d time.Duration) {
	e.mu.Lock()
	e.opt.Latency = d
	e.mu.Unlock()
}

// Calls reports how many times op was invoked.
func (e *Engine) Calls(op Op) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// Buses reports the number of live buses.
func (e *Engine) Buses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buses)
}

// Devices reports the number of live device handles.
func (e *Engine) Devices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.devs)
}

func (e *Engine) enter(op Op) error {
	e.calls[op]++
	return e.faults[op]
}

func (e *Engine) CreateBus(cfg engine.BusConfig) (engine.BusHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpCreateBus); err != nil {
		return 0, err
	}
	if len(e.buses) >= e.opt.Controllers {
		return 0, engine.ErrCapacity
	}
	for _, b := range e.buses {
		if b.cfg.Index == cfg.Index {
			return 0, engine.ErrCapacity
		}
	}
	e.next++
	h := engine.BusHandle(e.next)
	e.buses[h] = &busEntry{cfg: cfg}
	return h, nil
}

func (e *Engine) DeleteBus(h engine.BusHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpDeleteBus); err != nil {
		return err
	}
	b, ok := e.buses[h]
	if !ok {
		return engine.ErrBadHandle
	}
	if b.devs > 0 {
		return engine.ErrBadHandle
	}
	delete(e.buses, h)
	return nil
}

func (e *Engine) AddDevice(bh engine.BusHandle, cfg types.DeviceConfig) (engine.DeviceHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpAddDevice); err != nil {
		return 0, err
	}
	b, ok := e.buses[bh]
	if !ok {
		return 0, engine.ErrBadHandle
	}
	if e.opt.DevicesPerCh > 0 && b.devs >= e.opt.DevicesPerCh {
		return 0, engine.ErrNoMem
	}
	e.next++
	h := engine.DeviceHandle(e.next)
	e.devs[h] = &devEntry{bus: bh, cfg: cfg}
	b.devs++
	return h, nil
}

func (e *Engine) RemoveDevice(h engine.DeviceHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enter(OpRemoveDevice); err != nil {
		return err
	}
	d, ok := e.devs[h]
	if !ok {
		return engine.ErrBadHandle
	}
	delete(e.devs, h)
	e.buses[d.bus].devs--
	return nil
}

func (e *Engine) Transact(h engine.DeviceHandle, op types.ExecKind, w, r []byte, timeout time.Duration) error {
	e.mu.Lock()
	if err := e.enter(OpTransact); err != nil {
		e.mu.Unlock()
		return err
	}
	d, ok := e.devs[h]
	if !ok {
		e.mu.Unlock()
		return engine.ErrBadHandle
	}
	pins := e.buses[d.bus].cfg.Pins
	t := e.targets[targetKey{pins: pins, addr: d.cfg.Address}]
	lat := e.opt.Latency
	e.mu.Unlock()

	if timeout <= 0 {
		timeout = engine.DefaultTimeout
	}
	if lat > 0 {
		if lat >= timeout {
			time.Sleep(timeout)
			return engine.ErrTimeout
		}
		time.Sleep(lat)
	}
	if t == nil {
		return engine.ErrNack
	}
	switch op {
	case types.Probe:
		return t.Tx(nil, nil)
	case types.Read:
		return t.Tx(nil, r)
	case types.Write:
		return t.Tx(w, nil)
	default:
		return t.Tx(w, r)
	}
}
