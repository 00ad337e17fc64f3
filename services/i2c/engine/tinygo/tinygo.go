// services/i2c/engine/tinygo/tinygo.go

// Package tinygo drives buses through tinygo.org/x/drivers.I2C. Each bus
// gets one owner goroutine; callers post requests and wait with a deadline.
package tinygo

import (
	"strings"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"i2cbroker-go/services/i2c/engine"
	"i2cbroker-go/types"
)

// Opener brings up the controller for cfg at the given frequency. close is
// called on DeleteBus.
type Opener func(cfg engine.BusConfig, freqHz uint32) (bus drivers.I2C, close func() error, err error)

// ControllerOf names the hardware controller that would serve pins. A nil
// ControllerOf gives every bus its own controller.
type ControllerOf func(p types.Pins) (int, error)

// baudSetter is implemented by machine.I2C on rp2.
type baudSetter interface {
	SetBaudRate(br uint32) error
}

// request posted to the per-bus worker
type i2cReq struct {
	addr   uint16
	freqHz uint32
	w, r   []byte
	done   chan error // buffered(1); worker replies best-effort
}

// per-bus owner that hosts a single worker goroutine
type i2cOwner struct {
	hw     drivers.I2C
	ctrl   int
	close  func() error
	freqHz uint32
	devs   int
	reqs   chan i2cReq
	quit   chan struct{}
}

func newI2COwner(hw drivers.I2C, closeFn func() error, freqHz uint32) *i2cOwner {
	o := &i2cOwner{
		hw:     hw,
		close:  closeFn,
		freqHz: freqHz,
		reqs:   make(chan i2cReq, 16),
		quit:   make(chan struct{}),
	}
	go o.loop()
	return o
}

func (o *i2cOwner) loop() {
	for {
		select {
		case req := <-o.reqs:
			err := o.tx(req)
			// best-effort reply; do not block the worker
			select {
			case req.done <- err:
			default:
			}
		case <-o.quit:
			return
		}
	}
}

func (o *i2cOwner) tx(req i2cReq) error {
	if req.freqHz != 0 && req.freqHz != o.freqHz {
		if bs, ok := o.hw.(baudSetter); ok {
			if err := bs.SetBaudRate(req.freqHz); err != nil {
				return err
			}
			o.freqHz = req.freqHz
		}
	}
	return o.hw.Tx(req.addr, req.w, req.r)
}

func (o *i2cOwner) stop() { close(o.quit) }

// post enqueues and waits, both bounded by timeout.
func (o *i2cOwner) post(req i2cReq, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case o.reqs <- req:
	case <-t.C:
		return engine.ErrTimeout
	}
	select {
	case err := <-req.done:
		return err
	case <-t.C:
		return engine.ErrTimeout
	}
}

type device struct {
	bus engine.BusHandle
	cfg types.DeviceConfig
}

type Engine struct {
	mu     sync.Mutex
	open   Opener
	ctrlOf ControllerOf
	inUse  map[int]bool
	freqHz uint32
	next   uint32
	buses  map[engine.BusHandle]*i2cOwner
	devs   map[engine.DeviceHandle]device
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine that opens controllers with open. A controller
// already serving a bus is refused with engine.ErrCapacity. freqHz is the
// initial bus frequency; 0 means types.DefaultSpeedHz.
func New(open Opener, ctrlOf ControllerOf, freqHz uint32) *Engine {
	if freqHz == 0 {
		freqHz = types.DefaultSpeedHz
	}
	return &Engine{
		open:   open,
		ctrlOf: ctrlOf,
		inUse:  make(map[int]bool),
		freqHz: freqHz,
		buses:  make(map[engine.BusHandle]*i2cOwner),
		devs:   make(map[engine.DeviceHandle]device),
	}
}

func (e *Engine) CreateBus(cfg engine.BusConfig) (engine.BusHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctrl := -1
	if e.ctrlOf != nil {
		c, err := e.ctrlOf(cfg.Pins)
		if err != nil {
			return 0, err
		}
		if e.inUse[c] {
			return 0, engine.ErrCapacity
		}
		ctrl = c
	}
	hw, closeFn, err := e.open(cfg, e.freqHz)
	if err != nil {
		return 0, err
	}
	if ctrl >= 0 {
		e.inUse[ctrl] = true
	}
	e.next++
	h := engine.BusHandle(e.next)
	o := newI2COwner(hw, closeFn, e.freqHz)
	o.ctrl = ctrl
	e.buses[h] = o
	return h, nil
}

func (e *Engine) DeleteBus(h engine.BusHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.buses[h]
	if !ok || o.devs > 0 {
		return engine.ErrBadHandle
	}
	delete(e.buses, h)
	if o.ctrl >= 0 {
		delete(e.inUse, o.ctrl)
	}
	o.stop()
	if o.close != nil {
		return o.close()
	}
	return nil
}

func (e *Engine) AddDevice(bh engine.BusHandle, cfg types.DeviceConfig) (engine.DeviceHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.buses[bh]
	if !ok {
		return 0, engine.ErrBadHandle
	}
	e.next++
	h := engine.DeviceHandle(e.next)
	e.devs[h] = device{bus: bh, cfg: cfg}
	o.devs++
	return h, nil
}

func (e *Engine) RemoveDevice(h engine.DeviceHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
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
	d, ok := e.devs[h]
	var o *i2cOwner
	if ok {
		o = e.buses[d.bus]
	}
	e.mu.Unlock()
	if o == nil {
		return engine.ErrBadHandle
	}
	if timeout <= 0 {
		timeout = engine.DefaultTimeout
	}

	req := i2cReq{addr: d.cfg.Address, freqHz: d.cfg.SpeedHz, done: make(chan error, 1)}
	switch op {
	case types.Probe:
		// One-byte read: an absent device fails the address phase.
		req.r = make([]byte, 1)
	case types.Read:
		req.r = r
	case types.Write:
		req.w = w
	default:
		req.w, req.r = w, r
	}
	return classify(o.post(req, timeout))
}

// classify maps driver errors onto engine sentinels. TinyGo machine packages
// report failures as plain errors, so this goes by message.
func classify(err error) error {
	if err == nil || err == engine.ErrTimeout {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nack"), strings.Contains(msg, "ack expected"),
		strings.Contains(msg, "expected ack"), strings.Contains(msg, "abort"):
		return engine.ErrNack
	case strings.Contains(msg, "timeout"):
		return engine.ErrTimeout
	}
	return err
}
