package tinygo

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/drivers"

	"i2cbroker-go/services/i2c/engine"
	"i2cbroker-go/types"
)

type fakeI2C struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	baud  uint32
	last  uint16
	fill  byte
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	f.last = addr
	err, d, fill := f.err, f.delay, f.fill
	f.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	for i := range r {
		r[i] = fill
	}
	return err
}

func (f *fakeI2C) SetBaudRate(br uint32) error {
	f.mu.Lock()
	f.baud = br
	f.mu.Unlock()
	return nil
}

func newTestEngine(hw *fakeI2C) (*Engine, *int) {
	closed := new(int)
	open := func(cfg engine.BusConfig, freq uint32) (drivers.I2C, func() error, error) {
		return hw, func() error { *closed++; return nil }, nil
	}
	return New(open, nil, 0), closed
}

func TestReadFillsBuffer(t *testing.T) {
	hw := &fakeI2C{fill: 0x5A}
	e, _ := newTestEngine(hw)
	bh, err := e.CreateBus(engine.BusConfig{Pins: types.Pins{SCL: 5, SDA: 4}})
	if err != nil {
		t.Fatal(err)
	}
	dh, _ := e.AddDevice(bh, types.DeviceConfig{Address: 0x38, SpeedHz: 400_000})

	r := make([]byte, 3)
	if err := e.Transact(dh, types.Read, nil, r, time.Second); err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if r[2] != 0x5A || hw.last != 0x38 {
		t.Fatalf("unexpected tx: r=%v addr=%#x", r, hw.last)
	}
	if hw.baud != 400_000 {
		t.Fatalf("device speed not applied: %d", hw.baud)
	}
}

func TestErrorClassification(t *testing.T) {
	hw := &fakeI2C{err: errors.New("I2C error: expected ACK not NACK")}
	e, _ := newTestEngine(hw)
	bh, _ := e.CreateBus(engine.BusConfig{})
	dh, _ := e.AddDevice(bh, types.DeviceConfig{Address: 0x10})

	if err := e.Transact(dh, types.Probe, nil, nil, time.Second); err != engine.ErrNack {
		t.Fatalf("expected ErrNack, got %v", err)
	}
	hw.mu.Lock()
	hw.err = errors.New("I2C timeout during write")
	hw.mu.Unlock()
	if err := e.Transact(dh, types.Write, []byte{1}, nil, time.Second); err != engine.ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestTransactBounded(t *testing.T) {
	hw := &fakeI2C{delay: 100 * time.Millisecond}
	e, _ := newTestEngine(hw)
	bh, _ := e.CreateBus(engine.BusConfig{})
	dh, _ := e.AddDevice(bh, types.DeviceConfig{Address: 0x10})

	start := time.Now()
	err := e.Transact(dh, types.Probe, nil, nil, 10*time.Millisecond)
	if err != engine.ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 80*time.Millisecond {
		t.Fatal("transaction was not bounded by its timeout")
	}
}

func TestDeleteBusClosesController(t *testing.T) {
	e, closed := newTestEngine(&fakeI2C{})
	bh, _ := e.CreateBus(engine.BusConfig{})
	dh, _ := e.AddDevice(bh, types.DeviceConfig{Address: 0x10})

	if err := e.DeleteBus(bh); err != engine.ErrBadHandle {
		t.Fatalf("delete with devices: %v", err)
	}
	if err := e.RemoveDevice(dh); err != nil {
		t.Fatal(err)
	}
	if err := e.DeleteBus(bh); err != nil {
		t.Fatal(err)
	}
	if *closed != 1 {
		t.Fatalf("close called %d times", *closed)
	}
}

func TestControllerShared(t *testing.T) {
	opened := 0
	open := func(cfg engine.BusConfig, freq uint32) (drivers.I2C, func() error, error) {
		opened++
		return &fakeI2C{}, nil, nil
	}
	// Pairs alternate controllers every two pins.
	ctrlOf := func(p types.Pins) (int, error) {
		if (p.SCL/2)%2 != (p.SDA/2)%2 {
			return 0, errors.New("split controllers")
		}
		return (p.SDA / 2) % 2, nil
	}
	e := New(open, ctrlOf, 0)

	bh, err := e.CreateBus(engine.BusConfig{Pins: types.Pins{SCL: 5, SDA: 4}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateBus(engine.BusConfig{Index: 1, Pins: types.Pins{SCL: 1, SDA: 0}}); err != engine.ErrCapacity {
		t.Fatalf("second bus on I2C0: %v", err)
	}
	if opened != 1 {
		t.Fatalf("controller reopened %d times", opened)
	}
	if _, err := e.CreateBus(engine.BusConfig{Index: 1, Pins: types.Pins{SCL: 3, SDA: 2}}); err != nil {
		t.Fatalf("bus on I2C1: %v", err)
	}

	if err := e.DeleteBus(bh); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateBus(engine.BusConfig{Pins: types.Pins{SCL: 1, SDA: 0}}); err != nil {
		t.Fatalf("I2C0 after delete: %v", err)
	}
}
