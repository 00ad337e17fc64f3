package client

import (
	"context"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"i2cbroker-go/errcode"
	"i2cbroker-go/types"
)

// DriverBus presents one pin pair of the broker as a drivers.I2C so stock
// device drivers can share the bus with other clients. Each address is
// attached on first use and stays attached until Close.
type DriverBus struct {
	c       *Client
	pins    types.Pins
	speedHz uint32
	timeout time.Duration

	mu  sync.Mutex
	ids map[uint16]types.DeviceID
}

var _ drivers.I2C = (*DriverBus)(nil)

// DriverBus binds pins at speedHz (0 for the default). timeout bounds every Tx.
func (c *Client) DriverBus(p types.Pins, speedHz uint32, timeout time.Duration) *DriverBus {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &DriverBus{c: c, pins: p, speedHz: speedHz, timeout: timeout, ids: map[uint16]types.DeviceID{}}
}

func (b *DriverBus) device(ctx context.Context, addr uint16) (types.DeviceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.ids[addr]; ok {
		return id, nil
	}
	mode := types.Addr7
	if addr > types.Addr7.MaxAddress() {
		mode = types.Addr10
	}
	id, err := b.c.Attach(ctx, types.DeviceConfig{Pins: b.pins, Address: addr, Mode: mode, SpeedHz: b.speedHz})
	if err != nil {
		return 0, err
	}
	b.ids[addr] = id
	return id, nil
}

// Tx writes w then reads len(r) bytes with a repeated start. Empty w and r
// probe the address.
func (b *DriverBus) Tx(addr uint16, w, r []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	id, err := b.device(ctx, addr)
	if err != nil {
		return err
	}
	var got []byte
	switch {
	case len(w) == 0 && len(r) == 0:
		ok, err := b.c.Probe(ctx, id)
		if err == nil && !ok {
			err = errcode.DeviceNotAck
		}
		return err
	case len(r) == 0:
		return b.c.Write(ctx, id, w)
	case len(w) == 0:
		got, err = b.c.Read(ctx, id, types.Blob, len(r))
	default:
		got, err = b.c.WriteRead(ctx, id, w, types.Blob, len(r))
	}
	if err != nil {
		return err
	}
	copy(r, got)
	return nil
}

// Close detaches every device the bus attached. The first error is returned
// after all detaches were tried.
func (b *DriverBus) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for addr, id := range b.ids {
		if err := b.c.Detach(ctx, id); err != nil && first == nil {
			first = err
		}
		delete(b.ids, addr)
	}
	return first
}
