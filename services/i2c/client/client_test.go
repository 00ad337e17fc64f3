package client

import (
	"context"
	"testing"
	"time"

	"i2cbroker-go/bus"
	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/topics"
	"i2cbroker-go/types"
)

// responder answers every command with fn's result.
func responder(t *testing.T, b *bus.Bus, fn func(types.Command) types.Response) {
	t.Helper()
	conn := b.NewConnection("responder")
	sub := conn.Subscribe(topics.CmdAll())
	go func() {
		for m := range sub.Channel() {
			conn.Reply(m, fn(m.Payload.(types.Command)), false)
		}
	}()
	t.Cleanup(conn.Disconnect)
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestBusyWhenQueueFull(t *testing.T) {
	b := bus.NewBus(4)
	stuck := b.NewConnection("stuck")
	stuck.SubscribeN(topics.CmdAll(), 1)

	c := New(b.NewConnection("client"))
	if err := c.conn.TryPublish(c.conn.NewMessage(topics.Cmd("attach"), types.Attach{}, false)); err != nil {
		t.Fatal(err)
	}
	_, err := c.Attach(ctxT(t), types.DeviceConfig{Address: 0x21})
	if errcode.Of(err) != errcode.Busy {
		t.Fatalf("expected busy, got %v", err)
	}
	if errcode.PairOf(err).Sub != errcode.SubQueue {
		t.Fatalf("expected queue subcode, got %+v", errcode.PairOf(err))
	}
}

func TestErrorResponseBecomesError(t *testing.T) {
	b := bus.NewBus(4)
	responder(t, b, func(cmd types.Command) types.Response {
		return types.Error{Tag: types.CommandTag(cmd), Code: errcode.PinInUse, Sub: errcode.SubPins}
	})
	c := New(b.NewConnection("client"))
	_, err := c.Attach(ctxT(t), types.DeviceConfig{Address: 0x21})
	if errcode.Of(err) != errcode.PinInUse {
		t.Fatalf("got %v", err)
	}
}

func TestReadUintBigEndian(t *testing.T) {
	b := bus.NewBus(4)
	responder(t, b, func(cmd types.Command) types.Response {
		x := cmd.(types.Execute)
		if x.Kind != types.ReadWrite || x.In.Bytes()[0] != 0x0F || x.Type != types.U16 {
			return types.Error{Tag: x.Tag, Code: errcode.BadArgs}
		}
		p, _ := types.PayloadOf([]byte{0x12, 0x34})
		return types.Data{Tag: x.Tag, ID: x.ID, Status: errcode.OK, Payload: p}
	})
	c := New(b.NewConnection("client"))
	v, err := c.ReadUint(ctxT(t), 1, 0x0F, types.U16)
	if err != nil || v != 0x1234 {
		t.Fatalf("ReadUint = %#x, %v", v, err)
	}
	if _, err := c.ReadUint(ctxT(t), 1, 0x0F, types.Blob); errcode.Of(err) != errcode.BadArgs {
		t.Fatalf("blob ReadUint: %v", err)
	}
}

func TestProbeNack(t *testing.T) {
	b := bus.NewBus(4)
	responder(t, b, func(cmd types.Command) types.Response {
		return types.Error{Tag: types.CommandTag(cmd), Code: errcode.DeviceNotAck}
	})
	c := New(b.NewConnection("client"))
	ok, err := c.Probe(ctxT(t), 1)
	if ok || err != nil {
		t.Fatalf("Probe = %v, %v", ok, err)
	}
}

func TestWriteTooLarge(t *testing.T) {
	c := New(bus.NewBus(4).NewConnection("client"))
	err := c.Write(ctxT(t), 1, make([]byte, types.PayloadCap+1))
	if errcode.Of(err) != errcode.BadArgs {
		t.Fatalf("got %v", err)
	}
}

func TestContextTimeout(t *testing.T) {
	b := bus.NewBus(4)
	b.NewConnection("silent").Subscribe(topics.CmdAll())
	c := New(b.NewConnection("client"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Detach(ctx, 1); errcode.Of(err) != errcode.Timeout {
		t.Fatalf("got %v", err)
	}
}
