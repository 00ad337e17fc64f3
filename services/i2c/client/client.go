// Package client is the typed caller API for the i2c service.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"i2cbroker-go/bus"
	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/topics"
	"i2cbroker-go/types"
)

type Client struct {
	conn *bus.Connection
	tag  atomic.Uint32
}

func New(conn *bus.Connection) *Client { return &Client{conn: conn} }

func (c *Client) nextTag() types.Tag { return types.Tag(c.tag.Add(1)) }

// Do sends cmd and waits for its response. A saturated command queue fails
// immediately with errcode.Busy; nothing is enqueued in that case.
func (c *Client) Do(ctx context.Context, cmd types.Command) (types.Response, error) {
	sub, err := c.conn.TryRequest(c.conn.NewMessage(topics.Cmd(types.CommandName(cmd)), cmd, false))
	if errors.Is(err, bus.ErrQueueFull) {
		return nil, errcode.Wrap(errcode.Busy, errcode.SubQueue, types.CommandName(cmd), err)
	}
	if err != nil {
		return nil, err
	}
	defer c.conn.Unsubscribe(sub)

	select {
	case m := <-sub.Channel():
		r, ok := m.Payload.(types.Response)
		if !ok {
			return nil, &errcode.E{C: errcode.Unknown, Op: types.CommandName(cmd), Msg: fmt.Sprintf("reply %T", m.Payload)}
		}
		return r, nil
	case <-ctx.Done():
		return nil, errcode.Wrap(errcode.Timeout, errcode.SubQueue, types.CommandName(cmd), ctx.Err())
	}
}

func unexpected(op string, r types.Response) error {
	if e, ok := r.(types.Error); ok {
		return e.Err()
	}
	return &errcode.E{C: errcode.Unknown, Op: op, Msg: fmt.Sprintf("unexpected %T", r)}
}

func (c *Client) Attach(ctx context.Context, cfg types.DeviceConfig) (types.DeviceID, error) {
	r, err := c.Do(ctx, types.Attach{Tag: c.nextTag(), Config: cfg})
	if err != nil {
		return 0, err
	}
	if a, ok := r.(types.Attached); ok {
		return a.ID, nil
	}
	return 0, unexpected("attach", r)
}

func (c *Client) Detach(ctx context.Context, id types.DeviceID) error {
	r, err := c.Do(ctx, types.Detach{Tag: c.nextTag(), ID: id})
	if err != nil {
		return err
	}
	if _, ok := r.(types.Detached); ok {
		return nil
	}
	return unexpected("detach", r)
}

func (c *Client) exec(ctx context.Context, x types.Execute) ([]byte, error) {
	x.Tag = c.nextTag()
	r, err := c.Do(ctx, x)
	if err != nil {
		return nil, err
	}
	if d, ok := r.(types.Data); ok {
		return d.Payload.Bytes(), nil
	}
	return nil, unexpected(x.Kind.String(), r)
}

func payload(b []byte) (types.Payload, error) {
	p, ok := types.PayloadOf(b)
	if !ok {
		return p, &errcode.E{C: errcode.BadArgs, S: errcode.SubArgs, Msg: fmt.Sprintf("%d bytes exceeds %d", len(b), types.PayloadCap)}
	}
	return p, nil
}

// Read reads a scalar, or n bytes when dt is types.Blob.
func (c *Client) Read(ctx context.Context, id types.DeviceID, dt types.DataType, n int) ([]byte, error) {
	return c.exec(ctx, types.Execute{ID: id, Kind: types.Read, Type: dt, OutLen: n})
}

func (c *Client) Write(ctx context.Context, id types.DeviceID, w []byte) error {
	p, err := payload(w)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, types.Execute{ID: id, Kind: types.Write, Type: types.Blob, In: p})
	return err
}

// WriteRead writes w then reads a scalar, or n bytes when dt is types.Blob.
func (c *Client) WriteRead(ctx context.Context, id types.DeviceID, w []byte, dt types.DataType, n int) ([]byte, error) {
	p, err := payload(w)
	if err != nil {
		return nil, err
	}
	return c.exec(ctx, types.Execute{ID: id, Kind: types.ReadWrite, Type: dt, OutLen: n, In: p})
}

// Probe reports whether the device acknowledges its address.
func (c *Client) Probe(ctx context.Context, id types.DeviceID) (bool, error) {
	_, err := c.exec(ctx, types.Execute{ID: id, Kind: types.Probe})
	if errcode.Of(err) == errcode.DeviceNotAck {
		return false, nil
	}
	return err == nil, err
}

// ReadUint reads register reg as a big-endian scalar of type dt.
func (c *Client) ReadUint(ctx context.Context, id types.DeviceID, reg byte, dt types.DataType) (uint64, error) {
	if dt.Width() == 0 {
		return 0, &errcode.E{C: errcode.BadArgs, S: errcode.SubArgs, Op: "read_uint", Msg: "scalar type required"}
	}
	b, err := c.WriteRead(ctx, id, []byte{reg}, dt, 0)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v, nil
}

// Dump asks for a diagnostic dump and waits for it on the diag topic.
func (c *Client) Dump(ctx context.Context) (types.Dump, error) {
	diag := c.conn.Subscribe(topics.Diag())
	defer c.conn.Unsubscribe(diag)

	tag := c.nextTag()
	if err := c.conn.TryPublish(c.conn.NewMessage(topics.Cmd("dump"), types.DiagnosticDump{Tag: tag}, false)); err != nil {
		return types.Dump{}, errcode.Wrap(errcode.Busy, errcode.SubQueue, "dump", err)
	}
	for {
		select {
		case m := <-diag.Channel():
			if d, ok := m.Payload.(types.Dump); ok && d.Tag == tag {
				return d, nil
			}
		case <-ctx.Done():
			return types.Dump{}, errcode.Wrap(errcode.Timeout, errcode.SubQueue, "dump", ctx.Err())
		}
	}
}
