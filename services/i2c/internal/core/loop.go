package core

import (
	"context"

	"i2cbroker-go/bus"
	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/topics"
	"i2cbroker-go/types"
)

// Run consumes commands until ctx ends. One command is fully resolved, and
// its response emitted, before the next is taken.
func (d *Dispatcher) Run(ctx context.Context) {
	d.cmdSub = d.conn.SubscribeN(topics.CmdAll(), d.cfg.QueueLen)
	defer d.conn.Unsubscribe(d.cmdSub)
	close(d.ready)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-d.cmdSub.Channel():
			if !ok {
				return
			}
			d.handleMessage(msg)
		}
	}
}

func (d *Dispatcher) handleMessage(msg *bus.Message) {
	cmd, err := commandOf(msg.Payload)
	if err != nil {
		// Not a command we can correlate; answer the sender if possible.
		tag := types.Tag(0)
		if env, ok := msg.Payload.(types.Envelope); ok {
			tag = env.Tag
		}
		d.emit(msg, d.fail(tag, 0, "decode", err))
		return
	}
	if resp, ok := d.Handle(cmd); ok {
		d.emit(msg, resp)
	}
}

func commandOf(p any) (types.Command, error) {
	switch v := p.(type) {
	case types.Attach:
		return v, nil
	case types.Detach:
		return v, nil
	case types.Execute:
		return v, nil
	case types.DiagnosticDump:
		return v, nil
	case types.Envelope:
		return v.Command()
	case *types.Envelope:
		if v != nil {
			return v.Command()
		}
	}
	return nil, &errcode.E{C: errcode.BadArgs, S: errcode.SubArgs, Op: "decode", Msg: "payload is not a command"}
}

// emit answers the requester and publishes the event for observers.
func (d *Dispatcher) emit(req *bus.Message, resp types.Response) {
	if req.CanReply() {
		d.conn.Reply(req, resp, false)
	}
	d.conn.Publish(d.conn.NewMessage(topics.Evt(types.ResponseName(resp)), resp, false))
}
