package bridge

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"i2cbroker-go/bus"
	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/topics"
	"i2cbroker-go/types"
	"i2cbroker-go/x/mathx"
)

const (
	defaultPing     = 5 * time.Second
	minPing         = 100 * time.Millisecond
	maxPing         = 5 * time.Minute
	defaultInboxLen = 32
)

// link owns one connected peer. Commands read from the peer are enqueued
// on i2c/cmd/<name> with the link's inbox as ReplyTo; replies arriving on
// the inbox are written back as response frames.
type link struct {
	conn  *bus.Connection
	log   zerolog.Logger
	rd    *framedReader
	wr    *framedWriter
	inbox bus.Topic
	ping  time.Duration
	qlen  int
}

func newLink(conn *bus.Connection, rwc io.ReadWriter, cfg Config, log zerolog.Logger) *link {
	id := uuid.NewString()
	l := &link{
		conn:  conn,
		log:   log.With().Str("link", id).Logger(),
		rd:    newFramedReader(rwc),
		wr:    newFramedWriter(rwc),
		inbox: bus.T("_bridge", id),
		ping:  defaultPing,
		qlen:  defaultInboxLen,
	}
	if cfg.PingMS > 0 {
		l.ping = mathx.Clamp(time.Duration(cfg.PingMS)*time.Millisecond, minPing, maxPing)
	}
	if cfg.InboxLen > 0 {
		l.qlen = cfg.InboxLen
	}
	return l
}

// run returns nil on a clean close by either side and the read or write
// error otherwise.
func (l *link) run(ctx context.Context) error {
	replies := l.conn.SubscribeN(l.inbox, l.qlen)
	defer l.conn.Unsubscribe(replies)

	errCh := make(chan error, 1)
	go func() { errCh <- l.readLoop() }()

	tick := time.NewTicker(l.ping)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			// Best-effort close.
			_ = l.wr.WriteFrame(Frame{Type: frameClose})
			return nil
		case err := <-errCh:
			return err
		case <-tick.C:
			if err := l.wr.WriteFrame(Frame{Type: framePing}); err != nil {
				return err
			}
		case msg, ok := <-replies.Channel():
			if !ok {
				return errors.New("reply inbox closed")
			}
			resp, isResp := msg.Payload.(types.Response)
			if !isResp {
				l.log.Debug().Msgf("dropping %T on inbox", msg.Payload)
				continue
			}
			if err := l.writeResponse(resp); err != nil {
				return err
			}
		}
	}
}

func (l *link) readLoop() error {
	for {
		f, err := l.rd.ReadFrame()
		if err != nil {
			return err
		}
		switch f.Type {
		case framePing:
			if err := l.wr.WriteFrame(Frame{Type: framePong}); err != nil {
				return err
			}
		case framePong:
		case frameCommand:
			if err := l.command(f.Payload); err != nil {
				return err
			}
		case frameClose:
			return nil
		default:
			l.log.Debug().Uint8("type", f.Type).Msg("ignoring frame")
		}
	}
}

// command decodes and enqueues one command. Only write errors are returned;
// rejected commands are answered on the wire.
func (l *link) command(b []byte) error {
	env, err := DecodeEnvelope(b)
	if err != nil {
		return l.writeResponse(types.Error{Code: errcode.BadArgs, Sub: errcode.SubArgs})
	}
	cmd, err := env.Command()
	if err != nil {
		p := errcode.PairOf(err)
		return l.writeResponse(types.Error{Tag: env.Tag, Code: p.Code, Sub: p.Sub})
	}
	msg := l.conn.NewMessage(topics.Cmd(types.CommandName(cmd)), cmd, false)
	msg.ReplyTo = l.inbox
	if err := l.conn.TryPublish(msg); err != nil {
		if !errors.Is(err, bus.ErrQueueFull) {
			return err
		}
		l.log.Debug().Uint32("tag", uint32(env.Tag)).Msg("command queue full")
		return l.writeResponse(types.Error{Tag: env.Tag, Code: errcode.Busy, Sub: errcode.SubQueue})
	}
	return nil
}

func (l *link) writeResponse(resp types.Response) error {
	f, err := ResponseFrame(resp)
	if err != nil {
		l.log.Warn().Err(err).Str("response", types.ResponseName(resp)).Msg("unencodable response")
		return nil
	}
	return l.wr.WriteFrame(f)
}
