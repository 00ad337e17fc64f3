package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/engine/sim"
	"i2cbroker-go/services/i2c/topics"
	"i2cbroker-go/types"
)

func startLoop(t *testing.T, f *fixture) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.d.Run(ctx); close(done) }()
	t.Cleanup(func() { cancel(); <-done })
	select {
	case <-f.d.Ready():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not start")
	}
}

func request(t *testing.T, f *fixture, cmd types.Command) types.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := f.conn.RequestWait(ctx, f.conn.NewMessage(topics.Cmd(types.CommandName(cmd)), cmd, false))
	require.NoError(t, err)
	return reply.Payload.(types.Response)
}

func TestRunRequestReply(t *testing.T) {
	eng := sim.New(sim.Options{})
	mem := sim.NewMemory()
	mem.Set(0x00, 0xCA, 0xFE)
	eng.Place(pA, 0x21, mem)
	f := newFixture(eng)
	evts := f.conn.Subscribe(topics.EvtAll())
	startLoop(t, f)

	resp := request(t, f, attachCmd(1, pA, 0x21))
	att, ok := resp.(types.Attached)
	require.True(t, ok, "%#v", resp)
	assert.Equal(t, types.Tag(1), att.Tag)

	in, _ := types.PayloadOf([]byte{0x00})
	resp = request(t, f, types.Execute{Tag: 2, ID: att.ID, Kind: types.ReadWrite, Type: types.U16, In: in})
	data, ok := resp.(types.Data)
	require.True(t, ok, "%#v", resp)
	assert.Equal(t, []byte{0xCA, 0xFE}, data.Payload.Bytes())

	// Observers see one event per response, in order.
	for _, want := range []string{"attached", "data"} {
		select {
		case m := <-evts.Channel():
			assert.Equal(t, want, m.Topic.At(2))
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", want)
		}
	}
}

func TestRunAcceptsEnvelopes(t *testing.T) {
	f := newFixture(sim.New(sim.Options{}))
	startLoop(t, f)

	env, err := types.EnvelopeOf(attachCmd(5, pA, 0x21))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := f.conn.RequestWait(ctx, f.conn.NewMessage(topics.Cmd("attach"), env, false))
	require.NoError(t, err)
	assert.IsType(t, types.Attached{}, reply.Payload)

	bad := types.Envelope{Base: types.BaseCommand, Kind: 99, Tag: 6}
	reply, err = f.conn.RequestWait(ctx, f.conn.NewMessage(topics.Cmd("attach"), bad, false))
	require.NoError(t, err)
	e := reply.Payload.(types.Error)
	assert.Equal(t, errcode.BadArgs, e.Code)
	assert.Equal(t, types.Tag(6), e.Tag)

	reply, err = f.conn.RequestWait(ctx, f.conn.NewMessage(topics.Cmd("attach"), "nonsense", false))
	require.NoError(t, err)
	assert.Equal(t, errcode.BadArgs, reply.Payload.(types.Error).Code)

	var nilEnv *types.Envelope
	reply, err = f.conn.RequestWait(ctx, f.conn.NewMessage(topics.Cmd("attach"), nilEnv, false))
	require.NoError(t, err)
	assert.Equal(t, errcode.BadArgs, reply.Payload.(types.Error).Code)
}

func TestRunFIFOPerProducer(t *testing.T) {
	f := newFixture(sim.New(sim.Options{}))
	evts := f.conn.SubscribeN(topics.Evt("+"), 64)
	startLoop(t, f)

	const n = 8
	for i := 0; i < n; i++ {
		cmd := attachCmd(types.Tag(i), pA, uint16(0x10+i))
		require.NoError(t, f.conn.PublishWait(context.Background(), f.conn.NewMessage(topics.Cmd("attach"), cmd, false)))
	}
	for i := 0; i < n; i++ {
		select {
		case m := <-evts.Channel():
			assert.Equal(t, types.Tag(i), types.ResponseTag(m.Payload.(types.Response)))
		case <-time.After(time.Second):
			t.Fatalf("missing response %d", i)
		}
	}
}
