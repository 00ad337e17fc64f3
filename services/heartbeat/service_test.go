package heartbeat

import (
	"context"
	"testing"
	"time"

	"i2cbroker-go/bus"
	"i2cbroker-go/types"
)

func TestIntervalOf(t *testing.T) {
	cases := []struct {
		in   any
		want time.Duration
		ok   bool
	}{
		{types.HeartbeatConfig{IntervalS: 2}, 2 * time.Second, true},
		{map[string]any{"interval": 0.5}, 500 * time.Millisecond, true},
		{map[string]any{"interval": 3}, 3 * time.Second, true},
		{map[string]any{"interval": "fast"}, 0, false},
		{types.HeartbeatConfig{}, 0, false},
		{"2", 0, false},
	}
	for _, c := range cases {
		got, ok := intervalOf(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("intervalOf(%#v) = %v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestHeartbeat_PublishesRetainedBeats(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hb")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Speed up before the service starts; config is retained.
	conn.Publish(conn.NewMessage(topicConfigHeartbeat, types.HeartbeatConfig{IntervalS: 0.01}, true))

	sub := conn.Subscribe(topicHeartbeat)
	defer conn.Unsubscribe(sub)
	s := &Service{}
	_ = s.Start(ctx, conn)

	var last uint64
	for i := 0; i < 2; i++ {
		select {
		case m := <-sub.Channel():
			st, ok := m.Payload.(types.HeartbeatState)
			if !ok || !m.Retained {
				t.Fatalf("unexpected heartbeat %#v", m)
			}
			if st.Seq <= last {
				t.Fatalf("seq %d after %d", st.Seq, last)
			}
			last = st.Seq
		case <-time.After(2 * time.Second):
			t.Fatal("no heartbeat")
		}
	}
}
