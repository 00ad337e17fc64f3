package heartbeat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"i2cbroker-go/bus"
	"i2cbroker-go/types"
	"i2cbroker-go/x/mathx"
	"i2cbroker-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHeartbeat       = bus.T("heartbeat")
)

const (
	defaultInterval = time.Second
	minInterval     = 10 * time.Millisecond
	maxInterval     = time.Hour
)

type Service struct {
	Log zerolog.Logger
	seq uint64
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			s.Log.Info().Msg("heartbeat service stopping")
			return
		case <-tick.C:
			s.seq++
			s.Log.Debug().Uint64("seq", s.seq).Msg("heartbeat")
			conn.Publish(conn.NewMessage(topicHeartbeat, types.HeartbeatState{Seq: s.seq, TS: timex.NowMs()}, true))
		case msg := <-cfgSub.Channel():
			if d, ok := intervalOf(msg.Payload); ok {
				tick.Reset(d)
				s.Log.Info().Dur("interval", d).Msg("heartbeat interval set")
			} else {
				s.Log.Warn().Msgf("ignoring heartbeat config %T", msg.Payload)
			}
		}
	}
}

// intervalOf accepts a typed config or a decoded object with "interval"
// in seconds.
func intervalOf(p any) (time.Duration, bool) {
	var secs float64
	switch v := p.(type) {
	case types.HeartbeatConfig:
		secs = v.IntervalS
	case map[string]any:
		switch iv := v["interval"].(type) {
		case float64:
			secs = iv
		case int:
			secs = float64(iv)
		default:
			return 0, false
		}
	default:
		return 0, false
	}
	d := time.Duration(secs * float64(time.Second))
	if d <= 0 {
		return 0, false
	}
	return mathx.Clamp(d, minInterval, maxInterval), true
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
