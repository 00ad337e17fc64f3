// services/bridge/bridge.go

// Package bridge carries i2c protocol envelopes between a remote peer and
// the local bus over a framed byte stream.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"i2cbroker-go/bus"
	"i2cbroker-go/types"
	"i2cbroker-go/x/timex"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start runs the bridge service until ctx is cancelled. It listens for
// configuration on {"config","bridge"} and (re)configures the link.
func Start(ctx context.Context, conn *bus.Connection, log zerolog.Logger) {
	s := &Service{
		conn:       conn,
		log:        log,
		stateTopic: bus.T("bridge", "state"),
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is expected on "config/bridge" as a Config, JSON text or a decoded
// object.
type Config struct {
	Transport TransportConfig `json:"transport" yaml:"transport"`

	PingMS   int `json:"ping_ms,omitempty" yaml:"ping_ms,omitempty"`     // 0 means 5000
	InboxLen int `json:"inbox_len,omitempty" yaml:"inbox_len,omitempty"` // reply queue depth; 0 means 32
}

type TransportConfig struct {
	// "uart", "tcp", or names registered via RegisterTransport.
	Type string      `json:"type" yaml:"type"`
	UART *UARTConfig `json:"uart,omitempty" yaml:"uart,omitempty"`
	TCP  *TCPConfig  `json:"tcp,omitempty" yaml:"tcp,omitempty"`
}

// UARTConfig carries enough information for an injected dialler to open the UART.
type UARTConfig struct {
	Baud           int `json:"baud" yaml:"baud"`
	RxPin          int `json:"rx_pin" yaml:"rx_pin"`
	TxPin          int `json:"tx_pin" yaml:"tx_pin"`
	ReadTimeoutMS  int `json:"read_timeout_ms,omitempty" yaml:"read_timeout_ms,omitempty"`
	WriteTimeoutMS int `json:"write_timeout_ms,omitempty" yaml:"write_timeout_ms,omitempty"`
}

// TCPConfig either listens for one peer or dials out.
type TCPConfig struct {
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"` // e.g. ":7700"
	Dial   string `json:"dial,omitempty" yaml:"dial,omitempty"`     // e.g. "10.0.0.2:7700"
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	log        zerolog.Logger
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
}

// run waits for config and supervises a single link instance.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "bridge"))
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	// Cancel any existing run.
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		s.log.Info().Str("transport", tr.String()).Msg("bridge link up")
		err = newLink(s.conn, rwc, cfg, s.log).run(ctx)
		_ = rwc.Close()
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		// Clean close: restart only on new config.
		s.publishState("idle", "link_closed", nil)
		return
	}
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

// ParseConfig decodes a bridge config payload as published on config/bridge.
func ParseConfig(p any) (Config, error) { return decodeConfig(p) }

// Pins lists the GPIOs the configured transport occupies.
func (c Config) Pins() []int {
	if c.Transport.Type == "uart" && c.Transport.UART != nil {
		return []int{c.Transport.UART.RxPin, c.Transport.UART.TxPin}
	}
	return nil
}

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		// Already decoded (e.g. from YAML); re-marshal for simplicity.
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	st := types.ServiceState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		st.Error = err.Error()
		s.log.Warn().Str("status", status).Err(err).Msg("bridge")
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, st, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
