// services/i2c/service.go

// Package i2c runs the I2C broker: a single dispatcher goroutine that owns
// pin, bus and device state and answers commands arriving on the bus.
package i2c

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"i2cbroker-go/bus"
	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/client"
	"i2cbroker-go/services/i2c/engine"
	"i2cbroker-go/services/i2c/internal/buses"
	"i2cbroker-go/services/i2c/internal/core"
	"i2cbroker-go/services/i2c/internal/devices"
	"i2cbroker-go/services/i2c/internal/pins"
	"i2cbroker-go/services/i2c/internal/platform"
	"i2cbroker-go/services/i2c/topics"
	"i2cbroker-go/types"
	"i2cbroker-go/x/mathx"
	"i2cbroker-go/x/timex"
)

type Options struct {
	Board      string        // platform.Names(); empty means "sim"
	Engine     engine.Engine // required
	Timeout    time.Duration // per transaction
	QueueLen   int           // command queue depth
	MaxDevices int           // 0 means unlimited
	Log        zerolog.Logger

	// SystemPins are held for the life of the service on top of the
	// board's reserved pins, e.g. a bridge UART.
	SystemPins []int
}

type Service struct {
	conn  *bus.Connection
	board platform.Board
	log   zerolog.Logger
	d     *core.Dispatcher
	cli   *client.Client
}

func New(conn *bus.Connection, opt Options) (*Service, error) {
	if opt.Board == "" {
		opt.Board = "sim"
	}
	board, ok := platform.Lookup(opt.Board)
	if !ok {
		return nil, &errcode.E{C: errcode.NotFound, Op: "i2c.New", Msg: fmt.Sprintf("unknown board %q", opt.Board)}
	}
	if opt.Engine == nil {
		return nil, &errcode.E{C: errcode.BadArgs, Op: "i2c.New", Msg: "no engine"}
	}

	system := pins.Mask(board.SystemMask())
	for _, p := range opt.SystemPins {
		system |= pins.Bit(p)
	}
	arb := pins.New(board.PinCount, system)
	br := buses.New(opt.Engine, arb, mathx.Min(board.Controllers, types.MaxBuses))
	dr := devices.New(opt.Engine, br, opt.MaxDevices)
	d := core.New(conn, opt.Engine, arb, br, dr, core.Config{
		Board:    board.Name,
		Timeout:  opt.Timeout,
		QueueLen: opt.QueueLen,
	}, opt.Log)

	return &Service{
		conn:  conn,
		board: board,
		log:   opt.Log,
		d:     d,
		cli:   client.New(conn),
	}, nil
}

func (s *Service) Board() platform.Board { return s.board }

// Board describes a supported SoC or board.
type Board = platform.Board

// LookupBoard finds a board by name.
func LookupBoard(name string) (Board, bool) { return platform.Lookup(name) }

// Boards lists the supported board names.
func Boards() []string { return platform.Names() }

// Run blocks until ctx ends.
func (s *Service) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.d.Run(ctx)
	}()
	select {
	case <-s.d.Ready():
	case <-ctx.Done():
		<-done
		return
	}
	s.pubState("ready", "")
	s.log.Info().Str("board", s.board.Name).Int("pins", s.board.PinCount).
		Int("controllers", s.board.Controllers).Msg("i2c broker ready")

	cfgSub := s.conn.Subscribe(topics.Config())
	defer s.conn.Unsubscribe(cfgSub)

	for {
		select {
		case <-ctx.Done():
			<-done
			s.pubState("stopped", "context_cancelled")
			return
		case msg := <-cfgSub.Channel():
			if setup, ok := msg.Payload.(types.I2CSetup); ok {
				s.applySetup(ctx, setup)
			}
		}
	}
}

// applySetup attaches every listed device through the command path.
// Failures are logged and do not stop the remaining devices.
func (s *Service) applySetup(ctx context.Context, setup types.I2CSetup) {
	failed := 0
	for _, spec := range setup.Devices {
		id, err := s.cli.Attach(ctx, spec.DeviceConfig)
		if err != nil {
			failed++
			s.log.Warn().Str("name", spec.Name).Stringer("pins", spec.Pins).
				Uint16("address", spec.Address).Str("code", string(errcode.Of(err))).Msg("boot attach failed")
			continue
		}
		s.log.Info().Str("name", spec.Name).Stringer("device", id).Msg("boot attach")
	}
	if failed > 0 {
		s.pubState("degraded", fmt.Sprintf("%d_boot_attach_failed", failed))
		return
	}
	s.pubState("ready", "")
}

func (s *Service) pubState(level, status string) {
	s.conn.Publish(s.conn.NewMessage(
		topics.State(),
		types.ServiceState{Level: level, Status: status, TS: timex.NowMs()},
		true,
	))
}
