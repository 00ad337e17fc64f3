package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"i2cbroker-go/bus"
	"i2cbroker-go/services/bridge"
	"i2cbroker-go/services/config"
	"i2cbroker-go/services/heartbeat"
	"i2cbroker-go/services/i2c"
	"i2cbroker-go/services/i2c/client"
	"i2cbroker-go/services/i2c/engine/sim"
	"i2cbroker-go/services/i2c/topics"
	"i2cbroker-go/types"
	"i2cbroker-go/x/logx"
)

// stack is the host process: one bus, the simulated engine and every
// service wired to it.
type stack struct {
	bus *bus.Bus
	eng *sim.Engine
	svc *i2c.Service
	cfg *config.ConfigService
	cli *client.Client
	log zerolog.Logger
}

func newStack(s settings, log zerolog.Logger) (*stack, error) {
	board, ok := i2c.LookupBoard(s.Board)
	if !ok {
		return nil, fmt.Errorf("unknown board %q (have %v)", s.Board, i2c.Boards())
	}
	b := bus.NewBus(s.BusQueue)
	eng := sim.New(sim.Options{Controllers: board.Controllers, Latency: s.SimLatency})

	svc, err := i2c.New(b.NewConnection("i2c"), i2c.Options{
		Board:      board.Name,
		Engine:     eng,
		Timeout:    s.Timeout,
		QueueLen:   s.QueueLen,
		MaxDevices: s.MaxDevices,
		Log:        logx.Component(log, "i2c"),
	})
	if err != nil {
		return nil, err
	}

	st := &stack{
		bus: b,
		eng: eng,
		svc: svc,
		cli: client.New(b.NewConnection("cli")),
		log: log,
	}
	if s.Profile != "" || s.Setup != "" {
		st.cfg = config.NewConfigService(config.Options{
			Profile: s.Profile,
			File:    s.Setup,
			Log:     logx.Component(log, "config"),
		})
	}
	return st, nil
}

// placeTargets puts a register-file target behind every device of the boot
// setup so transfers against them succeed on the simulated wire.
func (st *stack) placeTargets() error {
	if st.cfg == nil {
		return nil
	}
	m, err := st.cfg.Load()
	if err != nil {
		return err
	}
	setup, _ := m["i2c"].(types.I2CSetup)
	for _, d := range setup.Devices {
		st.eng.Place(d.Pins, d.Address, sim.NewMemory())
	}
	return nil
}

// start launches every service and returns once the broker is ready.
func (st *stack) start(ctx context.Context) error {
	if err := st.placeTargets(); err != nil {
		return err
	}
	go st.svc.Run(ctx)
	go bridge.Start(ctx, st.bus.NewConnection("bridge"), logx.Component(st.log, "bridge"))
	hb := &heartbeat.Service{Log: logx.Component(st.log, "heartbeat")}
	_ = hb.Start(ctx, st.bus.NewConnection("heartbeat"))
	if st.cfg != nil {
		st.cfg.Start(ctx, st.bus.NewConnection("config"))
	}
	return waitReady(ctx, st.bus.NewConnection("wait"))
}

// waitReady blocks until i2c/state reports a running broker.
func waitReady(ctx context.Context, conn *bus.Connection) error {
	sub := conn.Subscribe(topics.State())
	defer conn.Unsubscribe(sub)
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.ServiceState); ok && (st.Level == "ready" || st.Level == "degraded") {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
