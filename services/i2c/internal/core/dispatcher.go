// Package core is the single serialization point for I2C commands. All
// registry mutation happens on the goroutine running Run.
package core

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"i2cbroker-go/bus"
	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/engine"
	"i2cbroker-go/services/i2c/internal/buses"
	"i2cbroker-go/services/i2c/internal/devices"
	"i2cbroker-go/services/i2c/internal/pins"
	"i2cbroker-go/types"
)

const defaultQueueLen = 16

type Config struct {
	Board    string
	Timeout  time.Duration // per transaction; 0 means engine.DefaultTimeout
	QueueLen int           // command subscription depth
}

type Dispatcher struct {
	conn *bus.Connection
	log  zerolog.Logger
	cfg  Config

	eng   engine.Engine
	arb   *pins.Arbiter
	buses *buses.Registry
	devs  *devices.Registry

	cmdSub *bus.Subscription
	ready  chan struct{}
}

func New(conn *bus.Connection, eng engine.Engine, arb *pins.Arbiter,
	br *buses.Registry, dr *devices.Registry, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = engine.DefaultTimeout
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = defaultQueueLen
	}
	return &Dispatcher{
		conn:  conn,
		log:   log,
		cfg:   cfg,
		eng:   eng,
		arb:   arb,
		buses: br,
		devs:  dr,
		ready: make(chan struct{}),
	}
}

// Ready is closed once Run is consuming commands.
func (d *Dispatcher) Ready() <-chan struct{} { return d.ready }

// Handle resolves one command. ok is false for commands that produce no
// protocol response.
func (d *Dispatcher) Handle(cmd types.Command) (resp types.Response, ok bool) {
	switch c := cmd.(type) {
	case types.Attach:
		return d.attach(c), true
	case types.Detach:
		return d.detach(c), true
	case types.Execute:
		return d.execute(c), true
	case types.DiagnosticDump:
		d.dump(c.Tag)
		return nil, false
	}
	d.log.Debug().Msgf("unsupported command %T", cmd)
	return nil, false
}

func (d *Dispatcher) fail(tag types.Tag, id types.DeviceID, op string, err error) types.Error {
	p := errcode.PairOf(err)
	lvl := zerolog.DebugLevel
	if errors.Is(err, errcode.BusTeardownFailed) {
		lvl = zerolog.ErrorLevel
	}
	d.log.WithLevel(lvl).Str("op", op).Uint32("tag", uint32(tag)).Stringer("device", id).
		Str("code", string(p.Code)).Err(err).Msg("command rejected")
	return types.Error{Tag: tag, ID: id, Code: p.Code, Sub: p.Sub}
}

func badArgs(msg string) error {
	return &errcode.E{C: errcode.BadArgs, S: errcode.SubArgs, Msg: msg}
}

func (d *Dispatcher) validPin(p int) bool {
	return p >= 0 && p <= types.MaxPin && d.arb.Valid(p)
}

func (d *Dispatcher) attach(c types.Attach) types.Response {
	cfg := c.Config
	switch {
	case cfg.Mode != types.Addr7 && cfg.Mode != types.Addr10:
		return d.fail(c.Tag, 0, "attach", badArgs("address mode"))
	case cfg.Address > cfg.Mode.MaxAddress():
		return d.fail(c.Tag, 0, "attach", badArgs("address out of range"))
	case !d.validPin(cfg.SCL) || !d.validPin(cfg.SDA):
		return d.fail(c.Tag, 0, "attach", badArgs("pin out of range"))
	case cfg.SCL == cfg.SDA:
		return d.fail(c.Tag, 0, "attach", badArgs("scl and sda are the same pin"))
	}
	if cfg.SpeedHz == 0 {
		cfg.SpeedHz = types.DefaultSpeedHz
	}

	b, err := d.buses.FindOrCreate(cfg.Pins)
	if err != nil {
		return d.fail(c.Tag, 0, "attach", err)
	}
	id, err := d.devs.Attach(b, cfg)
	if err != nil {
		return d.fail(c.Tag, 0, "attach", err)
	}
	d.log.Debug().Stringer("device", id).Int("bus", b.Index).Msg("attached")
	return types.Attached{Tag: c.Tag, ID: id}
}

func (d *Dispatcher) detach(c types.Detach) types.Response {
	if err := d.devs.Detach(c.ID); err != nil {
		return d.fail(c.Tag, c.ID, "detach", err)
	}
	d.log.Debug().Stringer("device", c.ID).Msg("detached")
	return types.Detached{Tag: c.Tag, ID: c.ID}
}

type (
	busEntry = buses.Entry
	devEntry = devices.Entry
)
