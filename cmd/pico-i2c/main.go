//go:build rp2040

// Command pico-i2c runs the I2C broker on an RP2040 with the bridge on a
// UART, so a host can attach and drive devices remotely.
package main

import (
	"context"
	"errors"
	"io"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers"

	"i2cbroker-go/bus"
	"i2cbroker-go/services/bridge"
	"i2cbroker-go/services/config"
	"i2cbroker-go/services/heartbeat"
	"i2cbroker-go/services/i2c"
	"i2cbroker-go/services/i2c/engine"
	"i2cbroker-go/services/i2c/engine/tinygo"
	"i2cbroker-go/types"
	"i2cbroker-go/x/logx"
)

const busHz = 100_000

// controllerOf picks the controller that owns the pair: on the RP2040 pin
// pairs alternate between I2C0 and I2C1 every two GPIOs.
func controllerOf(p types.Pins) (int, error) {
	if (p.SCL/2)%2 != (p.SDA/2)%2 {
		return 0, errors.New("scl and sda belong to different controllers")
	}
	return (p.SDA / 2) % 2, nil
}

func openI2C(cfg engine.BusConfig, freqHz uint32) (drivers.I2C, func() error, error) {
	c, err := controllerOf(cfg.Pins)
	if err != nil {
		return nil, nil, err
	}
	hw := machine.I2C0
	if c == 1 {
		hw = machine.I2C1
	}
	sda := machine.Pin(cfg.Pins.SDA)
	scl := machine.Pin(cfg.Pins.SCL)
	sda.Configure(machine.PinConfig{Mode: machine.PinI2C})
	scl.Configure(machine.PinConfig{Mode: machine.PinI2C})
	if err := hw.Configure(machine.I2CConfig{SCL: scl, SDA: sda, Frequency: freqHz}); err != nil {
		return nil, nil, err
	}
	release := func() error {
		sda.Configure(machine.PinConfig{Mode: machine.PinInput})
		scl.Configure(machine.PinConfig{Mode: machine.PinInput})
		return nil
	}
	return hw, release, nil
}

// uartLink adapts a uartx port to the bridge's byte stream.
type uartLink struct {
	u   *uartx.UART
	ctx context.Context
}

func (l *uartLink) Read(p []byte) (int, error)  { return l.u.RecvSomeContext(l.ctx, p) }
func (l *uartLink) Write(p []byte) (int, error) { return l.u.Write(p) }
func (l *uartLink) Close() error                { return nil }

func dialUART(ctx context.Context, c bridge.UARTConfig) (io.ReadWriteCloser, error) {
	hw := uartx.UART0
	switch c.TxPin {
	case 4, 8, 20, 24:
		hw = uartx.UART1
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(c.Baud),
		TX:       machine.Pin(c.TxPin),
		RX:       machine.Pin(c.RxPin),
	}); err != nil {
		return nil, err
	}
	return &uartLink{u: hw, ctx: ctx}, nil
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)

	log, _ := logx.New(logx.Options{Level: "info", Format: "json"})
	ctx := context.Background()
	b := bus.NewBus(8)

	cfgSvc := config.NewConfigService(config.Options{Profile: "pico", Log: logx.Component(log, "config")})
	cfg, err := cfgSvc.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	bcfg, err := bridge.ParseConfig(cfg["bridge"])
	if err != nil {
		log.Fatal().Err(err).Msg("bridge config")
	}

	svc, err := i2c.New(b.NewConnection("i2c"), i2c.Options{
		Board:      "pico",
		Engine:     tinygo.New(openI2C, controllerOf, busHz),
		Log:        logx.Component(log, "i2c"),
		SystemPins: bcfg.Pins(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("i2c service")
	}
	go svc.Run(ctx)

	bridge.UARTDial = dialUART
	go bridge.Start(ctx, b.NewConnection("bridge"), logx.Component(log, "bridge"))

	hb := &heartbeat.Service{Log: logx.Component(log, "heartbeat")}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	cfgSvc.Start(ctx, b.NewConnection("config"))

	select {}
}
