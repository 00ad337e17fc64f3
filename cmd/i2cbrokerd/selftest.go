package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"i2cbroker-go/bus"
	"i2cbroker-go/services/i2c"
	"i2cbroker-go/services/i2c/client"
	"i2cbroker-go/services/i2c/engine/sim"
	"i2cbroker-go/types"
	"i2cbroker-go/x/logx"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Attach, exercise and detach a simulated device on esp32 pins",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s := loadSettings()
		log, closer := newLogger(s)
		defer closer.Close()
		ctx, cancel := context.WithTimeout(runContext(cmd), 5*time.Second)
		defer cancel()
		return selftest(ctx, cmd.OutOrStdout(), log)
	},
}

// The demo device: a port expander at 0x21 on SCL21/SDA22.
var (
	selftestPins = types.Pins{SCL: 21, SDA: 22}
	selftestAddr = uint16(0x21)
)

func selftest(ctx context.Context, out io.Writer, log zerolog.Logger) error {
	b := bus.NewBus(8)
	eng := sim.New(sim.Options{Controllers: 2})
	mem := sim.NewMemory()
	mem.Set(0x00, 0xBE, 0xEF)
	eng.Place(selftestPins, selftestAddr, mem)

	svc, err := i2c.New(b.NewConnection("i2c"), i2c.Options{
		Board:  "esp32",
		Engine: eng,
		Log:    logx.Component(log, "i2c"),
	})
	if err != nil {
		return err
	}
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go svc.Run(runCtx)
	if err := waitReady(ctx, b.NewConnection("wait")); err != nil {
		return err
	}
	cli := client.New(b.NewConnection("selftest"))

	step := func(name string, err error) error {
		if err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", name, err)
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(out, "ok   %s\n", name)
		return nil
	}

	id, err := cli.Attach(ctx, types.DeviceConfig{Pins: selftestPins, Address: selftestAddr})
	if err := step("attach", err); err != nil {
		return err
	}
	fmt.Fprintf(out, "     device %s\n", id)

	ok, err := cli.Probe(ctx, id)
	if err == nil && !ok {
		err = fmt.Errorf("no ack")
	}
	if err := step("probe", err); err != nil {
		return err
	}

	v, err := cli.ReadUint(ctx, id, 0x00, types.U16)
	if err == nil && v != 0xBEEF {
		err = fmt.Errorf("read 0x%X, want 0xBEEF", v)
	}
	if err := step("read u16", err); err != nil {
		return err
	}

	err = cli.Write(ctx, id, []byte{0x10, 0x5A})
	if err == nil && mem.Get(0x10, 1)[0] != 0x5A {
		err = fmt.Errorf("register 0x10 not written")
	}
	if err := step("write", err); err != nil {
		return err
	}

	d, err := cli.Dump(ctx)
	if err == nil && (len(d.Buses) != 1 || len(d.Devices) != 1) {
		err = fmt.Errorf("dump has %d buses, %d devices", len(d.Buses), len(d.Devices))
	}
	if err := step("dump", err); err != nil {
		return err
	}

	if err := step("detach", cli.Detach(ctx, id)); err != nil {
		return err
	}

	d, err = cli.Dump(ctx)
	if err == nil && (len(d.Buses) != 0 || d.User != 0) {
		err = fmt.Errorf("bus or pins still held after detach")
	}
	return step("teardown", err)
}
