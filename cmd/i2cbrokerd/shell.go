package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"i2cbroker-go/errcode"
	"i2cbroker-go/services/i2c/client"
	"i2cbroker-go/types"
	"i2cbroker-go/x/conv"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run the broker with an interactive command shell",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s := loadSettings()
		log, closer := newLogger(s)
		defer closer.Close()

		ctx, stop := signal.NotifyContext(runContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := newStack(s, log)
		if err != nil {
			return err
		}
		if err := st.start(ctx); err != nil {
			return err
		}

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "i2c> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		sh := &shell{cli: st.cli, out: rl.Stdout(), timeout: time.Second}
		sh.help()
		for {
			line, err := rl.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				return nil
			}
			if err := sh.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintln(rl.Stderr(), "error:", err)
			}
		}
	},
}

var errQuit = errors.New("quit")

// shell maps command lines onto client calls.
type shell struct {
	cli     *client.Client
	out     io.Writer
	timeout time.Duration
}

func (sh *shell) help() {
	fmt.Fprint(sh.out, `commands:
  attach <scl> <sda> <addr> [7bit|10bit] [speed_hz]
  detach <id>
  read <id> <u8|u16|u32|u64|blob> [n]
  write <id> <byte>...
  wr <id> <u8|u16|u32|u64|blob> [n] -- <byte>...
  reg <id> <reg> <u8|u16|u32|u64>
  probe <id>
  dump
  pins
  help | exit
`)
}

func (sh *shell) exec(parent context.Context, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(parent, sh.timeout)
	defer cancel()

	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "help", "?":
		sh.help()
		return nil
	case "exit", "quit":
		return errQuit
	case "attach":
		return sh.attach(ctx, args)
	case "detach":
		if len(args) != 1 {
			return usage("detach <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := sh.cli.Detach(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "detached", id)
		return nil
	case "read":
		return sh.read(ctx, args)
	case "write":
		if len(args) < 2 {
			return usage("write <id> <byte>...")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		w, err := parseBytes(args[1:])
		if err != nil {
			return err
		}
		if err := sh.cli.Write(ctx, id, w); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "ok")
		return nil
	case "wr":
		return sh.writeRead(ctx, args)
	case "reg":
		if len(args) != 3 {
			return usage("reg <id> <reg> <u8|u16|u32|u64>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		reg, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			return err
		}
		dt, ok := types.ParseDataType(args[2])
		if !ok {
			return usage("unknown type " + args[2])
		}
		v, err := sh.cli.ReadUint(ctx, id, byte(reg), dt)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%d (0x%X)\n", v, v)
		return nil
	case "probe":
		if len(args) != 1 {
			return usage("probe <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ok, err := sh.cli.Probe(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintln(sh.out, id, "acknowledged")
		} else {
			fmt.Fprintln(sh.out, id, "no ack")
		}
		return nil
	case "dump":
		return sh.dump(ctx)
	case "pins":
		return sh.pins(ctx)
	}
	return usage("unknown command " + cmd)
}

func usage(s string) error { return &errcode.E{C: errcode.BadArgs, S: errcode.SubArgs, Msg: s} }

func (sh *shell) attach(ctx context.Context, args []string) error {
	if len(args) < 3 || len(args) > 5 {
		return usage("attach <scl> <sda> <addr> [7bit|10bit] [speed_hz]")
	}
	var nums [3]uint64
	for i := range nums {
		v, err := strconv.ParseUint(args[i], 0, 16)
		if err != nil {
			return err
		}
		nums[i] = v
	}
	cfg := types.DeviceConfig{
		Pins:    types.Pins{SCL: int(nums[0]), SDA: int(nums[1])},
		Address: uint16(nums[2]),
	}
	if len(args) > 3 {
		if err := cfg.Mode.UnmarshalText([]byte(args[3])); err != nil {
			return err
		}
	}
	if len(args) > 4 {
		hz, err := strconv.ParseUint(args[4], 0, 32)
		if err != nil {
			return err
		}
		cfg.SpeedHz = uint32(hz)
	}
	id, err := sh.cli.Attach(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "attached", id)
	return nil
}

// typeLen parses "<type> [n]" and returns the remaining args.
func typeLen(args []string) (types.DataType, int, []string, error) {
	if len(args) == 0 {
		return 0, 0, nil, usage("missing type")
	}
	dt, ok := types.ParseDataType(args[0])
	if !ok {
		return 0, 0, nil, usage("unknown type " + args[0])
	}
	args = args[1:]
	n := 0
	if dt == types.Blob {
		if len(args) == 0 {
			return 0, 0, nil, usage("blob needs a length")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, 0, nil, err
		}
		n, args = v, args[1:]
	}
	return dt, n, args, nil
}

func (sh *shell) read(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("read <id> <type> [n]")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	dt, n, _, err := typeLen(args[1:])
	if err != nil {
		return err
	}
	b, err := sh.cli.Read(ctx, id, dt, n)
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, hexBytes(b))
	return nil
}

func (sh *shell) writeRead(ctx context.Context, args []string) error {
	if len(args) < 4 {
		return usage("wr <id> <type> [n] -- <byte>...")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	dt, n, rest, err := typeLen(args[1:])
	if err != nil {
		return err
	}
	if len(rest) < 2 || rest[0] != "--" {
		return usage("wr <id> <type> [n] -- <byte>...")
	}
	w, err := parseBytes(rest[1:])
	if err != nil {
		return err
	}
	b, err := sh.cli.WriteRead(ctx, id, w, dt, n)
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, hexBytes(b))
	return nil
}

func (sh *shell) dump(ctx context.Context) error {
	d, err := sh.cli.Dump(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "board %s, %d pins, %d system and %d user reserved\n",
		d.Board, d.PinCnt, bits.OnesCount64(d.System), bits.OnesCount64(d.User))
	for _, b := range d.Buses {
		fmt.Fprintf(sh.out, "bus %d %s devices=%d\n", b.Index, b.Pins, b.Devices)
	}
	for _, dev := range d.Devices {
		fmt.Fprintf(sh.out, "device %s addr=0x%02X %s %dHz bus=%d\n", dev.ID, dev.Address, dev.Mode, dev.SpeedHz, dev.Bus)
	}
	for _, p := range d.Leaked {
		fmt.Fprintf(sh.out, "leaked %s\n", p)
	}
	return nil
}

func (sh *shell) pins(ctx context.Context) error {
	d, err := sh.cli.Dump(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	for p := 0; p < d.PinCnt; p++ {
		switch {
		case d.System&(1<<uint(p)) != 0:
			b.WriteByte('S')
		case d.User&(1<<uint(p)) != 0:
			b.WriteByte('U')
		default:
			b.WriteByte('.')
		}
		if p%10 == 9 {
			b.WriteByte(' ')
		}
	}
	fmt.Fprintln(sh.out, strings.TrimSpace(b.String()))
	return nil
}

func parseID(s string) (types.DeviceID, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return types.DeviceID(v), nil
}

func parseBytes(args []string) ([]byte, error) {
	out := make([]byte, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return nil, err
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func hexBytes(b []byte) string {
	var sb strings.Builder
	var buf [2]byte
	for i, x := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.Write(conv.U8Hex(buf[:], x))
	}
	return sb.String()
}
