package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelftestPasses(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out bytes.Buffer
	require.NoError(t, selftest(ctx, &out, zerolog.Nop()), out.String())
	assert.Contains(t, out.String(), "device 0x00B15021")
	assert.Contains(t, out.String(), "ok   teardown")
}

func testShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st, err := newStack(settings{Board: "esp32", Profile: "sim", BusQueue: 16, QueueLen: 16, Timeout: 50 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, st.start(ctx))

	// Boot setup is applied after the broker reports ready.
	require.Eventually(t, func() bool {
		dctx, dcancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer dcancel()
		d, err := st.cli.Dump(dctx)
		return err == nil && len(d.Devices) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var out bytes.Buffer
	return &shell{cli: st.cli, out: &out, timeout: time.Second}, &out
}

func TestShellSession(t *testing.T) {
	sh, out := testShell(t)
	ctx := context.Background()

	// The sim profile attaches 0x21 on 21/22 at boot; a second attach is a duplicate.
	err := sh.exec(ctx, "attach 21 22 0x21")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device_already_attached")

	out.Reset()
	require.NoError(t, sh.exec(ctx, "write 0x00B15021 0x04 0xCA 0xFE"))
	require.NoError(t, sh.exec(ctx, "reg 0x00B15021 4 u16"))
	assert.Contains(t, out.String(), "51966 (0xCAFE)")

	out.Reset()
	require.NoError(t, sh.exec(ctx, "wr 0x00B15021 blob 2 -- 0x04"))
	assert.Equal(t, "CA FE\n", out.String())

	out.Reset()
	require.NoError(t, sh.exec(ctx, "pins"))
	assert.True(t, strings.HasPrefix(out.String(), "......SSSS SS"), out.String())

	out.Reset()
	require.NoError(t, sh.exec(ctx, "detach 0x00B15021"))
	require.NoError(t, sh.exec(ctx, "dump"))
	assert.Contains(t, out.String(), "board esp32")
	assert.NotContains(t, out.String(), "device 0x")

	assert.ErrorIs(t, sh.exec(ctx, "exit"), errQuit)
	assert.Error(t, sh.exec(ctx, "frobnicate"))
	assert.Error(t, sh.exec(ctx, `attach 21 "22`))
	assert.NoError(t, sh.exec(ctx, "   "))
}
