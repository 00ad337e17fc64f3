package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"i2cbroker-go/bus"
	"i2cbroker-go/services/i2c/topics"
	"i2cbroker-go/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the broker until interrupted",
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

		// Surface broker events in the log.
		conn := st.bus.NewConnection("monitor")
		evt := conn.Subscribe(topics.EvtAll())
		defer conn.Unsubscribe(evt)
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("shutting down")
				return nil
			case m := <-evt.Channel():
				logEvent(st, m)
			}
		}
	},
}

func logEvent(st *stack, m *bus.Message) {
	switch r := m.Payload.(type) {
	case types.Error:
		st.log.Debug().Str("topic", m.Topic.String()).Uint32("tag", uint32(r.Tag)).
			Str("code", string(r.Code)).Msg("event")
	case types.Response:
		st.log.Debug().Str("topic", m.Topic.String()).Uint32("tag", uint32(types.ResponseTag(r))).Msg("event")
	}
}

// runContext is the context used by subcommands when cobra has none.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
