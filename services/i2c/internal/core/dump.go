package core

import (
	"i2cbroker-go/services/i2c/topics"
	"i2cbroker-go/types"
	"i2cbroker-go/x/timex"
)

// Snapshot is a read-only view of both registries and the arbiter.
func (d *Dispatcher) Snapshot(tag types.Tag) types.Dump {
	out := types.Dump{
		Tag:    tag,
		Board:  d.cfg.Board,
		PinCnt: d.arb.PinCount(),
		System: uint64(d.arb.System()),
		User:   uint64(d.arb.User()),
		Leaked: d.buses.Leaked(),
		TS:     timex.NowMs(),
	}
	d.buses.Each(func(e *busEntry) {
		out.Buses = append(out.Buses, types.BusDump{Index: e.Index, Pins: e.Pins, Devices: e.Devices})
	})
	d.devs.Each(func(e *devEntry) {
		out.Devices = append(out.Devices, types.DeviceDump{
			ID:      e.ID,
			Address: e.Config.Address,
			Mode:    e.Config.Mode,
			SpeedHz: e.Config.SpeedHz,
			Bus:     e.Bus.Index,
		})
	})
	return out
}

func (d *Dispatcher) dump(tag types.Tag) {
	s := d.Snapshot(tag)
	d.log.Info().Str("board", s.Board).Int("buses", len(s.Buses)).Int("devices", len(s.Devices)).
		Int("leaked", len(s.Leaked)).Msg("diagnostic dump")
	for _, b := range s.Buses {
		d.log.Info().Int("bus", b.Index).Int("devices", b.Devices).
			Str("scl", d.arb.Describe(b.Pins.SCL)).Str("sda", d.arb.Describe(b.Pins.SDA)).Msg("bus")
	}
	for _, dv := range s.Devices {
		d.log.Info().Stringer("device", dv.ID).Uint16("address", dv.Address).
			Int("bus", dv.Bus).Uint32("speed_hz", dv.SpeedHz).Msg("device")
	}
	d.conn.Publish(d.conn.NewMessage(topics.Diag(), s, false))
}
