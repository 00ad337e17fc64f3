package types

import (
	"fmt"

	"i2cbroker-go/x/conv"
)

// AddrMode selects 7- or 10-bit addressing.
type AddrMode uint8

const (
	Addr7  AddrMode = iota // default
	Addr10
)

// MaxAddress returns the largest address representable in mode m.
func (m AddrMode) MaxAddress() uint16 {
	if m == Addr10 {
		return 0x3FF
	}
	return 0x7F
}

func (m AddrMode) String() string {
	if m == Addr10 {
		return "10bit"
	}
	return "7bit"
}

func (m AddrMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *AddrMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "7", "7bit":
		*m = Addr7
	case "10", "10bit":
		*m = Addr10
	default:
		return fmt.Errorf("addr mode %q", b)
	}
	return nil
}

// Pins is the ordered (clock, data) pair identifying a bus.
type Pins struct {
	SCL int `json:"scl" yaml:"scl"`
	SDA int `json:"sda" yaml:"sda"`
}

func (p Pins) String() string { return fmt.Sprintf("scl=%d sda=%d", p.SCL, p.SDA) }

// DeviceConfig is everything needed to attach a device.
type DeviceConfig struct {
	Pins    `yaml:",inline"`
	Address uint16   `json:"address" yaml:"address"`
	Mode    AddrMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	SpeedHz uint32   `json:"speed_hz,omitempty" yaml:"speed_hz,omitempty"`
}

const DefaultSpeedHz = 100_000

// DeviceID packs, low to high: 10 bits address, 2 bits bus index,
// 7 bits SCL pin, 7 bits SDA pin. Bits 26..31 are zero.
type DeviceID uint32

const (
	idAddrBits = 10
	idBusBits  = 2
	idPinBits  = 7

	idBusShift = idAddrBits
	idSCLShift = idBusShift + idBusBits
	idSDAShift = idSCLShift + idPinBits
	idUsedBits = idSDAShift + idPinBits

	MaxBuses = 1 << idBusBits
	MaxPin   = 1<<idPinBits - 1
)

// PackDeviceID builds an id. Out-of-range inputs are truncated to their
// fields; callers validate first.
func PackDeviceID(addr uint16, busIndex int, p Pins) DeviceID {
	return DeviceID(uint32(addr)&(1<<idAddrBits-1) |
		uint32(busIndex)&(1<<idBusBits-1)<<idBusShift |
		uint32(p.SCL)&MaxPin<<idSCLShift |
		uint32(p.SDA)&MaxPin<<idSDAShift)
}

func (id DeviceID) Address() uint16 { return uint16(id & (1<<idAddrBits - 1)) }
func (id DeviceID) BusIndex() int   { return int(id>>idBusShift) & (1<<idBusBits - 1) }
func (id DeviceID) Pins() Pins {
	return Pins{SCL: int(id>>idSCLShift) & MaxPin, SDA: int(id>>idSDAShift) & MaxPin}
}

// Unpack is the inverse of PackDeviceID.
func (id DeviceID) Unpack() (addr uint16, busIndex int, p Pins) {
	return id.Address(), id.BusIndex(), id.Pins()
}

// Valid reports whether the reserved high bits are clear.
func (id DeviceID) Valid() bool { return uint32(id)>>idUsedBits == 0 }

func (id DeviceID) String() string {
	var buf [10]byte
	buf[0], buf[1] = '0', 'x'
	conv.U32Hex(buf[2:], uint32(id))
	return string(buf[:])
}
