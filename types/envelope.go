package types

import (
	"fmt"

	"i2cbroker-go/errcode"
)

// Base distinguishes the command and response channels.
type Base uint8

const (
	BaseCommand  Base = 1
	BaseResponse Base = 2
)

// Sub-kinds on the command channel.
const (
	KindAttach uint8 = iota
	KindDetach
	KindExecute
	KindDump
)

// Sub-kinds on the response channel.
const (
	KindAttached uint8 = iota
	KindDetached
	KindData
	KindError
)

// Envelope is the flat wire form of a Command or Response. Integer keys keep
// CBOR frames small.
type Envelope struct {
	Base    Base     `cbor:"1,keyasint" json:"base"`
	Kind    uint8    `cbor:"2,keyasint" json:"kind"`
	Exec    ExecKind `cbor:"3,keyasint,omitempty" json:"exec,omitempty"`
	Type    DataType `cbor:"4,keyasint,omitempty" json:"type,omitempty"`
	OutLen  uint8    `cbor:"5,keyasint,omitempty" json:"out_len,omitempty"`
	Device  DeviceID `cbor:"6,keyasint,omitempty" json:"device,omitempty"`
	Tag     Tag      `cbor:"7,keyasint,omitempty" json:"tag,omitempty"`
	Status  uint32   `cbor:"8,keyasint,omitempty" json:"status,omitempty"` // errcode.Pair, packed
	Address uint16   `cbor:"9,keyasint,omitempty" json:"address,omitempty"`
	Mode    AddrMode `cbor:"10,keyasint,omitempty" json:"mode,omitempty"`
	SCL     uint8    `cbor:"11,keyasint,omitempty" json:"scl,omitempty"`
	SDA     uint8    `cbor:"12,keyasint,omitempty" json:"sda,omitempty"`
	SpeedHz uint32   `cbor:"13,keyasint,omitempty" json:"speed_hz,omitempty"`
	Payload []byte   `cbor:"14,keyasint,omitempty" json:"payload,omitempty"`
}

// EnvelopeOf flattens a Command or Response.
func EnvelopeOf(v any) (Envelope, error) {
	switch m := v.(type) {
	case Attach:
		c := m.Config
		if c.SCL < 0 || c.SCL > MaxPin || c.SDA < 0 || c.SDA > MaxPin {
			return Envelope{}, errcode.Wrap(errcode.BadArgs, errcode.SubArgs, "envelope", fmt.Errorf("pins %v", c.Pins))
		}
		return Envelope{Base: BaseCommand, Kind: KindAttach, Tag: m.Tag,
			Address: c.Address, Mode: c.Mode, SCL: uint8(c.SCL), SDA: uint8(c.SDA), SpeedHz: c.SpeedHz}, nil
	case Detach:
		return Envelope{Base: BaseCommand, Kind: KindDetach, Tag: m.Tag, Device: m.ID}, nil
	case Execute:
		if m.OutLen < 0 || m.OutLen > PayloadCap {
			return Envelope{}, errcode.Wrap(errcode.BadArgs, errcode.SubArgs, "envelope", fmt.Errorf("out_len %d", m.OutLen))
		}
		return Envelope{Base: BaseCommand, Kind: KindExecute, Tag: m.Tag, Device: m.ID,
			Exec: m.Kind, Type: m.Type, OutLen: uint8(m.OutLen), Payload: m.In.Bytes()}, nil
	case DiagnosticDump:
		return Envelope{Base: BaseCommand, Kind: KindDump, Tag: m.Tag}, nil
	case Attached:
		return Envelope{Base: BaseResponse, Kind: KindAttached, Tag: m.Tag, Device: m.ID}, nil
	case Detached:
		return Envelope{Base: BaseResponse, Kind: KindDetached, Tag: m.Tag, Device: m.ID}, nil
	case Data:
		return Envelope{Base: BaseResponse, Kind: KindData, Tag: m.Tag, Device: m.ID, Exec: m.Kind,
			Status: errcode.Pair{Code: m.Status}.Pack(), Payload: m.Payload.Bytes()}, nil
	case Error:
		return Envelope{Base: BaseResponse, Kind: KindError, Tag: m.Tag, Device: m.ID,
			Status: errcode.Pair{Code: m.Code, Sub: m.Sub}.Pack()}, nil
	}
	return Envelope{}, errcode.Wrap(errcode.BadArgs, errcode.SubArgs, "envelope", fmt.Errorf("unsupported %T", v))
}

func (e Envelope) payload() (Payload, error) {
	p, ok := PayloadOf(e.Payload)
	if !ok {
		return p, errcode.Wrap(errcode.BadArgs, errcode.SubArgs, "envelope", fmt.Errorf("payload %d bytes", len(e.Payload)))
	}
	return p, nil
}

// Command rebuilds the command carried by e.
func (e Envelope) Command() (Command, error) {
	if e.Base != BaseCommand {
		return nil, errcode.Wrap(errcode.BadArgs, errcode.SubArgs, "envelope", fmt.Errorf("base %d is not a command", e.Base))
	}
	switch e.Kind {
	case KindAttach:
		return Attach{Tag: e.Tag, Config: DeviceConfig{
			Pins:    Pins{SCL: int(e.SCL), SDA: int(e.SDA)},
			Address: e.Address, Mode: e.Mode, SpeedHz: e.SpeedHz,
		}}, nil
	case KindDetach:
		return Detach{Tag: e.Tag, ID: e.Device}, nil
	case KindExecute:
		p, err := e.payload()
		if err != nil {
			return nil, err
		}
		return Execute{Tag: e.Tag, ID: e.Device, Kind: e.Exec, Type: e.Type, OutLen: int(e.OutLen), In: p}, nil
	case KindDump:
		return DiagnosticDump{Tag: e.Tag}, nil
	}
	return nil, errcode.Wrap(errcode.BadArgs, errcode.SubArgs, "envelope", fmt.Errorf("command kind %d", e.Kind))
}

// Response rebuilds the response carried by e.
func (e Envelope) Response() (Response, error) {
	if e.Base != BaseResponse {
		return nil, errcode.Wrap(errcode.BadArgs, errcode.SubArgs, "envelope", fmt.Errorf("base %d is not a response", e.Base))
	}
	st := errcode.UnpackPair(e.Status)
	switch e.Kind {
	case KindAttached:
		return Attached{Tag: e.Tag, ID: e.Device}, nil
	case KindDetached:
		return Detached{Tag: e.Tag, ID: e.Device}, nil
	case KindData:
		p, err := e.payload()
		if err != nil {
			return nil, err
		}
		return Data{Tag: e.Tag, ID: e.Device, Kind: e.Exec, Status: st.Code, Payload: p}, nil
	case KindError:
		return Error{Tag: e.Tag, ID: e.Device, Code: st.Code, Sub: st.Sub}, nil
	}
	return nil, errcode.Wrap(errcode.BadArgs, errcode.SubArgs, "envelope", fmt.Errorf("response kind %d", e.Kind))
}
