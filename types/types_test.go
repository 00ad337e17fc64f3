package types

import (
	"bytes"
	"testing"

	"i2cbroker-go/errcode"
)

func TestDeviceIDLayout(t *testing.T) {
	id := PackDeviceID(0x21, 0, Pins{SCL: 21, SDA: 22})
	want := DeviceID(0x21 | 21<<12 | 22<<19)
	if id != want {
		t.Fatalf("PackDeviceID = %v, want %v", id, want)
	}
	addr, bus, p := id.Unpack()
	if addr != 0x21 || bus != 0 || p.SCL != 21 || p.SDA != 22 {
		t.Fatalf("Unpack = %#x %d %+v", addr, bus, p)
	}
	if !id.Valid() {
		t.Fatal("packed id should have clear reserved bits")
	}
	if DeviceID(1 << 26).Valid() {
		t.Fatal("reserved bit set should be invalid")
	}
	if s := id.String(); s != "0x00B15021" {
		t.Fatalf("String = %q", s)
	}
}

func TestDeviceIDFieldsIndependent(t *testing.T) {
	id := PackDeviceID(0x3FF, 3, Pins{SCL: 127, SDA: 0})
	if id.Address() != 0x3FF || id.BusIndex() != 3 || id.Pins() != (Pins{SCL: 127, SDA: 0}) {
		t.Fatalf("fields bled: %v -> %#x %d %+v", id, id.Address(), id.BusIndex(), id.Pins())
	}
}

func TestDataTypeWidth(t *testing.T) {
	cases := map[DataType]int{U8: 1, U16: 2, U32: 4, U64: 8, Blob: 0}
	for dt, w := range cases {
		if dt.Width() != w {
			t.Fatalf("%v width = %d, want %d", dt, dt.Width(), w)
		}
		if got, ok := ParseDataType(dt.String()); !ok || got != dt {
			t.Fatalf("ParseDataType(%q) = %v,%v", dt.String(), got, ok)
		}
	}
	if _, ok := ParseDataType("u128"); ok {
		t.Fatal("u128 should not parse")
	}
}

func TestPayloadCapacity(t *testing.T) {
	if _, ok := PayloadOf(make([]byte, PayloadCap+1)); ok {
		t.Fatal("oversized payload accepted")
	}
	src := []byte{1, 2, 3}
	p, ok := PayloadOf(src)
	if !ok || p.Len() != 3 {
		t.Fatalf("PayloadOf: ok=%v len=%d", ok, p.Len())
	}
	src[0] = 9
	if p.Bytes()[0] != 1 {
		t.Fatal("payload aliases its source")
	}
}

func TestEnvelopeCommands(t *testing.T) {
	in, _ := PayloadOf([]byte{0xAA, 0xBB})
	cmds := []Command{
		Attach{Tag: 1, Config: DeviceConfig{Pins: Pins{SCL: 21, SDA: 22}, Address: 0x21, SpeedHz: 100_000}},
		Detach{Tag: 2, ID: 0x1234},
		Execute{Tag: 3, ID: 0x1234, Kind: ReadWrite, Type: Blob, OutLen: 4, In: in},
		DiagnosticDump{Tag: 4},
	}
	for _, c := range cmds {
		env, err := EnvelopeOf(c)
		if err != nil {
			t.Fatalf("EnvelopeOf(%T): %v", c, err)
		}
		back, err := env.Command()
		if err != nil {
			t.Fatalf("Command(%T): %v", c, err)
		}
		if CommandTag(back) != CommandTag(c) || CommandName(back) != CommandName(c) {
			t.Fatalf("%T came back as %#v", c, back)
		}
	}
}

func TestEnvelopeErrorStatus(t *testing.T) {
	env, err := EnvelopeOf(Error{Tag: 7, ID: 5, Code: errcode.PinInUse, Sub: errcode.SubPins})
	if err != nil {
		t.Fatal(err)
	}
	r, err := env.Response()
	if err != nil {
		t.Fatal(err)
	}
	e, ok := r.(Error)
	if !ok || e.Code != errcode.PinInUse || e.Sub != errcode.SubPins || e.Tag != 7 || e.ID != 5 {
		t.Fatalf("round trip = %#v", r)
	}
	if errcode.Of(e.Err()) != errcode.PinInUse {
		t.Fatal("Err() should carry the code")
	}
}

func TestEnvelopeRejects(t *testing.T) {
	if _, err := (Envelope{Base: BaseResponse}).Command(); errcode.Of(err) != errcode.BadArgs {
		t.Fatalf("response base as command: %v", err)
	}
	env := Envelope{Base: BaseCommand, Kind: KindExecute, Payload: bytes.Repeat([]byte{1}, PayloadCap+1)}
	if _, err := env.Command(); errcode.Of(err) != errcode.BadArgs {
		t.Fatalf("oversized payload: %v", err)
	}
	if _, err := EnvelopeOf(Attach{Config: DeviceConfig{Pins: Pins{SCL: 200}}}); errcode.Of(err) != errcode.BadArgs {
		t.Fatalf("unencodable pin: %v", err)
	}
}

func TestAddrModeText(t *testing.T) {
	var m AddrMode
	if err := m.UnmarshalText([]byte("10bit")); err != nil || m != Addr10 {
		t.Fatalf("10bit: %v %v", m, err)
	}
	if err := m.UnmarshalText([]byte("9bit")); err == nil {
		t.Fatal("expected error")
	}
	if Addr7.MaxAddress() != 0x7F || Addr10.MaxAddress() != 0x3FF {
		t.Fatal("max address")
	}
}
