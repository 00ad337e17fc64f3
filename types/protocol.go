package types

import "i2cbroker-go/errcode"

// DataType tags the shape of an EXECUTE transfer.
type DataType uint8

const (
	U8 DataType = iota
	U16
	U32
	U64
	Blob
)

// Width is the transfer length of a scalar type, or 0 for Blob.
func (d DataType) Width() int {
	switch d {
	case U8:
		return 1
	case U16:
		return 2
	case U32:
		return 4
	case U64:
		return 8
	}
	return 0
}

func (d DataType) String() string {
	switch d {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case Blob:
		return "blob"
	}
	return "invalid"
}

// ParseDataType is the inverse of DataType.String.
func ParseDataType(s string) (DataType, bool) {
	for d := U8; d <= Blob; d++ {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}

// ExecKind is the EXECUTE sub-kind.
type ExecKind uint8

const (
	Read ExecKind = iota
	Write
	ReadWrite
	Probe
)

func (k ExecKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "read_write"
	case Probe:
		return "probe"
	}
	return "invalid"
}

// Reads reports whether k produces output bytes.
func (k ExecKind) Reads() bool { return k == Read || k == ReadWrite }

// Writes reports whether k requires input bytes.
func (k ExecKind) Writes() bool { return k == Write || k == ReadWrite }

// PayloadCap is the inline payload capacity.
const PayloadCap = 127

// Payload is a fixed-capacity inline buffer. It is copied by value so a
// command never shares memory with its sender.
type Payload struct {
	n   uint8
	buf [PayloadCap]byte
}

// PayloadOf copies b. It fails if b exceeds PayloadCap.
func PayloadOf(b []byte) (Payload, bool) {
	var p Payload
	if len(b) > PayloadCap {
		return p, false
	}
	p.n = uint8(copy(p.buf[:], b))
	return p, true
}

func (p Payload) Bytes() []byte { return p.buf[:p.n] }
func (p Payload) Len() int       { return int(p.n) }

// Tag correlates a response with its command.
type Tag uint32

// ---- Commands ----

// Command is one of Attach, Detach, Execute, DiagnosticDump.
type Command interface {
	commandTag() Tag
}

type Attach struct {
	Tag    Tag
	Config DeviceConfig
}

type Detach struct {
	Tag Tag
	ID  DeviceID
}

type Execute struct {
	Tag    Tag
	ID     DeviceID
	Kind   ExecKind
	Type   DataType
	OutLen int // Blob reads only
	In     Payload
}

type DiagnosticDump struct {
	Tag Tag
}

func (c Attach) commandTag() Tag         { return c.Tag }
func (c Detach) commandTag() Tag         { return c.Tag }
func (c Execute) commandTag() Tag        { return c.Tag }
func (c DiagnosticDump) commandTag() Tag { return c.Tag }

func CommandTag(c Command) Tag { return c.commandTag() }

// CommandName is the topic token for a command.
func CommandName(c Command) string {
	switch c.(type) {
	case Attach:
		return "attach"
	case Detach:
		return "detach"
	case Execute:
		return "execute"
	case DiagnosticDump:
		return "dump"
	}
	return ""
}

// ---- Responses ----

// Response is one of Attached, Detached, Data, Error.
type Response interface {
	responseTag() Tag
}

type Attached struct {
	Tag Tag
	ID  DeviceID
}

type Detached struct {
	Tag Tag
	ID  DeviceID
}

type Data struct {
	Tag     Tag
	ID      DeviceID
	Kind    ExecKind
	Status  errcode.Code
	Payload Payload
}

type Error struct {
	Tag  Tag
	ID   DeviceID // zero when no device was resolved
	Code errcode.Code
	Sub  errcode.Sub
}

func (r Attached) responseTag() Tag { return r.Tag }
func (r Detached) responseTag() Tag { return r.Tag }
func (r Data) responseTag() Tag     { return r.Tag }
func (r Error) responseTag() Tag    { return r.Tag }

func ResponseTag(r Response) Tag { return r.responseTag() }

// ResponseName is the topic token for a response.
func ResponseName(r Response) string {
	switch r.(type) {
	case Attached:
		return "attached"
	case Detached:
		return "detached"
	case Data:
		return "data"
	case Error:
		return "error"
	}
	return ""
}

// Err converts an Error response into a Go error.
func (r Error) Err() error {
	return &errcode.E{C: r.Code, S: r.Sub, Op: "i2c"}
}
