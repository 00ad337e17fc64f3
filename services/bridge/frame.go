package bridge

import (
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"i2cbroker-go/types"
)

// Frame types.
const (
	framePing     byte = 0x01
	framePong     byte = 0x02
	frameCommand  byte = 0x20
	frameResponse byte = 0x21
	frameClose    byte = 0x7f
)

// Frame is a length-prefixed frame: type, 16-bit big-endian length, payload.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }

// framedWriter serialises whole frames; the reader goroutine and the link
// loop both write.
type framedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	buf := make([]byte, 0, 3+len(f.Payload))
	buf = append(buf, f.Type, byte(len(f.Payload)>>8), byte(len(f.Payload)))
	buf = append(buf, f.Payload...)
	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(buf)
	return err
}

// -----------------------------------------------------------------------------
// Envelope codec
// -----------------------------------------------------------------------------

var encMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeEnvelope returns the canonical CBOR form of env.
func EncodeEnvelope(env types.Envelope) ([]byte, error) { return encMode.Marshal(env) }

// DecodeEnvelope parses a CBOR envelope.
func DecodeEnvelope(b []byte) (types.Envelope, error) {
	var env types.Envelope
	err := cbor.Unmarshal(b, &env)
	return env, err
}

// CommandFrame wraps cmd for the wire.
func CommandFrame(cmd types.Command) (Frame, error) {
	return envelopeFrame(frameCommand, cmd)
}

// ResponseFrame wraps resp for the wire.
func ResponseFrame(resp types.Response) (Frame, error) {
	return envelopeFrame(frameResponse, resp)
}

func envelopeFrame(typ byte, v any) (Frame, error) {
	env, err := types.EnvelopeOf(v)
	if err != nil {
		return Frame{}, err
	}
	b, err := EncodeEnvelope(env)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: typ, Payload: b}, nil
}
