package radio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Frame types. A frame is [type][len_hi][len_lo][payload].
const (
	FramePing    byte = 0x01
	FramePong    byte = 0x02
	FramePub     byte = 0x10 // node -> gateway: typed sensor value
	FrameSubs    byte = 0x11 // node -> gateway: subscription list
	FrameUpdate  byte = 0x14 // gateway -> node: typed value for a subscription
	FramePairing byte = 0x20 // node -> gateway: name and firmware version
	FrameClose   byte = 0x7f
)

// MaxPayload bounds a frame payload.
const MaxPayload = 0xFFFF

var errShort = errors.New("radio: short payload")

// Frame is a length-prefixed frame.
type Frame struct {
	Type    byte
	Payload []byte
}

// FrameReader reads frames from a stream.
type FrameReader struct{ r io.Reader }

// FrameWriter writes frames to a stream.
type FrameWriter struct{ w io.Writer }

func NewFrameReader(r io.Reader) *FrameReader { return &FrameReader{r: r} }
func NewFrameWriter(w io.Writer) *FrameWriter { return &FrameWriter{w: w} }

func (fr *FrameReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: hdr[0], Payload: buf}, nil
}

// WriteFrame sends header and payload in one write so that concurrent
// writers on a serialised stream never interleave.
func (fw *FrameWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > MaxPayload {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	buf := make([]byte, 3+len(f.Payload))
	buf[0] = f.Type
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(f.Payload)))
	copy(buf[3:], f.Payload)
	_, err := fw.w.Write(buf)
	return err
}

// ---- Typed payloads ----

// Kind identifies a published quantity.
type Kind byte

const (
	KindTemperature Kind = 1 // celsius
	KindBarometer   Kind = 2 // pascal, meter
	KindHumidity    Kind = 3 // percent
	KindUptime      Kind = 4 // seconds
)

func (k Kind) String() string {
	switch k {
	case KindTemperature:
		return "temperature"
	case KindBarometer:
		return "barometer"
	case KindHumidity:
		return "humidity"
	case KindUptime:
		return "uptime"
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// Pub is a decoded FramePub payload.
type Pub struct {
	Kind    Kind
	Channel Channel
	Values  []float32
}

// EncodePub encodes [kind][channel][n x float32].
func EncodePub(p Pub) []byte {
	b := make([]byte, 2, 2+4*len(p.Values))
	b[0], b[1] = byte(p.Kind), byte(p.Channel)
	for _, v := range p.Values {
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func DecodePub(b []byte) (Pub, error) {
	if len(b) < 2 || (len(b)-2)%4 != 0 {
		return Pub{}, errShort
	}
	p := Pub{Kind: Kind(b[0]), Channel: Channel(b[1])}
	for i := 2; i < len(b); i += 4 {
		p.Values = append(p.Values, math.Float32frombits(binary.BigEndian.Uint32(b[i:])))
	}
	want := map[Kind]int{KindTemperature: 1, KindBarometer: 2, KindHumidity: 1, KindUptime: 1}[p.Kind]
	if want == 0 || len(p.Values) != want {
		return Pub{}, fmt.Errorf("radio: bad %s payload", p.Kind)
	}
	return p, nil
}

// Pairing is a decoded FramePairing payload.
type Pairing struct {
	Name    string
	Version string
	Mode    Mode
}

func EncodePairing(p Pairing) []byte {
	b := []byte{byte(p.Mode)}
	b = appendString(b, p.Name)
	return appendString(b, p.Version)
}

func DecodePairing(b []byte) (Pairing, error) {
	if len(b) < 1 {
		return Pairing{}, errShort
	}
	p := Pairing{Mode: Mode(b[0])}
	var err error
	rest := b[1:]
	if p.Name, rest, err = readString(rest); err != nil {
		return Pairing{}, err
	}
	if p.Version, _, err = readString(rest); err != nil {
		return Pairing{}, err
	}
	return p, nil
}

// EncodeSubs encodes [count]{[type][len][topic]}.
func EncodeSubs(subs []Sub) []byte {
	b := []byte{byte(len(subs))}
	for _, s := range subs {
		b = append(b, byte(s.Type))
		b = appendString(b, s.Topic)
	}
	return b
}

// DecodeSubs returns topic/type pairs; IDs are local to the node.
func DecodeSubs(b []byte) ([]Sub, error) {
	if len(b) < 1 {
		return nil, errShort
	}
	n := int(b[0])
	rest := b[1:]
	subs := make([]Sub, 0, n)
	for i := 0; i < n; i++ {
		if len(rest) < 1 {
			return nil, errShort
		}
		s := Sub{Type: PayloadType(rest[0])}
		var err error
		if s.Topic, rest, err = readString(rest[1:]); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, nil
}

// Update is a decoded FrameUpdate payload.
type Update struct {
	Topic string
	Value Value
}

// EncodeUpdate encodes [type][len][topic][value].
func EncodeUpdate(u Update) []byte {
	b := []byte{byte(u.Value.Type)}
	b = appendString(b, u.Topic)
	switch u.Value.Type {
	case PayloadBool:
		if u.Value.Bool {
			return append(b, 1)
		}
		return append(b, 0)
	default:
		return binary.BigEndian.AppendUint32(b, math.Float32bits(u.Value.Float))
	}
}

func DecodeUpdate(b []byte) (Update, error) {
	if len(b) < 1 {
		return Update{}, errShort
	}
	u := Update{Value: Value{Type: PayloadType(b[0])}}
	topic, rest, err := readString(b[1:])
	if err != nil {
		return Update{}, err
	}
	u.Topic = topic
	switch u.Value.Type {
	case PayloadBool:
		if len(rest) != 1 {
			return Update{}, errShort
		}
		u.Value.Bool = rest[0] != 0
	case PayloadFloat:
		if len(rest) != 4 {
			return Update{}, errShort
		}
		u.Value.Float = math.Float32frombits(binary.BigEndian.Uint32(rest))
	default:
		return Update{}, fmt.Errorf("radio: unknown payload type %d", u.Value.Type)
	}
	return u, nil
}

func appendString(b []byte, s string) []byte {
	if len(s) > 0xFF {
		s = s[:0xFF]
	}
	b = append(b, byte(len(s)))
	return append(b, s...)
}

func readString(b []byte) (string, []byte, error) {
	if len(b) < 1 || len(b) < 1+int(b[0]) {
		return "", nil, errShort
	}
	n := int(b[0])
	return string(b[1 : 1+n]), b[1+n:], nil
}
