package radio

import (
	"fmt"
	"strconv"
	"strings"

	"mailbox-monitor/errcode"
)

// Channel addresses a sensor by core module revision, I2C bus and address
// variant.
type Channel uint8

const (
	ChannelR1I2C0Default Channel = iota
	ChannelR1I2C0Alternate
	ChannelR1I2C1Default
	ChannelR1I2C1Alternate
	ChannelR2I2C0Default
	ChannelR2I2C0Alternate
	ChannelR2I2C1Default
	ChannelR2I2C1Alternate
)

// String renders "bus:index" where index counts address variants across
// revisions (R1 default 0, R1 alternate 1, R2 default 2, ...).
func (c Channel) String() string {
	rev := int(c) / 4
	bus := (int(c) / 2) % 2
	alt := int(c) % 2
	return strconv.Itoa(bus) + ":" + strconv.Itoa(rev*2+alt)
}

// ParseChannel is the inverse of String.
func ParseChannel(s string) (Channel, error) {
	b, i, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("radio: bad channel %q", s)
	}
	bus, err1 := strconv.Atoi(b)
	idx, err2 := strconv.Atoi(i)
	if err1 != nil || err2 != nil || bus < 0 || bus > 1 || idx < 0 || idx > 3 {
		return 0, fmt.Errorf("radio: bad channel %q", s)
	}
	return Channel((idx/2)*4 + bus*2 + idx%2), nil
}

// Mode is the node's receive behaviour.
type Mode uint8

const (
	// ModeListening accepts updates at any time.
	ModeListening Mode = iota
	// ModeSleeping only accepts updates shortly after transmitting.
	ModeSleeping
)

func (m Mode) String() string {
	if m == ModeSleeping {
		return "sleeping"
	}
	return "listening"
}

// PayloadType is the type of a subscription's value.
type PayloadType uint8

const (
	PayloadBool PayloadType = iota
	PayloadFloat
)

func (t PayloadType) String() string {
	if t == PayloadBool {
		return "bool"
	}
	return "float"
}

// Value is a typed inbound value.
type Value struct {
	Type  PayloadType
	Bool  bool
	Float float32
}

func BoolValue(b bool) Value     { return Value{Type: PayloadBool, Bool: b} }
func FloatValue(f float32) Value { return Value{Type: PayloadFloat, Float: f} }

// SubID tags a subscription so handlers can switch on it.
type SubID uint8

// Sub declares interest in one update topic.
type Sub struct {
	Topic string
	Type  PayloadType
	ID    SubID
}

// SubTopicPrefix starts every subscription topic.
const SubTopicPrefix = "update/-/"

// MaxSubPath bounds the part of a topic after SubTopicPrefix.
const MaxSubPath = 32

// ValidateSubTopic checks prefix and length.
func ValidateSubTopic(topic string) error {
	path, ok := strings.CutPrefix(topic, SubTopicPrefix)
	if !ok || path == "" {
		return &errcode.E{C: errcode.InvalidTopic, Op: "radio.ValidateSubTopic", Msg: topic}
	}
	if len(path) > MaxSubPath {
		return &errcode.E{C: errcode.TopicTooLong, Op: "radio.ValidateSubTopic", Msg: topic}
	}
	return nil
}
