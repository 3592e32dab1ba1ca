package radio

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mailbox-monitor/bus"
	"mailbox-monitor/errcode"
	"mailbox-monitor/services/config"
	"mailbox-monitor/types"
)

// pipeTransport hands out the node end of successive net.Pipe pairs; the
// gateway ends arrive on peers.
type pipeTransport struct {
	peers chan net.Conn
	fail  int
	mu    sync.Mutex
}

func (p *pipeTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	p.mu.Lock()
	if p.fail > 0 {
		p.fail--
		p.mu.Unlock()
		return nil, errors.New("no carrier")
	}
	p.mu.Unlock()
	a, b := net.Pipe()
	select {
	case p.peers <- b:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return a, nil
}

func (p *pipeTransport) String() string { return "pipe" }

// immediatePoster runs posted functions on the caller goroutine and records
// them in order.
type immediatePoster struct {
	mu   sync.Mutex
	runs chan func()
}

func (p *immediatePoster) Post(fn func()) bool {
	p.runs <- fn
	return true
}

func newTestNode(t *testing.T, cfg Config) (*Node, *pipeTransport, *immediatePoster, *bus.Connection) {
	t.Helper()
	tr := &pipeTransport{peers: make(chan net.Conn, 1)}
	name := "pipe-" + strings.ReplaceAll(t.Name(), "/", "-")
	RegisterTransport(name, func(TransportConfig) (Transport, error) { return tr, nil })
	cfg.Transport.Type = name
	b := bus.NewBus(16)
	post := &immediatePoster{runs: make(chan func(), 8)}
	n := New(cfg, post, b.NewConnection("radio"), nil)
	return n, tr, post, b.NewConnection("test")
}

func readFrame(t *testing.T, c net.Conn) Frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := NewFrameReader(c).ReadFrame()
	require.NoError(t, err)
	return f
}

// readUntil skips pings.
func readUntil(t *testing.T, c net.Conn, typ byte) Frame {
	t.Helper()
	for {
		f := readFrame(t, c)
		if f.Type == typ {
			return f
		}
		require.Equal(t, FramePing, f.Type, "unexpected frame %#x", f.Type)
	}
}

func waitLink(t *testing.T, sub *bus.Subscription, level types.Link) types.LinkState {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			st := m.Payload.(types.LinkState)
			if st.Level == level {
				return st
			}
		case <-deadline:
			t.Fatalf("link never reached %s", level)
		}
	}
}

func TestSubTopicValidation(t *testing.T) {
	require.NoError(t, ValidateSubTopic("update/-/notif/state"))
	require.NoError(t, ValidateSubTopic("update/-/"+strings.Repeat("x", MaxSubPath)))
	require.Equal(t, errcode.TopicTooLong, errcode.Of(ValidateSubTopic("update/-/"+strings.Repeat("x", MaxSubPath+1))))
	require.Equal(t, errcode.InvalidTopic, errcode.Of(ValidateSubTopic("notif/state")))
	require.Equal(t, errcode.InvalidTopic, errcode.Of(ValidateSubTopic("update/-/")))
}

func TestChannelString(t *testing.T) {
	cases := map[Channel]string{
		ChannelR1I2C0Default:   "0:0",
		ChannelR1I2C0Alternate: "0:1",
		ChannelR1I2C1Default:   "1:0",
		ChannelR1I2C1Alternate: "1:1",
		ChannelR2I2C0Default:   "0:2",
		ChannelR2I2C1Alternate: "1:3",
	}
	for ch, want := range cases {
		require.Equal(t, want, ch.String())
		back, err := ParseChannel(want)
		require.NoError(t, err)
		require.Equal(t, ch, back)
	}
	_, err := ParseChannel("2:0")
	require.Error(t, err)
}

func TestSetSubsRejectsBadTopic(t *testing.T) {
	n, _, _, _ := newTestNode(t, Config{})
	err := n.SetSubs([]Sub{{Topic: "update/-/ok", Type: PayloadBool}, {Topic: "bad", Type: PayloadBool}})
	require.Equal(t, errcode.InvalidTopic, errcode.Of(err))
	require.Empty(t, n.Subs())
}

func TestSessionAndPublish(t *testing.T) {
	n, tr, post, local := newTestNode(t, Config{})
	state := local.Subscribe(bus.T("radio", "state"))

	n.PairingRequest("mailbox-monitor", "v1.2.3")
	require.NoError(t, n.SetSubs([]Sub{
		{Topic: "update/-/notif/state", Type: PayloadBool, ID: 0},
		{Topic: "update/-/indoor/temperature", Type: PayloadFloat, ID: 1},
	}))
	// queued while the link is down
	require.NoError(t, n.PubTemperature(ChannelR1I2C0Default, 21.5))

	got := make(chan [3]any, 4)
	n.SetHandler(func(id SubID, topic string, v Value) { got <- [3]any{id, topic, v} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	gw := <-tr.peers
	waitLink(t, state, types.LinkUp)

	p, err := DecodePairing(readUntil(t, gw, FramePairing).Payload)
	require.NoError(t, err)
	require.Equal(t, Pairing{Name: "mailbox-monitor", Version: "v1.2.3", Mode: ModeListening}, p)

	subs, err := DecodeSubs(readUntil(t, gw, FrameSubs).Payload)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, "update/-/indoor/temperature", subs[1].Topic)
	require.Equal(t, PayloadFloat, subs[1].Type)

	pub, err := DecodePub(readUntil(t, gw, FramePub).Payload)
	require.NoError(t, err)
	require.Equal(t, KindTemperature, pub.Kind)
	require.Equal(t, []float32{21.5}, pub.Values)

	// inbound update reaches the handler through the poster
	wr := NewFrameWriter(gw)
	require.NoError(t, wr.WriteFrame(Frame{Type: FrameUpdate, Payload: EncodeUpdate(Update{
		Topic: "update/-/indoor/temperature", Value: FloatValue(19.25),
	})}))
	fn := <-post.runs
	fn()
	v := <-got
	require.Equal(t, SubID(1), v[0])
	require.Equal(t, FloatValue(19.25), v[2])

	// wrong type and unknown topic are dropped
	require.NoError(t, wr.WriteFrame(Frame{Type: FrameUpdate, Payload: EncodeUpdate(Update{
		Topic: "update/-/notif/state", Value: FloatValue(1),
	})}))
	require.NoError(t, wr.WriteFrame(Frame{Type: FrameUpdate, Payload: EncodeUpdate(Update{
		Topic: "update/-/nobody", Value: BoolValue(true),
	})}))
	// ping is answered, which also proves the dropped updates were consumed
	require.NoError(t, wr.WriteFrame(Frame{Type: FramePing}))
	readUntil(t, gw, FramePong)
	require.Empty(t, post.runs)
}

func TestSessionSentOnceOnConnect(t *testing.T) {
	n, tr, _, local := newTestNode(t, Config{})
	state := local.Subscribe(bus.T("radio", "state"))

	// both requests kick the link loop before it has connected
	n.PairingRequest("mailbox-monitor", "v1.0.0")
	require.NoError(t, n.SetSubs([]Sub{{Topic: "update/-/notif/state", Type: PayloadBool, ID: 0}}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	gw := <-tr.peers
	waitLink(t, state, types.LinkUp)
	readUntil(t, gw, FramePairing)
	readUntil(t, gw, FrameSubs)

	// a second session would arrive before the pong
	require.NoError(t, NewFrameWriter(gw).WriteFrame(Frame{Type: FramePing}))
	readUntil(t, gw, FramePong)
}

func TestReconnectResendsSession(t *testing.T) {
	n, tr, _, local := newTestNode(t, Config{})
	state := local.Subscribe(bus.T("radio", "state"))
	tr.fail = 1
	n.PairingRequest("mailbox-monitor", "v1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	st := waitLink(t, state, types.LinkDegraded)
	require.Equal(t, "dial_failed_retrying", st.Status)

	gw := <-tr.peers
	readUntil(t, gw, FramePairing)
	_ = gw.Close()

	gw2 := <-tr.peers
	readUntil(t, gw2, FramePairing)
}

func TestQueueFull(t *testing.T) {
	n, _, _, _ := newTestNode(t, Config{Queue: 2})
	require.NoError(t, n.PubHumidity(ChannelR2I2C0Default, 40))
	require.NoError(t, n.PubHumidity(ChannelR2I2C0Default, 41))
	err := n.PubHumidity(ChannelR2I2C0Default, 42)
	require.Equal(t, errcode.QueueFull, errcode.Of(err))
}

func TestSleepingNodeIgnoresLateUpdates(t *testing.T) {
	n, _, post, _ := newTestNode(t, Config{Mode: ModeSleeping, RxWindow: time.Minute})
	require.NoError(t, n.SetSubs([]Sub{{Topic: "update/-/notif/state", Type: PayloadBool}}))
	n.SetHandler(func(SubID, string, Value) {})
	payload := EncodeUpdate(Update{Topic: "update/-/notif/state", Value: BoolValue(true)})

	n.onUpdate(payload) // never transmitted
	require.Empty(t, post.runs)

	n.mu.Lock()
	n.lastTx = time.Now()
	n.mu.Unlock()
	n.onUpdate(payload)
	require.Len(t, post.runs, 1)
}

func TestUnknownTransport(t *testing.T) {
	_, err := NewTransport(TransportConfig{Type: "smoke-signals"})
	require.Error(t, err)
	_, err = NewTransport(TransportConfig{Type: "tcp"})
	require.Error(t, err)

	old := UARTDial
	UARTDial = nil
	defer func() { UARTDial = old }()
	tr, err := NewTransport(TransportConfig{Type: "uart"})
	require.NoError(t, err)
	_, err = tr.Open(context.Background())
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	c := config.Default().Radio
	c.Mode = "sleeping"
	c.Transport.Type = "uart"
	got := FromConfig(c)
	require.Equal(t, ModeSleeping, got.Mode)
	require.Equal(t, 16, got.Queue)
	require.Equal(t, "uart", got.Transport.Type)
	require.Equal(t, UARTConfig{Device: "/dev/serial0", Baud: 115200, TXPin: 0, RXPin: 1}, got.Transport.UART)
	require.Equal(t, ModeListening, FromConfig(config.Default().Radio).Mode)
}

func TestBackoffSeq(t *testing.T) {
	next := backoffSeq(250*time.Millisecond, time.Second)
	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, next())
	}
	require.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second, time.Second, time.Second}, got)
}
