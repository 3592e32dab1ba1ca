package gateway

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/require"

	"mailbox-monitor/services/radio"
)

type fakeMQTT struct {
	mu        sync.Mutex
	published chan *paho.Publish
	subs      []string
	handler   func(paho.PublishReceived) (bool, error)
}

func newFakeMQTT() *fakeMQTT { return &fakeMQTT{published: make(chan *paho.Publish, 16)} }

func (f *fakeMQTT) Publish(_ context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	f.published <- p
	return &paho.PublishResponse{}, nil
}

func (f *fakeMQTT) Subscribe(_ context.Context, s *paho.Subscribe) (*paho.Suback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range s.Subscriptions {
		f.subs = append(f.subs, o.Topic)
	}
	return &paho.Suback{}, nil
}

func (f *fakeMQTT) AddOnPublishReceived(h func(paho.PublishReceived) (bool, error)) func() {
	f.handler = h
	return func() { f.handler = nil }
}

func (f *fakeMQTT) deliver(topic, payload string) (bool, error) {
	return f.handler(paho.PublishReceived{Packet: &paho.Publish{Topic: topic, Payload: []byte(payload)}})
}

func (f *fakeMQTT) next(t *testing.T) *paho.Publish {
	t.Helper()
	select {
	case p := <-f.published:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no publish")
		return nil
	}
}

func TestPubTopics(t *testing.T) {
	got := PubTopics("node", "mailbox-monitor", radio.Pub{Kind: radio.KindTemperature, Channel: radio.ChannelR1I2C0Default, Values: []float32{21.5}})
	require.Equal(t, map[string]string{"node/mailbox-monitor/thermometer/0:0/temperature": "21.50"}, got)

	got = PubTopics("node", "m", radio.Pub{Kind: radio.KindBarometer, Channel: radio.ChannelR1I2C0Default, Values: []float32{101325, 12.5}})
	require.Equal(t, map[string]string{
		"node/m/barometer/0:0/pressure": "101.325",
		"node/m/barometer/0:0/altitude": "12.5",
	}, got)

	got = PubTopics("node", "m", radio.Pub{Kind: radio.KindHumidity, Channel: radio.ChannelR2I2C0Default, Values: []float32{45.25}})
	require.Equal(t, map[string]string{"node/m/hygrometer/0:2/relative-humidity": "45.2"}, got)

	got = PubTopics("node", "m", radio.Pub{Kind: radio.KindUptime, Values: []float32{3600}})
	require.Equal(t, map[string]string{"node/m/info/uptime": "3600"}, got)
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue([]byte("true"))
	require.NoError(t, err)
	require.Equal(t, radio.BoolValue(true), v)

	v, err = ParseValue([]byte(" -3.5\n"))
	require.NoError(t, err)
	require.Equal(t, radio.FloatValue(-3.5), v)

	_, err = ParseValue([]byte("open"))
	require.Error(t, err)
}

func TestTopicSegment(t *testing.T) {
	require.Equal(t, "a-b-c", TopicSegment("a/b+c"))
	require.Equal(t, "node", TopicSegment(""))
}

func TestSessionBridgesBothWays(t *testing.T) {
	mq := newFakeMQTT()
	g := New(mq, Config{Prefix: "node"}, nil)
	defer g.Close()

	nodeEnd, gwEnd := net.Pipe()
	defer nodeEnd.Close()
	done := make(chan error, 1)
	go func() { done <- g.HandleLink(context.Background(), gwEnd) }()

	wr := radio.NewFrameWriter(nodeEnd)
	rd := radio.NewFrameReader(nodeEnd)

	require.NoError(t, wr.WriteFrame(radio.Frame{Type: radio.FramePairing, Payload: radio.EncodePairing(radio.Pairing{Name: "mailbox-monitor", Version: "v1.0.0"})}))
	info := mq.next(t)
	require.Equal(t, "node/mailbox-monitor/info", info.Topic)
	require.True(t, info.Retain)
	require.JSONEq(t, `{"firmware":"mailbox-monitor","version":"v1.0.0","mode":"listening"}`, string(info.Payload))
	require.Equal(t, []string{"mailbox-monitor"}, g.Nodes())

	require.NoError(t, wr.WriteFrame(radio.Frame{Type: radio.FrameSubs, Payload: radio.EncodeSubs([]radio.Sub{
		{Topic: "update/-/notif/state", Type: radio.PayloadBool},
		{Topic: "update/-/indoor/temperature", Type: radio.PayloadFloat},
	})}))
	require.NoError(t, wr.WriteFrame(radio.Frame{Type: radio.FramePub, Payload: radio.EncodePub(radio.Pub{
		Kind: radio.KindTemperature, Channel: radio.ChannelR1I2C0Default, Values: []float32{20},
	})}))
	pub := mq.next(t)
	require.Equal(t, "node/mailbox-monitor/thermometer/0:0/temperature", pub.Topic)
	require.Equal(t, "20.00", string(pub.Payload))

	mq.mu.Lock()
	require.Equal(t, []string{"node/mailbox-monitor/update/-/#"}, mq.subs)
	mq.mu.Unlock()

	// broker -> node
	readUpdate := make(chan radio.Update, 1)
	go func() {
		f, err := rd.ReadFrame()
		if err == nil && f.Type == radio.FrameUpdate {
			u, _ := radio.DecodeUpdate(f.Payload)
			readUpdate <- u
		}
	}()
	handled, err := mq.deliver("node/mailbox-monitor/update/-/notif/state", "true")
	require.NoError(t, err)
	require.True(t, handled)
	select {
	case u := <-readUpdate:
		require.Equal(t, radio.Update{Topic: "update/-/notif/state", Value: radio.BoolValue(true)}, u)
	case <-time.After(2 * time.Second):
		t.Fatal("update not forwarded")
	}

	// mismatched and foreign topics are not forwarded (they would block the pipe)
	handled, _ = mq.deliver("node/mailbox-monitor/update/-/notif/state", "2.5")
	require.True(t, handled)
	handled, _ = mq.deliver("node/mailbox-monitor/update/-/unknown", "1")
	require.True(t, handled)
	handled, _ = mq.deliver("other/mailbox-monitor/update/-/notif/state", "true")
	require.False(t, handled)

	require.NoError(t, wr.WriteFrame(radio.Frame{Type: radio.FrameClose}))
	require.NoError(t, <-done)
	require.Empty(t, g.Nodes())
}

func TestDuplicateNamesGetSuffix(t *testing.T) {
	mq := newFakeMQTT()
	g := New(mq, Config{}, nil)

	for i := 0; i < 2; i++ {
		a, b := net.Pipe()
		defer a.Close()
		go func() { _ = g.HandleLink(context.Background(), b) }()
		require.NoError(t, radio.NewFrameWriter(a).WriteFrame(radio.Frame{Type: radio.FramePairing, Payload: radio.EncodePairing(radio.Pairing{Name: "box"})}))
		mq.next(t)
	}
	require.ElementsMatch(t, []string{"box", "box:1"}, g.Nodes())
}

func TestPingAnswered(t *testing.T) {
	g := New(newFakeMQTT(), Config{}, nil)
	a, b := net.Pipe()
	defer a.Close()
	go func() { _ = g.HandleLink(context.Background(), b) }()

	require.NoError(t, radio.NewFrameWriter(a).WriteFrame(radio.Frame{Type: radio.FramePing}))
	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := radio.NewFrameReader(a).ReadFrame()
	require.NoError(t, err)
	require.Equal(t, radio.FramePong, f.Type)
}
