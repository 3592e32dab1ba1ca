// Package gateway bridges node radio links to an MQTT broker.
//
// Each accepted link is a session. The first pairing frame names the node;
// sensor publishes are then mapped onto <prefix>/<node>/... topics and
// broker messages under <prefix>/<node>/update/-/# are forwarded to the node
// as typed updates.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/eclipse/paho.golang/paho"

	"mailbox-monitor/services/radio"
	"mailbox-monitor/x/strx"
)

// MQTT is the subset of *paho.Client the gateway uses.
type MQTT interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	AddOnPublishReceived(f func(paho.PublishReceived) (bool, error)) func()
}

// Config for New.
type Config struct {
	Prefix string
	QoS    byte
}

// Gateway owns the node sessions.
type Gateway struct {
	mqtt   MQTT
	prefix string
	qos    byte
	log    *slog.Logger

	mu         sync.Mutex
	nodes      map[string]*session
	subscribed map[string]bool
	remove     func()
}

type session struct {
	id  string
	wmu sync.Mutex
	wr  *radio.FrameWriter

	mu   sync.Mutex
	subs map[string]radio.PayloadType
}

// New returns a gateway publishing through client.
func New(client MQTT, cfg Config, log *slog.Logger) *Gateway {
	cfg.Prefix = strx.Coalesce(cfg.Prefix, "node")
	if log == nil {
		log = slog.Default()
	}
	g := &Gateway{
		mqtt:       client,
		prefix:     strings.TrimSuffix(cfg.Prefix, "/"),
		qos:        cfg.QoS,
		log:        log.With("service", "gateway"),
		nodes:      make(map[string]*session),
		subscribed: make(map[string]bool),
	}
	g.remove = client.AddOnPublishReceived(g.onPublish)
	return g
}

// Close detaches the broker callback.
func (g *Gateway) Close() {
	if g.remove != nil {
		g.remove()
	}
}

// Nodes returns the ids of paired nodes.
func (g *Gateway) Nodes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	return out
}

// Serve accepts links until ctx ends or ln fails.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			defer c.Close()
			if err := g.HandleLink(ctx, c); err != nil {
				g.log.Warn("link ended", "remote", c.RemoteAddr().String(), "err", err)
			}
		}()
	}
}

// HandleLink runs one node session until the link closes. A clean close
// returns nil.
func (g *Gateway) HandleLink(ctx context.Context, rwc io.ReadWriter) error {
	s := &session{wr: radio.NewFrameWriter(rwc), subs: make(map[string]radio.PayloadType)}
	defer g.detach(s)

	rd := radio.NewFrameReader(rwc)
	for {
		if ctx.Err() != nil {
			return nil
		}
		f, err := rd.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		switch f.Type {
		case radio.FramePing:
			if err := s.send(radio.Frame{Type: radio.FramePong}); err != nil {
				return err
			}
		case radio.FramePong:
		case radio.FramePairing:
			p, err := radio.DecodePairing(f.Payload)
			if err != nil {
				g.log.Warn("bad pairing", "err", err)
				continue
			}
			g.pair(ctx, s, p)
		case radio.FrameSubs:
			subs, err := radio.DecodeSubs(f.Payload)
			if err != nil {
				g.log.Warn("bad subs", "err", err)
				continue
			}
			s.mu.Lock()
			s.subs = make(map[string]radio.PayloadType, len(subs))
			for _, sub := range subs {
				s.subs[sub.Topic] = sub.Type
			}
			s.mu.Unlock()
			g.log.Debug("subs", "node", s.id, "count", len(subs))
		case radio.FramePub:
			p, err := radio.DecodePub(f.Payload)
			if err != nil {
				g.log.Warn("bad pub", "node", s.id, "err", err)
				continue
			}
			if s.id == "" {
				g.log.Warn("pub before pairing dropped", "kind", p.Kind)
				continue
			}
			g.forwardPub(ctx, s.id, p)
		case radio.FrameClose:
			return nil
		default:
			g.log.Debug("unknown frame", "type", f.Type)
		}
	}
}

func (s *session) send(f radio.Frame) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.wr.WriteFrame(f)
}

func (g *Gateway) pair(ctx context.Context, s *session, p radio.Pairing) {
	g.mu.Lock()
	if s.id == "" {
		base := TopicSegment(p.Name)
		id := base
		for n := 1; g.nodes[id] != nil; n++ {
			id = base + ":" + strconv.Itoa(n)
		}
		s.id = id
		g.nodes[id] = s
	}
	id := s.id
	needSub := !g.subscribed[id]
	g.subscribed[id] = true
	g.mu.Unlock()

	g.log.Info("paired", "node", id, "firmware", p.Name, "version", p.Version, "mode", p.Mode.String())
	info, _ := json.Marshal(struct {
		Firmware string `json:"firmware"`
		Version  string `json:"version"`
		Mode     string `json:"mode"`
	}{p.Name, p.Version, p.Mode.String()})
	g.publish(ctx, g.prefix+"/"+id+"/info", info, true)

	if needSub {
		_, err := g.mqtt.Subscribe(ctx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: g.prefix + "/" + id + "/" + radio.SubTopicPrefix + "#", QoS: g.qos}},
		})
		if err != nil {
			g.log.Error("subscribe failed", "node", id, "err", err)
			g.mu.Lock()
			delete(g.subscribed, id)
			g.mu.Unlock()
		}
	}
}

func (g *Gateway) detach(s *session) {
	if s.id == "" {
		return
	}
	g.mu.Lock()
	if g.nodes[s.id] == s {
		delete(g.nodes, s.id)
	}
	g.mu.Unlock()
	g.log.Info("node detached", "node", s.id)
}

// PubTopics maps a node publish onto broker topics and payloads.
func PubTopics(prefix, node string, p radio.Pub) map[string]string {
	base := prefix + "/" + node + "/"
	ch := p.Channel.String()
	f := func(v float32, prec int) string { return strconv.FormatFloat(float64(v), 'f', prec, 32) }
	switch p.Kind {
	case radio.KindTemperature:
		return map[string]string{base + "thermometer/" + ch + "/temperature": f(p.Values[0], 2)}
	case radio.KindBarometer:
		return map[string]string{
			base + "barometer/" + ch + "/pressure": f(p.Values[0]/1000, 3), // kPa
			base + "barometer/" + ch + "/altitude": f(p.Values[1], 1),
		}
	case radio.KindHumidity:
		return map[string]string{base + "hygrometer/" + ch + "/relative-humidity": f(p.Values[0], 1)}
	case radio.KindUptime:
		return map[string]string{base + "info/uptime": f(p.Values[0], 0)}
	}
	return nil
}

func (g *Gateway) forwardPub(ctx context.Context, node string, p radio.Pub) {
	for topic, payload := range PubTopics(g.prefix, node, p) {
		g.log.Debug("pub", "topic", topic, "payload", payload)
		g.publish(ctx, topic, []byte(payload), false)
	}
}

func (g *Gateway) publish(ctx context.Context, topic string, payload []byte, retain bool) {
	_, err := g.mqtt.Publish(ctx, &paho.Publish{Topic: topic, Payload: payload, QoS: g.qos, Retain: retain})
	if err != nil {
		g.log.Error("publish failed", "topic", topic, "err", err)
	}
}

// ParseValue converts a broker payload into a typed node value.
func ParseValue(payload []byte) (radio.Value, error) {
	s := strings.TrimSpace(string(payload))
	switch s {
	case "true":
		return radio.BoolValue(true), nil
	case "false":
		return radio.BoolValue(false), nil
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return radio.Value{}, err
	}
	return radio.FloatValue(float32(f)), nil
}

// onPublish runs on the paho receive goroutine.
func (g *Gateway) onPublish(pr paho.PublishReceived) (bool, error) {
	rest, ok := strings.CutPrefix(pr.Packet.Topic, g.prefix+"/")
	if !ok {
		return false, nil
	}
	node, topic, ok := strings.Cut(rest, "/")
	if !ok || !strings.HasPrefix(topic, radio.SubTopicPrefix) {
		return false, nil
	}
	g.mu.Lock()
	s := g.nodes[node]
	g.mu.Unlock()
	if s == nil {
		g.log.Debug("update for absent node", "node", node, "topic", topic)
		return true, nil
	}

	v, err := ParseValue(pr.Packet.Payload)
	if err != nil {
		g.log.Warn("bad update payload", "node", node, "topic", topic, "payload", string(pr.Packet.Payload))
		return true, nil
	}
	s.mu.Lock()
	want, known := s.subs[topic]
	s.mu.Unlock()
	if !known {
		g.log.Debug("update for unsubscribed topic", "node", node, "topic", topic)
		return true, nil
	}
	if want != v.Type {
		g.log.Warn("update type mismatch", "node", node, "topic", topic, "want", want.String())
		return true, nil
	}
	g.log.Info("update", "node", node, "topic", topic, "payload", string(pr.Packet.Payload))
	if err := s.send(radio.Frame{Type: radio.FrameUpdate, Payload: radio.EncodeUpdate(radio.Update{Topic: topic, Value: v})}); err != nil {
		g.log.Warn("update send failed", "node", node, "err", err)
	}
	return true, nil
}

// TopicSegment makes s safe as a single MQTT topic level.
func TopicSegment(s string) string {
	return strx.Coalesce(strx.Replace(s, "/+# ", '-'), "node")
}
