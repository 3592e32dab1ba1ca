// Package radio is the node side of the node/gateway link.
//
// The node queues typed publishes, keeps its pairing request and
// subscription list for re-sending on every link establishment, and
// dispatches inbound subscription updates onto the scheduler goroutine.
// Link supervision (dial, backoff, heartbeat) runs on its own goroutine and
// reports state retained on the local bus under radio/state.
package radio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"mailbox-monitor/bus"
	"mailbox-monitor/errcode"
	"mailbox-monitor/types"
	"mailbox-monitor/x/timex"
)

// Poster runs fn on the scheduler goroutine; *sched.Scheduler satisfies it.
type Poster interface {
	Post(fn func()) bool
}

// Handler receives subscription updates on the scheduler goroutine.
type Handler func(id SubID, topic string, v Value)

// Config for New.
type Config struct {
	Transport TransportConfig
	Mode      Mode
	// Queue bounds outbound publishes held while the link is down.
	Queue int
	// RxWindow is how long a sleeping node accepts updates after a
	// transmission.
	RxWindow time.Duration
	// PingInterval is the link heartbeat period.
	PingInterval time.Duration
}

// Node is the node's radio.
type Node struct {
	cfg  Config
	post Poster
	conn *bus.Connection
	log  *slog.Logger

	stateTopic bus.Topic
	out        chan Frame

	mu      sync.Mutex
	subs    []Sub
	pairing *Frame
	handler Handler
	lastTx  time.Time
	kick    chan struct{}
}

// New returns an idle node; Run starts the link.
func New(cfg Config, post Poster, conn *bus.Connection, log *slog.Logger) *Node {
	if cfg.Queue <= 0 {
		cfg.Queue = 16
	}
	if cfg.RxWindow <= 0 {
		cfg.RxWindow = time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Node{
		cfg:        cfg,
		post:       post,
		conn:       conn,
		log:        log.With("service", "radio"),
		stateTopic: bus.T("radio", "state"),
		out:        make(chan Frame, cfg.Queue),
		kick:       make(chan struct{}, 1),
	}
}

// Mode returns the configured receive mode.
func (n *Node) Mode() Mode { return n.cfg.Mode }

// SetHandler installs the update handler.
func (n *Node) SetHandler(h Handler) {
	n.mu.Lock()
	n.handler = h
	n.mu.Unlock()
}

// SetSubs validates and installs the subscription list. It is sent to the
// gateway now if the link is up and again on every reconnect.
func (n *Node) SetSubs(subs []Sub) error {
	for _, s := range subs {
		if err := ValidateSubTopic(s.Topic); err != nil {
			return err
		}
		if s.Type != PayloadBool && s.Type != PayloadFloat {
			return &errcode.E{C: errcode.InvalidParams, Op: "radio.SetSubs", Msg: s.Topic}
		}
	}
	n.mu.Lock()
	n.subs = append([]Sub(nil), subs...)
	n.mu.Unlock()
	n.resync()
	return nil
}

// Subs returns a copy of the subscription list.
func (n *Node) Subs() []Sub {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sub(nil), n.subs...)
}

// PairingRequest announces the node to the gateway, now and after each
// reconnect.
func (n *Node) PairingRequest(name, version string) {
	f := Frame{Type: FramePairing, Payload: EncodePairing(Pairing{Name: name, Version: version, Mode: n.cfg.Mode})}
	n.mu.Lock()
	n.pairing = &f
	n.mu.Unlock()
	n.resync()
}

func (n *Node) PubTemperature(ch Channel, celsius float32) error {
	return n.pub(Pub{Kind: KindTemperature, Channel: ch, Values: []float32{celsius}})
}

func (n *Node) PubBarometer(ch Channel, pascal, meter float32) error {
	return n.pub(Pub{Kind: KindBarometer, Channel: ch, Values: []float32{pascal, meter}})
}

func (n *Node) PubHumidity(ch Channel, percent float32) error {
	return n.pub(Pub{Kind: KindHumidity, Channel: ch, Values: []float32{percent}})
}

func (n *Node) PubUptime(seconds uint32) error {
	return n.pub(Pub{Kind: KindUptime, Values: []float32{float32(seconds)}})
}

func (n *Node) pub(p Pub) error {
	select {
	case n.out <- Frame{Type: FramePub, Payload: EncodePub(p)}:
		return nil
	default:
		n.log.Warn("publish dropped", "kind", p.Kind, "channel", p.Channel.String())
		return &errcode.E{C: errcode.QueueFull, Op: "radio.pub", Msg: p.Kind.String()}
	}
}

func (n *Node) resync() {
	select {
	case n.kick <- struct{}{}:
	default:
	}
}

// Run supervises the link until ctx is cancelled.
func (n *Node) Run(ctx context.Context) {
	tr, err := NewTransport(n.cfg.Transport)
	if err != nil {
		n.publishState(types.LinkError, "transport_init_failed", err)
		return
	}
	n.publishState(types.LinkIdle, "connecting", nil)

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			n.publishState(types.LinkDegraded, "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		n.publishState(types.LinkUp, "link_established", nil)
		backoff = backoffSeq(250*time.Millisecond, 5*time.Second)
		err = n.handleLink(ctx, rwc)
		_ = rwc.Close()
		if err == nil {
			n.publishState(types.LinkIdle, "closed", nil)
			return
		}
		delay := backoff()
		n.publishState(types.LinkDegraded, "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// handleLink owns one established link. It returns nil when ctx ends.
func (n *Node) handleLink(ctx context.Context, rwc io.ReadWriter) error {
	rd := NewFrameReader(rwc)
	wr := NewFrameWriter(rwc)

	errCh := make(chan error, 1)
	ctrl := make(chan Frame, 4)
	go func() {
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			switch f.Type {
			case FramePing:
				select {
				case ctrl <- Frame{Type: FramePong}:
				default:
				}
			case FramePong:
			case FrameUpdate:
				n.onUpdate(f.Payload)
			case FrameClose:
				errCh <- io.EOF
				return
			default:
				n.log.Debug("unknown frame", "type", f.Type)
			}
		}
	}()

	write := func(f Frame) error {
		if err := wr.WriteFrame(f); err != nil {
			return err
		}
		n.mu.Lock()
		n.lastTx = time.Now()
		n.mu.Unlock()
		return nil
	}

	// The session below already carries anything requested while the link
	// was down.
	select {
	case <-n.kick:
	default:
	}
	if err := n.sendSession(write); err != nil {
		return err
	}

	tick := time.NewTicker(n.cfg.PingInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = wr.WriteFrame(Frame{Type: FrameClose})
			return nil
		case err := <-errCh:
			return err
		case f := <-ctrl:
			if err := write(f); err != nil {
				return err
			}
		case <-n.kick:
			if err := n.sendSession(write); err != nil {
				return err
			}
		case f := <-n.out:
			if err := write(f); err != nil {
				return err
			}
		case <-tick.C:
			if err := write(Frame{Type: FramePing}); err != nil {
				return err
			}
		}
	}
}

// sendSession sends pairing and subscriptions.
func (n *Node) sendSession(write func(Frame) error) error {
	n.mu.Lock()
	pairing := n.pairing
	subs := append([]Sub(nil), n.subs...)
	n.mu.Unlock()

	if pairing != nil {
		if err := write(*pairing); err != nil {
			return err
		}
	}
	if len(subs) > 0 {
		return write(Frame{Type: FrameSubs, Payload: EncodeSubs(subs)})
	}
	return nil
}

// onUpdate runs on the link reader goroutine.
func (n *Node) onUpdate(payload []byte) {
	u, err := DecodeUpdate(payload)
	if err != nil {
		n.log.Warn("bad update", "err", err)
		return
	}
	n.mu.Lock()
	h := n.handler
	lastTx := n.lastTx
	var sub *Sub
	for i := range n.subs {
		if n.subs[i].Topic == u.Topic {
			s := n.subs[i]
			sub = &s
			break
		}
	}
	n.mu.Unlock()

	if n.cfg.Mode == ModeSleeping && time.Since(lastTx) > n.cfg.RxWindow {
		n.log.Debug("update outside receive window", "topic", u.Topic)
		return
	}
	if sub == nil {
		n.log.Warn("update for unknown topic", "topic", u.Topic)
		return
	}
	if sub.Type != u.Value.Type {
		n.log.Warn("update type mismatch", "topic", u.Topic, "want", sub.Type, "got", u.Value.Type)
		return
	}
	if h == nil {
		return
	}
	id, topic, v := sub.ID, u.Topic, u.Value
	if !n.post.Post(func() { h(id, topic, v) }) {
		n.log.Warn("update dropped, scheduler busy", "topic", topic)
	}
}

func (n *Node) publishState(level types.Link, status string, err error) {
	st := types.LinkState{Level: level, Status: status, TSms: timex.NowMs()}
	if err != nil {
		st.Error = err.Error()
	}
	if level == types.LinkError || level == types.LinkDegraded {
		n.log.Warn("link", "level", level, "status", status, "err", st.Error)
	} else {
		n.log.Info("link", "level", level, "status", status)
	}
	if n.conn != nil {
		n.conn.Publish(n.conn.NewMessage(n.stateTopic, st, true))
	}
}
