package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// TransportConfig selects and parameterises the link.
type TransportConfig struct {
	// "tcp", "uart", or a name registered via RegisterTransport.
	Type string
	TCP  TCPConfig
	UART UARTConfig
}

type TCPConfig struct {
	Addr string
}

// UARTConfig carries enough information for an injected dialler to open the
// UART. Device is used on Linux hosts, pin numbers on microcontrollers.
type UARTConfig struct {
	Device string
	Baud   uint32
	TXPin  int
	RXPin  int
}

// Transport is a pluggable link dialler.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

// TransportFactory builds a Transport from configuration.
type TransportFactory func(TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]TransportFactory{}
	errNoDial = errors.New("UARTDial not implemented")
)

// RegisterTransport adds or replaces a named transport.
func RegisterTransport(name string, f TransportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

// NewTransport resolves cfg.Type.
func NewTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return &uartTransport{cfg: cfg.UART}, nil
	case "tcp":
		if cfg.TCP.Addr == "" {
			return nil, errors.New("tcp transport requires an address")
		}
		return &tcpTransport{addr: cfg.TCP.Addr}, nil
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// UARTDial is injected by platform code. It must open and return an
// io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

type uartTransport struct{ cfg UARTConfig }

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, u.cfg)
}

func (u *uartTransport) String() string { return "uart" }

type tcpTransport struct{ addr string }

func (t *tcpTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	d := net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	return d.DialContext(ctx, "tcp", t.addr)
}

func (t *tcpTransport) String() string { return "tcp:" + t.addr }

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
