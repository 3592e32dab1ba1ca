// Command mailbox-gateway bridges node radio links to an MQTT broker.
//
// Nodes connect over TCP (the default) or, with -serial, a single node is
// served over the configured UART device.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"mailbox-monitor/platform"
	"mailbox-monitor/services/config"
	"mailbox-monitor/services/gateway"
	"mailbox-monitor/services/radio"
	"mailbox-monitor/x/logx"
)

func main() {
	cfgPath := flag.String("config", "", "YAML configuration overlay")
	serial := flag.Bool("serial", false, "serve one node on radio.transport.uart.device")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log := logx.New(os.Stdout, cfg.Log.Level)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *serial, log); err != nil {
		log.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, serial bool, log *slog.Logger) error {
	client, err := connect(ctx, cfg.Gateway, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}()

	gw := gateway.New(client, gateway.Config{Prefix: cfg.Gateway.Prefix, QoS: 1}, log)
	defer gw.Close()

	if serial {
		u := radio.FromConfig(cfg.Radio).Transport.UART
		for ctx.Err() == nil {
			if err := serveSerial(ctx, gw, u); err != nil {
				log.Warn("serial link ended", "device", u.Device, "err", err)
			}
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		return nil
	}

	ln, err := net.Listen("tcp", cfg.Gateway.Listen)
	if err != nil {
		return err
	}
	log.Info("listening", "addr", ln.Addr().String(), "broker", cfg.Gateway.Broker)
	return gw.Serve(ctx, ln)
}

func serveSerial(ctx context.Context, gw *gateway.Gateway, u radio.UARTConfig) error {
	rwc, err := platform.DialUART(ctx, u)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = rwc.Close()
	}()
	defer rwc.Close()
	return gw.HandleLink(ctx, rwc)
}

func connect(ctx context.Context, gc config.GatewayConfig, log *slog.Logger) (*paho.Client, error) {
	u, err := url.Parse(gc.Broker)
	if err != nil {
		return nil, fmt.Errorf("gateway.broker: %w", err)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "":
	default:
		return nil, fmt.Errorf("gateway.broker: unsupported scheme %q", u.Scheme)
	}
	host := u.Host
	if host == "" {
		host = gc.Broker
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "1883")
	}

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", host)
	if err != nil {
		return nil, err
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: gc.ClientID,
		Conn:     conn,
		OnClientError: func(err error) {
			log.Error("mqtt client error", "err", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			log.Warn("mqtt server disconnect", "reason", d.ReasonCode)
		},
	})
	ack, err := client.Connect(dctx, &paho.Connect{
		ClientID:   gc.ClientID,
		KeepAlive:  30,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	if ack.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect refused: reason %d", ack.ReasonCode)
	}
	log.Info("mqtt connected", "broker", host, "client_id", gc.ClientID)
	return client, nil
}
