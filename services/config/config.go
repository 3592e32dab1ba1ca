// Package config loads the node and gateway configuration.
//
// The embedded default.yaml is always decoded first; an optional file is
// decoded over it, so a file only needs the keys it changes.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mailbox-monitor/bus"
)

//go:embed default.yaml
var defaultYAML []byte

// Topic prefix for retained per-section publishing.
const configPrefix = "config"

type Config struct {
	Node        NodeConfig        `yaml:"node"`
	Board       BoardConfig       `yaml:"board"`
	Orientation OrientationConfig `yaml:"orientation"`
	Display     DisplayConfig     `yaml:"display"`
	Sensors     SensorsConfig     `yaml:"sensors"`
	Platform    PlatformConfig    `yaml:"platform"`
	Radio       RadioConfig       `yaml:"radio"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Log         LogConfig         `yaml:"log"`
}

type NodeConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type BoardConfig struct {
	Revision string `yaml:"revision"`
}

type OrientationConfig struct {
	Threshold    float32       `yaml:"threshold"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MinRatio     float32       `yaml:"min_ratio"`
}

type DisplayConfig struct {
	Enabled      bool          `yaml:"enabled"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	VCOMInterval time.Duration `yaml:"vcom_interval"`
	Labels       LabelsConfig  `yaml:"labels"`
}

type LabelsConfig struct {
	Indoor  string `yaml:"indoor"`
	Outdoor string `yaml:"outdoor"`
}

type SensorsConfig struct {
	Temperature SensorConfig `yaml:"temperature"`
	Barometer   SensorConfig `yaml:"barometer"`
	Humidity    SensorConfig `yaml:"humidity"`
}

type SensorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Chip     string        `yaml:"chip"`
	Interval time.Duration `yaml:"interval"`
	Bus      string        `yaml:"bus"`
	Address  uint16        `yaml:"address"`
}

type PlatformConfig struct {
	I2C          string `yaml:"i2c"`
	SPI          string `yaml:"spi"`
	SPISpeedHz   uint32 `yaml:"spi_speed_hz"`
	GPIOChip     string `yaml:"gpio_chip"`
	ButtonLine   int    `yaml:"button_line"`
	AccelIRQLine int    `yaml:"accel_irq_line"`
	LCDCSLine    int    `yaml:"lcd_cs_line"`
	LCDLEDLines  []int  `yaml:"lcd_led_lines"`
}

type RadioConfig struct {
	Mode      string          `yaml:"mode"`
	Queue     int             `yaml:"queue"`
	Transport TransportConfig `yaml:"transport"`
}

type TransportConfig struct {
	Type string     `yaml:"type"`
	TCP  TCPConfig  `yaml:"tcp"`
	UART UARTConfig `yaml:"uart"`
}

type TCPConfig struct {
	Addr string `yaml:"addr"`
}

type UARTConfig struct {
	Device string `yaml:"device"`
	Baud   uint32 `yaml:"baud"`
	TXPin  int    `yaml:"tx_pin"`
	RXPin  int    `yaml:"rx_pin"`
}

type HeartbeatConfig struct {
	Schedule string `yaml:"schedule"`
}

type GatewayConfig struct {
	Listen   string `yaml:"listen"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Prefix   string `yaml:"prefix"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the embedded configuration.
func Default() Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic("config: embedded default: " + err.Error())
	}
	return cfg
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Parse(nil)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes overlay (which may be empty) over the defaults and
// validates the result.
func Parse(overlay []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		return Config{}, err
	}
	if len(overlay) > 0 {
		if err := yaml.Unmarshal(overlay, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	if c.Node.Name == "" {
		return fmt.Errorf("node.name is required")
	}
	switch strings.ToLower(c.Board.Revision) {
	case "a", "b", "r1", "r2":
	default:
		return fmt.Errorf("board.revision must be a or b, got %q", c.Board.Revision)
	}
	if c.Orientation.Threshold <= 0 || c.Orientation.Threshold > 2 {
		return fmt.Errorf("orientation.threshold must be in (0, 2] g")
	}
	if c.Orientation.MinRatio <= 0 || c.Orientation.MinRatio > 1 {
		return fmt.Errorf("orientation.min_ratio must be in (0, 1]")
	}
	if c.Orientation.PollInterval <= 0 {
		return fmt.Errorf("orientation.poll_interval must be > 0")
	}
	if c.Display.StaleAfter <= 0 {
		return fmt.Errorf("display.stale_after must be > 0")
	}
	if c.Display.RetryDelay <= 0 {
		return fmt.Errorf("display.retry_delay must be > 0")
	}
	for name, s := range map[string]SensorConfig{
		"temperature": c.Sensors.Temperature,
		"barometer":   c.Sensors.Barometer,
		"humidity":    c.Sensors.Humidity,
	} {
		if s.Enabled && s.Interval <= 0 {
			return fmt.Errorf("sensors.%s.interval must be > 0 when enabled", name)
		}
	}
	switch c.Sensors.Humidity.Chip {
	case "shtc3", "aht20":
	default:
		return fmt.Errorf("sensors.humidity.chip must be shtc3 or aht20, got %q", c.Sensors.Humidity.Chip)
	}
	switch c.Radio.Transport.Type {
	case "tcp":
		if c.Radio.Transport.TCP.Addr == "" {
			return fmt.Errorf("radio.transport.tcp.addr is required for tcp")
		}
	case "uart":
		if c.Radio.Transport.UART.Baud == 0 {
			return fmt.Errorf("radio.transport.uart.baud is required for uart")
		}
	case "none":
	default:
		return fmt.Errorf("radio.transport.type must be tcp, uart or none, got %q", c.Radio.Transport.Type)
	}
	switch c.Radio.Mode {
	case "", "listening", "sleeping":
	default:
		return fmt.Errorf("radio.mode must be listening or sleeping, got %q", c.Radio.Mode)
	}
	if c.Radio.Queue <= 0 {
		c.Radio.Queue = 16
	}
	if c.Heartbeat.Schedule == "" {
		c.Heartbeat.Schedule = "@every 1h"
	}
	if c.Gateway.Prefix == "" {
		c.Gateway.Prefix = "node"
	}
	return nil
}

// Publish places each section on the bus as a retained message under
// config/<section>.
func Publish(conn *bus.Connection, cfg Config) {
	sections := map[string]any{
		"node":        cfg.Node,
		"board":       cfg.Board,
		"orientation": cfg.Orientation,
		"display":     cfg.Display,
		"sensors":     cfg.Sensors,
		"platform":    cfg.Platform,
		"radio":       cfg.Radio,
		"heartbeat":   cfg.Heartbeat,
		"gateway":     cfg.Gateway,
		"log":         cfg.Log,
	}
	for k, v := range sections {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
}
