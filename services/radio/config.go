package radio

import "mailbox-monitor/services/config"

// FromConfig converts the loaded radio section.
func FromConfig(c config.RadioConfig) Config {
	mode := ModeListening
	if c.Mode == "sleeping" {
		mode = ModeSleeping
	}
	t := c.Transport
	return Config{
		Mode:  mode,
		Queue: c.Queue,
		Transport: TransportConfig{
			Type: t.Type,
			TCP:  TCPConfig{Addr: t.TCP.Addr},
			UART: UARTConfig{Device: t.UART.Device, Baud: t.UART.Baud, TXPin: t.UART.TXPin, RXPin: t.UART.RXPin},
		},
	}
}
