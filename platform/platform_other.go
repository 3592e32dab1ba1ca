//go:build !linux && !rp2040

package platform

import (
	"context"
	"io"

	"mailbox-monitor/services/config"
	"mailbox-monitor/services/radio"
)

// Open always fails on this build.
func Open(config.PlatformConfig) (*Resources, error) { return nil, ErrUnsupported }

// DialUART always fails on this build.
func DialUART(context.Context, radio.UARTConfig) (io.ReadWriteCloser, error) {
	return nil, ErrUnsupported
}
