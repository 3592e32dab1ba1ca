//go:build linux && !rp2040

package platform

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"mailbox-monitor/services/radio"
)

// DialUART opens the radio module's serial device raw, 8N1, at the
// configured baud rate.
func DialUART(ctx context.Context, u radio.UARTConfig) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if u.Device == "" {
		return nil, fmt.Errorf("uart: no device configured")
	}
	spd, err := baudToUnix(u.Baud)
	if err != nil {
		return nil, err
	}
	// Non-blocking so the runtime poller owns the fd and Close interrupts a
	// pending Read.
	fd, err := unix.Open(u.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD | spd
	t.Ispeed = spd
	t.Ospeed = spd
	// Block for at least one byte; frames are length delimited.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, err
	}

	f := os.NewFile(uintptr(fd), u.Device)
	if f == nil {
		return nil, fmt.Errorf("uart %s: os.NewFile failed", u.Device)
	}
	ok = true
	return f, nil
}

func baudToUnix(baud uint32) (uint32, error) {
	switch baud {
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, fmt.Errorf("uart: unsupported baud %d", baud)
	}
}
