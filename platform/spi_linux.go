//go:build linux && !rp2040

package platform

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	spiIOCWrMode     = 0x40016B01 // _IOW('k', 1, __u8)
	spiIOCWrMaxSpeed = 0x40046B04 // _IOW('k', 4, __u32)
	spiIOCMessage1   = 0x40206B00 // _IOW('k', 0, struct spi_ioc_transfer)

	// Chip select is a GPIO line, the panel's is active high.
	spiNoCS = 0x40
)

// spiTransfer mirrors struct spi_ioc_transfer.
type spiTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// spiBus is an opened /dev/spidevB.C in mode 0 without kernel chip select.
// It satisfies drivers.SPI.
type spiBus struct {
	mu    sync.Mutex
	f     *os.File
	speed uint32
}

func openSPI(path string, speedHz uint32) (*spiBus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	mode := uint8(spiNoCS)
	if err := ioctlPtr(f.Fd(), spiIOCWrMode, unsafe.Pointer(&mode)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("spi %s: set mode: %w", path, err)
	}
	if speedHz > 0 {
		if err := ioctlPtr(f.Fd(), spiIOCWrMaxSpeed, unsafe.Pointer(&speedHz)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("spi %s: set speed: %w", path, err)
		}
	}
	return &spiBus{f: f, speed: speedHz}, nil
}

func (s *spiBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// spiXfer describes one full-duplex transfer. A nil w clocks out zeros, a
// nil r discards what is read.
func spiXfer(w, r []byte, speed uint32) (spiTransfer, int) {
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	t := spiTransfer{len: uint32(n), speedHz: speed, bitsPerWord: 8}
	if len(w) > 0 {
		t.txBuf = uint64(uintptr(unsafe.Pointer(&w[0])))
	}
	if len(r) > 0 {
		t.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}
	return t, n
}

func (s *spiBus) Tx(w, r []byte) error {
	if len(w) > 0 && len(r) > 0 && len(w) != len(r) {
		return fmt.Errorf("spi: tx length %d != rx length %d", len(w), len(r))
	}
	t, n := spiXfer(w, r, s.speed)
	if n == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("spi: closed")
	}
	err := ioctlPtr(s.f.Fd(), spiIOCMessage1, unsafe.Pointer(&t))
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	return err
}

func (s *spiBus) Transfer(b byte) (byte, error) {
	w, r := []byte{b}, []byte{0}
	if err := s.Tx(w, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

func ioctlPtr(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
