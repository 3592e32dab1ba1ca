//go:build linux && !rp2040

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// I2C_RDWR gives a combined write and read with a repeated start, which the
// sensors need for register reads.
const (
	i2cMrd  = 0x0001
	i2cRdwr = 0x0707
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2cRdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// i2cBus is an opened /dev/i2c-N. It satisfies drivers.I2C.
type i2cBus struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func openI2C(path string) (*i2cBus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &i2cBus{f: f, path: path}, nil
}

func (b *i2cBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

func i2cMsgs(addr uint16, w, r []byte) []i2cMsg {
	msgs := make([]i2cMsg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, i2cMsg{addr: addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, i2cMsg{addr: addr, flags: i2cMrd, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	return msgs
}

func (b *i2cBus) Tx(addr uint16, w, r []byte) error {
	if addr == 0 || addr > 0x7F {
		return fmt.Errorf("i2c %s: invalid addr 0x%X", b.path, addr)
	}
	msgs := i2cMsgs(addr, w, r)
	if len(msgs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return fmt.Errorf("i2c %s: closed", b.path)
	}
	data := i2cRdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), uintptr(i2cRdwr), uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(msgs)
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	if errno != 0 {
		return errno
	}
	return nil
}
