package tags

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers/tmp102"
)

// tmpBus answers like a TMP112 in shutdown mode.
type tmpBus struct {
	config  [2]byte
	temp    [2]byte
	pending int // config reads that still see a running conversion
}

func (f *tmpBus) Tx(addr uint16, w, r []byte) error {
	if addr != tmp102.Address {
		return errors.New("nack")
	}
	switch {
	case len(w) == 3 && w[0] == tmp102.RegConfiguration:
		// OS reads back as "done" unless a conversion was started
		f.config = [2]byte{w[1] | tmpOneShot, w[2]}
	case len(w) == 1 && w[0] == tmp102.RegConfiguration && len(r) == 2:
		r[0], r[1] = f.config[0], f.config[1]
		if f.pending > 0 {
			f.pending--
			r[0] &^= tmpOneShot
		}
	case len(w) == 1 && w[0] == tmp102.RegTemperature && len(r) == 2:
		r[0], r[1] = f.temp[0], f.temp[1]
	default:
		return errors.New("unexpected transfer")
	}
	return nil
}

func TestTMPOneShot(t *testing.T) {
	cases := []struct {
		raw  [2]byte
		want float32
	}{
		{[2]byte{0x19, 0x00}, 25},
		{[2]byte{0xE7, 0x00}, -25},
		{[2]byte{0x01, 0x00}, 1},
		{[2]byte{0x7F, 0x00}, 127},
	}
	for _, c := range cases {
		bus := &tmpBus{temp: c.raw}
		d := NewTMP(bus, 0)
		require.NoError(t, d.Configure())
		require.NoError(t, d.Trigger())
		got, err := d.Collect()
		require.NoError(t, err)
		require.Equal(t, c.want, got, "raw %x", c.raw)
	}
}

func TestTMPConversionRunning(t *testing.T) {
	bus := &tmpBus{temp: [2]byte{0x19, 0x00}, pending: 1}
	d := NewTMP(bus, 0)
	require.NoError(t, d.Configure())
	require.NoError(t, d.Trigger())
	_, err := d.Collect()
	require.ErrorIs(t, err, ErrTMPNotReady)
	got, err := d.Collect()
	require.NoError(t, err)
	require.Equal(t, float32(25), got)
}

func TestTMPUnconfigured(t *testing.T) {
	// resolution bits read as zero until Configure
	_, err := NewTMP(&tmpBus{}, 0).Collect()
	require.ErrorIs(t, err, ErrTMPProtocol)
}

func TestTMPAddress(t *testing.T) {
	d := NewTMP(&tmpBus{}, 0x49)
	require.Error(t, d.Configure())
}
