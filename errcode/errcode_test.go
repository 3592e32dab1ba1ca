package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestOf(t *testing.T) {
	require.Equal(t, OK, Of(nil))
	require.Equal(t, InvalidParams, Of(InvalidParams))
	require.Equal(t, Busy, Of(&E{C: Busy, Op: "flush"}))
	require.Equal(t, Error, Of(errors.New("boom")))
}

func TestE_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("nack")
	err := Wrap(IOError, "tmp112.read", cause)

	require.Equal(t, "tmp112.read: io_error: nack", err.Error())
	require.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("outer: %w", err)
	var e *E
	require.ErrorAs(t, wrapped, &e)
	require.Equal(t, IOError, e.Code())
}

func TestMapDriverErr(t *testing.T) {
	require.Equal(t, OK, MapDriverErr(nil))
	require.Equal(t, NotReady, MapDriverErr(NotReady))
	require.Equal(t, Timeout, MapDriverErr(timeoutErr{}))
	require.Equal(t, IOError, MapDriverErr(errors.New("nack")))
}

func TestDriver(t *testing.T) {
	require.NoError(t, Driver("op", nil))
	cause := errors.New("nack")
	err := Driver("tmp112.Collect", cause)
	require.Equal(t, IOError, Of(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, "tmp112.Collect: io_error: nack", err.Error())
}
