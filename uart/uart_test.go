// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package uart

import (
	"errors"
	"os"
	"testing"
	"time"
	"unsafe"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type call struct {
	op  uintptr
	arg uintptr
}

// fakeTty stands in for the tty ioctl surface. termios writes land in tio,
// modem bit operations update modem, and scalar ioctls are recorded.
type fakeTty struct {
	tio   termios2
	modem int32
	inq   int32
	outq  int32
	calls []call
}

func (f *fakeTty) ioctl(fd uintptr, op uintptr, arg uintptr) error {
	f.calls = append(f.calls, call{op, arg})
	return nil
}

func (f *fakeTty) ioctlPtr(fd uintptr, op uintptr, arg unsafe.Pointer) error {
	switch op {
	case unix.TCGETS2:
		*(*termios2)(arg) = f.tio
	case unix.TCSETS2:
		f.tio = *(*termios2)(arg)
	case unix.TIOCINQ:
		*(*int32)(arg) = f.inq
	case unix.TIOCOUTQ:
		*(*int32)(arg) = f.outq
	case unix.TIOCMGET:
		*(*int32)(arg) = f.modem
	case unix.TIOCMBIS:
		f.modem |= *(*int32)(arg)
	case unix.TIOCMBIC:
		f.modem &^= *(*int32)(arg)
	default:
		return unix.EINVAL
	}
	return nil
}

func newTestUart(t *testing.T) (*Uart, *fakeTty) {
	t.Helper()
	f := &fakeTty{}
	// A cooked tty the constructor has to fully unwind.
	f.tio.iflag = unix.ICRNL | unix.IXON
	f.tio.oflag = unix.OPOST
	f.tio.cflag = unix.B38400 | unix.CS8 | unix.CREAD | unix.HUPCL
	f.tio.lflag = unix.ISIG | unix.ICANON | unix.ECHO | unix.ECHOE
	f.tio.cc[unix.VMIN] = 1

	origIoctl, origIoctlPtr := devIoctl, devIoctlPtr
	devIoctl = f.ioctl
	devIoctlPtr = f.ioctlPtr
	t.Cleanup(func() {
		devIoctl, devIoctlPtr = origIoctl, origIoctlPtr
	})

	u, err := NewWithPath(os.DevNull, 115200, ParityNone, 8, 1)
	require.NoError(t, err)
	t.Cleanup(func() { u.Close() })
	return u, f
}

func TestTermios2Layout(t *testing.T) {
	// TCGETS2 encodes the struct size in its size bits; 0x2c is 44.
	assert.Equal(t, uintptr(44), unsafe.Sizeof(termios2{}))
	assert.Equal(t, uint32(0x802c542a), uint32(unix.TCGETS2))
	assert.Equal(t, uint32(0x402c542b), uint32(unix.TCSETS2))
}

func TestNewConfiguresRawMode(t *testing.T) {
	u, f := newTestUart(t)

	assert.Zero(t, f.tio.iflag&(unix.ICRNL|unix.IXON|unix.IXOFF))
	assert.Zero(t, f.tio.oflag&unix.OPOST)
	assert.Zero(t, f.tio.lflag&(unix.ECHO|unix.ICANON|unix.ISIG))
	assert.Equal(t, uint32(unix.CREAD|unix.CLOCAL), f.tio.cflag&(unix.CREAD|unix.CLOCAL))

	assert.Equal(t, uint32(unix.BOTHER), f.tio.cflag&unix.CBAUD)
	assert.Equal(t, uint32(115200), f.tio.ispeed)
	assert.Equal(t, uint32(115200), f.tio.ospeed)

	assert.Equal(t, uint32(unix.CS8), f.tio.cflag&unix.CSIZE)
	assert.Zero(t, f.tio.cflag&(unix.PARENB|unix.CSTOPB))

	assert.Zero(t, f.tio.cc[unix.VMIN])
	assert.Zero(t, f.tio.cc[unix.VTIME])

	baud, err := u.Baud()
	require.NoError(t, err)
	assert.Equal(t, uint32(115200), baud)
}

func TestWordFormatEncodings(t *testing.T) {
	tests := []struct {
		parity   Parity
		dataBits uint8
		stopBits uint8
		set      uint32
		clear    uint32
	}{
		{ParityEven, 8, 1, unix.PARENB, unix.PARODD | unix.CMSPAR | unix.CSTOPB},
		{ParityOdd, 8, 1, unix.PARENB | unix.PARODD, unix.CMSPAR},
		{ParityMark, 8, 1, unix.PARENB | unix.CMSPAR | unix.PARODD, 0},
		{ParitySpace, 8, 1, unix.PARENB | unix.CMSPAR, unix.PARODD},
		{ParityNone, 7, 2, unix.CSTOPB, unix.PARENB},
		{ParityNone, 5, 1, 0, unix.CSTOPB},
	}
	for _, tt := range tests {
		u, f := newTestUart(t)
		require.NoError(t, u.configure(9600, tt.parity, tt.dataBits, tt.stopBits))
		assert.Equal(t, tt.set, f.tio.cflag&tt.set, "%v/%d/%d", tt.parity, tt.dataBits, tt.stopBits)
		assert.Zero(t, f.tio.cflag&tt.clear, "%v/%d/%d", tt.parity, tt.dataBits, tt.stopBits)

		parity, err := u.Parity()
		require.NoError(t, err)
		assert.Equal(t, tt.parity, parity)
		dataBits, err := u.DataBits()
		require.NoError(t, err)
		assert.Equal(t, tt.dataBits, dataBits)
		stopBits, err := u.StopBits()
		require.NoError(t, err)
		assert.Equal(t, tt.stopBits, stopBits)
	}
}

func TestInvalidWordFormats(t *testing.T) {
	u, _ := newTestUart(t)
	assert.ErrorIs(t, u.configure(9600, ParityNone, 4, 1), ErrInvalidValue)
	assert.ErrorIs(t, u.configure(9600, ParityNone, 9, 1), ErrInvalidValue)
	assert.ErrorIs(t, u.configure(9600, ParityNone, 8, 0), ErrInvalidValue)
	assert.ErrorIs(t, u.configure(9600, ParityNone, 8, 3), ErrInvalidValue)
	assert.ErrorIs(t, u.configure(9600, Parity(9), 8, 1), ErrInvalidValue)
}

func TestBaudDecodeLegacyConstant(t *testing.T) {
	u, f := newTestUart(t)
	f.tio.cflag &^= unix.CBAUD
	f.tio.cflag |= unix.B115200
	baud, err := u.Baud()
	require.NoError(t, err)
	assert.Equal(t, uint32(115200), baud)
}

func TestSetBaudKeepsWordFormat(t *testing.T) {
	u, f := newTestUart(t)
	require.NoError(t, u.configure(9600, ParityEven, 7, 1))
	require.NoError(t, u.SetBaud(250000))
	assert.Equal(t, uint32(250000), f.tio.ospeed)
	assert.NotZero(t, f.tio.cflag&unix.PARENB)
	assert.Equal(t, uint32(unix.CS7), f.tio.cflag&unix.CSIZE)
}

func TestSetReadMode(t *testing.T) {
	u, f := newTestUart(t)

	require.NoError(t, u.SetReadMode(16, 350*time.Millisecond))
	assert.Equal(t, uint8(16), f.tio.cc[unix.VMIN])
	assert.Equal(t, uint8(4), f.tio.cc[unix.VTIME], "350ms rounds up to 4 deciseconds")

	require.NoError(t, u.SetReadMode(0, 30*time.Second))
	assert.Equal(t, uint8(255), f.tio.cc[unix.VTIME], "timeout saturates at 25.5s")

	require.NoError(t, u.SetReadMode(0, 0))
	assert.Zero(t, f.tio.cc[unix.VMIN])
	assert.Zero(t, f.tio.cc[unix.VTIME])

	assert.ErrorIs(t, u.SetReadMode(1, -time.Second), ErrInvalidValue)
}

func TestReadNonBlockingReturnsZero(t *testing.T) {
	u, _ := newTestUart(t)
	// The descriptor is /dev/null here: an empty port in the default read
	// mode behaves the same way, 0 bytes and no error.
	n, err := u.Read(make([]byte, 16))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteBlockingModeDrains(t *testing.T) {
	u, f := newTestUart(t)
	n, err := u.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.NotContains(t, f.calls, call{unix.TCSBRK, 1})

	require.NoError(t, u.SetWriteMode(true))
	n, err = u.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Contains(t, f.calls, call{unix.TCSBRK, 1})
}

func TestQueueLengths(t *testing.T) {
	u, f := newTestUart(t)
	f.inq, f.outq = 5, 3
	n, err := u.InputLen()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	n, err = u.OutputLen()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFlushQueues(t *testing.T) {
	u, f := newTestUart(t)
	require.NoError(t, u.Flush(QueueInput))
	require.NoError(t, u.Flush(QueueOutput))
	require.NoError(t, u.Flush(QueueBoth))
	assert.Contains(t, f.calls, call{unix.TCFLSH, unix.TCIFLUSH})
	assert.Contains(t, f.calls, call{unix.TCFLSH, unix.TCOFLUSH})
	assert.Contains(t, f.calls, call{unix.TCFLSH, unix.TCIOFLUSH})
	assert.ErrorIs(t, u.Flush(Queue(9)), ErrInvalidValue)
}

func TestManualXonXoff(t *testing.T) {
	u, f := newTestUart(t)
	require.NoError(t, u.SendStop())
	require.NoError(t, u.SendStart())
	assert.Equal(t, []call{{unix.TCXONC, unix.TCIOFF}, {unix.TCXONC, unix.TCION}}, f.calls)
}

func TestSoftwareFlowControl(t *testing.T) {
	u, f := newTestUart(t)

	on, err := u.SoftwareFlowControl()
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, u.SetSoftwareFlowControl(true))
	assert.Equal(t, uint32(unix.IXON|unix.IXOFF), f.tio.iflag&(unix.IXON|unix.IXOFF))
	on, err = u.SoftwareFlowControl()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, u.SetSoftwareFlowControl(false))
	assert.Zero(t, f.tio.iflag&(unix.IXON|unix.IXOFF))
}

func TestHardwareFlowControl(t *testing.T) {
	u, f := newTestUart(t)
	claims := 0
	orig := claimFlow
	claimFlow = func(*Uart) error {
		claims++
		return nil
	}
	t.Cleanup(func() { claimFlow = orig })

	require.NoError(t, u.SetHardwareFlowControl(true))
	assert.Equal(t, 1, claims)
	assert.NotZero(t, f.tio.cflag&unix.CRTSCTS)
	on, err := u.HardwareFlowControl()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, u.SetHardwareFlowControl(false))
	assert.Zero(t, f.tio.cflag&unix.CRTSCTS)
}

func TestHardwareFlowControlClaimFailure(t *testing.T) {
	u, f := newTestUart(t)
	boom := pkgerrors.New("pin held elsewhere")
	orig := claimFlow
	claimFlow = func(*Uart) error { return boom }
	t.Cleanup(func() { claimFlow = orig })

	assert.True(t, errors.Is(u.SetHardwareFlowControl(true), boom))
	assert.Zero(t, f.tio.cflag&unix.CRTSCTS, "termios untouched when the pins cannot be claimed")
}

func TestModemLines(t *testing.T) {
	u, f := newTestUart(t)

	require.NoError(t, u.SetRts(true))
	assert.Equal(t, int32(unix.TIOCM_RTS), f.modem&unix.TIOCM_RTS)
	require.NoError(t, u.SetRts(false))
	assert.Zero(t, f.modem&unix.TIOCM_RTS)

	require.NoError(t, u.SetDtr(true))
	assert.Equal(t, int32(unix.TIOCM_DTR), f.modem&unix.TIOCM_DTR)

	f.modem = unix.TIOCM_CTS | unix.TIOCM_CD
	st, err := u.Status()
	require.NoError(t, err)
	assert.True(t, st.Cts)
	assert.True(t, st.CarrierDetect)
	assert.False(t, st.Rts)
	assert.False(t, st.RingIndicator)
}
