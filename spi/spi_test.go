// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package spi

import (
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeDev stands in for the spidev ioctl surface. Config writes land in
// its fields, config reads are served from them, and every
// SPI_IOC_MESSAGE call records a copy of its transfer array.
type fakeDev struct {
	mode     uint8
	lsbFirst uint8
	bits     uint8
	speedHz  uint32
	msgOps   []uintptr
	messages [][]spiIocTransfer
}

func (d *fakeDev) ioctl(fd uintptr, op uintptr, arg unsafe.Pointer) error {
	switch op {
	case spiIocWrMode:
		d.mode = *(*uint8)(arg)
	case spiIocRdMode:
		*(*uint8)(arg) = d.mode
	case spiIocWrLsbFirst:
		d.lsbFirst = *(*uint8)(arg)
	case spiIocRdLsbFirst:
		*(*uint8)(arg) = d.lsbFirst
	case spiIocWrBitsPerWord:
		d.bits = *(*uint8)(arg)
	case spiIocRdBitsPerWord:
		*(*uint8)(arg) = d.bits
	case spiIocWrMaxSpeedHz:
		d.speedHz = *(*uint32)(arg)
	case spiIocRdMaxSpeedHz:
		*(*uint32)(arg) = d.speedHz
	default:
		// The transfer count is encoded in the opcode's size bits.
		size := op >> _IOC_SIZESHIFT & (1<<_IOC_SIZEBITS - 1)
		n := int(size / unsafe.Sizeof(spiIocTransfer{}))
		if n < 1 || spiIocMessage(n) != op {
			return unix.EINVAL
		}
		xfers := unsafe.Slice((*spiIocTransfer)(arg), n)
		d.msgOps = append(d.msgOps, op)
		d.messages = append(d.messages, append([]spiIocTransfer(nil), xfers...))
	}
	return nil
}

func newTestSpi(t *testing.T) (*Spi, *fakeDev) {
	t.Helper()
	d := &fakeDev{}
	orig := devIoctl
	devIoctl = d.ioctl
	t.Cleanup(func() { devIoctl = orig })

	f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return &Spi{f: f, bus: Bus0, ss: Ss0}, d
}

func bufAddr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func TestTransferStructLayout(t *testing.T) {
	assert.Equal(t, uintptr(32), unsafe.Sizeof(spiIocTransfer{}))
	assert.Equal(t, uintptr(0x80016b01), spiIocRdMode)
	assert.Equal(t, uintptr(0x40016b01), spiIocWrMode)
	assert.Equal(t, uintptr(0x40046b04), spiIocWrMaxSpeedHz)
	assert.Equal(t, uintptr(0x40206b00), spiIocMessage(1))
	assert.Equal(t, uintptr(0x40406b00), spiIocMessage(2))
}

func TestModeRoundTrip(t *testing.T) {
	s, d := newTestSpi(t)
	require.NoError(t, s.SetMode(Mode3))
	assert.Equal(t, uint8(3), d.mode)

	m, err := s.Mode()
	require.NoError(t, err)
	assert.Equal(t, Mode3, m)
}

func TestModeMasksFlagBits(t *testing.T) {
	s, d := newTestSpi(t)
	// Flags like SPI_CS_HIGH share the mode byte; only the low two bits
	// are the mode.
	d.mode = 0x42
	m, err := s.Mode()
	require.NoError(t, err)
	assert.Equal(t, Mode2, m)
}

func TestInvalidModeRejected(t *testing.T) {
	s, d := newTestSpi(t)
	err := s.SetMode(Mode(4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mode")
	assert.Zero(t, d.mode)

	_, err = New(Bus0, Ss0, 1_000_000, Mode(7))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mode")
}

func TestBitOrderRoundTrip(t *testing.T) {
	s, d := newTestSpi(t)
	require.NoError(t, s.SetBitOrder(LsbFirst))
	assert.Equal(t, uint8(1), d.lsbFirst)
	order, err := s.BitOrder()
	require.NoError(t, err)
	assert.Equal(t, LsbFirst, order)

	require.NoError(t, s.SetBitOrder(MsbFirst))
	assert.Equal(t, uint8(0), d.lsbFirst)
	order, err = s.BitOrder()
	require.NoError(t, err)
	assert.Equal(t, MsbFirst, order)
}

func TestBitsPerWordRoundTrip(t *testing.T) {
	s, d := newTestSpi(t)
	require.NoError(t, s.SetBitsPerWord(9))
	assert.Equal(t, uint8(9), d.bits)
	bits, err := s.BitsPerWord()
	require.NoError(t, err)
	assert.Equal(t, uint8(9), bits)
}

func TestClockSpeedRoundTrip(t *testing.T) {
	s, d := newTestSpi(t)
	require.NoError(t, s.SetClockSpeed(8_000_000))
	assert.Equal(t, uint32(8_000_000), d.speedHz)
	hz, err := s.ClockSpeed()
	require.NoError(t, err)
	assert.Equal(t, uint32(8_000_000), hz)

	assert.Equal(t, Bus0, s.Bus())
	assert.Equal(t, Ss0, s.SlaveSelect())
}

func TestTransferFullDuplex(t *testing.T) {
	s, d := newTestSpi(t)
	wr := []byte{0x90, 0x00, 0x00, 0x00}
	rd := make([]byte, 4)

	n, err := s.Transfer(rd, wr)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.Len(t, d.messages, 1)
	require.Len(t, d.messages[0], 1)
	x := d.messages[0][0]
	assert.Equal(t, bufAddr(wr), x.txBuf)
	assert.Equal(t, bufAddr(rd), x.rxBuf)
	assert.Equal(t, uint32(4), x.len)
	assert.Zero(t, x.speedHz)
	assert.Zero(t, x.delayUsecs)
	assert.Zero(t, x.bitsPerWord)
	assert.Zero(t, x.csChange)
}

func TestTransferHalfDuplex(t *testing.T) {
	s, d := newTestSpi(t)

	wr := []byte{0xaa, 0xbb}
	n, err := s.Transfer(nil, wr)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rd := make([]byte, 5)
	n, err = s.Transfer(rd, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	require.Len(t, d.messages, 2)
	assert.Equal(t, bufAddr(wr), d.messages[0][0].txBuf)
	assert.Zero(t, d.messages[0][0].rxBuf)
	assert.Equal(t, uint32(2), d.messages[0][0].len)
	assert.Zero(t, d.messages[1][0].txBuf)
	assert.Equal(t, bufAddr(rd), d.messages[1][0].rxBuf)
	assert.Equal(t, uint32(5), d.messages[1][0].len)
}

func TestTransferLengthMismatch(t *testing.T) {
	s, d := newTestSpi(t)
	_, err := s.Transfer(make([]byte, 3), make([]byte, 4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
	assert.Empty(t, d.messages)
}

func TestTransferEmptyIsNoop(t *testing.T) {
	s, d := newTestSpi(t)
	n, err := s.Transfer(nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, d.messages)

	require.NoError(t, s.TransferSegments(nil))
	assert.Empty(t, d.messages)
}

func TestTransferSegments(t *testing.T) {
	s, d := newTestSpi(t)
	cmd := []byte{0x03, 0x00, 0x10}
	resp := make([]byte, 8)

	err := s.TransferSegments([]Segment{
		{Write: cmd, DelayUsecs: 10, CsChange: true},
		{Read: resp, ClockHz: 500_000, BitsPerWord: 9},
	})
	require.NoError(t, err)

	require.Len(t, d.msgOps, 1)
	assert.Equal(t, spiIocMessage(2), d.msgOps[0])
	xs := d.messages[0]
	require.Len(t, xs, 2)

	assert.Equal(t, bufAddr(cmd), xs[0].txBuf)
	assert.Zero(t, xs[0].rxBuf)
	assert.Equal(t, uint32(3), xs[0].len)
	assert.Equal(t, uint16(10), xs[0].delayUsecs)
	assert.Equal(t, uint8(1), xs[0].csChange)

	assert.Zero(t, xs[1].txBuf)
	assert.Equal(t, bufAddr(resp), xs[1].rxBuf)
	assert.Equal(t, uint32(8), xs[1].len)
	assert.Equal(t, uint32(500_000), xs[1].speedHz)
	assert.Equal(t, uint8(9), xs[1].bitsPerWord)
	assert.Zero(t, xs[1].csChange)
}

func TestTransferSegmentsLengthMismatch(t *testing.T) {
	s, d := newTestSpi(t)
	err := s.TransferSegments([]Segment{
		{Write: []byte{1, 2}},
		{Read: make([]byte, 3), Write: make([]byte, 2)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segment 1")
	assert.Empty(t, d.messages)
}
