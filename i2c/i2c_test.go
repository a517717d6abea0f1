// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package i2c

import (
	"encoding/binary"
	"os"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSmbus struct {
	readWrite uint8
	command   uint8
	size      uint32
	block     [i2cBlockMax + 2]byte
}

type recordedMsg struct {
	addr  uint16
	flags uint16
	data  []byte
}

// fakeDev intercepts the device ioctls, records what the driver would
// have seen and plays back canned slave responses.
type fakeDev struct {
	scalar map[uintptr][]uintptr
	smbus  []recordedSmbus
	rdwr   [][]recordedMsg

	byteReply  uint8
	wordReply  uint16
	blockReply []byte
	readFill   byte
}

func (f *fakeDev) ioctl(fd uintptr, op uintptr, arg uintptr) error {
	f.scalar[op] = append(f.scalar[op], arg)
	return nil
}

func (f *fakeDev) ioctlPtr(fd uintptr, op uintptr, arg unsafe.Pointer) error {
	switch op {
	case i2cFuncs:
		*(*uint64)(arg) = uint64(funcI2C | funcTenBitAddr)
	case i2cSmbus:
		d := (*smbusIoctlData)(arg)
		rec := recordedSmbus{readWrite: d.readWrite, command: d.command, size: d.size}
		if d.data != nil {
			sd := (*smbusData)(d.data)
			rec.block = sd.block
			if d.readWrite == smbusRead {
				switch d.size {
				case smbusByte, smbusByteData:
					sd.block[0] = f.byteReply
				case smbusWordData:
					binary.NativeEndian.PutUint16(sd.block[:2], f.wordReply)
				case smbusBlockData:
					sd.block[0] = uint8(len(f.blockReply))
					copy(sd.block[1:], f.blockReply)
				}
			} else if d.size == smbusProcCall {
				binary.NativeEndian.PutUint16(sd.block[:2], f.wordReply)
			}
		}
		f.smbus = append(f.smbus, rec)
	case i2cRdwr:
		d := (*i2cRdwrData)(arg)
		for _, m := range unsafe.Slice((*i2cMsg)(d.msgs), d.nmsgs) {
			buf := unsafe.Slice((*byte)(m.buf), m.len)
			if m.flags&i2cMsgRead != 0 {
				for i := range buf {
					buf[i] = f.readFill
				}
			}
			rec := recordedMsg{addr: m.addr, flags: m.flags, data: append([]byte(nil), buf...)}
			n := len(f.rdwr) - 1
			f.rdwr[n] = append(f.rdwr[n], rec)
		}
	}
	return nil
}

func newTestBus(t *testing.T, funcs Capabilities) (*I2C, *fakeDev) {
	t.Helper()
	f, err := os.Open(os.DevNull)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	fake := &fakeDev{scalar: make(map[uintptr][]uintptr)}
	oldIoctl, oldPtr := devIoctl, devIoctlPtr
	devIoctl = fake.ioctl
	devIoctlPtr = func(fd, op uintptr, arg unsafe.Pointer) error {
		if op == i2cRdwr {
			fake.rdwr = append(fake.rdwr, nil)
		}
		return fake.ioctlPtr(fd, op, arg)
	}
	t.Cleanup(func() { devIoctl, devIoctlPtr = oldIoctl, oldPtr })

	return &I2C{f: f, bus: 1, funcs: funcs}, fake
}

func TestCheckAddress(t *testing.T) {
	tests := []struct {
		addr   uint16
		tenBit bool
		ok     bool
	}{
		{0x00, false, false},
		{0x07, false, false},
		{0x08, false, true},
		{0x48, false, true},
		{0x77, false, true},
		{0x78, false, false},
		{0x7f, false, false},
		{0x80, false, false},
		{0x00, true, true},
		{0x3ff, true, true},
		{0x400, true, false},
	}
	for _, tt := range tests {
		err := checkAddress(tt.addr, tt.tenBit)
		if tt.ok {
			assert.NoError(t, err, "address %#x tenBit=%v", tt.addr, tt.tenBit)
		} else {
			assert.ErrorIs(t, err, ErrInvalidSlaveAddress, "address %#x tenBit=%v", tt.addr, tt.tenBit)
		}
	}
}

func TestSetSlaveAddress(t *testing.T) {
	d, fake := newTestBus(t, funcI2C)

	require.NoError(t, d.SetSlaveAddress(0x48))
	assert.Equal(t, uint16(0x48), d.SlaveAddress())
	require.Equal(t, []uintptr{0x48}, fake.scalar[i2cSlave])

	err := d.SetSlaveAddress(0x03)
	require.ErrorIs(t, err, ErrInvalidSlaveAddress)
	assert.Equal(t, uint16(0x48), d.SlaveAddress())
}

func TestTimeoutRoundsUpToTenMilliseconds(t *testing.T) {
	d, fake := newTestBus(t, funcI2C)

	require.NoError(t, d.SetTimeout(25*time.Millisecond))
	require.NoError(t, d.SetTimeout(time.Millisecond))
	require.NoError(t, d.SetTimeout(100*time.Millisecond))
	assert.Equal(t, []uintptr{3, 1, 10}, fake.scalar[i2cTimeout])
}

func TestTenBitAddressingRequiresSupport(t *testing.T) {
	d, _ := newTestBus(t, funcI2C)
	require.ErrorIs(t, d.Set10BitAddressing(true), ErrFeatureNotSupported)

	d, fake := newTestBus(t, funcI2C|funcTenBitAddr)
	require.NoError(t, d.Set10BitAddressing(true))
	require.Equal(t, []uintptr{1}, fake.scalar[i2cTenBit])
	require.NoError(t, d.SetSlaveAddress(0x3a0))
}

func TestWriteRead(t *testing.T) {
	d, fake := newTestBus(t, funcI2C)
	require.NoError(t, d.SetSlaveAddress(0x36))

	fake.readFill = 0x5a
	rd := make([]byte, 3)
	require.NoError(t, d.WriteRead([]byte{0x10, 0x20}, rd))
	assert.Equal(t, []byte{0x5a, 0x5a, 0x5a}, rd)

	require.Len(t, fake.rdwr, 1)
	msgs := fake.rdwr[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, uint16(0x36), msgs[0].addr)
	assert.Zero(t, msgs[0].flags&i2cMsgRead)
	assert.Equal(t, []byte{0x10, 0x20}, msgs[0].data)
	assert.NotZero(t, msgs[1].flags&i2cMsgRead)
	assert.Len(t, msgs[1].data, 3)
}

func TestWriteReadSkipsEmptySegments(t *testing.T) {
	d, fake := newTestBus(t, funcI2C)
	require.NoError(t, d.SetSlaveAddress(0x36))

	rd := make([]byte, 2)
	require.NoError(t, d.WriteRead(nil, rd))
	require.Len(t, fake.rdwr, 1)
	require.Len(t, fake.rdwr[0], 1)
	assert.NotZero(t, fake.rdwr[0][0].flags&i2cMsgRead)

	require.NoError(t, d.WriteRead(nil, nil))
	assert.Len(t, fake.rdwr, 1)
}

func TestStructSizes(t *testing.T) {
	// The rdwr and smbus payloads must match the kernel's ABI exactly.
	assert.Equal(t, uintptr(34), unsafe.Sizeof(smbusData{}))
	if unsafe.Sizeof(uintptr(0)) == 8 {
		assert.Equal(t, uintptr(16), unsafe.Sizeof(i2cMsg{}))
		assert.Equal(t, uintptr(16), unsafe.Sizeof(i2cRdwrData{}))
		assert.Equal(t, uintptr(16), unsafe.Sizeof(smbusIoctlData{}))
	}
}
