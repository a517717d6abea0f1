//go:build linux

package i2c

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Request codes from the kernel's i2c-dev interface.
const (
	i2cRetries = 0x0701
	i2cTimeout = 0x0702 // unit is 10ms
	i2cSlave   = 0x0703
	i2cTenBit  = 0x0704
	i2cFuncs   = 0x0705
	i2cRdwr    = 0x0707
	i2cPec     = 0x0708
	i2cSmbus   = 0x0720
)

// i2c_msg flags.
const (
	i2cMsgRead  = 0x0001
	i2cMsgTen   = 0x0010
	i2cRdwrMax  = 42
	i2cBlockMax = 32
)

// SMBus transfer directions and transaction sizes.
const (
	smbusWrite = 0
	smbusRead  = 1

	smbusQuick     = 0
	smbusByte      = 1
	smbusByteData  = 2
	smbusWordData  = 3
	smbusProcCall  = 4
	smbusBlockData = 5
)

// i2cMsg mirrors struct i2c_msg. The kernel reads len bytes from buf, or
// fills it on a read segment.
type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   unsafe.Pointer
}

// i2cRdwrData mirrors struct i2c_rdwr_ioctl_data.
type i2cRdwrData struct {
	msgs  unsafe.Pointer
	nmsgs uint32
}

// smbusData mirrors union i2c_smbus_data: a byte, a 16-bit word in host
// order, or a block of up to 32 bytes preceded by its length.
type smbusData struct {
	block [i2cBlockMax + 2]byte
}

// smbusIoctlData mirrors struct i2c_smbus_ioctl_data.
type smbusIoctlData struct {
	readWrite uint8
	command   uint8
	size      uint32
	data      unsafe.Pointer
}

func rawIoctl(fd uintptr, op uintptr, arg uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, arg); errno != 0 {
		return errno
	}
	return nil
}

func rawIoctlPtr(fd uintptr, op uintptr, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

// The tests swap these out to observe requests without a bus. devIoctl
// carries scalar arguments, devIoctlPtr carries structs.
var (
	devIoctl    = rawIoctl
	devIoctlPtr = rawIoctlPtr
)
