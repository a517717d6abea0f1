//go:build linux

package spi

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	_IOC_WRITE = 1
	_IOC_READ  = 2

	_IOC_NRBITS   = 8
	_IOC_TYPEBITS = 8
	_IOC_SIZEBITS = 14

	_IOC_NRSHIFT   = 0
	_IOC_TYPESHIFT = _IOC_NRSHIFT + _IOC_NRBITS
	_IOC_SIZESHIFT = _IOC_TYPESHIFT + _IOC_TYPEBITS
	_IOC_DIRSHIFT  = _IOC_SIZESHIFT + _IOC_SIZEBITS

	// 'k', the spidev ioctl magic.
	spiIocMagic = 0x6b
)

func _IOC(dir, typ, nr, size uintptr) uintptr {
	return dir<<_IOC_DIRSHIFT | typ<<_IOC_TYPESHIFT | nr<<_IOC_NRSHIFT | size<<_IOC_SIZESHIFT
}

func _IOR(typ, nr, size uintptr) uintptr { return _IOC(_IOC_READ, typ, nr, size) }
func _IOW(typ, nr, size uintptr) uintptr { return _IOC(_IOC_WRITE, typ, nr, size) }

var (
	spiIocRdMode        = _IOR(spiIocMagic, 1, 1)
	spiIocWrMode        = _IOW(spiIocMagic, 1, 1)
	spiIocRdLsbFirst    = _IOR(spiIocMagic, 2, 1)
	spiIocWrLsbFirst    = _IOW(spiIocMagic, 2, 1)
	spiIocRdBitsPerWord = _IOR(spiIocMagic, 3, 1)
	spiIocWrBitsPerWord = _IOW(spiIocMagic, 3, 1)
	spiIocRdMaxSpeedHz  = _IOR(spiIocMagic, 4, 4)
	spiIocWrMaxSpeedHz  = _IOW(spiIocMagic, 4, 4)
)

// spiIocMessage is SPI_IOC_MESSAGE(n): a write ioctl whose size field
// carries the byte length of the transfer array.
func spiIocMessage(n int) uintptr {
	return _IOW(spiIocMagic, 0, uintptr(n)*unsafe.Sizeof(spiIocTransfer{}))
}

// spiIocTransfer mirrors struct spi_ioc_transfer. The buffer addresses are
// 64-bit regardless of the platform's pointer width.
type spiIocTransfer struct {
	txBuf          uint64
	rxBuf          uint64
	len            uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNbits        uint8
	rxNbits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

func rawIoctlPtr(fd uintptr, op uintptr, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

// devIoctl is swapped out by the tests to observe requests without a
// spidev device.
var devIoctl = rawIoctlPtr
