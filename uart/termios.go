// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package uart

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// termios2 mirrors struct termios2 from asm-generic/termbits.h. It differs
// from the classic termios by the trailing input and output speed fields,
// which carry an arbitrary rate when CBAUD is set to BOTHER.
type termios2 struct {
	iflag  uint32
	oflag  uint32
	cflag  uint32
	lflag  uint32
	line   uint8
	cc     [19]uint8
	ispeed uint32
	ospeed uint32
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

// The tests swap these out to drive the port logic without a tty. devIoctl
// carries scalar arguments, devIoctlPtr carries structs.
var (
	devIoctl    = rawIoctl
	devIoctlPtr = rawIoctlPtr
)

func (u *Uart) getTermios(t *termios2) error {
	return devIoctlPtr(uintptr(u.fd), unix.TCGETS2, unsafe.Pointer(t))
}

func (u *Uart) setTermios(t *termios2) error {
	return devIoctlPtr(uintptr(u.fd), unix.TCSETS2, unsafe.Pointer(t))
}
