// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package i2c

import (
	"fmt"
	"os"
	"runtime"
	"time"
	"unsafe"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"periph.io/x/raspi/boardinfo"
)

// ErrInvalidSlaveAddress is returned for reserved or out-of-range slave
// addresses. With 7-bit addressing, 0x00-0x07 and 0x78-0x7f are reserved
// by the protocol.
var ErrInvalidSlaveAddress = pkgerrors.New("i2c: slave address is reserved or out of range")

// ErrFeatureNotSupported is returned when the bus driver does not
// advertise the functionality an operation needs.
var ErrFeatureNotSupported = pkgerrors.New("i2c: feature not supported by the bus driver")

// I2C is a master on one of the Pi's I2C buses, backed by /dev/i2c-N.
//
// An I2C is not safe for concurrent use.
type I2C struct {
	f      *os.File
	bus    uint8
	addr   uint16
	tenBit bool
	pec    bool
	funcs  Capabilities
}

// New opens the board's primary I2C bus: bus 0 on the Raspberry Pi B
// rev 1, bus 1 everywhere else.
func New() (*I2C, error) {
	info, err := boardinfo.Detect()
	if err != nil {
		return nil, err
	}
	return NewWithBus(info.DefaultI2CBus)
}

// NewWithBus opens /dev/i2c-<bus>.
func NewWithBus(bus uint8) (*I2C, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "opening %s", path)
	}
	d := &I2C{f: f, bus: bus}

	var funcs uint64
	if err := devIoctlPtr(f.Fd(), i2cFuncs, unsafe.Pointer(&funcs)); err != nil {
		f.Close()
		return nil, pkgerrors.Wrapf(err, "querying %s functionality", path)
	}
	d.funcs = Capabilities(funcs)

	logrus.WithFields(logrus.Fields{
		"bus":   bus,
		"funcs": fmt.Sprintf("%#x", funcs),
	}).Debug("i2c: bus opened")
	return d, nil
}

// Bus returns the bus number this handle is attached to.
func (d *I2C) Bus() uint8 { return d.bus }

// Capabilities returns the functionality reported by the bus driver.
func (d *I2C) Capabilities() Capabilities { return d.funcs }

// SlaveAddress returns the currently configured slave address.
func (d *I2C) SlaveAddress() uint16 { return d.addr }

// SetSlaveAddress targets all subsequent transfers at the given slave.
func (d *I2C) SetSlaveAddress(addr uint16) error {
	if err := checkAddress(addr, d.tenBit); err != nil {
		return err
	}
	if err := devIoctl(d.f.Fd(), i2cSlave, uintptr(addr)); err != nil {
		return pkgerrors.Wrapf(err, "selecting slave %#x", addr)
	}
	d.addr = addr
	return nil
}

func checkAddress(addr uint16, tenBit bool) error {
	if tenBit {
		if addr > 0x3ff {
			return pkgerrors.Wrapf(ErrInvalidSlaveAddress, "address %#x", addr)
		}
		return nil
	}
	if addr>>3 == 0 || addr>>3 == 0b1111 || addr > 0x7f {
		return pkgerrors.Wrapf(ErrInvalidSlaveAddress, "address %#x", addr)
	}
	return nil
}

// Set10BitAddressing switches between 7-bit and 10-bit slave addresses.
// Only enable it when both the bus driver and the slave support it.
func (d *I2C) Set10BitAddressing(enabled bool) error {
	if enabled && !d.funcs.TenBitAddresses() {
		return pkgerrors.Wrap(ErrFeatureNotSupported, "10-bit addressing")
	}
	var arg uintptr
	if enabled {
		arg = 1
	}
	if err := devIoctl(d.f.Fd(), i2cTenBit, arg); err != nil {
		return pkgerrors.Wrap(err, "configuring 10-bit addressing")
	}
	d.tenBit = enabled
	return nil
}

// SetTimeout bounds how long the driver retries a clock-stretched
// transfer. The kernel counts in 10ms units; timeouts round up.
func (d *I2C) SetTimeout(timeout time.Duration) error {
	tens := (timeout + 10*time.Millisecond - 1) / (10 * time.Millisecond)
	if err := devIoctl(d.f.Fd(), i2cTimeout, uintptr(tens)); err != nil {
		return pkgerrors.Wrap(err, "setting transfer timeout")
	}
	return nil
}

// SetRetries configures how often the driver retries a transfer after
// losing arbitration.
func (d *I2C) SetRetries(retries uint32) error {
	if err := devIoctl(d.f.Fd(), i2cRetries, uintptr(retries)); err != nil {
		return pkgerrors.Wrap(err, "setting transfer retries")
	}
	return nil
}

// Read fills buf from the configured slave with a single read transaction
// and returns the number of bytes received.
func (d *I2C) Read(buf []byte) (int, error) {
	n, err := d.f.Read(buf)
	return n, pkgerrors.Wrap(err, "i2c read")
}

// Write sends buf to the configured slave with a single write transaction
// and returns the number of bytes sent.
func (d *I2C) Write(buf []byte) (int, error) {
	n, err := d.f.Write(buf)
	return n, pkgerrors.Wrap(err, "i2c write")
}

// WriteRead sends wr and receives len(rd) bytes in one combined
// transaction with a repeated start in between, which slaves with
// register-style interfaces require.
func (d *I2C) WriteRead(wr, rd []byte) error {
	var flags uint16
	if d.tenBit {
		flags = i2cMsgTen
	}
	var msgs [2]i2cMsg
	n := 0
	if len(wr) > 0 {
		msgs[n] = i2cMsg{addr: d.addr, flags: flags, len: uint16(len(wr)), buf: unsafe.Pointer(&wr[0])}
		n++
	}
	if len(rd) > 0 {
		msgs[n] = i2cMsg{addr: d.addr, flags: flags | i2cMsgRead, len: uint16(len(rd)), buf: unsafe.Pointer(&rd[0])}
		n++
	}
	if n == 0 {
		return nil
	}
	data := i2cRdwrData{msgs: unsafe.Pointer(&msgs[0]), nmsgs: uint32(n)}
	err := devIoctlPtr(d.f.Fd(), i2cRdwr, unsafe.Pointer(&data))
	runtime.KeepAlive(wr)
	runtime.KeepAlive(rd)
	runtime.KeepAlive(&msgs)
	if err != nil {
		return pkgerrors.Wrap(err, "combined write-read")
	}
	return nil
}

// Close releases the bus handle.
func (d *I2C) Close() error {
	return d.f.Close()
}
