// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package i2c

import (
	"encoding/binary"
	"runtime"
	"unsafe"

	pkgerrors "github.com/pkg/errors"
)

// smbus issues one SMBus transaction. data may be nil for transactions
// without a payload.
func (d *I2C) smbus(readWrite uint8, command uint8, size uint32, data *smbusData) error {
	arg := smbusIoctlData{
		readWrite: readWrite,
		command:   command,
		size:      size,
		data:      unsafe.Pointer(data),
	}
	err := devIoctlPtr(d.f.Fd(), i2cSmbus, unsafe.Pointer(&arg))
	runtime.KeepAlive(data)
	return err
}

// SmbusQuick sends a quick command, a bare address cycle carrying a
// single bit in the read/write position. The BCM283x driver does not
// support it.
func (d *I2C) SmbusQuick(bit bool) error {
	if !d.funcs.SmbusQuick() {
		return pkgerrors.Wrap(ErrFeatureNotSupported, "smbus quick command")
	}
	rw := uint8(smbusWrite)
	if bit {
		rw = smbusRead
	}
	return pkgerrors.Wrap(d.smbus(rw, 0, smbusQuick, nil), "smbus quick command")
}

// SmbusSendByte sends a single byte without a command code.
func (d *I2C) SmbusSendByte(value uint8) error {
	return pkgerrors.Wrap(d.smbus(smbusWrite, value, smbusByte, nil), "smbus send byte")
}

// SmbusReceiveByte receives a single byte without a command code.
func (d *I2C) SmbusReceiveByte() (uint8, error) {
	var data smbusData
	if err := d.smbus(smbusRead, 0, smbusByte, &data); err != nil {
		return 0, pkgerrors.Wrap(err, "smbus receive byte")
	}
	return data.block[0], nil
}

// SmbusWriteByte writes one byte to the given command register.
func (d *I2C) SmbusWriteByte(command, value uint8) error {
	var data smbusData
	data.block[0] = value
	return pkgerrors.Wrap(d.smbus(smbusWrite, command, smbusByteData, &data), "smbus write byte")
}

// SmbusReadByte reads one byte from the given command register.
func (d *I2C) SmbusReadByte(command uint8) (uint8, error) {
	var data smbusData
	if err := d.smbus(smbusRead, command, smbusByteData, &data); err != nil {
		return 0, pkgerrors.Wrap(err, "smbus read byte")
	}
	return data.block[0], nil
}

// SmbusWriteWord writes a 16-bit word to the given command register. The
// low byte goes on the wire first, per the SMBus convention.
func (d *I2C) SmbusWriteWord(command uint8, value uint16) error {
	var data smbusData
	binary.NativeEndian.PutUint16(data.block[:2], value)
	return pkgerrors.Wrap(d.smbus(smbusWrite, command, smbusWordData, &data), "smbus write word")
}

// SmbusReadWord reads a 16-bit word from the given command register.
func (d *I2C) SmbusReadWord(command uint8) (uint16, error) {
	var data smbusData
	if err := d.smbus(smbusRead, command, smbusWordData, &data); err != nil {
		return 0, pkgerrors.Wrap(err, "smbus read word")
	}
	return binary.NativeEndian.Uint16(data.block[:2]), nil
}

// SmbusProcessCall writes a word and reads the slave's 16-bit response in
// the same transaction.
func (d *I2C) SmbusProcessCall(command uint8, value uint16) (uint16, error) {
	if !d.funcs.SmbusProcessCall() {
		return 0, pkgerrors.Wrap(ErrFeatureNotSupported, "smbus process call")
	}
	var data smbusData
	binary.NativeEndian.PutUint16(data.block[:2], value)
	if err := d.smbus(smbusWrite, command, smbusProcCall, &data); err != nil {
		return 0, pkgerrors.Wrap(err, "smbus process call")
	}
	return binary.NativeEndian.Uint16(data.block[:2]), nil
}

// SmbusBlockWrite writes up to 32 bytes to the given command register,
// with the byte count on the wire ahead of the data.
func (d *I2C) SmbusBlockWrite(command uint8, buf []byte) error {
	if len(buf) > i2cBlockMax {
		return pkgerrors.Errorf("smbus block write: %d bytes exceeds the %d byte limit", len(buf), i2cBlockMax)
	}
	var data smbusData
	data.block[0] = uint8(len(buf))
	copy(data.block[1:], buf)
	return pkgerrors.Wrap(d.smbus(smbusWrite, command, smbusBlockData, &data), "smbus block write")
}

// SmbusBlockRead reads a counted block from the given command register
// into buf, returning the byte count the slave sent. The BCM283x driver
// does not support it.
func (d *I2C) SmbusBlockRead(command uint8, buf []byte) (int, error) {
	if !d.funcs.SmbusBlockRead() {
		return 0, pkgerrors.Wrap(ErrFeatureNotSupported, "smbus block read")
	}
	var data smbusData
	if err := d.smbus(smbusRead, command, smbusBlockData, &data); err != nil {
		return 0, pkgerrors.Wrap(err, "smbus block read")
	}
	n := int(data.block[0])
	if n > i2cBlockMax {
		n = i2cBlockMax
	}
	copy(buf, data.block[1:1+n])
	return n, nil
}

// SetSmbusPec enables packet error checking for the SMBus operations.
func (d *I2C) SetSmbusPec(enabled bool) error {
	if enabled && !d.funcs.SmbusPec() {
		return pkgerrors.Wrap(ErrFeatureNotSupported, "smbus pec")
	}
	var arg uintptr
	if enabled {
		arg = 1
	}
	if err := devIoctl(d.f.Fd(), i2cPec, arg); err != nil {
		return pkgerrors.Wrap(err, "configuring smbus pec")
	}
	d.pec = enabled
	return nil
}
