// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package hal

import (
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	ri2c "periph.io/x/raspi/i2c"
)

// I2CBus exposes an open bus as a conn/v3 i2c.BusCloser.
type I2CBus struct {
	d *ri2c.I2C
}

// NewI2C wraps an open bus handle.
func NewI2C(d *ri2c.I2C) *I2CBus {
	return &I2CBus{d: d}
}

func (b *I2CBus) String() string {
	return fmt.Sprintf("i2c-%d", b.d.Bus())
}

// Duplex implements conn.Conn.
func (b *I2CBus) Duplex() conn.Duplex {
	return conn.Half
}

// Tx does a transaction at the given device address: w is sent, then r is
// filled after a repeated start.
func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	if addr != b.d.SlaveAddress() {
		if err := b.d.SetSlaveAddress(addr); err != nil {
			return err
		}
	}
	return b.d.WriteRead(w, r)
}

// SetSpeed implements i2c.Bus. The kernel driver fixes the clock when the
// bus is brought up, so it cannot be changed per handle.
func (b *I2CBus) SetSpeed(f physic.Frequency) error {
	return fmt.Errorf("hal: the bus clock is fixed at boot; set dtparam=i2c_arm_baudrate=%d in /boot/config.txt instead", int64(f/physic.Hertz))
}

// Close releases the bus handle.
func (b *I2CBus) Close() error {
	return b.d.Close()
}

var _ i2c.BusCloser = &I2CBus{}
