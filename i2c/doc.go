// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2c drives the Raspberry Pi's I2C buses through the kernel's
// i2c-dev interface.
//
// Plain reads and writes, combined write-read transactions and the SMBus
// protocol family are supported. The BCM283x bus driver only implements a
// subset of SMBus; Capabilities reports what is actually available.
//
//	d, err := i2c.New()
//	if err != nil {
//		return err
//	}
//	defer d.Close()
//	if err := d.SetSlaveAddress(0x48); err != nil {
//		return err
//	}
//	temp, err := d.SmbusReadWord(0x00)
package i2c
