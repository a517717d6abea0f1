// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpio controls the Raspberry Pi's GPIO pins from userspace.
//
// Levels, modes and bias resistors go straight to the SoC's memory-mapped
// registers, through /dev/gpiomem (BCM283x, BCM2711) or /dev/gpiomem0
// (RP1) when available. Edge detection uses the Linux GPIO character
// device, so interrupts work without root and without polling loops.
//
// New returns a handle to a process-wide controller; pins are claimed
// exclusively through Controller.Get and configured by converting the
// returned Pin:
//
//	c, err := gpio.New()
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	pin, err := c.Get(17)
//	if err != nil {
//		return err
//	}
//	led := pin.IntoOutputLow()
//	defer led.Close()
//	led.SetHigh()
//
// Closing a typed handle restores the mode and pull the pin had when it
// was acquired, unless disabled with SetResetOnDrop(false). A handle must
// not be used after Close.
package gpio
