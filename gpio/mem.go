// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"periph.io/x/raspi/boardinfo"
)

// gpioMem is the memory-mapped register window of a pin controller. All
// operations are infallible once the mapping exists; implementations
// serialize read-modify-write internally so calls may come from any
// goroutine.
type gpioMem interface {
	Mode(pin uint8) Mode
	SetMode(pin uint8, mode Mode)
	Level(pin uint8) Level
	SetHigh(pin uint8)
	SetLow(pin uint8)
	// Pull reports the configured bias. ok is false on controllers whose
	// pull registers are write-only (BCM283x before the BCM2711).
	Pull(pin uint8) (Pull, bool)
	SetPull(pin uint8, pull Pull)
	Close() error
}

// openMem maps the register window matching the detected controller.
func openMem(info *boardinfo.DeviceInfo) (gpioMem, error) {
	if info.SoC.UsesRP1() {
		return openRP1Mem()
	}
	return openBCMMem(info)
}
