// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package raspi grants userspace access to the Raspberry Pi's on-board
// peripherals. It supports every generation from the original Raspberry Pi
// to the Raspberry Pi 5, covering both the Broadcom register block
// (BCM2835 through BCM2711) and the RP1 I/O controller.
//
// The functionality lives in the subpackages:
//
//   - gpio: pin levels, modes, bias resistors, edge interrupts and
//     software PWM through memory-mapped registers and the GPIO
//     character device.
//   - i2c: the /dev/i2c-N master, including protocol mangling controls
//     and SMBus operations.
//   - spi: the /dev/spidevB.S master with multi-segment transfers.
//   - pwm: the sysfs hardware PWM channels.
//   - uart: the Pi's serial ports through termios2, with optional
//     RTS/CTS flow control.
//   - boardinfo: board model and SoC detection from the revision code.
//   - hal: adapters exposing the handles above as periph.io/x/conn/v3
//     interfaces.
//
// This package itself holds no code.
package raspi
