// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uart drives serial ports through the kernel's tty layer.
//
// New opens the primary UART wired to the header's TX/RX pins, resolving
// /dev/serial0 when the firmware provides it. NewWithPath opens any other
// port, USB serial adapters included. The port is switched to raw mode and
// the baud rate is programmed through termios2, so arbitrary rates work on
// drivers that support BOTHER, not just the POSIX table.
//
//	u, err := uart.New(115200, uart.ParityNone, 8, 1)
//	if err != nil {
//		return err
//	}
//	defer u.Close()
//	if err := u.SetReadMode(1, 0); err != nil {
//		return err
//	}
//	n, err := u.Read(buf)
//
// Read behavior is controlled by SetReadMode: the default non-blocking mode
// returns immediately with whatever is buffered, while a minimum length or
// timeout turns reads into blocking calls serviced by the tty line
// discipline.
package uart
