// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package spi drives the Raspberry Pi's SPI buses as a master through the
// spidev kernel interface.
//
// SPI0 is available on all models through GPIO pins 8 through 11; the
// other buses need a device tree overlay before their /dev/spidevB.S
// nodes appear. A handle pairs one bus with one chip-select line:
//
//	s, err := spi.New(spi.Bus0, spi.Ss0, 1_000_000, spi.Mode0)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	rx := make([]byte, 3)
//	if _, err := s.Transfer(rx, []byte{0x01, 0x80, 0x00}); err != nil {
//		return err
//	}
//
// Transfer clocks a single full-duplex segment. TransferSegments chains
// several half or full duplex segments into one transaction, keeping chip
// select asserted in between, for slaves that treat deassertion as the
// end of a command.
package spi
