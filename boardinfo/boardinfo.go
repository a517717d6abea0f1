// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package boardinfo identifies the Raspberry Pi model the process runs on
// and describes how its GPIO block is reached from userspace.
//
// Identification relies on the revision code published by the firmware,
// read from /proc/device-tree/system/linux,revision when available and
// from the Revision field of /proc/cpuinfo otherwise.
package boardinfo

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrUnknownModel is returned when the revision code is missing or does not
// decode to a supported board.
var ErrUnknownModel = errors.New("boardinfo: unknown Raspberry Pi model")

// Model identifies a Raspberry Pi board model.
type Model uint8

const (
	RaspberryPiA Model = iota
	RaspberryPiAPlus
	RaspberryPiBRev1
	RaspberryPiBRev2
	RaspberryPiBPlus
	RaspberryPi2B
	RaspberryPi3APlus
	RaspberryPi3B
	RaspberryPi3BPlus
	RaspberryPi4B
	RaspberryPi400
	RaspberryPi5
	RaspberryPi500
	RaspberryPiComputeModule
	RaspberryPiComputeModule3
	RaspberryPiComputeModule3Plus
	RaspberryPiComputeModule4
	RaspberryPiComputeModule4S
	RaspberryPiComputeModule5
	RaspberryPiComputeModule5Lite
	RaspberryPiZero
	RaspberryPiZeroW
	RaspberryPiZero2W
)

var modelNames = map[Model]string{
	RaspberryPiA:                  "Raspberry Pi A",
	RaspberryPiAPlus:              "Raspberry Pi A+",
	RaspberryPiBRev1:              "Raspberry Pi B Rev 1",
	RaspberryPiBRev2:              "Raspberry Pi B Rev 2",
	RaspberryPiBPlus:              "Raspberry Pi B+",
	RaspberryPi2B:                 "Raspberry Pi 2 B",
	RaspberryPi3APlus:             "Raspberry Pi 3 A+",
	RaspberryPi3B:                 "Raspberry Pi 3 B",
	RaspberryPi3BPlus:             "Raspberry Pi 3 B+",
	RaspberryPi4B:                 "Raspberry Pi 4 B",
	RaspberryPi400:                "Raspberry Pi 400",
	RaspberryPi5:                  "Raspberry Pi 5",
	RaspberryPi500:                "Raspberry Pi 500",
	RaspberryPiComputeModule:      "Raspberry Pi Compute Module",
	RaspberryPiComputeModule3:     "Raspberry Pi Compute Module 3",
	RaspberryPiComputeModule3Plus: "Raspberry Pi Compute Module 3+",
	RaspberryPiComputeModule4:     "Raspberry Pi Compute Module 4",
	RaspberryPiComputeModule4S:    "Raspberry Pi Compute Module 4S",
	RaspberryPiComputeModule5:     "Raspberry Pi Compute Module 5",
	RaspberryPiComputeModule5Lite: "Raspberry Pi Compute Module 5 Lite",
	RaspberryPiZero:               "Raspberry Pi Zero",
	RaspberryPiZeroW:              "Raspberry Pi Zero W",
	RaspberryPiZero2W:             "Raspberry Pi Zero 2 W",
}

func (m Model) String() string {
	if s, ok := modelNames[m]; ok {
		return s
	}
	return "Unknown"
}

// SoC identifies the system-on-chip the board is built around.
type SoC uint8

const (
	BCM2835 SoC = iota
	BCM2836
	BCM2837
	BCM2711
	BCM2712
)

func (s SoC) String() string {
	switch s {
	case BCM2835:
		return "BCM2835"
	case BCM2836:
		return "BCM2836"
	case BCM2837:
		return "BCM2837"
	case BCM2711:
		return "BCM2711"
	case BCM2712:
		return "BCM2712"
	}
	return "Unknown"
}

// UsesRP1 reports whether GPIO is routed through the external RP1 I/O
// controller rather than the SoC's own register block.
func (s SoC) UsesRP1() bool {
	return s == BCM2712
}

// DeviceInfo describes the detected board and its GPIO topology.
type DeviceInfo struct {
	Model Model
	SoC   SoC

	// PeripheralBase is the physical address of the peripheral window when
	// the register block is reached through /dev/mem. Zero on RP1 boards,
	// which are mapped through their own character device.
	PeripheralBase uint64
	// GpioOffset is the offset of the GPIO registers within the
	// peripheral window.
	GpioOffset uint64
	// GpioLines is the number of GPIO lines the pin controller exposes.
	GpioLines uint32
	// GpioChipLabel is the gpiochip driver label to look for when scanning
	// /dev/gpiochipN.
	GpioChipLabel string

	// DefaultI2CBus is the bus wired to the header's SDA/SCL pins.
	DefaultI2CBus uint8
	// PwmChannels is the number of hardware PWM channels.
	PwmChannels uint8
}

// FlowControl describes the GPIO lines carrying a UART's RTS and CTS
// signals and the alternate function that routes them.
type FlowControl struct {
	Rts uint8
	Cts uint8
	Alt uint8
}

const (
	periBase2835 = 0x2000_0000
	periBase2836 = 0x3f00_0000
	periBase2711 = 0xfe00_0000

	gpioOffset = 0x0020_0000
)

// Old-style revision codes predate the bit-packed scheme. All are BCM2835.
var oldStyleModels = map[uint32]Model{
	0x0002: RaspberryPiBRev1,
	0x0003: RaspberryPiBRev1,
	0x0004: RaspberryPiBRev2,
	0x0005: RaspberryPiBRev2,
	0x0006: RaspberryPiBRev2,
	0x0007: RaspberryPiA,
	0x0008: RaspberryPiA,
	0x0009: RaspberryPiA,
	0x000d: RaspberryPiBRev2,
	0x000e: RaspberryPiBRev2,
	0x000f: RaspberryPiBRev2,
	0x0010: RaspberryPiBPlus,
	0x0011: RaspberryPiComputeModule,
	0x0012: RaspberryPiAPlus,
	0x0013: RaspberryPiBPlus,
	0x0014: RaspberryPiComputeModule,
	0x0015: RaspberryPiAPlus,
}

// New-style revision codes carry the model in bits 4-11.
var newStyleModels = map[uint32]Model{
	0x00: RaspberryPiA,
	0x01: RaspberryPiBRev2,
	0x02: RaspberryPiAPlus,
	0x03: RaspberryPiBPlus,
	0x04: RaspberryPi2B,
	0x06: RaspberryPiComputeModule,
	0x08: RaspberryPi3B,
	0x09: RaspberryPiZero,
	0x0a: RaspberryPiComputeModule3,
	0x0c: RaspberryPiZeroW,
	0x0d: RaspberryPi3BPlus,
	0x0e: RaspberryPi3APlus,
	0x10: RaspberryPiComputeModule3Plus,
	0x11: RaspberryPi4B,
	0x12: RaspberryPiZero2W,
	0x13: RaspberryPi400,
	0x14: RaspberryPiComputeModule4,
	0x15: RaspberryPiComputeModule4S,
	0x17: RaspberryPi5,
	0x18: RaspberryPiComputeModule5,
	0x19: RaspberryPi500,
	0x1a: RaspberryPiComputeModule5Lite,
}

// Detect identifies the board. It fails with ErrUnknownModel when the
// revision code cannot be read or decoded.
func Detect() (*DeviceInfo, error) {
	rev, err := revisionCode()
	if err != nil {
		return nil, err
	}
	info, err := decode(rev)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"revision": fmt.Sprintf("%06x", rev),
		"model":    info.Model.String(),
		"soc":      info.SoC.String(),
	}).Debug("boardinfo: board detected")
	return info, nil
}

// decode expands a raw revision code into a DeviceInfo.
func decode(rev uint32) (*DeviceInfo, error) {
	var model Model
	var soc SoC
	if rev&(1<<23) != 0 {
		// New-style code: model in bits 4-11, SoC in bits 12-15.
		m, ok := newStyleModels[(rev>>4)&0xff]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported revision %06x", ErrUnknownModel, rev)
		}
		model = m
		switch (rev >> 12) & 0xf {
		case 0:
			soc = BCM2835
		case 1:
			soc = BCM2836
		case 2:
			soc = BCM2837
		case 3:
			soc = BCM2711
		case 4:
			soc = BCM2712
		default:
			return nil, fmt.Errorf("%w: unsupported SoC in revision %06x", ErrUnknownModel, rev)
		}
	} else {
		// Bit 24 is the warranty bit on old-style codes.
		m, ok := oldStyleModels[rev&0xffff]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported revision %06x", ErrUnknownModel, rev)
		}
		model = m
		soc = BCM2835
	}

	info := &DeviceInfo{Model: model, SoC: soc}
	switch soc {
	case BCM2835:
		info.PeripheralBase = periBase2835
		info.GpioOffset = gpioOffset
		info.GpioLines = 54
		info.GpioChipLabel = "pinctrl-bcm2835"
		info.PwmChannels = 2
	case BCM2836, BCM2837:
		info.PeripheralBase = periBase2836
		info.GpioOffset = gpioOffset
		info.GpioLines = 54
		info.GpioChipLabel = "pinctrl-bcm2835"
		info.PwmChannels = 2
	case BCM2711:
		info.PeripheralBase = periBase2711
		info.GpioOffset = gpioOffset
		info.GpioLines = 58
		info.GpioChipLabel = "pinctrl-bcm2711"
		info.PwmChannels = 2
	case BCM2712:
		info.GpioLines = 54
		info.GpioChipLabel = "pinctrl-rp1"
		info.PwmChannels = 4
	}
	// The original Model B routes the header's I2C pins to bus 0.
	if model == RaspberryPiBRev1 {
		info.DefaultI2CBus = 0
	} else {
		info.DefaultI2CBus = 1
	}
	return info, nil
}

// UartFlowPins returns the RTS/CTS lines and the alternate function for the
// given tty device name ("ttyAMA0", "ttyS0", ...). ok is false when the
// device has no flow-control lines on the header.
func (d *DeviceInfo) UartFlowPins(device string) (FlowControl, bool) {
	name := strings.TrimPrefix(device, "/dev/")
	if d.SoC.UsesRP1() {
		// RP1 routes UART0 to GPIO14-17 on alternate function 4.
		if strings.HasPrefix(name, "ttyAMA") {
			return FlowControl{Rts: 17, Cts: 16, Alt: 4}, true
		}
		return FlowControl{}, false
	}
	switch {
	case strings.HasPrefix(name, "ttyAMA"):
		// PL011 on GPIO16/17 via alternate function 3.
		return FlowControl{Rts: 17, Cts: 16, Alt: 3}, true
	case strings.HasPrefix(name, "ttyS"):
		// Mini UART on GPIO16/17 via alternate function 5.
		return FlowControl{Rts: 17, Cts: 16, Alt: 5}, true
	}
	return FlowControl{}, false
}

// revisionCode reads the firmware-published revision code.
func revisionCode() (uint32, error) {
	if b, err := os.ReadFile("/proc/device-tree/system/linux,revision"); err == nil && len(b) >= 4 {
		return binary.BigEndian.Uint32(b[:4]), nil
	}
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnknownModel, err)
	}
	defer f.Close()
	return parseCPUInfo(f)
}

func parseCPUInfo(f *os.File) (uint32, error) {
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "Revision") {
			continue
		}
		_, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		rev, err := strconv.ParseUint(strings.TrimSpace(value), 16, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: malformed revision %q", ErrUnknownModel, value)
		}
		return uint32(rev), nil
	}
	if err := s.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnknownModel, err)
	}
	return 0, fmt.Errorf("%w: no revision in /proc/cpuinfo", ErrUnknownModel)
}
