// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
)

// RP1 register geometry. The window mapped by /dev/gpiomem0 holds three
// register groups, each split into three banks 0x4000 bytes apart:
// io_bank0 at +0x0, sys_rio0 at +0x10000 and pads_bank0 at +0x20000.
// Writes to a block's +0x1000/+0x2000/+0x3000 aliases perform atomic
// xor/set/clear, which makes rio OUT and OE updates race-free without a
// read-modify-write.
const (
	rp1MemLength = 0x30000

	rp1IoBase   = 0x0000
	rp1RioBase  = 0x10000
	rp1PadsBase = 0x20000
	rp1BankStep = 0x4000

	rp1SetAlias = 0x2000
	rp1ClrAlias = 0x3000

	rp1RioOut = 0x0
	rp1RioOe  = 0x4
	rp1RioIn  = 0x8

	rp1FselMask uint32 = 0x1f
	rp1FselRio  uint32 = 5
	rp1FselNull uint32 = 0x1f

	rp1PadPullDown    uint32 = 1 << 2
	rp1PadPullUp      uint32 = 1 << 3
	rp1PadInputEnable uint32 = 1 << 6
	rp1PadOutDisable  uint32 = 1 << 7
)

// rp1Mem drives the RP1 I/O controller of the Raspberry Pi 5. mem is nil
// when the register file is a plain heap slice (tests).
type rp1Mem struct {
	mem  mmap.MMap
	regs []uint32

	// Per-pin spinlock flags; only the pin-private CTRL and PAD words need
	// read-modify-write.
	locks [64]atomic.Bool
}

func openRP1Mem() (*rp1Mem, error) {
	f, err := os.OpenFile("/dev/gpiomem0", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("gpio: /dev/gpiomem0: %w", ErrPermissionDenied)
		}
		return nil, fmt.Errorf("gpio: opening /dev/gpiomem0: %w", err)
	}
	m, mapErr := mmap.MapRegion(f, rp1MemLength, mmap.RDWR, 0, 0)
	f.Close()
	if mapErr != nil {
		return nil, fmt.Errorf("gpio: mapping /dev/gpiomem0: %w", mapErr)
	}
	return &rp1Mem{
		mem:  m,
		regs: unsafe.Slice((*uint32)(unsafe.Pointer(&m[0])), len(m)/4),
	}, nil
}

// rp1Bank splits a pin number into its bank and the bit position within
// that bank's registers: bank 0 carries GPIO 0-27, bank 1 GPIO 28-33 and
// bank 2 the rest.
func rp1Bank(pin uint8) (uint32, uint32) {
	switch {
	case pin < 28:
		return 0, uint32(pin)
	case pin < 34:
		return 1, uint32(pin - 28)
	}
	return 2, uint32(pin - 34)
}

func rp1CtrlWord(bank, bit uint32) uint32 {
	return (rp1IoBase + bank*rp1BankStep + bit*8 + 4) / 4
}

func rp1RioWord(bank, reg uint32) uint32 {
	return (rp1RioBase + bank*rp1BankStep + reg) / 4
}

func rp1PadWord(bank, bit uint32) uint32 {
	return (rp1PadsBase + bank*rp1BankStep + 4 + bit*4) / 4
}

func (m *rp1Mem) read(word uint32) uint32 {
	return atomic.LoadUint32(&m.regs[word])
}

func (m *rp1Mem) write(word uint32, value uint32) {
	atomic.StoreUint32(&m.regs[word], value)
}

func (m *rp1Mem) lockPin(pin uint8) {
	for !m.locks[pin].CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (m *rp1Mem) unlockPin(pin uint8) {
	m.locks[pin].Store(false)
}

func (m *rp1Mem) Mode(pin uint8) Mode {
	bank, bit := rp1Bank(pin)
	fsel := m.read(rp1CtrlWord(bank, bit)) & rp1FselMask
	switch {
	case fsel == rp1FselRio:
		if m.read(rp1RioWord(bank, rp1RioOe))>>bit&1 == 1 {
			return Output
		}
		return Input
	case fsel <= 8:
		return Alt0 + Mode(fsel)
	}
	// The null function and reserved selectors read back as Input.
	return Input
}

func (m *rp1Mem) SetMode(pin uint8, mode Mode) {
	bank, bit := rp1Bank(pin)
	var fsel uint32
	switch {
	case mode == Input || mode == Output:
		fsel = rp1FselRio
	case mode >= Alt0 && mode <= Alt8:
		fsel = uint32(mode - Alt0)
	default:
		return
	}

	m.lockPin(pin)
	ctrl := rp1CtrlWord(bank, bit)
	v := m.read(ctrl)
	m.write(ctrl, v&^rp1FselMask|fsel)
	// Route the receiver and the driver through the pad unconditionally;
	// rio OE decides whether the pin actually drives.
	pad := rp1PadWord(bank, bit)
	v = m.read(pad)
	m.write(pad, v&^rp1PadOutDisable|rp1PadInputEnable)
	m.unlockPin(pin)

	switch mode {
	case Output:
		m.write(rp1RioWord(bank, rp1RioOe+rp1SetAlias), 1<<bit)
	case Input:
		m.write(rp1RioWord(bank, rp1RioOe+rp1ClrAlias), 1<<bit)
	}
}

func (m *rp1Mem) Level(pin uint8) Level {
	bank, bit := rp1Bank(pin)
	return Level(m.read(rp1RioWord(bank, rp1RioIn))>>bit&1 == 1)
}

func (m *rp1Mem) SetHigh(pin uint8) {
	bank, bit := rp1Bank(pin)
	m.write(rp1RioWord(bank, rp1RioOut+rp1SetAlias), 1<<bit)
}

func (m *rp1Mem) SetLow(pin uint8) {
	bank, bit := rp1Bank(pin)
	m.write(rp1RioWord(bank, rp1RioOut+rp1ClrAlias), 1<<bit)
}

func (m *rp1Mem) Pull(pin uint8) (Pull, bool) {
	bank, bit := rp1Bank(pin)
	v := m.read(rp1PadWord(bank, bit))
	switch {
	case v&rp1PadPullUp != 0:
		return PullUp, true
	case v&rp1PadPullDown != 0:
		return PullDown, true
	}
	return PullOff, true
}

func (m *rp1Mem) SetPull(pin uint8, pull Pull) {
	bank, bit := rp1Bank(pin)
	var bits uint32
	switch pull {
	case PullUp:
		bits = rp1PadPullUp
	case PullDown:
		bits = rp1PadPullDown
	}
	m.lockPin(pin)
	pad := rp1PadWord(bank, bit)
	v := m.read(pad)
	m.write(pad, v&^(rp1PadPullUp|rp1PadPullDown)|bits)
	m.unlockPin(pin)
}

func (m *rp1Mem) Close() error {
	if m.mem == nil {
		return nil
	}
	err := m.mem.Unmap()
	m.mem = nil
	m.regs = nil
	return err
}
