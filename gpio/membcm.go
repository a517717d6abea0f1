// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"

	"periph.io/x/raspi/boardinfo"
)

// Word offsets of the BCM283x GPIO registers within the GPIO block.
const (
	bcmFsel0   = 0  // GPFSEL0, 3 bits per pin, 10 pins per word
	bcmSet0    = 7  // GPSET0
	bcmClr0    = 10 // GPCLR0
	bcmLev0    = 13 // GPLEV0
	bcmPud     = 37 // GPPUD
	bcmPudClk0 = 38 // GPPUDCLK0
	bcmPupPdn0 = 57 // GPIO_PUP_PDN_CNTRL_REG0, BCM2711 only

	bcmMemLength = 4096

	// The datasheet asks for 150 cycles of set-up and hold around the pull
	// clock strobe; 5µs covers that on every supported core clock.
	bcmPullSetup = 5 * time.Microsecond
)

// Function-select encodings. The 3-bit field cannot express Alt6-Alt8,
// which only exist on the RP1.
var bcmModeToFsel = map[Mode]uint32{
	Input:  0b000,
	Output: 0b001,
	Alt0:   0b100,
	Alt1:   0b101,
	Alt2:   0b110,
	Alt3:   0b111,
	Alt4:   0b011,
	Alt5:   0b010,
}

var bcmFselToMode = [8]Mode{Input, Output, Alt5, Alt4, Alt0, Alt1, Alt2, Alt3}

// bcmMem drives the BCM283x GPIO block. mem is nil when the register file
// is a plain heap slice, which the tests use to verify encodings.
type bcmMem struct {
	mem    mmap.MMap
	regs   []uint32
	is2711 bool

	// One spinlock flag per register word serializes read-modify-write.
	locks  [64]atomic.Bool
	pullMu sync.Mutex
}

func openBCMMem(info *boardinfo.DeviceInfo) (*bcmMem, error) {
	is2711 := info.SoC == boardinfo.BCM2711

	// /dev/gpiomem exposes just the GPIO block and is accessible to the
	// gpio group, so it is preferred over /dev/mem.
	f, err := os.OpenFile("/dev/gpiomem", os.O_RDWR|os.O_SYNC, 0)
	if err == nil {
		m, mapErr := mmap.MapRegion(f, bcmMemLength, mmap.RDWR, 0, 0)
		f.Close()
		if mapErr != nil {
			return nil, fmt.Errorf("gpio: mapping /dev/gpiomem: %w", mapErr)
		}
		return newBCMMem(m, is2711), nil
	}
	gpiomemErr := err

	f, err = os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		if os.IsPermission(gpiomemErr) || os.IsPermission(err) {
			return nil, fmt.Errorf("gpio: /dev/gpiomem: %w", ErrPermissionDenied)
		}
		return nil, fmt.Errorf("gpio: opening /dev/gpiomem: %w", gpiomemErr)
	}
	base := info.PeripheralBase
	if b, ok := dtRangesBase(); ok {
		base = b
	}
	m, mapErr := mmap.MapRegion(f, bcmMemLength, mmap.RDWR, 0, int64(base+info.GpioOffset))
	f.Close()
	if mapErr != nil {
		return nil, fmt.Errorf("gpio: mapping /dev/mem at %#x: %w", base+info.GpioOffset, mapErr)
	}
	return newBCMMem(m, is2711), nil
}

func newBCMMem(m mmap.MMap, is2711 bool) *bcmMem {
	return &bcmMem{
		mem:    m,
		regs:   unsafe.Slice((*uint32)(unsafe.Pointer(&m[0])), len(m)/4),
		is2711: is2711,
	}
}

// dtRangesBase extracts the peripheral bus base from the device tree. The
// layout shifted between generations: the address is in the second cell,
// except on the BCM2711 where that cell is zero and the third one holds it.
func dtRangesBase() (uint64, bool) {
	b, err := os.ReadFile("/proc/device-tree/soc/ranges")
	if err != nil || len(b) < 8 {
		return 0, false
	}
	base := uint64(binary.BigEndian.Uint32(b[4:8]))
	if base == 0 && len(b) >= 12 {
		base = uint64(binary.BigEndian.Uint32(b[8:12]))
	}
	return base, base != 0
}

func (m *bcmMem) read(word uint32) uint32 {
	return atomic.LoadUint32(&m.regs[word])
}

func (m *bcmMem) write(word uint32, value uint32) {
	atomic.StoreUint32(&m.regs[word], value)
}

func (m *bcmMem) lockWord(word uint32) {
	for !m.locks[word].CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (m *bcmMem) unlockWord(word uint32) {
	m.locks[word].Store(false)
}

func (m *bcmMem) Mode(pin uint8) Mode {
	v := m.read(bcmFsel0 + uint32(pin)/10)
	return bcmFselToMode[(v>>((uint32(pin)%10)*3))&0b111]
}

func (m *bcmMem) SetMode(pin uint8, mode Mode) {
	fsel, ok := bcmModeToFsel[mode]
	if !ok {
		return
	}
	word := bcmFsel0 + uint32(pin)/10
	shift := (uint32(pin) % 10) * 3
	m.lockWord(word)
	v := m.read(word)
	v = v&^(0b111<<shift) | fsel<<shift
	m.write(word, v)
	m.unlockWord(word)
}

func (m *bcmMem) Level(pin uint8) Level {
	return Level(m.read(bcmLev0+uint32(pin)/32)>>(uint32(pin)%32)&1 == 1)
}

func (m *bcmMem) SetHigh(pin uint8) {
	m.write(bcmSet0+uint32(pin)/32, 1<<(uint32(pin)%32))
}

func (m *bcmMem) SetLow(pin uint8) {
	m.write(bcmClr0+uint32(pin)/32, 1<<(uint32(pin)%32))
}

func (m *bcmMem) Pull(pin uint8) (Pull, bool) {
	if !m.is2711 {
		// The GPPUD registers are write-only.
		return PullOff, false
	}
	v := m.read(bcmPupPdn0+uint32(pin)/16) >> ((uint32(pin) % 16) * 2) & 0b11
	switch v {
	case 1:
		return PullUp, true
	case 2:
		return PullDown, true
	}
	return PullOff, true
}

func (m *bcmMem) SetPull(pin uint8, pull Pull) {
	if m.is2711 {
		m.setPull2711(pin, pull)
		return
	}
	m.setPullLegacy(pin, pull)
}

// setPullLegacy drives the clocked GPPUD/GPPUDCLK protocol: latch the bias
// code, strobe the pin's clock bit, then clear both. The global pull mutex
// is taken before the clock word's spinlock.
func (m *bcmMem) setPullLegacy(pin uint8, pull Pull) {
	word := bcmPudClk0 + uint32(pin)/32

	m.pullMu.Lock()
	defer m.pullMu.Unlock()
	m.lockWord(word)
	defer m.unlockWord(word)

	m.write(bcmPud, uint32(pull))
	time.Sleep(bcmPullSetup)
	m.write(word, 1<<(uint32(pin)%32))
	time.Sleep(bcmPullSetup)
	m.write(bcmPud, 0)
	m.write(word, 0)
}

// setPull2711 writes the readable 2-bit bias field. Note the up/down
// encoding is swapped relative to the GPPUD codes.
func (m *bcmMem) setPull2711(pin uint8, pull Pull) {
	var code uint32
	switch pull {
	case PullUp:
		code = 1
	case PullDown:
		code = 2
	}
	word := bcmPupPdn0 + uint32(pin)/16
	shift := (uint32(pin) % 16) * 2
	m.lockWord(word)
	v := m.read(word)
	v = v&^(0b11<<shift) | code<<shift
	m.write(word, v)
	m.unlockWord(word)
}

func (m *bcmMem) Close() error {
	if m.mem == nil {
		return nil
	}
	err := m.mem.Unmap()
	m.mem = nil
	m.regs = nil
	return err
}
