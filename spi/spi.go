// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package spi

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Bus selects one of the Pi's SPI buses. Which ones exist depends on the
// model and the device tree overlays in use; SPI0 is enabled by default.
type Bus uint8

const (
	Bus0 Bus = iota
	Bus1
	Bus2
	Bus3
	Bus4
	Bus5
	Bus6
)

// SlaveSelect picks the chip-select line driven during transfers.
type SlaveSelect uint8

const (
	Ss0 SlaveSelect = iota
	Ss1
	Ss2
)

// Mode is the clock polarity and phase pairing, SPI mode 0 through 3.
// Most slaves use Mode0.
type Mode uint8

const (
	Mode0 Mode = iota
	Mode1
	Mode2
	Mode3
)

// BitOrder is the bit ordering within a word on the wire.
type BitOrder uint8

const (
	MsbFirst BitOrder = iota
	LsbFirst
)

// Segment is one transfer in a multi-segment transaction. Read and Write
// may be used alone for half-duplex segments or together, with equal
// lengths, for full duplex. Zero-valued settings keep the device
// defaults; CsChange deasserts chip select once the segment completes.
type Segment struct {
	Read        []byte
	Write       []byte
	ClockHz     uint32
	DelayUsecs  uint16
	BitsPerWord uint8
	CsChange    bool
}

// Spi is a master on one of the Pi's SPI buses, backed by /dev/spidevB.S.
//
// A Spi is not safe for concurrent use.
type Spi struct {
	f   *os.File
	bus Bus
	ss  SlaveSelect
}

// New opens /dev/spidev<bus>.<ss> and configures the clock speed and mode.
func New(bus Bus, ss SlaveSelect, clockHz uint32, mode Mode) (*Spi, error) {
	if mode > Mode3 {
		return nil, pkgerrors.Errorf("spi: invalid mode %d", mode)
	}
	path := fmt.Sprintf("/dev/spidev%d.%d", bus, ss)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "opening %s", path)
	}
	s := &Spi{f: f, bus: bus, ss: ss}

	m := uint8(mode)
	if err := devIoctl(f.Fd(), spiIocWrMode, unsafe.Pointer(&m)); err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(err, "setting spi mode")
	}
	if err := devIoctl(f.Fd(), spiIocWrMaxSpeedHz, unsafe.Pointer(&clockHz)); err != nil {
		f.Close()
		return nil, pkgerrors.Wrap(err, "setting spi clock speed")
	}

	logrus.WithFields(logrus.Fields{
		"bus":   bus,
		"ss":    ss,
		"clock": clockHz,
		"mode":  mode,
	}).Debug("spi: bus opened")
	return s, nil
}

// Bus returns the bus this handle is attached to.
func (s *Spi) Bus() Bus { return s.bus }

// SlaveSelect returns the chip-select line this handle drives.
func (s *Spi) SlaveSelect() SlaveSelect { return s.ss }

// Read receives len(buf) bytes while sending zeroes.
func (s *Spi) Read(buf []byte) (int, error) {
	n, err := s.f.Read(buf)
	return n, pkgerrors.Wrap(err, "spi read")
}

// Write sends buf, discarding whatever the slave returns.
func (s *Spi) Write(buf []byte) (int, error) {
	n, err := s.f.Write(buf)
	return n, pkgerrors.Wrap(err, "spi write")
}

// Transfer sends write while receiving into read in one full-duplex
// segment and returns the number of bytes clocked. Either slice may be
// empty for a half-duplex transfer; when both are set their lengths must
// match.
func (s *Spi) Transfer(read, write []byte) (int, error) {
	n := max(len(read), len(write))
	if n == 0 {
		return 0, nil
	}
	if err := s.TransferSegments([]Segment{{Read: read, Write: write}}); err != nil {
		return 0, err
	}
	return n, nil
}

// TransferSegments runs a transaction of consecutive segments without
// releasing chip select in between, except where a segment asks for it.
func (s *Spi) TransferSegments(segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}
	xfers := make([]spiIocTransfer, len(segments))
	for i := range segments {
		seg := &segments[i]
		if len(seg.Read) > 0 && len(seg.Write) > 0 && len(seg.Read) != len(seg.Write) {
			return pkgerrors.Errorf("spi: segment %d: read length %d does not match write length %d",
				i, len(seg.Read), len(seg.Write))
		}
		x := &xfers[i]
		if len(seg.Write) > 0 {
			x.txBuf = uint64(uintptr(unsafe.Pointer(&seg.Write[0])))
		}
		if len(seg.Read) > 0 {
			x.rxBuf = uint64(uintptr(unsafe.Pointer(&seg.Read[0])))
		}
		x.len = uint32(max(len(seg.Read), len(seg.Write)))
		x.speedHz = seg.ClockHz
		x.delayUsecs = seg.DelayUsecs
		x.bitsPerWord = seg.BitsPerWord
		if seg.CsChange {
			x.csChange = 1
		}
	}
	err := devIoctl(s.f.Fd(), spiIocMessage(len(xfers)), unsafe.Pointer(&xfers[0]))
	runtime.KeepAlive(segments)
	runtime.KeepAlive(xfers)
	if err != nil {
		return pkgerrors.Wrapf(err, "transferring %d segments", len(xfers))
	}
	return nil
}

// Mode returns the device's current mode.
func (s *Spi) Mode() (Mode, error) {
	var m uint8
	if err := devIoctl(s.f.Fd(), spiIocRdMode, unsafe.Pointer(&m)); err != nil {
		return 0, pkgerrors.Wrap(err, "reading spi mode")
	}
	return Mode(m & 0x3), nil
}

// SetMode changes the clock polarity and phase.
func (s *Spi) SetMode(mode Mode) error {
	if mode > Mode3 {
		return pkgerrors.Errorf("spi: invalid mode %d", mode)
	}
	m := uint8(mode)
	if err := devIoctl(s.f.Fd(), spiIocWrMode, unsafe.Pointer(&m)); err != nil {
		return pkgerrors.Wrap(err, "setting spi mode")
	}
	return nil
}

// BitOrder returns the device's current bit ordering.
func (s *Spi) BitOrder() (BitOrder, error) {
	var lsb uint8
	if err := devIoctl(s.f.Fd(), spiIocRdLsbFirst, unsafe.Pointer(&lsb)); err != nil {
		return 0, pkgerrors.Wrap(err, "reading spi bit order")
	}
	if lsb != 0 {
		return LsbFirst, nil
	}
	return MsbFirst, nil
}

// SetBitOrder changes the bit ordering. The BCM283x SPI blocks only
// shift MSB first; the driver rejects LsbFirst there.
func (s *Spi) SetBitOrder(order BitOrder) error {
	var lsb uint8
	if order == LsbFirst {
		lsb = 1
	}
	if err := devIoctl(s.f.Fd(), spiIocWrLsbFirst, unsafe.Pointer(&lsb)); err != nil {
		return pkgerrors.Wrap(err, "setting spi bit order")
	}
	return nil
}

// BitsPerWord returns the device's word size; 0 means the default of 8.
func (s *Spi) BitsPerWord() (uint8, error) {
	var bits uint8
	if err := devIoctl(s.f.Fd(), spiIocRdBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		return 0, pkgerrors.Wrap(err, "reading spi word size")
	}
	return bits, nil
}

// SetBitsPerWord changes the word size.
func (s *Spi) SetBitsPerWord(bits uint8) error {
	if err := devIoctl(s.f.Fd(), spiIocWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		return pkgerrors.Wrap(err, "setting spi word size")
	}
	return nil
}

// ClockSpeed returns the device's maximum clock speed in hertz.
func (s *Spi) ClockSpeed() (uint32, error) {
	var hz uint32
	if err := devIoctl(s.f.Fd(), spiIocRdMaxSpeedHz, unsafe.Pointer(&hz)); err != nil {
		return 0, pkgerrors.Wrap(err, "reading spi clock speed")
	}
	return hz, nil
}

// SetClockSpeed changes the maximum clock speed in hertz. The driver
// rounds down to the nearest speed the clock divider can produce.
func (s *Spi) SetClockSpeed(clockHz uint32) error {
	if err := devIoctl(s.f.Fd(), spiIocWrMaxSpeedHz, unsafe.Pointer(&clockHz)); err != nil {
		return pkgerrors.Wrap(err, "setting spi clock speed")
	}
	return nil
}

// Close releases the bus handle.
func (s *Spi) Close() error {
	return s.f.Close()
}
