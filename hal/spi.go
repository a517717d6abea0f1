// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package hal

import (
	"fmt"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	rspi "periph.io/x/raspi/spi"
)

// SPIPort exposes an open SPI device as a conn/v3 spi.PortCloser.
type SPIPort struct {
	s       *rspi.Spi
	maxFreq physic.Frequency
	conn    spiConn
}

// NewSPI wraps an open SPI handle.
func NewSPI(s *rspi.Spi) *SPIPort {
	p := &SPIPort{s: s}
	p.conn.s = s
	return p
}

func (p *SPIPort) String() string {
	return fmt.Sprintf("spidev%d.%d", p.s.Bus(), p.s.SlaveSelect())
}

// Connect implements spi.Port.
func (p *SPIPort) Connect(f physic.Frequency, m spi.Mode, bits int) (spi.Conn, error) {
	if f > physic.GigaHertz {
		return nil, fmt.Errorf("hal: invalid spi speed %s", f)
	}
	if f < 100*physic.Hertz {
		return nil, fmt.Errorf("hal: invalid spi speed %s; minimum is 100Hz, did you forget to multiply by physic.MegaHertz?", f)
	}
	if bits < 1 || bits > 32 {
		return nil, fmt.Errorf("hal: invalid bits per word %d", bits)
	}
	if m&spi.NoCS != 0 {
		return nil, fmt.Errorf("hal: spi.NoCS is not supported by the spidev driver")
	}
	if m&spi.HalfDuplex != 0 {
		return nil, fmt.Errorf("hal: spi.HalfDuplex is not supported, use Segment-level half duplex instead")
	}
	lsbFirst := m&spi.LSBFirst != 0
	m &^= spi.LSBFirst
	if m < 0 || m > 3 {
		return nil, fmt.Errorf("hal: unknown spi mode %d", m)
	}
	if err := p.s.SetMode(rspi.Mode(m)); err != nil {
		return nil, err
	}
	order := rspi.MsbFirst
	if lsbFirst {
		order = rspi.LsbFirst
	}
	if err := p.s.SetBitOrder(order); err != nil {
		return nil, err
	}
	if err := p.s.SetBitsPerWord(uint8(bits)); err != nil {
		return nil, err
	}
	if p.maxFreq > 0 && f > p.maxFreq {
		f = p.maxFreq
	}
	if err := p.s.SetClockSpeed(uint32(f / physic.Hertz)); err != nil {
		return nil, err
	}
	return &p.conn, nil
}

// LimitSpeed implements spi.Port. It caps the clock of subsequent
// Connect calls, typically because of wiring quality.
func (p *SPIPort) LimitSpeed(f physic.Frequency) error {
	if f < 100*physic.Hertz {
		return fmt.Errorf("hal: invalid spi speed %s", f)
	}
	p.maxFreq = f
	return nil
}

// Close releases the SPI handle.
func (p *SPIPort) Close() error {
	return p.s.Close()
}

// spiConn is the connection Connect returns. The spidev device carries a
// single slave, so the conn shares the port's handle.
type spiConn struct {
	s *rspi.Spi
}

func (c *spiConn) String() string {
	return fmt.Sprintf("spidev%d.%d", c.s.Bus(), c.s.SlaveSelect())
}

// Duplex implements conn.Conn.
func (c *spiConn) Duplex() conn.Duplex {
	return conn.Full
}

// Tx runs one full-duplex transfer. Either buffer may be nil.
func (c *spiConn) Tx(w, r []byte) error {
	_, err := c.s.Transfer(r, w)
	return err
}

// TxPackets runs the packets as one transaction, keeping chip select
// asserted between packets that ask for it.
func (c *spiConn) TxPackets(pkts []spi.Packet) error {
	return c.s.TransferSegments(packetSegments(pkts))
}

func packetSegments(pkts []spi.Packet) []rspi.Segment {
	segs := make([]rspi.Segment, len(pkts))
	for i, pkt := range pkts {
		// cs_change between segments deasserts chip select early; on the
		// final segment the kernel inverts it to mean "stay asserted
		// after the transaction".
		csChange := !pkt.KeepCS
		if i == len(pkts)-1 {
			csChange = pkt.KeepCS
		}
		segs[i] = rspi.Segment{
			Read:        pkt.R,
			Write:       pkt.W,
			BitsPerWord: pkt.BitsPerWord,
			CsChange:    csChange,
		}
	}
	return segs
}

var _ spi.PortCloser = &SPIPort{}
var _ spi.Conn = &spiConn{}
