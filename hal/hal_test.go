// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package hal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"
	"periph.io/x/conn/v3/spi"
)

func TestPwmPulse(t *testing.T) {
	assert.Equal(t, time.Millisecond, pwmPulse(time.Millisecond, gpio.DutyMax))
	assert.Equal(t, 500*time.Microsecond, pwmPulse(time.Millisecond, gpio.DutyHalf))
	assert.Equal(t, time.Duration(0), pwmPulse(time.Millisecond, 0))
	// Periods past the int64 multiplication range still scale.
	assert.Equal(t, 50*time.Second, pwmPulse(100*time.Second, gpio.DutyHalf))
}

func TestPinValidation(t *testing.T) {
	p := &Pin{}
	assert.Error(t, p.PWM(gpio.DutyMax+1, physic.KiloHertz))
	assert.Error(t, p.PWM(-1, physic.KiloHertz))
	assert.Error(t, p.PWM(gpio.DutyHalf, 0))
	assert.Error(t, p.SetFunc("SPI0_MOSI"))
	assert.False(t, p.WaitForEdge(time.Millisecond), "unarmed pin reports no edge")
}

func TestPinDefaults(t *testing.T) {
	p := &Pin{pull: gpio.PullNoChange}
	assert.Equal(t, gpio.PullNoChange, p.Pull())
	assert.Equal(t, gpio.PullNoChange, p.DefaultPull())
	assert.Equal(t, []pin.Func{gpio.IN, gpio.OUT}, p.SupportedFuncs())
}

func TestPacketSegments(t *testing.T) {
	w := []byte{0x9f}
	r := make([]byte, 3)
	segs := packetSegments([]spi.Packet{
		{W: w, KeepCS: true},
		{W: w, R: r, BitsPerWord: 8},
	})
	assert.Len(t, segs, 2)
	assert.False(t, segs[0].CsChange, "KeepCS holds chip select between segments")
	assert.False(t, segs[1].CsChange, "final segment releases chip select")
	assert.Equal(t, w, segs[0].Write)
	assert.Equal(t, r, segs[1].Read)
	assert.Equal(t, uint8(8), segs[1].BitsPerWord)

	segs = packetSegments([]spi.Packet{
		{W: w},
		{R: r, KeepCS: true},
	})
	assert.True(t, segs[0].CsChange, "released chip select between segments")
	assert.True(t, segs[1].CsChange, "inverted on the final segment to stay asserted")
}

func TestConnectValidation(t *testing.T) {
	p := &SPIPort{}
	_, err := p.Connect(10*physic.Hertz, spi.Mode0, 8)
	assert.ErrorContains(t, err, "minimum is 100Hz")
	_, err = p.Connect(2*physic.GigaHertz, spi.Mode0, 8)
	assert.Error(t, err)
	_, err = p.Connect(physic.MegaHertz, spi.Mode0, 0)
	assert.Error(t, err)
	_, err = p.Connect(physic.MegaHertz, spi.Mode0|spi.NoCS, 8)
	assert.ErrorContains(t, err, "NoCS")
	_, err = p.Connect(physic.MegaHertz, spi.Mode0|spi.HalfDuplex, 8)
	assert.ErrorContains(t, err, "HalfDuplex")

	assert.Error(t, p.LimitSpeed(physic.Hertz))
	assert.NoError(t, p.LimitSpeed(physic.MegaHertz))
}

func TestI2CSetSpeedIsFixed(t *testing.T) {
	b := &I2CBus{}
	err := b.SetSpeed(400 * physic.KiloHertz)
	assert.ErrorContains(t, err, "dtparam=i2c_arm_baudrate=400000")
}
