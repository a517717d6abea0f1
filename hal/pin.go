// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package hal

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"

	rgpio "periph.io/x/raspi/gpio"
)

// WaitForEdge polls in slices this long so Halt is noticed without an
// extra wakeup channel into the interrupt engine.
const edgePollSlice = 100 * time.Millisecond

// Pin exposes an owned I/O pin as a conn/v3 gpio.PinIO.
//
// Halt may be called from any goroutine; everything else follows the
// underlying handle's single-goroutine rule.
type Pin struct {
	io   *rgpio.IOPin
	name string

	mu        sync.Mutex
	edge      gpio.Edge
	pull      gpio.Pull
	pwmActive bool
	halted    atomic.Bool
}

// NewPin wraps an I/O pin handle. The handle stays owned by the caller
// and is released through Close.
func NewPin(io *rgpio.IOPin) *Pin {
	return &Pin{
		io:   io,
		name: fmt.Sprintf("GPIO%d", io.Number()),
		pull: gpio.PullNoChange,
	}
}

func (p *Pin) String() string {
	return fmt.Sprintf("%s(%d)", p.name, p.io.Number())
}

// Name returns the pin name in BCM numbering.
func (p *Pin) Name() string { return p.name }

// Number returns the BCM pin number.
func (p *Pin) Number() int { return int(p.io.Number()) }

// Function implements pin.Pin.
func (p *Pin) Function() string { return string(p.Func()) }

// Func implements pin.PinFunc.
func (p *Pin) Func() pin.Func {
	switch mode := p.io.Mode(); mode {
	case rgpio.Input:
		if p.io.Read() == rgpio.High {
			return gpio.IN_HIGH
		}
		return gpio.IN_LOW
	case rgpio.Output:
		if p.io.Read() == rgpio.High {
			return gpio.OUT_HIGH
		}
		return gpio.OUT_LOW
	default:
		return pin.Func(strings.ToUpper(mode.String()))
	}
}

// SupportedFuncs implements pin.PinFunc.
func (p *Pin) SupportedFuncs() []pin.Func {
	return []pin.Func{gpio.IN, gpio.OUT}
}

// SetFunc implements pin.PinFunc.
func (p *Pin) SetFunc(f pin.Func) error {
	switch f {
	case gpio.IN:
		return p.In(gpio.PullNoChange, gpio.NoEdge)
	case gpio.OUT_HIGH:
		return p.Out(gpio.High)
	case gpio.OUT, gpio.OUT_LOW:
		return p.Out(gpio.Low)
	default:
		return fmt.Errorf("hal: unsupported function %q", f)
	}
}

// Halt interrupts a pending WaitForEdge and stops the PWM worker if one
// is running. The pin keeps its mode.
func (p *Pin) Halt() error {
	p.halted.Store(true)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopPwm()
}

// In configures the pin as an input. edge arms edge detection for
// WaitForEdge; gpio.PullNoChange leaves the resistors alone.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.stopPwm(); err != nil {
		return err
	}
	p.io.SetMode(rgpio.Input)
	switch pull {
	case gpio.PullNoChange:
	case gpio.Float:
		p.io.SetPull(rgpio.PullOff)
	case gpio.PullDown:
		p.io.SetPull(rgpio.PullDown)
	case gpio.PullUp:
		p.io.SetPull(rgpio.PullUp)
	default:
		return fmt.Errorf("hal: unsupported pull %s", pull)
	}
	p.pull = pull

	if edge == gpio.NoEdge {
		if p.edge != gpio.NoEdge {
			p.edge = gpio.NoEdge
			return pkgerrors.Wrap(p.io.ClearInterrupt(), "hal: disarming edge detection")
		}
		return nil
	}
	var trigger rgpio.Trigger
	switch edge {
	case gpio.RisingEdge:
		trigger = rgpio.TriggerRisingEdge
	case gpio.FallingEdge:
		trigger = rgpio.TriggerFallingEdge
	case gpio.BothEdges:
		trigger = rgpio.TriggerBoth
	default:
		return fmt.Errorf("hal: unsupported edge %s", edge)
	}
	if err := p.io.SetInterrupt(trigger, 0); err != nil {
		return pkgerrors.Wrap(err, "hal: arming edge detection")
	}
	p.edge = edge
	return nil
}

// Read returns the pin level.
func (p *Pin) Read() gpio.Level {
	return gpio.Level(p.io.Read() == rgpio.High)
}

// WaitForEdge blocks until an edge armed by In fires. A negative timeout
// blocks indefinitely; false means timeout, Halt or an unarmed pin.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	if p.edge == gpio.NoEdge {
		return false
	}
	p.halted.Store(false)
	remaining := timeout
	for {
		slice := edgePollSlice
		if timeout >= 0 && remaining < slice {
			slice = remaining
		}
		ev, err := p.io.PollInterrupt(false, slice)
		if err != nil {
			return false
		}
		if ev != nil {
			return true
		}
		if p.halted.Load() {
			return false
		}
		if timeout >= 0 {
			remaining -= slice
			if remaining <= 0 {
				return false
			}
		}
	}
}

// Pull returns the bias applied by the last In call. The pull registers
// cannot be read back on pre-BCM2711 boards, so this is tracked, not
// measured.
func (p *Pin) Pull() gpio.Pull {
	return p.pull
}

// DefaultPull implements gpio.PinIn. The power-on default is per-pin and
// not discoverable at runtime.
func (p *Pin) DefaultPull() gpio.Pull {
	return gpio.PullNoChange
}

// Out configures the pin as an output driving l. Edge detection and PWM
// from earlier configurations are stopped.
func (p *Pin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.stopPwm(); err != nil {
		return err
	}
	if p.edge != gpio.NoEdge {
		p.edge = gpio.NoEdge
		if err := p.io.ClearInterrupt(); err != nil {
			return pkgerrors.Wrap(err, "hal: disarming edge detection")
		}
	}
	if p.io.Mode() != rgpio.Output {
		p.io.SetMode(rgpio.Output)
	}
	level := rgpio.Low
	if l {
		level = rgpio.High
	}
	p.io.Write(level)
	return nil
}

// PWM emits a PWM signal on the pin from a software worker. The achievable
// frequency tops out in the low hundreds of kilohertz; duty resolution
// degrades as the frequency rises.
func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	if !duty.Valid() {
		return fmt.Errorf("hal: invalid duty %s", duty)
	}
	if f <= 0 {
		return fmt.Errorf("hal: invalid frequency %s", f)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.edge != gpio.NoEdge {
		p.edge = gpio.NoEdge
		if err := p.io.ClearInterrupt(); err != nil {
			return pkgerrors.Wrap(err, "hal: disarming edge detection")
		}
	}
	if p.io.Mode() != rgpio.Output {
		p.io.SetMode(rgpio.Output)
	}
	period := f.Period()
	if err := p.io.SetPwm(period, pwmPulse(period, duty)); err != nil {
		return pkgerrors.Wrap(err, "hal: starting pwm")
	}
	p.pwmActive = true
	return nil
}

// pwmPulse scales a period by a 24-bit duty. float64 keeps the math exact
// for any representable period; int64 would overflow past ~10s.
func pwmPulse(period time.Duration, duty gpio.Duty) time.Duration {
	return time.Duration(float64(period) * float64(duty) / float64(gpio.DutyMax))
}

// stopPwm runs under mu.
func (p *Pin) stopPwm() error {
	if !p.pwmActive {
		return nil
	}
	p.pwmActive = false
	return pkgerrors.Wrap(p.io.ClearPwm(), "hal: stopping pwm")
}

// Close releases the underlying pin handle, restoring its prior state
// unless the handle was told otherwise.
func (p *Pin) Close() error {
	return p.io.Close()
}

var _ gpio.PinIn = &Pin{}
var _ gpio.PinOut = &Pin{}
var _ gpio.PinIO = &Pin{}
var _ pin.PinFunc = &Pin{}
