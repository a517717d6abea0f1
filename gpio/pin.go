// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// pinCore is the state shared by a pin's successive handle flavors. A
// conversion hands the core to the new handle; the ownership flag in the
// controller is never copied, it simply stays set until the core closes.
type pinCore struct {
	s   *gpioState
	num uint8

	origMode    Mode
	origPull    Pull
	pullChanged bool
	lastLevel   Level
	resetOnDrop bool

	closed atomic.Bool

	pwm       *softPwm
	async     *asyncInterrupt
	syncArmed bool
}

// Pin is an owned but unconfigured pin. Convert it with one of the Into
// methods to get a typed handle; the receiver must not be used afterwards.
//
// Handles are not safe for concurrent use by multiple goroutines.
type Pin struct {
	core *pinCore
}

func newPin(s *gpioState, num uint8) *Pin {
	c := &pinCore{s: s, num: num, resetOnDrop: true}
	c.origMode = s.mem.Mode(num)
	// Pre-BCM2711 pull registers are write-only; the snapshot degrades to
	// no bias there.
	if pull, ok := s.mem.Pull(num); ok {
		c.origPull = pull
	}
	c.lastLevel = s.mem.Level(num)
	return &Pin{core: c}
}

// Number returns the BCM pin number.
func (p *Pin) Number() uint8 { return p.core.num }

// Mode returns the pin's current function.
func (p *Pin) Mode() Mode { return p.core.s.mem.Mode(p.core.num) }

// Read returns the pin's logic level.
func (p *Pin) Read() Level { return p.core.s.mem.Level(p.core.num) }

// SetResetOnDrop controls whether Close restores the mode and pull the pin
// had when it was acquired. Enabled by default.
func (p *Pin) SetResetOnDrop(reset bool) { p.core.resetOnDrop = reset }

// ResetOnDrop reports whether Close will restore the pin's original state.
func (p *Pin) ResetOnDrop() bool { return p.core.resetOnDrop }

// Close releases the pin without configuring it.
func (p *Pin) Close() error { return p.core.closeInternal() }

// IntoInput configures the pin as an input with the bias resistors
// disabled and returns the typed handle.
func (p *Pin) IntoInput() *InputPin { return p.intoInput(PullOff) }

// IntoInputPullup configures the pin as an input with the pull-up enabled.
func (p *Pin) IntoInputPullup() *InputPin { return p.intoInput(PullUp) }

// IntoInputPulldown configures the pin as an input with the pull-down
// enabled.
func (p *Pin) IntoInputPulldown() *InputPin { return p.intoInput(PullDown) }

func (p *Pin) intoInput(pull Pull) *InputPin {
	c := p.core
	c.s.mem.SetMode(c.num, Input)
	c.setPull(pull)
	return &InputPin{core: c}
}

// IntoOutput configures the pin as an output, leaving its level alone.
func (p *Pin) IntoOutput() *OutputPin {
	c := p.core
	c.s.mem.SetMode(c.num, Output)
	c.lastLevel = c.s.mem.Level(c.num)
	return &OutputPin{core: c}
}

// IntoOutputLow configures the pin as an output driving low. The level is
// latched before the mode switches so the pin never glitches high.
func (p *Pin) IntoOutputLow() *OutputPin { return p.intoOutput(Low) }

// IntoOutputHigh configures the pin as an output driving high.
func (p *Pin) IntoOutputHigh() *OutputPin { return p.intoOutput(High) }

func (p *Pin) intoOutput(level Level) *OutputPin {
	c := p.core
	c.write(level)
	c.s.mem.SetMode(c.num, Output)
	return &OutputPin{core: c}
}

// IntoIO configures the pin with the given mode and returns a handle that
// can switch modes and use the input and output operations freely.
func (p *Pin) IntoIO(mode Mode) *IOPin {
	c := p.core
	c.s.mem.SetMode(c.num, mode)
	c.lastLevel = c.s.mem.Level(c.num)
	return &IOPin{core: c}
}

func (c *pinCore) write(level Level) {
	if level == High {
		c.s.mem.SetHigh(c.num)
	} else {
		c.s.mem.SetLow(c.num)
	}
	c.lastLevel = level
}

func (c *pinCore) setPull(pull Pull) {
	c.s.mem.SetPull(c.num, pull)
	if pull != c.origPull {
		c.pullChanged = true
	}
}

// closeInternal tears the pin down: workers first, then the restore pass,
// then the ownership flag and the controller reference. It always runs to
// completion; restore problems are returned but never abort the release.
func (c *pinCore) closeInternal() error {
	if c.closed.Swap(true) {
		return nil
	}
	var err error
	if c.pwm != nil {
		err = multierr.Append(err, c.pwm.stopAndJoin())
		c.pwm = nil
	}
	if c.async != nil {
		err = multierr.Append(err, c.async.stop())
		c.async = nil
	}
	if c.syncArmed {
		err = multierr.Append(err, c.s.irq.clearInterrupt(c.num))
		c.syncArmed = false
	}
	if c.resetOnDrop {
		if c.pullChanged {
			c.s.mem.SetPull(c.num, c.origPull)
		}
		if c.s.mem.Mode(c.num) != c.origMode {
			c.s.mem.SetMode(c.num, c.origMode)
		}
	}
	c.s.owned[c.num].Store(false)
	c.s.decref()
	if err != nil {
		logrus.WithField("pin", c.num).WithError(err).Debug("gpio: pin released with errors")
	}
	return err
}
