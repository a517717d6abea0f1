// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"fmt"
	"time"
)

// OutputPin is an owned pin configured as an output.
type OutputPin struct {
	core *pinCore
}

// Number returns the BCM pin number.
func (p *OutputPin) Number() uint8 { return p.core.num }

// SetLow drives the pin low.
func (p *OutputPin) SetLow() { p.core.write(Low) }

// SetHigh drives the pin high.
func (p *OutputPin) SetHigh() { p.core.write(High) }

// Write drives the pin to level.
func (p *OutputPin) Write(level Level) { p.core.write(level) }

// Toggle inverts the pin, judged against the last written level rather
// than the level register, so it composes with a running soft PWM.
func (p *OutputPin) Toggle() {
	if p.core.lastLevel == High {
		p.core.write(Low)
	} else {
		p.core.write(High)
	}
}

// IsSetLow reports whether the last written level was low.
func (p *OutputPin) IsSetLow() bool { return p.core.lastLevel == Low }

// IsSetHigh reports whether the last written level was high.
func (p *OutputPin) IsSetHigh() bool { return p.core.lastLevel == High }

// SetPwm starts software PWM with the given period and pulse width. A
// pulse width longer than the period is clamped to it. If PWM is already
// running the worker is reconfigured in place, taking effect at its next
// cycle.
func (p *OutputPin) SetPwm(period, pulseWidth time.Duration) error {
	return p.core.setPwm(period, pulseWidth)
}

// SetPwmFrequency starts software PWM from a frequency in hertz and a
// duty cycle between 0.0 and 1.0. Out-of-range duty cycles are clamped.
func (p *OutputPin) SetPwmFrequency(frequency, dutyCycle float64) error {
	return p.core.setPwmFrequency(frequency, dutyCycle)
}

// ClearPwm stops the PWM worker, waits for it to leave the pin low, and
// reports how it ended. Clearing a pin with no PWM running is a no-op.
func (p *OutputPin) ClearPwm() error { return p.core.clearPwm() }

// SetResetOnDrop controls whether Close restores the mode and pull the pin
// had when it was acquired. Enabled by default.
func (p *OutputPin) SetResetOnDrop(reset bool) { p.core.resetOnDrop = reset }

// ResetOnDrop reports whether Close will restore the pin's original state.
func (p *OutputPin) ResetOnDrop() bool { return p.core.resetOnDrop }

// Close stops any PWM worker, restores the pin's original state if
// enabled, and releases ownership. Close is idempotent.
func (p *OutputPin) Close() error { return p.core.closeInternal() }

func (c *pinCore) setPwm(period, pulseWidth time.Duration) error {
	if period < 0 || pulseWidth < 0 {
		return fmt.Errorf("gpio: pin %d: negative pwm period or pulse width", c.num)
	}
	if c.pwm != nil {
		c.pwm.reconfigure(period, pulseWidth)
		return nil
	}
	c.pwm = newSoftPwm(c.s, c.num, period, pulseWidth)
	return nil
}

func (c *pinCore) setPwmFrequency(frequency, dutyCycle float64) error {
	var period time.Duration
	if frequency > 0 {
		period = time.Duration(float64(time.Second) / frequency)
	}
	dutyCycle = max(0, min(1, dutyCycle))
	return c.setPwm(period, time.Duration(float64(period)*dutyCycle))
}

func (c *pinCore) clearPwm() error {
	if c.pwm == nil {
		return nil
	}
	w := c.pwm
	c.pwm = nil
	return w.stopAndJoin()
}
