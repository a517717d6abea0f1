// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"time"

	"go.uber.org/multierr"
)

// IOPin is an owned pin that can switch between modes while keeping
// ownership. It offers the input and output operations of the dedicated
// handles; it is on the caller to use the ones matching the current mode.
type IOPin struct {
	core *pinCore
}

// Number returns the BCM pin number.
func (p *IOPin) Number() uint8 { return p.core.num }

// Mode returns the pin's current function.
func (p *IOPin) Mode() Mode { return p.core.s.mem.Mode(p.core.num) }

// SetMode changes the pin's function without releasing ownership.
func (p *IOPin) SetMode(mode Mode) { p.core.s.mem.SetMode(p.core.num, mode) }

// SetPull configures the bias resistors.
func (p *IOPin) SetPull(pull Pull) { p.core.setPull(pull) }

// Read returns the pin's logic level.
func (p *IOPin) Read() Level { return p.core.s.mem.Level(p.core.num) }

// IsLow reports whether the pin reads low.
func (p *IOPin) IsLow() bool { return p.Read() == Low }

// IsHigh reports whether the pin reads high.
func (p *IOPin) IsHigh() bool { return p.Read() == High }

// SetLow drives the pin low.
func (p *IOPin) SetLow() { p.core.write(Low) }

// SetHigh drives the pin high.
func (p *IOPin) SetHigh() { p.core.write(High) }

// Write drives the pin to level.
func (p *IOPin) Write(level Level) { p.core.write(level) }

// Toggle inverts the pin, judged against the last written level.
func (p *IOPin) Toggle() {
	if p.core.lastLevel == High {
		p.core.write(Low)
	} else {
		p.core.write(High)
	}
}

// IsSetLow reports whether the last written level was low.
func (p *IOPin) IsSetLow() bool { return p.core.lastLevel == Low }

// IsSetHigh reports whether the last written level was high.
func (p *IOPin) IsSetHigh() bool { return p.core.lastLevel == High }

// SetInterrupt arms a synchronous interrupt; see InputPin.SetInterrupt.
func (p *IOPin) SetInterrupt(trigger Trigger, debounce time.Duration) error {
	if err := p.core.s.irq.setInterrupt(p.core.s, p.core.num, trigger, debounce); err != nil {
		return err
	}
	p.core.syncArmed = true
	return nil
}

// ClearInterrupt disarms the synchronous interrupt.
func (p *IOPin) ClearInterrupt() error {
	p.core.syncArmed = false
	return p.core.s.irq.clearInterrupt(p.core.num)
}

// PollInterrupt blocks until this pin reports an edge; see
// InputPin.PollInterrupt.
func (p *IOPin) PollInterrupt(reset bool, timeout time.Duration) (*Event, error) {
	_, ev, ok, err := p.core.s.irq.pollInterrupts(p.core.s, []uint8{p.core.num}, reset, timeout)
	if err != nil || !ok {
		return nil, err
	}
	return &ev, nil
}

// SetAsyncInterrupt installs callback to run on every matching edge; see
// InputPin.SetAsyncInterrupt.
func (p *IOPin) SetAsyncInterrupt(trigger Trigger, debounce time.Duration, callback func(Event)) error {
	var err error
	if p.core.async != nil {
		a := p.core.async
		p.core.async = nil
		err = a.stop()
	}
	a, aerr := newAsyncInterrupt(p.core.s, p.core.num, trigger, debounce, callback)
	if aerr != nil {
		return multierr.Append(err, aerr)
	}
	p.core.async = a
	return err
}

// ClearAsyncInterrupt stops the callback goroutine and waits for it.
func (p *IOPin) ClearAsyncInterrupt() error {
	if p.core.async == nil {
		return nil
	}
	a := p.core.async
	p.core.async = nil
	return a.stop()
}

// SetPwm starts or reconfigures software PWM; see OutputPin.SetPwm.
func (p *IOPin) SetPwm(period, pulseWidth time.Duration) error {
	return p.core.setPwm(period, pulseWidth)
}

// SetPwmFrequency starts software PWM from a frequency and duty cycle.
func (p *IOPin) SetPwmFrequency(frequency, dutyCycle float64) error {
	return p.core.setPwmFrequency(frequency, dutyCycle)
}

// ClearPwm stops the PWM worker and waits for it.
func (p *IOPin) ClearPwm() error { return p.core.clearPwm() }

// SetResetOnDrop controls whether Close restores the mode and pull the pin
// had when it was acquired. Enabled by default.
func (p *IOPin) SetResetOnDrop(reset bool) { p.core.resetOnDrop = reset }

// ResetOnDrop reports whether Close will restore the pin's original state.
func (p *IOPin) ResetOnDrop() bool { return p.core.resetOnDrop }

// Close stops any workers, restores the pin's original state if enabled,
// and releases ownership. Close is idempotent.
func (p *IOPin) Close() error { return p.core.closeInternal() }
