// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"time"

	"go.uber.org/multierr"
)

// InputPin is an owned pin configured as an input.
type InputPin struct {
	core *pinCore
}

// Number returns the BCM pin number.
func (p *InputPin) Number() uint8 { return p.core.num }

// Read returns the pin's logic level.
func (p *InputPin) Read() Level { return p.core.s.mem.Level(p.core.num) }

// IsLow reports whether the pin reads low.
func (p *InputPin) IsLow() bool { return p.Read() == Low }

// IsHigh reports whether the pin reads high.
func (p *InputPin) IsHigh() bool { return p.Read() == High }

// SetInterrupt arms a synchronous interrupt, to be consumed with
// PollInterrupt or Controller.PollInterrupts. A second call replaces the
// trigger and debounce. A zero debounce disables filtering; a positive
// one is enforced by the kernel with microsecond resolution.
func (p *InputPin) SetInterrupt(trigger Trigger, debounce time.Duration) error {
	if err := p.core.s.irq.setInterrupt(p.core.s, p.core.num, trigger, debounce); err != nil {
		return err
	}
	p.core.syncArmed = true
	return nil
}

// ClearInterrupt disarms the synchronous interrupt. Clearing a pin with
// no interrupt armed is a no-op.
func (p *InputPin) ClearInterrupt() error {
	p.core.syncArmed = false
	return p.core.s.irq.clearInterrupt(p.core.num)
}

// PollInterrupt blocks until this pin reports an edge, returning the
// event, or nil once the timeout elapses. A negative timeout blocks
// indefinitely. With reset, previously cached events are discarded before
// waiting.
func (p *InputPin) PollInterrupt(reset bool, timeout time.Duration) (*Event, error) {
	_, ev, ok, err := p.core.s.irq.pollInterrupts(p.core.s, []uint8{p.core.num}, reset, timeout)
	if err != nil || !ok {
		return nil, err
	}
	return &ev, nil
}

// SetAsyncInterrupt installs callback to run on every matching edge, from
// a goroutine dedicated to this pin. A second call replaces the previous
// callback. The debounce filter is callback-relative: an edge arriving
// within debounce of the previous delivery is dropped.
//
// The callback must not call back into this handle.
func (p *InputPin) SetAsyncInterrupt(trigger Trigger, debounce time.Duration, callback func(Event)) error {
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

// ClearAsyncInterrupt stops the callback goroutine and waits for it to
// finish. Clearing a pin with no callback installed is a no-op.
func (p *InputPin) ClearAsyncInterrupt() error {
	if p.core.async == nil {
		return nil
	}
	a := p.core.async
	p.core.async = nil
	return a.stop()
}

// SetResetOnDrop controls whether Close restores the mode and pull the pin
// had when it was acquired. Enabled by default.
func (p *InputPin) SetResetOnDrop(reset bool) { p.core.resetOnDrop = reset }

// ResetOnDrop reports whether Close will restore the pin's original state.
func (p *InputPin) ResetOnDrop() bool { return p.core.resetOnDrop }

// Close stops any interrupt delivery, restores the pin's original state
// if enabled, and releases ownership. Close is idempotent.
func (p *InputPin) Close() error { return p.core.closeInternal() }
