// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// triggerStatus tracks one pin's synchronous interrupt: its live line
// request plus the last edge observed but not yet consumed by a poll.
type triggerStatus struct {
	req       *lineRequest
	trigger   Trigger
	debounce  time.Duration
	triggered bool
	last      Event
}

// irqEngine serves synchronous interrupt polls. A single mutex is held for
// the whole duration of a poll: concurrent polls serialize, which is the
// intended semantics. Callers that need parallelism use the asynchronous
// interrupts instead.
type irqEngine struct {
	mu     sync.Mutex
	poller *poller
	status [256]triggerStatus
}

func newIrqEngine() (*irqEngine, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &irqEngine{poller: p}, nil
}

// setInterrupt arms pin. An existing request is torn down first so a new
// trigger or debounce takes effect; the kernel only honors them at
// request time.
func (e *irqEngine) setInterrupt(s *gpioState, pin uint8, trigger Trigger, debounce time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status[pin].req != nil {
		if err := e.dropLocked(pin); err != nil {
			return err
		}
	}
	return e.armLocked(s, pin, trigger, debounce)
}

func (e *irqEngine) armLocked(s *gpioState, pin uint8, trigger Trigger, debounce time.Duration) error {
	req, err := s.requestLine(pin, trigger, debounce)
	if err != nil {
		return err
	}
	if err := e.poller.add(req.fd, int32(pin)); err != nil {
		req.close()
		return err
	}
	e.status[pin] = triggerStatus{req: req, trigger: trigger, debounce: debounce}
	return nil
}

func (e *irqEngine) dropLocked(pin uint8) error {
	st := &e.status[pin]
	err := multierr.Append(e.poller.delete(st.req.fd), st.req.close())
	*st = triggerStatus{}
	return err
}

// clearInterrupt disarms pin. Calling it without an armed interrupt is a
// no-op.
func (e *irqEngine) clearInterrupt(pin uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status[pin].req == nil {
		return nil
	}
	return e.dropLocked(pin)
}

// rotateLocked replaces pin's request with a fresh one, discarding any
// events buffered kernel-side.
func (e *irqEngine) rotateLocked(s *gpioState, pin uint8) error {
	st := &e.status[pin]
	trigger, debounce := st.trigger, st.debounce
	if err := e.dropLocked(pin); err != nil {
		return err
	}
	return e.armLocked(s, pin, trigger, debounce)
}

// pollInterrupts blocks until one of pins reports an edge or the timeout
// elapses (ok false). With reset, cached and kernel-buffered events are
// discarded before waiting. A negative timeout blocks indefinitely.
func (e *irqEngine) pollInterrupts(s *gpioState, pins []uint8, reset bool, timeout time.Duration) (uint8, Event, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, pin := range pins {
		st := &e.status[pin]
		if st.req == nil {
			continue
		}
		if reset {
			st.triggered = false
			if err := e.rotateLocked(s, pin); err != nil {
				return 0, Event{}, false, err
			}
		} else if st.triggered {
			st.triggered = false
			return pin, st.last, true, nil
		}
	}

	start := time.Now()
	var events [16]unix.EpollEvent
	for {
		remaining := time.Duration(-1)
		if timeout >= 0 {
			remaining = timeout - time.Since(start)
			if remaining < 0 {
				return 0, Event{}, false, nil
			}
		}
		n, err := e.poller.wait(events[:], remaining)
		if err != nil {
			return 0, Event{}, false, err
		}
		if n == 0 {
			// Timed out, or the wait was interrupted; the next loop
			// iteration recomputes the remaining budget.
			if timeout >= 0 && time.Since(start) >= timeout {
				return 0, Event{}, false, nil
			}
			continue
		}
		for _, ev := range events[:n] {
			if ev.Fd == wakeKey {
				e.poller.drainWake()
				continue
			}
			pin := uint8(ev.Fd)
			st := &e.status[pin]
			if st.req == nil {
				continue
			}
			event, err := st.req.readEvent()
			if err != nil {
				return 0, Event{}, false, err
			}
			st.triggered = true
			st.last = event
		}
		// Unrelated pins may have fired; their events stay cached in the
		// table for a later poll that includes them.
		for _, pin := range pins {
			st := &e.status[pin]
			if st.triggered {
				st.triggered = false
				return pin, st.last, true, nil
			}
		}
	}
}

func (e *irqEngine) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	for pin := range e.status {
		if e.status[pin].req != nil {
			err = multierr.Append(err, e.dropLocked(uint8(pin)))
		}
	}
	e.poller.close()
	return err
}
