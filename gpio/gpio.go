// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"periph.io/x/raspi/boardinfo"
)

// Level is the electrical state of a pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l == High {
		return "High"
	}
	return "Low"
}

// Mode is a pin's function: input, output, or one of the alternate
// peripheral routings. Alt6 through Alt8 only exist on the RP1.
type Mode uint8

const (
	Input Mode = iota
	Output
	Alt0
	Alt1
	Alt2
	Alt3
	Alt4
	Alt5
	Alt6
	Alt7
	Alt8
)

func (m Mode) String() string {
	switch {
	case m == Input:
		return "In"
	case m == Output:
		return "Out"
	case m <= Alt8:
		return fmt.Sprintf("Alt%d", m-Alt0)
	}
	return "Unknown"
}

// Pull is the built-in bias resistor state.
type Pull uint8

const (
	PullOff Pull = iota
	PullDown
	PullUp
)

func (p Pull) String() string {
	switch p {
	case PullDown:
		return "PullDown"
	case PullUp:
		return "PullUp"
	}
	return "Off"
}

// Trigger is the edge condition watched on an input pin.
type Trigger uint8

const (
	TriggerNone Trigger = iota
	TriggerRisingEdge
	TriggerFallingEdge
	TriggerBoth
)

func (t Trigger) String() string {
	switch t {
	case TriggerRisingEdge:
		return "RisingEdge"
	case TriggerFallingEdge:
		return "FallingEdge"
	case TriggerBoth:
		return "Both"
	}
	return "None"
}

// Event describes one observed edge.
type Event struct {
	// Timestamp is the kernel's monotonic timestamp of the edge.
	Timestamp time.Duration
	// Trigger is TriggerRisingEdge or TriggerFallingEdge.
	Trigger Trigger
	// Level is the level implied by the edge: High after a rising edge,
	// Low after a falling one.
	Level Level
}

// gpioState is the shared state behind every Controller and pin handle:
// the register window, the gpiochip, the interrupt engine and the
// ownership flags. It is reference-counted; the last handle tears it down.
type gpioState struct {
	info  *boardinfo.DeviceInfo
	mem   gpioMem
	chip  *chip
	lines uint32
	irq   *irqEngine
	owned [256]atomic.Bool

	// requestLine indirects line-request creation so tests can feed edge
	// records through pipes instead of a real chip.
	requestLine func(pin uint8, trigger Trigger, debounce time.Duration) (*lineRequest, error)

	refs int
}

var (
	// initMu serializes construction, keeping device I/O out of stateMu.
	initMu  sync.Mutex
	stateMu sync.Mutex
	state   *gpioState
)

var errControllerClosed = errors.New("gpio: controller is closed")

// Controller is a handle to the process-wide GPIO controller. Handles are
// cheap; every one must be closed.
type Controller struct {
	s      *gpioState
	closed atomic.Bool
}

// New returns a handle to the shared controller, creating it on first use.
// The underlying state lives until the last handle and the last pin are
// closed, after which a later New starts from scratch.
func New() (*Controller, error) {
	initMu.Lock()
	defer initMu.Unlock()

	stateMu.Lock()
	if state != nil {
		state.refs++
		s := state
		stateMu.Unlock()
		return &Controller{s: s}, nil
	}
	stateMu.Unlock()

	s, err := newState()
	if err != nil {
		return nil, err
	}
	s.refs = 1
	stateMu.Lock()
	state = s
	stateMu.Unlock()
	return &Controller{s: s}, nil
}

func newState() (*gpioState, error) {
	info, err := boardinfo.Detect()
	if err != nil {
		return nil, err
	}
	mem, err := openMem(info)
	if err != nil {
		return nil, err
	}
	ch, err := openChip("pinctrl-bcm2835", "pinctrl-bcm2711", "pinctrl-rp1")
	if err != nil {
		mem.Close()
		return nil, err
	}
	irq, err := newIrqEngine()
	if err != nil {
		ch.close()
		mem.Close()
		return nil, err
	}
	s := &gpioState{
		info:        info,
		mem:         mem,
		chip:        ch,
		lines:       ch.lines,
		irq:         irq,
		requestLine: ch.requestLine,
	}
	return s, nil
}

func (s *gpioState) incref() {
	stateMu.Lock()
	s.refs++
	stateMu.Unlock()
}

func (s *gpioState) decref() {
	stateMu.Lock()
	s.refs--
	last := s.refs == 0
	if last && state == s {
		state = nil
	}
	stateMu.Unlock()
	if last {
		s.teardown()
	}
}

// teardown runs outside stateMu.
func (s *gpioState) teardown() {
	if err := s.irq.close(); err != nil {
		logrus.WithError(err).Debug("gpio: interrupt engine teardown")
	}
	if s.chip != nil {
		if err := s.chip.close(); err != nil {
			logrus.WithError(err).Debug("gpio: gpiochip teardown")
		}
	}
	if err := s.mem.Close(); err != nil {
		logrus.WithError(err).Debug("gpio: register window teardown")
	}
}

// get validates the pin number and claims ownership.
func (s *gpioState) get(pin uint8) (*Pin, error) {
	if uint32(pin) >= s.lines {
		return nil, fmt.Errorf("gpio: pin %d: %w", pin, ErrPinNotAvailable)
	}
	if !s.owned[pin].CompareAndSwap(false, true) {
		return nil, fmt.Errorf("gpio: pin %d: %w", pin, ErrPinInUse)
	}
	s.incref()
	return newPin(s, pin), nil
}

// Get claims exclusive ownership of a pin and returns its unconfigured
// handle. At most one handle per pin exists at any instant.
func (c *Controller) Get(pin uint8) (*Pin, error) {
	if c.closed.Load() {
		return nil, errControllerClosed
	}
	return c.s.get(pin)
}

// BoardInfo returns the detection result the controller was built from.
func (c *Controller) BoardInfo() *boardinfo.DeviceInfo {
	return c.s.info
}

// Lines returns the number of GPIO lines the pin controller reports.
func (c *Controller) Lines() uint32 {
	return c.s.lines
}

// PollInterrupts blocks until one of pins reports an edge, returning that
// pin and the event. On timeout all three results are nil. With reset,
// events cached from earlier polls are discarded before waiting; a
// negative timeout blocks indefinitely.
//
// Polls serialize: a second caller waits until the first returns.
func (c *Controller) PollInterrupts(pins []*InputPin, reset bool, timeout time.Duration) (*InputPin, *Event, error) {
	if c.closed.Load() {
		return nil, nil, errControllerClosed
	}
	nums := make([]uint8, len(pins))
	for i, p := range pins {
		nums[i] = p.core.num
	}
	pin, ev, ok, err := c.s.irq.pollInterrupts(c.s, nums, reset, timeout)
	if err != nil || !ok {
		return nil, nil, err
	}
	for _, p := range pins {
		if p.core.num == pin {
			return p, &ev, nil
		}
	}
	return nil, nil, nil
}

// Close releases this handle. Pins stay usable; the shared state is only
// torn down once they are closed too. Close is idempotent.
func (c *Controller) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.s.decref()
	return nil
}
