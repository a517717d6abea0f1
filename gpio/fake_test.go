// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"periph.io/x/raspi/boardinfo"
)

// transition is one observed level change on a fake pin.
type transition struct {
	at    time.Time
	level Level
}

// fakeMem is a behavioral register window: writes land in plain state and
// reads return it, so handle scenarios run without hardware. Level
// transitions are timestamped for the PWM tests.
type fakeMem struct {
	mu          sync.Mutex
	modes       [64]Mode
	levels      [64]Level
	pulls       [64]Pull
	transitions map[uint8][]transition
	closed      bool

	// highHook, when set, runs inside SetHigh. The PWM panic test uses it.
	highHook func()
}

func newFakeMem() *fakeMem {
	return &fakeMem{transitions: make(map[uint8][]transition)}
}

func (m *fakeMem) Mode(pin uint8) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modes[pin]
}

func (m *fakeMem) SetMode(pin uint8, mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
}

func (m *fakeMem) Level(pin uint8) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

func (m *fakeMem) SetHigh(pin uint8) {
	if m.highHook != nil {
		m.highHook()
	}
	m.setLevel(pin, High)
}

func (m *fakeMem) SetLow(pin uint8) {
	m.setLevel(pin, Low)
}

func (m *fakeMem) setLevel(pin uint8, level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels[pin] == level {
		return
	}
	m.levels[pin] = level
	m.transitions[pin] = append(m.transitions[pin], transition{at: time.Now(), level: level})
}

func (m *fakeMem) Pull(pin uint8) (Pull, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulls[pin], true
}

func (m *fakeMem) SetPull(pin uint8, pull Pull) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulls[pin] = pull
}

func (m *fakeMem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeMem) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMem) pullOf(pin uint8) Pull {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulls[pin]
}

func (m *fakeMem) transitionsFor(pin uint8) []transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transition, len(m.transitions[pin]))
	copy(out, m.transitions[pin])
	return out
}

// fakeLines hands out pipe-backed line requests. The read end becomes the
// event fd; the matching write end stays here so tests can inject edge
// records. A new request for a pin supersedes the old pipe, mirroring how
// rotation drains kernel-buffered events.
type fakeLines struct {
	mu       sync.Mutex
	write    map[uint8]int
	requests map[uint8]int
	seq      uint32
}

func newFakeLines(t *testing.T) *fakeLines {
	f := &fakeLines{
		write:    make(map[uint8]int),
		requests: make(map[uint8]int),
	}
	t.Cleanup(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for pin, fd := range f.write {
			unix.Close(fd)
			delete(f.write, pin)
		}
	})
	return f
}

func (f *fakeLines) request(pin uint8, trigger Trigger, debounce time.Duration) (*lineRequest, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if old, ok := f.write[pin]; ok {
		unix.Close(old)
	}
	f.write[pin] = fds[1]
	f.requests[pin]++
	f.mu.Unlock()
	return &lineRequest{pin: pin, trigger: trigger, fd: fds[0]}, nil
}

func (f *fakeLines) requestCount(pin uint8) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[pin]
}

// inject writes one edge record into the pin's live pipe.
func (f *fakeLines) inject(t *testing.T, pin uint8, trigger Trigger) {
	t.Helper()
	f.mu.Lock()
	fd, ok := f.write[pin]
	f.seq++
	seq := f.seq
	f.mu.Unlock()
	require.True(t, ok, "no live line request for pin %d", pin)

	id := uint32(_GPIO_V2_LINE_EVENT_RISING_EDGE)
	if trigger == TriggerFallingEdge {
		id = _GPIO_V2_LINE_EVENT_FALLING_EDGE
	}
	ev := gpioV2LineEvent{
		timestampNs: uint64(seq) * uint64(time.Millisecond),
		id:          id,
		offset:      uint32(pin),
		seqno:       seq,
		lineSeqno:   seq,
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&ev)), unsafe.Sizeof(ev))
	n, err := unix.Write(fd, buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
}

// newTestController wires a Controller over fake collaborators, bypassing
// hardware detection. The cleanup closes the last reference, which must
// tear the fakes down.
func newTestController(t *testing.T) (*Controller, *fakeMem, *fakeLines) {
	t.Helper()
	fm := newFakeMem()
	fl := newFakeLines(t)
	irq, err := newIrqEngine()
	require.NoError(t, err)
	s := &gpioState{
		info: &boardinfo.DeviceInfo{
			Model:         boardinfo.RaspberryPi4B,
			SoC:           boardinfo.BCM2711,
			GpioLines:     58,
			GpioChipLabel: "pinctrl-bcm2711",
		},
		mem:         fm,
		lines:       64,
		irq:         irq,
		requestLine: fl.request,
		refs:        1,
	}
	c := &Controller{s: s}
	t.Cleanup(func() { c.Close() })
	return c, fm, fl
}
