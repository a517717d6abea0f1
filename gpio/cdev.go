//go:build linux

package gpio

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// consumerLabel identifies this process to other observers of the chip.
var consumerLabel = fmt.Sprintf("%s@%d", filepath.Base(os.Args[0]), os.Getpid())

// chip wraps the gpiochip character device whose driver label matches the
// board's pin controller.
type chip struct {
	f     *os.File
	name  string
	label string
	lines uint32
}

// openChip scans /dev/gpiochip0..255 for the first chip carrying one of
// the given driver labels.
func openChip(labels ...string) (*chip, error) {
	for n := 0; n < 256; n++ {
		path := fmt.Sprintf("/dev/gpiochip%d", n)
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			continue
		}
		var info gpiochipInfo
		if err := ioctlChipInfo(f.Fd(), &info); err != nil {
			f.Close()
			continue
		}
		label := cString(info.label[:])
		matched := false
		for _, want := range labels {
			if label == want {
				matched = true
				break
			}
		}
		if !matched {
			f.Close()
			continue
		}
		return &chip{
			f:     f,
			name:  cString(info.name[:]),
			label: label,
			lines: info.lines,
		}, nil
	}
	return nil, ErrNoGpioChip
}

func (c *chip) close() error {
	return c.f.Close()
}

// requestLine asks the chip for an edge-event fd watching pin with the
// given trigger. A positive debounce is forwarded to the kernel's
// debounce attribute, rounded to microseconds.
func (c *chip) requestLine(pin uint8, trigger Trigger, debounce time.Duration) (*lineRequest, error) {
	var req gpioV2LineRequest
	req.offsets[0] = uint32(pin)
	req.numLines = 1
	copy(req.consumer[:_GPIO_MAX_NAME_SIZE-1], consumerLabel)

	flags := _GPIO_V2_LINE_FLAG_INPUT
	switch trigger {
	case TriggerRisingEdge:
		flags |= _GPIO_V2_LINE_FLAG_EDGE_RISING
	case TriggerFallingEdge:
		flags |= _GPIO_V2_LINE_FLAG_EDGE_FALLING
	case TriggerBoth:
		flags |= _GPIO_V2_LINE_FLAG_EDGE_RISING | _GPIO_V2_LINE_FLAG_EDGE_FALLING
	}
	req.config.flags = flags
	if debounce > 0 {
		req.config.numAttrs = 1
		req.config.attrs[0].attr.id = _GPIO_V2_LINE_ATTR_ID_DEBOUNCE
		req.config.attrs[0].attr.value = uint64(debounce / time.Microsecond)
		req.config.attrs[0].mask = 1
	}

	if err := ioctlGetLine(c.f.Fd(), &req); err != nil {
		return nil, fmt.Errorf("gpio: line request for pin %d: %w", pin, err)
	}
	return &lineRequest{pin: pin, trigger: trigger, fd: int(req.fd)}, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// lineRequest owns the event fd handed out for one (pin, trigger) pair.
// Changing the trigger requires closing it and issuing a fresh request.
type lineRequest struct {
	pin     uint8
	trigger Trigger
	fd      int
}

func (lr *lineRequest) close() error {
	return unix.Close(lr.fd)
}

// readEvent reads and decodes a single edge record. The fd polls readable
// only when a whole record is buffered, so short reads are failures.
func (lr *lineRequest) readEvent() (Event, error) {
	var raw gpioV2LineEvent
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&raw)), unsafe.Sizeof(raw))
	for {
		n, err := unix.Read(lr.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Event{}, fmt.Errorf("gpio: reading event for pin %d: %w", lr.pin, err)
		}
		if n != len(buf) {
			return Event{}, fmt.Errorf("gpio: short event read for pin %d: %d bytes", lr.pin, n)
		}
		break
	}

	ev := Event{Timestamp: time.Duration(raw.timestampNs)}
	switch raw.id {
	case _GPIO_V2_LINE_EVENT_RISING_EDGE:
		ev.Trigger = TriggerRisingEdge
		ev.Level = High
	case _GPIO_V2_LINE_EVENT_FALLING_EDGE:
		ev.Trigger = TriggerFallingEdge
		ev.Level = Low
	default:
		return Event{}, fmt.Errorf("gpio: unknown event id %d for pin %d", raw.id, lr.pin)
	}
	return ev, nil
}
