// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"errors"

	"periph.io/x/raspi/boardinfo"
)

var (
	// ErrUnknownModel is returned by New on hardware whose revision code
	// does not decode to a supported Raspberry Pi.
	ErrUnknownModel = boardinfo.ErrUnknownModel

	// ErrPinNotAvailable is returned by Get for pin numbers at or beyond
	// the controller's line count.
	ErrPinNotAvailable = errors.New("pin not available")

	// ErrPinInUse is returned by Get while another handle for the same pin
	// is alive.
	ErrPinInUse = errors.New("pin already in use")

	// ErrPermissionDenied indicates none of the register devices could be
	// opened. The message names the least-privileged path so the advice is
	// actionable: access to /dev/gpiomem is granted through the gpio group
	// or udev rules, no root required.
	ErrPermissionDenied = errors.New("permission denied, try adding the user to the gpio group or setup udev rules")

	// ErrNoGpioChip is returned when no /dev/gpiochipN device carries one
	// of the Raspberry Pi pin-controller labels.
	ErrNoGpioChip = errors.New("no compatible gpiochip device found")

	// ErrWorkerPanic reports that a PWM or interrupt worker ended with a
	// panic instead of an orderly stop.
	ErrWorkerPanic = errors.New("worker goroutine panicked")
)
