// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Sleeping wakes up late by however long the scheduler feels like, so each
// phase sleeps short and busy-waits the rest. Phases under the threshold
// are busy-waited entirely, trading CPU for precision.
const (
	pwmSleepThreshold    = 250 * time.Microsecond
	pwmBusyWaitMax       = 200 * time.Microsecond
	pwmBusyWaitRemainder = 100 * time.Nanosecond
)

// softPwm emulates a PWM signal on an output pin by toggling it from a
// dedicated worker. Reconfiguration is non-blocking: the latest settings
// live behind the mutex and a one-slot dirty channel nudges the worker,
// which picks them up at its next low edge.
type softPwm struct {
	pin uint8

	mu     sync.Mutex
	period time.Duration
	pulse  time.Duration

	dirty    chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	panicked atomic.Bool
}

func newSoftPwm(s *gpioState, pin uint8, period, pulse time.Duration) *softPwm {
	p := &softPwm{
		pin:    pin,
		period: period,
		pulse:  min(pulse, period),
		dirty:  make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.worker(s)
	return p
}

// reconfigure updates the settings without ever blocking the caller.
func (p *softPwm) reconfigure(period, pulse time.Duration) {
	p.mu.Lock()
	p.period = period
	p.pulse = min(pulse, period)
	p.mu.Unlock()
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

func (p *softPwm) config() (time.Duration, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.period, p.pulse
}

// stopAndJoin signals the worker and waits for it to leave the pin low.
func (p *softPwm) stopAndJoin() error {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
	if p.panicked.Load() {
		return fmt.Errorf("gpio: pin %d soft pwm: %w", p.pin, ErrWorkerPanic)
	}
	return nil
}

func (p *softPwm) worker(s *gpioState) {
	runtime.LockOSThread()
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Store(true)
			s.mem.SetLow(p.pin)
			logrus.WithField("pin", p.pin).Errorf("gpio: soft pwm worker panicked: %v", r)
		}
	}()
	raisePriority()

	period, pulse := p.config()
	start := time.Now()
	for {
		if pulse > 0 {
			s.mem.SetHigh(p.pin)
		}
		if pulse >= pwmSleepThreshold {
			time.Sleep(pulse - pwmBusyWaitMax)
		}
		for pulse-time.Since(start) > pwmBusyWaitRemainder {
		}
		s.mem.SetLow(p.pin)

		select {
		case <-p.stop:
			return
		default:
		}
		select {
		case <-p.dirty:
			period, pulse = p.config()
		default:
		}

		if remaining := period - time.Since(start); remaining >= pwmSleepThreshold {
			time.Sleep(remaining - pwmBusyWaitMax)
		}
		for period-time.Since(start) > pwmBusyWaitRemainder {
		}
		start = time.Now()
	}
}

// raisePriority asks for the highest round-robin real-time priority and
// minimal kernel timer slack. Both need CAP_SYS_NICE; failures are
// logged and the worker keeps its normal scheduling.
func raisePriority() {
	maxPrio, _, errno := unix.Syscall(unix.SYS_SCHED_GET_PRIORITY_MAX, unix.SCHED_RR, 0, 0)
	if errno == 0 {
		param := struct{ priority int32 }{int32(maxPrio)}
		if _, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, unix.SCHED_RR, uintptr(unsafe.Pointer(&param))); errno != 0 {
			logrus.Debugf("gpio: soft pwm keeps normal scheduling: %v", errno)
		}
	}
	if err := unix.Prctl(unix.PR_SET_TIMERSLACK, 1, 0, 0, 0); err != nil {
		logrus.Debugf("gpio: timer slack unchanged: %v", err)
	}
}
