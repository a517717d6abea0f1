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

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// asyncInterrupt delivers one pin's edges to a user callback from a
// dedicated worker. The worker owns a private poller so blocking polls on
// other pins are unaffected, and exits when the wakeup fd fires.
type asyncInterrupt struct {
	pin    uint8
	poller *poller
	req    *lineRequest

	done      chan struct{}
	panicked  atomic.Bool
	stopOnce  sync.Once
	closeOnce sync.Once
}

func newAsyncInterrupt(s *gpioState, pin uint8, trigger Trigger, debounce time.Duration, cb func(Event)) (*asyncInterrupt, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	req, err := s.requestLine(pin, trigger, 0)
	if err != nil {
		p.close()
		return nil, err
	}
	if err := p.add(req.fd, int32(pin)); err != nil {
		req.close()
		p.close()
		return nil, err
	}

	// The debounce contract is callback-relative: an edge is dropped when
	// the previous delivery happened within the window. A token bucket
	// with burst 1 refilling once per window behaves exactly like that.
	var limiter *rate.Limiter
	if debounce > 0 {
		limiter = rate.NewLimiter(rate.Every(debounce), 1)
	}

	a := &asyncInterrupt{
		pin:    pin,
		poller: p,
		req:    req,
		done:   make(chan struct{}),
	}
	go a.worker(limiter, cb)
	return a, nil
}

func (a *asyncInterrupt) worker(limiter *rate.Limiter, cb func(Event)) {
	runtime.LockOSThread()
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			a.panicked.Store(true)
			logrus.WithField("pin", a.pin).Errorf("gpio: async interrupt callback panicked: %v", r)
		}
	}()

	var events [4]unix.EpollEvent
	for {
		n, err := a.poller.wait(events[:], -1)
		if err != nil {
			logrus.WithField("pin", a.pin).WithError(err).Warn("gpio: async interrupt wait failed")
			return
		}
		for _, ev := range events[:n] {
			if ev.Fd == wakeKey {
				a.poller.drainWake()
				return
			}
			event, err := a.req.readEvent()
			if err != nil {
				logrus.WithField("pin", a.pin).WithError(err).Warn("gpio: async interrupt read failed")
				return
			}
			if limiter != nil && !limiter.Allow() {
				continue
			}
			// Runs in-line; stop is only observed between callbacks.
			cb(event)
		}
	}
}

// stop signals the worker, joins it and releases the fds. A worker that
// died in a panic is reported through ErrWorkerPanic.
func (a *asyncInterrupt) stop() error {
	a.stopOnce.Do(a.poller.wake)
	<-a.done

	var err error
	a.closeOnce.Do(func() {
		err = multierr.Append(err, a.req.close())
		a.poller.close()
	})
	if a.panicked.Load() {
		err = multierr.Append(err, fmt.Errorf("gpio: pin %d async interrupt: %w", a.pin, ErrWorkerPanic))
	}
	return err
}
