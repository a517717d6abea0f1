// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package gpio

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// wakeKey is the user key registered for the poller's eventfd. Line fds
// carry their pin number, so any negative key is free.
const wakeKey int32 = -1

// poller multiplexes edge-event fds through epoll. A nonblocking eventfd
// registered under wakeKey lets another goroutine interrupt a blocked wait.
type poller struct {
	epfd   int
	wakefd int
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("gpio: epoll_create1: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("gpio: eventfd: %w", err)
	}
	p := &poller{epfd: epfd, wakefd: wakefd}
	if err := p.add(wakefd, wakeKey); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

// add registers fd for input readiness under the given user key.
func (p *poller) add(fd int, key int32) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: key}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("gpio: epoll_ctl add: %w", err)
	}
	return nil
}

// modify rebinds the key or event mask of an already registered fd.
func (p *poller) modify(fd int, key int32) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: key}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("gpio: epoll_ctl mod: %w", err)
	}
	return nil
}

func (p *poller) delete(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("gpio: epoll_ctl del: %w", err)
	}
	return nil
}

// wait blocks until at least one registered fd is ready or the timeout
// elapses. A negative timeout blocks indefinitely. Interrupted waits
// report zero events so the caller recomputes its remaining budget.
func (p *poller) wait(events []unix.EpollEvent, timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		// Round up, epoll only offers millisecond granularity and a zero
		// timeout would turn the caller's retry loop into a hot spin.
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	n, err := unix.EpollWait(p.epfd, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("gpio: epoll_wait: %w", err)
	}
	return n, nil
}

// wake makes a concurrent wait return early.
func (p *poller) wake() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(p.wakefd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

// drainWake consumes pending wakeups so the eventfd stops polling ready.
func (p *poller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakefd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

func (p *poller) close() {
	unix.Close(p.wakefd)
	unix.Close(p.epfd)
}
