// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package uart

import (
	"fmt"
	"path/filepath"
	"time"
	"unsafe"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"periph.io/x/raspi/gpio"
)

// Parity selects the parity bit appended to each transmitted word.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
	// ParityMark holds the parity bit at 1, ParitySpace at 0.
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "None"
	case ParityEven:
		return "Even"
	case ParityOdd:
		return "Odd"
	case ParityMark:
		return "Mark"
	case ParitySpace:
		return "Space"
	}
	return fmt.Sprintf("Parity(%d)", uint8(p))
}

// Queue names the buffered direction(s) an operation acts on.
type Queue uint8

const (
	QueueInput Queue = iota
	QueueOutput
	QueueBoth
)

func (q Queue) String() string {
	switch q {
	case QueueInput:
		return "Input"
	case QueueOutput:
		return "Output"
	case QueueBoth:
		return "Both"
	}
	return fmt.Sprintf("Queue(%d)", uint8(q))
}

// Status holds the control and status lines of the port. Lines the
// hardware does not route always read false.
type Status struct {
	Rts bool
	Cts bool
	Dtr bool
	Dsr bool
	// CarrierDetect is the DCD line, RingIndicator the RI line.
	CarrierDetect bool
	RingIndicator bool
}

var (
	// ErrInvalidValue is returned for word formats or read modes the tty
	// layer cannot express.
	ErrInvalidValue = pkgerrors.New("uart: value out of range")

	// ErrNoPrimaryUart is returned by New when no primary UART device
	// exists. The serial port is disabled by default on most Raspberry Pi
	// OS releases.
	ErrNoPrimaryUart = pkgerrors.New("uart: no primary UART device, enable the serial port with raspi-config")

	// ErrPermissionDenied is returned when the tty device cannot be
	// opened. Access to serial devices is granted through the dialout
	// group, no root required.
	ErrPermissionDenied = pkgerrors.New("permission denied, try adding the user to the dialout group")
)

// Uart is an open serial port in raw mode.
//
// A Uart is not safe for concurrent use.
type Uart struct {
	path string
	// A raw descriptor rather than an os.File: the runtime poller treats
	// a 0-byte read as EOF, which a VMIN=0 VTIME=0 port returns on every
	// empty poll.
	fd int

	blockingWrites bool

	// Flow-control lines claimed on the header while CRTSCTS is active.
	rts *gpio.IOPin
	cts *gpio.IOPin
}

// New opens the primary UART, the one wired to the header's TX/RX pins.
// The firmware publishes it as /dev/serial0; without the symlink the PL011
// is preferred over the mini UART.
//
// dataBits is 5 to 8, stopBits 1 or 2.
func New(baud uint32, parity Parity, dataBits, stopBits uint8) (*Uart, error) {
	path, err := primaryPath()
	if err != nil {
		return nil, err
	}
	return NewWithPath(path, baud, parity, dataBits, stopBits)
}

// NewWithPath opens the tty device at path, typically /dev/ttyUSBx or
// /dev/ttyACMx for USB serial adapters.
func NewWithPath(path string, baud uint32, parity Parity, dataBits, stopBits uint8) (*Uart, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.EACCES {
			return nil, pkgerrors.Wrapf(ErrPermissionDenied, "opening %s", path)
		}
		return nil, pkgerrors.Wrapf(err, "opening %s", path)
	}
	u := &Uart{path: path, fd: fd}
	if err := u.configure(baud, parity, dataBits, stopBits); err != nil {
		unix.Close(fd)
		return nil, err
	}
	// Blocking behavior is VMIN/VTIME's job from here on. O_NONBLOCK was
	// only held during open so a stuck modem line cannot hang us.
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, pkgerrors.Wrapf(err, "clearing O_NONBLOCK on %s", path)
	}
	logrus.WithFields(logrus.Fields{
		"path": path,
		"baud": baud,
	}).Debug("uart: port opened")
	return u, nil
}

// primaryPath resolves the primary UART. /dev/serial0 tracks whichever tty
// the firmware routed to the header pins.
func primaryPath() (string, error) {
	for _, p := range []string{"/dev/serial0", "/dev/ttyAMA0", "/dev/ttyS0"} {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return resolved, nil
		}
	}
	return "", ErrNoPrimaryUart
}

// Path returns the tty device path this port was opened from, with the
// /dev/serial0 symlink resolved.
func (u *Uart) Path() string { return u.path }

// configure switches the port to raw mode and applies the word format in
// a single termios write. The read mode starts out non-blocking.
func (u *Uart) configure(baud uint32, parity Parity, dataBits, stopBits uint8) error {
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return pkgerrors.Wrapf(err, "reading attributes of %s", u.path)
	}

	// Raw mode: no line editing, no signal characters, no CR/LF mangling,
	// no software flow control.
	tio.iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	tio.oflag &^= unix.OPOST
	tio.lflag &^= unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ECHONL |
		unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.cflag |= unix.CLOCAL | unix.CREAD

	// BOTHER routes the rate through ispeed/ospeed instead of the Bxxx
	// table, so non-standard rates like 250000 work on the PL011.
	tio.cflag &^= unix.CBAUD
	tio.cflag |= unix.BOTHER
	tio.ispeed = baud
	tio.ospeed = baud

	tio.cflag &^= unix.PARENB | unix.PARODD | unix.CMSPAR
	switch parity {
	case ParityNone:
	case ParityEven:
		tio.cflag |= unix.PARENB
	case ParityOdd:
		tio.cflag |= unix.PARENB | unix.PARODD
	case ParityMark:
		tio.cflag |= unix.PARENB | unix.CMSPAR | unix.PARODD
	case ParitySpace:
		tio.cflag |= unix.PARENB | unix.CMSPAR
	default:
		return pkgerrors.Wrapf(ErrInvalidValue, "parity %d", parity)
	}

	tio.cflag &^= unix.CSIZE
	switch dataBits {
	case 5:
		tio.cflag |= unix.CS5
	case 6:
		tio.cflag |= unix.CS6
	case 7:
		tio.cflag |= unix.CS7
	case 8:
		tio.cflag |= unix.CS8
	default:
		return pkgerrors.Wrapf(ErrInvalidValue, "%d data bits", dataBits)
	}

	switch stopBits {
	case 1:
		tio.cflag &^= unix.CSTOPB
	case 2:
		tio.cflag |= unix.CSTOPB
	default:
		return pkgerrors.Wrapf(ErrInvalidValue, "%d stop bits", stopBits)
	}

	tio.cc[unix.VMIN] = 0
	tio.cc[unix.VTIME] = 0

	if err := u.setTermios(&tio); err != nil {
		return pkgerrors.Wrapf(err, "configuring %s", u.path)
	}
	return nil
}

// Baud returns the configured baud rate.
func (u *Uart) Baud() (uint32, error) {
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return 0, pkgerrors.Wrap(err, "reading attributes")
	}
	if tio.cflag&unix.CBAUD == unix.BOTHER {
		return tio.ospeed, nil
	}
	if baud, ok := baudTable[tio.cflag&unix.CBAUD]; ok {
		return baud, nil
	}
	return 0, pkgerrors.Wrapf(ErrInvalidValue, "baud constant %#x", tio.cflag&unix.CBAUD)
}

// baudTable maps the legacy Bxxx constants back to rates for ports that
// were configured without BOTHER.
var baudTable = map[uint32]uint32{
	unix.B0:       0,
	unix.B50:      50,
	unix.B75:      75,
	unix.B110:     110,
	unix.B134:     134,
	unix.B150:     150,
	unix.B200:     200,
	unix.B300:     300,
	unix.B600:     600,
	unix.B1200:    1200,
	unix.B1800:    1800,
	unix.B2400:    2400,
	unix.B4800:    4800,
	unix.B9600:    9600,
	unix.B19200:   19200,
	unix.B38400:   38400,
	unix.B57600:   57600,
	unix.B115200:  115200,
	unix.B230400:  230400,
	unix.B460800:  460800,
	unix.B500000:  500000,
	unix.B576000:  576000,
	unix.B921600:  921600,
	unix.B1000000: 1000000,
	unix.B1152000: 1152000,
	unix.B1500000: 1500000,
	unix.B2000000: 2000000,
	unix.B2500000: 2500000,
	unix.B3000000: 3000000,
	unix.B3500000: 3500000,
	unix.B4000000: 4000000,
}

// SetBaud reprograms the baud rate without touching the word format.
func (u *Uart) SetBaud(baud uint32) error {
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return pkgerrors.Wrap(err, "reading attributes")
	}
	tio.cflag &^= unix.CBAUD
	tio.cflag |= unix.BOTHER
	tio.ispeed = baud
	tio.ospeed = baud
	return pkgerrors.Wrapf(u.setTermios(&tio), "setting %d baud", baud)
}

// Parity returns the configured parity.
func (u *Uart) Parity() (Parity, error) {
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return 0, pkgerrors.Wrap(err, "reading attributes")
	}
	switch {
	case tio.cflag&unix.PARENB == 0:
		return ParityNone, nil
	case tio.cflag&unix.CMSPAR != 0 && tio.cflag&unix.PARODD != 0:
		return ParityMark, nil
	case tio.cflag&unix.CMSPAR != 0:
		return ParitySpace, nil
	case tio.cflag&unix.PARODD != 0:
		return ParityOdd, nil
	}
	return ParityEven, nil
}

// DataBits returns the configured word size.
func (u *Uart) DataBits() (uint8, error) {
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return 0, pkgerrors.Wrap(err, "reading attributes")
	}
	switch tio.cflag & unix.CSIZE {
	case unix.CS5:
		return 5, nil
	case unix.CS6:
		return 6, nil
	case unix.CS7:
		return 7, nil
	}
	return 8, nil
}

// StopBits returns the configured number of stop bits.
func (u *Uart) StopBits() (uint8, error) {
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return 0, pkgerrors.Wrap(err, "reading attributes")
	}
	if tio.cflag&unix.CSTOPB != 0 {
		return 2, nil
	}
	return 1, nil
}

// SetReadMode controls how Read blocks. minLength is the number of bytes
// a read waits for, timeout the inter-byte deadline rounded up to 0.1s
// granularity and saturating at 25.5s. Both zero, the default, makes Read
// return immediately with whatever is buffered.
func (u *Uart) SetReadMode(minLength uint8, timeout time.Duration) error {
	if timeout < 0 {
		return pkgerrors.Wrap(ErrInvalidValue, "negative read timeout")
	}
	ds := int64(0)
	if timeout > 0 {
		ds = int64((timeout + 99*time.Millisecond) / (100 * time.Millisecond))
		if ds > 255 {
			ds = 255
		}
	}
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return pkgerrors.Wrap(err, "reading attributes")
	}
	tio.cc[unix.VMIN] = minLength
	tio.cc[unix.VTIME] = uint8(ds)
	return pkgerrors.Wrap(u.setTermios(&tio), "setting read mode")
}

// SetWriteMode switches Write between queueing bytes, the default, and
// waiting until the transmit queue has fully drained.
func (u *Uart) SetWriteMode(blocking bool) error {
	u.blockingWrites = blocking
	return nil
}

// Read fills buf with buffered input and returns the number of bytes
// copied. Whether it blocks first is governed by SetReadMode; in the
// default mode an idle port returns 0 without error.
func (u *Uart) Read(buf []byte) (int, error) {
	for {
		n, err := unix.Read(u.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, pkgerrors.Wrap(err, "uart read")
		}
		if n < 0 {
			n = 0
		}
		return n, nil
	}
}

// Write queues buf for transmission and returns the number of bytes
// accepted, which is short when the transmit buffer fills. In blocking
// write mode it drains the queue before returning.
func (u *Uart) Write(buf []byte) (int, error) {
	n := 0
	for {
		var err error
		n, err = unix.Write(u.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, pkgerrors.Wrap(err, "uart write")
		}
		break
	}
	if u.blockingWrites {
		if err := u.Drain(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// InputLen returns the number of bytes waiting in the receive queue.
func (u *Uart) InputLen() (int, error) {
	var n int32
	if err := devIoctlPtr(uintptr(u.fd), unix.TIOCINQ, unsafe.Pointer(&n)); err != nil {
		return 0, pkgerrors.Wrap(err, "querying input queue")
	}
	return int(n), nil
}

// OutputLen returns the number of bytes waiting in the transmit queue.
func (u *Uart) OutputLen() (int, error) {
	var n int32
	if err := devIoctlPtr(uintptr(u.fd), unix.TIOCOUTQ, unsafe.Pointer(&n)); err != nil {
		return 0, pkgerrors.Wrap(err, "querying output queue")
	}
	return int(n), nil
}

// Drain blocks until the transmit queue has been handed to the hardware.
func (u *Uart) Drain() error {
	// TCSBRK with a nonzero argument is tcdrain(); zero would send an
	// actual break.
	return pkgerrors.Wrap(devIoctl(uintptr(u.fd), unix.TCSBRK, 1), "draining output")
}

// Flush discards the bytes buffered in the given queue(s) without
// transmitting them.
func (u *Uart) Flush(queue Queue) error {
	var arg uintptr
	switch queue {
	case QueueInput:
		arg = unix.TCIFLUSH
	case QueueOutput:
		arg = unix.TCOFLUSH
	case QueueBoth:
		arg = unix.TCIOFLUSH
	default:
		return pkgerrors.Wrapf(ErrInvalidValue, "queue %d", queue)
	}
	return pkgerrors.Wrapf(devIoctl(uintptr(u.fd), unix.TCFLSH, arg), "flushing %v queue", queue)
}

// SendStop transmits a XOFF character, asking the remote end to pause.
func (u *Uart) SendStop() error {
	return pkgerrors.Wrap(devIoctl(uintptr(u.fd), unix.TCXONC, unix.TCIOFF), "sending XOFF")
}

// SendStart transmits a XON character, asking the remote end to resume.
func (u *Uart) SendStart() error {
	return pkgerrors.Wrap(devIoctl(uintptr(u.fd), unix.TCXONC, unix.TCION), "sending XON")
}

// SoftwareFlowControl reports whether XON/XOFF flow control is active.
func (u *Uart) SoftwareFlowControl() (bool, error) {
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return false, pkgerrors.Wrap(err, "reading attributes")
	}
	return tio.iflag&(unix.IXON|unix.IXOFF) == unix.IXON|unix.IXOFF, nil
}

// SetSoftwareFlowControl enables or disables XON/XOFF flow control in
// both directions.
func (u *Uart) SetSoftwareFlowControl(enabled bool) error {
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return pkgerrors.Wrap(err, "reading attributes")
	}
	if enabled {
		tio.iflag |= unix.IXON | unix.IXOFF
	} else {
		tio.iflag &^= unix.IXON | unix.IXOFF
	}
	return pkgerrors.Wrap(u.setTermios(&tio), "setting software flow control")
}

// HardwareFlowControl reports whether RTS/CTS flow control is active.
func (u *Uart) HardwareFlowControl() (bool, error) {
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return false, pkgerrors.Wrap(err, "reading attributes")
	}
	return tio.cflag&unix.CRTSCTS != 0, nil
}

// SetHardwareFlowControl enables or disables RTS/CTS flow control. On the
// header UARTs the RTS and CTS lines are ordinary GPIOs, so enabling
// claims them and routes them to the UART; a pin already held elsewhere
// surfaces as gpio.ErrPinInUse. Disabling returns the pins to their
// previous function. USB adapters handle their own lines and skip the
// GPIO step.
func (u *Uart) SetHardwareFlowControl(enabled bool) error {
	if enabled && u.rts == nil {
		if err := claimFlow(u); err != nil {
			return err
		}
	}
	var tio termios2
	if err := u.getTermios(&tio); err != nil {
		return pkgerrors.Wrap(err, "reading attributes")
	}
	if enabled {
		tio.cflag |= unix.CRTSCTS
	} else {
		tio.cflag &^= unix.CRTSCTS
	}
	if err := u.setTermios(&tio); err != nil {
		return pkgerrors.Wrap(err, "setting hardware flow control")
	}
	if !enabled {
		return u.releaseFlowPins()
	}
	return nil
}

// claimFlow is swapped out by the tests, which run without GPIO hardware.
var claimFlow = (*Uart).claimFlowPins

func (u *Uart) claimFlowPins() error {
	ctrl, err := gpio.New()
	if err != nil {
		return pkgerrors.Wrap(err, "claiming flow-control pins")
	}
	// The pins hold the shared GPIO state alive on their own.
	defer ctrl.Close()
	fc, ok := ctrl.BoardInfo().UartFlowPins(u.path)
	if !ok {
		return nil
	}
	rts, err := ctrl.Get(fc.Rts)
	if err != nil {
		return pkgerrors.Wrapf(err, "RTS line GPIO%d", fc.Rts)
	}
	cts, err := ctrl.Get(fc.Cts)
	if err != nil {
		rts.Close()
		return pkgerrors.Wrapf(err, "CTS line GPIO%d", fc.Cts)
	}
	mode := gpio.Alt0 + gpio.Mode(fc.Alt)
	u.rts = rts.IntoIO(mode)
	u.cts = cts.IntoIO(mode)
	logrus.WithFields(logrus.Fields{
		"rts": fc.Rts,
		"cts": fc.Cts,
		"alt": fc.Alt,
	}).Debug("uart: flow-control pins claimed")
	return nil
}

func (u *Uart) releaseFlowPins() error {
	var err error
	if u.rts != nil {
		err = multierr.Append(err, u.rts.Close())
		u.rts = nil
	}
	if u.cts != nil {
		err = multierr.Append(err, u.cts.Close())
		u.cts = nil
	}
	return err
}

// SetRts drives the RTS line manually. Only meaningful while hardware
// flow control is off.
func (u *Uart) SetRts(level bool) error {
	return u.setModemBit(unix.TIOCM_RTS, level, "RTS")
}

// SetDtr drives the DTR line manually.
func (u *Uart) SetDtr(level bool) error {
	return u.setModemBit(unix.TIOCM_DTR, level, "DTR")
}

func (u *Uart) setModemBit(bit int32, level bool, name string) error {
	op := uintptr(unix.TIOCMBIC)
	if level {
		op = unix.TIOCMBIS
	}
	bits := bit
	return pkgerrors.Wrapf(devIoctlPtr(uintptr(u.fd), op, unsafe.Pointer(&bits)), "setting %s", name)
}

// Status reads the modem control and status lines.
func (u *Uart) Status() (Status, error) {
	var bits int32
	if err := devIoctlPtr(uintptr(u.fd), unix.TIOCMGET, unsafe.Pointer(&bits)); err != nil {
		return Status{}, pkgerrors.Wrap(err, "reading modem lines")
	}
	return Status{
		Rts:           bits&unix.TIOCM_RTS != 0,
		Cts:           bits&unix.TIOCM_CTS != 0,
		Dtr:           bits&unix.TIOCM_DTR != 0,
		Dsr:           bits&unix.TIOCM_DSR != 0,
		CarrierDetect: bits&unix.TIOCM_CD != 0,
		RingIndicator: bits&unix.TIOCM_RI != 0,
	}, nil
}

// Close releases the flow-control pins, if any, and closes the port.
func (u *Uart) Close() error {
	err := u.releaseFlowPins()
	if cerr := unix.Close(u.fd); cerr != nil {
		err = multierr.Append(err, pkgerrors.Wrap(cerr, "closing port"))
	}
	return err
}
