// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package pwm

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Channel selects a hardware PWM channel. The BCM283x chips expose two
// channels, on GPIO 18 and 19 with the right overlay; the RP1 on the
// Raspberry Pi 5 exposes four, on GPIO 12, 13, 18 and 19.
type Channel uint8

const (
	Channel0 Channel = iota
	Channel1
	Channel2
	Channel3
)

// Polarity flips the active state of the output.
type Polarity uint8

const (
	PolarityNormal Polarity = iota
	PolarityInverse
)

// String returns the sysfs spelling of the polarity.
func (p Polarity) String() string {
	if p == PolarityInverse {
		// Kernel spelling.
		return "inversed"
	}
	return "normal"
}

// ErrChannelNotAvailable is returned when the requested channel does not
// exist on the board's PWM chip.
var ErrChannelNotAvailable = pkgerrors.New("pwm: channel not available")

// Some chips reject very short periods, so when a period has to be
// parked on a throwaway value use one every chip accepts.
const safePeriodNs = 1e6

// sysfsPath is swapped for a scratch tree in tests.
var sysfsPath = "/sys/class/pwm"

// udevSettleTimeout bounds how long New waits for udev to make a freshly
// exported channel's attribute files writable.
var udevSettleTimeout = time.Second

// Pwm is an exported hardware PWM channel, driven through its sysfs
// attribute files.
//
// A Pwm is not safe for concurrent use.
type Pwm struct {
	chipPath    string
	line        uint8
	channel     Channel
	resetOnDrop bool
}

// New exports the channel on the board's PWM chip and waits for its
// attribute files to become writable. The channel starts out disabled
// with an unset period.
func New(channel Channel) (*Pwm, error) {
	chip, line, err := findChip(channel)
	if err != nil {
		return nil, err
	}
	p := &Pwm{chipPath: chip, line: line, channel: channel, resetOnDrop: true}
	if err := p.export(); err != nil {
		return nil, err
	}
	if err := p.waitWritable(); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"channel": channel,
		"chip":    chip,
	}).Debug("pwm: channel exported")
	return p, nil
}

// NewWithPeriod exports the channel and configures it in one call.
func NewWithPeriod(channel Channel, period, pulseWidth time.Duration, polarity Polarity, enabled bool) (*Pwm, error) {
	p, err := New(channel)
	if err != nil {
		return nil, err
	}
	if err := p.SetPolarity(polarity); err != nil {
		return nil, err
	}
	if err := p.setPeriodAndPulse(durationNs(period), durationNs(pulseWidth)); err != nil {
		return nil, err
	}
	if enabled {
		if err := p.Enable(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewWithFrequency is NewWithPeriod with the settings given as a
// frequency in hertz and a duty cycle between 0.0 and 1.0.
func NewWithFrequency(channel Channel, frequencyHz, dutyCycle float64, polarity Polarity, enabled bool) (*Pwm, error) {
	period, pulse := frequencyToPeriod(frequencyHz, dutyCycle)
	return NewWithPeriod(channel, period, pulse, polarity, enabled)
}

// findChip scans the sysfs PWM class for the chip serving the channel.
// A four-channel chip is the RP1 block and wins outright; otherwise the
// BCM chip at pwmchip0 serves the two legacy channels.
func findChip(channel Channel) (string, uint8, error) {
	entries, err := os.ReadDir(sysfsPath)
	if err != nil {
		return "", 0, pkgerrors.Wrap(err, "scanning pwm chips")
	}
	var fallback string
	var fallbackLines uint64
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "pwmchip") {
			continue
		}
		chip := filepath.Join(sysfsPath, e.Name())
		n, err := readNumber(filepath.Join(chip, "npwm"))
		if err != nil {
			continue
		}
		if n == 4 {
			// The RP1 PWM block. Its chip index depends on probe order,
			// so it is recognized by its channel count.
			if uint64(channel) >= n {
				return "", 0, ErrChannelNotAvailable
			}
			return chip, uint8(channel), nil
		}
		if e.Name() == "pwmchip0" {
			fallback, fallbackLines = chip, n
		}
	}
	if fallback == "" {
		return "", 0, pkgerrors.New("pwm: no pwm chip found")
	}
	if uint64(channel) >= fallbackLines {
		return "", 0, ErrChannelNotAvailable
	}
	return fallback, uint8(channel), nil
}

func (p *Pwm) linePath() string {
	return fmt.Sprintf("%s/pwm%d", p.chipPath, p.line)
}

func (p *Pwm) writeChip(name string, value uint64) error {
	path := filepath.Join(p.chipPath, name)
	if err := os.WriteFile(path, []byte(strconv.FormatUint(value, 10)), 0o600); err != nil {
		return pkgerrors.Wrapf(err, "writing %s", path)
	}
	return nil
}

func (p *Pwm) writeLine(name string, value uint64) error {
	path := filepath.Join(p.linePath(), name)
	if err := os.WriteFile(path, []byte(strconv.FormatUint(value, 10)), 0o600); err != nil {
		return pkgerrors.Wrapf(err, "writing %s", path)
	}
	return nil
}

func (p *Pwm) readLine(name string) (uint64, error) {
	return readNumber(filepath.Join(p.linePath(), name))
}

func readNumber(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "reading %s", path)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "parsing %s", path)
	}
	return n, nil
}

// export asks the chip to expose the channel's attribute directory. A
// channel that is already exported, by an earlier run or another
// process, is left alone.
func (p *Pwm) export() error {
	if _, err := os.Lstat(p.linePath()); err == nil {
		logrus.WithField("channel", p.channel).Debug("pwm: channel already exported")
		return nil
	} else if !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "checking %s", p.linePath())
	}
	return p.writeChip("export", uint64(p.line))
}

// waitWritable polls until udev has granted write access to the freshly
// exported attribute files.
func (p *Pwm) waitWritable() error {
	deadline := time.Now().Add(udevSettleTimeout)
	for {
		f, err := os.OpenFile(filepath.Join(p.linePath(), "period"), os.O_WRONLY, 0)
		if err == nil {
			f.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return pkgerrors.Wrapf(err, "pwm: waiting for channel %d to become writable", p.channel)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Channel returns the channel this handle configures.
func (p *Pwm) Channel() Channel { return p.channel }

// Period returns the configured period.
func (p *Pwm) Period() (time.Duration, error) {
	ns, err := p.readLine("period")
	return time.Duration(ns), err
}

// SetPeriod changes the period. The chip rejects a period shorter than
// the current pulse width.
func (p *Pwm) SetPeriod(period time.Duration) error {
	return p.writeLine("period", durationNs(period))
}

// PulseWidth returns the configured pulse width.
func (p *Pwm) PulseWidth() (time.Duration, error) {
	ns, err := p.readLine("duty_cycle")
	return time.Duration(ns), err
}

// SetPulseWidth changes the pulse width. The chip rejects a pulse width
// longer than the current period.
func (p *Pwm) SetPulseWidth(pulseWidth time.Duration) error {
	return p.writeLine("duty_cycle", durationNs(pulseWidth))
}

// Frequency returns the configured frequency in hertz, or 0 while the
// period is unset.
func (p *Pwm) Frequency() (float64, error) {
	period, err := p.Period()
	if err != nil || period == 0 {
		return 0, err
	}
	return float64(time.Second) / float64(period), nil
}

// SetFrequency reconfigures the channel from a frequency in hertz and a
// duty cycle, clamped to 0.0 through 1.0.
func (p *Pwm) SetFrequency(frequencyHz, dutyCycle float64) error {
	period, pulse := frequencyToPeriod(frequencyHz, dutyCycle)
	return p.setPeriodAndPulse(durationNs(period), durationNs(pulse))
}

// DutyCycle returns the configured pulse width as a fraction of the
// period, or 0 while the period is unset.
func (p *Pwm) DutyCycle() (float64, error) {
	period, err := p.Period()
	if err != nil || period == 0 {
		return 0, err
	}
	pulse, err := p.PulseWidth()
	if err != nil {
		return 0, err
	}
	return float64(pulse) / float64(period), nil
}

// SetDutyCycle changes the pulse width to the given fraction of the
// current period, clamped to 0.0 through 1.0.
func (p *Pwm) SetDutyCycle(dutyCycle float64) error {
	period, err := p.Period()
	if err != nil {
		return err
	}
	pulse := time.Duration(float64(period) * max(0, min(1, dutyCycle)))
	return p.SetPulseWidth(pulse)
}

// setPeriodAndPulse applies a period and pulse width together. The chip
// rejects any intermediate state where the pulse width exceeds the
// period, so the pulse is zeroed and the period parked on a safe value
// before the real settings go in.
func (p *Pwm) setPeriodAndPulse(periodNs, pulseNs uint64) error {
	// With the pulse at zero every period is acceptable. The write can
	// only fail while the period is still unset, in which case the
	// pulse already is zero.
	_ = p.writeLine("duty_cycle", 0)
	if err := p.writeLine("period", safePeriodNs); err != nil {
		return err
	}
	if err := p.writeLine("period", periodNs); err != nil {
		return err
	}
	return p.writeLine("duty_cycle", pulseNs)
}

// Polarity returns the configured polarity.
func (p *Pwm) Polarity() (Polarity, error) {
	path := filepath.Join(p.linePath(), "polarity")
	data, err := os.ReadFile(path)
	if err != nil {
		return PolarityNormal, pkgerrors.Wrapf(err, "reading %s", path)
	}
	switch s := strings.TrimSpace(string(data)); s {
	case "normal":
		return PolarityNormal, nil
	case "inversed":
		return PolarityInverse, nil
	default:
		return PolarityNormal, pkgerrors.Errorf("pwm: unknown polarity %q", s)
	}
}

// SetPolarity changes the polarity. Most chips only accept this while
// the channel is disabled.
func (p *Pwm) SetPolarity(polarity Polarity) error {
	path := filepath.Join(p.linePath(), "polarity")
	if err := os.WriteFile(path, []byte(polarity.String()), 0o600); err != nil {
		return pkgerrors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// IsEnabled reports whether the channel is outputting its signal.
func (p *Pwm) IsEnabled() (bool, error) {
	n, err := p.readLine("enable")
	return n != 0, err
}

// Enable starts the output signal.
func (p *Pwm) Enable() error {
	return p.writeLine("enable", 1)
}

// Disable stops the output signal. The channel keeps its settings and
// can be re-enabled.
func (p *Pwm) Disable() error {
	return p.writeLine("enable", 0)
}

// ResetOnDrop reports whether Close disables and unexports the channel.
func (p *Pwm) ResetOnDrop() bool { return p.resetOnDrop }

// SetResetOnDrop controls whether Close disables and unexports the
// channel. Disable it to leave the signal running after this process
// exits.
func (p *Pwm) SetResetOnDrop(resetOnDrop bool) {
	p.resetOnDrop = resetOnDrop
}

// Close releases the channel. With reset-on-drop set, the default, the
// output is disabled and the channel unexported.
func (p *Pwm) Close() error {
	if !p.resetOnDrop {
		return nil
	}
	if _, err := os.Lstat(p.linePath()); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return pkgerrors.Wrapf(err, "checking %s", p.linePath())
	}
	// An exported channel keeps driving its signal after unexport on
	// some chips, so disable it first. Disabling twice is harmless.
	_ = p.Disable()
	// Unexporting immediately after another attribute write can corrupt
	// the PWM state on some chips. Give the kernel a moment.
	time.Sleep(10 * time.Millisecond)
	return p.writeChip("unexport", uint64(p.line))
}

func durationNs(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d.Nanoseconds())
}

func frequencyToPeriod(frequencyHz, dutyCycle float64) (period, pulse time.Duration) {
	if frequencyHz > 0 {
		period = time.Duration(float64(time.Second) / frequencyHz)
	}
	pulse = time.Duration(float64(period) * max(0, min(1, dutyCycle)))
	return period, pulse
}
