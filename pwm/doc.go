// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pwm drives the Raspberry Pi's hardware PWM channels through
// the sysfs PWM class.
//
// The BCM283x boards need dtoverlay=pwm or dtoverlay=pwm-2chan in
// config.txt before the channels appear; the Raspberry Pi 5 needs
// dtoverlay=pwm to expose the RP1's four channels. The channel-to-GPIO
// mapping is fixed by the overlay in use.
//
//	p, err := pwm.NewWithFrequency(pwm.Channel0, 25_000, 0.3,
//		pwm.PolarityNormal, true)
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
// By default Close disables the output and unexports the channel; call
// SetResetOnDrop(false) to keep the signal running past the lifetime of
// the handle.
//
// For PWM on arbitrary GPIO pins, at the cost of timing jitter, see the
// software PWM support on gpio.OutputPin.
package pwm
