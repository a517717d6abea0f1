// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hal adapts this module's handles to the periph.io conn/v3
// interfaces, so device drivers written against gpio.PinIO, i2c.Bus or
// spi.Port run unchanged on top of them.
//
//	ctrl, _ := gpio.New()
//	p, _ := ctrl.Get(22)
//	dht := mydriver.New(hal.NewPin(p.IntoIO(gpio.Output)))
//
// The adapters do not register with gpioreg or the driver registry; they
// wrap handles the caller already owns and follow their lifetime.
package hal
