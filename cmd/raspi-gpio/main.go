// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

// raspi-gpio inspects and drives the Raspberry Pi's GPIO header from the
// command line.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"periph.io/x/raspi/boardinfo"
	"periph.io/x/raspi/gpio"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "raspi-gpio",
	Short: "Inspect and drive the Raspberry Pi's GPIO header",
	Long: `raspi-gpio reads and writes GPIO pins, watches for edges and generates
software PWM through the same userspace register access the library uses:
/dev/gpiomem on BCM boards and /dev/gpiomem0 on the Raspberry Pi 5.

Pin numbers are BCM numbers, not physical header positions.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var (
	logLevel  string
	logFormat string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning", "log level (debug, info, warning, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(pwmCmd)
	rootCmd.AddCommand(blinkCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", logFormat)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("raspi-gpio %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the detected board and host facts",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	board, err := boardinfo.Detect()
	if err != nil {
		return err
	}
	fmt.Printf("Model:          %s\n", board.Model)
	fmt.Printf("SoC:            %s\n", board.SoC)
	if board.PeripheralBase != 0 {
		fmt.Printf("Peripherals:    %#x (GPIO at +%#x)\n", board.PeripheralBase, board.GpioOffset)
	}
	fmt.Printf("GPIO lines:     %d (%s)\n", board.GpioLines, board.GpioChipLabel)
	fmt.Printf("Default I2C:    i2c-%d\n", board.DefaultI2CBus)
	fmt.Printf("PWM channels:   %d\n", board.PwmChannels)

	// Host facts are best effort; the board facts above are the point.
	if hi, err := host.Info(); err == nil {
		fmt.Printf("Hostname:       %s\n", hi.Hostname)
		fmt.Printf("Kernel:         %s %s\n", hi.OS, hi.KernelVersion)
		fmt.Printf("Uptime:         %s\n", (time.Duration(hi.Uptime) * time.Second))
	} else {
		logrus.WithError(err).Warn("host information unavailable")
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Printf("Memory:         %d MB total, %d MB available\n",
			vm.Total/(1<<20), vm.Available/(1<<20))
	}
	if temps, err := host.SensorsTemperatures(); err == nil {
		for _, s := range temps {
			if strings.Contains(s.SensorKey, "thermal") && s.Temperature > 0 {
				fmt.Printf("Temperature:    %.1f°C (%s)\n", s.Temperature, s.SensorKey)
			}
		}
	}
	return nil
}

var readCmd = &cobra.Command{
	Use:   "read <pin>",
	Short: "Read a pin's level without reconfiguring it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

func runRead(cmd *cobra.Command, args []string) error {
	num, err := parsePin(args[0])
	if err != nil {
		return err
	}
	ctrl, err := gpio.New()
	if err != nil {
		return err
	}
	defer ctrl.Close()
	p, err := ctrl.Get(num)
	if err != nil {
		return err
	}
	defer p.Close()
	fmt.Printf("GPIO%d: %s (%s)\n", num, p.Read(), p.Mode())
	return nil
}

var writeCmd = &cobra.Command{
	Use:   "write <pin> <low|high>",
	Short: "Configure a pin as an output and set its level",
	Args:  cobra.ExactArgs(2),
	RunE:  runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	num, err := parsePin(args[0])
	if err != nil {
		return err
	}
	level, err := parseLevel(args[1])
	if err != nil {
		return err
	}
	ctrl, err := gpio.New()
	if err != nil {
		return err
	}
	defer ctrl.Close()
	p, err := ctrl.Get(num)
	if err != nil {
		return err
	}
	out := p.IntoOutput()
	// The level has to survive this process.
	out.SetResetOnDrop(false)
	defer out.Close()
	out.Write(level)
	return nil
}

var modeCmd = &cobra.Command{
	Use:   "mode <pin> [input|output|alt0..alt8]",
	Short: "Show or set a pin's function",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMode,
}

func runMode(cmd *cobra.Command, args []string) error {
	num, err := parsePin(args[0])
	if err != nil {
		return err
	}
	ctrl, err := gpio.New()
	if err != nil {
		return err
	}
	defer ctrl.Close()
	p, err := ctrl.Get(num)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		defer p.Close()
		fmt.Printf("GPIO%d: %s\n", num, p.Mode())
		return nil
	}
	mode, err := parseMode(args[1])
	if err != nil {
		p.Close()
		return err
	}
	io := p.IntoIO(mode)
	io.SetResetOnDrop(false)
	defer io.Close()
	return nil
}

var pullCmd = &cobra.Command{
	Use:   "pull <pin> <off|down|up>",
	Short: "Set a pin's bias resistor",
	Args:  cobra.ExactArgs(2),
	RunE:  runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	num, err := parsePin(args[0])
	if err != nil {
		return err
	}
	var pull gpio.Pull
	switch strings.ToLower(args[1]) {
	case "off", "none":
		pull = gpio.PullOff
	case "down":
		pull = gpio.PullDown
	case "up":
		pull = gpio.PullUp
	default:
		return fmt.Errorf("unknown pull %q", args[1])
	}
	ctrl, err := gpio.New()
	if err != nil {
		return err
	}
	defer ctrl.Close()
	p, err := ctrl.Get(num)
	if err != nil {
		return err
	}
	io := p.IntoIO(p.Mode())
	io.SetResetOnDrop(false)
	defer io.Close()
	io.SetPull(pull)
	return nil
}

var (
	pollTrigger  string
	pollDebounce time.Duration
	pollTimeout  time.Duration
	pollReset    bool
)

var pollCmd = &cobra.Command{
	Use:   "poll <pin> [pin...]",
	Short: "Watch pins for edges and print each event",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPoll,
}

func init() {
	pollCmd.Flags().StringVar(&pollTrigger, "trigger", "both", "edge to watch (rising, falling, both)")
	pollCmd.Flags().DurationVar(&pollDebounce, "debounce", 0, "kernel debounce period")
	pollCmd.Flags().DurationVar(&pollTimeout, "timeout", -1, "give up after this long (-1 waits forever)")
	pollCmd.Flags().BoolVar(&pollReset, "reset", false, "discard edges that happened before the first poll")
}

func runPoll(cmd *cobra.Command, args []string) error {
	var trigger gpio.Trigger
	switch strings.ToLower(pollTrigger) {
	case "rising":
		trigger = gpio.TriggerRisingEdge
	case "falling":
		trigger = gpio.TriggerFallingEdge
	case "both":
		trigger = gpio.TriggerBoth
	default:
		return fmt.Errorf("unknown trigger %q", pollTrigger)
	}

	ctrl, err := gpio.New()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	pins := make([]*gpio.InputPin, 0, len(args))
	for _, arg := range args {
		num, err := parsePin(arg)
		if err != nil {
			return err
		}
		p, err := ctrl.Get(num)
		if err != nil {
			return err
		}
		in := p.IntoInput()
		defer in.Close()
		if err := in.SetInterrupt(trigger, pollDebounce); err != nil {
			return err
		}
		pins = append(pins, in)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var deadline time.Time
	if pollTimeout >= 0 {
		deadline = time.Now().Add(pollTimeout)
	}
	reset := pollReset
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		slice := 500 * time.Millisecond
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil
			}
			if remaining < slice {
				slice = remaining
			}
		}
		pin, ev, err := ctrl.PollInterrupts(pins, reset, slice)
		reset = false
		if err != nil {
			return err
		}
		if ev == nil {
			continue
		}
		fmt.Printf("%14s GPIO%d %s\n", ev.Timestamp, pin.Number(), ev.Trigger)
	}
}

var (
	pwmPeriod time.Duration
	pwmPulse  time.Duration
)

var pwmCmd = &cobra.Command{
	Use:   "pwm <pin>",
	Short: "Generate software PWM on a pin until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runPwm,
}

func init() {
	pwmCmd.Flags().DurationVar(&pwmPeriod, "period", 20*time.Millisecond, "cycle period")
	pwmCmd.Flags().DurationVar(&pwmPulse, "pulse-width", time.Millisecond, "high time per cycle")
}

func runPwm(cmd *cobra.Command, args []string) error {
	num, err := parsePin(args[0])
	if err != nil {
		return err
	}
	ctrl, err := gpio.New()
	if err != nil {
		return err
	}
	defer ctrl.Close()
	p, err := ctrl.Get(num)
	if err != nil {
		return err
	}
	out := p.IntoOutputLow()
	defer out.Close()
	if err := out.SetPwm(pwmPeriod, pwmPulse); err != nil {
		return err
	}
	fmt.Printf("GPIO%d: %s period, %s pulse width; ctrl-c to stop\n", num, pwmPeriod, pwmPulse)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	return out.ClearPwm()
}

var (
	blinkInterval time.Duration
	blinkCount    int
)

var blinkCmd = &cobra.Command{
	Use:   "blink <pin>",
	Short: "Toggle a pin at a fixed interval",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlink,
}

func init() {
	blinkCmd.Flags().DurationVar(&blinkInterval, "interval", 500*time.Millisecond, "time between toggles")
	blinkCmd.Flags().IntVar(&blinkCount, "count", 0, "number of toggles (0 runs until interrupted)")
}

func runBlink(cmd *cobra.Command, args []string) error {
	num, err := parsePin(args[0])
	if err != nil {
		return err
	}
	ctrl, err := gpio.New()
	if err != nil {
		return err
	}
	defer ctrl.Close()
	p, err := ctrl.Get(num)
	if err != nil {
		return err
	}
	out := p.IntoOutputLow()
	defer out.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	tick := time.NewTicker(blinkInterval)
	defer tick.Stop()

	for toggles := 0; blinkCount == 0 || toggles < blinkCount; toggles++ {
		select {
		case <-stop:
			return nil
		case <-tick.C:
			out.Toggle()
		}
	}
	return nil
}

func parsePin(arg string) (uint8, error) {
	num, err := strconv.ParseUint(arg, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid pin %q", arg)
	}
	return uint8(num), nil
}

func parseLevel(arg string) (gpio.Level, error) {
	switch strings.ToLower(arg) {
	case "0", "low":
		return gpio.Low, nil
	case "1", "high":
		return gpio.High, nil
	}
	return gpio.Low, fmt.Errorf("unknown level %q", arg)
}

func parseMode(arg string) (gpio.Mode, error) {
	s := strings.ToLower(arg)
	switch s {
	case "input", "in":
		return gpio.Input, nil
	case "output", "out":
		return gpio.Output, nil
	}
	if n, ok := strings.CutPrefix(s, "alt"); ok {
		alt, err := strconv.ParseUint(n, 10, 8)
		if err == nil && alt <= 8 {
			return gpio.Alt0 + gpio.Mode(alt), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", arg)
}
