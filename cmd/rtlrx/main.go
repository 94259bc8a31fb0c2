package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlrx/config"
	"github.com/chzchzchz/rtlrx/dsp"
	_ "github.com/chzchzchz/rtlrx/dsp/fftw"
	_ "github.com/chzchzchz/rtlrx/dsp/liquid"
	"github.com/chzchzchz/rtlrx/receiver"
	"github.com/chzchzchz/rtlrx/usb"
	"github.com/chzchzchz/rtlrx/usb/usbtest"
)

var rootCmd = &cobra.Command{
	Use:              "rtlrx",
	Short:            "An RTL2832U/R820T receiver.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) { loadConfig(cmd) },
}

var (
	cfg = config.Default()

	configPath string
	logLevel   string
	simulate   bool
	toneHz     float64

	centerHz    uint32
	sampleHz    uint32
	gainTenthDb int
	modeName    string
	fftSize     int
	transform   string
	resampler   string
	volume      float64
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "C", "", "INI configuration file")
	pf.StringVarP(&logLevel, "log-level", "", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.BoolVarP(&simulate, "simulate", "", false, "Use a simulated dongle producing a tone")
	pf.Float64VarP(&toneHz, "tone-hz", "", 100e3, "Offset of the simulated tone in Hz")
	pf.Uint32VarP(&centerHz, "frequency", "f", 0, "Center frequency in Hz")
	pf.Uint32VarP(&sampleHz, "sample-rate", "s", 0, "Sample rate in Hz")
	pf.IntVarP(&gainTenthDb, "gain", "g", -1, "Tuner gain in tenths of dB; negative for auto")
	pf.StringVarP(&modeName, "mode", "m", "", "Demodulation mode (fm, am, usb, lsb)")
	pf.IntVarP(&fftSize, "fft-size", "n", 0, "FFT size")
	pf.StringVarP(&transform, "fft", "", "", "FFT backend ("+strings.Join(dsp.Transforms(), ", ")+")")
	pf.StringVarP(&resampler, "resampler", "", "", "Audio resampler ("+strings.Join(dsp.Resamplers(), ", ")+")")
	pf.Float64VarP(&volume, "volume", "v", -1, "Output volume in [0,1]")
}

// loadConfig layers flags over the config file over defaults.
func loadConfig(cmd *cobra.Command) {
	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			panic(err)
		}
		cfg = c
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("frequency") {
		cfg.Tuner.FrequencyHz = centerHz
	}
	if flags.Changed("sample-rate") {
		cfg.Tuner.SampleRateHz = sampleHz
	}
	if flags.Changed("gain") {
		cfg.Tuner.AutoGain = gainTenthDb < 0
		if gainTenthDb >= 0 {
			cfg.Tuner.GainTenthDb = gainTenthDb
		}
	}
	if flags.Changed("mode") {
		m, err := dsp.ParseMode(modeName)
		if err != nil {
			panic(err)
		}
		cfg.Audio.Mode = m
	}
	if flags.Changed("fft-size") {
		cfg.Spectrum.FFTSize = fftSize
	}
	if flags.Changed("fft") {
		cfg.Spectrum.Transform = transform
	}
	if flags.Changed("resampler") {
		cfg.Audio.Resampler = resampler
	}
	if flags.Changed("volume") {
		cfg.Audio.Volume = volume
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	if err := config.SetupLogging(cfg.LogLevel, os.Stderr); err != nil {
		panic(err)
	}
}

func opener() receiver.Opener {
	if simulate {
		rate := float64(cfg.Tuner.SampleRateHz)
		return func() (usb.Link, error) { return usbtest.New(usbtest.Tone(rate, toneHz)), nil }
	}
	return receiver.USBOpener(cfg.Device.Vendor, cfg.Device.Product, cfg.USBOptions())
}

// newReceiver connects a receiver built from the current configuration.
func newReceiver(l receiver.Listener) *receiver.Receiver {
	rx, err := receiver.New(opener(), cfg.Receiver(), l)
	if err != nil {
		panic(err)
	}
	if err := rx.ConnectRetry(context.Background()); err != nil {
		panic(err)
	}
	return rx
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
