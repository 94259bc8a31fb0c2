// Package config loads rtlrx settings from an INI file over built-in
// defaults and sets up leveled logging.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/chzchzchz/rtlrx/dsp"
	"github.com/chzchzchz/rtlrx/radio"
	"github.com/chzchzchz/rtlrx/receiver"
	"github.com/chzchzchz/rtlrx/sdrerr"
	"github.com/chzchzchz/rtlrx/usb"
)

type DeviceConfig struct {
	Vendor         uint16
	Product        uint16
	ControlTimeout time.Duration
	BulkTimeout    time.Duration
	TransferSize   int
	// ConnectWait bounds retries while the dongle is absent or busy.
	ConnectWait time.Duration
}

type SpectrumConfig struct {
	FFTSize   int
	Transform string
	Interval  time.Duration
	Depth     int
	Averaging float64
}

type AudioConfig struct {
	Mode      dsp.Mode
	Gain      float64
	Rate      int
	Volume    float64
	Resampler string

	BandwidthHz int
	Filter      string
	AudioFilter bool
	AGC         bool
	NoiseGate   float64
	SquelchDB   float64
}

type ServerConfig struct {
	HTTP      string
	RTLTCP    string
	Advertise bool
}

type Config struct {
	Device   DeviceConfig
	Tuner    radio.TunerState
	Spectrum SpectrumConfig
	Audio    AudioConfig
	Server   ServerConfig
	LogLevel string
}

func Default() Config {
	return Config{
		Device: DeviceConfig{
			Vendor:         usb.VendorRealtek,
			Product:        usb.ProductRTL2838,
			ControlTimeout: usb.DefaultTimeout,
			BulkTimeout:    usb.DefaultTimeout,
			TransferSize:   radio.DefaultTransferSize,
			ConnectWait:    10 * time.Second,
		},
		Tuner: radio.DefaultTunerState(),
		Spectrum: SpectrumConfig{
			FFTSize:   dsp.DefaultFFTSize,
			Transform: "radix2",
			Interval:  75 * time.Millisecond,
			Depth:     8,
		},
		Audio: AudioConfig{
			Mode:   dsp.FM,
			Gain:   1.0,
			Rate:   48000,
			Volume: 0.5,
		},
		Server:   ServerConfig{HTTP: ":8080", RTLTCP: ":1234"},
		LogLevel: "INFO",
	}
}

// Load reads path over the defaults. Keys that are absent keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.apply(f); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Parse is Load for in-memory INI text.
func Parse(src []byte) (Config, error) {
	cfg := Default()
	f, err := ini.Load(src)
	if err != nil {
		return cfg, err
	}
	if err := cfg.apply(f); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

type setter func(*ini.Key) error

func (c *Config) apply(f *ini.File) error {
	sections := map[string]map[string]setter{
		"device": {
			"vendor":             hexSetter(&c.Device.Vendor),
			"product":            hexSetter(&c.Device.Product),
			"control_timeout_ms": msSetter(&c.Device.ControlTimeout),
			"bulk_timeout_ms":    msSetter(&c.Device.BulkTimeout),
			"transfer_size":      intSetter(&c.Device.TransferSize),
			"connect_wait_ms":    msSetter(&c.Device.ConnectWait),
		},
		"tuner": {
			"frequency_hz":  uint32Setter(&c.Tuner.FrequencyHz),
			"sample_rate":   uint32Setter(&c.Tuner.SampleRateHz),
			"gain_tenth_db": intSetter(&c.Tuner.GainTenthDb),
			"auto_gain":     boolSetter(&c.Tuner.AutoGain),
			"ppm":           intSetter(&c.Tuner.PPM),
		},
		"spectrum": {
			"fft_size":    intSetter(&c.Spectrum.FFTSize),
			"transform":   stringSetter(&c.Spectrum.Transform),
			"interval_ms": msSetter(&c.Spectrum.Interval),
			"depth":       intSetter(&c.Spectrum.Depth),
			"averaging":   floatSetter(&c.Spectrum.Averaging),
		},
		"audio": {
			"mode":      modeSetter(&c.Audio.Mode),
			"gain":      floatSetter(&c.Audio.Gain),
			"rate":      intSetter(&c.Audio.Rate),
			"volume":    floatSetter(&c.Audio.Volume),
			"resampler":    stringSetter(&c.Audio.Resampler),
			"bandwidth_hz": intSetter(&c.Audio.BandwidthHz),
			"filter":       stringSetter(&c.Audio.Filter),
			"audio_filter": boolSetter(&c.Audio.AudioFilter),
			"agc":          boolSetter(&c.Audio.AGC),
			"noise_gate":   floatSetter(&c.Audio.NoiseGate),
			"squelch_db":   floatSetter(&c.Audio.SquelchDB),
		},
		"server": {
			"http":      stringSetter(&c.Server.HTTP),
			"rtl_tcp":   stringSetter(&c.Server.RTLTCP),
			"advertise": boolSetter(&c.Server.Advertise),
		},
		"log": {
			"level": stringSetter(&c.LogLevel),
		},
	}
	for name, keys := range sections {
		sec, err := f.GetSection(name)
		if err != nil {
			continue
		}
		for _, k := range sec.Keys() {
			set, ok := keys[k.Name()]
			if !ok {
				return fmt.Errorf("[%s] unknown key %q", name, k.Name())
			}
			if err := set(k); err != nil {
				return fmt.Errorf("[%s] %s: %w", name, k.Name(), err)
			}
		}
	}
	return nil
}

func hexSetter(v *uint16) setter {
	return func(k *ini.Key) error {
		n, err := strconv.ParseUint(k.String(), 0, 16)
		*v = uint16(n)
		return err
	}
}

func msSetter(v *time.Duration) setter {
	return func(k *ini.Key) error {
		ms, err := k.Int64()
		*v = time.Duration(ms) * time.Millisecond
		return err
	}
}

func intSetter(v *int) setter {
	return func(k *ini.Key) (err error) {
		*v, err = k.Int()
		return err
	}
}

func uint32Setter(v *uint32) setter {
	return func(k *ini.Key) error {
		n, err := k.Uint64()
		if n > 1<<32-1 {
			return strconv.ErrRange
		}
		*v = uint32(n)
		return err
	}
}

func boolSetter(v *bool) setter {
	return func(k *ini.Key) (err error) {
		*v, err = k.Bool()
		return err
	}
}

func floatSetter(v *float64) setter {
	return func(k *ini.Key) (err error) {
		*v, err = k.Float64()
		return err
	}
}

func stringSetter(v *string) setter {
	return func(k *ini.Key) error {
		*v = k.String()
		return nil
	}
}

func modeSetter(v *dsp.Mode) setter {
	return func(k *ini.Key) error { return v.UnmarshalText([]byte(k.String())) }
}

func invalid(ctx, format string, args ...interface{}) error {
	return sdrerr.Errorf(sdrerr.InvalidParameter, "config "+ctx, format, args...)
}

func (c Config) Validate() error {
	if !dsp.IsPowerOfTwo(c.Spectrum.FFTSize) {
		return invalid("fft_size", "%d is not a power of two", c.Spectrum.FFTSize)
	}
	if !radio.ValidFrequency(c.Tuner.FrequencyHz) {
		return invalid("frequency_hz", "%d out of range", c.Tuner.FrequencyHz)
	}
	if !radio.ValidSampleRate(c.Tuner.SampleRateHz) {
		return invalid("sample_rate", "%d out of range", c.Tuner.SampleRateHz)
	}
	if !c.Tuner.AutoGain && !radio.ValidGain(c.Tuner.GainTenthDb) {
		return invalid("gain_tenth_db", "%d out of range", c.Tuner.GainTenthDb)
	}
	if c.Audio.Rate <= 0 {
		return invalid("rate", "%d", c.Audio.Rate)
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return invalid("volume", "%g not in [0,1]", c.Audio.Volume)
	}
	if c.Audio.BandwidthHz < 0 {
		return invalid("bandwidth_hz", "%d", c.Audio.BandwidthHz)
	}
	if c.Audio.SquelchDB > 0 {
		return invalid("squelch_db", "%g is above full scale", c.Audio.SquelchDB)
	}
	if c.Spectrum.Averaging < 0 || c.Spectrum.Averaging >= 1 {
		return invalid("averaging", "%g not in [0,1)", c.Spectrum.Averaging)
	}
	if !radio.ValidPPM(c.Tuner.PPM) {
		return invalid("ppm", "%d out of range", c.Tuner.PPM)
	}
	if c.Device.TransferSize <= 0 {
		return invalid("transfer_size", "%d", c.Device.TransferSize)
	}
	if !validLevel(c.LogLevel) {
		return invalid("log level", "%q not one of %s", c.LogLevel, strings.Join(levelNames(), ", "))
	}
	return nil
}

func (c Config) USBOptions() usb.Options {
	opts := usb.DefaultOptions()
	opts.ControlTimeout = c.Device.ControlTimeout
	return opts
}

func (c Config) Demod() dsp.DemodConfig {
	return dsp.DemodConfig{
		Mode:        c.Audio.Mode,
		Gain:        c.Audio.Gain,
		CarrierHz:   c.Tuner.FrequencyHz,
		BandwidthHz: c.Audio.BandwidthHz,
		Filter:      c.Audio.Filter,
		AudioFilter: c.Audio.AudioFilter,
		AGC:         c.Audio.AGC,
		NoiseGate:   c.Audio.NoiseGate,
		SquelchDB:   c.Audio.SquelchDB,
	}
}

func (c Config) Receiver() receiver.Config {
	rc := receiver.DefaultConfig()
	rc.Tuner = c.Tuner
	rc.Stream = radio.StreamConfig{TransferSize: c.Device.TransferSize, Timeout: c.Device.BulkTimeout}
	rc.FFTSize = c.Spectrum.FFTSize
	rc.Transform = c.Spectrum.Transform
	rc.SpectrumInterval = c.Spectrum.Interval
	rc.Depth = c.Spectrum.Depth
	rc.Averaging = c.Spectrum.Averaging
	rc.Demod = c.Demod()
	rc.AudioRate = c.Audio.Rate
	rc.Resampler = c.Audio.Resampler
	rc.ConnectWait = c.Device.ConnectWait
	return rc
}
