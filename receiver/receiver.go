// Package receiver ties a device, the stream engine, the spectrum engine and
// the demodulator together behind the connect/tune/start/stop contract an
// application shell drives.
package receiver

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/chzchzchz/rtlrx/dsp"
	"github.com/chzchzchz/rtlrx/radio"
	"github.com/chzchzchz/rtlrx/sdrerr"
	"github.com/chzchzchz/rtlrx/stream"
	"github.com/chzchzchz/rtlrx/usb"
)

var ErrDisconnected = errors.New("receiver not connected")

type State int32

const (
	Disconnected State = iota
	Connected
	Streaming
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Streaming:
		return "streaming"
	}
	return "disconnected"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Listener callbacks run on receiver goroutines and must not block for long.
// Any of them may be nil.
type Listener struct {
	OnState    func(State)
	OnSpectrum func(dsp.SpectrumFrame)
	OnAudio    func(dsp.AudioFrame)
	OnError    func(error)
}

// Opener returns a fresh link to the dongle.
type Opener func() (usb.Link, error)

// USBOpener opens the first dongle matching vid:pid.
func USBOpener(vid, pid uint16, opts usb.Options) Opener {
	return func() (usb.Link, error) { return usb.Open(vid, pid, opts) }
}

type Config struct {
	Tuner  radio.TunerState
	Stream radio.StreamConfig

	FFTSize          int
	Transform        string
	SpectrumInterval time.Duration
	// Averaging weights each new spectrum frame; zero disables it.
	Averaging float64
	// Depth is the queue length of each internal subscriber.
	Depth int

	Demod     dsp.DemodConfig
	AudioRate int
	Resampler string

	// ConnectWait bounds ConnectRetry. Zero tries once.
	ConnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tuner:            radio.DefaultTunerState(),
		FFTSize:          dsp.DefaultFFTSize,
		SpectrumInterval: 75 * time.Millisecond,
		Depth:            8,
		Demod:            dsp.DemodConfig{Mode: dsp.FM, Gain: 1.0},
		AudioRate:        48000,
	}
}

type Receiver struct {
	open Opener
	l    Listener

	iq    *stream.Broadcaster[radio.IQBlock]
	audio *stream.Broadcaster[dsp.AudioFrame]
	sp    *dsp.Spectrum
	demod *dsp.Demodulator

	mu       sync.Mutex
	cfg      Config
	state    State
	dev      *radio.Device
	consumer *consumers

	lastMu    sync.RWMutex
	last      dsp.SpectrumFrame
	lastTuner radio.TunerState
}

func New(open Opener, cfg Config, l Listener) (*Receiver, error) {
	if cfg.Depth <= 0 {
		cfg.Depth = 1
	}
	sp, err := dsp.NewSpectrum(cfg.FFTSize, cfg.Transform)
	if err != nil {
		return nil, err
	}
	sp.SetAveraging(cfg.Averaging)
	cfg.Demod.CarrierHz = cfg.Tuner.FrequencyHz
	demod, err := dsp.NewDemodulator(cfg.Demod, int(cfg.Tuner.SampleRateHz), cfg.AudioRate, cfg.Resampler)
	if err != nil {
		return nil, err
	}
	return &Receiver{
		open:  open,
		l:     l,
		iq:    stream.NewBroadcaster[radio.IQBlock](),
		audio: stream.NewBroadcaster[dsp.AudioFrame](),
		sp:    sp,
		demod: demod,
		cfg:   cfg,
	}, nil
}

func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Receiver) notify(s State) {
	log.Printf("[INFO] receiver %s", s)
	if r.l.OnState != nil {
		r.l.OnState(s)
	}
}

// Connect opens the link and programs the tuner with the configured state.
func (r *Receiver) Connect() error {
	r.mu.Lock()
	if r.state != Disconnected {
		r.mu.Unlock()
		return nil
	}
	link, err := r.open()
	if err != nil {
		r.mu.Unlock()
		return err
	}
	dev := radio.NewDevice(link, r.iq, r.cfg.Stream)
	dev.Stream.OnError = func(err error) { go r.streamFailed(dev, err) }
	if err := dev.Init(r.cfg.Tuner); err != nil {
		link.Close()
		r.mu.Unlock()
		return err
	}
	r.dev, r.state = dev, Connected
	r.mu.Unlock()
	r.notify(Connected)
	return nil
}

// Disconnect stops streaming and releases the link.
func (r *Receiver) Disconnect() error {
	r.mu.Lock()
	if r.state == Disconnected {
		r.mu.Unlock()
		return nil
	}
	c := r.detachConsumers()
	err := r.dev.Close()
	r.dev, r.state = nil, Disconnected
	r.mu.Unlock()
	c.stop()
	r.notify(Disconnected)
	return err
}

func (r *Receiver) Start() error {
	r.mu.Lock()
	switch r.state {
	case Disconnected:
		r.mu.Unlock()
		return sdrerr.New(sdrerr.NotInitialized, "receiver start", ErrDisconnected)
	case Streaming:
		r.mu.Unlock()
		return nil
	}
	c, err := r.startConsumers()
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if err := r.dev.Stream.Start(); err != nil {
		c.stop()
		r.mu.Unlock()
		return err
	}
	r.consumer, r.state = c, Streaming
	r.mu.Unlock()
	r.notify(Streaming)
	return nil
}

func (r *Receiver) Stop() error {
	r.mu.Lock()
	if r.state != Streaming {
		r.mu.Unlock()
		return nil
	}
	err := r.dev.Stream.Stop()
	c := r.detachConsumers()
	r.state = Connected
	r.mu.Unlock()
	c.stop()
	r.notify(Connected)
	return err
}

// streamFailed moves a failed stream back to Connected.
func (r *Receiver) streamFailed(dev *radio.Device, err error) {
	r.mu.Lock()
	if r.dev != dev || r.state != Streaming {
		r.mu.Unlock()
		return
	}
	c := r.detachConsumers()
	r.state = Connected
	r.mu.Unlock()
	c.stop()
	r.notify(Connected)
	if r.l.OnError != nil {
		r.l.OnError(err)
	}
}

// Close disconnects and releases the fan-out.
func (r *Receiver) Close() error {
	err := r.Disconnect()
	r.iq.Close()
	r.audio.Close()
	r.demod.Close()
	return err
}

func (r *Receiver) connected() (*radio.Device, error) {
	if r.dev == nil {
		return nil, sdrerr.New(sdrerr.NotInitialized, "receiver", ErrDisconnected)
	}
	return r.dev, nil
}

// SetFrequency retunes the device. While disconnected, the value is checked
// and kept for the next Connect.
func (r *Receiver) SetFrequency(hz uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev == nil {
		if !radio.ValidFrequency(hz) {
			return sdrerr.New(sdrerr.InvalidParameter, "frequency", radio.ErrFrequencyOutOfRange)
		}
		r.cfg.Tuner.FrequencyHz = hz
	} else {
		if err := r.dev.SetFrequency(hz); err != nil {
			return err
		}
		r.cfg.Tuner = r.dev.Tuner()
	}
	r.demod.SetCarrier(hz)
	return nil
}

func (r *Receiver) SetGain(tenthDb int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev == nil {
		if !radio.ValidGain(tenthDb) {
			return sdrerr.New(sdrerr.InvalidParameter, "gain", radio.ErrGainOutOfRange)
		}
		r.cfg.Tuner.GainTenthDb, r.cfg.Tuner.AutoGain = tenthDb, false
		return nil
	}
	if err := r.dev.SetGain(tenthDb); err != nil {
		return err
	}
	r.cfg.Tuner = r.dev.Tuner()
	return nil
}

func (r *Receiver) SetAutoGain(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev == nil {
		r.cfg.Tuner.AutoGain = enabled
		return nil
	}
	if err := r.dev.SetAutoGain(enabled); err != nil {
		return err
	}
	r.cfg.Tuner = r.dev.Tuner()
	return nil
}

func (r *Receiver) SetFreqCorrection(ppm int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev == nil {
		if !radio.ValidPPM(ppm) {
			return sdrerr.New(sdrerr.InvalidParameter, "frequency correction", radio.ErrPPMOutOfRange)
		}
		r.cfg.Tuner.PPM = ppm
		return nil
	}
	if err := r.dev.SetFreqCorrection(ppm); err != nil {
		return err
	}
	r.cfg.Tuner = r.dev.Tuner()
	return nil
}

func (r *Receiver) SetSampleRate(rate uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev == nil {
		if !radio.ValidSampleRate(rate) {
			return sdrerr.New(sdrerr.InvalidParameter, "sample rate", radio.ErrRateOutOfRange)
		}
	} else if err := r.dev.SetSampleRate(rate); err != nil {
		return err
	}
	r.cfg.Tuner.SampleRateHz = rate
	// bins of the old frame no longer map to this rate
	r.setLast(nil, r.cfg.Tuner)
	return r.demod.SetInputRate(int(rate))
}

// SetDemod replaces the demodulator settings. The carrier always follows
// the tuner.
func (r *Receiver) SetDemod(dc dsp.DemodConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dc.CarrierHz = r.cfg.Tuner.FrequencyHz
	if err := r.demod.SetConfig(dc); err != nil {
		return err
	}
	r.cfg.Demod = dc
	return nil
}

func (r *Receiver) Demod() dsp.DemodConfig { return r.demod.Config() }

// SetMode takes effect from the next block.
func (r *Receiver) SetMode(m dsp.Mode) {
	r.demod.SetMode(m)
	r.mu.Lock()
	r.cfg.Demod.Mode = m
	r.mu.Unlock()
}

func (r *Receiver) Mode() dsp.Mode { return r.demod.Config().Mode }

func (r *Receiver) SetFFTSize(n int) error {
	if err := r.sp.SetSize(n); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg.FFTSize = n
	r.mu.Unlock()
	return nil
}

// Tuner is the last applied tuner state, or the pending one while
// disconnected.
func (r *Receiver) Tuner() radio.TunerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Tuner
}

func (r *Receiver) Info() (radio.SDRHWInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, err := r.connected()
	if err != nil {
		return radio.SDRHWInfo{}, err
	}
	return dev.Info(), nil
}

func (r *Receiver) Stats() (radio.StreamStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, err := r.connected()
	if err != nil {
		return radio.StreamStats{}, err
	}
	return dev.Stream.Stats(), nil
}

func (r *Receiver) Gains() []int { return radio.Gains() }

// LastSpectrum returns the most recent frame, nil before the first one.
func (r *Receiver) LastSpectrum() dsp.SpectrumFrame {
	f, _ := r.LastSpectrumAt()
	return f
}

// LastSpectrumAt also returns the tuning the frame was computed under.
func (r *Receiver) LastSpectrumAt() (dsp.SpectrumFrame, radio.TunerState) {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	return r.last, r.lastTuner
}

// Signals maps the detected peaks of the last frame to baseband offsets in
// Hz, skipping single-bin spurs.
func (r *Receiver) Signals(thresholdDB float64) []float64 {
	f, ts := r.LastSpectrumAt()
	if len(f) == 0 {
		return nil
	}
	spurs := make(map[int]struct{})
	for _, i := range f.Spurs() {
		spurs[i] = struct{}{}
	}
	rate := float64(ts.SampleRateHz)
	ret := []float64{}
	for _, i := range f.DetectSignals(thresholdDB) {
		if _, ok := spurs[i]; ok {
			continue
		}
		ret = append(ret, float64(i)*rate/float64(2*len(f)))
	}
	return ret
}

// Subscribe taps the raw IQ fan-out. The subscription survives reconnects.
func (r *Receiver) Subscribe(depth int) (*stream.Subscription[radio.IQBlock], error) {
	return r.iq.Subscribe(depth)
}

// SubscribeAudio taps demodulated audio while streaming.
func (r *Receiver) SubscribeAudio(depth int) (*stream.Subscription[dsp.AudioFrame], error) {
	return r.audio.Subscribe(depth)
}

func (r *Receiver) setLast(f dsp.SpectrumFrame, ts radio.TunerState) {
	r.lastMu.Lock()
	r.last, r.lastTuner = f, ts
	r.lastMu.Unlock()
}

type consumers struct {
	cancel context.CancelFunc
	subs   []*stream.Subscription[radio.IQBlock]
	wg     sync.WaitGroup
}

func (c *consumers) stop() {
	if c == nil {
		return
	}
	c.cancel()
	for _, s := range c.subs {
		s.Close()
	}
	c.wg.Wait()
}

// startConsumers gives the spectrum and audio paths independent
// drop-oldest subscriptions so a slow one never stalls the other.
func (r *Receiver) startConsumers() (*consumers, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &consumers{cancel: cancel}
	spSub, err := r.iq.Subscribe(r.cfg.Depth)
	if err != nil {
		cancel()
		return nil, err
	}
	auSub, err := r.iq.Subscribe(r.cfg.Depth)
	if err != nil {
		spSub.Close()
		cancel()
		return nil, err
	}
	c.subs = append(c.subs, spSub, auSub)
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for f := range dsp.SpectrumStream(ctx, r.sp, r.cfg.SpectrumInterval, spSub.C()) {
			r.setLast(f, r.Tuner())
			if r.l.OnSpectrum != nil {
				r.l.OnSpectrum(f)
			}
		}
		log.Printf("[DEBUG] spectrum consumer done, %d dropped", spSub.Dropped())
	}()
	go func() {
		defer c.wg.Done()
		for af := range dsp.AudioStream(ctx, r.demod, auSub.C()) {
			r.audio.Publish(af)
			if r.l.OnAudio != nil {
				r.l.OnAudio(af)
			}
		}
		log.Printf("[DEBUG] audio consumer done, %d dropped", auSub.Dropped())
	}()
	return c, nil
}

// detachConsumers hands the running consumers to the caller, which stops
// them after releasing r.mu so listener callbacks may call back in.
func (r *Receiver) detachConsumers() *consumers {
	c := r.consumer
	r.consumer = nil
	return c
}
