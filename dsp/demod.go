package dsp

import (
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/chzchzchz/rtlrx/radio"
	"github.com/chzchzchz/rtlrx/sdrerr"
)

type Mode int

const (
	FM Mode = iota
	AM
	USB
	LSB
)

var modeNames = map[Mode]string{FM: "fm", AM: "am", USB: "usb", LSB: "lsb"}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return FM, sdrerr.Errorf(sdrerr.InvalidParameter, "demod mode", "unknown mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) (err error) {
	*m, err = ParseMode(string(b))
	return err
}

// DemodConfig is read once per block. CarrierHz is descriptive only.
// Zero values disable the optional stages.
type DemodConfig struct {
	Mode      Mode    `json:"mode"`
	Gain      float64 `json:"gain"`
	CarrierHz uint32  `json:"carrier_hz"`

	// BandwidthHz limits the IQ to a channel around the center before
	// demodulation, using the named Filter backend.
	BandwidthHz int    `json:"bandwidth_hz,omitempty"`
	Filter      string `json:"filter,omitempty"`

	AudioFilter bool    `json:"audio_filter,omitempty"`
	AGC         bool    `json:"agc,omitempty"`
	NoiseGate   float64 `json:"noise_gate,omitempty"`
	// SquelchDB mutes blocks whose audio RMS falls under it.
	SquelchDB float64 `json:"squelch_db,omitempty"`
}

// AudioFrame is demodulated audio at SampleRate, one per IQ block.
type AudioFrame struct {
	Seq        uint64
	SampleRate int
	Samples    []float32
}

// DemodulateFM emits the wrapped phase step between consecutive samples,
// so n samples produce n-1 outputs.
func DemodulateFM(samps []complex64, gain float64) []float32 {
	if len(samps) < 2 {
		return nil
	}
	out := make([]float32, len(samps)-1)
	prev := phase(samps[0])
	for i := 1; i < len(samps); i++ {
		cur := phase(samps[i])
		d := cur - prev
		// Wrap into (-pi, pi].
		for d > math.Pi {
			d -= 2 * math.Pi
		}
		for d <= -math.Pi {
			d += 2 * math.Pi
		}
		out[i-1] = float32(d * gain)
		prev = cur
	}
	return out
}

func phase(c complex64) float64 { return math.Atan2(float64(imag(c)), float64(real(c))) }

// DemodulateAM is the envelope with the unity carrier removed.
func DemodulateAM(samps []complex64, gain float64) []float32 {
	out := make([]float32, len(samps))
	for i, c := range samps {
		re, im := float64(real(c)), float64(imag(c))
		out[i] = float32((math.Sqrt(re*re+im*im) - 1.0) * gain)
	}
	return out
}

// DemodulateSSB takes the in-phase branch for the upper sideband and the
// quadrature branch for the lower.
func DemodulateSSB(samps []complex64, gain float64, upper bool) []float32 {
	out := make([]float32, len(samps))
	for i, c := range samps {
		v := imag(c)
		if upper {
			v = real(c)
		}
		out[i] = float32(float64(v) * gain)
	}
	return out
}

func Demodulate(cfg DemodConfig, samps []complex64) []float32 {
	switch cfg.Mode {
	case AM:
		return DemodulateAM(samps, cfg.Gain)
	case USB:
		return DemodulateSSB(samps, cfg.Gain, true)
	case LSB:
		return DemodulateSSB(samps, cfg.Gain, false)
	}
	return DemodulateFM(samps, cfg.Gain)
}

// Demodulator converts IQ blocks into AudioFrames at a fixed output rate.
type Demodulator struct {
	mu        sync.Mutex
	cfg       DemodConfig
	inRate    int
	outRate   int
	resampler string
	rs        Resampler

	ch    ChannelFilter
	af    audioFilter
	agc   *AGC
	muted bool
}

// NewDemodulator builds a demodulator resampling from inRate to outRate
// with the named resampler backend ("" for the default).
func NewDemodulator(cfg DemodConfig, inRate, outRate int, resampler string) (*Demodulator, error) {
	d := &Demodulator{cfg: cfg, resampler: resampler, outRate: outRate, agc: NewAGC()}
	if err := d.SetInputRate(inRate); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Demodulator) Config() DemodConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// SetConfig takes effect from the next block. A bad filter backend leaves
// the old configuration in place.
func (d *Demodulator) SetConfig(cfg DemodConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.BandwidthHz != d.cfg.BandwidthHz || cfg.Filter != d.cfg.Filter {
		ch, err := NewChannelFilter(cfg.Filter, cfg.BandwidthHz, d.inRate)
		if err != nil {
			return err
		}
		closeStage(d.ch)
		d.ch = ch
	}
	if !cfg.AGC {
		d.agc = NewAGC()
	}
	if cfg.SquelchDB == 0 {
		d.muted = false
	}
	d.cfg = cfg
	return nil
}

func (d *Demodulator) SetMode(m Mode) {
	d.mu.Lock()
	d.cfg.Mode = m
	d.mu.Unlock()
}

func (d *Demodulator) SetCarrier(hz uint32) {
	d.mu.Lock()
	d.cfg.CarrierHz = hz
	d.mu.Unlock()
}

func (d *Demodulator) OutputRate() int { return d.outRate }

// SetInputRate rebuilds the resampler for a new IQ sample rate.
func (d *Demodulator) SetInputRate(inRate int) error {
	if inRate <= 0 || d.outRate <= 0 {
		return sdrerr.Errorf(sdrerr.InvalidParameter, "demod rate", "in %d out %d", inRate, d.outRate)
	}
	rs, err := NewResampler(d.resampler, inRate, d.outRate)
	if err != nil {
		return err
	}
	d.mu.Lock()
	ch, err := NewChannelFilter(d.cfg.Filter, d.cfg.BandwidthHz, inRate)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	old, oldCh := d.rs, d.ch
	d.inRate, d.rs, d.ch = inRate, rs, ch
	d.mu.Unlock()
	closeStage(old)
	closeStage(oldCh)
	return nil
}

// closeStage releases backends holding native state.
func closeStage(v any) {
	if c, ok := v.(interface{ Close() }); ok {
		c.Close()
	}
}

func (d *Demodulator) Process(blk radio.IQBlock) AudioFrame {
	d.mu.Lock()
	defer d.mu.Unlock()
	samps := blk.Samples
	if d.ch != nil {
		samps = d.ch.Filter(samps)
	}
	audio := Demodulate(d.cfg, samps)
	if d.cfg.AudioFilter {
		d.af.apply(audio)
	}
	if d.cfg.AGC {
		d.agc.Apply(audio)
	}
	if d.cfg.NoiseGate > 0 {
		NoiseGate(audio, d.cfg.NoiseGate)
	}
	if d.cfg.SquelchDB != 0 {
		muted := Squelch(audio, d.cfg.SquelchDB)
		if muted != d.muted {
			log.Printf("[DEBUG] squelch muted=%v", muted)
			d.muted = muted
		}
	}
	return AudioFrame{Seq: blk.Seq, SampleRate: d.outRate, Samples: d.rs.Resample(audio)}
}

// Muted reports whether squelch closed on the last block.
func (d *Demodulator) Muted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted
}

func (d *Demodulator) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	closeStage(d.rs)
	closeStage(d.ch)
}
