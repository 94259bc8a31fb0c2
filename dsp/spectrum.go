package dsp

import (
	"math"
	"math/cmplx"
	"sync"
)

const (
	DefaultFFTSize = 1024
	// FloorDB replaces the log of non-positive magnitudes.
	FloorDB = -100.0
)

// SpectrumFrame holds N/2 bin powers in dB, bin i at i*rate/N Hz.
type SpectrumFrame []float64

// FloorFrame is a frame of n bins all at FloorDB.
func FloorFrame(n int) SpectrumFrame {
	f := make(SpectrumFrame, n)
	for i := range f {
		f[i] = FloorDB
	}
	return f
}

// specPlan is immutable apart from scratch, which is only touched under
// Spectrum.mu.
type specPlan struct {
	n       int
	window  []float64
	xf      Transform
	scratch []complex128
}

func newSpecPlan(n int, backend string) (*specPlan, error) {
	xf, err := NewTransform(backend, n)
	if err != nil {
		return nil, err
	}
	return &specPlan{n: n, window: Hamming(n), xf: xf, scratch: make([]complex128, n)}, nil
}

// Spectrum turns sample blocks into SpectrumFrames. It is safe for
// concurrent use; a size change is never visible halfway.
type Spectrum struct {
	mu      sync.Mutex
	backend string
	plan    *specPlan

	// alpha weights each new frame into avg; zero disables averaging.
	alpha float64
	avg   SpectrumFrame
}

func NewSpectrum(n int, backend string) (*Spectrum, error) {
	p, err := newSpecPlan(n, backend)
	if err != nil {
		return nil, err
	}
	return &Spectrum{backend: backend, plan: p}, nil
}

func (s *Spectrum) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan.n
}

// SetSize rebuilds the window, buffers and transform for n points.
func (s *Spectrum) SetSize(n int) error {
	p, err := newSpecPlan(n, s.backend)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.plan, s.avg = p, nil
	s.mu.Unlock()
	return nil
}

// SetAveraging smooths Analyze output exponentially, each frame weighted
// by alpha. Alpha outside (0, 1) turns averaging off.
func (s *Spectrum) SetAveraging(alpha float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !(alpha > 0 && alpha < 1) {
		alpha = 0
	}
	s.alpha, s.avg = alpha, nil
}

func (s *Spectrum) average(f SpectrumFrame) SpectrumFrame {
	if s.alpha == 0 {
		return f
	}
	if len(s.avg) != len(f) {
		s.avg = append(SpectrumFrame(nil), f...)
		return f
	}
	for i, v := range f {
		s.avg[i] = (1-s.alpha)*s.avg[i] + s.alpha*v
	}
	return append(SpectrumFrame(nil), s.avg...)
}

// Analyze transforms the magnitude series of the first N samples. Blocks
// shorter than N yield a floor frame.
func (s *Spectrum) Analyze(samps []complex64) SpectrumFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plan
	if len(samps) < p.n {
		return FloorFrame(p.n / 2)
	}
	for i := 0; i < p.n; i++ {
		p.scratch[i] = complex(cmplx.Abs(complex128(samps[i]))*p.window[i], 0)
	}
	return s.average(p.power())
}

// AnalyzeReal transforms the first N values of a real series.
func (s *Spectrum) AnalyzeReal(x []float64) SpectrumFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plan
	if len(x) < p.n {
		return FloorFrame(p.n / 2)
	}
	for i := 0; i < p.n; i++ {
		p.scratch[i] = complex(x[i]*p.window[i], 0)
	}
	return p.power()
}

func (p *specPlan) power() SpectrumFrame {
	p.xf.Forward(p.scratch)
	f := make(SpectrumFrame, p.n/2)
	for i := range f {
		f[i] = toDB(cmplx.Abs(p.scratch[i]))
	}
	return f
}

func toDB(mag float64) float64 {
	if !(mag > 0) || math.IsInf(mag, 0) {
		return FloorDB
	}
	if db := 20 * math.Log10(mag); db > FloorDB {
		return db
	}
	return FloorDB
}

// FrequencyBins maps each of n FFT bins to its frequency offset in Hz.
func FrequencyBins(n int, sampleRate uint32) []float64 {
	bins := make([]float64, n)
	for i := range bins {
		bins[i] = float64(i) * float64(sampleRate) / float64(n)
	}
	return bins
}
