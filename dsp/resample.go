package dsp

import (
	"sort"
	"sync"

	"github.com/chzchzchz/rtlrx/sdrerr"
)

// Resampler converts a continuous stream block by block, keeping phase
// across calls.
type Resampler interface {
	Resample(in []float32) []float32
}

type ResamplerFactory func(inRate, outRate int) (Resampler, error)

var (
	resamplersMu sync.RWMutex
	resamplers   = map[string]ResamplerFactory{
		"linear": func(in, out int) (Resampler, error) { return NewLinearResampler(in, out), nil },
	}
)

func RegisterResampler(name string, f ResamplerFactory) {
	resamplersMu.Lock()
	defer resamplersMu.Unlock()
	resamplers[name] = f
}

func Resamplers() []string {
	resamplersMu.RLock()
	defer resamplersMu.RUnlock()
	var names []string
	for k := range resamplers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// NewResampler returns a passthrough when the rates match.
func NewResampler(name string, inRate, outRate int) (Resampler, error) {
	if inRate == outRate {
		return passthrough{}, nil
	}
	if name == "" {
		name = "linear"
	}
	resamplersMu.RLock()
	f, ok := resamplers[name]
	resamplersMu.RUnlock()
	if !ok {
		return nil, sdrerr.Errorf(sdrerr.InvalidParameter, "resampler", "unknown resampler %q", name)
	}
	return f(inRate, outRate)
}

type passthrough struct{}

func (passthrough) Resample(in []float32) []float32 {
	return append([]float32(nil), in...)
}

// LinearResampler interpolates between neighbours after a boxcar filter
// sized to the decimation ratio.
type LinearResampler struct {
	step float64
	pos  float64
	prev float32

	box    []float32
	boxIdx int
	boxSum float64
}

func NewLinearResampler(inRate, outRate int) *LinearResampler {
	r := &LinearResampler{step: float64(inRate) / float64(outRate)}
	if taps := inRate / outRate; taps > 1 {
		r.box = make([]float32, taps)
	}
	return r
}

func (r *LinearResampler) filter(in []float32) []float32 {
	if r.box == nil {
		return in
	}
	out := make([]float32, len(in))
	n := float64(len(r.box))
	for i, v := range in {
		r.boxSum += float64(v) - float64(r.box[r.boxIdx])
		r.box[r.boxIdx] = v
		r.boxIdx = (r.boxIdx + 1) % len(r.box)
		out[i] = float32(r.boxSum / n)
	}
	return out
}

func (r *LinearResampler) Resample(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}
	x := r.filter(in)
	n := len(x)
	out := make([]float32, 0, int(float64(n)/r.step)+1)
	// Position 0 is the last sample of the previous call, 1..n are x.
	at := func(i int) float32 {
		if i == 0 {
			return r.prev
		}
		return x[i-1]
	}
	for {
		i := int(r.pos)
		if i+1 > n {
			break
		}
		frac := float32(r.pos - float64(i))
		out = append(out, at(i)*(1-frac)+at(i+1)*frac)
		r.pos += r.step
	}
	r.pos -= float64(n)
	r.prev = x[n-1]
	return out
}
