package dsp

import (
	"math"
	"sort"
	"sync"

	"github.com/chzchzchz/rtlrx/sdrerr"
)

// ChannelTaps is the length of the channel low-pass.
const ChannelTaps = 64

// ChannelFilter is a stateful complex low-pass applied ahead of
// demodulation. History carries across blocks.
type ChannelFilter interface {
	Filter(in []complex64) []complex64
}

// ChannelFilterFactory builds a filter passing cutoff, given as a fraction
// of the sample rate.
type ChannelFilterFactory func(cutoff float64) (ChannelFilter, error)

var (
	filtersMu sync.RWMutex
	filters   = map[string]ChannelFilterFactory{
		"fir": func(cutoff float64) (ChannelFilter, error) { return NewFIRFilter(LowpassTaps(ChannelTaps, cutoff)), nil },
	}
)

func RegisterChannelFilter(name string, f ChannelFilterFactory) {
	filtersMu.Lock()
	defer filtersMu.Unlock()
	filters[name] = f
}

func ChannelFilters() []string {
	filtersMu.RLock()
	defer filtersMu.RUnlock()
	var names []string
	for k := range filters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// NewChannelFilter limits a stream at sampleRate to a channel bandwidthHz
// wide around the center. It returns nil if the channel spans the band.
func NewChannelFilter(name string, bandwidthHz, sampleRate int) (ChannelFilter, error) {
	if bandwidthHz <= 0 || bandwidthHz >= sampleRate {
		return nil, nil
	}
	if name == "" {
		name = "fir"
	}
	filtersMu.RLock()
	f, ok := filters[name]
	filtersMu.RUnlock()
	if !ok {
		return nil, sdrerr.Errorf(sdrerr.InvalidParameter, "channel filter", "unknown filter %q", name)
	}
	return f(float64(bandwidthHz) / 2 / float64(sampleRate))
}

// LowpassTaps is an n-tap Hamming windowed sinc with unity gain at DC.
func LowpassTaps(n int, cutoff float64) []float32 {
	w := Hamming(n)
	h := make([]float64, n)
	sum := 0.0
	for i := range h {
		m := float64(i) - float64(n-1)/2
		if m == 0 {
			h[i] = 2 * cutoff
		} else {
			h[i] = math.Sin(2*math.Pi*cutoff*m) / (math.Pi * m)
		}
		h[i] *= w[i]
		sum += h[i]
	}
	taps := make([]float32, n)
	for i := range h {
		taps[i] = float32(h[i] / sum)
	}
	return taps
}

type FIRFilter struct {
	taps []float32
	hist []complex64
}

func NewFIRFilter(taps []float32) *FIRFilter {
	return &FIRFilter{taps: taps, hist: make([]complex64, len(taps)-1)}
}

func (f *FIRFilter) Filter(in []complex64) []complex64 {
	k := len(f.taps)
	buf := make([]complex64, 0, len(f.hist)+len(in))
	buf = append(append(buf, f.hist...), in...)
	out := make([]complex64, len(in))
	for i := range out {
		var re, im float32
		for j, t := range f.taps {
			v := buf[i+k-1-j]
			re += real(v) * t
			im += imag(v) * t
		}
		out[i] = complex(re, im)
	}
	copy(f.hist, buf[len(buf)-len(f.hist):])
	return out
}
