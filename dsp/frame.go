package dsp

import (
	"math"
	"sort"
)

// Smooth is a centered moving average. Edge windows are truncated.
func (f SpectrumFrame) Smooth(window int) SpectrumFrame {
	out := make(SpectrumFrame, len(f))
	if window <= 1 || len(f) < window {
		copy(out, f)
		return out
	}
	half := window / 2
	for i := range f {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi > len(f)-1 {
			hi = len(f) - 1
		}
		sum := 0.0
		for _, v := range f[lo : hi+1] {
			sum += v
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// PeakIndex returns the index of the largest bin.
func (f SpectrumFrame) PeakIndex() int {
	idx := 0
	for i, v := range f {
		if v > f[idx] {
			idx = i
		}
	}
	return idx
}

// PeakFrequency maps the peak bin to idx*rate/(2*len).
func (f SpectrumFrame) PeakFrequency(sampleRate uint32) float64 {
	if len(f) == 0 {
		return 0
	}
	return float64(f.PeakIndex()) * float64(sampleRate) / float64(2*len(f))
}

// DetectSignals returns bins that are strict local maxima above threshold.
// The first and last bins are never reported.
func (f SpectrumFrame) DetectSignals(thresholdDB float64) (ret []int) {
	for i := 1; i < len(f)-1; i++ {
		if f[i] > thresholdDB && f[i] > f[i-1] && f[i] > f[i+1] {
			ret = append(ret, i)
		}
	}
	return ret
}

// WaterfallRow normalizes -100..0 dB into 0..1.
func (f SpectrumFrame) WaterfallRow() []float64 {
	row := make([]float64, len(f))
	for i, v := range f {
		row[i] = math.Max(0, math.Min(1, (v-FloorDB)/-FloorDB))
	}
	return row
}

// SignalStrength is the mean bin power in dB.
func (f SpectrumFrame) SignalStrength() float64 {
	if len(f) == 0 {
		return FloorDB
	}
	sum := 0.0
	for _, v := range f {
		sum += v
	}
	return sum / float64(len(f))
}

// NoiseFloor is the median bin power.
func (f SpectrumFrame) NoiseFloor() float64 {
	if len(f) == 0 {
		return FloorDB
	}
	med := make([]float64, len(f))
	copy(med, f)
	sort.Float64s(med)
	return med[len(med)/2]
}

func (f SpectrumFrame) Stddev() float64 {
	if len(f) < 2 {
		return 0
	}
	spr, sdev := f.NoiseFloor(), 0.0
	for _, v := range f {
		sdev += (v - spr) * (v - spr)
	}
	sdev /= float64(len(f) - 1)
	return math.Sqrt(sdev)
}

// Spurs are single bins standing out more than two deviations from both
// neighbours above the noise floor.
func (f SpectrumFrame) Spurs() (ret []int) {
	spr, sdev := f.NoiseFloor(), f.Stddev()
	for i := 1; i < len(f)-1; i++ {
		left, mid, right := f[i-1]-spr, f[i]-spr, f[i+1]-spr
		if mid < 0 {
			continue
		}
		if mid-left > 2.0*sdev && mid-right > 2.0*sdev {
			ret = append(ret, i)
		}
	}
	return ret
}
