package dsp

import "math"

// AGC levels blocks toward Target RMS. The gain moves by Attack of the
// error when rising and Decay when falling, within [MinGain, MaxGain].
type AGC struct {
	Target float64
	Attack float64
	Decay  float64
	Gain   float64
}

const (
	MinGain = 0.1
	MaxGain = 10.0
)

func NewAGC() *AGC { return &AGC{Target: 0.5, Attack: 0.01, Decay: 0.001, Gain: 1} }

func (a *AGC) Apply(x []float32) {
	p := RMS(x)
	if p == 0 {
		return
	}
	want := a.Target / p
	rate := a.Decay
	if want > a.Gain {
		rate = a.Attack
	}
	a.Gain = math.Max(MinGain, math.Min(MaxGain, a.Gain+(want-a.Gain)*rate))
	for i := range x {
		x[i] = float32(float64(x[i]) * a.Gain)
	}
}

func RMS(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}

// Squelch zeroes x when its RMS is under db dBFS and reports whether it did.
func Squelch(x []float32, db float64) bool {
	if RMS(x) >= math.Pow(10, db/20) {
		return false
	}
	for i := range x {
		x[i] = 0
	}
	return true
}

// gateRatio scales samples under the noise gate threshold.
const gateRatio = 0.1

func NoiseGate(x []float32, threshold float64) {
	for i, v := range x {
		if math.Abs(float64(v)) < threshold {
			x[i] = v * gateRatio
		}
	}
}

var audioLowpass = [...]float32{0.1, 0.2, 0.4, 0.2, 0.1}

// dcPole sets the DC blocker corner near 40 Hz at 48 kHz.
const dcPole = 0.995

// audioFilter smooths with a short FIR low-pass then removes DC.
type audioFilter struct {
	hist  [len(audioLowpass) - 1]float32
	prevX float32
	prevY float32
}

func (f *audioFilter) apply(x []float32) {
	for i, v := range x {
		acc := audioLowpass[0] * v
		for j, t := range audioLowpass[1:] {
			acc += t * f.hist[j]
		}
		copy(f.hist[1:], f.hist[:len(f.hist)-1])
		f.hist[0] = v
		y := acc - f.prevX + dcPole*f.prevY
		f.prevX, f.prevY = acc, y
		x[i] = y
	}
}
