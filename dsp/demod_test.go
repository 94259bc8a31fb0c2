package dsp

import (
	"encoding/binary"
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/chzchzchz/rtlrx/radio"
	"github.com/chzchzchz/rtlrx/sdrerr"
)

func constant(n int, c complex64) []complex64 {
	s := make([]complex64, n)
	for i := range s {
		s[i] = c
	}
	return s
}

func TestFMSilence(t *testing.T) {
	out := DemodulateFM(constant(64, complex(0.3, -0.4)), 5)
	if len(out) != 63 {
		t.Fatalf("expected 63 samples, got %d", len(out))
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d: expected 0, got %g", i, v)
		}
	}
}

func TestFMTone(t *testing.T) {
	// A constant rotation of 3 rad/sample wraps to the same step each time,
	// including across the -pi/pi boundary.
	samps := make([]complex64, 32)
	for i := range samps {
		samps[i] = complex64(cmplx.Rect(1, 3*float64(i)))
	}
	for i, v := range DemodulateFM(samps, 1) {
		if math.Abs(float64(v)-3) > 1e-5 {
			t.Fatalf("sample %d: expected 3, got %g", i, v)
		}
	}
	neg := make([]complex64, 32)
	for i := range neg {
		neg[i] = complex64(cmplx.Rect(1, -3*float64(i)))
	}
	for i, v := range DemodulateFM(neg, 0.5) {
		if math.Abs(float64(v)+1.5) > 1e-5 {
			t.Fatalf("sample %d: expected -1.5, got %g", i, v)
		}
	}
	if out := DemodulateFM(constant(1, 1), 1); len(out) != 0 {
		t.Fatalf("expected no output for a single sample, got %v", out)
	}
}

func TestAMUnityCarrier(t *testing.T) {
	samps := make([]complex64, 64)
	for i := range samps {
		samps[i] = complex64(cmplx.Rect(1, 0.1*float64(i)))
	}
	out := DemodulateAM(samps, 3)
	if len(out) != 64 {
		t.Fatalf("expected 64 samples, got %d", len(out))
	}
	for i, v := range out {
		if math.Abs(float64(v)) > 1e-5 {
			t.Fatalf("sample %d: expected 0, got %g", i, v)
		}
	}
	if v := DemodulateAM([]complex64{complex(1.5, 0)}, 2)[0]; v != 1 {
		t.Fatalf("expected 1, got %g", v)
	}
}

func TestSSB(t *testing.T) {
	samps := []complex64{complex(0.5, -0.25)}
	if v := DemodulateSSB(samps, 2, true)[0]; v != 1 {
		t.Fatalf("usb: got %g", v)
	}
	if v := DemodulateSSB(samps, 2, false)[0]; v != -0.5 {
		t.Fatalf("lsb: got %g", v)
	}
}

func TestDemodulatorModeSwitch(t *testing.T) {
	d, err := NewDemodulator(DemodConfig{Mode: FM, Gain: 1}, 48000, 48000, "")
	if err != nil {
		t.Fatal(err)
	}
	blk := radio.IQBlock{Seq: 7, Samples: constant(16, complex(2, 0))}
	fm := d.Process(blk)
	if fm.Seq != 7 || fm.SampleRate != 48000 || len(fm.Samples) != 15 {
		t.Fatalf("unexpected fm frame %+v", fm)
	}
	d.SetMode(AM)
	am := d.Process(blk)
	if len(am.Samples) != 16 || am.Samples[0] != 1 {
		t.Fatalf("unexpected am frame %+v", am)
	}
	// The earlier frame is untouched by the switch.
	if fm.Samples[0] != 0 {
		t.Fatal("mode switch altered a previous frame")
	}
	if err := d.SetConfig(DemodConfig{Mode: AM, Gain: 10, CarrierHz: 1e6}); err != nil {
		t.Fatal(err)
	}
	if got := d.Process(blk); len(got.Samples) != len(am.Samples) || got.SampleRate != am.SampleRate {
		t.Fatal("gain or carrier changed frame shape")
	}
}

func TestDemodulatorResamples(t *testing.T) {
	d, err := NewDemodulator(DemodConfig{Mode: AM, Gain: 1}, 240000, 48000, "linear")
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for i := 0; i < 10; i++ {
		total += len(d.Process(radio.IQBlock{Samples: constant(24000, 1)}).Samples)
	}
	if total < 47990 || total > 48010 {
		t.Fatalf("expected about 48000 samples, got %d", total)
	}
	if _, err := NewDemodulator(DemodConfig{}, 0, 48000, ""); !errors.Is(err, sdrerr.ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
	if _, err := NewDemodulator(DemodConfig{}, 1000, 48000, "nope"); !errors.Is(err, sdrerr.ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}

func TestLinearResamplerContinuity(t *testing.T) {
	r := NewLinearResampler(2, 1)
	ramp := func(lo, n int) []float32 {
		s := make([]float32, n)
		for i := range s {
			s[i] = float32(lo + i)
		}
		return s
	}
	a := r.Resample(ramp(0, 7))
	b := r.Resample(ramp(7, 7))
	all := append(a, b...)
	if len(all) != 7 {
		t.Fatalf("expected 7 samples, got %d: %v", len(all), all)
	}
	for i := 2; i < len(all); i++ {
		if d := all[i] - all[i-1]; d != 2 {
			t.Fatalf("discontinuity at %d: %v", i, all)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{FM, AM, USB, LSB} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Fatalf("%v: got %v, %v", m, got, err)
		}
	}
	if _, err := ParseMode("wfm"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPCM16(t *testing.T) {
	full := float64(math.MaxInt16)
	lim, half, quarter := LimitLevel*full, 0.5*full, 0.25*full
	pcm := PCM16([]float32{0, 1, -2, 0.5, float32(math.NaN())}, 1)
	want := []int16{0, int16(lim), -int16(lim), int16(half), 0}
	for i, w := range want {
		if got := int16(binary.LittleEndian.Uint16(pcm[2*i:])); got != w {
			t.Fatalf("sample %d: got %d want %d", i, got, w)
		}
	}
	quiet := PCM16([]float32{0.5}, 0.5)
	if got := int16(binary.LittleEndian.Uint16(quiet)); got != int16(quarter) {
		t.Fatalf("volume not applied, got %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(PCM16([]float32{0.5}, 7))); got != int16(half) {
		t.Fatalf("volume not clamped, got %d", got)
	}
}

func TestSquelch(t *testing.T) {
	d, err := NewDemodulator(DemodConfig{Mode: AM, Gain: 1, SquelchDB: -20}, 48000, 48000, "")
	if err != nil {
		t.Fatal(err)
	}
	// envelope 0.05 is under 10^(-20/20) = 0.1
	quiet := d.Process(radio.IQBlock{Samples: constant(64, complex(1.05, 0))})
	for i, v := range quiet.Samples {
		if v != 0 {
			t.Fatalf("sample %d: expected muted, got %g", i, v)
		}
	}
	if !d.Muted() {
		t.Fatal("expected squelch closed")
	}
	loud := d.Process(radio.IQBlock{Samples: constant(64, complex(1.5, 0))})
	if d.Muted() || loud.Samples[0] != 0.5 {
		t.Fatalf("expected open squelch, got %g", loud.Samples[0])
	}
	if err := d.SetConfig(DemodConfig{Mode: AM, Gain: 1}); err != nil {
		t.Fatal(err)
	}
	if d.Process(radio.IQBlock{Samples: constant(64, complex(1.05, 0))}).Samples[0] == 0 {
		t.Fatal("squelch still applied after disabling")
	}
}

func TestAGC(t *testing.T) {
	a := NewAGC()
	prev := a.Gain
	for i := 0; i < 2000; i++ {
		x := make([]float32, 32)
		for j := range x {
			x[j] = 0.01
		}
		a.Apply(x)
		if a.Gain < prev || a.Gain > MaxGain {
			t.Fatalf("block %d: gain %g after %g", i, a.Gain, prev)
		}
		prev = a.Gain
	}
	if a.Gain < 9 {
		t.Fatalf("expected gain near max for a weak signal, got %g", a.Gain)
	}
	loud := []float32{4, -4, 4, -4}
	for i := 0; i < 20000; i++ {
		a.Apply(append([]float32(nil), loud...))
	}
	if a.Gain > 0.2 {
		t.Fatalf("expected gain to decay toward target, got %g", a.Gain)
	}
}

func TestNoiseGate(t *testing.T) {
	x := []float32{0.005, -0.5, -0.001, 0.02}
	NoiseGate(x, 0.01)
	want := []float32{0.005 * gateRatio, -0.5, -0.001 * gateRatio, 0.02}
	for i := range want {
		if math.Abs(float64(x[i]-want[i])) > 1e-9 {
			t.Fatalf("sample %d: got %g want %g", i, x[i], want[i])
		}
	}
}

func TestAudioFilterBlocksDC(t *testing.T) {
	var f audioFilter
	x := make([]float32, 4000)
	for i := range x {
		x[i] = 0.7
	}
	f.apply(x)
	if v := math.Abs(float64(x[len(x)-1])); v > 1e-3 {
		t.Fatalf("expected DC removed, got %g", v)
	}
}
