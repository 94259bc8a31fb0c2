package dsp

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/chzchzchz/rtlrx/sdrerr"
	"gonum.org/v1/gonum/dsp/fourier"
)

// dft is the reference transform every backend is checked against.
func dft(x []complex128) []complex128 {
	return fourier.NewCmplxFFT(len(x)).Coefficients(nil, x)
}

func TestTransformsMatchDFT(t *testing.T) {
	for _, name := range []string{"radix2", "gonum"} {
		for _, n := range []int{2, 8, 64} {
			xf, err := NewTransform(name, n)
			if err != nil {
				t.Fatal(err)
			}
			x := make([]complex128, n)
			for i := range x {
				x[i] = complex(math.Cos(0.4*float64(i)), float64(i%3))
			}
			want := dft(x)
			xf.Forward(x)
			for i := range x {
				if cmplx.Abs(x[i]-want[i]) > 1e-9*(1+cmplx.Abs(want[i])) {
					t.Fatalf("%s n=%d bin %d: got %v want %v", name, n, i, x[i], want[i])
				}
			}
		}
	}
}

func TestAnalyzeN8(t *testing.T) {
	sp, err := NewSpectrum(8, "radix2")
	if err != nil {
		t.Fatal(err)
	}
	x := []float64{1, 2, 3, 4, 4, 3, 2, 1}
	got := sp.AnalyzeReal(x)
	if len(got) != 4 {
		t.Fatalf("expected 4 bins, got %d", len(got))
	}
	w := Hamming(8)
	in := make([]complex128, 8)
	for i := range in {
		in[i] = complex(x[i]*w[i], 0)
	}
	ref := dft(in)
	for i := range got {
		want := 20 * math.Log10(cmplx.Abs(ref[i]))
		if math.Abs(got[i]-want) > 1e-3*math.Abs(want) {
			t.Fatalf("bin %d: got %g want %g", i, got[i], want)
		}
	}

	// Analyze uses the magnitude of each complex sample.
	samps := make([]complex64, 8)
	for i, v := range x {
		samps[i] = complex64(cmplx.Rect(v, float64(i)))
	}
	fromIQ := sp.Analyze(samps)
	for i := range fromIQ {
		if math.Abs(fromIQ[i]-got[i]) > 1e-3*(1+math.Abs(got[i])) {
			t.Fatalf("bin %d: iq %g real %g", i, fromIQ[i], got[i])
		}
	}
}

func TestAnalyzeSinusoidPeak(t *testing.T) {
	const n = 1024
	sp, err := NewSpectrum(n, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []int{10, 100, 300} {
		x := make([]float64, n)
		for i := range x {
			x[i] = 0.8 * math.Sin(2*math.Pi*float64(k*i)/n)
		}
		f := sp.AnalyzeReal(x)
		peak := f.PeakIndex()
		if peak < k-1 || peak > k+1 {
			t.Fatalf("k=%d: peak at %d", k, peak)
		}
		for i, v := range f {
			if i < k-3 || i > k+3 {
				if f[peak]-v < 40 {
					t.Fatalf("k=%d: bin %d only %.1f dB below peak", k, i, f[peak]-v)
				}
			}
		}
	}
}

func TestAnalyzeFloor(t *testing.T) {
	sp, _ := NewSpectrum(16, "radix2")
	for i, v := range sp.Analyze(make([]complex64, 16)) {
		if v != FloorDB {
			t.Fatalf("bin %d: expected floor, got %g", i, v)
		}
	}
	short := sp.Analyze(make([]complex64, 4))
	if len(short) != 8 {
		t.Fatalf("expected 8 bins for short block, got %d", len(short))
	}
	for _, v := range short {
		if v != FloorDB {
			t.Fatalf("expected floor frame, got %v", short)
		}
	}
}

func TestSpectrumSize(t *testing.T) {
	for _, n := range []int{0, 3, 1000, -8} {
		if _, err := NewSpectrum(n, ""); !errors.Is(err, sdrerr.ErrInvalidParameter) {
			t.Fatalf("n=%d: expected invalid parameter, got %v", n, err)
		}
	}
	if _, err := NewSpectrum(8, "nope"); !errors.Is(err, sdrerr.ErrInvalidParameter) {
		t.Fatalf("expected invalid transform error, got %v", err)
	}
	sp, _ := NewSpectrum(8, "gonum")
	if err := sp.SetSize(12); err == nil {
		t.Fatal("expected error for non power of two")
	}
	if sp.Size() != 8 {
		t.Fatalf("failed resize changed size to %d", sp.Size())
	}
	if err := sp.SetSize(32); err != nil {
		t.Fatal(err)
	}
	if got := len(sp.Analyze(make([]complex64, 32))); got != 16 {
		t.Fatalf("expected 16 bins, got %d", got)
	}
}

func TestFrequencyBins(t *testing.T) {
	bins := FrequencyBins(4, 2048000)
	want := []float64{0, 512000, 1024000, 1536000}
	for i := range want {
		if bins[i] != want[i] {
			t.Fatalf("got %v", bins)
		}
	}
}

func TestSpectrumAveraging(t *testing.T) {
	ref, _ := NewSpectrum(16, "radix2")
	a := ref.Analyze(constant(16, complex(0.5, 0)))
	b := ref.Analyze(constant(16, complex(1, 0)))

	sp, _ := NewSpectrum(16, "radix2")
	sp.SetAveraging(0.25)
	first := sp.Analyze(constant(16, complex(0.5, 0)))
	second := sp.Analyze(constant(16, complex(1, 0)))
	for i := range a {
		if first[i] != a[i] {
			t.Fatalf("bin %d: first frame should pass through, got %g want %g", i, first[i], a[i])
		}
		if want := 0.75*a[i] + 0.25*b[i]; math.Abs(second[i]-want) > 1e-9 {
			t.Fatalf("bin %d: got %g want %g", i, second[i], want)
		}
	}
	// returned frames are not aliased to the running average
	second[0] = 42
	if third := sp.Analyze(constant(16, complex(1, 0))); third[0] == 42 {
		t.Fatal("frame aliases the average")
	}

	sp.SetAveraging(1)
	if got := sp.Analyze(constant(16, complex(1, 0))); got[0] != b[0] {
		t.Fatalf("alpha 1 should disable averaging, got %g want %g", got[0], b[0])
	}
}
