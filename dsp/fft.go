// Package dsp holds the spectrum engine and demodulators.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/chzchzchz/rtlrx/sdrerr"
)

var ErrUnknownTransform = errors.New("unknown transform")
var ErrNotPowerOfTwo = errors.New("size is not a power of two")

// Transform computes a forward DFT in place over a fixed size.
type Transform interface {
	Forward(x []complex128)
	Size() int
}

type TransformFactory func(n int) Transform

var (
	transformsMu sync.RWMutex
	transforms   = map[string]TransformFactory{
		"radix2": func(n int) Transform { return newRadix2(n) },
		"gonum":  func(n int) Transform { return newGonumFFT(n) },
	}
)

// RegisterTransform makes a transform backend available by name.
func RegisterTransform(name string, f TransformFactory) {
	transformsMu.Lock()
	defer transformsMu.Unlock()
	transforms[name] = f
}

func Transforms() []string {
	transformsMu.RLock()
	defer transformsMu.RUnlock()
	var names []string
	for k := range transforms {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func NewTransform(name string, n int) (Transform, error) {
	if !IsPowerOfTwo(n) {
		return nil, sdrerr.Errorf(sdrerr.InvalidParameter, "fft size", "%d: %w", n, ErrNotPowerOfTwo)
	}
	if name == "" {
		name = "radix2"
	}
	transformsMu.RLock()
	f, ok := transforms[name]
	transformsMu.RUnlock()
	if !ok {
		return nil, sdrerr.New(sdrerr.InvalidParameter, "fft transform "+name, ErrUnknownTransform)
	}
	return f(n), nil
}

func IsPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// radix2 is an iterative Cooley-Tukey FFT with precomputed tables.
type radix2 struct {
	n       int
	rev     []int
	twiddle []complex128
}

func newRadix2(n int) *radix2 {
	logn := bits.TrailingZeros(uint(n))
	r := &radix2{n: n, rev: make([]int, n), twiddle: make([]complex128, n/2)}
	for i := range r.rev {
		r.rev[i] = int(bits.Reverse(uint(i)) >> (bits.UintSize - logn))
	}
	for k := range r.twiddle {
		s, c := math.Sincos(-2 * math.Pi * float64(k) / float64(n))
		r.twiddle[k] = complex(c, s)
	}
	return r
}

func (r *radix2) Size() int { return r.n }

func (r *radix2) Forward(x []complex128) {
	if len(x) != r.n {
		panic(fmt.Sprintf("radix2: got %d points, want %d", len(x), r.n))
	}
	for i, j := range r.rev {
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for size := 2; size <= r.n; size <<= 1 {
		half, step := size/2, r.n/size
		for start := 0; start < r.n; start += size {
			for k := 0; k < half; k++ {
				t := r.twiddle[k*step] * x[start+k+half]
				u := x[start+k]
				x[start+k] = u + t
				x[start+k+half] = u - t
			}
		}
	}
}

type gonumFFT struct {
	fft *fourier.CmplxFFT
	out []complex128
}

func newGonumFFT(n int) *gonumFFT {
	return &gonumFFT{fft: fourier.NewCmplxFFT(n), out: make([]complex128, n)}
}

func (g *gonumFFT) Size() int { return g.fft.Len() }

func (g *gonumFFT) Forward(x []complex128) {
	g.fft.Coefficients(g.out, x)
	copy(x, g.out)
}
