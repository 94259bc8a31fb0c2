// Package fftw registers an FFTW-backed transform named "fftw".
package fftw

import (
	"github.com/runningwild/go-fftw/fftw32"

	"github.com/chzchzchz/rtlrx/dsp"
)

func init() {
	dsp.RegisterTransform("fftw", func(n int) dsp.Transform { return New(n) })
}

type Transform struct {
	arr *fftw32.Array
}

func New(n int) *Transform { return &Transform{arr: fftw32.NewArray(n)} }

func (t *Transform) Size() int { return len(t.arr.Elems) }

func (t *Transform) Forward(x []complex128) {
	for i, v := range x {
		t.arr.Elems[i] = complex64(v)
	}
	out := fftw32.FFT(t.arr)
	for i, v := range out.Elems {
		x[i] = complex128(v)
	}
}
