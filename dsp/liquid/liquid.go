// Package liquid registers liquid-dsp backends named "liquid": an arbitrary
// resampler and a channel filter.
package liquid

/*
#cgo LDFLAGS: -lliquid
#include <liquid/liquid.h>
*/
import "C"

import (
	"math"
	"unsafe"

	"github.com/chzchzchz/rtlrx/dsp"
)

func init() {
	dsp.RegisterResampler("liquid", func(in, out int) (dsp.Resampler, error) {
		return NewResampler(float32(out) / float32(in)), nil
	})
	dsp.RegisterChannelFilter("liquid", func(cutoff float64) (dsp.ChannelFilter, error) {
		return NewFilter(cutoff), nil
	})
}

type Resampler struct {
	r float32
	q C.resamp_rrrf
}

func NewResampler(r float32) *Resampler {
	return &Resampler{r: r, q: C.resamp_rrrf_create_default(C.float(r))}
}

func (rs *Resampler) Resample(samps []float32) []float32 {
	if len(samps) == 0 {
		return nil
	}
	outsamp := make([]float32, int(math.Ceil(float64(rs.r+1.0)*float64(len(samps)))))
	var outlen C.uint
	C.resamp_rrrf_execute_block(rs.q,
		(*C.float)(unsafe.Pointer(&samps[0])),
		C.uint(len(samps)),
		(*C.float)(unsafe.Pointer(&outsamp[0])),
		&outlen)
	return outsamp[:outlen]
}

func (rs *Resampler) Close() {
	if rs.q != nil {
		C.resamp_rrrf_destroy(rs.q)
		rs.q = nil
	}
}

// Filter is a Kaiser-window firfilt_crcf channel low-pass.
type Filter struct {
	q C.firfilt_crcf
}

// NewFilter passes cutoff, a fraction of the sample rate, with 70 dB of
// stopband attenuation.
func NewFilter(cutoff float64) *Filter {
	q := C.firfilt_crcf_create_kaiser(C.uint(dsp.ChannelTaps), C.float(cutoff), C.float(70.0), C.float(0.0))
	C.firfilt_crcf_set_scale(q, C.float(2.0*cutoff))
	return &Filter{q: q}
}

func (f *Filter) Filter(in []complex64) []complex64 {
	if len(in) == 0 {
		return nil
	}
	out := make([]complex64, len(in))
	C.firfilt_crcf_execute_block(f.q,
		(*C.complexfloat)(unsafe.Pointer(&in[0])),
		C.uint(len(in)),
		(*C.complexfloat)(unsafe.Pointer(&out[0])))
	return out
}

func (f *Filter) Close() {
	if f.q != nil {
		C.firfilt_crcf_destroy(f.q)
		f.q = nil
	}
}
