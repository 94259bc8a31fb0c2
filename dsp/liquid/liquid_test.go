package liquid

import (
	"math"
	"testing"

	"github.com/chzchzchz/rtlrx/dsp"
)

func TestResampleRatio(t *testing.T) {
	rs, err := dsp.NewResampler("liquid", 240000, 48000)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.(*Resampler).Close()
	total := 0
	for i := 0; i < 10; i++ {
		total += len(rs.Resample(make([]float32, 24000)))
	}
	if want := 48000; math.Abs(float64(total-want)) > 0.01*float64(want) {
		t.Fatalf("expected about %d samples, got %d", want, total)
	}
}

func TestFilterPassesDC(t *testing.T) {
	f, err := dsp.NewChannelFilter("liquid", 200000, 2048000)
	if err != nil {
		t.Fatal(err)
	}
	defer f.(*Filter).Close()
	in := make([]complex64, 512)
	for i := range in {
		in[i] = 1
	}
	out := f.Filter(in)
	if v := real(out[len(out)-1]); math.Abs(float64(v)-1) > 0.05 {
		t.Fatalf("expected unity gain at DC, got %g", v)
	}
}
