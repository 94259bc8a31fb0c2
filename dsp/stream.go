package dsp

import (
	"context"
	"time"

	"github.com/chzchzchz/rtlrx/radio"
)

// SpectrumStream analyzes at most one block per interval and skips the rest.
func SpectrumStream(ctx context.Context, sp *Spectrum, interval time.Duration, sigc <-chan radio.IQBlock) <-chan SpectrumFrame {
	outc := make(chan SpectrumFrame, 1)
	go func() {
		defer close(outc)
		var last time.Time
		for blk := range sigc {
			now := time.Now()
			if now.Sub(last) < interval {
				continue
			}
			last = now
			select {
			case outc <- sp.Analyze(blk.Samples):
			case <-ctx.Done():
				return
			}
		}
	}()
	return outc
}

func AudioStream(ctx context.Context, d *Demodulator, sigc <-chan radio.IQBlock) <-chan AudioFrame {
	outc := make(chan AudioFrame, 1)
	go func() {
		defer close(outc)
		for blk := range sigc {
			select {
			case outc <- d.Process(blk):
			case <-ctx.Done():
				return
			}
		}
	}()
	return outc
}
