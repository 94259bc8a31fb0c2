package radio

import (
	"context"
	"errors"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrNotIQWAV = errors.New("not a 2 channel 8 or 16 bit wav")

// WAVIQReader reads IQ recordings stored as stereo PCM, I on the left.
type WAVIQReader struct {
	dec *wav.Decoder
	err error
}

func NewWAVIQReader(r io.ReadSeeker) (*WAVIQReader, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotIQWAV
	}
	if dec.NumChans != 2 || (dec.BitDepth != 8 && dec.BitDepth != 16) {
		return nil, ErrNotIQWAV
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}
	return &WAVIQReader{dec: dec}, nil
}

func (w *WAVIQReader) SampleRate() uint32 { return w.dec.SampleRate }

func (w *WAVIQReader) Err() error { return w.err }

func (w *WAVIQReader) scale() (bias, div float32) {
	if w.dec.BitDepth == 8 {
		return 128, 128
	}
	return 0, 32768
}

// BlockStream delivers batch samples per block until the data chunk ends.
// Raw is left empty since the source is not u8.
func (w *WAVIQReader) BlockStream(ctx context.Context, batch int) <-chan IQBlock {
	ch := make(chan IQBlock, 1)
	go func() {
		defer close(ch)
		bias, div := w.scale()
		buf := &audio.IntBuffer{Format: w.dec.Format(), Data: make([]int, 2*batch)}
		for seq := uint64(0); ; seq++ {
			n, err := w.dec.PCMBuffer(buf)
			n &^= 1
			if n > 0 {
				samps := make([]complex64, n/2)
				for i := range samps {
					re := (float32(buf.Data[2*i]) - bias) / div
					im := (float32(buf.Data[2*i+1]) - bias) / div
					samps[i] = complex(re, im)
				}
				select {
				case ch <- IQBlock{Seq: seq, Samples: samps}:
				case <-ctx.Done():
					w.err = ctx.Err()
					return
				}
			}
			if err != nil && !errors.Is(err, io.EOF) {
				w.err = err
				return
			}
			if n == 0 || err != nil {
				return
			}
		}
	}()
	return ch
}
