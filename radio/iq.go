package radio

import (
	"context"
	"io"
)

// IQBlock is one bulk transfer of samples. Blocks are shared read-only
// between subscribers and must not be modified.
type IQBlock struct {
	Seq     uint64
	Samples []complex64
	// Raw holds the transfer bytes as received.
	Raw []byte
}

// iqBias is the DC offset of the unsigned 8-bit sample encoding.
const iqBias = 128

// ConvertU8 turns interleaved u8 I/Q bytes into samples in [-1, 1).
// A trailing odd byte is ignored.
func ConvertU8(dst []complex64, iq8 []byte) []complex64 {
	n := len(iq8) / 2
	if cap(dst) < n {
		dst = make([]complex64, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = complex(
			(float32(iq8[2*i])-iqBias)/128.0,
			(float32(iq8[2*i+1])-iqBias)/128.0)
	}
	return dst
}

type IQReader struct {
	r   io.Reader
	err error
}

// NewIQReader takes a reader that uses u8 I/Q samples.
func NewIQReader(r io.Reader) *IQReader {
	if r == nil {
		panic("nil reader")
	}
	return &IQReader{r: r}
}

func (iq *IQReader) Err() error { return iq.err }

// BlockStream reads blocks of batch samples. A short final read is delivered
// as a shorter block.
func (iq *IQReader) BlockStream(ctx context.Context, batch int) <-chan IQBlock {
	ch := make(chan IQBlock, 1)
	go func() {
		defer close(ch)
		for seq := uint64(0); ; seq++ {
			iq8buf := make([]byte, batch*2)
			n, err := io.ReadFull(iq.r, iq8buf)
			if n < 2 {
				if err != io.EOF && err != io.ErrUnexpectedEOF {
					iq.err = err
				}
				return
			}
			iq8buf = iq8buf[:n]
			blk := IQBlock{Seq: seq, Samples: ConvertU8(nil, iq8buf), Raw: iq8buf}
			select {
			case ch <- blk:
			case <-ctx.Done():
				return
			}
			if err != nil {
				if err != io.ErrUnexpectedEOF {
					iq.err = err
				}
				return
			}
		}
	}()
	return ch
}

type IQWriter struct{ w io.Writer }

func NewIQWriter(w io.Writer) *IQWriter { return &IQWriter{w} }

func (iq *IQWriter) Write64(out []complex64) error {
	buf := make([]byte, 2*len(out))
	for i := range out {
		buf[2*i] = toU8(real(out[i]))
		buf[2*i+1] = toU8(imag(out[i]))
	}
	_, err := iq.w.Write(buf)
	return err
}

func toU8(v float32) byte {
	x := v*128.0 + iqBias
	if x < 0 {
		return 0
	} else if x > 255 {
		return 255
	}
	return byte(x)
}
