package usbtest

import (
	"context"
	"math"
	"time"
)

// Tone returns a BulkFunc producing a complex tone offset toneHz from the
// center, paced to sampleRate. Bytes are offset-binary u8 I/Q.
func Tone(sampleRate, toneHz float64) BulkFunc {
	phase := 0.0
	step := 2 * math.Pi * toneHz / sampleRate
	return func(ctx context.Context, buf []byte) (int, error) {
		n := len(buf) &^ 1
		for i := 0; i < n; i += 2 {
			buf[i] = byte(127.5 + 100*math.Cos(phase))
			buf[i+1] = byte(127.5 + 100*math.Sin(phase))
			phase = math.Mod(phase+step, 2*math.Pi)
		}
		d := time.Duration(float64(n/2) / sampleRate * float64(time.Second))
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		return n, nil
	}
}

// Counter returns a BulkFunc whose transfer k is filled with byte k, so
// tests can recover the transfer index from the data.
func Counter(interval time.Duration) BulkFunc {
	k := 0
	return func(ctx context.Context, buf []byte) (int, error) {
		if interval > 0 {
			t := time.NewTimer(interval)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		for i := range buf {
			buf[i] = byte(k)
		}
		k++
		return len(buf), nil
	}
}

// Fail returns a BulkFunc that serves ok transfers from src then fails.
func Fail(src BulkFunc, ok int, err error) BulkFunc {
	n := 0
	return func(ctx context.Context, buf []byte) (int, error) {
		if n >= ok {
			return 0, err
		}
		n++
		return src(ctx, buf)
	}
}
