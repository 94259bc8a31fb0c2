package dsp

import (
	"encoding/binary"
	"math"
)

// LimitLevel is the largest magnitude PCM16 emits, as a fraction of full scale.
const LimitLevel = 0.95

// PCM16 scales samples by volume (clamped to 0..1), limits them and
// encodes signed 16-bit little endian.
func PCM16(samps []float32, volume float64) []byte {
	volume = math.Max(0, math.Min(1, volume))
	out := make([]byte, 2*len(samps))
	for i, s := range samps {
		v := float64(s) * volume
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-LimitLevel, math.Min(LimitLevel, v))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v*math.MaxInt16)))
	}
	return out
}
