package radio

type HzBand struct {
	Center uint64 `json:"center_hz"`
	Width  uint64 `json:"width_hz"`
}

func (hzb HzBand) ToMHz() FreqBand {
	return FreqBand{
		float64(hzb.Center) / 1e6,
		float64(hzb.Width) / 1e6,
	}
}

// HzBandRange returns the band spanning two frequencies in either order.
func HzBandRange(a, b int64) HzBand {
	if a > b {
		a, b = b, a
	}
	return HzBand{Center: uint64((a + b) / 2), Width: uint64(b - a)}
}

type FreqBand struct {
	Center float64
	Width  float64
}

func (f FreqBand) BeginMHz() float64 { return f.Center - f.Width/2.0 }
func (f FreqBand) EndMHz() float64   { return f.Center + f.Width/2.0 }
