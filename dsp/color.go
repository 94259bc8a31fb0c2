package dsp

import "image/color"

// black, green, yellow, white
var colorScale = []color.NRGBA{
	{0, 0, 0, 255},
	{0, 255, 0, 255},
	{255, 255, 0, 255},
	{255, 255, 255, 255},
}

func interpolate(t float64, a, b uint8) uint8 { return uint8(float64(a)*(1-t) + float64(b)*t) }

// WaterfallColor maps a normalized 0..1 level onto the color scale.
func WaterfallColor(v float64) color.NRGBA {
	if !(v > 0) {
		return colorScale[0]
	} else if v >= 1 {
		return colorScale[len(colorScale)-1]
	}
	idx := float64(len(colorScale)-1) * v
	t := idx - float64(int(idx))
	prev, next := colorScale[int(idx)], colorScale[int(idx)+1]
	return color.NRGBA{
		interpolate(t, prev.R, next.R),
		interpolate(t, prev.G, next.G),
		interpolate(t, prev.B, next.B),
		255,
	}
}
