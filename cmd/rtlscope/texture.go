package main

import (
	"github.com/veandco/go-sdl2/sdl"

	"github.com/chzchzchz/rtlrx/dsp"
)

// fftTexture is a ring of waterfall rows in one streaming texture. Rows are
// written at decreasing indices so head..h-1 then 0..head-1 runs newest to
// oldest, and two copies draw it with the newest row on top.
type fftTexture struct {
	r    *sdl.Renderer
	tex  *sdl.Texture
	w, h int32
	head int32
	row  []byte
}

func newFFTTexture(r *sdl.Renderer, w, h int) *fftTexture {
	tex, err := r.CreateTexture(sdl.PIXELFORMAT_RGB888, sdl.TEXTUREACCESS_STREAMING, int32(w), int32(h))
	if err != nil {
		panic(err)
	}
	if err := tex.Update(nil, make([]byte, 4*w*h), 4*w); err != nil {
		panic(err)
	}
	return &fftTexture{r: r, tex: tex, w: int32(w), h: int32(h), row: make([]byte, 4*w)}
}

func (ft *fftTexture) blit() {
	newer := ft.h - ft.head
	ft.copy(&sdl.Rect{Y: ft.head, W: ft.w, H: newer}, &sdl.Rect{W: ft.w, H: newer})
	if ft.head > 0 {
		ft.copy(&sdl.Rect{W: ft.w, H: ft.head}, &sdl.Rect{Y: newer, W: ft.w, H: ft.head})
	}
}

func (ft *fftTexture) copy(src, dst *sdl.Rect) {
	if err := ft.r.Copy(ft.tex, src, dst); err != nil {
		panic(err)
	}
}

// add colors a normalized waterfall row in as the newest.
func (ft *fftTexture) add(row []float64) {
	for i := 0; i < int(ft.w) && i < len(row); i++ {
		c := dsp.WaterfallColor(row[i])
		// RGB888 is stored as little endian XRGB.
		ft.row[4*i], ft.row[4*i+1], ft.row[4*i+2] = c.B, c.G, c.R
	}
	ft.head = (ft.head - 1 + ft.h) % ft.h
	ft.tex.Update(&sdl.Rect{Y: ft.head, W: ft.w, H: 1}, ft.row, int(4*ft.w))
}

func (ft *fftTexture) Destroy() { ft.tex.Destroy() }
