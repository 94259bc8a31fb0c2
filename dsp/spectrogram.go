package dsp

import (
	"image"
	"image/jpeg"
	"io"

	"github.com/chzchzchz/rtlrx/radio"
)

// Spectrogram renders one row per block, lowest bin on the left.
func Spectrogram(sp *Spectrum, blkc <-chan radio.IQBlock) *image.NRGBA {
	var rows [][]float64
	for blk := range blkc {
		rows = append(rows, sp.Analyze(blk.Samples).WaterfallRow())
	}
	bins := sp.Size() / 2
	img := image.NewNRGBA(image.Rectangle{Max: image.Point{bins, len(rows)}})
	for y, row := range rows {
		for x, v := range row {
			img.SetNRGBA(x, y, WaterfallColor(v))
		}
	}
	return img
}

func WriteSpectrogram(w io.Writer, sp *Spectrum, blkc <-chan radio.IQBlock) error {
	return jpeg.Encode(w, Spectrogram(sp, blkc), nil)
}
