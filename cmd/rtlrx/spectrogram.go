package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlrx/dsp"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "spectrogram [flags] input.iq8|input.wav output.jpg",
		Short: "Render an IQ file as a spectrogram image",
		Args:  cobra.ExactArgs(2),
		Run:   func(cmd *cobra.Command, args []string) { spectrogram(args[0], args[1]) },
	})
}

func spectrogram(inf, outf string) {
	sp, err := dsp.NewSpectrum(cfg.Spectrum.FFTSize, cfg.Spectrum.Transform)
	if err != nil {
		panic(err)
	}
	ctx, cancel := signalContext()
	defer cancel()
	blkc, rate, errf := openBlocks(ctx, inf)
	fout, err := os.OpenFile(outf, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		panic(err)
	}
	defer fout.Close()
	if err := dsp.WriteSpectrogram(fout, sp, blkc); err != nil {
		panic(err)
	}
	if err := errf(); err != nil {
		panic(err)
	}
	log.Printf("[INFO] wrote %s (%d bins at %d Hz)", outf, sp.Size()/2, rate)
}
