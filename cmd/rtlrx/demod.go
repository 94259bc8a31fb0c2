package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlrx/dsp"
	"github.com/chzchzchz/rtlrx/radio"
)

const fileBatch = 16384

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "demod [flags] input.iq8|input.wav output.pcm",
		Short: "Demodulate an IQ file to s16le PCM",
		Args:  cobra.ExactArgs(2),
		Run:   func(cmd *cobra.Command, args []string) { demod(args[0], args[1]) },
	})
}

func openOutput(outf string) (io.Writer, func()) {
	if outf == "-" {
		return os.Stdout, func() {}
	}
	fout, err := os.OpenFile(outf, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		panic(err)
	}
	return fout, func() { fout.Close() }
}

// openBlocks streams an IQ file, u8 unless the name ends in .wav, and
// returns its sample rate.
func openBlocks(ctx context.Context, inf string) (<-chan radio.IQBlock, uint32, func() error) {
	if inf == "-" {
		iqr := radio.NewIQReader(os.Stdin)
		return iqr.BlockStream(ctx, fileBatch), cfg.Tuner.SampleRateHz, iqr.Err
	}
	f, err := os.Open(inf)
	if err != nil {
		panic(err)
	}
	if strings.HasSuffix(strings.ToLower(inf), ".wav") {
		wr, err := radio.NewWAVIQReader(f)
		if err != nil {
			panic(err)
		}
		return wr.BlockStream(ctx, fileBatch), wr.SampleRate(), wr.Err
	}
	iqr := radio.NewIQReader(f)
	return iqr.BlockStream(ctx, fileBatch), cfg.Tuner.SampleRateHz, iqr.Err
}

func fileAudio(ctx context.Context, inf string, outRate int) (<-chan dsp.AudioFrame, func() error) {
	blkc, rate, errf := openBlocks(ctx, inf)
	d, err := dsp.NewDemodulator(cfg.Demod(), int(rate), outRate, cfg.Audio.Resampler)
	if err != nil {
		panic(err)
	}
	return dsp.AudioStream(ctx, d, blkc), errf
}

func demod(inf, outf string) {
	w, done := openOutput(outf)
	defer done()
	ctx, cancel := signalContext()
	defer cancel()
	audioc, errf := fileAudio(ctx, inf, cfg.Audio.Rate)
	for af := range audioc {
		if _, err := w.Write(dsp.PCM16(af.Samples, cfg.Audio.Volume)); err != nil {
			panic(err)
		}
	}
	if err := errf(); err != nil {
		panic(err)
	}
}
