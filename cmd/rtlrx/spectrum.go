package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlrx/dsp"
	"github.com/chzchzchz/rtlrx/receiver"
	"github.com/chzchzchz/rtlrx/rtltcp"
)

var (
	remoteAddr  string
	thresholdDB float64
	printEvery  time.Duration
)

func init() {
	spectrumCmd := &cobra.Command{
		Use:   "spectrum",
		Short: "Print the spectrum peak and detected signals",
		Run:   func(cmd *cobra.Command, args []string) { spectrum() },
	}
	spectrumCmd.Flags().StringVarP(&remoteAddr, "remote", "r", "", "Read IQ from an rtl_tcp server instead of a dongle; \"mdns\" to discover one")
	spectrumCmd.Flags().Float64VarP(&thresholdDB, "threshold", "t", -40, "Signal detection threshold in dB")
	spectrumCmd.Flags().DurationVarP(&printEvery, "interval", "i", time.Second, "Print interval")
	rootCmd.AddCommand(spectrumCmd)
}

func remoteFrames(ctx context.Context, sp *dsp.Spectrum) <-chan dsp.SpectrumFrame {
	remoteAddr = resolveRemote(remoteAddr)
	c, err := rtltcp.Dial(ctx, remoteAddr)
	if err != nil {
		panic(err)
	}
	go func() {
		<-ctx.Done()
		c.Close()
	}()
	fmt.Printf("connected to %s tuner %s, %d gains\n", remoteAddr, c.Info.Tuner, c.Info.GainCount)
	ts := cfg.Tuner
	if err := c.SetSampleRate(ts.SampleRateHz); err != nil {
		panic(err)
	}
	if err := c.SetCenterFreq(ts.FrequencyHz); err != nil {
		panic(err)
	}
	if err := c.SetGainMode(ts.AutoGain); err != nil {
		panic(err)
	}
	if !ts.AutoGain {
		if err := c.SetGain(uint32(ts.GainTenthDb)); err != nil {
			panic(err)
		}
	}
	return dsp.SpectrumStream(ctx, sp, printEvery, c.IQReader().BlockStream(ctx, sp.Size()))
}

func localFrames(ctx context.Context, sp *dsp.Spectrum) (<-chan dsp.SpectrumFrame, func()) {
	rx := newReceiver(receiver.Listener{})
	sub, err := rx.Subscribe(cfg.Spectrum.Depth)
	if err != nil {
		panic(err)
	}
	if err := rx.Start(); err != nil {
		panic(err)
	}
	return dsp.SpectrumStream(ctx, sp, printEvery, sub.C()), func() {
		sub.Close()
		rx.Close()
	}
}

func printFrame(f dsp.SpectrumFrame, centerHz, rate uint32) {
	fmt.Printf("peak %.4f MHz  strength %.1f dB  floor %.1f dB  sd %.1f\n",
		(float64(centerHz)+f.PeakFrequency(rate))/1e6, f.SignalStrength(), f.NoiseFloor(), f.Stddev())
	for _, i := range f.DetectSignals(thresholdDB) {
		fmt.Printf("  signal %.4f MHz %.1f dB\n", (float64(centerHz)+float64(i)*float64(rate)/float64(2*len(f)))/1e6, f[i])
	}
}

func spectrum() {
	ctx, cancel := signalContext()
	defer cancel()
	sp, err := dsp.NewSpectrum(cfg.Spectrum.FFTSize, cfg.Spectrum.Transform)
	if err != nil {
		panic(err)
	}
	sp.SetAveraging(cfg.Spectrum.Averaging)
	var framec <-chan dsp.SpectrumFrame
	if remoteAddr != "" {
		framec = remoteFrames(ctx, sp)
	} else {
		var done func()
		framec, done = localFrames(ctx, sp)
		defer done()
	}
	ts := cfg.Tuner
	for {
		select {
		case f, ok := <-framec:
			if !ok {
				return
			}
			printFrame(f.Smooth(3), ts.FrequencyHz, ts.SampleRateHz)
		case <-ctx.Done():
			return
		}
	}
}
