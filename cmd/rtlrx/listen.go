package main

import (
	"io"
	"log"

	"github.com/ebitengine/oto/v3"
	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlrx/dsp"
	"github.com/chzchzchz/rtlrx/receiver"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "listen",
		Short: "Play demodulated audio",
		Run:   func(cmd *cobra.Command, args []string) { listen() },
	})
}

func listen() {
	ctx, cancel := signalContext()
	defer cancel()

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.Audio.Rate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		panic(err)
	}
	<-ready

	rx := newReceiver(receiver.Listener{
		OnError: func(err error) {
			log.Printf("[ERROR] stream: %v", err)
			cancel()
		},
	})
	defer rx.Close()
	sub, err := rx.SubscribeAudio(cfg.Spectrum.Depth)
	if err != nil {
		panic(err)
	}
	defer sub.Close()

	pr, pw := io.Pipe()
	player := otoCtx.NewPlayer(pr)
	defer player.Close()
	if err := rx.Start(); err != nil {
		panic(err)
	}
	player.Play()
	ts := rx.Tuner()
	log.Printf("[INFO] listening to %.4f MHz %s", float64(ts.FrequencyHz)/1e6, rx.Mode())

	go func() {
		<-ctx.Done()
		pw.Close()
	}()
	for {
		select {
		case af, ok := <-sub.C():
			if !ok {
				return
			}
			if _, err := pw.Write(dsp.PCM16(af.Samples, cfg.Audio.Volume)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
