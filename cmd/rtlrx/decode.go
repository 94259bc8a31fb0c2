package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlrx/decoder"
	"github.com/chzchzchz/rtlrx/dsp"
	"github.com/chzchzchz/rtlrx/receiver"
)

var decodeModes []string

func init() {
	decodeCmd := &cobra.Command{
		Use:   "decode [iqfile]",
		Short: "Decode demodulated audio with multimon-ng, from a file or the dongle",
		Args:  cobra.MaximumNArgs(1),
		Run:   func(cmd *cobra.Command, args []string) { decode(args) },
	}
	decodeCmd.Flags().StringSliceVarP(&decodeModes, "decoders", "a", []string{"FLEX"}, "multimon-ng decoders")
	rootCmd.AddCommand(decodeCmd)
}

func liveAudio(rate int) (<-chan dsp.AudioFrame, func()) {
	rc := cfg.Receiver()
	rc.AudioRate = rate
	rx, err := receiver.New(opener(), rc, receiver.Listener{})
	if err != nil {
		panic(err)
	}
	if err := rx.ConnectRetry(context.Background()); err != nil {
		panic(err)
	}
	sub, err := rx.SubscribeAudio(cfg.Spectrum.Depth)
	if err != nil {
		panic(err)
	}
	if err := rx.Start(); err != nil {
		panic(err)
	}
	return sub.C(), func() {
		sub.Close()
		rx.Close()
	}
}

func decode(args []string) {
	ctx, cancel := signalContext()
	defer cancel()
	d := decoder.Multimon(decodeModes...)
	var audioc <-chan dsp.AudioFrame
	if len(args) == 1 {
		audioc, _ = fileAudio(ctx, args[0], d.Rate)
	} else {
		var done func()
		audioc, done = liveAudio(d.Rate)
		go func() {
			<-ctx.Done()
			done()
		}()
	}
	s, err := decoder.Decode(ctx, d, cfg.Audio.Volume, audioc)
	if err != nil && ctx.Err() == nil {
		panic(err)
	}
	fmt.Println(s)
}
