package main

import (
	"github.com/spf13/cobra"
	"github.com/veandco/go-sdl2/sdl"

	_ "github.com/chzchzchz/rtlrx/dsp/fftw"
	"github.com/chzchzchz/rtlrx/radio"
)

var (
	flagBand  radio.HzBand
	winWidth  int
	winHeight int
	resizable bool
	popup     bool
	simulate  bool
	transform string
)

var rootCmd = &cobra.Command{
	Use:   "rtlscope [flags] [dongle|input.iq8|input.wav|tcp://host:port|tcp://mdns]",
	Short: "A tool to display an IQ stream as a waterfall.",
	Args:  cobra.MaximumNArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { runScope(args) },
}

func init() {
	rootCmd.Flags().Uint64VarP(&flagBand.Center, "center-hz", "c", 100000000, "Center Frequency in Hz")
	rootCmd.Flags().Uint64VarP(&flagBand.Width, "sample-rate", "s", 2048000, "Sample rate in Hz")
	rootCmd.Flags().BoolVarP(&simulate, "simulate", "", false, "Use a simulated dongle")
	rootCmd.Flags().StringVarP(&transform, "fft", "", "", "FFT backend (radix2, gonum, fftw)")

	// UI
	rootCmd.Flags().IntVarP(&winWidth, "window-width", "w", 512, "FFT bins / window width, a power of two")
	rootCmd.Flags().IntVarP(&winHeight, "window-height", "r", 480, "Total FFT rows to display")
	rootCmd.Flags().BoolVarP(&resizable, "resize", "R", true, "Window is resizable")
	rootCmd.Flags().BoolVarP(&popup, "popup", "p", false, "Window is a pop-up (i3 hack)")
}

func runScope(args []string) {
	path := "dongle"
	if len(args) == 1 {
		path = args[0]
	}
	src, err := openSource(path, flagBand)
	if err != nil {
		panic(err)
	}
	defer src.Close()

	s, err := newScope(src, winWidth, winHeight)
	if err != nil {
		panic(err)
	}
	defer s.Close()
	s.Run()
}

func main() {
	if err := sdl.Init(sdl.INIT_TIMER | sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		panic(err)
	}
	defer sdl.Quit()
	rootCmd.Execute()
}
