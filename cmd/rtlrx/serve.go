package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlrx/http"
	"github.com/chzchzchz/rtlrx/receiver"
	"github.com/chzchzchz/rtlrx/rtltcp"
)

var advertise bool

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the receiver over HTTP and rtl_tcp",
		Run: func(cmd *cobra.Command, args []string) {
			if cmd.Flags().Changed("advertise") {
				cfg.Server.Advertise = advertise
			}
			serve()
		},
	}
	serveCmd.Flags().BoolVarP(&advertise, "advertise", "a", false, "Advertise the rtl_tcp server over mDNS")
	rootCmd.AddCommand(serveCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func advertiseName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return "rtlrx on " + host
}

func serve() {
	ctx, cancel := signalContext()
	defer cancel()
	rx := newReceiver(receiver.Listener{
		OnState: func(s receiver.State) { log.Printf("[DEBUG] state %s", s) },
		OnError: func(err error) { log.Printf("[ERROR] stream: %v", err) },
	})
	defer rx.Close()
	if err := rx.Start(); err != nil {
		panic(err)
	}

	tcp := rtltcp.NewServer(rx, rx, cfg.Spectrum.Depth)
	if cfg.Server.Advertise {
		port, err := rtltcp.ListenPort(cfg.Server.RTLTCP)
		if err != nil {
			panic(err)
		}
		go func() {
			if err := rtltcp.Advertise(ctx, advertiseName(), port, tcp.Info()); err != nil {
				log.Printf("[WARN] mdns: %v", err)
			}
		}()
	}
	errc := make(chan error, 2)
	go func() { errc <- tcp.ListenAndServe(ctx, cfg.Server.RTLTCP) }()
	go func() { errc <- http.Serve(ctx, rx, cfg.Server.HTTP, cfg.Audio.Volume) }()
	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil {
			log.Printf("[ERROR] %v", err)
			cancel()
		}
	}
}
