package main

import (
	"context"
	"errors"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chzchzchz/rtlrx/radio"
	"github.com/chzchzchz/rtlrx/receiver"
	"github.com/chzchzchz/rtlrx/rtltcp"
	"github.com/chzchzchz/rtlrx/stream"
	"github.com/chzchzchz/rtlrx/usb"
	"github.com/chzchzchz/rtlrx/usb/usbtest"
)

const fileBatch = 16384

// iqSource fans a block stream out to the waterfall and the recorder.
type iqSource struct {
	*stream.Broadcaster[radio.IQBlock]
	band radio.HzBand
	// tune retunes live sources; nil for files.
	tune   func(hz uint32) error
	cancel context.CancelFunc
	closer func()
}

func (s *iqSource) Close() {
	s.cancel()
	if s.closer != nil {
		s.closer()
	}
	s.Broadcaster.Close()
}

func (s *iqSource) pump(ctx context.Context, blkc <-chan radio.IQBlock) {
	for {
		select {
		case blk, ok := <-blkc:
			if !ok {
				s.Broadcaster.Close()
				return
			}
			s.Publish(blk)
		case <-ctx.Done():
			return
		}
	}
}

func openSource(path string, band radio.HzBand) (*iqSource, error) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &iqSource{Broadcaster: stream.NewBroadcaster[radio.IQBlock](), band: band, cancel: cancel}
	var blkc <-chan radio.IQBlock
	switch u, err := url.Parse(path); {
	case path == "dongle":
		rx, sub, err := openDongle(band)
		if err != nil {
			cancel()
			return nil, err
		}
		blkc, src.tune = sub.C(), rx.SetFrequency
		src.closer = func() {
			sub.Close()
			rx.Close()
		}
	case err == nil && u.Scheme == "tcp":
		addr, err := remoteAddr(u.Host)
		if err != nil {
			cancel()
			return nil, err
		}
		c, err := rtltcp.Dial(ctx, addr)
		if err != nil {
			cancel()
			return nil, err
		}
		if err := c.SetSampleRate(uint32(band.Width)); err != nil {
			c.Close()
			cancel()
			return nil, err
		}
		if err := c.SetCenterFreq(uint32(band.Center)); err != nil {
			c.Close()
			cancel()
			return nil, err
		}
		blkc, src.tune = c.IQReader().BlockStream(ctx, fileBatch), c.SetCenterFreq
		src.closer = func() { c.Close() }
	default:
		f, err := os.Open(path)
		if err != nil {
			cancel()
			return nil, err
		}
		src.closer = func() { f.Close() }
		if strings.HasSuffix(strings.ToLower(path), ".wav") {
			wr, err := radio.NewWAVIQReader(f)
			if err != nil {
				f.Close()
				cancel()
				return nil, err
			}
			src.band.Width = uint64(wr.SampleRate())
			blkc = wr.BlockStream(ctx, fileBatch)
		} else {
			blkc = radio.NewIQReader(f).BlockStream(ctx, fileBatch)
		}
	}
	go src.pump(ctx, blkc)
	return src, nil
}

// remoteAddr resolves "mdns" to the first advertised rtl_tcp server.
func remoteAddr(host string) (string, error) {
	if host != "mdns" {
		return host, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	hosts, err := rtltcp.Discover(ctx)
	if err != nil {
		return "", err
	}
	if len(hosts) == 0 {
		return "", errors.New("no rtl_tcp servers found")
	}
	log.Printf("[INFO] using %s (%s)", hosts[0].Addr, hosts[0].Instance)
	return hosts[0].Addr, nil
}

func openDongle(band radio.HzBand) (*receiver.Receiver, *stream.Subscription[radio.IQBlock], error) {
	open := receiver.USBOpener(usb.VendorRealtek, usb.ProductRTL2838, usb.DefaultOptions())
	if simulate {
		open = func() (usb.Link, error) { return usbtest.New(usbtest.Tone(float64(band.Width), float64(band.Width)/8)), nil }
	}
	cfg := receiver.DefaultConfig()
	cfg.Tuner.FrequencyHz, cfg.Tuner.SampleRateHz = uint32(band.Center), uint32(band.Width)
	cfg.ConnectWait = 10 * time.Second
	rx, err := receiver.New(open, cfg, receiver.Listener{})
	if err != nil {
		return nil, nil, err
	}
	if err := rx.ConnectRetry(context.Background()); err != nil {
		rx.Close()
		return nil, nil, err
	}
	sub, err := rx.Subscribe(8)
	if err != nil {
		rx.Close()
		return nil, nil, err
	}
	if err := rx.Start(); err != nil {
		sub.Close()
		rx.Close()
		return nil, nil, err
	}
	return rx, sub, nil
}
