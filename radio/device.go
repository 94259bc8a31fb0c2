package radio

import (
	"github.com/chzchzchz/rtlrx/stream"
	"github.com/chzchzchz/rtlrx/usb"
)

// Device bundles the register driver and stream engine sharing one link.
type Device struct {
	*Driver
	Stream *Streamer
	link   usb.Link
}

func NewDevice(link usb.Link, out *stream.Broadcaster[IQBlock], cfg StreamConfig) *Device {
	s := NewStreamer(link, out, cfg)
	d := NewDriver(s)
	s.ready = d.Initialized
	return &Device{Driver: d, Stream: s, link: link}
}

// Close stops streaming and releases the link.
func (d *Device) Close() error {
	stopErr := d.Stream.Stop()
	if err := d.link.Close(); err != nil {
		return err
	}
	return stopErr
}
