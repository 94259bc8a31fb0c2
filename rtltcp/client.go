package rtltcp

import (
	"context"
	"fmt"
	"net"

	"github.com/bemasher/rtltcp"

	"github.com/chzchzchz/rtlrx/radio"
)

// Client is a connection to an rtl_tcp server holding its dongle header.
type Client struct {
	rtltcp.SDR
}

// Dial connects to the server at addr, DefaultAddress if empty, and reads
// the dongle header. The caller closes the client.
func Dial(ctx context.Context, addr string) (*Client, error) {
	if addr == "" {
		addr = DefaultAddress
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Client{}
	errc := make(chan error, 1)
	go func() { errc <- c.Connect(tcpAddr) }()
	select {
	case err := <-errc:
		if err != nil {
			return nil, err
		}
		return c, nil
	case <-ctx.Done():
		go func() {
			if <-errc == nil {
				c.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// IQReader reads the sample stream following the header.
func (c *Client) IQReader() *radio.IQReader { return radio.NewIQReader(c.TCPConn) }

// SetGainByIndex rejects indexes past the advertised gain count.
func (c *Client) SetGainByIndex(idx uint32) error {
	if idx >= c.Info.GainCount {
		return fmt.Errorf("gain index %d out of %d", idx, c.Info.GainCount)
	}
	return c.SDR.SetGainByIndex(idx)
}

// SetFreqCorrection sends ppm, which may be negative.
func (c *Client) SetFreqCorrection(ppm int) error {
	return c.SDR.SetFreqCorrection(uint32(int32(ppm)))
}
