package rtltcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/bemasher/rtltcp"
	"github.com/grandcat/zeroconf"
)

const ServiceType = "_rtl_tcp._tcp"

// Host is an rtl_tcp server found by Discover.
type Host struct {
	Instance string
	Addr     string
	TXT      []string
}

func txtRecord(info rtltcp.DongleInfo) []string {
	return []string{"tuner=" + info.Tuner.String(), fmt.Sprintf("gains=%d", info.GainCount)}
}

// Advertise announces info on port over mDNS until ctx is done.
func Advertise(ctx context.Context, instance string, port int, info rtltcp.DongleInfo) error {
	srv, err := zeroconf.Register(instance, ServiceType, "local.", port, txtRecord(info), nil)
	if err != nil {
		return err
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// ListenPort extracts the port of a listen address like ":1234".
func ListenPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(p)
}

// Discover browses for servers until ctx is done. Entries are keyed on
// address so repeated announcements collapse.
func Discover(ctx context.Context) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]Host)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if h, ok := entryHost(e); ok {
					found[h.Addr] = h
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, err
	}
	<-done
	var hosts []Host
	for _, h := range found {
		hosts = append(hosts, h)
	}
	return hosts, nil
}

func entryHost(e *zeroconf.ServiceEntry) (Host, bool) {
	if e == nil {
		return Host{}, false
	}
	var ip net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		ip = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		ip = e.AddrIPv6[0]
	default:
		return Host{}, false
	}
	return Host{
		Instance: strings.ReplaceAll(e.Instance, `\ `, " "),
		Addr:     net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)),
		TXT:      append([]string(nil), e.Text...),
	}, true
}
