package rtltcp

import (
	"net"
	"testing"

	"github.com/bemasher/rtltcp"
	"github.com/grandcat/zeroconf"
)

func TestEntryHost(t *testing.T) {
	e := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: `kitchen\ dongle`},
		Port:          1234,
		Text:          txtRecord(rtltcp.DongleInfo{Tuner: TunerR820T, GainCount: 29}),
		AddrIPv4:      []net.IP{net.IPv4(192, 168, 1, 7)},
	}
	h, ok := entryHost(e)
	if !ok {
		t.Fatal("expected host")
	}
	if h.Instance != "kitchen dongle" || h.Addr != "192.168.1.7:1234" {
		t.Fatalf("got %+v", h)
	}
	if len(h.TXT) != 2 || h.TXT[0] != "tuner=R820T" || h.TXT[1] != "gains=29" {
		t.Fatalf("got txt %v", h.TXT)
	}
	if _, ok := entryHost(&zeroconf.ServiceEntry{Port: 1}); ok {
		t.Fatal("expected no host without addresses")
	}
}

func TestListenPort(t *testing.T) {
	if p, err := ListenPort(":1234"); err != nil || p != 1234 {
		t.Fatalf("got %d, %v", p, err)
	}
	if _, err := ListenPort("nope"); err == nil {
		t.Fatal("expected error")
	}
}
