package radio

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/chzchzchz/rtlrx/sdrerr"
	"github.com/chzchzchz/rtlrx/usb/usbtest"
)

func newTestDevice(t *testing.T) (*Device, *usbtest.Link) {
	link := usbtest.New(nil)
	dev := NewDevice(link, nil, StreamConfig{})
	dev.sleep = func(time.Duration) {}
	return dev, link
}

func tunerWrite(addr uint8, v byte) usbtest.ControlOp {
	return usbtest.ControlOp{ReqType: 0x40, Req: 0x01, Index: uint16(addr), Data: []byte{0x02, v}}
}

func demodWrite(addr uint8, v byte) usbtest.ControlOp {
	return usbtest.ControlOp{ReqType: 0x40, Req: 0x01, Index: uint16(addr), Data: []byte{v}}
}

func expectWrites(t *testing.T, got, want []usbtest.ControlOp) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d writes, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ReqType != w.ReqType || g.Req != w.Req || g.Value != w.Value ||
			g.Index != w.Index || !bytes.Equal(g.Data, w.Data) {
			t.Fatalf("write %d: got %+v, want %+v", i, g, w)
		}
	}
}

func TestPLL(t *testing.T) {
	n, frac := PLL(100000000)
	if n != 55 || frac != 0x8e38 {
		t.Fatalf("got n=%d frac=%#x", n, frac)
	}
}

func TestPLLDeterministic(t *testing.T) {
	for f := uint32(MinFreqHz); f <= MaxFreqHz; f += 7300013 {
		a, b := frequencyWrites(f, 0), frequencyWrites(f, 0)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("%d: write %d differs: %+v vs %+v", f, i, a[i], b[i])
			}
		}
		// The divider never overshoots the requested VCO frequency.
		n, frac := PLL(f)
		vco := uint64(n)*pllRefHz + (uint64(frac)*pllRefHz)>>16
		if want := uint64(f) * 4; vco > want || want-vco > pllRefHz>>15 {
			t.Fatalf("%d: pll reconstructs %d, want %d", f, vco, want)
		}
	}
}

func TestSetFrequencyWrites(t *testing.T) {
	dev, link := newTestDevice(t)
	if err := dev.SetFrequency(100000000); err != nil {
		t.Fatal(err)
	}
	expectWrites(t, link.Writes(), []usbtest.ControlOp{
		tunerWrite(0x14, 0x00),
		tunerWrite(0x15, 0x37),
		tunerWrite(0x16, 0x8e),
		tunerWrite(0x17, 0x38),
		tunerWrite(0x06, 0x50),
	})
	if got := dev.Tuner().FrequencyHz; got != 100000000 {
		t.Fatalf("state not updated, got %d", got)
	}
}

func TestInvalidParametersWriteNothing(t *testing.T) {
	dev, link := newTestDevice(t)
	before := dev.Tuner()
	tests := []struct {
		name string
		f    func() error
	}{
		{"freq low", func() error { return dev.SetFrequency(MinFreqHz - 1) }},
		{"freq high", func() error { return dev.SetFrequency(MaxFreqHz + 1) }},
		{"rate gap", func() error { return dev.SetSampleRate(500000) }},
		{"rate low", func() error { return dev.SetSampleRate(225000) }},
		{"rate zero", func() error { return dev.SetSampleRate(0) }},
		{"gain negative", func() error { return dev.SetGain(-1) }},
		{"gain high", func() error { return dev.SetGain(1000) }},
		{"ppm high", func() error { return dev.SetFreqCorrection(MaxPPM + 1) }},
		{"ppm low", func() error { return dev.SetFreqCorrection(-MaxPPM - 1) }},
		{"init bad freq", func() error { return dev.Init(TunerState{FrequencyHz: 1, SampleRateHz: 2048000}) }},
	}
	for _, tt := range tests {
		err := tt.f()
		if !errors.Is(err, sdrerr.ErrInvalidParameter) {
			t.Fatalf("%s: expected invalid parameter, got %v", tt.name, err)
		}
	}
	if n := len(link.Writes()); n != 0 {
		t.Fatalf("expected no writes, got %d", n)
	}
	if dev.Tuner() != before {
		t.Fatalf("state changed: %+v", dev.Tuner())
	}
}

func TestSetFreqCorrection(t *testing.T) {
	if got := CorrectedFrequency(100000000, 50); got != 99995000 {
		t.Fatalf("got corrected %d", got)
	}
	if got := CorrectedFrequency(100000000, 0); got != 100000000 {
		t.Fatalf("zero correction moved frequency to %d", got)
	}
	dev, link := newTestDevice(t)
	if err := dev.SetFrequency(100000000); err != nil {
		t.Fatal(err)
	}
	link.ResetWrites()
	if err := dev.SetFreqCorrection(50); err != nil {
		t.Fatal(err)
	}
	n, frac := PLL(99995000)
	expectWrites(t, link.Writes(), []usbtest.ControlOp{
		tunerWrite(0x14, byte(n>>8)),
		tunerWrite(0x15, byte(n)),
		tunerWrite(0x16, byte(frac>>8)),
		tunerWrite(0x17, byte(frac)),
		tunerWrite(0x06, 0x50),
	})
	if ts := dev.Tuner(); ts.PPM != 50 || ts.FrequencyHz != 100000000 {
		t.Fatalf("unexpected state %+v", ts)
	}

	// later retunes keep the correction
	link.ResetWrites()
	if err := dev.SetFrequency(200000000); err != nil {
		t.Fatal(err)
	}
	n, frac = PLL(CorrectedFrequency(200000000, 50))
	if w := link.Writes(); w[1].Data[1] != byte(n) || w[3].Data[1] != byte(frac) {
		t.Fatalf("retune ignored correction: %+v", w)
	}

	link.ResetWrites()
	if err := dev.SetFreqCorrection(50); err != nil {
		t.Fatal(err)
	}
	if n := len(link.Writes()); n != 0 {
		t.Fatalf("unchanged correction wrote %d registers", n)
	}
}

func TestFailedWriteKeepsState(t *testing.T) {
	dev, link := newTestDevice(t)
	link.ControlErr = sdrerr.New(sdrerr.IoTimeout, "usbtest", nil)
	err := dev.SetFrequency(433920000)
	if !errors.Is(err, sdrerr.ErrIoTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if dev.Tuner().FrequencyHz == 433920000 {
		t.Fatal("state updated despite failed write")
	}
}

func TestGain(t *testing.T) {
	tests := []struct {
		tenthDb    int
		lna, mixer uint8
	}{
		{0, 0, 0},
		{9, 1, 0},
		{10, 1, 1},
		{77, 3, 2},
		{496, 15, 14},
	}
	for _, tt := range tests {
		lna, mixer, total := gainIndices(tt.tenthDb)
		if lna != tt.lna || mixer != tt.mixer {
			t.Errorf("gain %d: got lna=%d mixer=%d, want %d/%d", tt.tenthDb, lna, mixer, tt.lna, tt.mixer)
		}
		if total < tt.tenthDb {
			t.Errorf("gain %d: total %d below request", tt.tenthDb, total)
		}
	}
	gains := Gains()
	if len(gains) != 30 || gains[0] != 0 || gains[len(gains)-1] != 496 {
		t.Fatalf("unexpected gain list %v", gains)
	}
	for i := 1; i < len(gains); i++ {
		if gains[i] <= gains[i-1] {
			t.Fatalf("gains not ascending at %d: %v", i, gains)
		}
	}
}

func TestSetGainAndAuto(t *testing.T) {
	dev, link := newTestDevice(t)
	if err := dev.SetGain(10); err != nil {
		t.Fatal(err)
	}
	expectWrites(t, link.Writes(), []usbtest.ControlOp{tunerWrite(0x05, 0x11), tunerWrite(0x07, 0x01)})
	if ts := dev.Tuner(); ts.AutoGain || ts.GainTenthDb != 10 {
		t.Fatalf("unexpected state %+v", ts)
	}

	link.ResetWrites()
	if err := dev.SetAutoGain(true); err != nil {
		t.Fatal(err)
	}
	expectWrites(t, link.Writes(), []usbtest.ControlOp{tunerWrite(0x05, 0x00), tunerWrite(0x07, 0x10)})
	if !dev.Tuner().AutoGain {
		t.Fatal("expected auto gain")
	}

	link.ResetWrites()
	if err := dev.SetAutoGain(false); err != nil {
		t.Fatal(err)
	}
	expectWrites(t, link.Writes(), []usbtest.ControlOp{tunerWrite(0x05, 0x11), tunerWrite(0x07, 0x01)})
}

func TestSetSampleRate(t *testing.T) {
	dev, link := newTestDevice(t)
	if err := dev.SetSampleRate(2048000); err != nil {
		t.Fatal(err)
	}
	expectWrites(t, link.Writes(), []usbtest.ControlOp{demodWrite(0x9f, 0x00), demodWrite(0xa0, 0x0e)})
	if got := dev.Tuner().SampleRateHz; got != 2048000 {
		t.Fatalf("got rate %d", got)
	}
	if RateDivider(240000) != 120 {
		t.Fatalf("got divider %d", RateDivider(240000))
	}
}

func TestReset(t *testing.T) {
	dev, link := newTestDevice(t)
	var slept []time.Duration
	dev.sleep = func(d time.Duration) { slept = append(slept, d) }
	if err := dev.Reset(); err != nil {
		t.Fatal(err)
	}
	expectWrites(t, link.Writes(), []usbtest.ControlOp{
		demodWrite(0x00, 0x10),
		demodWrite(0x00, 0x00),
		demodWrite(0x01, 0x00),
		demodWrite(0x19, 0x00),
		demodWrite(0x1a, 0x00),
	})
	if len(slept) != 1 || slept[0] != 10*time.Millisecond {
		t.Fatalf("unexpected delays %v", slept)
	}
}

func TestInit(t *testing.T) {
	dev, link := newTestDevice(t)
	if dev.Initialized() {
		t.Fatal("initialized before Init")
	}
	ts := TunerState{FrequencyHz: 100000000, SampleRateHz: 2048000, GainTenthDb: 10}
	if err := dev.Init(ts); err != nil {
		t.Fatal(err)
	}
	if !dev.Initialized() || dev.Tuner() != ts {
		t.Fatalf("unexpected state %+v", dev.Tuner())
	}
	w := link.Writes()
	// reset(5) + tuner init(2) + rate(2) + pll(5) + gain(2)
	if len(w) != 16 {
		t.Fatalf("expected 16 writes, got %d", len(w))
	}
	expectWrites(t, w[5:7], []usbtest.ControlOp{tunerWrite(0x06, 0x00), tunerWrite(0x06, 0x10)})
	expectWrites(t, w[14:], []usbtest.ControlOp{tunerWrite(0x05, 0x11), tunerWrite(0x07, 0x01)})
}

func TestReadRegister(t *testing.T) {
	dev, link := newTestDevice(t)
	link.SetRead(0x02, 0x06, 0x50)
	link.SetRead(0x00, 0x19, 0x07)
	if v, err := dev.ReadRegister("tuner.ctrl"); err != nil || v != 0x50 {
		t.Fatalf("tuner.ctrl: got %#x, %v", v, err)
	}
	if v, err := dev.ReadRegister("demod.gpo"); err != nil || v != 0x07 {
		t.Fatalf("demod.gpo: got %#x, %v", v, err)
	}
	if _, err := dev.ReadRegister("nope"); !errors.Is(err, sdrerr.ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}

func TestRegisterMapUnique(t *testing.T) {
	seen := make(map[[2]uint8]string)
	for _, name := range RegisterNames() {
		r := RegisterMap[name]
		if r.Name != name {
			t.Fatalf("%s has name %s", name, r.Name)
		}
		k := [2]uint8{uint8(r.Block), r.Addr}
		if other, ok := seen[k]; ok {
			t.Fatalf("%s aliases %s", name, other)
		}
		seen[k] = name
	}
}
