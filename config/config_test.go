package config

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chzchzchz/rtlrx/dsp"
	"github.com/chzchzchz/rtlrx/sdrerr"
)

func TestDefaultValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	src := `
[device]
vendor = 0x0bda
product = 0x2832
bulk_timeout_ms = 250
connect_wait_ms = 0

[tuner]
frequency_hz = 144800000
auto_gain = false
gain_tenth_db = 197
ppm = -12

[spectrum]
fft_size = 2048
transform = gonum
averaging = 0.2

[audio]
mode = am
volume = 0.25
bandwidth_hz = 10000
agc = true
squelch_db = -40

[log]
level = debug
`
	cfg, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.Product != 0x2832 || cfg.Device.BulkTimeout != 250*time.Millisecond {
		t.Fatalf("got device %+v", cfg.Device)
	}
	if cfg.Device.ConnectWait != 0 {
		t.Fatalf("got connect wait %v", cfg.Device.ConnectWait)
	}
	if cfg.Device.ControlTimeout != 5*time.Second {
		t.Fatalf("default control timeout lost: %v", cfg.Device.ControlTimeout)
	}
	if cfg.Tuner.FrequencyHz != 144800000 || cfg.Tuner.AutoGain || cfg.Tuner.GainTenthDb != 197 {
		t.Fatalf("got tuner %+v", cfg.Tuner)
	}
	if cfg.Tuner.SampleRateHz != 2048000 {
		t.Fatalf("default sample rate lost: %d", cfg.Tuner.SampleRateHz)
	}
	if cfg.Audio.Mode != dsp.AM || cfg.Audio.Volume != 0.25 || cfg.Audio.Rate != 48000 {
		t.Fatalf("got audio %+v", cfg.Audio)
	}

	rc := cfg.Receiver()
	if rc.FFTSize != 2048 || rc.Transform != "gonum" || rc.Stream.Timeout != 250*time.Millisecond {
		t.Fatalf("got receiver config %+v", rc)
	}
	if rc.Demod.CarrierHz != 144800000 {
		t.Fatalf("got carrier %d", rc.Demod.CarrierHz)
	}
	if rc.Demod.BandwidthHz != 10000 || !rc.Demod.AGC || rc.Demod.SquelchDB != -40 || rc.Demod.AudioFilter {
		t.Fatalf("got demod %+v", rc.Demod)
	}
	if rc.Averaging != 0.2 || rc.Tuner.PPM != -12 {
		t.Fatalf("got averaging %g ppm %d", rc.Averaging, rc.Tuner.PPM)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{
		"[spectrum]\nfft_size = 1000\n",
		"[tuner]\nfrequency_hz = 1000\n",
		"[tuner]\nsample_rate = 500000\n",
		"[audio]\nvolume = 2\n",
		"[audio]\nsquelch_db = 3\n",
		"[spectrum]\naveraging = 1.5\n",
		"[tuner]\nppm = 5000\n",
		"[log]\nlevel = chatty\n",
	}
	for _, src := range tests {
		if _, err := Parse([]byte(src)); sdrerr.KindOf(err) != sdrerr.InvalidParameter {
			t.Errorf("%q: got %v, want InvalidParameter", src, err)
		}
	}
	for _, src := range []string{
		"[tuner]\nfrequncy_hz = 1\n",
		"[device]\nvendor = nope\n",
		"[audio]\nmode = cw\n",
	} {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("%q: expected error", src)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtlrx.ini")
	if err := os.WriteFile(path, []byte("[server]\nhttp = :9090\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTP != ":9090" || cfg.Server.RTLTCP != ":1234" {
		t.Fatalf("got server %+v", cfg.Server)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.ini")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSetupLogging(t *testing.T) {
	var buf bytes.Buffer
	defer log.SetOutput(os.Stderr)
	if err := SetupLogging("warn", &buf); err != nil {
		t.Fatal(err)
	}
	log.Printf("[INFO] hidden")
	log.Printf("[ERROR] shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("got %q", out)
	}
	if err := SetupLogging("LOUD", &buf); err == nil {
		t.Fatal("expected bad level error")
	}
}
