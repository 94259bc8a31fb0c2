// Package http exposes a receiver over HTTP: JSON control, raw IQ and PCM
// streams, and a status page.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/chzchzchz/rtlrx/dsp"
	"github.com/chzchzchz/rtlrx/radio"
	"github.com/chzchzchz/rtlrx/receiver"
	"github.com/chzchzchz/rtlrx/sdrerr"
)

const streamDepth = 16

const DefaultThreshold = -40.0

type httpHandler struct {
	rx         *receiver.Receiver
	volume     float64
	serverTmpl *template.Template
}

const serverTmplStr = `<!DOCTYPE html>
<html>
<head>
<title>SDR!!</title>
<style>
table, th, td {
  border: 1px solid black;
  text-align: right;
}
</style>
</head>
<body>
<h1>welcome to rtlrx</h1>
<hr/>

<h2>SDR status &#x1F4FB;</h2>
<ul>
<li>State: {{.State}}</li>
<li>Current frequency: {{printf "%.3f" .Band.BeginMHz}}--{{printf "%.3f" .Band.EndMHz}}MHz</li>
<li>Gain: {{if .Tuner.AutoGain}}auto{{else}}{{printf "%.1f" .GainDB}}dB{{end}}</li>
<li>Mode: {{.Mode}}</li>
</ul>

{{$length := len .Signals}} {{if gt $length 0}}
<h2>Signals &#x1F4E1;</h2>
<table>
<tr><th>Offset kHz</th><th>Frequency MHz</th></tr>
{{range $_, $s := .Signals}}
<tr>
<td>{{printf "%.1f" $s.OffsetKHz}}</td>
<td>{{printf "%.4f" $s.MHz}}</td>
</tr>
{{end}}
</table>
{{end}}

<h2>Controls</h2>
<form method="post" action="/api/sdr/start"><button>Start</button></form>
<form method="post" action="/api/sdr/stop"><button>Stop</button></form>
</body>
</html>
`

// NewHandler serves the API under /api and the status page at /. Audio is
// scaled by volume before conversion to PCM.
func NewHandler(rx *receiver.Receiver, volume float64) http.Handler {
	h := &httpHandler{
		rx:         rx,
		volume:     volume,
		serverTmpl: template.Must(template.New("server").Parse(serverTmplStr)),
	}
	mux := http.NewServeMux()
	mux.Handle("/api/sdr/", http.StripPrefix("/api/sdr", newSDRHandler(rx)))
	mux.HandleFunc("/api/spectrum", h.handleSpectrum)
	mux.HandleFunc("/api/signals", h.handleSignals)
	mux.HandleFunc("/api/audio", h.handleAudio)
	mux.HandleFunc("/", h.handleGetIndex)
	return mux
}

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, rx *receiver.Receiver, addr string, volume float64) error {
	srv := &http.Server{Addr: addr, Handler: NewHandler(rx, volume)}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	log.Printf("[INFO] http serving on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(js)
}

func httpError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch sdrerr.KindOf(err) {
	case sdrerr.InvalidParameter:
		code = http.StatusBadRequest
	case sdrerr.NotInitialized:
		code = http.StatusConflict
	case sdrerr.DeviceNotFound:
		code = http.StatusNotFound
	case sdrerr.PermissionDenied:
		code = http.StatusForbidden
	case sdrerr.ClaimFailed, sdrerr.IoTimeout:
		code = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), code)
}

type spectrumMsg struct {
	CenterHz   uint32            `json:"center_hz"`
	SampleRate uint32            `json:"sample_rate"`
	PeakHz     float64           `json:"peak_hz"`
	NoiseFloor float64           `json:"noise_floor_db"`
	Bins       dsp.SpectrumFrame `json:"bins"`
}

func (h *httpHandler) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	f, ts := h.rx.LastSpectrumAt()
	if f == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, spectrumMsg{
		CenterHz:   ts.FrequencyHz,
		SampleRate: ts.SampleRateHz,
		PeakHz:     f.PeakFrequency(ts.SampleRateHz),
		NoiseFloor: f.NoiseFloor(),
		Bins:       f,
	})
}

func threshold(r *http.Request) (float64, error) {
	s := r.URL.Query().Get("threshold")
	if s == "" {
		return DefaultThreshold, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, sdrerr.New(sdrerr.InvalidParameter, "threshold", err)
	}
	return v, nil
}

func (h *httpHandler) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	th, err := threshold(r)
	if err != nil {
		httpError(w, err)
		return
	}
	sig := h.rx.Signals(th)
	if sig == nil {
		sig = []float64{}
	}
	writeJSON(w, sig)
}

func (h *httpHandler) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sub, err := h.rx.SubscribeAudio(streamDepth)
	if err != nil {
		httpError(w, err)
		return
	}
	defer sub.Close()
	w.Header().Set("Content-Type", "audio/L16")
	f, _ := w.(http.Flusher)
	for {
		select {
		case af, ok := <-sub.C():
			if !ok {
				return
			}
			if _, err := w.Write(dsp.PCM16(af.Samples, h.volume)); err != nil {
				return
			}
			if f != nil {
				f.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

type signalRow struct {
	OffsetKHz float64
	MHz       float64
}

type statusPage struct {
	State   receiver.State
	Tuner   radio.TunerState
	Band    radio.FreqBand
	GainDB  float64
	Mode    dsp.Mode
	Signals []signalRow
}

func (h *httpHandler) status() statusPage {
	ts := h.rx.Tuner()
	band := radio.HzBand{Center: uint64(ts.FrequencyHz), Width: uint64(ts.SampleRateHz)}.ToMHz()
	p := statusPage{
		State:  h.rx.State(),
		Tuner:  ts,
		Band:   band,
		GainDB: float64(ts.GainTenthDb) / 10,
		Mode:   h.rx.Mode(),
	}
	for _, hz := range h.rx.Signals(DefaultThreshold) {
		p.Signals = append(p.Signals, signalRow{OffsetKHz: hz / 1e3, MHz: band.Center + hz/1e6})
	}
	return p
}

func (h *httpHandler) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if err := h.serverTmpl.Execute(w, h.status()); err != nil {
		io.WriteString(w, err.Error())
	}
}
