package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/chzchzchz/rtlrx/dsp"
	"github.com/chzchzchz/rtlrx/radio"
	"github.com/chzchzchz/rtlrx/receiver"
	"github.com/chzchzchz/rtlrx/sdrerr"
)

// SDRTune changes only the fields that are set.
type SDRTune struct {
	CenterHz    uint32    `json:"center_hz,omitempty"`
	SampleRate  uint32    `json:"sample_rate,omitempty"`
	GainTenthDb *int      `json:"gain_tenth_db,omitempty"`
	AutoGain    *bool     `json:"auto_gain,omitempty"`
	PPM         *int      `json:"ppm,omitempty"`
	Mode        *dsp.Mode `json:"mode,omitempty"`
	BandwidthHz *int      `json:"bandwidth_hz,omitempty"`
	SquelchDB   *float64  `json:"squelch_db,omitempty"`
}

type sdrHandler struct {
	rx *receiver.Receiver
}

// validate rejects the whole request if any set field is out of range.
func (msg SDRTune) validate() error {
	if msg.SampleRate != 0 && !radio.ValidSampleRate(msg.SampleRate) {
		return sdrerr.New(sdrerr.InvalidParameter, "sample rate", radio.ErrRateOutOfRange)
	}
	if msg.CenterHz != 0 && !radio.ValidFrequency(msg.CenterHz) {
		return sdrerr.New(sdrerr.InvalidParameter, "frequency", radio.ErrFrequencyOutOfRange)
	}
	if msg.GainTenthDb != nil && !radio.ValidGain(*msg.GainTenthDb) {
		return sdrerr.New(sdrerr.InvalidParameter, "gain", radio.ErrGainOutOfRange)
	}
	if msg.PPM != nil && !radio.ValidPPM(*msg.PPM) {
		return sdrerr.New(sdrerr.InvalidParameter, "frequency correction", radio.ErrPPMOutOfRange)
	}
	if msg.BandwidthHz != nil && *msg.BandwidthHz < 0 {
		return sdrerr.Errorf(sdrerr.InvalidParameter, "bandwidth", "%d", *msg.BandwidthHz)
	}
	if msg.SquelchDB != nil && *msg.SquelchDB > 0 {
		return sdrerr.Errorf(sdrerr.InvalidParameter, "squelch", "%g is above full scale", *msg.SquelchDB)
	}
	return nil
}

func (s *sdrHandler) apply(msg SDRTune) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if msg.BandwidthHz != nil || msg.SquelchDB != nil {
		dc := s.rx.Demod()
		if msg.BandwidthHz != nil {
			dc.BandwidthHz = *msg.BandwidthHz
		}
		if msg.SquelchDB != nil {
			dc.SquelchDB = *msg.SquelchDB
		}
		if err := s.rx.SetDemod(dc); err != nil {
			return err
		}
	}
	if msg.SampleRate != 0 {
		if err := s.rx.SetSampleRate(msg.SampleRate); err != nil {
			return err
		}
	}
	if msg.CenterHz != 0 {
		if err := s.rx.SetFrequency(msg.CenterHz); err != nil {
			return err
		}
	}
	if msg.GainTenthDb != nil {
		if err := s.rx.SetGain(*msg.GainTenthDb); err != nil {
			return err
		}
	}
	if msg.AutoGain != nil {
		if err := s.rx.SetAutoGain(*msg.AutoGain); err != nil {
			return err
		}
	}
	if msg.PPM != nil {
		if err := s.rx.SetFreqCorrection(*msg.PPM); err != nil {
			return err
		}
	}
	if msg.Mode != nil {
		s.rx.SetMode(*msg.Mode)
	}
	return nil
}

func (s *sdrHandler) handleTune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	b, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		httpError(w, err)
		return
	}
	var msg SDRTune
	if err := json.Unmarshal(b, &msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.apply(msg); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, s.rx.Tuner())
}

func (s *sdrHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.rx.State() == receiver.Disconnected {
		if err := s.rx.ConnectRetry(r.Context()); err != nil {
			httpError(w, err)
			return
		}
	}
	if err := s.rx.Start(); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *sdrHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.rx.Stop(); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *sdrHandler) handleRaw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sub, err := s.rx.Subscribe(streamDepth)
	if err != nil {
		httpError(w, err)
		return
	}
	defer sub.Close()
	w.Header().Set("Content-Type", "binary/octet-stream")
	f, _ := w.(http.Flusher)
	for {
		select {
		case blk, ok := <-sub.C():
			if !ok {
				return
			}
			if _, err := w.Write(blk.Raw); err != nil {
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

type sdrStatus struct {
	State receiver.State    `json:"state"`
	Info  radio.SDRHWInfo   `json:"info"`
	Stats radio.StreamStats `json:"stats"`
	Mode  dsp.Mode          `json:"mode"`
}

func (s *sdrHandler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, err := s.rx.Info()
	if err != nil {
		httpError(w, err)
		return
	}
	st, _ := s.rx.Stats()
	writeJSON(w, []sdrStatus{{State: s.rx.State(), Info: info, Stats: st, Mode: s.rx.Mode()}})
}

func newSDRHandler(rx *receiver.Receiver) http.Handler {
	sh := sdrHandler{rx}
	mux := http.NewServeMux()
	mux.HandleFunc("/tune", sh.handleTune)
	mux.HandleFunc("/start", sh.handleStart)
	mux.HandleFunc("/stop", sh.handleStop)
	mux.HandleFunc("/raw", sh.handleRaw)
	mux.HandleFunc("/", sh.handleIndex)
	return mux
}
