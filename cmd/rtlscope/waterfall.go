package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/chzchzchz/rtlrx/dsp"
	"github.com/chzchzchz/rtlrx/radio"
)

const (
	scopeFPS    = 30
	scopeDepth  = 4
	recordDepth = 16
)

var selectionColor = sdl.Color{R: 0xff, G: 0xd3, B: 0, A: 0xff}

// scope is an SDL window drawing one waterfall row per spectrum frame.
type scope struct {
	win  *sdl.Window
	r    *sdl.Renderer
	ft   *fftTexture
	bins int
	rows int

	src    *iqSource
	framec <-chan dsp.SpectrumFrame
	ctx    context.Context
	cancel context.CancelFunc

	paused bool
	quiet  bool
	sel    selection
	rec    *recorder
}

// newScope shows bins columns, so the transform is 2*bins points.
func newScope(src *iqSource, bins, rows int) (*scope, error) {
	sp, err := dsp.NewSpectrum(2*bins, transform)
	if err != nil {
		return nil, err
	}
	sub, err := src.Subscribe(scopeDepth)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &scope{
		bins:   bins,
		rows:   rows,
		src:    src,
		framec: dsp.SpectrumStream(ctx, sp, time.Second/scopeFPS, sub.C()),
		ctx:    ctx,
		cancel: cancel,
	}
	fail := func(err error) (*scope, error) {
		s.Close()
		sub.Close()
		return nil, err
	}
	log.Printf("[DEBUG] waiting for first frame")
	if _, ok := <-s.framec; !ok {
		return fail(errors.New("source ended before the first frame"))
	}
	if err := s.openWindow(); err != nil {
		return fail(err)
	}
	return s, nil
}

func (s *scope) openWindow() (err error) {
	flags := uint32(sdl.WINDOW_SHOWN)
	if resizable {
		flags |= sdl.WINDOW_RESIZABLE | sdl.WINDOW_OPENGL
	}
	if popup || resizable {
		flags |= sdl.WINDOW_UTILITY
	}
	w, h := int32(s.bins), int32(s.rows)
	if s.win, err = sdl.CreateWindow(windowTitle(s.src.band), sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, w, h, flags); err != nil {
		return err
	}
	// Stretch instead of letterboxing on resize.
	sdl.SetHint(sdl.HINT_RENDER_LOGICAL_SIZE_MODE, "1")
	if s.r, err = sdl.CreateRenderer(s.win, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_TARGETTEXTURE); err != nil {
		return err
	}
	if info, err := s.r.GetInfo(); err == nil && info.Flags&sdl.RENDERER_ACCELERATED == 0 {
		log.Printf("[WARN] renderer has no hardware acceleration")
	}
	if err := s.r.SetLogicalSize(w, h); err != nil {
		return err
	}
	s.ft = newFFTTexture(s.r, s.bins, s.rows)
	return nil
}

func windowTitle(b radio.HzBand) string {
	mhz := b.ToMHz()
	return fmt.Sprintf("rtlscope @ [%0.5g,%0.5g]MHz", mhz.BeginMHz(), mhz.EndMHz())
}

// Close releases SDL resources created so far and stops any recording.
func (s *scope) Close() {
	s.cancel()
	if s.rec != nil {
		s.rec.stop()
	}
	if s.ft != nil {
		s.ft.Destroy()
	}
	if s.r != nil {
		s.r.Destroy()
	}
	if s.win != nil {
		s.win.Destroy()
	}
}

func (s *scope) draw() {
	s.ft.blit()
	c := selectionColor
	s.r.SetDrawColor(c.R, c.G, c.B, c.A)
	for _, x := range s.sel {
		s.r.DrawLine(x, 0, x, int32(s.rows))
	}
	if err := s.r.Flush(); err != nil {
		panic(err)
	}
	s.r.Present()
}

// Run draws frames until the window closes or the source ends.
func (s *scope) Run() {
	idle := time.NewTicker(time.Second / 60)
	defer idle.Stop()
	for s.pollEvents() {
		select {
		case f, ok := <-s.framec:
			if !ok {
				log.Printf("[INFO] source ended")
				return
			}
			if s.paused {
				continue
			}
			// The DC bin swamps the color scale.
			if len(f) > 1 {
				f[0] = f[1]
			}
			s.ft.add(f.WaterfallRow())
			s.draw()
		case <-idle.C:
		}
	}
}

func (s *scope) pollEvents() bool {
	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		if !s.handle(ev) {
			return false
		}
	}
	return true
}

// columnHz is the frequency under column x; bin i sits i*rate/(2*bins)
// above the center.
func (s *scope) columnHz(x int32) int64 {
	off := float64(x) * float64(s.src.band.Width) / float64(2*s.bins)
	return int64(s.src.band.Center) + int64(off)
}

var keyDown = map[sdl.Keycode]func(*scope){
	sdl.K_SPACE: func(s *scope) { s.paused = !s.paused },
	sdl.K_t:     (*scope).tuneSelection,
	sdl.K_s:     func(s *scope) { s.quiet = !s.quiet },
	sdl.K_r:     func(s *scope) { s.win.SetSize(int32(s.bins), int32(s.rows)) },
	sdl.K_w:     (*scope).toggleRecord,
}

func (s *scope) handle(event sdl.Event) bool {
	switch ev := event.(type) {
	case *sdl.QuitEvent:
		return false
	case *sdl.KeyboardEvent:
		if ev.Type == sdl.KEYUP && ev.Keysym.Sym == sdl.K_ESCAPE {
			return false
		}
		if ev.Type == sdl.KEYDOWN && ev.Repeat == 0 {
			if fn, ok := keyDown[ev.Keysym.Sym]; ok {
				fn(s)
			}
		}
	case *sdl.MouseButtonEvent:
		if ev.Type != sdl.MOUSEBUTTONDOWN {
			break
		}
		switch ev.Button {
		case sdl.BUTTON_LEFT:
			s.sel = s.sel.add(ev.X)
		case sdl.BUTTON_RIGHT:
			s.sel = nil
		}
		if s.paused {
			s.draw()
		}
	case *sdl.MouseMotionEvent:
		if !s.quiet {
			log.Printf("[INFO] cursor %0.7g MHz", float64(s.columnHz(ev.X))/1e6)
		}
	case *sdl.WindowEvent:
		if s.paused {
			s.draw()
		}
	}
	return true
}

// selection holds up to two marked columns; a third click starts over.
type selection []int32

func (sel selection) add(x int32) selection {
	if len(sel) >= 2 {
		sel = nil
	}
	return append(sel, x)
}

// tuneSelection centers a live source between the two marked columns.
func (s *scope) tuneSelection() {
	if len(s.sel) != 2 || s.sel[0] == s.sel[1] {
		return
	}
	if s.src.tune == nil {
		log.Printf("[WARN] file sources cannot be retuned")
		return
	}
	band := radio.HzBandRange(s.columnHz(s.sel[0]), s.columnHz(s.sel[1]))
	s.sel = nil
	if err := s.src.tune(uint32(band.Center)); err != nil {
		log.Printf("[ERROR] tune: %v", err)
		return
	}
	s.src.band.Center = band.Center
	s.win.SetTitle(windowTitle(s.src.band))
	log.Printf("[INFO] tuned to %.4f MHz", float64(band.Center)/1e6)
}

func (s *scope) toggleRecord() {
	if s.rec != nil {
		s.rec.stop()
		s.rec = nil
		return
	}
	path := fmt.Sprintf("%d[%d].iq8", s.src.band.Center, s.src.band.Width)
	rec, err := startRecorder(s.ctx, s.src, path)
	if err != nil {
		log.Printf("[ERROR] record: %v", err)
		return
	}
	s.rec = rec
}

// recorder writes every source block to a u8 IQ file.
type recorder struct {
	path   string
	cancel context.CancelFunc
	donec  chan struct{}
}

func startRecorder(ctx context.Context, src *iqSource, path string) (*recorder, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	sub, err := src.Subscribe(recordDepth)
	if err != nil {
		f.Close()
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	rec := &recorder{path: path, cancel: cancel, donec: make(chan struct{})}
	log.Printf("[INFO] recording to %s", path)
	go func() {
		defer close(rec.donec)
		defer f.Close()
		defer sub.Close()
		iqw := radio.NewIQWriter(f)
		for {
			select {
			case blk, ok := <-sub.C():
				if !ok {
					return
				}
				if err := iqw.Write64(blk.Samples); err != nil {
					log.Printf("[ERROR] record %s: %v", path, err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return rec, nil
}

func (rec *recorder) stop() {
	rec.cancel()
	<-rec.donec
	log.Printf("[INFO] stopped recording %s", rec.path)
}
