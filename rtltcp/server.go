package rtltcp

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"net"
	"sync"

	"github.com/bemasher/rtltcp"

	"github.com/chzchzchz/rtlrx/radio"
	"github.com/chzchzchz/rtlrx/stream"
)

// Controller is the control surface commands are applied to.
type Controller interface {
	SetFrequency(hz uint32) error
	SetSampleRate(hz uint32) error
	SetGain(tenthDb int) error
	SetAutoGain(enabled bool) error
	SetFreqCorrection(ppm int) error
	Gains() []int
}

// Source provides raw IQ blocks to forward.
type Source interface {
	Subscribe(depth int) (*stream.Subscription[radio.IQBlock], error)
}

type Server struct {
	tuner Controller
	src   Source
	depth int

	wg sync.WaitGroup
}

// NewServer forwards blocks from src, queueing up to depth per client.
func NewServer(t Controller, src Source, depth int) *Server {
	return &Server{tuner: t, src: src, depth: depth}
}

// Info is the header sent to each client.
func (s *Server) Info() rtltcp.DongleInfo {
	return rtltcp.DongleInfo{Magic: dongleMagic, Tuner: TunerR820T, GainCount: uint32(len(s.tuner.Gains()))}
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts clients until ctx is done or ln fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer s.wg.Wait()
	log.Printf("[INFO] rtl_tcp serving on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.serveConn(ctx, conn); err != nil {
				log.Printf("[WARN] rtl_tcp %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	log.Printf("[INFO] rtl_tcp client %s connected", conn.RemoteAddr())
	if err := binary.Write(conn, binary.BigEndian, s.Info()); err != nil {
		return err
	}
	sub, err := s.src.Subscribe(s.depth)
	if err != nil {
		return err
	}
	defer sub.Close()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer cancel()
		for {
			var cmd command
			if err := binary.Read(conn, binary.BigEndian, &cmd); err != nil {
				if !errors.Is(err, io.EOF) && cctx.Err() == nil {
					log.Printf("[WARN] rtl_tcp %s: read command: %v", conn.RemoteAddr(), err)
				}
				return
			}
			if err := s.dispatch(cmd); err != nil {
				log.Printf("[WARN] rtl_tcp command %d(%d): %v", cmd.Command, cmd.Parameter, err)
			}
		}
	}()
	go func() {
		<-cctx.Done()
		conn.Close()
	}()
	for {
		select {
		case blk, ok := <-sub.C():
			if !ok {
				return nil
			}
			if _, err := conn.Write(blk.Raw); err != nil {
				if cctx.Err() != nil {
					return nil
				}
				return err
			}
		case <-cctx.Done():
			log.Printf("[INFO] rtl_tcp client %s disconnected", conn.RemoteAddr())
			return nil
		}
	}
}

var ErrBadGainIndex = errors.New("gain index out of range")

func (s *Server) dispatch(cmd command) error {
	p := cmd.Parameter
	switch cmd.Command {
	case cmdCenterFreq:
		return s.tuner.SetFrequency(p)
	case cmdSampleRate:
		return s.tuner.SetSampleRate(p)
	case cmdTunerGainMode:
		return s.tuner.SetAutoGain(p == 0)
	case cmdTunerGain:
		return s.tuner.SetGain(int(int32(p)))
	case cmdFreqCorrection:
		return s.tuner.SetFreqCorrection(int(int32(p)))
	case cmdAGCMode:
		return s.tuner.SetAutoGain(p != 0)
	case cmdGainByIndex:
		gains := s.tuner.Gains()
		if int(p) >= len(gains) {
			return ErrBadGainIndex
		}
		return s.tuner.SetGain(gains[p])
	}
	log.Printf("[DEBUG] rtl_tcp ignoring command %d(%d)", cmd.Command, p)
	return nil
}
