package radio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chzchzchz/rtlrx/sdrerr"
	"github.com/chzchzchz/rtlrx/usb/usbtest"
)

func waitIdle(t *testing.T, s *Streamer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatal("streamer did not go idle")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStreamStartStop(t *testing.T) {
	link := usbtest.New(usbtest.Counter(time.Millisecond))
	s := NewStreamer(link, nil, StreamConfig{TransferSize: 64})
	sub, err := s.Subscribe(16)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err == nil {
		t.Fatal("expected error starting twice")
	}
	for i := 0; i < 5; i++ {
		blk := <-sub.C()
		if blk.Seq != uint64(i) {
			t.Fatalf("expected seq %d, got %d", i, blk.Seq)
		}
		if len(blk.Samples) != 32 || len(blk.Raw) != 64 {
			t.Fatalf("unexpected block sizes %d/%d", len(blk.Samples), len(blk.Raw))
		}
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if s.State() != Idle {
		t.Fatalf("expected idle, got %v", s.State())
	}
	time.Sleep(20 * time.Millisecond)
	select {
	case blk := <-sub.C():
		t.Fatalf("block %d delivered after stop", blk.Seq)
	default:
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStreamStopDuringRead(t *testing.T) {
	// A nil bulk source blocks every read until cancelled.
	link := usbtest.New(nil)
	s := NewStreamer(link, nil, StreamConfig{})
	for i := 0; i < 2; i++ {
		if err := s.Start(); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		for link.BulkReads() < int64(i+1) {
			time.Sleep(time.Millisecond)
		}
		start := time.Now()
		if err := s.Stop(); err != nil {
			t.Fatal(err)
		}
		if d := time.Since(start); d > time.Second {
			t.Fatalf("stop took %v", d)
		}
	}
	if link.Closed() {
		t.Fatal("stop closed the link")
	}
}

func TestStreamRequiresInit(t *testing.T) {
	dev := NewDevice(usbtest.New(nil), nil, StreamConfig{})
	if err := dev.Stream.Start(); !errors.Is(err, sdrerr.ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestStreamIOError(t *testing.T) {
	ioErr := sdrerr.New(sdrerr.IoError, "usbtest", errors.New("unplugged"))
	link := usbtest.New(usbtest.Fail(usbtest.Counter(0), 3, ioErr))
	s := NewStreamer(link, nil, StreamConfig{TransferSize: 16})
	errc := make(chan error, 1)
	s.OnError = func(err error) { errc <- err }
	sub, _ := s.Subscribe(8)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, sdrerr.ErrIoError) {
			t.Fatalf("expected io error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
	waitIdle(t, s)
	if !errors.Is(s.Err(), sdrerr.ErrIoError) {
		t.Fatalf("expected Err to hold io error, got %v", s.Err())
	}
	for i := 0; i < 3; i++ {
		if blk := <-sub.C(); blk.Seq != uint64(i) {
			t.Fatalf("expected seq %d, got %d", i, blk.Seq)
		}
	}
	if st := s.Stats(); st.Blocks != 3 || st.LastErr == "" {
		t.Fatalf("unexpected stats %+v", st)
	}
	// The engine never retries on its own.
	if n := link.BulkReads(); n != 4 {
		t.Fatalf("expected 4 bulk reads, got %d", n)
	}
}

func TestStreamSlowConsumerDropsOldest(t *testing.T) {
	link := usbtest.New(usbtest.Counter(2 * time.Millisecond))
	s := NewStreamer(link, nil, StreamConfig{TransferSize: 32})
	fast, _ := s.Subscribe(64)
	slow, _ := s.Subscribe(2)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var fastSeqs, slowSeqs []uint64
	wg.Add(2)
	go func() {
		defer wg.Done()
		for blk := range fast.C() {
			fastSeqs = append(fastSeqs, blk.Seq)
		}
	}()
	go func() {
		defer wg.Done()
		for blk := range slow.C() {
			slowSeqs = append(slowSeqs, blk.Seq)
			time.Sleep(25 * time.Millisecond)
		}
	}()
	time.Sleep(300 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	published := s.Stats().Blocks
	fast.Close()
	slow.Close()
	wg.Wait()

	if published < 40 {
		t.Fatalf("reader loop stalled: only %d blocks", published)
	}
	if len(fastSeqs) < 4*len(slowSeqs) {
		t.Fatalf("fast consumer held back: fast=%d slow=%d", len(fastSeqs), len(slowSeqs))
	}
	gap := false
	for i := 1; i < len(slowSeqs); i++ {
		if slowSeqs[i] <= slowSeqs[i-1] {
			t.Fatalf("slow consumer saw out of order seqs %v", slowSeqs)
		}
		if slowSeqs[i] != slowSeqs[i-1]+1 {
			gap = true
		}
	}
	if !gap || slow.Dropped() == 0 {
		t.Fatalf("expected dropped blocks, seqs %v", slowSeqs)
	}
}

func TestStreamExecSerialized(t *testing.T) {
	link := usbtest.New(usbtest.Counter(time.Millisecond))
	dev := NewDevice(link, nil, StreamConfig{TransferSize: 32})
	dev.sleep = func(time.Duration) {}
	if err := dev.Init(DefaultTunerState()); err != nil {
		t.Fatal(err)
	}
	link.ResetWrites()
	if err := dev.Stream.Start(); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if err := dev.SetFrequency(uint32(100000000 + i*1000000 + j)); err != nil {
					t.Error(err)
				}
			}
		}(i)
	}
	wg.Wait()
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}
	if n := len(link.Writes()); n != 4*5*5 {
		t.Fatalf("expected 100 writes, got %d", n)
	}
	if n := link.Overlaps(); n != 0 {
		t.Fatalf("%d control transfers overlapped a bulk read", n)
	}
	if !link.Closed() {
		t.Fatal("expected link closed")
	}
}

func TestStreamSkipsShortTransfers(t *testing.T) {
	src := usbtest.Counter(time.Millisecond)
	k := 0
	link := usbtest.New(func(ctx context.Context, buf []byte) (int, error) {
		n, err := src(ctx, buf)
		if k++; k%2 == 1 && err == nil {
			n = 1
		}
		return n, err
	})
	s := NewStreamer(link, nil, StreamConfig{TransferSize: 8})
	sub, _ := s.Subscribe(16)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		blk := <-sub.C()
		if len(blk.Raw) == 0 || len(blk.Samples) == 0 {
			t.Fatalf("block %d is empty", blk.Seq)
		}
		if blk.Seq != uint64(i) {
			t.Fatalf("expected seq %d, got %d", i, blk.Seq)
		}
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
}
