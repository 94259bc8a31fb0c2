package radio

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzchzchz/rtlrx/sdrerr"
	"github.com/chzchzchz/rtlrx/stream"
	"github.com/chzchzchz/rtlrx/usb"
)

var (
	ErrStreaming   = errors.New("stream already running")
	ErrStopTimeout = errors.New("stream did not stop in time")
	ErrNotReady    = errors.New("device not initialized")
)

type StreamState int32

const (
	Idle StreamState = iota
	Streaming
	Stopping
)

func (s StreamState) String() string {
	switch s {
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	}
	return "idle"
}

const (
	DefaultTransferSize = 16384
	DefaultStopTimeout  = time.Second
)

type StreamConfig struct {
	// TransferSize is the bulk transfer length in bytes.
	TransferSize int
	// Timeout bounds each bulk transfer.
	Timeout time.Duration
	// StopTimeout bounds how long Stop waits for the reader loop.
	StopTimeout time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.TransferSize <= 0 {
		c.TransferSize = DefaultTransferSize
	}
	c.TransferSize &^= 1
	if c.Timeout <= 0 {
		c.Timeout = usb.DefaultTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

type StreamStats struct {
	Blocks  uint64 `json:"blocks"`
	Bytes   uint64 `json:"bytes"`
	LastErr string `json:"last_error,omitempty"`
}

type linkOp struct {
	fn   func(usb.Link) error
	errc chan error
}

// Streamer owns the only goroutine that issues bulk reads. While streaming,
// register operations passed to Exec run on that goroutine between
// transfers; while idle they run on the caller under the streamer lock.
type Streamer struct {
	link  usb.Link
	cfg   StreamConfig
	out   *stream.Broadcaster[IQBlock]
	ready func() bool

	// OnError is called from the reader goroutine after a transfer
	// failure has moved the streamer back to Idle.
	OnError func(error)

	mu     sync.Mutex
	state  StreamState
	cancel context.CancelFunc
	donec  chan struct{}
	opc    chan linkOp
	err    error

	// gateMu orders publishing against Stop; a run may only publish
	// while gen matches the generation it started with.
	gateMu sync.Mutex
	gen    uint64

	seq    atomic.Uint64
	blocks atomic.Uint64
	bytes  atomic.Uint64
}

// NewStreamer publishes to out, or to a private broadcaster if out is nil.
func NewStreamer(link usb.Link, out *stream.Broadcaster[IQBlock], cfg StreamConfig) *Streamer {
	if out == nil {
		out = stream.NewBroadcaster[IQBlock]()
	}
	return &Streamer{link: link, cfg: cfg.withDefaults(), out: out}
}

func (s *Streamer) Subscribe(depth int) (*stream.Subscription[IQBlock], error) {
	return s.out.Subscribe(depth)
}

func (s *Streamer) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the last run, if any.
func (s *Streamer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Streamer) Stats() StreamStats {
	st := StreamStats{Blocks: s.blocks.Load(), Bytes: s.bytes.Load()}
	if err := s.Err(); err != nil {
		st.LastErr = err.Error()
	}
	return st
}

func (s *Streamer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return sdrerr.New(sdrerr.InvalidParameter, "stream start", ErrStreaming)
	}
	if s.ready != nil && !s.ready() {
		return sdrerr.New(sdrerr.NotInitialized, "stream start", ErrNotReady)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.gateMu.Lock()
	s.gen++
	gen := s.gen
	s.gateMu.Unlock()

	s.state, s.err = Streaming, nil
	s.cancel, s.donec, s.opc = cancel, make(chan struct{}), make(chan linkOp)
	go s.run(ctx, cancel, gen, s.donec, s.opc)
	log.Printf("[INFO] stream started, %d byte transfers", s.cfg.TransferSize)
	return nil
}

// Stop cancels the reader loop and waits for it up to StopTimeout. No block
// is published once Stop returns, even if the loop is still unwinding.
func (s *Streamer) Stop() error {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	cancel, donec := s.cancel, s.donec
	s.mu.Unlock()

	s.gateMu.Lock()
	s.gen++
	s.gateMu.Unlock()
	cancel()
	s.out.Flush()

	t := time.NewTimer(s.cfg.StopTimeout)
	defer t.Stop()
	select {
	case <-donec:
		log.Printf("[INFO] stream stopped")
		return nil
	case <-t.C:
		return sdrerr.New(sdrerr.IoTimeout, "stream stop", ErrStopTimeout)
	}
}

// Done is closed when the current run ends. It is nil when idle.
func (s *Streamer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return nil
	}
	return s.donec
}

func (s *Streamer) Exec(fn func(usb.Link) error) error {
	for {
		s.mu.Lock()
		if s.state == Idle {
			err := fn(s.link)
			s.mu.Unlock()
			return err
		}
		opc, donec := s.opc, s.donec
		s.mu.Unlock()

		op := linkOp{fn: fn, errc: make(chan error, 1)}
		select {
		case opc <- op:
			return <-op.errc
		case <-donec:
			// The loop ended; retry on the idle path.
		}
	}
}

func (s *Streamer) publish(gen uint64, blk IQBlock) bool {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	if s.gen != gen {
		return false
	}
	s.out.Publish(blk)
	return true
}

func (s *Streamer) run(ctx context.Context, cancel context.CancelFunc, gen uint64, donec chan struct{}, opc chan linkOp) {
	var err error
	defer func() {
		cancel()
		s.mu.Lock()
		s.state, s.err, s.cancel = Idle, err, nil
		s.mu.Unlock()
		close(donec)
		if err != nil {
			log.Printf("[ERROR] stream terminated: %v", err)
			if s.OnError != nil {
				s.OnError(err)
			}
		}
	}()
	buf := make([]byte, s.cfg.TransferSize)
	for {
		if !s.drainOps(ctx, opc) {
			return
		}
		n, rerr := s.link.BulkRead(ctx, buf, s.cfg.Timeout)
		if ctx.Err() != nil {
			return
		}
		if rerr != nil {
			err = rerr
			return
		}
		s.bytes.Add(uint64(n))
		if n < 2 {
			continue
		}
		raw := make([]byte, n&^1)
		copy(raw, buf)
		blk := IQBlock{Seq: s.seq.Add(1) - 1, Samples: ConvertU8(nil, raw), Raw: raw}
		s.blocks.Add(1)
		if !s.publish(gen, blk) {
			return
		}
	}
}

// drainOps runs queued link operations between transfers.
func (s *Streamer) drainOps(ctx context.Context, opc chan linkOp) bool {
	for {
		select {
		case op := <-opc:
			op.errc <- op.fn(s.link)
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
}
