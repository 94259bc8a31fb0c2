// Package usbtest provides an in-memory usb.Link for tests and simulation.
package usbtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzchzchz/rtlrx/sdrerr"
)

// ControlOp is one recorded control write.
type ControlOp struct {
	ReqType uint8
	Req     uint8
	Value   uint16
	Index   uint16
	Data    []byte
}

// BulkFunc fills buf with one transfer worth of data.
type BulkFunc func(ctx context.Context, buf []byte) (int, error)

type Link struct {
	// Bulk serves bulk reads. A nil Bulk blocks until the context is done.
	Bulk BulkFunc
	// ControlErr, when set, fails every control transfer.
	ControlErr error

	mu     sync.Mutex
	writes []ControlOp
	reads  map[[2]uint16]byte
	closed int

	inBulk    atomic.Int32
	overlaps  atomic.Int32
	bulkReads atomic.Int64
}

func New(bulk BulkFunc) *Link { return &Link{Bulk: bulk, reads: make(map[[2]uint16]byte)} }

var ErrClosed = errors.New("usbtest: link closed")

func (l *Link) ControlWrite(reqType, req uint8, value, index uint16, data []byte) error {
	if l.inBulk.Load() != 0 {
		l.overlaps.Add(1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed > 0 {
		return sdrerr.New(sdrerr.IoError, "usbtest control write", ErrClosed)
	}
	if l.ControlErr != nil {
		return l.ControlErr
	}
	l.writes = append(l.writes, ControlOp{reqType, req, value, index, append([]byte(nil), data...)})
	return nil
}

func (l *Link) ControlRead(reqType, req uint8, value, index uint16, n int) ([]byte, error) {
	if l.inBulk.Load() != 0 {
		l.overlaps.Add(1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed > 0 {
		return nil, sdrerr.New(sdrerr.IoError, "usbtest control read", ErrClosed)
	}
	if l.ControlErr != nil {
		return nil, l.ControlErr
	}
	buf := make([]byte, n)
	if n > 0 {
		buf[0] = l.reads[[2]uint16{value, index}]
	}
	return buf, nil
}

// SetRead sets the byte returned by a control read of (value, index).
func (l *Link) SetRead(value, index uint16, b byte) {
	l.mu.Lock()
	l.reads[[2]uint16{value, index}] = b
	l.mu.Unlock()
}

func (l *Link) BulkRead(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	l.inBulk.Add(1)
	defer l.inBulk.Add(-1)
	l.bulkReads.Add(1)
	if l.Closed() {
		return 0, sdrerr.New(sdrerr.IoError, "usbtest bulk read", ErrClosed)
	}
	if l.Bulk == nil {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return l.Bulk(ctx, buf)
}

func (l *Link) Close() error {
	l.mu.Lock()
	l.closed++
	l.mu.Unlock()
	return nil
}

func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed > 0
}

// Writes returns a copy of the recorded control writes.
func (l *Link) Writes() []ControlOp {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ControlOp(nil), l.writes...)
}

func (l *Link) ResetWrites() {
	l.mu.Lock()
	l.writes = nil
	l.mu.Unlock()
}

// Overlaps counts control transfers issued while a bulk read was in flight.
func (l *Link) Overlaps() int { return int(l.overlaps.Load()) }

func (l *Link) BulkReads() int64 { return l.bulkReads.Load() }
