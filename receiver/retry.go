package receiver

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/chzchzchz/rtlrx/sdrerr"
)

var retryInterval = 250 * time.Millisecond

// transient failures clear once the dongle finishes enumerating or another
// process releases it.
func transient(err error) bool {
	switch sdrerr.KindOf(err) {
	case sdrerr.DeviceNotFound, sdrerr.ClaimFailed, sdrerr.IoTimeout:
		return true
	}
	return false
}

// ConnectRetry is Connect with exponential backoff on transient errors.
func (r *Receiver) ConnectRetry(ctx context.Context) error {
	r.mu.Lock()
	wait := r.cfg.ConnectWait
	r.mu.Unlock()
	if wait <= 0 {
		return r.Connect()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInterval
	b.MaxElapsedTime = wait
	op := func() error {
		err := r.Connect()
		if err == nil {
			return nil
		}
		if !transient(err) {
			return backoff.Permanent(err)
		}
		log.Printf("[WARN] connect: %v", err)
		return err
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
