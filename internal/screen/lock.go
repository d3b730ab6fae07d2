package screen

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tshop/admin/model"
)

// Lock is the per-screen "flow in progress" flag. While it is held the
// screen reports every control disabled.
type Lock struct {
	held atomic.Bool
}

// Acquire takes the lock or fails fast with model.ErrFlowInProgress. The
// returned release is idempotent and must be deferred by the caller.
func (l *Lock) Acquire() (release func(), err error) {
	if !l.held.CompareAndSwap(false, true) {
		return func() {}, model.ErrFlowInProgress
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.held.Store(false) })
	}, nil
}

// Held reports whether a flow holds the lock.
func (l *Lock) Held() bool {
	return l.held.Load()
}

// Settle is the cosmetic pause a save takes before it releases
// the screen. The zero value never pauses.
type Settle struct {
	// Max bounds a random extra pause.
	Max time.Duration
	// MinBusy is the least time a flow keeps the screen busy.
	MinBusy time.Duration

	jitter func(time.Duration) time.Duration
}

// Delay returns how long a flow that started at started still has to wait.
func (s Settle) Delay(started time.Time) time.Duration {
	var d time.Duration
	if s.MinBusy > 0 {
		if rest := s.MinBusy - time.Since(started); rest > 0 {
			d = rest
		}
	}
	if s.Max > 0 {
		jitter := s.jitter
		if jitter == nil {
			jitter = func(n time.Duration) time.Duration { return rand.N(n) }
		}
		d += jitter(s.Max)
	}
	return d
}

// Wait sleeps for Delay(started) or until ctx is done.
func (s Settle) Wait(ctx context.Context, started time.Time) {
	d := s.Delay(started)
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
