// Package datainterface defines the Data Interface's Backend contract and
// the shared live-mode backoff discipline (§4.2), implemented once so no
// backend reimplements its own sleep loop.
package datainterface

import (
	"context"
	"time"

	"github.com/caida/bgpstream-go/internal/dump"
	"github.com/caida/bgpstream-go/internal/filter"
)

// Backend is the polymorphic interface every concrete backend
// (single-file, manifest, catalog, broker, kafka) implements, selected by
// identifier at configuration time (§9's design notes).
type Backend interface {
	// ProduceBatch returns zero or more descriptors matching filters. An
	// empty, nil-error batch in live mode triggers the caller's backoff;
	// in non-live mode it signals end-of-stream.
	ProduceBatch(ctx context.Context, filters *filter.Set, live bool) ([]dump.Descriptor, error)
}

const (
	initialBackoff    = 20 * time.Second
	maxBackoff        = 150 * time.Second
	doubleAfterEmpty  = 10
)

// Backoff implements the live-mode empty-poll sleep schedule (§4.2, §8.6):
// 20s for the first 10 consecutive empty polls, then doubling each attempt
// up to a 150s cap; any non-empty poll resets both the sleep and the
// consecutive-empty counter.
type Backoff struct {
	sleep        time.Duration
	consecutive  int
}

// NewBackoff returns a Backoff ready for the first poll.
func NewBackoff() *Backoff {
	return &Backoff{sleep: initialBackoff}
}

// NextSleep returns the duration to sleep after an empty poll, and advances
// internal state for the following call.
func (b *Backoff) NextSleep() time.Duration {
	d := b.sleep
	b.consecutive++
	if b.consecutive >= doubleAfterEmpty {
		next := b.sleep * 2
		if next > maxBackoff {
			next = maxBackoff
		}
		b.sleep = next
	}
	return d
}

// Reset restores the schedule to its initial state, called on any
// non-empty poll.
func (b *Backoff) Reset() {
	b.sleep = initialBackoff
	b.consecutive = 0
}

// Sleep blocks for d or until ctx is done, whichever comes first. Returns
// ctx.Err() if cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
