package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyImports is returned when every import slot stayed taken for
// the limiter's whole wait.
var ErrTooManyImports = errors.New("too many imports in progress, please try again later")

// DefaultImportSlots is the slot count of a Limiter created without one.
const DefaultImportSlots = 5

// Limiter bounds how many files are imported at once. A Service takes one
// slot per file for as long as the file holds its store connection, so the
// slot count should not exceed the pool size.
type Limiter struct {
	sem     *semaphore.Weighted
	slots   int64
	maxWait time.Duration
	running atomic.Int64
}

// NewLimiter creates a Limiter with the given number of slots. Acquire
// gives up with ErrTooManyImports after maxWait; a maxWait of zero waits
// as long as the caller's context allows.
func NewLimiter(slots int, maxWait time.Duration) *Limiter {
	if slots <= 0 {
		slots = DefaultImportSlots
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(slots)),
		slots:   int64(slots),
		maxWait: max(maxWait, 0),
	}
}

// Acquire takes a slot. The caller must Release it.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if l.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
	l.running.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.running.Add(-1)
	l.sem.Release(1)
}

// Running returns the number of slots in use.
func (l *Limiter) Running() int { return int(l.running.Load()) }

// Slots returns the slot count.
func (l *Limiter) Slots() int { return int(l.slots) }

// WaitForDrain blocks until every slot is free or ctx is done. Imports
// asking for a slot meanwhile queue behind it.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, l.slots); err != nil {
		return err
	}
	l.sem.Release(l.slots)
	return nil
}

// LimiterStatus is a snapshot of a Limiter.
type LimiterStatus struct {
	Running int `json:"running"`
	Free    int `json:"free"`
	Slots   int `json:"slots"`
}

// Status returns the current limiter state.
func (l *Limiter) Status() LimiterStatus {
	running := l.Running()
	return LimiterStatus{
		Running: running,
		Free:    l.Slots() - running,
		Slots:   l.Slots(),
	}
}
