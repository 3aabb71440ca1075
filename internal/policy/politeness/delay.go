// Package politeness throttles request rate with a base delay plus uniform jitter.
package politeness

import (
	"context"
	"math/rand/v2"
	"time"
)

// Sleeper pauses the caller.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

// TimerSleeper sleeps on a timer and wakes early when ctx is done.
type TimerSleeper struct{}

// Sleep blocks for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Delay sleeps Base + U[0, Jitter) after each fetch.
type Delay struct {
	Base    time.Duration
	Jitter  time.Duration
	sleeper Sleeper
	jitterN func(n int64) int64
}

// New returns a Delay backed by a TimerSleeper.
func New(base, jitter time.Duration) *Delay {
	return &Delay{
		Base:    base,
		Jitter:  jitter,
		sleeper: TimerSleeper{},
		jitterN: rand.Int64N,
	}
}

// WithSleeper swaps the sleeper, mainly for tests.
func (d *Delay) WithSleeper(s Sleeper) *Delay {
	if s != nil {
		d.sleeper = s
	}
	return d
}

// Next returns the next pause length.
func (d *Delay) Next() time.Duration {
	pause := d.Base
	if d.Jitter > 0 {
		pause += time.Duration(d.jitterN(int64(d.Jitter)))
	}
	if pause < 0 {
		return 0
	}
	return pause
}

// Wait sleeps for the next pause length.
func (d *Delay) Wait(ctx context.Context) {
	if d == nil {
		return
	}
	d.sleeper.Sleep(ctx, d.Next())
}
