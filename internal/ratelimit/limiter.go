// Package ratelimit spaces outbound requests per source with randomized
// delays, so that slow or strict sources never throttle unrelated ones.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Bounds is the randomized spacing window between two requests to a source.
// Every gap is at least Min and at most Max.
type Bounds struct {
	Min time.Duration
	Max time.Duration
}

// Limiter enforces per-source spacing. Callers targeting the same source are
// serialized; callers for different sources never wait on each other, except
// for the optional global ceiling.
type Limiter struct {
	clock  Clock
	int64n func(n int64) int64
	global *rate.Limiter

	mu     sync.Mutex
	bounds map[string]Bounds
	lanes  map[string]*lane

	onPermit func(source string, at time.Time)
}

type lane struct {
	// sem is a one-slot semaphore; unlike a mutex it can be abandoned when
	// the caller's context is cancelled.
	sem  chan struct{}
	last time.Time
	used bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock (for tests).
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithRand replaces the jitter source. fn must return a value in [0, n).
func WithRand(fn func(n int64) int64) Option {
	return func(l *Limiter) { l.int64n = fn }
}

// WithGlobalRate caps the combined request rate of every source. A
// non-positive rps disables the cap.
func WithGlobalRate(rps float64) Option {
	return func(l *Limiter) {
		if rps > 0 {
			l.global = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// New creates a Limiter with no configured sources.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		clock:  realClock{},
		int64n: rand.Int64N,
		bounds: make(map[string]Bounds),
		lanes:  make(map[string]*lane),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Configure sets the spacing bounds for a source. Max below Min is raised
// to Min.
func (l *Limiter) Configure(source string, b Bounds) {
	if b.Min < 0 {
		b.Min = 0
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	l.mu.Lock()
	l.bounds[source] = b
	l.mu.Unlock()
}

// Bounds returns the configured bounds for a source (zero if unknown).
func (l *Limiter) Bounds(source string) Bounds {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bounds[source]
}

func (l *Limiter) laneFor(source string) (*lane, Bounds) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln, ok := l.lanes[source]
	if !ok {
		ln = &lane{sem: make(chan struct{}, 1)}
		l.lanes[source] = ln
	}
	return ln, l.bounds[source]
}

// Wait blocks until the next request to source may be issued. The first
// request to a source is permitted immediately; each later one waits until a
// random gap in [Min, Max] has elapsed since the previous permit.
func (l *Limiter) Wait(ctx context.Context, source string) error {
	ln, b := l.laneFor(source)

	select {
	case ln.sem <- struct{}{}:
	case <-ctx.Done():
		return eris.Wrapf(ctx.Err(), "ratelimit: wait %s", source)
	}
	defer func() { <-ln.sem }()

	if ln.used {
		gap := b.Min + l.jitter(b)
		if d := ln.last.Add(gap).Sub(l.clock.Now()); d > 0 {
			zap.L().Debug("ratelimit: waiting",
				zap.String("source", source),
				zap.Duration("delay", d),
			)
			if err := l.clock.Sleep(ctx, d); err != nil {
				return eris.Wrapf(err, "ratelimit: wait %s", source)
			}
		}
	}

	if err := l.waitGlobal(ctx); err != nil {
		return eris.Wrapf(err, "ratelimit: global wait %s", source)
	}

	ln.last = l.clock.Now()
	ln.used = true
	if l.onPermit != nil {
		l.onPermit(source, ln.last)
	}
	return nil
}

func (l *Limiter) jitter(b Bounds) time.Duration {
	span := int64(b.Max - b.Min)
	if span <= 0 {
		return 0
	}
	return time.Duration(l.int64n(span + 1))
}

func (l *Limiter) waitGlobal(ctx context.Context) error {
	if l.global == nil {
		return nil
	}
	now := l.clock.Now()
	r := l.global.ReserveN(now, 1)
	if !r.OK() {
		return eris.New("global limiter cannot satisfy reservation")
	}
	if d := r.DelayFrom(now); d > 0 {
		if err := l.clock.Sleep(ctx, d); err != nil {
			r.CancelAt(now)
			return err
		}
	}
	return nil
}
