// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package backoff computes retry delays for the harvest and download stages.
//
// Delays grow along the Fibonacci sequence (next = previous + before). The
// catalog mandates fixed spacing between requests already, so there is no
// jitter. A ceiling on the current delay ends a retry sequence.
package backoff

import (
	"context"
	"time"
)

// Seeds for the retry sequences used across the pipeline.
const (
	DownloadSeed  = 1 * time.Second
	TransportSeed = 10 * time.Second
	ResolveSeed   = 3 * time.Second
)

// Next returns the delay following previous and before.
func Next(previous, before time.Duration) time.Duration {
	return previous + before
}

// RetryState tracks one retry sequence. It is owned by the operation that
// created it and discarded when that operation reaches a terminal outcome.
type RetryState struct {
	// Attempts counts the failures recorded so far.
	Attempts int

	// Current is the delay to wait before the next attempt.
	Current time.Duration

	// Previous is the delay used before Current.
	Previous time.Duration

	// History lists the classification labels seen, oldest first.
	History []string

	seed time.Duration
}

// NewRetryState returns a state seeded at (seed, 0).
func NewRetryState(seed time.Duration) *RetryState {
	return &RetryState{Current: seed, seed: seed}
}

// Advance moves the sequence one step and returns the delay that was current
// before the step, which is the delay the caller should wait now.
func (s *RetryState) Advance() time.Duration {
	wait := s.Current
	s.Current, s.Previous = Next(s.Current, s.Previous), s.Current
	s.Attempts++
	return wait
}

// Record appends a classification label to the history.
func (s *RetryState) Record(label string) {
	s.History = append(s.History, label)
}

// Last returns the most recent classification label, or "" if none.
func (s *RetryState) Last() string {
	if len(s.History) == 0 {
		return ""
	}
	return s.History[len(s.History)-1]
}

// Reset returns the state to its seed after a success.
func (s *RetryState) Reset() {
	s.Attempts = 0
	s.Current = s.seed
	s.Previous = 0
	s.History = s.History[:0]
}

// Policy bounds retry sequences.
type Policy struct {
	// Ceiling is the largest delay a sequence may reach before the
	// operation gives up.
	Ceiling time.Duration
}

// DefaultCeiling is five hours.
const DefaultCeiling = 18000 * time.Second

// DefaultPolicy returns a Policy with the default ceiling.
func DefaultPolicy() Policy {
	return Policy{Ceiling: DefaultCeiling}
}

// Exceeded reports whether the state's current delay has reached the ceiling.
func (p Policy) Exceeded(s *RetryState) bool {
	ceiling := p.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return s.Current >= ceiling
}

// Clamp caps a server-declared wait at the ceiling.
func (p Policy) Clamp(d time.Duration) time.Duration {
	ceiling := p.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return min(d, ceiling)
}

// Throttle returns the delay to wait after a throttle signal. A positive
// server-declared wait is honored up to the ceiling and leaves the sequence
// untouched; otherwise the sequence advances and its delay is returned.
func (p Policy) Throttle(declared time.Duration, s *RetryState) time.Duration {
	if declared > 0 {
		return p.Clamp(declared)
	}
	return s.Advance()
}

// Sleeper suspends the calling goroutine. Sleep returns ctx.Err() when the
// context ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d).
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// Real is the production Sleeper backed by a timer.
var Real Sleeper = SleeperFunc(sleep)

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
