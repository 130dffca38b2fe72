// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	assert.Equal(t, 3*time.Second, Next(2*time.Second, time.Second))
	assert.Equal(t, time.Second, Next(time.Second, 0))
}

func TestRetryState_FibonacciFromDownloadSeed(t *testing.T) {
	s := NewRetryState(DownloadSeed)

	var got []time.Duration
	for range 10 {
		got = append(got, s.Advance())
	}

	want := []time.Duration{1, 1, 2, 3, 5, 8, 13, 21, 34, 55}
	for i := range want {
		want[i] *= time.Second
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 10, s.Attempts)
}

func TestRetryState_Monotonic(t *testing.T) {
	for _, seed := range []time.Duration{DownloadSeed, TransportSeed, ResolveSeed} {
		s := NewRetryState(seed)
		delays := []time.Duration{s.Advance(), s.Advance()}
		for n := 2; n < 20; n++ {
			delays = append(delays, s.Advance())
			assert.Equal(t, delays[n-1]+delays[n-2], delays[n], "seed %v step %d", seed, n)
			assert.GreaterOrEqual(t, delays[n], delays[n-1])
		}
	}
}

func TestRetryState_TransportSeed(t *testing.T) {
	s := NewRetryState(TransportSeed)
	got := []time.Duration{s.Advance(), s.Advance(), s.Advance(), s.Advance()}
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second}, got)
}

func TestRetryState_ResetAndHistory(t *testing.T) {
	s := NewRetryState(DownloadSeed)
	assert.Equal(t, "", s.Last())

	s.Record("unknown")
	s.Record("throttle")
	s.Advance()
	s.Advance()
	assert.Equal(t, "throttle", s.Last())
	assert.Equal(t, []string{"unknown", "throttle"}, s.History)

	s.Reset()
	assert.Equal(t, 0, s.Attempts)
	assert.Equal(t, DownloadSeed, s.Current)
	assert.Equal(t, time.Duration(0), s.Previous)
	assert.Empty(t, s.History)
}

func TestPolicy_Exceeded(t *testing.T) {
	p := Policy{Ceiling: 10 * time.Second}
	s := NewRetryState(3 * time.Second)

	// 3, 3, 6, 9, 15
	steps := 0
	for !p.Exceeded(s) {
		s.Advance()
		steps++
		require.Less(t, steps, 100)
	}
	assert.Equal(t, 4, steps)
	assert.Equal(t, 15*time.Second, s.Current)
}

func TestPolicy_DefaultCeiling(t *testing.T) {
	p := Policy{}
	s := NewRetryState(DownloadSeed)
	s.Current = DefaultCeiling - time.Second
	assert.False(t, p.Exceeded(s))
	s.Current = DefaultCeiling
	assert.True(t, p.Exceeded(s))
	assert.Equal(t, DefaultCeiling, DefaultPolicy().Ceiling)
}

func TestPolicy_ThrottlePrefersDeclaredWait(t *testing.T) {
	p := DefaultPolicy()
	s := NewRetryState(TransportSeed)

	assert.Equal(t, 7*time.Second, p.Throttle(7*time.Second, s))
	assert.Equal(t, 0, s.Attempts, "declared wait must not advance the sequence")

	assert.Equal(t, 10*time.Second, p.Throttle(0, s))
	assert.Equal(t, 10*time.Second, p.Throttle(0, s))
	assert.Equal(t, 20*time.Second, p.Throttle(0, s))
	assert.Equal(t, 3, s.Attempts)
}

func TestPolicy_DeclaredWaitCappedAtCeiling(t *testing.T) {
	p := Policy{Ceiling: time.Minute}
	s := NewRetryState(TransportSeed)

	assert.Equal(t, time.Minute, p.Throttle(2*time.Hour, s))
	assert.Equal(t, 0, s.Attempts)
	assert.Equal(t, 30*time.Second, p.Clamp(30*time.Second))
	assert.Equal(t, DefaultCeiling, Policy{}.Clamp(1000*time.Hour))
}

func TestRealSleeper_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Real.Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRealSleeper_Elapses(t *testing.T) {
	require.NoError(t, Real.Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Real.Sleep(context.Background(), 0))
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Sleep(context.Background(), 5*time.Second))
	require.NoError(t, r.Sleep(context.Background(), 10*time.Second))
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, r.Sleeps())
	assert.Equal(t, 15*time.Second, r.Total())
}
