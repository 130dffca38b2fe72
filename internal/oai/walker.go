// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/pdiddy/arxiv-harvester/internal/backoff"
	"github.com/pdiddy/arxiv-harvester/internal/logctx"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// progressEvery controls how often harvest progress is logged.
const progressEvery = 200

type walkerState int

const (
	stateStart walkerState = iota
	stateDraining
	stateDone
)

func (s walkerState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateDraining:
		return "draining"
	default:
		return "done"
	}
}

// Walker drains a Source into identifiers, retrying throttles and
// transport failures.
//
// Throttle signals wait for the declared time, or a Fibonacci delay when none
// is declared, and never count as failures once the listing has started.
// Transport failures back off from 10s along their own Fibonacci sequence;
// the failure after MaxFailures consecutive ones is fatal. Both sequences
// reset on every record received. Before the first record arrives, every
// failed attempt counts toward MaxFailures.
type Walker struct {
	src         Source
	policy      backoff.Policy
	maxFailures int

	// Sleeper waits between retries; defaults to backoff.Real.
	Sleeper backoff.Sleeper

	state     walkerState
	failures  int
	throttle  *backoff.RetryState
	transport *backoff.RetryState
	records   int
	emitted   int
	err       error
}

// NewWalker returns a walker over src using the retry limits in cfg.
func NewWalker(src Source, cfg types.HarvestConfig) *Walker {
	cfg = cfg.WithDefaults()
	return &Walker{
		src:         src,
		policy:      backoff.Policy{Ceiling: cfg.MaxDelay},
		maxFailures: cfg.MaxFailures,
		Sleeper:     backoff.Real,
		throttle:    backoff.NewRetryState(backoff.TransportSeed),
		transport:   backoff.NewRetryState(backoff.TransportSeed),
	}
}

// Emitted returns the number of identifiers produced so far.
func (w *Walker) Emitted() int {
	return w.emitted
}

// Next returns the next identifier. It returns ErrDone once the listing has
// ended, and the fatal error again on every call after one occurred.
func (w *Walker) Next(ctx context.Context) (types.Identifier, error) {
	logger := logctx.From(ctx)

	for {
		if w.state == stateDone {
			if w.err != nil {
				return "", w.err
			}
			return "", ErrDone
		}

		rec, err := w.src.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrEndOfListing) {
				logger.Info("harvest complete", "records", w.records, "identifiers", w.emitted)
				w.state = stateDone
				return "", ErrDone
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}

			wait, fatal := w.retryDelay(err)
			if fatal != nil {
				logger.Error("harvest aborted", "state", w.state.String(), "err", fatal)
				w.state = stateDone
				w.err = fatal
				return "", fatal
			}
			logger.Warn("waiting to resume harvest", "wait", wait, "state", w.state.String(), "err", err)
			if err := w.Sleeper.Sleep(ctx, wait); err != nil {
				return "", err
			}
			continue
		}

		w.state = stateDraining
		w.failures = 0
		w.throttle.Reset()
		w.transport.Reset()
		w.records++

		if len(rec.IDs) == 0 {
			logger.Warn("record has no identifier", "record", w.records, "header", rec.Header, "deleted", rec.Deleted)
			continue
		}
		if len(rec.IDs) > 1 {
			logger.Warn("record has multiple identifiers", "record", w.records, "ids", strings.Join(rec.IDs, ";"))
		}

		w.emitted++
		if w.emitted%progressEvery == 0 {
			logger.Debug("harvested identifiers", "count", w.emitted)
		}
		return types.Identifier(rec.IDs[0]), nil
	}
}

// retryDelay decides how long to wait after err, or returns a fatal error.
func (w *Walker) retryDelay(err error) (time.Duration, error) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return 0, fmt.Errorf("harvest %s: %w", w.state, err)
	}

	var te *ThrottleError
	if errors.As(err, &te) {
		if w.state == stateStart {
			if err := w.countFailure(err); err != nil {
				return 0, err
			}
		}
		if te.Wait <= 0 && w.policy.Exceeded(w.throttle) {
			return 0, fmt.Errorf("harvest throttled past %v: %w", w.policy.Ceiling, ErrExhausted)
		}
		w.throttle.Record("throttle")
		return w.policy.Throttle(te.Wait, w.throttle), nil
	}

	if err := w.countFailure(err); err != nil {
		return 0, err
	}
	w.transport.Record("transport")
	return w.transport.Advance(), nil
}

func (w *Walker) countFailure(err error) error {
	w.failures++
	if w.failures > w.maxFailures {
		return fmt.Errorf("harvest %s: %d consecutive failures: %w", w.state, w.failures, err)
	}
	return nil
}

// All returns the remaining identifiers as a lazy sequence. Iteration stops
// after the listing ends or after yielding a fatal error. Restarting a
// harvest means opening a new cursor and walker.
func (w *Walker) All(ctx context.Context) iter.Seq2[types.Identifier, error] {
	return func(yield func(types.Identifier, error) bool) {
		for {
			id, err := w.Next(ctx)
			if errors.Is(err, ErrDone) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

// Batches groups seq into batches of at most size identifiers. A full batch
// is yielded as soon as it fills; the final partial batch is yielded when
// seq ends. On error the partial batch is yielded first, then the error.
func Batches(seq iter.Seq2[types.Identifier, error], size int) iter.Seq2[types.Batch, error] {
	if size <= 0 {
		size = types.DefaultBatchSize
	}
	return func(yield func(types.Batch, error) bool) {
		batch := make(types.Batch, 0, min(size, 1024))
		for id, err := range seq {
			if err != nil {
				if len(batch) > 0 && !yield(batch, nil) {
					return
				}
				yield(nil, err)
				return
			}
			batch = append(batch, id)
			if len(batch) >= size {
				if !yield(batch, nil) {
					return
				}
				batch = make(types.Batch, 0, min(size, 1024))
			}
		}
		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}
