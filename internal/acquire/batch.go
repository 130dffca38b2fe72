// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// Result pairs a link with its terminal outcome.
type Result struct {
	Link    types.DownloadLink
	Outcome types.DownloadOutcome
}

// Run downloads links from the channel on a bounded pool of workers and
// sends each outcome on the returned channel, in completion order. The
// result channel closes after links closes and every started download has
// finished. Once ctx is done no further links are taken. The caller must
// drain the result channel.
func (e *Engine) Run(ctx context.Context, links <-chan types.DownloadLink) <-chan Result {
	results := make(chan Result)
	workers := max(1, min(e.workers, types.MaxWorkers))

	go func() {
		defer close(results)

		var g errgroup.Group
		sem := make(chan struct{}, workers)

	loop:
		for {
			var (
				link types.DownloadLink
				ok   bool
			)
			select {
			case <-ctx.Done():
				break loop
			case link, ok = <-links:
				if !ok {
					break loop
				}
			}

			select {
			case <-ctx.Done():
				break loop
			case sem <- struct{}{}:
			}

			g.Go(func() error {
				defer func() { <-sem }() // release the slot

				results <- Result{Link: link, Outcome: e.Download(ctx, link)}
				return nil
			})
		}

		// Workers report through results, never through the group.
		_ = g.Wait()
	}()

	return results
}

// BatchResult holds the outcome of a batch download run.
type BatchResult struct {
	Saved       int
	Skipped     int
	Unavailable int
	Exhausted   int
	Failed      int
	TimedOut    int
	Bytes       int64
	Results     []Result
}

// Total returns the total number of links processed.
func (r BatchResult) Total() int {
	return r.Saved + r.Skipped + r.Unavailable + r.Exhausted + r.Failed + r.TimedOut
}

// HasFailures reports whether any link ended fatally or timed out.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0 || r.TimedOut > 0
}

// Add counts one result.
func (r *BatchResult) Add(res Result) {
	out := res.Outcome
	switch out.Kind {
	case types.OutcomeSaved:
		if out.Skipped {
			r.Skipped++
		} else {
			r.Saved++
			r.Bytes += out.Size
		}
	case types.OutcomeDeclaredUnavailable:
		r.Unavailable++
	case types.OutcomeExhausted:
		r.Exhausted++
	case types.OutcomeTimedOut:
		r.TimedOut++
	default:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// DownloadAll downloads links on the worker pool, printing one status line
// per link to w, and returns a summary.
func (e *Engine) DownloadAll(ctx context.Context, links []types.DownloadLink, w io.Writer) BatchResult {
	if w == nil {
		w = io.Discard
	}

	in := make(chan types.DownloadLink)
	go func() {
		defer close(in)
		for _, l := range links {
			select {
			case in <- l:
			case <-ctx.Done():
				return
			}
		}
	}()

	var result BatchResult
	for res := range e.Run(ctx, in) {
		result.Add(res)
		fmt.Fprintln(w, StatusLine(res))
	}
	fmt.Fprintln(w, Summary(result))
	return result
}

// StatusLine formats one result for progress output.
func StatusLine(res Result) string {
	out := res.Outcome
	switch {
	case out.Kind == types.OutcomeSaved && out.Skipped:
		return fmt.Sprintf("skipped: %s (already exists)", out.Path)
	case out.Kind == types.OutcomeSaved:
		return fmt.Sprintf("saved:   %s", out.Path)
	default:
		return fmt.Sprintf("%-8s %s (%s)", string(out.Kind)+":", res.Link.URL, out)
	}
}

// Summary formats the batch counters.
func Summary(r BatchResult) string {
	return fmt.Sprintf("\nBatch summary: %d saved, %d skipped, %d unavailable, %d exhausted, %d failed, %d timed out (total: %d)",
		r.Saved, r.Skipped, r.Unavailable, r.Exhausted, r.Failed, r.TimedOut, r.Total())
}
