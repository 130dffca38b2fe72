// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search resolves catalog queries into downloadable document links.
//
// The resolver pages through the arXiv search API, keeps only entries that
// carry a DOI, a journal reference and a PDF link, and routes each link
// through the bulk-access mirror. Pages the catalog under-delivers are
// fetched again with Fibonacci backoff; when the backoff reaches its ceiling
// the resolver reports that there are no more links instead of failing.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/pdiddy/arxiv-harvester/internal/backoff"
	"github.com/pdiddy/arxiv-harvester/internal/httputil"
	"github.com/pdiddy/arxiv-harvester/internal/logctx"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// Resolver turns queries into download links.
type Resolver struct {
	HTTP       *httputil.Client
	BaseURL    string
	PageSize   int
	MirrorHost string
	Policy     backoff.Policy

	// Sleeper waits between retries; defaults to backoff.Real.
	Sleeper backoff.Sleeper
}

// NewResolver returns a resolver using client and the limits in cfg.
func NewResolver(client *httputil.Client, cfg types.ResolveConfig) *Resolver {
	cfg = cfg.WithDefaults()
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Resolver{
		HTTP:       client,
		BaseURL:    base,
		PageSize:   cfg.PageSize,
		MirrorHost: cfg.MirrorHost,
		Policy:     backoff.Policy{Ceiling: cfg.MaxDelay},
		Sleeper:    backoff.Real,
	}
}

func (r *Resolver) pageSize(q Query) int {
	if q.PageSize > 0 {
		return q.PageSize
	}
	if r.PageSize > 0 {
		return r.PageSize
	}
	return types.DefaultPageSize
}

// ResolvePage fetches page index until the catalog delivers it completely.
// Failed and incomplete fetches are retried for the same page. When the
// retry delay reaches the policy ceiling the returned page has GaveUp set,
// More cleared and no links. The only errors are context errors.
func (r *Resolver) ResolvePage(ctx context.Context, q Query, index int) (*Page, error) {
	logger := logctx.From(ctx).With("page", index)
	state := backoff.NewRetryState(backoff.ResolveSeed)

	for {
		p, err := r.FetchPage(ctx, q, index)
		if err == nil && p.Complete {
			logger.Info("resolved page",
				"returned", p.Returned, "qualifying", len(p.Links),
				"start", p.StartIndex, "total", p.TotalResults, "more", p.More)
			return p, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if err != nil {
			state.Record("error")
			logger.Warn("search request failed", "attempt", state.Attempts+1, "err", err)
		} else {
			state.Record("incomplete")
			logger.Warn("search page incomplete",
				"attempt", state.Attempts+1, "returned", p.Returned,
				"start", p.StartIndex, "items_per_page", p.ItemsPerPage, "total", p.TotalResults)
		}

		if r.Policy.Exceeded(state) {
			logger.Error("giving up on search page", "attempts", state.Attempts+1, "last", state.Last())
			return &Page{Index: index, GaveUp: true}, nil
		}
		if err := r.sleeper().Sleep(ctx, state.Advance()); err != nil {
			return nil, err
		}
	}
}

func (r *Resolver) sleeper() backoff.Sleeper {
	if r.Sleeper == nil {
		return backoff.Real
	}
	return r.Sleeper
}

// Pages walks the result pages of q in order, stopping after the first page
// that does not ask for more.
func (r *Resolver) Pages(ctx context.Context, q Query) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		for index := 0; ; index++ {
			p, err := r.ResolvePage(ctx, q, index)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(p, nil) || !p.More {
				return
			}
		}
	}
}

// Links yields the qualifying download links of q in page order. A link is
// yielded once per call even if re-sorting moves its entry across pages.
func (r *Resolver) Links(ctx context.Context, q Query) iter.Seq2[types.DownloadLink, error] {
	return func(yield func(types.DownloadLink, error) bool) {
		seen := make(map[string]struct{})
		for p, err := range r.Pages(ctx, q) {
			if err != nil {
				yield(types.DownloadLink{}, err)
				return
			}
			for _, link := range p.Links {
				if _, dup := seen[link.URL]; dup {
					continue
				}
				seen[link.URL] = struct{}{}
				if !yield(link, nil) {
					return
				}
			}
		}
	}
}

// Collect gathers every link of q. It stops at the first error and returns
// the links resolved so far alongside it.
func (r *Resolver) Collect(ctx context.Context, q Query) ([]types.DownloadLink, error) {
	var links []types.DownloadLink
	for link, err := range r.Links(ctx, q) {
		if err != nil {
			return links, err
		}
		links = append(links, link)
	}
	return links, nil
}

// FormatTable writes links as a human-readable table to w.
func FormatTable(links []types.DownloadLink, w io.Writer) {
	if len(links) == 0 {
		fmt.Fprintln(w, "No qualifying documents found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-12s  %-50s  %s\n", "#", "ID", "Title", "URL")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for i, l := range links {
		var id, title string
		if l.Entry != nil {
			id = string(l.Entry.ID)
			title = truncate(l.Entry.Title, 50)
		}
		fmt.Fprintf(w, "%-4d  %-12s  %-50s  %s\n", i+1, id, title, l.URL)
	}
	fmt.Fprintf(w, "\n%d links\n", len(links))
}

// FormatJSON writes links as indented JSON to w.
func FormatJSON(links []types.DownloadLink, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(links)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
