// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs harvesting sessions: identifiers from the metadata
// walker are batched, recorded in the ledger, resolved into download links
// and handed to the download engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pdiddy/arxiv-harvester/internal/acquire"
	"github.com/pdiddy/arxiv-harvester/internal/backoff"
	"github.com/pdiddy/arxiv-harvester/internal/httputil"
	"github.com/pdiddy/arxiv-harvester/internal/ledger"
	"github.com/pdiddy/arxiv-harvester/internal/logctx"
	"github.com/pdiddy/arxiv-harvester/internal/oai"
	"github.com/pdiddy/arxiv-harvester/internal/search"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// Metrics receives session progress. *telemetry.Telemetry implements it.
type Metrics interface {
	acquire.Observer
	Harvested(ctx context.Context, set string, n int)
	Resolved(ctx context.Context, set string, n int)
	SessionEnded(ctx context.Context, set, status string, elapsed time.Duration)
}

// WalkerFactory opens a fresh walker over one set.
type WalkerFactory func(set string) *oai.Walker

// Session is the context of one harvesting invocation. It owns the ledger
// and is torn down with Close.
type Session struct {
	cfg      types.PipelineConfig
	walkers  WalkerFactory
	resolver *search.Resolver
	engine   *acquire.Engine
	ledger   *ledger.Ledger
	metrics  Metrics
	logger   *slog.Logger
	out      io.Writer
}

// Option configures a Session.
type Option func(*options)

type options struct {
	sleeper    backoff.Sleeper
	metrics    Metrics
	logger     *slog.Logger
	out        io.Writer
	catalog    *httputil.Client
	downloader *httputil.Client
}

// WithSleeper replaces the real sleeper in the walker, resolver and engine.
func WithSleeper(s backoff.Sleeper) Option {
	return func(o *options) { o.sleeper = s }
}

// WithMetrics reports progress to m.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the session logger. The default is slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOutput receives per-link status lines and batch summaries.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithCatalogClient sets the client shared by the walker and the resolver.
func WithCatalogClient(c *httputil.Client) Option {
	return func(o *options) { o.catalog = c }
}

// WithDownloadClient sets the client used by the download engine.
func WithDownloadClient(c *httputil.Client) Option {
	return func(o *options) { o.downloader = c }
}

// New builds a session from cfg. The walker and the resolver share one
// catalog client so request spacing holds across both.
func New(cfg types.PipelineConfig, opts ...Option) (*Session, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.out == nil {
		o.out = io.Discard
	}

	cfg.Harvest = cfg.Harvest.WithDefaults()
	cfg.Resolve = cfg.Resolve.WithDefaults()
	cfg.Download = cfg.Download.WithDefaults()

	if o.catalog == nil {
		o.catalog = httputil.NewClient(nil, cfg.Harvest.HTTPConfig)
	}

	s := &Session{
		cfg:     cfg,
		metrics: o.metrics,
		logger:  o.logger,
		out:     o.out,
	}

	if cfg.LedgerPath != "" {
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		s.ledger = l
	}

	oaiClient := oai.NewClient(o.catalog, cfg.Harvest.BaseURL)
	s.walkers = func(set string) *oai.Walker {
		w := oai.NewWalker(oaiClient.Open(cfg.Harvest.MetadataPrefix, set), cfg.Harvest)
		if o.sleeper != nil {
			w.Sleeper = o.sleeper
		}
		return w
	}

	s.resolver = search.NewResolver(o.catalog, cfg.Resolve)
	if o.sleeper != nil {
		s.resolver.Sleeper = o.sleeper
	}

	engineOpts := []acquire.Option{acquire.WithTopic(cfg.Topic)}
	if o.downloader != nil {
		engineOpts = append(engineOpts, acquire.WithClient(o.downloader))
	}
	if o.sleeper != nil {
		engineOpts = append(engineOpts, acquire.WithSleeper(o.sleeper))
	}
	if s.ledger != nil {
		engineOpts = append(engineOpts, acquire.WithRecorder(s.ledger))
	}
	if o.metrics != nil {
		engineOpts = append(engineOpts, acquire.WithObserver(o.metrics))
	}
	s.engine = acquire.NewEngine(cfg.Download, engineOpts...)

	return s, nil
}

// Close releases the ledger.
func (s *Session) Close() error {
	if s.ledger != nil {
		return s.ledger.Close()
	}
	return nil
}

// Ledger returns the session ledger, or nil when none is configured.
func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

// Engine returns the download engine.
func (s *Session) Engine() *acquire.Engine {
	return s.engine
}

// Resolver returns the link resolver.
func (s *Session) Resolver() *search.Resolver {
	return s.resolver
}

// SetReport summarizes the work done for one set.
type SetReport struct {
	Set         string
	Identifiers int
	Batches     int
	Links       int
	Downloads   acquire.BatchResult
	Err         error
}

// Report summarizes a Run.
type Report struct {
	Sets []SetReport
}

// Failed reports whether any set aborted.
func (r *Report) Failed() bool {
	for _, s := range r.Sets {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Harvest walks set, records every batch in the ledger and writes each
// identifier to w. It returns the number of identifiers harvested.
func (s *Session) Harvest(ctx context.Context, set string, w io.Writer) (int, error) {
	rep := s.runSet(ctx, set, func(_ context.Context, _ *SetReport, batch types.Batch) error {
		for _, id := range batch {
			if w != nil {
				fmt.Fprintln(w, id)
			}
		}
		return nil
	})
	return rep.Identifiers, rep.Err
}

// Run harvests each set in turn, resolving and downloading every batch as
// it fills. A fatal error aborts only the set it occurred in. The returned
// error joins the per-set errors.
func (s *Session) Run(ctx context.Context, sets ...string) (*Report, error) {
	if len(sets) == 0 {
		sets = []string{s.cfg.Harvest.Set}
	}

	report := &Report{}
	var errs []error
	for _, set := range sets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rep := s.runSet(ctx, set, s.fetchBatch)
		report.Sets = append(report.Sets, rep)
		if rep.Err != nil {
			errs = append(errs, fmt.Errorf("set %s: %w", set, rep.Err))
		}
	}
	return report, errors.Join(errs...)
}

type batchFunc func(ctx context.Context, rep *SetReport, batch types.Batch) error

func (s *Session) runSet(ctx context.Context, set string, handle batchFunc) SetReport {
	logger := s.logger.With("set", set)
	ctx = logctx.WithLogger(ctx, logger)
	rep := SetReport{Set: set}
	started := time.Now()

	var sessionID int64
	if s.ledger != nil {
		id, err := s.ledger.BeginSession(ctx, set, s.cfg.Topic)
		if err != nil {
			rep.Err = err
			return rep
		}
		sessionID = id
	}

	walker := s.walkers(set)
	for batch, err := range oai.Batches(walker.All(ctx), s.cfg.Harvest.BatchSize) {
		if err != nil {
			rep.Err = err
			break
		}
		logger.Info("harvested batch", "batch", rep.Batches, "identifiers", len(batch))

		if s.ledger != nil {
			if err := s.ledger.RecordBatch(ctx, sessionID, set, rep.Batches, batch); err != nil {
				rep.Err = err
				break
			}
		}
		rep.Batches++
		rep.Identifiers += len(batch)
		if s.metrics != nil {
			s.metrics.Harvested(ctx, set, len(batch))
		}

		if err := handle(ctx, &rep, batch); err != nil {
			rep.Err = err
			break
		}
	}

	status := ledger.StatusComplete
	if rep.Err != nil {
		status = ledger.StatusFailed
		logger.Error("session aborted",
			"identifiers", rep.Identifiers, "listed", walker.Emitted(), "err", rep.Err)
	} else {
		logger.Info("session complete",
			"identifiers", rep.Identifiers, "batches", rep.Batches, "links", rep.Links,
			"saved", rep.Downloads.Saved, "elapsed", time.Since(started).Round(time.Second))
	}
	if s.ledger != nil {
		// Record the end even when ctx was cancelled.
		if err := s.ledger.EndSession(context.WithoutCancel(ctx), sessionID, rep.Err); err != nil {
			logger.Error("recording session end", "err", err)
		}
	}
	if s.metrics != nil {
		s.metrics.SessionEnded(ctx, set, status, time.Since(started))
	}
	return rep
}

// fetchBatch resolves the links of one batch and downloads them while
// later pages are still being resolved.
func (s *Session) fetchBatch(ctx context.Context, rep *SetReport, batch types.Batch) error {
	q := search.Query{IDs: batch, Topic: s.cfg.Topic, Categories: s.cfg.Categories}

	links := make(chan types.DownloadLink)
	resolved := make(chan error, 1)
	var count int
	go func() {
		defer close(links)
		for link, err := range s.resolver.Links(ctx, q) {
			if err != nil {
				resolved <- err
				return
			}
			count++
			select {
			case links <- link:
			case <-ctx.Done():
				resolved <- ctx.Err()
				return
			}
		}
		resolved <- nil
	}()

	var br acquire.BatchResult
	for res := range s.engine.Run(ctx, links) {
		br.Add(res)
		rep.Downloads.Add(res)
		fmt.Fprintln(s.out, acquire.StatusLine(res))
	}
	err := <-resolved

	rep.Links += count
	if s.metrics != nil {
		s.metrics.Resolved(ctx, rep.Set, count)
	}
	fmt.Fprintln(s.out, acquire.Summary(br))
	return err
}
