// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire downloads documents and writes their metadata sidecars.
//
// Each link is fetched until the response classifies as a document, as a
// declared absence, or as a hard rejection. Throttle pages are honored for
// exactly the wait they declare; anything unrecognized backs off along a
// Fibonacci sequence from one second. A link is attempted at most
// MaxAttempts times and for at most DownloadTimeout.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-harvester/internal/backoff"
	"github.com/pdiddy/arxiv-harvester/internal/classify"
	"github.com/pdiddy/arxiv-harvester/internal/httputil"
	"github.com/pdiddy/arxiv-harvester/internal/logctx"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

const (
	metadataDir = "metadata"
	dirPerm     = 0o755
	filePerm    = 0o644
	snippetLen  = 200
)

// ErrForbidden marks a response the server will not change its mind about
// (bad request, unauthorized, forbidden, method not allowed).
var ErrForbidden = errors.New("request rejected by server")

// Recorder persists terminal outcomes.
type Recorder interface {
	RecordOutcome(ctx context.Context, link types.DownloadLink, out types.DownloadOutcome) error
}

// Observer is told about every attempt and every terminal outcome.
type Observer interface {
	Attempted(ctx context.Context, result classify.Result)
	Finished(ctx context.Context, out types.DownloadOutcome)
}

// Engine downloads links into one directory.
type Engine struct {
	client      *httputil.Client
	dir         string
	workers     int
	maxAttempts int
	timeout     time.Duration
	policy      backoff.Policy
	sleeper     backoff.Sleeper
	recorder    Recorder
	observer    Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClient sets the HTTP client. The default is built from the config.
func WithClient(c *httputil.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithSleeper replaces the real sleeper, typically with a backoff.Recorder.
func WithSleeper(s backoff.Sleeper) Option {
	return func(e *Engine) { e.sleeper = s }
}

// WithRecorder records every terminal outcome.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithObserver reports attempts and outcomes, e.g. to metrics.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithTopic saves documents in the topic subdirectory of PapersDir.
func WithTopic(topic string) Option {
	return func(e *Engine) { e.dir = TopicDir(e.dir, topic) }
}

// NewEngine returns an engine for cfg.
func NewEngine(cfg types.DownloadConfig, opts ...Option) *Engine {
	cfg = cfg.WithDefaults()
	e := &Engine{
		dir:         cfg.PapersDir,
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.DownloadTimeout,
		policy:      backoff.Policy{Ceiling: cfg.MaxDelay},
		sleeper:     backoff.Real,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = httputil.NewClient(nil, cfg.HTTPConfig)
	}
	return e
}

// Dir returns the directory documents are saved in.
func (e *Engine) Dir() string {
	return e.dir
}

// Path returns where the document behind rawURL is saved.
func (e *Engine) Path(rawURL string) string {
	return filepath.Join(e.dir, Canonical(rawURL))
}

// Download fetches one link and returns its terminal outcome. An existing
// file is reported as saved without any request. Context expiry, including
// the engine's per-download timeout, yields OutcomeTimedOut.
func (e *Engine) Download(ctx context.Context, link types.DownloadLink) types.DownloadOutcome {
	out := e.download(ctx, link)
	e.finish(ctx, link, out)
	return out
}

func (e *Engine) download(ctx context.Context, link types.DownloadLink) types.DownloadOutcome {
	logger := logctx.From(ctx).With("url", link.URL)
	path := e.Path(link.URL)

	if _, err := os.Stat(path); err == nil {
		logger.Debug("document already saved", "path", path)
		return types.DownloadOutcome{Kind: types.OutcomeSaved, Path: path, Skipped: true}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	state := backoff.NewRetryState(backoff.DownloadSeed)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		resp, err := e.client.Get(ctx, link.URL)
		if err != nil {
			if ctx.Err() != nil {
				return timedOut(ctx, attempt)
			}
			state.Record("network-error")
			logger.Warn("download attempt failed", "attempt", attempt, "err", err)
			if attempt < e.maxAttempts {
				if err := e.sleeper.Sleep(ctx, state.Advance()); err != nil {
					return timedOut(ctx, attempt)
				}
			}
			continue
		}

		result := classifyResponse(resp)
		state.Record(result.Kind.String())
		if e.observer != nil {
			e.observer.Attempted(ctx, result)
		}

		switch result.Kind {
		case classify.ValidDocument:
			n, created, err := e.save(path, resp.Body)
			if err != nil {
				return types.DownloadOutcome{Kind: types.OutcomeFatal, Err: err, Attempts: attempt}
			}
			if !created {
				logger.Debug("document saved by another worker", "path", path)
				return types.DownloadOutcome{Kind: types.OutcomeSaved, Path: path, Attempts: attempt, Skipped: true}
			}
			logger.Info("saved document", "path", path, "size", humanize.Bytes(uint64(n)), "attempts", attempt)
			e.writeSidecar(ctx, link, path, n)
			return types.DownloadOutcome{Kind: types.OutcomeSaved, Path: path, Attempts: attempt, Size: n}

		case classify.DeclaredUnavailable:
			logger.Info("document declared unavailable", "attempt", attempt)
			return types.DownloadOutcome{Kind: types.OutcomeDeclaredUnavailable, Attempts: attempt}

		case classify.Malformed:
			err := fmt.Errorf("HTTP %d: %s: %w", resp.Status, httputil.Snippet(resp.Body, snippetLen), ErrForbidden)
			logger.Error("download rejected", "status", resp.Status, "err", err)
			return types.DownloadOutcome{Kind: types.OutcomeFatal, Err: err, Attempts: attempt}

		case classify.ThrottleRequest:
			wait := e.policy.Clamp(result.Wait)
			logger.Warn("throttled", "attempt", attempt, "wait", wait)
			if attempt < e.maxAttempts {
				if err := e.sleeper.Sleep(ctx, wait); err != nil {
					return timedOut(ctx, attempt)
				}
			}

		default:
			wait := state.Advance()
			logger.Warn("unrecognized response", "attempt", attempt, "status", resp.Status,
				"body", httputil.Snippet(resp.Body, snippetLen), "wait", wait)
			if attempt < e.maxAttempts {
				if err := e.sleeper.Sleep(ctx, wait); err != nil {
					return timedOut(ctx, attempt)
				}
			}
		}
	}

	logger.Error("download attempts exhausted", "attempts", e.maxAttempts, "history", strings.Join(state.History, ","))
	return types.DownloadOutcome{Kind: types.OutcomeExhausted, Last: state.Last(), Attempts: e.maxAttempts}
}

// classifyResponse classifies resp, treating a bare 429 or 503 that carries
// a Retry-After header as a throttle request.
func classifyResponse(resp *httputil.Response) classify.Result {
	result := classify.Classify(resp.Status, resp.Body)
	if result.Kind != classify.Unknown {
		return result
	}
	if resp.Status == http.StatusTooManyRequests || resp.Status == http.StatusServiceUnavailable {
		if wait, ok := classify.RetryAfter(resp.Header); ok {
			return classify.Result{Kind: classify.ThrottleRequest, Wait: wait}
		}
	}
	return result
}

func timedOut(ctx context.Context, attempts int) types.DownloadOutcome {
	return types.DownloadOutcome{Kind: types.OutcomeTimedOut, Err: ctx.Err(), Attempts: attempts}
}

// finish reports out. It runs after cancellation too, so the outcome of an
// interrupted download still reaches the ledger.
func (e *Engine) finish(ctx context.Context, link types.DownloadLink, out types.DownloadOutcome) {
	ctx = context.WithoutCancel(ctx)
	if e.observer != nil {
		e.observer.Finished(ctx, out)
	}
	if e.recorder != nil {
		if err := e.recorder.RecordOutcome(ctx, link, out); err != nil {
			logctx.From(ctx).Warn("recording outcome failed", "url", link.URL, "err", err)
		}
	}
}

// save writes body to path through a temporary file. The temporary file is
// hard-linked into place so a concurrent writer of the same path loses
// cleanly: its link fails with fs.ErrExist, the first file stands and
// created is false. Filesystems without hard links fall back to rename.
func (e *Engine) save(path string, body []byte) (n int64, created bool, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return 0, false, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return 0, false, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	written, writeErr := tmpFile.Write(body)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		return 0, false, fmt.Errorf("writing download: %w", writeErr)
	}
	if closeErr != nil {
		return 0, false, fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		return 0, false, fmt.Errorf("setting permissions: %w", err)
	}

	err = os.Link(tmpPath, path)
	switch {
	case err == nil:
		return int64(written), true, nil
	case errors.Is(err, fs.ErrExist):
		return 0, false, nil
	default:
		if err := os.Rename(tmpPath, path); err != nil {
			return 0, false, fmt.Errorf("renaming temp file: %w", err)
		}
		return int64(written), true, nil
	}
}

// SidecarPath returns the metadata file that accompanies path.
func SidecarPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".pdf")
	return filepath.Join(filepath.Dir(path), metadataDir, base+".yaml")
}

// writeSidecar records what is known about a saved document. Failure only
// costs the metadata, so it is logged and not returned.
func (e *Engine) writeSidecar(ctx context.Context, link types.DownloadLink, path string, size int64) {
	rec := types.DocumentRecord{
		URL:     link.URL,
		Path:    path,
		Size:    size,
		SavedAt: time.Now().UTC(),
	}
	if entry := link.Entry; entry != nil {
		rec.ID = entry.ID
		rec.Title = entry.Title
		rec.Authors = entry.Authors
		rec.DOI = entry.DOI
		rec.JournalRef = entry.JournalRef
	}
	if err := writeMetadata(&rec, SidecarPath(path)); err != nil {
		logctx.From(ctx).Warn("writing metadata failed", "path", path, "err", err)
	}
}

// writeMetadata writes a document record to a YAML file.
func writeMetadata(rec *types.DocumentRecord, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	return os.WriteFile(path, data, filePerm)
}

// ReadMetadata reads a document record from a YAML file.
func ReadMetadata(path string) (*types.DocumentRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec types.DocumentRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing metadata %s: %w", path, err)
	}
	return &rec, nil
}
