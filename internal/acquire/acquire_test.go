// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-harvester/internal/backoff"
	"github.com/pdiddy/arxiv-harvester/internal/classify"
	"github.com/pdiddy/arxiv-harvester/internal/httputil"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

const fakePDFContent = "%PDF-1.4 fake"

// reply is one scripted response.
type reply struct {
	status int
	header map[string]string
	body   string
}

func pdf() reply { return reply{status: http.StatusOK, body: fakePDFContent} }

func throttlePage(seconds int) reply {
	return reply{
		status: http.StatusServiceUnavailable,
		body: fmt.Sprintf(`<html><head><meta http-equiv="refresh" content="%d"></head>
<body>Retry after %d seconds</body></html>`, seconds, seconds),
	}
}

func unavailablePage() reply {
	return reply{status: http.StatusOK, body: `<html><head><title>No PDF for 2401.00001</title></head><body></body></html>`}
}

func garbage() reply {
	return reply{status: http.StatusInternalServerError, body: "upstream exploded"}
}

// scriptServer replays replies in order; the last reply repeats.
type scriptServer struct {
	*httptest.Server

	mu      sync.Mutex
	replies []reply
	hits    int32
}

func newScriptServer(t *testing.T, replies ...reply) *scriptServer {
	t.Helper()
	s := &scriptServer{replies: replies}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.hits, 1)
		s.mu.Lock()
		rep := s.replies[0]
		if len(s.replies) > 1 {
			s.replies = s.replies[1:]
		}
		s.mu.Unlock()

		for k, v := range rep.header {
			w.Header().Set(k, v)
		}
		w.WriteHeader(rep.status)
		fmt.Fprint(w, rep.body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *scriptServer) Hits() int { return int(atomic.LoadInt32(&s.hits)) }

func (s *scriptServer) link(path string) types.DownloadLink {
	return types.DownloadLink{
		URL: s.URL + path,
		Entry: &types.CatalogEntry{
			ID:         "2401.00001",
			Title:      "A Paper",
			DOI:        "10.1000/xyz",
			JournalRef: "J. Test 1 (2024)",
		},
	}
}

func newTestEngine(t *testing.T, s *scriptServer, cfg types.DownloadConfig, opts ...Option) (*Engine, *backoff.Recorder) {
	t.Helper()
	if cfg.PapersDir == "" {
		cfg.PapersDir = t.TempDir()
	}
	rec := &backoff.Recorder{}
	opts = append([]Option{
		WithClient(httputil.NewClient(s.Client(), types.HTTPConfig{})),
		WithSleeper(rec),
	}, opts...)
	return NewEngine(cfg, opts...), rec
}

func TestDownload_ThrottleSleepsDeclaredWaits(t *testing.T) {
	s := newScriptServer(t, throttlePage(5), throttlePage(10), pdf())
	e, rec := newTestEngine(t, s, types.DownloadConfig{})

	out := e.Download(context.Background(), s.link("/pdf/2401.00001v1"))

	require.Equal(t, types.OutcomeSaved, out.Kind, out.String())
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, rec.Sleeps())

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, fakePDFContent, string(data))
}

func TestDownload_DeclaredUnavailableStopsImmediately(t *testing.T) {
	s := newScriptServer(t, unavailablePage(), pdf())
	e, rec := newTestEngine(t, s, types.DownloadConfig{})

	out := e.Download(context.Background(), s.link("/pdf/2401.00001v1"))

	assert.Equal(t, types.OutcomeDeclaredUnavailable, out.Kind)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, s.Hits())
	assert.Empty(t, rec.Sleeps())
	_, err := os.Stat(e.Path(s.URL + "/pdf/2401.00001v1"))
	assert.True(t, os.IsNotExist(err))
}

func TestDownload_ExistingFileIsNotFetched(t *testing.T) {
	s := newScriptServer(t, pdf())
	e, rec := newTestEngine(t, s, types.DownloadConfig{})
	link := s.link("/pdf/2401.00001v1")

	first := e.Download(context.Background(), link)
	require.Equal(t, types.OutcomeSaved, first.Kind)
	assert.False(t, first.Skipped)

	second := e.Download(context.Background(), link)
	assert.Equal(t, types.OutcomeSaved, second.Kind)
	assert.True(t, second.Skipped)
	assert.Zero(t, second.Attempts)
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, 1, s.Hits())
	assert.Empty(t, rec.Sleeps())
}

func TestDownload_RejectedRequestIsFatal(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			s := newScriptServer(t, reply{status: status, body: "go away"})
			e, rec := newTestEngine(t, s, types.DownloadConfig{})

			out := e.Download(context.Background(), s.link("/pdf/x"))

			assert.Equal(t, types.OutcomeFatal, out.Kind)
			assert.True(t, errors.Is(out.Err, ErrForbidden))
			assert.Contains(t, out.Err.Error(), "go away")
			assert.Equal(t, 1, s.Hits())
			assert.Empty(t, rec.Sleeps())
		})
	}
}

func TestDownload_ExhaustsWithFibonacciDelays(t *testing.T) {
	s := newScriptServer(t, garbage())
	e, rec := newTestEngine(t, s, types.DownloadConfig{MaxAttempts: 6})

	out := e.Download(context.Background(), s.link("/pdf/x"))

	assert.Equal(t, types.OutcomeExhausted, out.Kind)
	assert.Equal(t, "unknown", out.Last)
	assert.Equal(t, 6, out.Attempts)
	assert.Equal(t, 6, s.Hits())
	assert.Equal(t, []time.Duration{
		1 * time.Second, 1 * time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second,
	}, rec.Sleeps())
}

func TestDownload_ThrottleLeavesFibonacciUntouched(t *testing.T) {
	s := newScriptServer(t, garbage(), garbage(), throttlePage(7), garbage(), pdf())
	e, rec := newTestEngine(t, s, types.DownloadConfig{})

	out := e.Download(context.Background(), s.link("/pdf/x"))

	require.Equal(t, types.OutcomeSaved, out.Kind)
	assert.Equal(t, []time.Duration{
		1 * time.Second, 1 * time.Second, 7 * time.Second, 2 * time.Second,
	}, rec.Sleeps())
}

func TestDownload_RetryAfterHeaderIsAThrottle(t *testing.T) {
	s := newScriptServer(t,
		reply{status: http.StatusServiceUnavailable, header: map[string]string{"Retry-After": "4"}},
		pdf(),
	)
	e, rec := newTestEngine(t, s, types.DownloadConfig{})

	out := e.Download(context.Background(), s.link("/pdf/x"))

	require.Equal(t, types.OutcomeSaved, out.Kind)
	assert.Equal(t, []time.Duration{4 * time.Second}, rec.Sleeps())
}

func TestDownload_DeclaredWaitCappedAtMaxDelay(t *testing.T) {
	s := newScriptServer(t,
		throttlePage(600),
		reply{status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "99999999999"}},
		pdf(),
	)
	e, rec := newTestEngine(t, s, types.DownloadConfig{MaxDelay: 2 * time.Minute})

	out := e.Download(context.Background(), s.link("/pdf/x"))

	require.Equal(t, types.OutcomeSaved, out.Kind)
	assert.Equal(t, []time.Duration{2 * time.Minute, 2 * time.Minute}, rec.Sleeps())
}

func TestDownload_TimeoutIsDistinctOutcome(t *testing.T) {
	s := newScriptServer(t, garbage())
	cfg := types.DownloadConfig{PapersDir: t.TempDir(), DownloadTimeout: 50 * time.Millisecond}
	e := NewEngine(cfg, WithClient(httputil.NewClient(s.Client(), types.HTTPConfig{})))

	out := e.Download(context.Background(), s.link("/pdf/x"))

	assert.Equal(t, types.OutcomeTimedOut, out.Kind)
	assert.True(t, errors.Is(out.Err, context.DeadlineExceeded), "err = %v", out.Err)
}

func TestDownload_WritesSidecar(t *testing.T) {
	s := newScriptServer(t, pdf())
	e, _ := newTestEngine(t, s, types.DownloadConfig{}, WithTopic("graph neural"))
	link := s.link("/pdf/2401.00001v1")

	out := e.Download(context.Background(), link)
	require.Equal(t, types.OutcomeSaved, out.Kind)
	assert.Equal(t, "graph+neural", filepath.Base(filepath.Dir(out.Path)))

	rec, err := ReadMetadata(SidecarPath(out.Path))
	require.NoError(t, err)
	assert.Equal(t, link.URL, rec.URL)
	assert.Equal(t, "10.1000/xyz", rec.DOI)
	assert.Equal(t, "J. Test 1 (2024)", rec.JournalRef)
	assert.Equal(t, int64(len(fakePDFContent)), rec.Size)
}

type fakeRecorder struct {
	mu      sync.Mutex
	outs    []types.DownloadOutcome
	ctxErrs []error
}

func (f *fakeRecorder) RecordOutcome(ctx context.Context, _ types.DownloadLink, out types.DownloadOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outs = append(f.outs, out)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return nil
}

type fakeObserver struct {
	mu       sync.Mutex
	attempts []classify.Kind
	finished int
}

func (f *fakeObserver) Attempted(_ context.Context, r classify.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, r.Kind)
}

func (f *fakeObserver) Finished(context.Context, types.DownloadOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished++
}

func TestDownload_CancelledOutcomeIsStillRecorded(t *testing.T) {
	s := newScriptServer(t, pdf())
	recorder := &fakeRecorder{}
	e, _ := newTestEngine(t, s, types.DownloadConfig{}, WithRecorder(recorder))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := e.Download(ctx, s.link("/pdf/x"))

	require.Equal(t, types.OutcomeTimedOut, out.Kind)
	require.Len(t, recorder.outs, 1)
	assert.Equal(t, types.OutcomeTimedOut, recorder.outs[0].Kind)
	assert.NoError(t, recorder.ctxErrs[0], "recorder must get a live context")
}

func TestDownload_ReportsToRecorderAndObserver(t *testing.T) {
	s := newScriptServer(t, throttlePage(1), pdf())
	recorder := &fakeRecorder{}
	observer := &fakeObserver{}
	e, _ := newTestEngine(t, s, types.DownloadConfig{}, WithRecorder(recorder), WithObserver(observer))

	e.Download(context.Background(), s.link("/pdf/x"))

	require.Len(t, recorder.outs, 1)
	assert.Equal(t, types.OutcomeSaved, recorder.outs[0].Kind)
	assert.Equal(t, []classify.Kind{classify.ThrottleRequest, classify.ValidDocument}, observer.attempts)
	assert.Equal(t, 1, observer.finished)
}

func TestRun_ConcurrentWritersOfOnePath(t *testing.T) {
	s := newScriptServer(t, pdf())
	e, _ := newTestEngine(t, s, types.DownloadConfig{Workers: 4})
	link := s.link("/pdf/same")

	links := make([]types.DownloadLink, 8)
	for i := range links {
		links[i] = link
	}
	result := e.DownloadAll(context.Background(), links, nil)

	assert.Equal(t, 8, result.Total())
	assert.Equal(t, 8, result.Saved+result.Skipped)
	for _, r := range result.Results {
		assert.Equal(t, types.OutcomeSaved, r.Outcome.Kind)
	}

	data, err := os.ReadFile(e.Path(link.URL))
	require.NoError(t, err)
	assert.Equal(t, fakePDFContent, string(data))

	entries, err := os.ReadDir(e.Dir())
	require.NoError(t, err)
	for _, de := range entries {
		assert.False(t, strings.HasSuffix(de.Name(), ".tmp"), "leftover temp file %s", de.Name())
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		fmt.Fprint(w, fakePDFContent)
	}))
	defer ts.Close()

	e := NewEngine(types.DownloadConfig{PapersDir: t.TempDir(), Workers: 16},
		WithClient(httputil.NewClient(ts.Client(), types.HTTPConfig{})))

	var links []types.DownloadLink
	for i := range 12 {
		links = append(links, types.DownloadLink{URL: fmt.Sprintf("%s/pdf/%d", ts.URL, i)})
	}
	result := e.DownloadAll(context.Background(), links, nil)

	assert.Equal(t, 12, result.Saved)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(types.MaxWorkers))
}

func TestDownloadAll_Summary(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pdf/ok":
			fmt.Fprint(w, fakePDFContent)
		case "/pdf/gone":
			fmt.Fprint(w, `<html><head><title>No PDF available</title></head></html>`)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer ts.Close()

	e := NewEngine(types.DownloadConfig{PapersDir: t.TempDir()},
		WithClient(httputil.NewClient(ts.Client(), types.HTTPConfig{})),
		WithSleeper(&backoff.Recorder{}))

	var buf bytes.Buffer
	result := e.DownloadAll(context.Background(), []types.DownloadLink{
		{URL: ts.URL + "/pdf/ok"},
		{URL: ts.URL + "/pdf/gone"},
		{URL: ts.URL + "/pdf/nope"},
	}, &buf)

	assert.Equal(t, 1, result.Saved)
	assert.Equal(t, 1, result.Unavailable)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, result.HasFailures())
	assert.Equal(t, int64(len(fakePDFContent)), result.Bytes)
	assert.Contains(t, buf.String(), "Batch summary: 1 saved, 0 skipped, 1 unavailable, 0 exhausted, 1 failed, 0 timed out (total: 3)")
}

func TestRun_StopsTakingLinksAfterCancel(t *testing.T) {
	s := newScriptServer(t, pdf())
	e, _ := newTestEngine(t, s, types.DownloadConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan types.DownloadLink)
	var got []Result
	for r := range e.Run(ctx, in) {
		got = append(got, r)
	}
	assert.Empty(t, got)
	assert.Zero(t, s.Hits())
}
