// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

func TestClient_GetReturnsAnyStatus(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "busy")
	}))
	defer ts.Close()

	c := NewClient(ts.Client(), types.HTTPConfig{UserAgent: "test-agent/1.0"})
	resp, err := c.Get(context.Background(), ts.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, "busy", string(resp.Body))
	assert.Equal(t, "7", resp.Header.Get("Retry-After"))
	assert.Equal(t, "test-agent/1.0", gotUA)
}

func TestClient_DefaultUserAgent(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	c := NewClient(ts.Client(), types.HTTPConfig{})
	_, err := c.Get(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultUserAgent, gotUA)
}

func TestClient_PostForm(t *testing.T) {
	var got url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		io.WriteString(w, "ok")
	}))
	defer ts.Close()

	c := NewClient(ts.Client(), types.HTTPConfig{})
	resp, err := c.PostForm(context.Background(), ts.URL, url.Values{"id_list": {"1,2"}, "start": {"0"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, "1,2", got.Get("id_list"))
	assert.Equal(t, "0", got.Get("start"))
}

func TestClient_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := ts.URL
	ts.Close()

	c := NewClient(nil, types.HTTPConfig{Timeout: time.Second})
	_, err := c.Get(context.Background(), addr)
	assert.Error(t, err)
}

func TestClient_Pacing(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	c := NewClient(ts.Client(), types.HTTPConfig{RequestInterval: 50 * time.Millisecond})
	start := time.Now()
	for range 3 {
		_, err := c.Get(context.Background(), ts.URL)
		require.NoError(t, err)
	}
	// The first request passes immediately; the next two wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_PacingHonorsContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	c := NewClient(ts.Client(), types.HTTPConfig{RequestInterval: time.Hour})
	_, err := c.Get(context.Background(), ts.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, ts.URL)
	assert.Error(t, err)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "abc", Snippet([]byte(" abcdef"), 4))
	assert.Equal(t, "ab", Snippet([]byte("ab"), 10))
}
