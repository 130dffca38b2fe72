// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-harvester/internal/acquire"
	"github.com/pdiddy/arxiv-harvester/internal/ledger"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

func TestDescribeLinks(t *testing.T) {
	dir := t.TempDir()
	l, err := ledger.Open(filepath.Join(dir, "harvest.db"))
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()

	saved, err := acquire.ParseLink("2301.07041")
	require.NoError(t, err)
	path := filepath.Join(dir, "papers", acquire.Canonical(saved.URL))
	require.NoError(t, l.RecordOutcome(ctx, saved, types.DownloadOutcome{
		Kind: types.OutcomeSaved, Path: path, Attempts: 2, Size: 2048,
	}))

	sidecar := acquire.SidecarPath(path)
	require.NoError(t, os.MkdirAll(filepath.Dir(sidecar), 0o755))
	data, err := yaml.Marshal(types.DocumentRecord{
		URL: saved.URL, Path: path, Title: "Planning with Graphs",
		Authors: []string{"Ada Lovelace", "Alan Turing"}, DOI: "10.1/x", Size: 2048,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sidecar, data, 0o644))

	failed := types.DownloadLink{URL: "https://example.org/paper.pdf"}
	require.NoError(t, l.RecordOutcome(ctx, failed, types.DownloadOutcome{
		Kind: types.OutcomeExhausted, Last: "throttle-request", Attempts: 20,
	}))

	var out strings.Builder
	err = describeLinks(ctx, l, []string{"arXiv:2301.07041", failed.URL, "https://example.org/unknown.pdf"}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, saved.URL)
	assert.Contains(t, text, "Planning with Graphs")
	assert.Contains(t, text, "Ada Lovelace, Alan Turing")
	assert.Contains(t, text, "exhausted")
	assert.Contains(t, text, "throttle-request")
	assert.Contains(t, text, "https://example.org/unknown.pdf: no recorded outcome")
}

func TestDescribeLinks_NothingRecorded(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "harvest.db"))
	require.NoError(t, err)
	defer l.Close()

	var out strings.Builder
	err = describeLinks(context.Background(), l, []string{"2301.07041"}, &out)
	assert.Error(t, err)

	err = describeLinks(context.Background(), l, []string{"not an id"}, &out)
	assert.Error(t, err)
}
