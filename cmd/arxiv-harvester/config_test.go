// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	setDefaults()
	loadedSecrets = nil
	t.Cleanup(func() {
		viper.Reset()
		loadedSecrets = nil
	})
}

func TestMergeHTTP(t *testing.T) {
	shared := types.HTTPConfig{Timeout: time.Minute, UserAgent: "shared/1", RequestInterval: 3 * time.Second}

	got := mergeHTTP(types.HTTPConfig{UserAgent: "stage/2"}, shared)
	assert.Equal(t, time.Minute, got.Timeout)
	assert.Equal(t, "stage/2", got.UserAgent)
	assert.Equal(t, 3*time.Second, got.RequestInterval)
}

func TestPipelineConfig_Defaults(t *testing.T) {
	resetConfig(t)

	cfg, err := pipelineConfig()
	require.NoError(t, err)

	assert.Equal(t, types.DefaultSet, cfg.Harvest.Set)
	assert.Equal(t, types.DefaultBatchSize, cfg.Harvest.BatchSize)
	assert.Equal(t, types.DefaultWorkers, cfg.Download.Workers)
	assert.Equal(t, types.DefaultPageSize, cfg.Resolve.PageSize)
	assert.Equal(t, types.DefaultLedgerPath, cfg.LedgerPath)

	for _, h := range []types.HTTPConfig{cfg.Harvest.HTTPConfig, cfg.Resolve.HTTPConfig, cfg.Download.HTTPConfig} {
		assert.Equal(t, types.DefaultUserAgent, h.UserAgent)
		assert.Equal(t, types.DefaultRequestInterval, h.RequestInterval)
		assert.Equal(t, types.DefaultRequestTimeout, h.Timeout)
	}
}

func TestPipelineConfig_Overrides(t *testing.T) {
	resetConfig(t)
	viper.Set("download.workers", 2)
	viper.Set("download.timeout", 5*time.Second)
	viper.Set("topic", "planning")
	viper.Set("ledger_path", disabled)
	viper.Set("log.file", disabled)
	loadedSecrets = map[string]string{"contact-email": "ops@example.org"}

	cfg, err := pipelineConfig()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Download.Workers)
	assert.Equal(t, 5*time.Second, cfg.Download.Timeout)
	assert.Equal(t, types.DefaultRequestTimeout, cfg.Harvest.Timeout)
	assert.Equal(t, "planning", cfg.Topic)
	assert.Empty(t, cfg.LedgerPath)
	assert.Empty(t, cfg.Log.File)
	assert.Equal(t, types.DefaultUserAgent+" (mailto:ops@example.org)", cfg.Resolve.UserAgent)
}
