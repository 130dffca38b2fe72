// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-harvester/internal/logctx"
	"github.com/pdiddy/arxiv-harvester/internal/pipeline"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "List the identifiers of a catalog partition over OAI-PMH",
	Long: `Harvest walks the OAI-PMH ListRecords listing of one or more sets and
records every identifier in the ledger, grouped into batches. Identifiers are
also written one per line to --out (default stdout).

Throttle replies are honored for the time they declare. Transport failures
back off from 10s along a Fibonacci sequence; after --max-failures
consecutive failures the set is abandoned and the next one is harvested.`,
	RunE: runHarvest,
}

func init() {
	harvestCmd.Flags().StringSlice("set", nil, "catalog set to harvest, repeatable (default cs)")
	harvestCmd.Flags().Int("batch-size", 0, "identifiers per batch (default 50000)")
	harvestCmd.Flags().Int("max-failures", 0, "consecutive transport failures tolerated (default 5)")
	harvestCmd.Flags().String("out", "", "file to write identifiers to (default stdout)")

	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{
		"batch-size":   "harvest.batch_size",
		"max-failures": "harvest.max_failures",
	}); err != nil {
		return err
	}
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		defer f.Close()
		bw := bufio.NewWriter(f)
		defer bw.Flush()
		w = bw
	}

	session, err := newSession(cmd, cfg, io.Discard)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx := cmd.Context()
	logger := logctx.From(ctx)
	var errs []error
	for _, set := range harvestSets(cmd, cfg) {
		n, err := session.Harvest(ctx, set, w)
		if err != nil {
			errs = append(errs, fmt.Errorf("set %s: %w", set, err))
			continue
		}
		logger.Info("harvest finished", "set", set, "identifiers", n)
	}
	return errors.Join(errs...)
}

func harvestSets(cmd *cobra.Command, cfg types.PipelineConfig) []string {
	sets, _ := cmd.Flags().GetStringSlice("set")
	if len(sets) == 0 {
		sets = []string{cfg.Harvest.Set}
	}
	return sets
}

// newSession builds a pipeline session reporting to the shared metrics.
func newSession(cmd *cobra.Command, cfg types.PipelineConfig, out io.Writer) (*pipeline.Session, error) {
	return pipeline.New(cfg,
		pipeline.WithLogger(logctx.From(cmd.Context())),
		pipeline.WithMetrics(metrics),
		pipeline.WithOutput(out),
	)
}
