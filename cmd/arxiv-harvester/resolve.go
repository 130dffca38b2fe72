// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-harvester/internal/logctx"
	"github.com/pdiddy/arxiv-harvester/internal/oai"
	"github.com/pdiddy/arxiv-harvester/internal/search"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a topic search into qualifying download links",
	Long: `Resolve pages through the arXiv search API and keeps the entries that
carry a DOI, a journal reference and a PDF link. Links point at the bulk
mirror.

With --set the search is restricted to identifiers already harvested into
the ledger for that set, in batches of --batch-size.

Pages the catalog under-delivers are fetched again with Fibonacci backoff
from 3s; once the wait would exceed the ceiling the resolver stops and keeps
what it has.

Output formats: table (default), --json or --csl. --out saves a link file the
download command can read with --links-file.`,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().String("topic", "", "free-text topic to search for")
	resolveCmd.Flags().StringSlice("category", nil, "restrict to category, repeatable (default every cs.* class)")
	resolveCmd.Flags().String("set", "", "restrict to identifiers harvested into the ledger for this set")
	resolveCmd.Flags().Int("batch-size", 0, "identifiers per query with --set (default 50000)")
	resolveCmd.Flags().Int("page-size", 0, "results per search page (default 200)")
	resolveCmd.Flags().String("out", "", "save links to a YAML link file")
	resolveCmd.Flags().Bool("json", false, "output JSON")
	resolveCmd.Flags().Bool("csl", false, "output CSL-YAML")

	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{
		"topic":      "topic",
		"category":   "categories",
		"batch-size": "harvest.batch_size",
		"page-size":  "resolve.page_size",
	}); err != nil {
		return err
	}
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}

	session, err := newSession(cmd, cfg, io.Discard)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx := cmd.Context()
	base := search.Query{Topic: cfg.Topic, Categories: cfg.Categories}
	queries := []search.Query{base}

	if set, _ := cmd.Flags().GetString("set"); set != "" {
		if session.Ledger() == nil {
			return errors.New("--set needs the ledger; it is disabled")
		}
		ids, err := session.Ledger().Identifiers(ctx, set)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("no identifiers harvested for set %s; run harvest first", set)
		}
		queries = queries[:0]
		for batch := range batchesOf(ids, cfg.Harvest.WithDefaults().BatchSize) {
			q := base
			q.IDs = batch
			queries = append(queries, q)
		}
	}

	var links []types.DownloadLink
	for i, q := range queries {
		got, err := session.Resolver().Collect(ctx, q)
		links = append(links, got...)
		if err != nil {
			return fmt.Errorf("resolving query %d: %w", i, err)
		}
	}
	logctx.From(ctx).Info("resolve finished", "queries", len(queries), "links", len(links))

	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := search.WriteLinkFile(out, base, links); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Links saved to %s\n", out)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	asCSL, _ := cmd.Flags().GetBool("csl")
	switch {
	case asCSL:
		return search.FormatCSL(links, os.Stdout)
	case asJSON:
		return search.FormatJSON(links, os.Stdout)
	default:
		search.FormatTable(links, os.Stdout)
		return nil
	}
}

// batchesOf groups previously harvested identifiers the way the walker
// batches a live listing.
func batchesOf(ids []types.Identifier, size int) iter.Seq[types.Batch] {
	all := func(yield func(types.Identifier, error) bool) {
		for _, id := range ids {
			if !yield(id, nil) {
				return
			}
		}
	}
	return func(yield func(types.Batch) bool) {
		for batch := range oai.Batches(all, size) {
			if !yield(batch) {
				return
			}
		}
	}
}
