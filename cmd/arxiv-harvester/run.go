// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest, resolve and download one or more sets end to end",
	Long: `Run harvests each set, and as every batch of identifiers fills it
resolves the batch into qualifying links and downloads them while later
search pages are still being fetched.

A set that fails fatally is recorded in the ledger and the next set starts.
Interrupting the command stops taking new links; in-flight downloads end as
timed out and the session is recorded as failed.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSlice("set", nil, "catalog set to harvest, repeatable (default cs)")
	runCmd.Flags().String("topic", "", "free-text topic to search for")
	runCmd.Flags().StringSlice("category", nil, "restrict to category, repeatable (default every cs.* class)")
	runCmd.Flags().Int("batch-size", 0, "identifiers per batch (default 50000)")
	runCmd.Flags().Int("workers", 0, "concurrent downloads (default 4)")
	runCmd.Flags().String("papers-dir", "", "directory to save documents in (default papers)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{
		"topic":      "topic",
		"category":   "categories",
		"batch-size": "harvest.batch_size",
		"workers":    "download.workers",
		"papers-dir": "download.papers_dir",
	}); err != nil {
		return err
	}
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}

	session, err := newSession(cmd, cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer session.Close()

	report, err := session.Run(cmd.Context(), harvestSets(cmd, cfg)...)
	if report != nil {
		fmt.Println()
		for _, s := range report.Sets {
			status := "complete"
			if s.Err != nil {
				status = "failed"
			}
			fmt.Printf("%-10s %-8s %d identifiers, %d links, %d saved, %d skipped, %s\n",
				s.Set, status, s.Identifiers, s.Links, s.Downloads.Saved, s.Downloads.Skipped,
				humanize.Bytes(uint64(s.Downloads.Bytes)))
		}
	}
	return err
}
