// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-harvester/internal/acquire"
	"github.com/pdiddy/arxiv-harvester/internal/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status [identifiers or URLs...]",
	Short: "Report harvest progress from the ledger",
	Long: `Status summarizes the ledger: identifiers harvested per set, download
outcomes by kind, bytes saved and recent sessions. --failures lists the most
recent links that were exhausted, failed fatally or timed out.

Given identifiers or URLs, status instead shows the recorded outcome of each
link and, for saved documents, the catalog metadata kept beside the file.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("format", "text", "output format: text, yaml or json")
	statusCmd.Flags().Int("failures", 0, "also list the N most recent failed links")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := viper.GetString("ledger_path")
	if path == "" || path == disabled {
		return errors.New("the ledger is disabled")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no ledger at %s: %w", path, err)
	}

	l, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := cmd.Context()
	if len(args) > 0 {
		return describeLinks(ctx, l, args, os.Stdout)
	}

	summary, err := l.Summary(ctx)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text":
		ledger.FormatText(summary, os.Stdout)
	case "yaml":
		if err := ledger.FormatYAML(summary, os.Stdout); err != nil {
			return err
		}
	case "json":
		if err := ledger.FormatJSON(summary, os.Stdout); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	n, _ := cmd.Flags().GetInt("failures")
	if n <= 0 {
		return nil
	}
	failures, err := l.Failures(ctx, n)
	if err != nil {
		return err
	}
	fmt.Println()
	if len(failures) == 0 {
		fmt.Println("No failed links.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tATTEMPTS\tUPDATED\tURL\tREASON")
	for _, f := range failures {
		reason := f.Error
		if reason == "" {
			reason = f.Last
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", f.Kind, f.Attempts, humanize.Time(f.UpdatedAt), f.URL, reason)
	}
	return tw.Flush()
}

// describeLinks prints the recorded outcome of each target. Targets without
// an outcome are reported and do not stop the listing.
func describeLinks(ctx context.Context, l *ledger.Ledger, targets []string, w io.Writer) error {
	var missing int
	for i, target := range targets {
		if i > 0 {
			fmt.Fprintln(w)
		}
		link, err := acquire.ParseLink(target)
		if err != nil {
			return err
		}
		rec, err := l.Outcome(ctx, link.URL)
		if errors.Is(err, ledger.ErrNotFound) {
			fmt.Fprintf(w, "%s: no recorded outcome\n", link.URL)
			missing++
			continue
		}
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "URL\t%s\n", rec.URL)
		fmt.Fprintf(tw, "Outcome\t%s\n", rec.Kind)
		fmt.Fprintf(tw, "Attempts\t%d\n", rec.Attempts)
		fmt.Fprintf(tw, "Updated\t%s\n", humanize.Time(rec.UpdatedAt))
		if rec.Last != "" {
			fmt.Fprintf(tw, "Last\t%s\n", rec.Last)
		}
		if rec.Error != "" {
			fmt.Fprintf(tw, "Error\t%s\n", rec.Error)
		}
		if rec.Path != "" {
			fmt.Fprintf(tw, "Path\t%s\n", rec.Path)
			if doc, err := acquire.ReadMetadata(acquire.SidecarPath(rec.Path)); err == nil {
				fmt.Fprintf(tw, "Title\t%s\n", doc.Title)
				fmt.Fprintf(tw, "Authors\t%s\n", strings.Join(doc.Authors, ", "))
				fmt.Fprintf(tw, "DOI\t%s\n", doc.DOI)
				fmt.Fprintf(tw, "Journal\t%s\n", doc.JournalRef)
				fmt.Fprintf(tw, "Size\t%s\n", humanize.Bytes(uint64(doc.Size)))
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if missing == len(targets) {
		return fmt.Errorf("no outcome recorded for any of %d links", len(targets))
	}
	return nil
}
