// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-harvester/internal/acquire"
	"github.com/pdiddy/arxiv-harvester/internal/search"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

var downloadCmd = &cobra.Command{
	Use:   "download [identifiers or URLs...]",
	Short: "Download PDFs with bounded concurrency and backoff",
	Long: `Download fetches documents by arXiv identifier or URL, or every link in a
file saved by resolve --out. Links on the interactive host are rerouted to the
bulk mirror.

Documents are saved under --papers-dir (in a subdirectory named after --topic
when set) with a YAML sidecar of catalog metadata. Files already present are
skipped without a request.

Each link gets up to 20 attempts. Throttle pages are honored for the time
they declare; other failures back off along a Fibonacci sequence from 1s.
Pages declaring the document unavailable end the link at once.

Exits non-zero when any link failed fatally or timed out.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().String("links-file", "", "download every link in a saved link file")
	downloadCmd.Flags().String("topic", "", "save into a subdirectory named after the topic")
	downloadCmd.Flags().Int("workers", 0, "concurrent downloads (default 4)")
	downloadCmd.Flags().String("papers-dir", "", "directory to save documents in (default papers)")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{
		"topic":      "topic",
		"workers":    "download.workers",
		"papers-dir": "download.papers_dir",
	}); err != nil {
		return err
	}

	links, err := downloadTargets(cmd, args)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return errors.New("nothing to download; pass identifiers, URLs or --links-file")
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

	result := session.Engine().DownloadAll(cmd.Context(), links, os.Stdout)
	if result.HasFailures() {
		return fmt.Errorf("%d of %d downloads failed", result.Failed+result.TimedOut, result.Total())
	}
	return nil
}

// downloadTargets collects links from --links-file followed by the
// positional arguments.
func downloadTargets(cmd *cobra.Command, args []string) ([]types.DownloadLink, error) {
	var links []types.DownloadLink
	if path, _ := cmd.Flags().GetString("links-file"); path != "" {
		lf, err := search.ReadLinkFile(path)
		if err != nil {
			return nil, err
		}
		links = append(links, lf.Links...)
	}
	for _, arg := range args {
		link, err := acquire.ParseLink(arg)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}
