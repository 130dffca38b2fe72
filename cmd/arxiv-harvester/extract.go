// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-harvester/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract the background section from converted text",
	Long: `Extract reads every .txt file in --src and writes the text between a
numbered BACKGROUND heading and the heading that follows it to the same
relative path under --dst. Headings may be numbered with digits or roman
numerals. Files without such a section produce no output.

Extracts newer than their source are skipped.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("src", "text", "directory of converted text files")
	extractCmd.Flags().String("dst", "background", "directory for extracted sections")
	extractCmd.Flags().Bool("recursive", false, "descend into subdirectories of --src")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	src, _ := cmd.Flags().GetString("src")
	dst, _ := cmd.Flags().GetString("dst")
	recursive, _ := cmd.Flags().GetBool("recursive")

	summary, err := extract.New().ExtractAll(cmd.Context(), src, dst, recursive, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Total())
	}
	return nil
}
