// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-harvester/internal/convert"
	"github.com/pdiddy/arxiv-harvester/internal/logctx"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert downloaded PDFs to plain text",
	Long: `Convert runs pdftotext over every PDF in --src, in file name order, and
writes one .txt file per document to --dst. Documents already converted are
skipped. --offset skips the first N PDFs so an interrupted run can resume.

pdftotext is used from the host when installed, otherwise from a poppler
container image through docker or podman.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().String("src", "", "directory of PDFs (default the papers directory)")
	convertCmd.Flags().String("dst", "text", "directory for text files")
	convertCmd.Flags().Int("offset", 0, "skip the first N PDFs")
	convertCmd.Flags().Bool("layout", false, "keep the physical page layout")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, _ := cmd.Flags().GetString("src")
	if src == "" {
		src = viper.GetString("download.papers_dir")
	}
	dst, _ := cmd.Flags().GetString("dst")
	offset, _ := cmd.Flags().GetInt("offset")
	layout, _ := cmd.Flags().GetBool("layout")

	converter, err := convert.NewPdftotext(ctx, layout)
	if err != nil {
		return err
	}
	logctx.From(ctx).Info("converting", "src", src, "dst", dst, "backend", converter.Backend())

	result, err := convert.ConvertDir(ctx, converter, src, dst, offset, os.Stdout)
	if err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d of %d conversions failed", result.Failed, result.Total())
	}
	return nil
}
