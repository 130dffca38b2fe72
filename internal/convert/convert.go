// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns downloaded PDFs into plain text files for the
// section extractor.
package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/arxiv-harvester/internal/logctx"
)

const (
	pdfExt  = ".pdf"
	textExt = ".txt"
)

// Converter transforms a PDF file into text.
type Converter interface {
	Convert(ctx context.Context, pdfPath string) (string, error)
}

// Status is the result of converting one file.
type Status string

const (
	StatusConverted Status = "converted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int

	// Offset counts the PDFs passed over by the offset.
	Offset int
}

// Total returns the number of PDFs processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any PDF failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// TextPath returns the text file written for pdfPath in dstDir.
func TextPath(pdfPath, dstDir string) string {
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	return filepath.Join(dstDir, base+textExt)
}

// ConvertFile converts one PDF into dstDir. An existing text file is kept.
func ConvertFile(ctx context.Context, c Converter, pdfPath, dstDir string, w io.Writer) Status {
	logger := logctx.From(ctx)
	txtPath := TextPath(pdfPath, dstDir)
	name := filepath.Base(txtPath)

	if _, err := os.Stat(txtPath); err == nil {
		fmt.Fprintf(w, "skipped: %s (already exists)\n", name)
		return StatusSkipped
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", name, err)
		return StatusFailed
	}

	text, err := c.Convert(ctx, pdfPath)
	if err != nil {
		logger.Warn("conversion failed", "pdf", pdfPath, "err", err)
		fmt.Fprintf(w, "failed:  %s (%v)\n", name, err)
		return StatusFailed
	}

	tmp := txtPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", name, err)
		return StatusFailed
	}
	if err := os.Rename(tmp, txtPath); err != nil {
		os.Remove(tmp)
		fmt.Fprintf(w, "failed:  %s (%v)\n", name, err)
		return StatusFailed
	}

	logger.Debug("converted", "pdf", pdfPath, "text", txtPath, "chars", len(text))
	fmt.Fprintf(w, "converted: %s\n", name)
	return StatusConverted
}

// ConvertDir converts the PDFs directly inside srcDir, in name order, into
// dstDir. The first offset PDFs are passed over, so an interrupted run can
// resume from a known index. Per-file status lines and a summary go to w.
func ConvertDir(ctx context.Context, c Converter, srcDir, dstDir string, offset int, w io.Writer) (BatchResult, error) {
	if w == nil {
		w = io.Discard
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return BatchResult{}, fmt.Errorf("reading PDF directory %s: %w", srcDir, err)
	}

	var result BatchResult
	index := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), pdfExt) {
			continue
		}
		index++
		if index <= offset {
			result.Offset++
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		switch ConvertFile(ctx, c, filepath.Join(srcDir, entry.Name()), dstDir, w) {
		case StatusConverted:
			result.Converted++
		case StatusSkipped:
			result.Skipped++
		case StatusFailed:
			result.Failed++
		}
	}

	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Skipped, result.Failed, result.Total())
	return result, nil
}
