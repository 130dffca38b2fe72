// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pdiddy/arxiv-harvester/internal/container"
)

const (
	binPdftotext = "pdftotext"

	// ImagePoppler provides pdftotext when the host lacks it.
	ImagePoppler = "minidocks/poppler:latest"
)

// pageBreak separates pages in pdftotext output.
const pageBreak = "\f"

// Pdftotext converts PDFs with the poppler pdftotext tool, either from the
// host PATH or inside a container.
type Pdftotext struct {
	exec    container.Executor
	runtime container.Runtime
	layout  bool
}

// NewPdftotext finds pdftotext on the host and falls back to the poppler
// image in a container runtime.
func NewPdftotext(ctx context.Context, layout bool) (*Pdftotext, error) {
	return newPdftotext(ctx, container.OSExecutor{}, layout)
}

func newPdftotext(ctx context.Context, exec container.Executor, layout bool) (*Pdftotext, error) {
	if _, err := exec.LookPath(binPdftotext); err == nil {
		return &Pdftotext{exec: exec, layout: layout}, nil
	}

	rt, err := container.Detect(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("%s not on PATH: %w", binPdftotext, err)
	}
	if err := rt.ImageExists(ctx, ImagePoppler); err != nil {
		return nil, fmt.Errorf("%s not on PATH and no poppler image: %w", binPdftotext, err)
	}
	return &Pdftotext{exec: exec, runtime: rt, layout: layout}, nil
}

// Backend names where conversion runs: "host" or the container runtime.
func (p *Pdftotext) Backend() string {
	if p.runtime != nil {
		return p.runtime.Name()
	}
	return "host"
}

// Convert returns the text of pdfPath with pages separated by blank lines.
func (p *Pdftotext) Convert(ctx context.Context, pdfPath string) (string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	args := []string{"-enc", "UTF-8"}
	if p.layout {
		args = append(args, "-layout")
	}
	args = append(args, "-", "-")

	var out bytes.Buffer
	if p.runtime != nil {
		err = p.runtime.Run(ctx, ImagePoppler, append([]string{binPdftotext}, args...), f, &out)
	} else {
		err = p.exec.RunPiped(ctx, binPdftotext, args, f, &out)
	}
	if err != nil {
		return "", fmt.Errorf("converting %s: %w", pdfPath, err)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("%s produced no text for %s", binPdftotext, pdfPath)
	}
	return joinPages(out.String()), nil
}

// joinPages replaces form feeds between pages with blank lines.
func joinPages(raw string) string {
	pages := strings.Split(strings.TrimRight(raw, pageBreak), pageBreak)
	return strings.Join(pages, "\n\n")
}
