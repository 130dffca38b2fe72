// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

func TestToCSLItem(t *testing.T) {
	e := types.CatalogEntry{
		ID:         "1706.03762",
		Title:      "Attention Is All You Need",
		Authors:    []string{"Ashish Vaswani", "Noam Shazeer"},
		Updated:    time.Date(2023, 8, 2, 0, 0, 0, 0, time.UTC),
		DOI:        "10.48550/arXiv.1706.03762",
		JournalRef: "NeurIPS 2017",
	}

	item := toCSLItem(e, "http://export.arxiv.org/pdf/1706.03762v7")

	if item.Type != "article-journal" {
		t.Errorf("Type = %q, want %q", item.Type, "article-journal")
	}
	if item.ContainerTitle != "NeurIPS 2017" {
		t.Errorf("ContainerTitle = %q, want %q", item.ContainerTitle, "NeurIPS 2017")
	}
	if item.DOI != e.DOI {
		t.Errorf("DOI = %q, want %q", item.DOI, e.DOI)
	}
	if len(item.Author) != 2 {
		t.Fatalf("len(Author) = %d, want 2", len(item.Author))
	}
	if item.Author[0].Family != "Vaswani" || item.Author[0].Given != "Ashish" {
		t.Errorf("Author[0] = %+v", item.Author[0])
	}
	if item.Issued == nil || item.Issued.DateParts[0][0] != 2023 {
		t.Errorf("Issued year should be 2023")
	}
}

func TestParseAuthorName(t *testing.T) {
	tests := []struct {
		in   string
		want CSLName
	}{
		{"Ada Lovelace", CSLName{Given: "Ada", Family: "Lovelace"}},
		{"Jean-Paul de la Tour", CSLName{Given: "Jean-Paul de la", Family: "Tour"}},
		{"Plato", CSLName{Literal: "Plato"}},
		{"  ", CSLName{}},
	}
	for _, tt := range tests {
		if got := parseAuthorName(tt.in); got != tt.want {
			t.Errorf("parseAuthorName(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestFormatCSLSkipsBareLinks(t *testing.T) {
	links := []types.DownloadLink{
		{URL: "http://export.arxiv.org/pdf/a", Entry: &types.CatalogEntry{ID: "a", Title: "A"}},
		{URL: "http://example.org/b.pdf"},
	}
	var buf bytes.Buffer
	if err := FormatCSL(links, &buf); err != nil {
		t.Fatalf("FormatCSL: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "id: a") {
		t.Errorf("output missing entry a:\n%s", out)
	}
	if strings.Contains(out, "b.pdf") {
		t.Errorf("bare link should be skipped:\n%s", out)
	}
}
