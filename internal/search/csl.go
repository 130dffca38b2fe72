package search

import (
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// CSLItem represents a bibliographic entry in CSL (Citation Style Language)
// format. The field names and structure follow the CSL-JSON/CSL-YAML schema
// so that output is consumable by Pandoc and reference managers.
type CSLItem struct {
	ID             string    `yaml:"id"`
	Type           string    `yaml:"type"`
	Title          string    `yaml:"title"`
	Author         []CSLName `yaml:"author,omitempty"`
	Issued         *CSLDate  `yaml:"issued,omitempty"`
	ContainerTitle string    `yaml:"container-title,omitempty"`
	DOI            string    `yaml:"DOI,omitempty"`
	URL            string    `yaml:"URL,omitempty"`
}

// CSLName represents a person's name in CSL format.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate represents a date in CSL format using date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// FormatCSL writes the entries behind links as a CSL-YAML list to w. Links
// without an entry are skipped.
func FormatCSL(links []types.DownloadLink, w io.Writer) error {
	items := make([]CSLItem, 0, len(links))
	for _, l := range links {
		if l.Entry == nil {
			continue
		}
		items = append(items, toCSLItem(*l.Entry, l.URL))
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

// toCSLItem converts a catalog entry to a CSLItem. The journal reference is
// the published venue, so it fills container-title.
func toCSLItem(e types.CatalogEntry, link string) CSLItem {
	item := CSLItem{
		ID:             string(e.ID),
		Type:           "article-journal",
		Title:          e.Title,
		ContainerTitle: e.JournalRef,
		DOI:            e.DOI,
		URL:            link,
	}

	for _, a := range e.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}

	if !e.Updated.IsZero() {
		item.Issued = &CSLDate{
			DateParts: [][]int{{e.Updated.Year(), int(e.Updated.Month()), e.Updated.Day()}},
		}
	}
	return item
}

// parseAuthorName splits a full name string into CSL family/given parts.
// It splits on the last space: everything before is given, the last token
// is family. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}
