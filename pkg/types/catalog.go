// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data shared by the stages of the harvesting
// pipeline: identifiers, catalog entries, download links and outcomes, and
// stage configuration.
package types

import (
	"fmt"
	"time"
)

// Identifier is an opaque catalog-assigned token naming one record
// (e.g. "2301.07041" or "cs/0112017").
type Identifier string

// Batch is an ordered group of identifiers used for query construction.
// Batch boundaries carry no meaning beyond chunking.
type Batch []Identifier

// Strings returns the batch as plain strings.
func (b Batch) Strings() []string {
	out := make([]string, len(b))
	for i, id := range b {
		out[i] = string(id)
	}
	return out
}

// CatalogEntry is the parsed representation of one search record. DOI,
// JournalRef and DocumentLink are optional; the rest is informational.
type CatalogEntry struct {
	ID           Identifier `json:"id" yaml:"id"`
	Title        string     `json:"title,omitempty" yaml:"title,omitempty"`
	Authors      []string   `json:"authors,omitempty" yaml:"authors,omitempty"`
	Updated      time.Time  `json:"updated,omitempty" yaml:"updated,omitempty"`
	DOI          string     `json:"doi,omitempty" yaml:"doi,omitempty"`
	JournalRef   string     `json:"journal_ref,omitempty" yaml:"journal_ref,omitempty"`
	DocumentLink string     `json:"document_link,omitempty" yaml:"document_link,omitempty"`
}

// Qualifies reports whether the entry carries a DOI, a journal reference and
// a document link. Only qualifying entries become download links.
func (e CatalogEntry) Qualifies() bool {
	return e.DOI != "" && e.JournalRef != "" && e.DocumentLink != ""
}

// DownloadLink is a resolved document URL. Entry points back at the record
// it came from and is nil for links supplied directly by the user.
type DownloadLink struct {
	URL   string        `json:"url" yaml:"url"`
	Entry *CatalogEntry `json:"entry,omitempty" yaml:"entry,omitempty"`
}

// OutcomeKind tags a DownloadOutcome.
type OutcomeKind string

const (
	OutcomeSaved               OutcomeKind = "saved"
	OutcomeDeclaredUnavailable OutcomeKind = "unavailable"
	OutcomeExhausted           OutcomeKind = "exhausted"
	OutcomeFatal               OutcomeKind = "fatal"
	OutcomeTimedOut            OutcomeKind = "timed_out"
)

// DownloadOutcome is the terminal result for one DownloadLink.
type DownloadOutcome struct {
	Kind OutcomeKind

	// Path is set for OutcomeSaved.
	Path string

	// Last is the final classification label for OutcomeExhausted.
	Last string

	// Err carries the reason for OutcomeFatal and OutcomeTimedOut.
	Err error

	// Attempts counts the fetches made; zero for an idempotent skip.
	Attempts int

	// Skipped is true when the file already existed.
	Skipped bool

	// Size is the number of bytes written by a fresh save.
	Size int64
}

func (o DownloadOutcome) String() string {
	switch o.Kind {
	case OutcomeSaved:
		return fmt.Sprintf("saved %s", o.Path)
	case OutcomeExhausted:
		return fmt.Sprintf("exhausted after %d attempts (last: %s)", o.Attempts, o.Last)
	case OutcomeFatal, OutcomeTimedOut:
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	default:
		return string(o.Kind)
	}
}

// DocumentRecord is the metadata sidecar written next to a saved document.
type DocumentRecord struct {
	URL        string     `json:"url" yaml:"url"`
	Path       string     `json:"path" yaml:"path"`
	ID         Identifier `json:"id,omitempty" yaml:"id,omitempty"`
	Title      string     `json:"title,omitempty" yaml:"title,omitempty"`
	Authors    []string   `json:"authors,omitempty" yaml:"authors,omitempty"`
	DOI        string     `json:"doi,omitempty" yaml:"doi,omitempty"`
	JournalRef string     `json:"journal_ref,omitempty" yaml:"journal_ref,omitempty"`
	Size       int64      `json:"size" yaml:"size"`
	SavedAt    time.Time  `json:"saved_at" yaml:"saved_at"`
}
