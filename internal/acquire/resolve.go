// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// IdentifierType classifies a user-supplied download target.
type IdentifierType int

const (
	TypeUnknown IdentifierType = iota
	TypeArxiv
	TypeURL
)

func (t IdentifierType) String() string {
	switch t {
	case TypeArxiv:
		return "arxiv"
	case TypeURL:
		return "url"
	default:
		return "unknown"
	}
}

// arxivPDFBase is the mirror endpoint for bare identifiers. Declared as a
// var so tests can substitute an httptest server.
var arxivPDFBase = "http://" + types.DefaultMirrorHost + "/pdf/"

// arxivPattern matches new-style and old-style arXiv IDs with an optional
// "arXiv:" prefix and version: "2301.07041", "arXiv:2301.07041v2",
// "cs/0112017".
var arxivPattern = regexp.MustCompile(`^(?:arXiv:)?(\d{4}\.\d{4,5}(?:v\d+)?|[a-z-]+(?:\.[A-Z]{2})?/\d{7}(?:v\d+)?)$`)

// Classify determines the identifier type and returns the normalized form.
// For arXiv, it strips the optional "arXiv:" prefix.
func Classify(identifier string) (IdentifierType, string) {
	identifier = strings.TrimSpace(identifier)

	if m := arxivPattern.FindStringSubmatch(identifier); m != nil {
		return TypeArxiv, m[1]
	}

	if u, err := url.Parse(identifier); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return TypeURL, identifier
	}

	return TypeUnknown, identifier
}

// ParseLink turns an arXiv identifier or a document URL into a link.
// Identifiers resolve to the bulk mirror; URLs on the interactive host are
// rerouted there too.
func ParseLink(identifier string) (types.DownloadLink, error) {
	idType, normalized := Classify(identifier)
	switch idType {
	case TypeArxiv:
		return types.DownloadLink{
			URL:   arxivPDFBase + normalized,
			Entry: &types.CatalogEntry{ID: types.Identifier(normalized)},
		}, nil
	case TypeURL:
		u, _ := url.Parse(normalized)
		if u.Hostname() == types.DefaultInteractiveHost {
			u.Host = types.DefaultMirrorHost
		}
		return types.DownloadLink{URL: u.String()}, nil
	default:
		return types.DownloadLink{}, fmt.Errorf("unrecognized identifier format: %q", identifier)
	}
}

var canonicalReplacer = strings.NewReplacer(".", "_", "/", "_")

// Canonical returns the file name a URL is saved under: the URL without its
// scheme, with dots and slashes replaced by underscores, plus ".pdf". Two
// links share a file exactly when their URLs match after the scheme.
func Canonical(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rawURL = rawURL[i+len("://"):]
	}
	return canonicalReplacer.Replace(rawURL) + ".pdf"
}

// TopicDir returns the directory documents for topic are saved in. An empty
// topic saves directly under base.
func TopicDir(base, topic string) string {
	if topic == "" {
		return base
	}
	return filepath.Join(base, url.QueryEscape(topic))
}
