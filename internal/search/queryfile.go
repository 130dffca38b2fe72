// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// LinkFile is the on-disk representation of a resolve session: the query
// and the links it produced. The download stage can start from a saved file
// without querying the catalog again.
type LinkFile struct {
	Query   QueryParams          `yaml:"query"`
	Links   []types.DownloadLink `yaml:"links"`
	Summary LinkSummary          `yaml:"summary"`
}

// QueryParams stores the query parameters in a serializable form.
type QueryParams struct {
	Categories []string `yaml:"categories,omitempty"`
	Topic      string   `yaml:"topic,omitempty"`
	IDs        []string `yaml:"ids,omitempty"`
	PageSize   int      `yaml:"page_size,omitempty"`
}

// LinkSummary stores result statistics and a timestamp.
type LinkSummary struct {
	Total     int       `yaml:"total"`
	Timestamp time.Time `yaml:"timestamp"`
}

// WriteLinkFile saves the query and its links to a YAML file.
func WriteLinkFile(path string, q Query, links []types.DownloadLink) error {
	lf := LinkFile{
		Query: QueryParams{
			Categories: q.Categories,
			Topic:      q.Topic,
			IDs:        q.IDs.Strings(),
			PageSize:   q.PageSize,
		},
		Links: links,
		Summary: LinkSummary{
			Total:     len(links),
			Timestamp: time.Now().UTC(),
		},
	}

	data, err := yaml.Marshal(&lf)
	if err != nil {
		return fmt.Errorf("marshaling link file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadLinkFile loads a previously saved link file from disk.
func ReadLinkFile(path string) (*LinkFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading link file: %w", err)
	}
	var lf LinkFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parsing link file: %w", err)
	}
	return &lf, nil
}

// ToQuery converts stored QueryParams back into a Query.
func (p QueryParams) ToQuery() Query {
	q := Query{
		Categories: p.Categories,
		Topic:      p.Topic,
		PageSize:   p.PageSize,
	}
	for _, id := range p.IDs {
		q.IDs = append(q.IDs, types.Identifier(id))
	}
	return q
}
