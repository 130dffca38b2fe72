// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"go.yaml.in/yaml/v3"
)

// SessionSummary describes one harvest session.
type SessionSummary struct {
	ID         int64  `json:"id" yaml:"id"`
	Set        string `json:"set" yaml:"set"`
	Topic      string `json:"topic,omitempty" yaml:"topic,omitempty"`
	StartedAt  string `json:"started_at" yaml:"started_at"`
	FinishedAt string `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Status     string `json:"status" yaml:"status"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary holds ledger-wide counters.
type Summary struct {
	Identifiers map[string]int   `json:"identifiers" yaml:"identifiers"`
	Outcomes    map[string]int   `json:"outcomes" yaml:"outcomes"`
	SavedBytes  int64            `json:"saved_bytes" yaml:"saved_bytes"`
	Sessions    []SessionSummary `json:"sessions" yaml:"sessions"`
}

// sessionLimit bounds the sessions listed in a summary.
const sessionLimit = 10

// Summary counts identifiers per set and outcomes per kind, and lists the
// most recent sessions.
func (l *Ledger) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{
		Identifiers: make(map[string]int),
		Outcomes:    make(map[string]int),
	}

	if err := l.countInto(ctx, `SELECT set_spec, count(*) FROM identifiers GROUP BY set_spec`, s.Identifiers); err != nil {
		return nil, fmt.Errorf("counting identifiers: %w", err)
	}
	if err := l.countInto(ctx, `SELECT kind, count(*) FROM outcomes GROUP BY kind`, s.Outcomes); err != nil {
		return nil, fmt.Errorf("counting outcomes: %w", err)
	}
	if err := l.db.QueryRowContext(ctx, `SELECT COALESCE(sum(size), 0) FROM outcomes`).Scan(&s.SavedBytes); err != nil {
		return nil, fmt.Errorf("summing sizes: %w", err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, set_spec, COALESCE(topic, ''), started_at, COALESCE(finished_at, ''), status, COALESCE(error, '')
		 FROM sessions ORDER BY id DESC LIMIT ?`, sessionLimit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.ID, &ss.Set, &ss.Topic, &ss.StartedAt, &ss.FinishedAt, &ss.Status, &ss.Error); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		s.Sessions = append(s.Sessions, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func (l *Ledger) countInto(ctx context.Context, query string, into map[string]int) error {
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

// FormatText writes the summary as human-readable text to w.
func FormatText(s *Summary, w io.Writer) {
	fmt.Fprintln(w, "Identifiers:")
	if len(s.Identifiers) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, k := range sortedKeys(s.Identifiers) {
		fmt.Fprintf(w, "  %-12s %d\n", k, s.Identifiers[k])
	}

	fmt.Fprintln(w, "Downloads:")
	if len(s.Outcomes) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, k := range sortedKeys(s.Outcomes) {
		fmt.Fprintf(w, "  %-12s %d\n", k, s.Outcomes[k])
	}
	fmt.Fprintf(w, "  %-12s %s\n", "bytes", humanize.Bytes(uint64(s.SavedBytes)))

	if len(s.Sessions) > 0 {
		fmt.Fprintln(w, "Recent sessions:")
		for _, ss := range s.Sessions {
			line := fmt.Sprintf("  #%d %s %s %s", ss.ID, ss.Set, ss.StartedAt, ss.Status)
			if ss.Error != "" {
				line += " (" + strings.TrimSpace(ss.Error) + ")"
			}
			fmt.Fprintln(w, line)
		}
	}
}

// FormatYAML writes the summary as YAML to w.
func FormatYAML(s *Summary, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(s)
}

// FormatJSON writes the summary as indented JSON to w.
func FormatJSON(s *Summary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
