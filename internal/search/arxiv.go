// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/arxiv-harvester/internal/httputil"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// DefaultBaseURL is the arXiv search endpoint.
const DefaultBaseURL = "http://export.arxiv.org/api/query"

// CSCategories are the forty computer science subject classes.
var CSCategories = []string{
	"cs.AI", "cs.AR", "cs.CC", "cs.CE", "cs.CG", "cs.CL", "cs.CR", "cs.CV", "cs.CY", "cs.DB",
	"cs.DC", "cs.DL", "cs.DM", "cs.DS", "cs.ET", "cs.FL", "cs.GL", "cs.GR", "cs.GT", "cs.HC",
	"cs.IR", "cs.IT", "cs.LG", "cs.LO", "cs.MA", "cs.MM", "cs.MS", "cs.NA", "cs.NE", "cs.NI",
	"cs.OH", "cs.OS", "cs.PF", "cs.PL", "cs.RO", "cs.SC", "cs.SD", "cs.SE", "cs.SI", "cs.SY",
}

// Query holds the search parameters for one resolve session.
type Query struct {
	// Categories restricts results; empty means CSCategories.
	Categories []string

	// Topic is free text matched against all fields.
	Topic string

	// IDs restricts results to a harvested batch. Sent as id_list.
	IDs types.Batch

	// PageSize overrides the resolver's page size when positive.
	PageSize int

	// SortBy and SortOrder default to lastUpdatedDate, descending.
	SortBy    string
	SortOrder string
}

// searchTerms returns the search_query clauses joined by sep. Topic terms
// are query-escaped only for a hand-built URL; form values are encoded once
// by url.Values.
func (q Query) searchTerms(sep string, escape bool) string {
	cats := q.Categories
	if len(cats) == 0 {
		cats = CSCategories
	}
	clauses := make([]string, len(cats))
	for i, c := range cats {
		clauses[i] = "cat:" + c
	}
	expr := "(" + strings.Join(clauses, sep+"OR"+sep) + ")"

	if terms := strings.Fields(q.Topic); len(terms) > 0 {
		if escape {
			for i, t := range terms {
				terms[i] = url.QueryEscape(t)
			}
		}
		expr += sep + "AND" + sep + "all:" + strings.Join(terms, sep)
	}
	return expr
}

func (q Query) sort() (string, string) {
	by, order := q.SortBy, q.SortOrder
	if by == "" {
		by = "lastUpdatedDate"
	}
	if order == "" {
		order = "descending"
	}
	return by, order
}

// Page is one search response after filtering.
type Page struct {
	Index        int
	TotalResults int
	StartIndex   int
	ItemsPerPage int

	// Returned counts the entries in the response before qualification.
	Returned int

	// Entries holds every parsed entry; Links only the qualifying ones.
	Entries []types.CatalogEntry
	Links   []types.DownloadLink

	// Complete is false when the envelope promises more records than the
	// page delivered. An incomplete page is fetched again.
	Complete bool

	// More reports whether the next page should be requested.
	More bool

	// GaveUp is set when retries reached the backoff ceiling.
	GaveUp bool
}

// FetchPage requests one page once, without retries.
func (r *Resolver) FetchPage(ctx context.Context, q Query, index int) (*Page, error) {
	size := r.pageSize(q)
	start := index * size
	by, order := q.sort()

	var (
		resp *httputil.Response
		err  error
	)
	if len(q.IDs) > 0 {
		form := url.Values{
			"search_query": {q.searchTerms(" ", false)},
			"id_list":      {strings.Join(q.IDs.Strings(), ",")},
			"start":        {strconv.Itoa(start)},
			"max_results":  {strconv.Itoa(size)},
			"sortBy":       {by},
			"sortOrder":    {order},
		}
		resp, err = r.HTTP.PostForm(ctx, r.BaseURL, form)
	} else {
		// Built by hand: arXiv rejects percent-encoded colons in search_query.
		rawURL := fmt.Sprintf("%s?search_query=%s&start=%d&max_results=%d&sortBy=%s&sortOrder=%s",
			r.BaseURL, q.searchTerms("+", true), start, size, by, order)
		resp, err = r.HTTP.Get(ctx, rawURL)
	}
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.Status)
	}

	var f arxivFeed
	if err := xml.NewDecoder(bytes.NewReader(resp.Body)).Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}
	if f.TotalResults == nil || f.StartIndex == nil || f.ItemsPerPage == nil {
		return nil, errors.New("arXiv response lacks opensearch totals")
	}

	p := &Page{
		Index:        index,
		TotalResults: *f.TotalResults,
		StartIndex:   *f.StartIndex,
		ItemsPerPage: *f.ItemsPerPage,
		Returned:     len(f.Entries),
	}
	p.Complete = !(p.StartIndex+p.ItemsPerPage <= p.TotalResults && p.Returned < p.ItemsPerPage)
	p.More = p.Returned == size

	for _, e := range f.Entries {
		entry := e.toCatalogEntry()
		p.Entries = append(p.Entries, entry)
	}
	for i := range p.Entries {
		entry := &p.Entries[i]
		if !entry.Qualifies() {
			continue
		}
		p.Links = append(p.Links, types.DownloadLink{
			URL:   MirrorLink(entry.DocumentLink, types.DefaultInteractiveHost, r.MirrorHost),
			Entry: entry,
		})
	}
	return p, nil
}

// MirrorLink routes link through the bulk-access mirror when it points at
// the interactive host. Automated harvesting must stay off the interactive
// front end.
func MirrorLink(link, interactiveHost, mirrorHost string) string {
	u, err := url.Parse(link)
	if err != nil || u.Hostname() != interactiveHost {
		return link
	}
	if port := u.Port(); port != "" {
		u.Host = mirrorHost + ":" + port
	} else {
		u.Host = mirrorHost
	}
	return u.String()
}

// arXiv Atom feed XML structures. The opensearch totals are pointers so a
// missing element can be told apart from zero.

type arxivFeed struct {
	TotalResults *int         `xml:"http://a9.com/-/spec/opensearch/1.1/ totalResults"`
	StartIndex   *int         `xml:"http://a9.com/-/spec/opensearch/1.1/ startIndex"`
	ItemsPerPage *int         `xml:"http://a9.com/-/spec/opensearch/1.1/ itemsPerPage"`
	Entries      []arxivEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type arxivEntry struct {
	ID         string        `xml:"http://www.w3.org/2005/Atom id"`
	Title      string        `xml:"http://www.w3.org/2005/Atom title"`
	Updated    string        `xml:"http://www.w3.org/2005/Atom updated"`
	Authors    []arxivAuthor `xml:"http://www.w3.org/2005/Atom author"`
	Links      []arxivLink   `xml:"http://www.w3.org/2005/Atom link"`
	DOI        string        `xml:"http://arxiv.org/schemas/atom doi"`
	JournalRef string        `xml:"http://arxiv.org/schemas/atom journal_ref"`
}

type arxivAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
	Rel  string `xml:"rel,attr"`
}

func (e arxivEntry) toCatalogEntry() types.CatalogEntry {
	entry := types.CatalogEntry{
		ID:         types.Identifier(extractArxivID(e.ID)),
		Title:      strings.Join(strings.Fields(e.Title), " "),
		DOI:        strings.TrimSpace(e.DOI),
		JournalRef: strings.TrimSpace(e.JournalRef),
	}
	for _, a := range e.Authors {
		entry.Authors = append(entry.Authors, strings.TrimSpace(a.Name))
	}
	for _, l := range e.Links {
		if l.Type == "application/pdf" && strings.TrimSpace(l.Href) != "" {
			entry.DocumentLink = strings.TrimSpace(l.Href)
			break
		}
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Updated)); err == nil {
		entry.Updated = t
	}
	return entry
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(idURL[idx+len(prefix):])

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
