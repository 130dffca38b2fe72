// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package oai harvests record identifiers from an OAI-PMH repository.
//
// Client speaks the ListRecords verb, Cursor turns its pages into a
// record-at-a-time listing, Walker applies the retry rules on top of the
// cursor, and Batches groups the identifiers for query construction.
package oai

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/arxiv-harvester/internal/classify"
	"github.com/pdiddy/arxiv-harvester/internal/httputil"
)

// DefaultBaseURL is the arXiv OAI-PMH endpoint.
const DefaultBaseURL = "http://export.arxiv.org/oai2"

// Record is one harvested record.
type Record struct {
	// Header is the OAI identifier (e.g. "oai:arXiv.org:0704.0001").
	Header string

	// IDs are the catalog identifiers declared in the record's metadata.
	IDs []string

	Title   string
	Deleted bool
}

// Page is one ListRecords response. An empty Token marks the last page.
type Page struct {
	Records          []Record
	Token            string
	CompleteListSize int
}

// Client issues OAI-PMH requests.
type Client struct {
	HTTP    *httputil.Client
	BaseURL string
}

// NewClient returns a Client for baseURL, or DefaultBaseURL when empty.
func NewClient(c *httputil.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{HTTP: c, BaseURL: baseURL}
}

// ListRecords opens a listing for the given metadata format and set.
func (c *Client) ListRecords(ctx context.Context, prefix, set string) (*Page, error) {
	params := url.Values{"verb": {"ListRecords"}, "metadataPrefix": {prefix}}
	if set != "" {
		params.Set("set", set)
	}
	return c.fetch(ctx, params)
}

// Resume fetches the page named by a resumption token.
func (c *Client) Resume(ctx context.Context, token string) (*Page, error) {
	return c.fetch(ctx, url.Values{"verb": {"ListRecords"}, "resumptionToken": {token}})
}

func (c *Client) fetch(ctx context.Context, params url.Values) (*Page, error) {
	resp, err := c.HTTP.Get(ctx, c.BaseURL+"?"+params.Encode())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Operation: "ListRecords", Err: err}
	}

	if resp.Status == http.StatusServiceUnavailable || resp.Status == http.StatusTooManyRequests {
		te := &ThrottleError{Status: resp.Status}
		if wait, ok := classify.RetryAfter(resp.Header); ok {
			te.Wait = wait
		} else if wait, ok := classify.RefreshDelay(resp.Body); ok {
			te.Wait = wait
		}
		return nil, te
	}

	if resp.Status != http.StatusOK {
		switch result := classify.Classify(resp.Status, resp.Body); result.Kind {
		case classify.ThrottleRequest:
			return nil, &ThrottleError{Status: resp.Status, Wait: result.Wait}
		case classify.Malformed:
			return nil, &ProtocolError{
				Code:    fmt.Sprintf("http-%d", resp.Status),
				Message: httputil.Snippet(resp.Body, 200),
			}
		}
		return nil, &TransportError{
			Operation: "ListRecords",
			Status:    resp.Status,
			Err:       errors.New(httputil.Snippet(resp.Body, 200)),
		}
	}

	var env envelope
	if err := xml.NewDecoder(bytes.NewReader(resp.Body)).Decode(&env); err != nil {
		return nil, &TransportError{Operation: "ListRecords", Status: resp.Status, Err: fmt.Errorf("parsing response: %w", err)}
	}
	if env.Error != nil {
		if env.Error.Code == "noRecordsMatch" {
			return &Page{}, nil
		}
		return nil, &ProtocolError{Code: env.Error.Code, Message: strings.TrimSpace(env.Error.Message)}
	}

	page := &Page{
		Token:            strings.TrimSpace(env.List.Token.Value),
		CompleteListSize: env.List.Token.CompleteListSize,
	}
	for _, r := range env.List.Records {
		rec := Record{
			Header:  strings.TrimSpace(r.Header.Identifier),
			Title:   strings.TrimSpace(r.Metadata.Format.Title),
			Deleted: r.Header.Status == "deleted",
		}
		for _, id := range r.Metadata.Format.IDs {
			if id = strings.TrimSpace(id); id != "" {
				rec.IDs = append(rec.IDs, id)
			}
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

// OAI-PMH response XML structures. Element names match regardless of
// namespace, so arXivRaw, arXiv and similar formats all decode.
type envelope struct {
	Error *oaiError   `xml:"error"`
	List  listRecords `xml:"ListRecords"`
}

type oaiError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

type listRecords struct {
	Records []oaiRecord `xml:"record"`
	Token   struct {
		Value            string `xml:",chardata"`
		CompleteListSize int    `xml:"completeListSize,attr"`
	} `xml:"resumptionToken"`
}

type oaiRecord struct {
	Header struct {
		Identifier string `xml:"identifier"`
		Status     string `xml:"status,attr"`
	} `xml:"header"`
	Metadata struct {
		Format struct {
			IDs   []string `xml:"id"`
			Title string   `xml:"title"`
		} `xml:",any"`
	} `xml:"metadata"`
}
