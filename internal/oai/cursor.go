// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oai

import "context"

// Source yields records one at a time. Next returns ErrEndOfListing after
// the last record. A failed Next leaves the position unchanged, so calling
// it again retries the same request.
type Source interface {
	Next(ctx context.Context) (Record, error)
}

// Cursor is an open ListRecords listing for one metadata format and set.
// There is no page addressing: the only way forward is the resumption token
// returned with each page, and the only way back is a new cursor.
type Cursor struct {
	client *Client
	prefix string
	set    string

	started  bool
	finished bool
	token    string
	buf      []Record
	pages    int
}

// Open returns a cursor positioned before the first record. No request is
// made until the first call to Next.
func (c *Client) Open(prefix, set string) *Cursor {
	return &Cursor{client: c, prefix: prefix, set: set}
}

// Next returns the next record.
func (c *Cursor) Next(ctx context.Context) (Record, error) {
	for len(c.buf) == 0 {
		if c.finished {
			return Record{}, ErrEndOfListing
		}

		var (
			page *Page
			err  error
		)
		if !c.started {
			page, err = c.client.ListRecords(ctx, c.prefix, c.set)
		} else {
			page, err = c.client.Resume(ctx, c.token)
		}
		if err != nil {
			return Record{}, err
		}

		c.started = true
		c.pages++
		c.buf = page.Records
		c.token = page.Token
		if c.token == "" {
			c.finished = true
		}
	}

	rec := c.buf[0]
	c.buf = c.buf[1:]
	return rec, nil
}

// Pages returns the number of pages fetched so far.
func (c *Cursor) Pages() int {
	return c.pages
}
