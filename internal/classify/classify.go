// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify sorts raw catalog responses into the classes the
// harvest and download stages act on. A throttle page, a "no document for
// this record" page and an outage all arrive as small HTML documents; the
// classifier tells them apart.
package classify

import (
	"bytes"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Kind is the class assigned to a response.
type Kind int

const (
	Unknown Kind = iota
	ValidDocument
	DeclaredUnavailable
	ThrottleRequest
	Malformed
)

func (k Kind) String() string {
	switch k {
	case ValidDocument:
		return "valid-document"
	case DeclaredUnavailable:
		return "declared-unavailable"
	case ThrottleRequest:
		return "throttle-request"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// DefaultRefresh is the wait used when a refresh directive carries no
// explicit duration.
const DefaultRefresh = 10 * time.Second

// MaxWait caps a server-declared wait at the backoff ceiling.
const MaxWait = 18000 * time.Second

// unavailablePrefix starts the title of the catalog's "no document" page.
const unavailablePrefix = "No PDF"

var (
	documentMagic = []byte("%PDF")
	byteOrderMark = []byte{0xef, 0xbb, 0xbf}
	retryAfterRe  = regexp.MustCompile(`(?i)retry after (\d+) seconds`)
	leadingNumRe  = regexp.MustCompile(`^\s*(\d+)`)
)

// Result is the classification of one response. Wait is set for
// ThrottleRequest.
type Result struct {
	Kind Kind
	Wait time.Duration
}

func (r Result) String() string {
	if r.Kind == ThrottleRequest {
		return r.Kind.String() + "(" + r.Wait.String() + ")"
	}
	return r.Kind.String()
}

// hardClientErrors are statuses that will not change on retry.
var hardClientErrors = map[int]bool{
	http.StatusBadRequest:       true,
	http.StatusUnauthorized:     true,
	http.StatusForbidden:        true,
	http.StatusMethodNotAllowed: true,
}

// Classify assigns a class to a response body and its transport status.
func Classify(status int, body []byte) Result {
	body = StripBOM(body)

	if hardClientErrors[status] {
		return Result{Kind: Malformed}
	}
	if IsDocument(body) {
		return Result{Kind: ValidDocument}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Result{Kind: Unknown}
	}
	if declaresUnavailable(doc) {
		return Result{Kind: DeclaredUnavailable}
	}
	if wait, ok := refreshDelay(doc); ok {
		return Result{Kind: ThrottleRequest, Wait: wait}
	}
	return Result{Kind: Unknown}
}

// StripBOM trims surrounding whitespace and a leading UTF-8 byte order mark.
func StripBOM(body []byte) []byte {
	body = bytes.TrimSpace(body)
	return bytes.TrimPrefix(body, byteOrderMark)
}

// IsDocument reports whether body starts with the document magic marker.
func IsDocument(body []byte) bool {
	return bytes.HasPrefix(body, documentMagic)
}

// RefreshDelay reports the wait requested by a throttle page, if any.
func RefreshDelay(body []byte) (time.Duration, bool) {
	body = StripBOM(body)
	if len(body) == 0 || IsDocument(body) {
		return 0, false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, false
	}
	return refreshDelay(doc)
}

// RetryAfter parses an HTTP Retry-After header given in seconds.
func RetryAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	return seconds(v)
}

// seconds converts a declared number of seconds, capped at MaxWait.
func seconds(digits string) (time.Duration, bool) {
	n, err := strconv.ParseInt(digits, 10, 64)
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(digits, "-") {
		return MaxWait, true
	}
	if err != nil || n < 0 {
		return 0, false
	}
	if n > int64(MaxWait/time.Second) {
		return MaxWait, true
	}
	return time.Duration(n) * time.Second, true
}

func declaresUnavailable(doc *goquery.Document) bool {
	title := strings.TrimSpace(doc.Find("head title").First().Text())
	return strings.HasPrefix(title, unavailablePrefix)
}

func refreshDelay(doc *goquery.Document) (time.Duration, bool) {
	var (
		wait  time.Duration
		found bool
	)
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		equiv, _ := s.Attr("http-equiv")
		if !strings.EqualFold(equiv, "refresh") {
			return true
		}
		found = true
		wait = DefaultRefresh
		content, _ := s.Attr("content")
		if m := leadingNumRe.FindStringSubmatch(content); m != nil {
			if d, ok := seconds(m[1]); ok {
				wait = d
			}
		}
		return false
	})
	if found {
		return wait, true
	}

	if m := retryAfterRe.FindStringSubmatch(doc.Text()); m != nil {
		if d, ok := seconds(m[1]); ok {
			return d, true
		}
	}
	return 0, false
}
