// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oai

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEndOfListing is returned by Cursor.Next once the last page is drained.
	ErrEndOfListing = errors.New("oai: end of listing")

	// ErrDone is returned by Walker.Next after the listing has ended.
	ErrDone = errors.New("oai: harvest done")

	// ErrExhausted is returned when throttle backoff reaches the ceiling.
	ErrExhausted = errors.New("oai: backoff ceiling reached")
)

// ThrottleError reports that the repository asked the client to wait. Wait
// is zero when the response did not say for how long.
type ThrottleError struct {
	Status int
	Wait   time.Duration
}

func (e *ThrottleError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("repository throttled request (HTTP %d), retry in %v", e.Status, e.Wait)
	}
	return fmt.Sprintf("repository throttled request (HTTP %d)", e.Status)
}

// TransportError represents network failures, unexpected statuses and
// unreadable responses. These are retried with backoff.
type TransportError struct {
	Operation string
	Status    int // 0 for non-HTTP errors
	Err       error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transport error during %s (HTTP %d): %v", e.Operation, e.Status, e.Err)
	}
	return fmt.Sprintf("transport error during %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is an OAI-PMH error response or an access denial. It is
// never retried.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("OAI-PMH error %s: %s", e.Code, e.Message)
}
