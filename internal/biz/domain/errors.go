package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError is an outbound platform or summarizer API failure. StatusCode 0
// means the request never produced an HTTP response (timeout, connection
// reset) and is treated as transient.
type APIError struct {
	Platform   Platform
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Platform, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether a retry has a chance of succeeding.
// Rate limiting and server-side failures are transient; auth and
// malformed-request failures are not.
func (e *APIError) Transient() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// TranscriptNotFoundError means the platform reports no transcript for a
// recording. It is a terminal business outcome for that meeting, not an
// operational error, and is never retried.
type TranscriptNotFoundError struct {
	MeetingID string
}

func (e *TranscriptNotFoundError) Error() string {
	return fmt.Sprintf("no transcript for meeting %s", e.MeetingID)
}

// SummaryError is a terminal per-meeting summarization failure, either an
// exhausted API call or an input rejected before calling the API.
type SummaryError struct {
	Reason string
	Err    error
}

func (e *SummaryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("summary generation failed: %s: %v", e.Reason, e.Err)
	}
	return "summary generation failed: " + e.Reason
}

func (e *SummaryError) Unwrap() error { return e.Err }

// StoreError is a state-store failure. It is the only error class that aborts
// a whole run.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("state store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsTransient is the retry classification used for all outbound calls.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
