// Package ratelimit gates outbound calls per external service class.
// Acquisition blocks until a slot is free; backpressure is latency, never a
// dropped request.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket sized to a requests-per-interval budget. Safe for
// concurrent acquisition.
type Limiter struct {
	name string
	rl   *rate.Limiter
}

// New builds a limiter allowing requests calls per interval, with a burst of
// the full budget so a quiet service can absorb a spike up to its budget.
func New(name string, requests int, per time.Duration) *Limiter {
	if requests < 1 {
		requests = 1
	}
	if per <= 0 {
		per = time.Second
	}
	return &Limiter{
		name: name,
		rl:   rate.NewLimiter(rate.Limit(float64(requests)/per.Seconds()), requests),
	}
}

// Wait blocks until a slot is available or ctx is done. A nil limiter never
// blocks, so optional service classes degrade to unlimited.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.rl.Wait(ctx)
}

func (l *Limiter) Name() string {
	if l == nil {
		return "none"
	}
	return l.name
}

// Set holds one limiter per external service class. The split mirrors the
// platforms' published budgets: Zoom's recording endpoints are limited far
// tighter than its general API, so they get their own bucket.
type Set struct {
	TeamsGeneral  *Limiter
	ZoomRecording *Limiter
	ZoomGeneral   *Limiter
	Summarizer    *Limiter
}

// NewSet builds the four service-class limiters from per-interval budgets.
func NewSet(teamsPerMinute, zoomRecordingPerSecond, zoomGeneralPerSecond, summarizerPerMinute int) *Set {
	return &Set{
		TeamsGeneral:  New("teams-general", teamsPerMinute, time.Minute),
		ZoomRecording: New("zoom-recording", zoomRecordingPerSecond, time.Second),
		ZoomGeneral:   New("zoom-general", zoomGeneralPerSecond, time.Second),
		Summarizer:    New("summarizer", summarizerPerMinute, time.Minute),
	}
}
