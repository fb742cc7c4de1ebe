package domain

import (
	"fmt"
	"time"
)

// RunStatus classifies one pipeline invocation.
type RunStatus string

const (
	// RunSuccess: the run completed with zero errors.
	RunSuccess RunStatus = "success"
	// RunPartial: some meetings or users failed but the run completed.
	RunPartial RunStatus = "partial"
	// RunFailed: a structural failure (state store unreachable) prevented
	// processing. Per-meeting failures never produce this status.
	RunFailed RunStatus = "failed"
)

// RunLog is the append-only record of one pipeline invocation. It is written
// once at the end of the run and never mutated afterwards.
type RunLog struct {
	ID                string
	RunTimestamp      time.Time
	Status            RunStatus
	UsersProcessed    int
	MeetingsFound     int
	MeetingsProcessed int
	ErrorsCount       int
	Duration          time.Duration
	ErrorDetails      string
}

// FormatDuration renders a duration the way run summaries log it: "42.1s",
// "2m 30s", "1h 5m".
func FormatDuration(d time.Duration) string {
	s := d.Seconds()
	switch {
	case s < 60:
		return fmt.Sprintf("%.1fs", s)
	case s < 3600:
		return fmt.Sprintf("%dm %ds", int(s)/60, int(s)%60)
	default:
		return fmt.Sprintf("%dh %dm", int(s)/3600, (int(s)%3600)/60)
	}
}
