package domain

import (
	"fmt"
	"time"
)

// Platform identifies the meeting platform a record originated from.
type Platform string

const (
	PlatformTeams Platform = "teams"
	PlatformZoom  Platform = "zoom"
)

// TranscriptStatus tracks the transcript sub-state of a meeting record.
type TranscriptStatus string

const (
	TranscriptPending    TranscriptStatus = "pending"
	TranscriptDownloaded TranscriptStatus = "downloaded"
	TranscriptFailed     TranscriptStatus = "failed"
)

// SummaryStatus tracks the summary sub-state of a meeting record.
type SummaryStatus string

const (
	SummaryPending   SummaryStatus = "pending"
	SummaryGenerated SummaryStatus = "generated"
	SummaryPosted    SummaryStatus = "posted"
	SummaryFailed    SummaryStatus = "failed"
)

// ReasonTranscriptNotAvailable is the error_message recorded when a platform
// reports that no transcript exists for a recording. Meetings failed with this
// reason are terminal and never re-attempted.
const ReasonTranscriptNotAvailable = "transcript not available"

// Candidate is a recorded meeting discovered by a connector's list call,
// before it has been persisted.
type Candidate struct {
	MeetingID    string // platform-qualified, see QualifiedMeetingID
	Platform     Platform
	Title        string
	StartTime    time.Time
	EndTime      time.Time
	RecordingRef string
	ChatRef      string
}

// QualifiedMeetingID builds the globally unique meeting key. The platform
// prefix keeps Teams and Zoom identifier spaces from colliding; the resulting
// string is the sole dedup key in the store.
func QualifiedMeetingID(platform Platform, nativeID string) string {
	return fmt.Sprintf("%s:%s", platform, nativeID)
}

// MeetingRecord is the persisted state of one discovered meeting.
type MeetingRecord struct {
	ID               int64
	UserID           string
	MeetingID        string
	Platform         Platform
	Title            string
	StartTime        time.Time
	EndTime          time.Time
	RecordingRef     string
	ChatRef          string
	TranscriptStatus TranscriptStatus
	SummaryStatus    SummaryStatus
	SummaryText      string
	ErrorMessage     string
	ProcessedAt      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewMeetingRecord builds the initial pending/pending record for a candidate.
func NewMeetingRecord(userID string, c *Candidate) *MeetingRecord {
	return &MeetingRecord{
		UserID:           userID,
		MeetingID:        c.MeetingID,
		Platform:         c.Platform,
		Title:            c.Title,
		StartTime:        c.StartTime,
		EndTime:          c.EndTime,
		RecordingRef:     c.RecordingRef,
		ChatRef:          c.ChatRef,
		TranscriptStatus: TranscriptPending,
		SummaryStatus:    SummaryPending,
	}
}
