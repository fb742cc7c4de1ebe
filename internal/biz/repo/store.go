package repo

import (
	"context"
	"time"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
)

// Store is the durable state contract: watermarks, meeting records and run
// logs. Implementations must enforce meeting_id uniqueness at the storage
// layer; InsertMeeting relies on it for dedup.
type Store interface {
	// ListActiveWatermarks returns the scan state of every active user.
	ListActiveWatermarks(ctx context.Context) ([]*domain.Watermark, error)

	// UpsertWatermark creates or replaces a user's scan state. Used by
	// onboarding; the pipeline itself only advances.
	UpsertWatermark(ctx context.Context, w *domain.Watermark) error

	// AdvanceWatermark moves a user's per-platform watermark forward.
	// A timestamp at or behind the current value is a no-op, so advancement
	// is monotonic regardless of caller interleaving.
	AdvanceWatermark(ctx context.Context, userID string, platform domain.Platform, t time.Time) error

	// InsertMeeting persists a newly discovered meeting in pending/pending
	// state. Returns false without error when the meeting_id already exists;
	// rediscovery from overlapping windows is expected and harmless.
	InsertMeeting(ctx context.Context, rec *domain.MeetingRecord) (bool, error)

	// SetTranscriptStatus records the transcript outcome for a meeting.
	SetTranscriptStatus(ctx context.Context, meetingID string, status domain.TranscriptStatus, errMsg string) error

	// SetSummaryStatus records the summary outcome, storing the text on
	// success and the failure reason otherwise.
	SetSummaryStatus(ctx context.Context, meetingID string, status domain.SummaryStatus, summary, errMsg string) error

	// MarkPosted finalizes a meeting after its summary reached the chat.
	MarkPosted(ctx context.Context, meetingID string, at time.Time) error

	// ListAwaitingSummary returns a user's meetings with a downloaded
	// transcript whose summary is pending or previously failed.
	ListAwaitingSummary(ctx context.Context, userID string, platform domain.Platform) ([]*domain.MeetingRecord, error)

	// ListAwaitingPost returns a user's meetings whose summary is generated
	// but not yet posted, including carry-overs from earlier runs.
	ListAwaitingPost(ctx context.Context, userID string, platform domain.Platform) ([]*domain.MeetingRecord, error)

	// AppendRunLog writes the immutable record of one run.
	AppendRunLog(ctx context.Context, run *domain.RunLog) error

	// LatestRunLog returns the most recent run record, nil when none exist.
	LatestRunLog(ctx context.Context) (*domain.RunLog, error)

	Close() error
}
