package repo

import (
	"context"
	"time"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
)

// Connector is the capability surface of one meeting platform. Exactly three
// operations; platform-specific behaviour (auth, transcript availability
// semantics) stays behind this interface. Implementations are stateless with
// respect to meeting records and must rate-limit and retry internally.
type Connector interface {
	Platform() domain.Platform

	// ListRecordings returns recorded-meeting candidates for the user in
	// [since, until], at most limit entries.
	ListRecordings(ctx context.Context, user *domain.Watermark, since, until time.Time, limit int) ([]*domain.Candidate, error)

	// FetchTranscript downloads the transcript for a discovered meeting.
	// Returns *domain.TranscriptNotFoundError when the platform has none.
	FetchTranscript(ctx context.Context, rec *domain.MeetingRecord) (string, error)

	// PostSummary posts the formatted summary into the meeting's chat. The
	// platform offers no idempotency; callers must invoke it at most once
	// per meeting per run.
	PostSummary(ctx context.Context, rec *domain.MeetingRecord, text string) error
}

// TokenSource resolves the per-user credential a connector presents to its
// platform. Acquisition, decryption and refresh live in the onboarding app;
// this side only reads opaque tokens.
type TokenSource interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}
