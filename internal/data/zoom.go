package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
	"github.com/anthropics/meeting-recap/internal/biz/repo"
	"github.com/anthropics/meeting-recap/internal/infra/zoom"
	"github.com/anthropics/meeting-recap/internal/metrics"
	"github.com/anthropics/meeting-recap/internal/ratelimit"
	"github.com/anthropics/meeting-recap/internal/retry"
)

// zoomConnector implements repo.Connector over the Zoom-like client. The
// recording endpoints carry a much tighter platform budget than the general
// API, so list and transcript calls go through the recording limiter while
// chat posting uses the general one.
type zoomConnector struct {
	client    *zoom.Client
	recording *ratelimit.Limiter
	general   *ratelimit.Limiter
	policy    retry.Policy
	log       *zap.Logger
}

// NewZoomConnector creates the Zoom-like platform connector. Auth is
// account-level S2S OAuth inside the client; users are addressed by their
// platform identity (email).
func NewZoomConnector(client *zoom.Client, recording, general *ratelimit.Limiter, policy retry.Policy, log *zap.Logger) repo.Connector {
	return &zoomConnector{
		client:    client,
		recording: recording,
		general:   general,
		policy:    policy,
		log:       log.Named("zoom"),
	}
}

func (c *zoomConnector) Platform() domain.Platform { return domain.PlatformZoom }

func (c *zoomConnector) ListRecordings(ctx context.Context, user *domain.Watermark, since, until time.Time, limit int) ([]*domain.Candidate, error) {
	zoomUser := user.Email
	if zoomUser == "" {
		zoomUser = user.UserID
	}

	var recordings []zoom.Recording
	err := retry.Do(ctx, c.log, c.policy, domain.IsTransient, func(ctx context.Context) error {
		if err := c.recording.Wait(ctx); err != nil {
			return err
		}
		var callErr error
		recordings, callErr = c.client.ListRecordings(ctx, zoomUser, since, until, limit)
		return callErr
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues(string(domain.PlatformZoom), "list").Inc()
		return nil, err
	}

	candidates := make([]*domain.Candidate, 0, len(recordings))
	for _, r := range recordings {
		// the list endpoint reports by date only; re-filter to the precise window
		if !r.StartTime.IsZero() && (r.StartTime.Before(since) || r.StartTime.After(until)) {
			continue
		}
		candidates = append(candidates, &domain.Candidate{
			MeetingID:    domain.QualifiedMeetingID(domain.PlatformZoom, r.ID),
			Platform:     domain.PlatformZoom,
			Title:        r.Topic,
			StartTime:    r.StartTime,
			EndTime:      r.EndTime(),
			RecordingRef: r.TranscriptURL,
			ChatRef:      r.ChannelID,
		})
	}
	metrics.MeetingsDiscovered.WithLabelValues(string(domain.PlatformZoom)).Add(float64(len(candidates)))
	return candidates, nil
}

func (c *zoomConnector) FetchTranscript(ctx context.Context, rec *domain.MeetingRecord) (string, error) {
	if rec.RecordingRef == "" {
		// the platform produced a recording without a transcript file
		metrics.TranscriptDownloads.WithLabelValues(string(domain.PlatformZoom), "not_found").Inc()
		return "", &domain.TranscriptNotFoundError{MeetingID: rec.MeetingID}
	}

	var transcript string
	err := retry.Do(ctx, c.log, c.policy, domain.IsTransient, func(ctx context.Context) error {
		if err := c.recording.Wait(ctx); err != nil {
			return err
		}
		var callErr error
		transcript, callErr = c.client.GetTranscript(ctx, rec.RecordingRef)
		return callErr
	})
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			metrics.TranscriptDownloads.WithLabelValues(string(domain.PlatformZoom), "not_found").Inc()
			return "", &domain.TranscriptNotFoundError{MeetingID: rec.MeetingID}
		}
		metrics.TranscriptDownloads.WithLabelValues(string(domain.PlatformZoom), "error").Inc()
		return "", err
	}
	metrics.TranscriptDownloads.WithLabelValues(string(domain.PlatformZoom), "success").Inc()
	return transcript, nil
}

func (c *zoomConnector) PostSummary(ctx context.Context, rec *domain.MeetingRecord, text string) error {
	if rec.ChatRef == "" {
		return &domain.APIError{Platform: domain.PlatformZoom, Op: "post chat message", StatusCode: 400, Err: fmt.Errorf("meeting %s has no chat channel", rec.MeetingID)}
	}

	err := retry.Do(ctx, c.log, c.policy, domain.IsTransient, func(ctx context.Context) error {
		if err := c.general.Wait(ctx); err != nil {
			return err
		}
		return c.client.PostChatMessage(ctx, rec.ChatRef, text)
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues(string(domain.PlatformZoom), "post").Inc()
		return err
	}
	return nil
}
