package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
	"github.com/anthropics/meeting-recap/internal/biz/repo"
	"github.com/anthropics/meeting-recap/internal/infra/teams"
	"github.com/anthropics/meeting-recap/internal/metrics"
	"github.com/anthropics/meeting-recap/internal/ratelimit"
	"github.com/anthropics/meeting-recap/internal/retry"
)

// teamsConnector implements repo.Connector over the Graph-style client.
// Every outbound call acquires the teams-general limiter slot inside the
// retried operation, so each attempt pays for its own slot.
type teamsConnector struct {
	client  *teams.Client
	tokens  repo.TokenSource
	limiter *ratelimit.Limiter
	policy  retry.Policy
	log     *zap.Logger
}

// NewTeamsConnector creates the Teams-like platform connector.
func NewTeamsConnector(client *teams.Client, tokens repo.TokenSource, limiter *ratelimit.Limiter, policy retry.Policy, log *zap.Logger) repo.Connector {
	return &teamsConnector{
		client:  client,
		tokens:  tokens,
		limiter: limiter,
		policy:  policy,
		log:     log.Named("teams"),
	}
}

func (c *teamsConnector) Platform() domain.Platform { return domain.PlatformTeams }

func (c *teamsConnector) ListRecordings(ctx context.Context, user *domain.Watermark, since, until time.Time, limit int) ([]*domain.Candidate, error) {
	token, err := c.tokens.AccessToken(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	var meetings []teams.Meeting
	err = retry.Do(ctx, c.log, c.policy, domain.IsTransient, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var callErr error
		meetings, callErr = c.client.ListRecordedMeetings(ctx, token, since, until, limit)
		return callErr
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues(string(domain.PlatformTeams), "list").Inc()
		return nil, err
	}

	candidates := make([]*domain.Candidate, 0, len(meetings))
	for _, m := range meetings {
		candidates = append(candidates, &domain.Candidate{
			MeetingID:    domain.QualifiedMeetingID(domain.PlatformTeams, m.ID),
			Platform:     domain.PlatformTeams,
			Title:        m.Subject,
			StartTime:    m.StartTime,
			EndTime:      m.EndTime,
			RecordingRef: m.RecordingID,
			ChatRef:      m.ChatID,
		})
	}
	metrics.MeetingsDiscovered.WithLabelValues(string(domain.PlatformTeams)).Add(float64(len(candidates)))
	return candidates, nil
}

func (c *teamsConnector) FetchTranscript(ctx context.Context, rec *domain.MeetingRecord) (string, error) {
	token, err := c.tokens.AccessToken(ctx, rec.UserID)
	if err != nil {
		return "", fmt.Errorf("resolve token: %w", err)
	}

	var transcript string
	err = retry.Do(ctx, c.log, c.policy, domain.IsTransient, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var callErr error
		transcript, callErr = c.client.GetTranscript(ctx, token, rec.RecordingRef)
		return callErr
	})
	if err != nil {
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			metrics.TranscriptDownloads.WithLabelValues(string(domain.PlatformTeams), "not_found").Inc()
			return "", &domain.TranscriptNotFoundError{MeetingID: rec.MeetingID}
		}
		metrics.TranscriptDownloads.WithLabelValues(string(domain.PlatformTeams), "error").Inc()
		return "", err
	}
	metrics.TranscriptDownloads.WithLabelValues(string(domain.PlatformTeams), "success").Inc()
	return transcript, nil
}

func (c *teamsConnector) PostSummary(ctx context.Context, rec *domain.MeetingRecord, text string) error {
	if rec.ChatRef == "" {
		return &domain.APIError{Platform: domain.PlatformTeams, Op: "post chat message", StatusCode: 400, Err: fmt.Errorf("meeting %s has no chat reference", rec.MeetingID)}
	}

	token, err := c.tokens.AccessToken(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}

	err = retry.Do(ctx, c.log, c.policy, domain.IsTransient, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.client.PostChatMessage(ctx, token, rec.ChatRef, text)
	})
	if err != nil {
		metrics.APIErrors.WithLabelValues(string(domain.PlatformTeams), "post").Inc()
		return err
	}
	return nil
}
