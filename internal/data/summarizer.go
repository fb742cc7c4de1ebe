package data

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
	"github.com/anthropics/meeting-recap/internal/biz/repo"
	"github.com/anthropics/meeting-recap/internal/metrics"
	"github.com/anthropics/meeting-recap/internal/ratelimit"
	"github.com/anthropics/meeting-recap/internal/retry"
)

// summaryClient is the piece of the OpenAI infra client the summarizer needs.
type summaryClient interface {
	Summarize(ctx context.Context, title, transcript string) (string, error)
}

// summarizer implements repo.Summarizer: a minimum-length guard in front of
// the rate-limited, retried completion call. Transcripts below the threshold
// fail without spending an API call.
type summarizer struct {
	client   summaryClient
	limiter  *ratelimit.Limiter
	policy   retry.Policy
	minChars int
	log      *zap.Logger
}

// NewSummarizer creates the transcript summarizer.
func NewSummarizer(client summaryClient, limiter *ratelimit.Limiter, policy retry.Policy, minChars int, log *zap.Logger) repo.Summarizer {
	return &summarizer{
		client:   client,
		limiter:  limiter,
		policy:   policy,
		minChars: minChars,
		log:      log.Named("summarizer"),
	}
}

func (s *summarizer) Summarize(ctx context.Context, title, transcript string) (string, error) {
	trimmed := strings.TrimSpace(transcript)
	if len(trimmed) < s.minChars {
		metrics.SummaryGenerations.WithLabelValues("rejected").Inc()
		return "", &domain.SummaryError{
			Reason: fmt.Sprintf("transcript too short (%d chars, minimum %d)", len(trimmed), s.minChars),
		}
	}

	var summary string
	err := retry.Do(ctx, s.log, s.policy, domain.IsTransient, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		var callErr error
		summary, callErr = s.client.Summarize(ctx, title, trimmed)
		return callErr
	})
	if err != nil {
		metrics.SummaryGenerations.WithLabelValues("error").Inc()
		return "", &domain.SummaryError{Reason: "completion call failed", Err: err}
	}
	if summary == "" {
		metrics.SummaryGenerations.WithLabelValues("error").Inc()
		return "", &domain.SummaryError{Reason: "empty summary returned"}
	}

	metrics.SummaryGenerations.WithLabelValues("success").Inc()
	return summary, nil
}

// FormatMessage renders the summary as the chat message posted back to the
// meeting.
func (s *summarizer) FormatMessage(title, summary string, platform domain.Platform) string {
	marker := "[Recording]"
	if platform == domain.PlatformTeams {
		marker = "[Meeting]"
	}
	return fmt.Sprintf(`%s Meeting Summary: %s

%s

---
This summary was automatically generated from the meeting recording.`, marker, title, summary)
}
