package repo

import (
	"context"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
)

// Summarizer turns a transcript into a chat-ready summary. Implementations
// reject transcripts below a minimum length before spending an API call and
// must rate-limit and retry internally.
type Summarizer interface {
	Summarize(ctx context.Context, title, transcript string) (string, error)

	// FormatMessage renders the summary as the message posted to the chat.
	FormatMessage(title, summary string, platform domain.Platform) string
}
