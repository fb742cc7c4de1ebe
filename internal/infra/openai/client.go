// Package openai is the summarization client built on the OpenAI
// chat-completion interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
)

const systemPrompt = "You are a helpful assistant that creates concise, professional meeting summaries."

// Client wraps the chat-completion API for transcript summarization.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a new summarization client.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Summarize produces a chat-ready summary of a meeting transcript.
func (c *Client) Summarize(ctx context.Context, title, transcript string) (string, error) {
	const op = "chat completion"

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: summaryPrompt(title, transcript)},
		},
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", apiError(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", &domain.APIError{Platform: "openai", Op: op, StatusCode: 200, Err: fmt.Errorf("no response choices")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func summaryPrompt(title, transcript string) string {
	if title == "" {
		title = "Meeting"
	}
	return fmt.Sprintf(`Please provide a concise summary of the following meeting transcript.

Meeting: %s

Include:
1. Key discussion points
2. Decisions made
3. Action items (if any)
4. Important takeaways

Transcript:
%s

Please format the summary in a clear, professional manner suitable for posting in a chat.`, title, transcript)
}

// apiError preserves the HTTP status so the retry classification can tell a
// rate limit from an auth failure.
func apiError(op string, err error) error {
	status := 0
	var reqErr *openai.APIError
	if errors.As(err, &reqErr) {
		status = reqErr.HTTPStatusCode
	}
	return &domain.APIError{Platform: "openai", Op: op, StatusCode: status, Err: err}
}
