// Package teams is the raw HTTP client for the Graph-style Teams API. It
// speaks the wire format and maps HTTP failures to domain errors; rate
// limiting, retries and token resolution live a layer up.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	requestTimeout = 30 * time.Second
	// transcript bodies can be large
	downloadTimeout = 60 * time.Second
)

// Client calls the Teams-like platform on behalf of one user per request;
// the bearer token is passed per call, not stored.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client. baseURL overrides the public endpoint, used by
// tests.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// Meeting is one recorded online meeting as listed by the platform.
type Meeting struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	StartTime   time.Time `json:"startDateTime"`
	EndTime     time.Time `json:"endDateTime"`
	ChatID      string    `json:"chatId"`
	RecordingID string    `json:"recordingId"`
}

// ListRecordedMeetings returns the user's recorded online meetings that
// started within [since, until], newest first, at most top entries.
func (c *Client) ListRecordedMeetings(ctx context.Context, token string, since, until time.Time, top int) ([]Meeting, error) {
	const op = "list recorded meetings"

	query := url.Values{}
	query.Set("since", since.UTC().Format(time.RFC3339))
	query.Set("until", until.UTC().Format(time.RFC3339))
	query.Set("$top", strconv.Itoa(top))

	var out struct {
		Value []Meeting `json:"value"`
	}
	if err := c.doJSON(ctx, token, op, http.MethodGet, "/me/onlineMeetings/recordings", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// GetTranscript downloads the transcript content of a recording. The caller
// maps a 404 to the transcript-not-available outcome.
func (c *Client) GetTranscript(ctx context.Context, token, recordingID string) (string, error) {
	const op = "get transcript"

	u := c.baseURL + "/me/recordings/" + url.PathEscape(recordingID) + "/transcript/content"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", &domain.APIError{Platform: domain.PlatformTeams, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: downloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", &domain.APIError{Platform: domain.PlatformTeams, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", statusError(domain.PlatformTeams, op, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.APIError{Platform: domain.PlatformTeams, Op: op, Err: err}
	}
	return string(body), nil
}

// PostChatMessage posts a plain-text message into a chat.
func (c *Client) PostChatMessage(ctx context.Context, token, chatID, text string) error {
	const op = "post chat message"

	payload := map[string]any{
		"body": map[string]string{
			"contentType": "text",
			"content":     text,
		},
	}
	return c.doJSON(ctx, token, op, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/messages", nil, payload, nil)
}

func (c *Client) doJSON(ctx context.Context, token, op, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &domain.APIError{Platform: domain.PlatformTeams, Op: op, Err: err}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &domain.APIError{Platform: domain.PlatformTeams, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.APIError{Platform: domain.PlatformTeams, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(domain.PlatformTeams, op, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &domain.APIError{Platform: domain.PlatformTeams, Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func statusError(platform domain.Platform, op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &domain.APIError{
		Platform:   platform,
		Op:         op,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("%s", string(snippet)),
	}
}
