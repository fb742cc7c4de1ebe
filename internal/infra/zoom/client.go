// Package zoom is the raw HTTP client for the Zoom-like platform. It handles
// server-to-server OAuth token acquisition and caching; rate limiting and
// retries live a layer up.
package zoom

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
)

const (
	defaultBaseURL  = "https://api.zoom.us/v2"
	defaultOAuthURL = "https://zoom.us/oauth/token"
	requestTimeout  = 30 * time.Second

	// refresh the cached token a minute before the platform expires it
	tokenExpirySlack = time.Minute
)

// Client holds account-level S2S OAuth credentials; unlike Teams there is no
// per-user token, users are addressed by their platform identity.
type Client struct {
	baseURL      string
	oauthURL     string
	clientID     string
	clientSecret string
	accountID    string
	http         *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a client. baseURL overrides the public endpoints, used by
// tests (the OAuth endpoint is derived from it when overridden).
func NewClient(clientID, clientSecret, accountID, baseURL string) *Client {
	oauthURL := defaultOAuthURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	} else {
		oauthURL = baseURL + "/oauth/token"
	}
	return &Client{
		baseURL:      baseURL,
		oauthURL:     oauthURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		accountID:    accountID,
		http:         &http.Client{Timeout: requestTimeout},
	}
}

// Recording is one cloud recording as listed by the platform.
type Recording struct {
	ID            string    `json:"uuid"`
	Topic         string    `json:"topic"`
	StartTime     time.Time `json:"start_time"`
	Duration      int       `json:"duration"` // minutes
	TranscriptURL string    `json:"transcript_url"`
	ChannelID     string    `json:"channel_id"`
}

// EndTime derives the recording end from start and duration.
func (r Recording) EndTime() time.Time {
	if r.StartTime.IsZero() || r.Duration <= 0 {
		return time.Time{}
	}
	return r.StartTime.Add(time.Duration(r.Duration) * time.Minute)
}

// ListRecordings returns a user's cloud recordings in [from, to], at most
// pageSize entries.
func (c *Client) ListRecordings(ctx context.Context, userID string, from, to time.Time, pageSize int) ([]Recording, error) {
	const op = "list recordings"

	query := url.Values{}
	query.Set("from", from.UTC().Format("2006-01-02"))
	query.Set("to", to.UTC().Format("2006-01-02"))
	query.Set("page_size", strconv.Itoa(pageSize))

	var out struct {
		Meetings []Recording `json:"meetings"`
	}
	if err := c.doJSON(ctx, op, http.MethodGet, "/users/"+url.PathEscape(userID)+"/recordings", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Meetings, nil
}

// GetTranscript downloads the transcript file of a recording. The caller maps
// a 404 to the transcript-not-available outcome.
func (c *Client) GetTranscript(ctx context.Context, transcriptURL string) (string, error) {
	const op = "get transcript"

	token, err := c.ensureToken(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transcriptURL, nil)
	if err != nil {
		return "", &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", statusError(op, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: err}
	}
	return string(body), nil
}

// PostChatMessage posts a message to the meeting's chat channel.
func (c *Client) PostChatMessage(ctx context.Context, channelID, text string) error {
	const op = "post chat message"

	payload := map[string]string{
		"message":    text,
		"to_channel": channelID,
	}
	return c.doJSON(ctx, op, http.MethodPost, "/chat/users/me/messages", nil, payload, nil)
}

// ensureToken returns a valid cached access token, fetching a new one via the
// account-credentials grant when missing or near expiry.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	const op = "oauth token"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySlack)) {
		return c.accessToken, nil
	}

	u := c.oauthURL + "?grant_type=account_credentials&account_id=" + url.QueryEscape(c.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: err}
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", statusError(op, resp)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if out.AccessToken == "" {
		return "", &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: fmt.Errorf("empty access token")}
	}

	c.accessToken = out.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: err}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// token may have been revoked early, drop the cache so the next
		// attempt re-authenticates
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
	}

	if resp.StatusCode >= 400 {
		return statusError(op, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &domain.APIError{Platform: domain.PlatformZoom, Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &domain.APIError{
		Platform:   domain.PlatformZoom,
		Op:         op,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("%s", string(snippet)),
	}
}
