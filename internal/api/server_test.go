package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
)

// runLogStore stubs the single Store method the ops server reads.
type runLogStore struct {
	run *domain.RunLog
	err error
}

func (s *runLogStore) LatestRunLog(ctx context.Context) (*domain.RunLog, error) { return s.run, s.err }

func (s *runLogStore) ListActiveWatermarks(ctx context.Context) ([]*domain.Watermark, error) {
	return nil, nil
}
func (s *runLogStore) UpsertWatermark(ctx context.Context, w *domain.Watermark) error { return nil }
func (s *runLogStore) AdvanceWatermark(ctx context.Context, userID string, platform domain.Platform, t time.Time) error {
	return nil
}
func (s *runLogStore) InsertMeeting(ctx context.Context, rec *domain.MeetingRecord) (bool, error) {
	return false, nil
}
func (s *runLogStore) SetTranscriptStatus(ctx context.Context, meetingID string, status domain.TranscriptStatus, errMsg string) error {
	return nil
}
func (s *runLogStore) SetSummaryStatus(ctx context.Context, meetingID string, status domain.SummaryStatus, summary, errMsg string) error {
	return nil
}
func (s *runLogStore) MarkPosted(ctx context.Context, meetingID string, at time.Time) error {
	return nil
}
func (s *runLogStore) ListAwaitingSummary(ctx context.Context, userID string, platform domain.Platform) ([]*domain.MeetingRecord, error) {
	return nil, nil
}
func (s *runLogStore) ListAwaitingPost(ctx context.Context, userID string, platform domain.Platform) ([]*domain.MeetingRecord, error) {
	return nil, nil
}
func (s *runLogStore) AppendRunLog(ctx context.Context, run *domain.RunLog) error { return nil }
func (s *runLogStore) Close() error                                               { return nil }

func TestStatusReportsLatestRun(t *testing.T) {
	store := &runLogStore{run: &domain.RunLog{
		ID:                "run-1",
		RunTimestamp:      time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		Status:            domain.RunPartial,
		UsersProcessed:    3,
		MeetingsFound:     7,
		MeetingsProcessed: 5,
		ErrorsCount:       2,
		Duration:          95 * time.Second,
	}}
	srv := NewServer(store, "127.0.0.1:0", zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var resp struct {
		LastRun struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			Errors   int    `json:"errors_count"`
			Duration string `json:"duration"`
		} `json:"last_run"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.LastRun.ID != "run-1" || resp.LastRun.Status != "partial" || resp.LastRun.Errors != 2 {
		t.Errorf("response = %+v", resp.LastRun)
	}
	if resp.LastRun.Duration != "1m 35s" {
		t.Errorf("duration = %q, want 1m 35s", resp.LastRun.Duration)
	}
}

func TestStatusWithNoRuns(t *testing.T) {
	srv := NewServer(&runLogStore{}, "127.0.0.1:0", zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["last_run"] != nil {
		t.Errorf("last_run = %v, want null", resp["last_run"])
	}
}

func TestStatusStoreFailure(t *testing.T) {
	srv := NewServer(&runLogStore{err: errors.New("locked")}, "127.0.0.1:0", zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := NewServer(&runLogStore{}, "127.0.0.1:0", zap.NewNop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}
