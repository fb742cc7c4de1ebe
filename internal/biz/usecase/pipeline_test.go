package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
	"github.com/anthropics/meeting-recap/internal/biz/repo"
)

type fakeStore struct {
	mu       sync.Mutex
	users    []*domain.Watermark
	meetings map[string]*domain.MeetingRecord
	runs     []*domain.RunLog
	marks    map[string]time.Time

	listUsersErr error
	insertErr    error
}

func newFakeStore(users ...*domain.Watermark) *fakeStore {
	return &fakeStore{
		users:    users,
		meetings: make(map[string]*domain.MeetingRecord),
		marks:    make(map[string]time.Time),
	}
}

func (s *fakeStore) ListActiveWatermarks(ctx context.Context) ([]*domain.Watermark, error) {
	if s.listUsersErr != nil {
		return nil, s.listUsersErr
	}
	return s.users, nil
}

func (s *fakeStore) UpsertWatermark(ctx context.Context, w *domain.Watermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, w)
	return nil
}

func (s *fakeStore) AdvanceWatermark(ctx context.Context, userID string, platform domain.Platform, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + string(platform)
	if t.After(s.marks[key]) {
		s.marks[key] = t
	}
	return nil
}

func (s *fakeStore) InsertMeeting(ctx context.Context, rec *domain.MeetingRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, ok := s.meetings[rec.MeetingID]; ok {
		return false, nil
	}
	cp := *rec
	s.meetings[rec.MeetingID] = &cp
	return true, nil
}

func (s *fakeStore) SetTranscriptStatus(ctx context.Context, meetingID string, status domain.TranscriptStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.meetings[meetingID]
	if !ok {
		return fmt.Errorf("unknown meeting %s", meetingID)
	}
	rec.TranscriptStatus = status
	rec.ErrorMessage = errMsg
	return nil
}

func (s *fakeStore) SetSummaryStatus(ctx context.Context, meetingID string, status domain.SummaryStatus, summary, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.meetings[meetingID]
	if !ok {
		return fmt.Errorf("unknown meeting %s", meetingID)
	}
	rec.SummaryStatus = status
	rec.SummaryText = summary
	rec.ErrorMessage = errMsg
	return nil
}

func (s *fakeStore) MarkPosted(ctx context.Context, meetingID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.meetings[meetingID]
	if !ok {
		return fmt.Errorf("unknown meeting %s", meetingID)
	}
	rec.SummaryStatus = domain.SummaryPosted
	rec.ProcessedAt = at
	rec.ErrorMessage = ""
	return nil
}

func (s *fakeStore) ListAwaitingSummary(ctx context.Context, userID string, platform domain.Platform) ([]*domain.MeetingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.MeetingRecord
	for _, rec := range s.meetings {
		if rec.UserID != userID || rec.Platform != platform {
			continue
		}
		if rec.TranscriptStatus != domain.TranscriptDownloaded {
			continue
		}
		if rec.SummaryStatus == domain.SummaryPending || rec.SummaryStatus == domain.SummaryFailed {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListAwaitingPost(ctx context.Context, userID string, platform domain.Platform) ([]*domain.MeetingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.MeetingRecord
	for _, rec := range s.meetings {
		if rec.UserID != userID || rec.Platform != platform {
			continue
		}
		if rec.SummaryStatus == domain.SummaryGenerated {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) AppendRunLog(ctx context.Context, run *domain.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs = append(s.runs, &cp)
	return nil
}

func (s *fakeStore) LatestRunLog(ctx context.Context) (*domain.RunLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return nil, nil
	}
	return s.runs[len(s.runs)-1], nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) meeting(t *testing.T, id string) *domain.MeetingRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.meetings[id]
	if !ok {
		t.Fatalf("meeting %s not in store", id)
	}
	cp := *rec
	return &cp
}

type fakeConnector struct {
	platform   domain.Platform
	candidates []*domain.Candidate
	listErr    error

	transcripts  map[string]string
	fetchErrs    map[string]error
	fetchCalls   map[string]int
	postErrs     map[string]error
	summaryCalls int

	mu     sync.Mutex
	posted []string
}

func newFakeConnector(platform domain.Platform) *fakeConnector {
	return &fakeConnector{
		platform:    platform,
		transcripts: make(map[string]string),
		fetchErrs:   make(map[string]error),
		fetchCalls:  make(map[string]int),
		postErrs:    make(map[string]error),
	}
}

func (c *fakeConnector) Platform() domain.Platform { return c.platform }

func (c *fakeConnector) ListRecordings(ctx context.Context, user *domain.Watermark, since, until time.Time, limit int) ([]*domain.Candidate, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.candidates, nil
}

func (c *fakeConnector) FetchTranscript(ctx context.Context, rec *domain.MeetingRecord) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchCalls[rec.MeetingID]++
	if err, ok := c.fetchErrs[rec.MeetingID]; ok {
		return "", err
	}
	text, ok := c.transcripts[rec.MeetingID]
	if !ok {
		return "", &domain.TranscriptNotFoundError{MeetingID: rec.MeetingID}
	}
	return text, nil
}

func (c *fakeConnector) PostSummary(ctx context.Context, rec *domain.MeetingRecord, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.postErrs[rec.MeetingID]; ok {
		return err
	}
	c.posted = append(c.posted, rec.MeetingID)
	return nil
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *fakeSummarizer) Summarize(ctx context.Context, title, transcript string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "summary of " + title, nil
}

func (s *fakeSummarizer) FormatMessage(title, summary string, platform domain.Platform) string {
	return title + ": " + summary
}

func testUser(id string) *domain.Watermark {
	return &domain.Watermark{UserID: id, Email: id + "@example.com", IsActive: true}
}

func candidate(platform domain.Platform, nativeID, title string, start time.Time) *domain.Candidate {
	return &domain.Candidate{
		MeetingID:    domain.QualifiedMeetingID(platform, nativeID),
		Platform:     platform,
		Title:        title,
		StartTime:    start,
		EndTime:      start.Add(30 * time.Minute),
		RecordingRef: "rec-" + nativeID,
		ChatRef:      "chat-" + nativeID,
	}
}

func testPipeline(store repo.Store, summarizer repo.Summarizer, conns ...repo.Connector) *Pipeline {
	return NewPipeline(store, conns, summarizer, Config{
		Lookback:           24 * time.Hour,
		Overlap:            time.Hour,
		MaxMeetingsPerUser: 50,
		Workers:            2,
	}, zap.NewNop())
}

func TestRunDedupAndWatermark(t *testing.T) {
	start := time.Now().Add(-2 * time.Hour)
	conn := newFakeConnector(domain.PlatformTeams)
	m1 := candidate(domain.PlatformTeams, "m1", "Standup", start)
	m2 := candidate(domain.PlatformTeams, "m2", "Planning", start)
	conn.candidates = []*domain.Candidate{m1, m2}
	conn.transcripts[m1.MeetingID] = strings.Repeat("words ", 100)
	conn.transcripts[m2.MeetingID] = strings.Repeat("words ", 100)

	store := newFakeStore(testUser("u1"))
	// m2 was fully processed by an earlier run
	existing := domain.NewMeetingRecord("u1", m2)
	existing.TranscriptStatus = domain.TranscriptDownloaded
	existing.SummaryStatus = domain.SummaryPosted
	store.meetings[m2.MeetingID] = existing

	p := testPipeline(store, &fakeSummarizer{}, conn)
	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.Status != domain.RunSuccess {
		t.Errorf("status = %s, want success (details: %s)", run.Status, run.ErrorDetails)
	}
	if run.MeetingsFound != 2 {
		t.Errorf("meetings found = %d, want 2", run.MeetingsFound)
	}
	if run.MeetingsProcessed != 1 {
		t.Errorf("meetings processed = %d, want 1", run.MeetingsProcessed)
	}
	if run.ErrorsCount != 0 {
		t.Errorf("errors = %d, want 0 (details: %s)", run.ErrorsCount, run.ErrorDetails)
	}

	rec := store.meeting(t, m1.MeetingID)
	if rec.SummaryStatus != domain.SummaryPosted {
		t.Errorf("m1 summary status = %s, want posted", rec.SummaryStatus)
	}
	if got := len(conn.posted); got != 1 {
		t.Errorf("posted %d summaries, want 1", got)
	}
	if conn.fetchCalls[m2.MeetingID] != 0 {
		t.Errorf("transcript refetched for already-posted meeting")
	}
	if store.marks["u1/teams"].IsZero() {
		t.Error("watermark not advanced after successful scan")
	}

	latest, _ := store.LatestRunLog(context.Background())
	if latest == nil || latest.ID != run.ID {
		t.Error("run log not persisted")
	}
}

func TestRunSecondPassIsNoop(t *testing.T) {
	start := time.Now().Add(-2 * time.Hour)
	conn := newFakeConnector(domain.PlatformTeams)
	m1 := candidate(domain.PlatformTeams, "m1", "Standup", start)
	conn.candidates = []*domain.Candidate{m1}
	conn.transcripts[m1.MeetingID] = strings.Repeat("words ", 100)

	store := newFakeStore(testUser("u1"))
	sum := &fakeSummarizer{}
	p := testPipeline(store, sum, conn)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if run.MeetingsProcessed != 0 {
		t.Errorf("second run processed = %d, want 0", run.MeetingsProcessed)
	}
	if sum.calls != 1 {
		t.Errorf("summarizer called %d times across both runs, want 1", sum.calls)
	}
	if got := len(conn.posted); got != 1 {
		t.Errorf("posted %d summaries across both runs, want 1", got)
	}
}

func TestRunSummarizerFailureIsPartial(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	conn := newFakeConnector(domain.PlatformZoom)
	m1 := candidate(domain.PlatformZoom, "m1", "Retro", start)
	conn.candidates = []*domain.Candidate{m1}
	conn.transcripts[m1.MeetingID] = strings.Repeat("words ", 100)

	store := newFakeStore(testUser("u1"))
	sum := &fakeSummarizer{err: &domain.SummaryError{Reason: "completion call failed", Err: errors.New("boom")}}
	p := testPipeline(store, sum, conn)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != domain.RunPartial {
		t.Errorf("status = %s, want partial", run.Status)
	}
	if run.ErrorsCount != 1 {
		t.Errorf("errors = %d, want 1", run.ErrorsCount)
	}

	rec := store.meeting(t, m1.MeetingID)
	if rec.SummaryStatus != domain.SummaryFailed {
		t.Errorf("summary status = %s, want failed", rec.SummaryStatus)
	}
	if rec.ErrorMessage == "" {
		t.Error("failure reason not recorded")
	}
	// the meeting stays retryable: the next run re-attempts the summary
	if rec.TranscriptStatus != domain.TranscriptDownloaded {
		t.Errorf("transcript status = %s, want downloaded", rec.TranscriptStatus)
	}
	if store.marks["u1/zoom"].IsZero() {
		t.Error("watermark should still advance when only summarization failed")
	}
}

func TestRunListFailureLeavesWatermark(t *testing.T) {
	conn := newFakeConnector(domain.PlatformTeams)
	conn.listErr = &domain.APIError{Platform: domain.PlatformTeams, Op: "list", StatusCode: 503, Err: errors.New("unavailable")}

	last := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	user := testUser("u1")
	user.SetLastCheck(domain.PlatformTeams, last)
	store := newFakeStore(user)

	p := testPipeline(store, &fakeSummarizer{}, conn)
	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != domain.RunPartial {
		t.Errorf("status = %s, want partial", run.Status)
	}
	if run.ErrorsCount != 1 {
		t.Errorf("errors = %d, want 1", run.ErrorsCount)
	}
	if !store.marks["u1/teams"].IsZero() {
		t.Error("watermark advanced despite list failure")
	}
	if !user.LastCheck(domain.PlatformTeams).Equal(last) {
		t.Error("in-memory watermark moved despite list failure")
	}
}

func TestRunTranscriptNotFoundIsTerminal(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	conn := newFakeConnector(domain.PlatformTeams)
	m1 := candidate(domain.PlatformTeams, "m1", "All hands", start)
	conn.candidates = []*domain.Candidate{m1}
	// no transcript registered: fetch reports not-found

	store := newFakeStore(testUser("u1"))
	sum := &fakeSummarizer{}
	p := testPipeline(store, sum, conn)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != domain.RunSuccess {
		t.Errorf("status = %s, want success; missing transcripts are not errors", run.Status)
	}
	if run.ErrorsCount != 0 {
		t.Errorf("errors = %d, want 0", run.ErrorsCount)
	}

	rec := store.meeting(t, m1.MeetingID)
	if rec.TranscriptStatus != domain.TranscriptFailed {
		t.Errorf("transcript status = %s, want failed", rec.TranscriptStatus)
	}
	if rec.ErrorMessage != domain.ReasonTranscriptNotAvailable {
		t.Errorf("error message = %q, want %q", rec.ErrorMessage, domain.ReasonTranscriptNotAvailable)
	}
	if sum.calls != 0 {
		t.Errorf("summarizer called %d times, want 0", sum.calls)
	}

	// next run rediscovers the meeting: dedup skips it, no second fetch
	conn2 := newFakeConnector(domain.PlatformTeams)
	conn2.candidates = []*domain.Candidate{m1}
	p2 := testPipeline(store, sum, conn2)
	if _, err := p2.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if conn2.fetchCalls[m1.MeetingID] != 0 {
		t.Error("transcript re-attempted for terminally failed meeting")
	}
}

func TestRunPostFailureRetriesWithoutResummarizing(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	conn := newFakeConnector(domain.PlatformTeams)
	m1 := candidate(domain.PlatformTeams, "m1", "Sync", start)
	conn.candidates = []*domain.Candidate{m1}
	conn.transcripts[m1.MeetingID] = strings.Repeat("words ", 100)
	conn.postErrs[m1.MeetingID] = &domain.APIError{Platform: domain.PlatformTeams, Op: "post", StatusCode: 502, Err: errors.New("bad gateway")}

	store := newFakeStore(testUser("u1"))
	sum := &fakeSummarizer{}
	p := testPipeline(store, sum, conn)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if run.Status != domain.RunPartial {
		t.Errorf("status = %s, want partial", run.Status)
	}
	rec := store.meeting(t, m1.MeetingID)
	if rec.SummaryStatus != domain.SummaryGenerated {
		t.Errorf("summary status = %s, want generated after post failure", rec.SummaryStatus)
	}

	// next run: post succeeds, summary must not be regenerated
	conn2 := newFakeConnector(domain.PlatformTeams)
	p2 := testPipeline(store, sum, conn2)
	run2, err := p2.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if run2.Status != domain.RunSuccess {
		t.Errorf("second run status = %s, want success (details: %s)", run2.Status, run2.ErrorDetails)
	}
	if run2.MeetingsProcessed != 1 {
		t.Errorf("second run processed = %d, want 1", run2.MeetingsProcessed)
	}
	if sum.calls != 1 {
		t.Errorf("summarizer called %d times total, want 1", sum.calls)
	}
	rec = store.meeting(t, m1.MeetingID)
	if rec.SummaryStatus != domain.SummaryPosted {
		t.Errorf("summary status = %s, want posted", rec.SummaryStatus)
	}
}

func TestRunStoreFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.listUsersErr = errors.New("database is locked")

	p := testPipeline(store, &fakeSummarizer{}, newFakeConnector(domain.PlatformTeams))
	run, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run returned nil error on store failure")
	}
	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) {
		t.Errorf("error type = %T, want *domain.StoreError", err)
	}
	if run.Status != domain.RunFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
	if len(store.runs) != 1 {
		t.Errorf("run logs persisted = %d, want 1", len(store.runs))
	}
}

func TestRunInsertFailureAbortsRun(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	conn := newFakeConnector(domain.PlatformTeams)
	conn.candidates = []*domain.Candidate{candidate(domain.PlatformTeams, "m1", "Sync", start)}

	store := newFakeStore(testUser("u1"))
	store.insertErr = errors.New("disk I/O error")

	p := testPipeline(store, &fakeSummarizer{}, conn)
	run, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run returned nil error on insert failure")
	}
	if run.Status != domain.RunFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
	if !store.marks["u1/teams"].IsZero() {
		t.Error("watermark advanced despite aborted scan")
	}
}

func TestRunIsolatesUserFailures(t *testing.T) {
	start := time.Now().Add(-time.Hour)

	// one connector serving both users; u1's list fails, u2 succeeds
	conn := &perUserConnector{
		platform: domain.PlatformTeams,
		byUser: map[string]*fakeConnector{
			"u1": {platform: domain.PlatformTeams, listErr: errors.New("token revoked"),
				transcripts: map[string]string{}, fetchErrs: map[string]error{}, fetchCalls: map[string]int{}, postErrs: map[string]error{}},
			"u2": func() *fakeConnector {
				c := newFakeConnector(domain.PlatformTeams)
				m := candidate(domain.PlatformTeams, "m2", "1:1", start)
				c.candidates = []*domain.Candidate{m}
				c.transcripts[m.MeetingID] = strings.Repeat("words ", 100)
				return c
			}(),
		},
	}

	store := newFakeStore(testUser("u1"), testUser("u2"))
	p := testPipeline(store, &fakeSummarizer{}, conn)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != domain.RunPartial {
		t.Errorf("status = %s, want partial", run.Status)
	}
	if run.UsersProcessed != 2 {
		t.Errorf("users processed = %d, want 2", run.UsersProcessed)
	}
	if run.MeetingsProcessed != 1 {
		t.Errorf("meetings processed = %d, want 1; u2 must not be blocked by u1", run.MeetingsProcessed)
	}
	if store.marks["u2/teams"].IsZero() {
		t.Error("u2 watermark not advanced")
	}
	if !store.marks["u1/teams"].IsZero() {
		t.Error("u1 watermark advanced despite list failure")
	}
}

// perUserConnector routes connector calls by user, for failure-isolation tests.
type perUserConnector struct {
	platform domain.Platform
	byUser   map[string]*fakeConnector
}

func (c *perUserConnector) Platform() domain.Platform { return c.platform }

func (c *perUserConnector) ListRecordings(ctx context.Context, user *domain.Watermark, since, until time.Time, limit int) ([]*domain.Candidate, error) {
	return c.byUser[user.UserID].ListRecordings(ctx, user, since, until, limit)
}

func (c *perUserConnector) FetchTranscript(ctx context.Context, rec *domain.MeetingRecord) (string, error) {
	return c.byUser[rec.UserID].FetchTranscript(ctx, rec)
}

func (c *perUserConnector) PostSummary(ctx context.Context, rec *domain.MeetingRecord, text string) error {
	return c.byUser[rec.UserID].PostSummary(ctx, rec, text)
}
