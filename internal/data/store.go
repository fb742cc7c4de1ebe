package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
	"github.com/anthropics/meeting-recap/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// Store implements repo.Store and repo.TokenSource on sqlite. Every logical
// update is a single statement; the UNIQUE constraint on meeting_id is the
// dedup invariant.
type Store struct {
	db *sql.DB
}

var _ repo.Store = (*Store)(nil)
var _ repo.TokenSource = (*Store)(nil)

// NewStore opens (creating if needed) the state database.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS user_watermarks (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		last_teams_check INTEGER NOT NULL DEFAULT 0,
		last_zoom_check INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_watermarks_active ON user_watermarks(is_active)`,
	`CREATE TABLE IF NOT EXISTS meeting_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		meeting_id TEXT NOT NULL UNIQUE,
		platform TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		start_time INTEGER NOT NULL DEFAULT 0,
		end_time INTEGER NOT NULL DEFAULT 0,
		recording_ref TEXT NOT NULL DEFAULT '',
		chat_ref TEXT NOT NULL DEFAULT '',
		transcript_status TEXT NOT NULL DEFAULT 'pending',
		summary_status TEXT NOT NULL DEFAULT 'pending',
		summary_text TEXT,
		error_message TEXT,
		processed_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meeting_records_user_status
		ON meeting_records(user_id, platform, transcript_status, summary_status)`,
	`CREATE TABLE IF NOT EXISTS run_logs (
		id TEXT PRIMARY KEY,
		run_timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		users_processed INTEGER NOT NULL DEFAULT 0,
		meetings_found INTEGER NOT NULL DEFAULT 0,
		meetings_processed INTEGER NOT NULL DEFAULT 0,
		errors_count INTEGER NOT NULL DEFAULT 0,
		duration_seconds REAL NOT NULL DEFAULT 0,
		error_details TEXT,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_run_logs_timestamp ON run_logs(run_timestamp)`,
	// Written by the onboarding app; this service only reads. Tokens are
	// opaque here, decryption happens upstream.
	`CREATE TABLE IF NOT EXISTS user_tokens (
		user_id TEXT PRIMARY KEY,
		email TEXT,
		access_token TEXT NOT NULL,
		refresh_token TEXT,
		expires_at REAL,
		created_at INTEGER,
		updated_at INTEGER
	)`,
}

// ListActiveWatermarks returns scan state for users with is_active set.
func (s *Store) ListActiveWatermarks(ctx context.Context) ([]*domain.Watermark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, email, last_teams_check, last_zoom_check, is_active, created_at, updated_at
		FROM user_watermarks
		WHERE is_active = 1
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watermarks: %w", err)
	}
	defer rows.Close()

	var result []*domain.Watermark
	for rows.Next() {
		var w domain.Watermark
		var teams, zoom, createdAt, updatedAt int64
		var active int
		if err := rows.Scan(&w.UserID, &w.Email, &teams, &zoom, &active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watermark: %w", err)
		}
		w.IsActive = active != 0
		w.Last = map[domain.Platform]time.Time{}
		if teams > 0 {
			w.Last[domain.PlatformTeams] = time.Unix(teams, 0).UTC()
		}
		if zoom > 0 {
			w.Last[domain.PlatformZoom] = time.Unix(zoom, 0).UTC()
		}
		w.CreatedAt = time.Unix(createdAt, 0).UTC()
		w.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		result = append(result, &w)
	}
	return result, rows.Err()
}

// UpsertWatermark creates or replaces a user's scan state.
func (s *Store) UpsertWatermark(ctx context.Context, w *domain.Watermark) error {
	now := time.Now().Unix()
	active := 0
	if w.IsActive {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_watermarks (user_id, email, last_teams_check, last_zoom_check, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			last_teams_check = excluded.last_teams_check,
			last_zoom_check = excluded.last_zoom_check,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`,
		w.UserID,
		w.Email,
		unixOrZero(w.LastCheck(domain.PlatformTeams)),
		unixOrZero(w.LastCheck(domain.PlatformZoom)),
		active,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert watermark: %w", err)
	}
	return nil
}

// SetUserActive toggles scanning for a user without touching watermarks.
func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) error {
	val := 0
	if active {
		val = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_watermarks SET is_active = ?, updated_at = ? WHERE user_id = ?
	`, val, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown user %s", userID)
	}
	return nil
}

// AdvanceWatermark moves one platform column forward, never backward.
func (s *Store) AdvanceWatermark(ctx context.Context, userID string, platform domain.Platform, t time.Time) error {
	var col string
	switch platform {
	case domain.PlatformTeams:
		col = "last_teams_check"
	case domain.PlatformZoom:
		col = "last_zoom_check"
	default:
		return fmt.Errorf("unknown platform %q", platform)
	}

	query := fmt.Sprintf(`
		UPDATE user_watermarks
		SET %s = ?, updated_at = ?
		WHERE user_id = ? AND %s < ?
	`, col, col)

	ts := t.Unix()
	if _, err := s.db.ExecContext(ctx, query, ts, time.Now().Unix(), userID, ts); err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	return nil
}

// InsertMeeting persists a discovered meeting. Returns false when the
// meeting_id is already present; the caller skips the meeting entirely.
func (s *Store) InsertMeeting(ctx context.Context, rec *domain.MeetingRecord) (bool, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO meeting_records
			(user_id, meeting_id, platform, title, start_time, end_time,
			 recording_ref, chat_ref, transcript_status, summary_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.UserID,
		rec.MeetingID,
		string(rec.Platform),
		rec.Title,
		unixOrZero(rec.StartTime),
		unixOrZero(rec.EndTime),
		rec.RecordingRef,
		rec.ChatRef,
		string(domain.TranscriptPending),
		string(domain.SummaryPending),
		now,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert meeting: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return affected > 0, nil
}

// SetTranscriptStatus records the transcript outcome for a meeting.
func (s *Store) SetTranscriptStatus(ctx context.Context, meetingID string, status domain.TranscriptStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE meeting_records
		SET transcript_status = ?, error_message = ?, updated_at = ?
		WHERE meeting_id = ?
	`, string(status), nullIfEmpty(errMsg), time.Now().Unix(), meetingID)
	if err != nil {
		return fmt.Errorf("failed to update transcript status: %w", err)
	}
	return nil
}

// SetSummaryStatus records the summary outcome for a meeting.
func (s *Store) SetSummaryStatus(ctx context.Context, meetingID string, status domain.SummaryStatus, summary, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE meeting_records
		SET summary_status = ?, summary_text = ?, error_message = ?, updated_at = ?
		WHERE meeting_id = ?
	`, string(status), nullIfEmpty(summary), nullIfEmpty(errMsg), time.Now().Unix(), meetingID)
	if err != nil {
		return fmt.Errorf("failed to update summary status: %w", err)
	}
	return nil
}

// MarkPosted finalizes a meeting whose summary reached the chat.
func (s *Store) MarkPosted(ctx context.Context, meetingID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE meeting_records
		SET summary_status = ?, processed_at = ?, error_message = NULL, updated_at = ?
		WHERE meeting_id = ?
	`, string(domain.SummaryPosted), at.Unix(), time.Now().Unix(), meetingID)
	if err != nil {
		return fmt.Errorf("failed to mark posted: %w", err)
	}
	return nil
}

// ListAwaitingSummary returns meetings with a downloaded transcript whose
// summary is pending or failed on an earlier run.
func (s *Store) ListAwaitingSummary(ctx context.Context, userID string, platform domain.Platform) ([]*domain.MeetingRecord, error) {
	return s.listMeetings(ctx, `
		SELECT `+meetingColumns+`
		FROM meeting_records
		WHERE user_id = ? AND platform = ?
		  AND transcript_status = 'downloaded'
		  AND summary_status IN ('pending', 'failed')
		ORDER BY start_time
	`, userID, string(platform))
}

// ListAwaitingPost returns meetings whose summary is generated but not yet
// posted.
func (s *Store) ListAwaitingPost(ctx context.Context, userID string, platform domain.Platform) ([]*domain.MeetingRecord, error) {
	return s.listMeetings(ctx, `
		SELECT `+meetingColumns+`
		FROM meeting_records
		WHERE user_id = ? AND platform = ?
		  AND summary_status = 'generated'
		ORDER BY start_time
	`, userID, string(platform))
}

const meetingColumns = `id, user_id, meeting_id, platform, title, start_time, end_time,
	recording_ref, chat_ref, transcript_status, summary_status,
	summary_text, error_message, processed_at, created_at, updated_at`

func (s *Store) listMeetings(ctx context.Context, query string, args ...any) ([]*domain.MeetingRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}
	defer rows.Close()

	var result []*domain.MeetingRecord
	for rows.Next() {
		rec, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func scanMeeting(rows *sql.Rows) (*domain.MeetingRecord, error) {
	var rec domain.MeetingRecord
	var platform, transcriptStatus, summaryStatus string
	var summaryText, errorMessage sql.NullString
	var startTime, endTime, createdAt, updatedAt int64
	var processedAt sql.NullInt64

	err := rows.Scan(
		&rec.ID, &rec.UserID, &rec.MeetingID, &platform, &rec.Title,
		&startTime, &endTime, &rec.RecordingRef, &rec.ChatRef,
		&transcriptStatus, &summaryStatus, &summaryText, &errorMessage,
		&processedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan meeting: %w", err)
	}

	rec.Platform = domain.Platform(platform)
	rec.TranscriptStatus = domain.TranscriptStatus(transcriptStatus)
	rec.SummaryStatus = domain.SummaryStatus(summaryStatus)
	rec.SummaryText = summaryText.String
	rec.ErrorMessage = errorMessage.String
	if startTime > 0 {
		rec.StartTime = time.Unix(startTime, 0).UTC()
	}
	if endTime > 0 {
		rec.EndTime = time.Unix(endTime, 0).UTC()
	}
	if processedAt.Valid {
		rec.ProcessedAt = time.Unix(processedAt.Int64, 0).UTC()
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rec, nil
}

// GetMeeting returns one record by its qualified meeting id, nil when absent.
func (s *Store) GetMeeting(ctx context.Context, meetingID string) (*domain.MeetingRecord, error) {
	recs, err := s.listMeetings(ctx, `
		SELECT `+meetingColumns+`
		FROM meeting_records
		WHERE meeting_id = ?
	`, meetingID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// AppendRunLog writes the immutable record of one run.
func (s *Store) AppendRunLog(ctx context.Context, run *domain.RunLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_logs
			(id, run_timestamp, status, users_processed, meetings_found,
			 meetings_processed, errors_count, duration_seconds, error_details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.RunTimestamp.Unix(),
		string(run.Status),
		run.UsersProcessed,
		run.MeetingsFound,
		run.MeetingsProcessed,
		run.ErrorsCount,
		run.Duration.Seconds(),
		nullIfEmpty(run.ErrorDetails),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}
	return nil
}

// LatestRunLog returns the most recent run record, nil when none exist.
func (s *Store) LatestRunLog(ctx context.Context) (*domain.RunLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_timestamp, status, users_processed, meetings_found,
		       meetings_processed, errors_count, duration_seconds, error_details
		FROM run_logs
		ORDER BY run_timestamp DESC, created_at DESC
		LIMIT 1
	`)

	var run domain.RunLog
	var ts int64
	var status string
	var durationSec float64
	var details sql.NullString
	err := row.Scan(&run.ID, &ts, &status, &run.UsersProcessed, &run.MeetingsFound,
		&run.MeetingsProcessed, &run.ErrorsCount, &durationSec, &details)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run log: %w", err)
	}
	run.RunTimestamp = time.Unix(ts, 0).UTC()
	run.Status = domain.RunStatus(status)
	run.Duration = time.Duration(durationSec * float64(time.Second))
	run.ErrorDetails = details.String
	return &run, nil
}

// AccessToken implements repo.TokenSource from the shared user_tokens table.
func (s *Store) AccessToken(ctx context.Context, userID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT access_token FROM user_tokens WHERE user_id = ?`, userID)
	var token string
	if err := row.Scan(&token); err == sql.ErrNoRows {
		return "", fmt.Errorf("no token for user %s", userID)
	} else if err != nil {
		return "", fmt.Errorf("failed to query token: %w", err)
	}
	return token, nil
}

// SaveToken stores a user token; exists for onboarding tooling and tests.
func (s *Store) SaveToken(ctx context.Context, userID, email, accessToken string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_tokens (user_id, email, access_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			access_token = excluded.access_token,
			updated_at = excluded.updated_at
	`, userID, email, accessToken, now, now)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
