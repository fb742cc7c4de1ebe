package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
	"github.com/anthropics/meeting-recap/internal/biz/repo"
	"github.com/anthropics/meeting-recap/internal/metrics"
)

// keep run logs readable when many meetings fail the same way
const maxErrorDetails = 20

// Config bounds one pipeline run.
type Config struct {
	// Lookback is the scan window for users never scanned on a platform.
	Lookback time.Duration
	// Overlap widens each incremental window backward past the watermark to
	// catch meetings that became visible late. Must be at least the
	// platform's event-visibility delay; rediscovery is absorbed by
	// dedup-insert.
	Overlap time.Duration
	// MaxMeetingsPerUser caps candidates per user per platform per run.
	MaxMeetingsPerUser int
	// Workers bounds per-user parallelism.
	Workers int
}

// Pipeline drives one ingestion-and-summarization run across all active
// users. Per-meeting and per-user failures are counted, never fatal; only a
// state-store failure aborts the run.
type Pipeline struct {
	store      repo.Store
	connectors []repo.Connector
	summarizer repo.Summarizer
	cfg        Config
	log        *zap.Logger

	now func() time.Time
}

// NewPipeline wires the orchestrator. Connectors decide which platforms are
// scanned; passing only one disables the other platform entirely.
func NewPipeline(store repo.Store, connectors []repo.Connector, summarizer repo.Summarizer, cfg Config, log *zap.Logger) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxMeetingsPerUser < 1 {
		cfg.MaxMeetingsPerUser = 50
	}
	return &Pipeline{
		store:      store,
		connectors: connectors,
		summarizer: summarizer,
		cfg:        cfg,
		log:        log.Named("pipeline"),
		now:        time.Now,
	}
}

// runStats aggregates counters across concurrent user tasks.
type runStats struct {
	mu        sync.Mutex
	users     int
	found     int
	processed int
	errors    int
	details   []string
}

func (s *runStats) merge(u *userStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users++
	s.found += u.found
	s.processed += u.processed
	s.errors += u.errors
	for _, d := range u.details {
		if len(s.details) < maxErrorDetails {
			s.details = append(s.details, d)
		}
	}
}

type userStats struct {
	found     int
	processed int
	errors    int
	details   []string
}

func (u *userStats) fail(userID string, platform domain.Platform, op string, err error) {
	u.errors++
	u.details = append(u.details, fmt.Sprintf("user=%s platform=%s %s: %v", userID, platform, op, err))
}

// Run executes one complete sweep and persists its RunLog. The returned error
// is non-nil only for structural failures, which also produce status=failed.
func (p *Pipeline) Run(ctx context.Context) (*domain.RunLog, error) {
	started := p.now()
	run := &domain.RunLog{
		ID:           uuid.NewString(),
		RunTimestamp: started,
		Status:       domain.RunSuccess,
	}

	users, err := p.store.ListActiveWatermarks(ctx)
	if err != nil {
		storeErr := &domain.StoreError{Op: "list active users", Err: err}
		run.Status = domain.RunFailed
		run.ErrorsCount = 1
		run.ErrorDetails = storeErr.Error()
		run.Duration = p.now().Sub(started)
		if logErr := p.store.AppendRunLog(ctx, run); logErr != nil {
			p.log.Error("failed to persist run log after store failure", zap.Error(logErr))
		}
		return run, storeErr
	}

	metrics.ActiveUsers.Set(float64(len(users)))
	p.log.Info("run started",
		zap.String("run_id", run.ID),
		zap.Int("active_users", len(users)),
		zap.Int("workers", p.cfg.Workers))

	stats := &runStats{}

	// Store failures propagate through the group and cancel the remaining
	// user tasks; everything else is absorbed into the stats.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, user := range users {
		user := user
		g.Go(func() error {
			st, err := p.processUser(gctx, user)
			stats.merge(st)
			return err
		})
	}
	fatal := g.Wait()

	run.UsersProcessed = stats.users
	run.MeetingsFound = stats.found
	run.MeetingsProcessed = stats.processed
	run.ErrorsCount = stats.errors
	run.ErrorDetails = strings.Join(stats.details, "\n")

	switch {
	case fatal != nil:
		run.Status = domain.RunFailed
		run.ErrorsCount++
		if run.ErrorDetails != "" {
			run.ErrorDetails += "\n"
		}
		run.ErrorDetails += fatal.Error()
	case stats.errors > 0:
		run.Status = domain.RunPartial
	}

	run.Duration = p.now().Sub(started)
	if err := p.store.AppendRunLog(ctx, run); err != nil {
		p.log.Error("failed to persist run log", zap.Error(err))
		if fatal == nil {
			fatal = &domain.StoreError{Op: "append run log", Err: err}
			run.Status = domain.RunFailed
		}
	}

	p.log.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("users_processed", run.UsersProcessed),
		zap.Int("meetings_found", run.MeetingsFound),
		zap.Int("meetings_processed", run.MeetingsProcessed),
		zap.Int("errors", run.ErrorsCount),
		zap.String("duration", domain.FormatDuration(run.Duration)))

	return run, fatal
}

// processUser scans every platform for one user. Platforms are sequential
// within a user so each watermark advance observes its own list outcome.
func (p *Pipeline) processUser(ctx context.Context, user *domain.Watermark) (*userStats, error) {
	st := &userStats{}
	for _, conn := range p.connectors {
		if ctx.Err() != nil {
			// run timeout or a fatal store error elsewhere: stop scheduling
			// further platform scans, in-flight work has already finished
			return st, nil
		}
		if err := p.scanPlatform(ctx, user, conn, st); err != nil {
			return st, err
		}
	}
	return st, nil
}

// scanPlatform runs the full discover → transcript → summarize → post cycle
// for one user on one platform. The returned error is store-fatal only.
func (p *Pipeline) scanPlatform(ctx context.Context, user *domain.Watermark, conn repo.Connector, st *userStats) error {
	platform := conn.Platform()
	log := p.log.With(zap.String("user_id", user.UserID), zap.String("platform", string(platform)))

	until := p.now()
	since := user.LastCheck(platform)
	if since.IsZero() {
		since = until.Add(-p.cfg.Lookback)
	} else {
		since = since.Add(-p.cfg.Overlap)
	}

	candidates, err := conn.ListRecordings(ctx, user, since, until, p.cfg.MaxMeetingsPerUser)
	if err != nil {
		// no watermark advance: the same window is re-scanned next run
		st.fail(user.UserID, platform, "list recordings", err)
		log.Warn("platform scan failed, watermark unchanged", zap.Error(err))
		return nil
	}
	st.found += len(candidates)
	if len(candidates) > p.cfg.MaxMeetingsPerUser {
		candidates = candidates[:p.cfg.MaxMeetingsPerUser]
	}

	// transcripts fetched this run, so the summary sweep below does not
	// re-download what discovery just produced
	transcripts := make(map[string]string)

	for _, cand := range candidates {
		if err := p.ingestCandidate(ctx, user, conn, cand, transcripts, st, log); err != nil {
			return err
		}
	}

	if err := p.summarizeDownloaded(ctx, user, conn, transcripts, st, log); err != nil {
		return err
	}
	if err := p.postGenerated(ctx, user, conn, st, log); err != nil {
		return err
	}

	// list succeeded: advance regardless of individual meeting outcomes
	if err := p.store.AdvanceWatermark(ctx, user.UserID, platform, until); err != nil {
		return &domain.StoreError{Op: "advance watermark", Err: err}
	}
	user.SetLastCheck(platform, until)
	log.Debug("watermark advanced", zap.Time("until", until))
	return nil
}

// ingestCandidate dedup-inserts one discovered meeting and downloads its
// transcript. Already-present meetings are skipped entirely.
func (p *Pipeline) ingestCandidate(ctx context.Context, user *domain.Watermark, conn repo.Connector, cand *domain.Candidate, transcripts map[string]string, st *userStats, log *zap.Logger) error {
	rec := domain.NewMeetingRecord(user.UserID, cand)

	inserted, err := p.store.InsertMeeting(ctx, rec)
	if err != nil {
		return &domain.StoreError{Op: "insert meeting", Err: err}
	}
	if !inserted {
		log.Debug("meeting already known, skipping", zap.String("meeting_id", rec.MeetingID))
		return nil
	}

	text, err := conn.FetchTranscript(ctx, rec)
	if err != nil {
		var notFound *domain.TranscriptNotFoundError
		if errors.As(err, &notFound) {
			// expected business outcome, terminal for this meeting and not
			// counted as an operational error
			log.Info("no transcript available", zap.String("meeting_id", rec.MeetingID))
			if err := p.store.SetTranscriptStatus(ctx, rec.MeetingID, domain.TranscriptFailed, domain.ReasonTranscriptNotAvailable); err != nil {
				return &domain.StoreError{Op: "set transcript status", Err: err}
			}
			return nil
		}
		st.fail(user.UserID, cand.Platform, "fetch transcript "+rec.MeetingID, err)
		log.Warn("transcript download failed", zap.String("meeting_id", rec.MeetingID), zap.Error(err))
		if err := p.store.SetTranscriptStatus(ctx, rec.MeetingID, domain.TranscriptFailed, err.Error()); err != nil {
			return &domain.StoreError{Op: "set transcript status", Err: err}
		}
		return nil
	}

	if err := p.store.SetTranscriptStatus(ctx, rec.MeetingID, domain.TranscriptDownloaded, ""); err != nil {
		return &domain.StoreError{Op: "set transcript status", Err: err}
	}
	transcripts[rec.MeetingID] = text
	return nil
}

// summarizeDownloaded generates summaries for every meeting of this user and
// platform with a transcript and no summary yet, including failed summaries
// carried over from earlier runs.
func (p *Pipeline) summarizeDownloaded(ctx context.Context, user *domain.Watermark, conn repo.Connector, transcripts map[string]string, st *userStats, log *zap.Logger) error {
	recs, err := p.store.ListAwaitingSummary(ctx, user.UserID, conn.Platform())
	if err != nil {
		return &domain.StoreError{Op: "list awaiting summary", Err: err}
	}

	for _, rec := range recs {
		text, ok := transcripts[rec.MeetingID]
		if !ok {
			// carried over from an earlier run; transcript text is not
			// persisted, fetch it again
			text, err = conn.FetchTranscript(ctx, rec)
			if err != nil {
				st.fail(user.UserID, rec.Platform, "refetch transcript "+rec.MeetingID, err)
				log.Warn("transcript refetch failed", zap.String("meeting_id", rec.MeetingID), zap.Error(err))
				continue
			}
		}

		summary, err := p.summarizer.Summarize(ctx, rec.Title, text)
		if err != nil {
			st.fail(user.UserID, rec.Platform, "summarize "+rec.MeetingID, err)
			log.Warn("summary generation failed", zap.String("meeting_id", rec.MeetingID), zap.Error(err))
			if serr := p.store.SetSummaryStatus(ctx, rec.MeetingID, domain.SummaryFailed, "", err.Error()); serr != nil {
				return &domain.StoreError{Op: "set summary status", Err: serr}
			}
			continue
		}

		if err := p.store.SetSummaryStatus(ctx, rec.MeetingID, domain.SummaryGenerated, summary, ""); err != nil {
			return &domain.StoreError{Op: "set summary status", Err: err}
		}
		log.Info("summary generated", zap.String("meeting_id", rec.MeetingID))
	}
	return nil
}

// postGenerated posts every generated-but-unposted summary. A post failure
// leaves the meeting at generated so the next run retries the post without
// re-summarizing; the platform offers no idempotency, so the summary_status
// transition is the at-most-once-per-run guard.
func (p *Pipeline) postGenerated(ctx context.Context, user *domain.Watermark, conn repo.Connector, st *userStats, log *zap.Logger) error {
	recs, err := p.store.ListAwaitingPost(ctx, user.UserID, conn.Platform())
	if err != nil {
		return &domain.StoreError{Op: "list awaiting post", Err: err}
	}

	for _, rec := range recs {
		message := p.summarizer.FormatMessage(rec.Title, rec.SummaryText, rec.Platform)
		if err := conn.PostSummary(ctx, rec, message); err != nil {
			st.fail(user.UserID, rec.Platform, "post summary "+rec.MeetingID, err)
			log.Warn("summary post failed, will retry next run", zap.String("meeting_id", rec.MeetingID), zap.Error(err))
			continue
		}
		if err := p.store.MarkPosted(ctx, rec.MeetingID, p.now()); err != nil {
			return &domain.StoreError{Op: "mark posted", Err: err}
		}
		st.processed++
		metrics.MeetingsProcessed.WithLabelValues(string(rec.Platform), "posted").Inc()
		log.Info("summary posted", zap.String("meeting_id", rec.MeetingID))
	}
	return nil
}
