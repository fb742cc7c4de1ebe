package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/meeting-recap/internal/biz/domain"
	"github.com/anthropics/meeting-recap/internal/biz/usecase"
	"github.com/anthropics/meeting-recap/internal/metrics"
)

// Runner invokes the pipeline on a fixed interval. At most one run is in
// flight at a time; if a run outlasts the interval the next tick is skipped
// rather than queued.
type Runner struct {
	pipeline *usecase.Pipeline
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger

	inFlight atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRunner creates the interval runner. A zero timeout means runs are only
// bounded by the runner's lifecycle context.
func NewRunner(pipeline *usecase.Pipeline, interval, timeout time.Duration, log *zap.Logger) *Runner {
	return &Runner{
		pipeline: pipeline,
		interval: interval,
		timeout:  timeout,
		log:      log.Named("runner"),
	}
}

// Start launches the interval loop, firing an immediate first run.
func (r *Runner) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.loop()
	r.log.Info("runner started", zap.Duration("interval", r.interval))
}

// Stop cancels any in-flight run and waits for the loop to exit.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("runner stopped")
}

func (r *Runner) loop() {
	defer r.wg.Done()

	r.RunOnce(r.ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(r.ctx)
		}
	}
}

// RunOnce executes a single pipeline run, skipping when one is already in
// flight. The skip keeps overlapping ticks from racing on watermarks.
func (r *Runner) RunOnce(ctx context.Context) (*domain.RunLog, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.log.Warn("previous run still in flight, skipping tick")
		return nil, nil
	}
	defer r.inFlight.Store(false)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	run, err := r.pipeline.Run(ctx)

	elapsed := time.Since(started)
	metrics.RunDuration.Observe(elapsed.Seconds())
	if run != nil {
		metrics.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	}

	if err != nil {
		r.log.Error("run failed", zap.Error(err), zap.String("duration", domain.FormatDuration(elapsed)))
	}
	return run, err
}
