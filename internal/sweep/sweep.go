// Package sweep runs the scheduled downgrade of expired subscriptions.
//
// Quota and feature decisions never depend on the sweep; they evaluate the
// subscription's expiration at read time. The sweep only reconciles stored
// rows so dashboards and exports see the tenant on the free tier.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/velurapp/velura/internal/metrics"
	"github.com/velurapp/velura/internal/service"
)

// Runner schedules periodic downgrade sweeps.
type Runner struct {
	subs     service.SubscriptionService
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewRunner creates a sweep runner with a cron schedule expression,
// e.g. "@hourly" or "*/15 * * * *".
func NewRunner(subs service.SubscriptionService, schedule string, logger *slog.Logger) *Runner {
	return &Runner{
		subs:     subs,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the sweep job and starts the scheduler. It returns an
// error if the schedule expression does not parse.
func (r *Runner) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		// Each run gets its own deadline so a stuck database cannot pile
		// up overlapping sweeps forever.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		r.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Info("sweep scheduler started", "schedule", r.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("sweep scheduler stopped")
}

// RunOnce executes a single sweep and records its metrics. Safe to call
// concurrently with the scheduler; the sweep is idempotent.
func (r *Runner) RunOnce(ctx context.Context) {
	start := time.Now()

	downgraded, err := r.subs.DowngradeExpired(ctx)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		r.logger.Error("sweep run failed", "error", err)
		return
	}

	metrics.SweepRuns.WithLabelValues("ok").Inc()
	r.logger.Info("sweep run complete", "downgraded", downgraded, "duration_ms", time.Since(start).Milliseconds())
}
