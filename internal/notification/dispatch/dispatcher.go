// Package dispatch sends pending email jobs through the configured provider.
package dispatch

import (
	"context"
	"time"

	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/internal/lock"
	"github.com/smallbiznis/procura/internal/notification/domain"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	"github.com/smallbiznis/procura/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const leaderLockKey = "procura:email_dispatch:leader"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Provider email.Provider
	Clock    clock.Clock
	Config   *config.NotificationConfigHolder
	Locker   *lock.Locker      `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

type Dispatcher struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	provider email.Provider
	clock    clock.Clock
	config   *config.NotificationConfigHolder
	locker   *lock.Locker
	metrics  *metrics.Metrics
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		db:       p.DB,
		log:      p.Log.Named("notification.dispatch"),
		repo:     p.Repo,
		provider: p.Provider,
		clock:    p.Clock,
		config:   p.Config,
		locker:   p.Locker,
		metrics:  p.Metrics,
	}
}

// Run dispatches on every tick until ctx is done. The interval is re-read
// after each tick so config reloads take effect.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		interval := d.config.Get().Dispatch.Interval
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if _, err := d.Tick(ctx); err != nil && ctx.Err() == nil {
			d.log.Error("email dispatch failed", zap.Error(err))
		}
	}
}

// Tick runs one batch while holding the leader lock, renewing the lease for
// as long as the batch runs. Without Redis every instance dispatches and the
// per-job claim alone keeps a job from being sent twice.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	cfg := d.config.Get().Dispatch
	token, ok, err := d.locker.TryLock(ctx, leaderLockKey, cfg.LockTTL)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	defer func() {
		if err := d.locker.Release(context.WithoutCancel(ctx), leaderLockKey, token); err != nil {
			d.log.Warn("release dispatch lock failed", zap.Error(err))
		}
	}()

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := d.keepLease(batchCtx, cancel, token, cfg.LockTTL)
	defer stop()

	return d.DispatchOnce(batchCtx, cfg.BatchSize)
}

// keepLease extends the leader lock every third of its ttl and cancels the
// batch once the lease is lost.
func (d *Dispatcher) keepLease(ctx context.Context, cancel context.CancelFunc, token string, ttl time.Duration) func() {
	if d.locker == nil {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := d.locker.Extend(ctx, leaderLockKey, token, ttl)
				if err != nil || !ok {
					d.log.Warn("dispatch lease lost, stopping batch", zap.Error(err))
					cancel()
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

const interruptedReason = "dispatch interrupted before the provider confirmed delivery"

// DispatchOnce sends up to limit pending jobs, oldest first, and returns how
// many were sent. Each job is claimed (pending -> sending) before the provider
// sees it, so concurrent dispatchers never send the same job. A send failure
// marks the job failed; it is not retried. Jobs stuck in sending longer than
// the claim timeout are failed first, since whether they went out is unknown.
func (d *Dispatcher) DispatchOnce(ctx context.Context, limit int) (int, error) {
	if !email.Configured(d.provider) {
		return 0, nil
	}

	cfg := d.config.Get().Dispatch
	now := d.clock.Now()
	stale, err := d.repo.FailStaleEmailJobs(ctx, d.db, now.Add(-cfg.ClaimTimeout), now, interruptedReason)
	if err != nil {
		return 0, err
	}
	if stale > 0 {
		d.log.Warn("failed interrupted email jobs", zap.Int64("count", stale))
	}

	jobs, err := d.repo.ListPendingEmailJobs(ctx, d.db, limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		claimed, err := d.repo.TransitionEmailJob(ctx, d.db, job.OrgID, job.ID, domain.EmailPending, map[string]any{
			"status":     domain.EmailSending,
			"updated_at": d.clock.Now(),
		})
		if err != nil {
			return sent, err
		}
		if claimed != 1 {
			continue
		}

		sendErr := d.provider.Send(ctx, email.Message{
			To:       job.RecipientEmail,
			Subject:  job.Subject,
			HTMLBody: job.Body,
		})

		done := d.clock.Now()
		updates := map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": done,
		}
		status := domain.EmailSent
		if sendErr != nil {
			status = domain.EmailFailed
			updates["last_error"] = sendErr.Error()
		} else {
			updates["sent_at"] = done
		}
		updates["status"] = status

		// The outcome is recorded even when ctx was cancelled mid-send.
		rows, err := d.repo.TransitionEmailJob(context.WithoutCancel(ctx), d.db, job.OrgID, job.ID, domain.EmailSending, updates)
		if err != nil {
			return sent, err
		}
		if rows == 0 {
			continue
		}

		d.metrics.RecordEmailJob(ctx, string(status))
		if sendErr != nil {
			d.log.Warn("email send failed",
				zap.String("org_id", job.OrgID.String()),
				zap.String("email_job_id", job.ID.String()),
				zap.Error(sendErr),
			)
			continue
		}
		sent++
	}
	return sent, nil
}
