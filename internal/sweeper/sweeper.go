// Package sweeper runs scheduled maintenance: pruning expired
// rate-limit windows and finishing message purges left behind by
// interrupted conversation deletes.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/ratelimit"
	"huddle/pkg/store"
)

// windowSlack keeps limiter entries around a little past their window
// so in-flight checks never see a freshly pruned key.
const windowSlack = 2

// Start launches the cron scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg *config.Config, limiter *ratelimit.Limiter) (context.CancelFunc, error) {
	if !cfg.Sweeper.Enabled {
		logger.Info("sweeper_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Sweeper.Cron
	if cronExpr == "" {
		cronExpr = "*/10 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweeper_invalid_cron", zap.String("cron", cfg.Sweeper.Cron))
		return nil, fmt.Errorf("invalid sweeper cron expression: %s", cfg.Sweeper.Cron)
	}

	maxAge := maxWindow(cfg) * windowSlack
	logger.Info("sweeper_enabled", zap.String("cron", cronExpr), zap.Duration("limiter_max_age", maxAge))

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, limiter, maxAge)
	return cancel, nil
}

func maxWindow(cfg *config.Config) time.Duration {
	w := cfg.Limits.Send.Window.Duration()
	if d := cfg.Limits.Edit.Window.Duration(); d > w {
		w = d
	}
	if d := cfg.Limits.Support.Window.Duration(); d > w {
		w = d
	}
	if w <= 0 {
		w = time.Hour
	}
	return w
}

// runScheduler sleeps until the next cron tick, runs one sweep, and
// repeats until the context is cancelled.
func runScheduler(ctx context.Context, cronExpr string, limiter *ratelimit.Limiter, maxAge time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweeper_nexttick_failed", zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("sweeper_stopping")
			return
		}

		RunOnce(limiter, maxAge)
	}
}

// RunOnce performs a single maintenance pass. Exported so tests and
// admin triggers can invoke it directly.
func RunOnce(limiter *ratelimit.Limiter, maxAge time.Duration) {
	start := time.Now()

	pruned := limiter.Sweep(maxAge)

	// finish purges interrupted between mark and message deletion
	resumed := 0
	marks, err := store.ListPurgeMarks()
	if err != nil {
		logger.Error("sweeper_purge_list_failed", zap.Error(err))
	} else {
		for _, convID := range marks {
			if err := store.PurgeMessages(convID); err != nil {
				logger.Error("sweeper_purge_failed", zap.String("conversation", convID), zap.Error(err))
				continue
			}
			if err := store.ClearPurgeMark(convID); err != nil {
				logger.Error("sweeper_purge_unmark_failed", zap.String("conversation", convID), zap.Error(err))
				continue
			}
			resumed++
		}
	}

	logger.Info("sweep_complete",
		zap.Int("limiter_pruned", pruned),
		zap.Int("purges_resumed", resumed),
		zap.Duration("took", time.Since(start)))
}
