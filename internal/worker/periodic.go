package worker

import (
	"context"
	"time"

	"coparent/internal/log"
)

// Job is one run of a periodic task.
type Job func(ctx context.Context, now time.Time)

// Every runs job immediately and then on every tick of interval until ctx
// ends. Runs never overlap.
func Every(ctx context.Context, interval time.Duration, job Job) {
	job(ctx, time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			job(ctx, now)
		}
	}
}

// RecurringProcessor materializes due recurring expenses.
// *services.RecurringProcessor satisfies it.
type RecurringProcessor interface {
	ProcessDueExpenses(ctx context.Context, now time.Time) (int, error)
}

// RecurringJob wraps p for Every, logging each run.
func RecurringJob(p RecurringProcessor, logger *log.Logger) Job {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentRecurring)
	return func(ctx context.Context, now time.Time) {
		count, err := p.ProcessDueExpenses(ctx, now)
		if err != nil {
			logger.ErrorContext(ctx, "Recurring processing failed", log.FieldError, err)
			return
		}
		logger.InfoContext(ctx, "Recurring processing complete", "expenses_created", count)
	}
}

// Sweeper drops expired entries. *cache.Manager and *auth.OTPManager
// satisfy it.
type Sweeper interface {
	Sweep() int
}

// SweepJob wraps s for Every.
func SweepJob(name string, s Sweeper, logger *log.Logger) Job {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentWorker)
	return func(ctx context.Context, _ time.Time) {
		if n := s.Sweep(); n > 0 {
			logger.DebugContext(ctx, "Swept expired entries", "store", name, "removed", n)
		}
	}
}
