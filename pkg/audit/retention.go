package audit

import (
	"context"
	"log/slog"
	"time"
)

// Holder names the evaluations whose audit trail is kept past the retention
// window, such as reviews still in progress or certificates still valid.
type Holder interface {
	HeldEvaluations(ctx context.Context, now time.Time) ([]int64, error)
}

// RetentionWorker prunes audit events older than the retention window,
// except those of held evaluations.
type RetentionWorker struct {
	store     *Store
	holder    Holder
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewRetentionWorker keeps retentionDays of events and prunes once a day.
// A nil holder holds nothing.
func NewRetentionWorker(store *Store, holder Holder, retentionDays int, logger *slog.Logger) *RetentionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionWorker{
		store:     store,
		holder:    holder,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

// Run prunes once at start and then on every tick until ctx is done.
func (w *RetentionWorker) Run(ctx context.Context) {
	days := int(w.retention.Hours() / 24)
	if w.store == nil || w.retention <= 0 {
		w.logger.Info("audit retention disabled", "hasStore", w.store != nil, "retentionDays", days)
		return
	}
	w.logger.Info("audit retention started", "retentionDays", days, "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.prune(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("audit retention stopped")
			return
		case <-ticker.C:
		}
	}
}

// prune runs one pass and returns how many events were deleted. When the
// held evaluations cannot be listed nothing is deleted.
func (w *RetentionWorker) prune(ctx context.Context) int64 {
	now := w.now()
	var held []int64
	if w.holder != nil {
		var err error
		if held, err = w.holder.HeldEvaluations(ctx, now); err != nil {
			w.logger.Error("audit retention skipped: cannot list held evaluations", "error", err)
			return 0
		}
	}
	cutoff := now.Add(-w.retention)
	deleted, err := w.store.DeleteOlderThan(ctx, cutoff, held)
	if err != nil {
		w.logger.Error("audit retention failed", "error", err)
		return 0
	}
	if deleted > 0 {
		w.logger.Info("audit events pruned",
			"deleted", deleted, "held", len(held), "cutoff", cutoff.Format(time.RFC3339))
	}
	return deleted
}
