package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Recorder receives one event per evaluation operation.
type Recorder interface {
	Record(ctx context.Context, event *EventRecord)
}

// NopRecorder discards events.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, *EventRecord) {}

// StoreRecorder writes events to a Store. Writes are best-effort: a failure
// is logged and never reaches the caller.
type StoreRecorder struct {
	store  *Store
	cfg    *Config
	logger *slog.Logger
	now    func() time.Time
}

// NewStoreRecorder creates a StoreRecorder. A nil cfg uses DefaultConfig.
func NewStoreRecorder(store *Store, cfg *Config, logger *slog.Logger) *StoreRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &StoreRecorder{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Record implements Recorder.
func (r *StoreRecorder) Record(ctx context.Context, event *EventRecord) {
	if r.store == nil || !r.cfg.Enabled {
		return
	}
	if event.Outcome == OutcomeDenied && !r.cfg.LogDenied {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now()
	}
	if event.RequestID == "" {
		event.RequestID = middleware.GetReqID(ctx)
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}
	if err := r.store.Append(ctx, event); err != nil {
		r.logger.Error("failed to write audit event",
			"error", err,
			"eventType", event.EventType,
			"evaluationId", event.EvaluationID,
			"requestID", event.RequestID)
	}
}
