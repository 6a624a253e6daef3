// Package assessment runs the governance assessment operations: it loads an
// evaluation, checks the caller may act on it, applies one domain operation
// and persists the whole record once.
package assessment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/authz"
	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
	"github.com/governance-platform/assessment/pkg/storage"
)

// Policy holds the review and lifecycle rules that vary per deployment.
type Policy struct {
	// RequireJustification blocks approval while an adjusted criterion
	// has no justification.
	RequireJustification bool
	// RequireEvidenceVerification blocks approval while a level 3 claim
	// with evidence is neither verified nor adjusted down.
	RequireEvidenceVerification bool
	// AllowDeleteAfterSubmit lets organizations delete evaluations past
	// draft. Administrators may always delete.
	AllowDeleteAfterSubmit bool
	// EvidenceLimit is the decoded evidence size ceiling in bytes.
	EvidenceLimit int64
}

// DefaultPolicy returns the default rules.
func DefaultPolicy() Policy {
	return Policy{
		RequireJustification:        true,
		RequireEvidenceVerification: true,
		AllowDeleteAfterSubmit:      true,
		EvidenceLimit:               evaluation.DefaultEvidenceLimit,
	}
}

// Service orchestrates evaluation operations over a repository.
type Service struct {
	repo     *storage.Repository
	catalog  *criteria.Catalog
	machine  *evaluation.LifecycleMachine
	recorder audit.Recorder
	history  *audit.Store
	auditCfg *audit.Config
	policy   Policy
	now      func() time.Time
	logger   *slog.Logger
	meter    metric.Meter
	metrics  *metrics

	// mu serializes read-modify-write cycles within the process.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithAuditStore records events in store and serves History from it.
func WithAuditStore(store *audit.Store, cfg *audit.Config) Option {
	return func(s *Service) {
		s.history = store
		s.auditCfg = cfg
	}
}

// WithRecorder sets the audit recorder without a history store.
func WithRecorder(r audit.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMeter sets the meter instruments are created from. The default is the
// global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) { s.meter = m }
}

// New creates a Service. A nil catalog uses criteria.Default().
func New(repo *storage.Repository, catalog *criteria.Catalog, opts ...Option) (*Service, error) {
	if catalog == nil {
		catalog = criteria.Default()
	}
	s := &Service{
		repo:     repo,
		catalog:  catalog,
		machine:  evaluation.NewLifecycleMachine(),
		policy:   DefaultPolicy(),
		now:      time.Now,
		logger:   slog.Default().With(slog.String("component", "assessment")),
	}
	for _, o := range opts {
		o(s)
	}
	if s.recorder == nil {
		if s.history != nil {
			s.recorder = audit.NewStoreRecorder(s.history, s.auditCfg, s.logger)
		} else {
			s.recorder = audit.NopRecorder{}
		}
	}
	if s.meter == nil {
		s.meter = otel.Meter(meterName)
	}
	m, err := newMetrics(s.meter)
	if err != nil {
		return nil, fmt.Errorf("create assessment metrics: %w", err)
	}
	s.metrics = m
	return s, nil
}

// Catalog returns the criteria catalog the service scores against.
func (s *Service) Catalog() *criteria.Catalog {
	return s.catalog
}

// Policy returns the active rules.
func (s *Service) Policy() Policy {
	return s.policy
}

// mutation describes one read-modify-write operation.
type mutation struct {
	op       string
	resource string
	verb     string
	event    string
	apply    func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error)
}

// mutate runs m against evaluation id and persists the result. Nothing is
// stored when apply fails.
func (s *Service) mutate(ctx context.Context, who authz.Identity, id int64, m mutation) (*evaluation.Evaluation, error) {
	if err := s.authorize(ctx, who, id, m.op, m.resource, m.verb); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, m.op, err)
	}
	if !canView(who, e) {
		err := evaluation.ForbiddenError("evaluation %d is not visible to %s", id, who.ID)
		s.denied(ctx, who, id, m.op, err)
		return nil, s.fail(ctx, m.op, err)
	}
	from := e.Status
	now := s.now()

	ev, err := m.apply(e, now)
	if err != nil {
		if isForbidden(err) {
			s.denied(ctx, who, id, m.op, err)
		}
		return nil, s.fail(ctx, m.op, err)
	}
	if err := s.repo.Save(ctx, e); err != nil {
		return nil, s.fail(ctx, m.op, err)
	}

	if from != e.Status {
		s.metrics.transition(ctx, from, e.Status)
	}
	if ev == nil {
		ev = &audit.EventRecord{}
	}
	ev.EventType = m.event
	ev.Action = m.op
	ev.Actor = who.ID
	ev.ActorRole = string(who.Role)
	ev.EvaluationID = e.ID
	ev.FromStatus = string(from)
	ev.ToStatus = string(e.Status)
	s.recorder.Record(ctx, ev)

	s.logger.DebugContext(ctx, "evaluation updated",
		"op", m.op, "evaluationId", e.ID, "revision", e.Revision, "status", e.Status)
	return e, nil
}

// fail counts err against op and returns it unchanged.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	s.metrics.failure(ctx, op, err)
	return err
}
