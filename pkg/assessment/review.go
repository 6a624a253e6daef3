package assessment

import (
	"context"
	"strings"
	"time"

	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/authz"
	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
	"github.com/governance-platform/assessment/pkg/scoring"
)

// Assign attaches an evaluator to a submitted evaluation. Only
// administrators assign.
func (s *Service) Assign(ctx context.Context, who authz.Identity, id int64, evaluator evaluation.Reviewer) (*evaluation.Evaluation, error) {
	return s.mutate(ctx, who, id, mutation{
		op:       OpAssign,
		resource: authz.ResourceAssignments,
		verb:     authz.VerbCreate,
		event:    audit.EventReviewAssigned,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			prev := e.EvaluatorID()
			if err := e.Assign(evaluator, who.ID, now); err != nil {
				return nil, err
			}
			return &audit.EventRecord{
				OldValue: audit.JSONAny{"evaluatorId": prev},
				NewValue: audit.JSONAny{"evaluatorId": evaluator.ID, "evaluatorName": evaluator.Name},
			}, nil
		},
	})
}

// StartReview claims the evaluation for the calling evaluator and marks it
// under review.
func (s *Service) StartReview(ctx context.Context, who authz.Identity, id int64) (*evaluation.Evaluation, error) {
	return s.mutate(ctx, who, id, mutation{
		op:       OpStartReview,
		resource: authz.ResourceReviews,
		verb:     authz.VerbUpdate,
		event:    audit.EventReviewStarted,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if _, err := e.EnsureReview(reviewer(who), now); err != nil {
				return nil, err
			}
			if err := e.StartReview(s.machine, now); err != nil {
				return nil, err
			}
			return nil, nil
		},
	})
}

// Adjust overrides the organization's level for key. An empty justification
// keeps the previous one.
func (s *Service) Adjust(ctx context.Context, who authz.Identity, id int64, key criteria.Key, level int, justification string) (*evaluation.Evaluation, error) {
	return s.mutate(ctx, who, id, mutation{
		op:       OpAdjust,
		resource: authz.ResourceReviews,
		verb:     authz.VerbUpdate,
		event:    audit.EventReviewUpdated,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			r, err := e.EnsureReview(reviewer(who), now)
			if err != nil {
				return nil, err
			}
			prev, had := r.Adjustments[key]
			if err := e.SetAdjustment(key, level, justification, now); err != nil {
				return nil, err
			}
			ev := &audit.EventRecord{
				NewValue: audit.JSONAny{"key": key.String(), "evaluatorLevel": level, "adjusted": r.Adjustments[key].Adjusted},
			}
			if had {
				ev.OldValue = audit.JSONAny{"key": key.String(), "evaluatorLevel": prev.EvaluatorLevel}
			}
			return ev, nil
		},
	})
}

// Justify sets the justification of an existing adjustment.
func (s *Service) Justify(ctx context.Context, who authz.Identity, id int64, key criteria.Key, text string) (*evaluation.Evaluation, error) {
	return s.mutate(ctx, who, id, mutation{
		op:       OpJustify,
		resource: authz.ResourceReviews,
		verb:     authz.VerbUpdate,
		event:    audit.EventReviewUpdated,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if _, err := e.EnsureReview(reviewer(who), now); err != nil {
				return nil, err
			}
			if err := e.SetJustification(key, text, now); err != nil {
				return nil, err
			}
			return &audit.EventRecord{NewValue: audit.JSONAny{"key": key.String(), "justification": text}}, nil
		},
	})
}

// Verify records the evaluator's verdict on the evidence for key.
func (s *Service) Verify(ctx context.Context, who authz.Identity, id int64, key criteria.Key, rec evaluation.VerificationRecord) (*evaluation.Evaluation, error) {
	return s.mutate(ctx, who, id, mutation{
		op:       OpVerify,
		resource: authz.ResourceReviews,
		verb:     authz.VerbUpdate,
		event:    audit.EventReviewUpdated,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if _, err := e.EnsureReview(reviewer(who), now); err != nil {
				return nil, err
			}
			if err := e.SetVerification(key, rec, now); err != nil {
				return nil, err
			}
			return &audit.EventRecord{NewValue: audit.JSONAny{
				"key": key.String(), "verified": rec.Verified, "quality": rec.Quality, "adequacy": string(rec.Adequacy),
			}}, nil
		},
	})
}

// AdjustmentInput is one adjustment in a ReviewPatch. A nil EvaluatorLevel
// updates only the justification.
type AdjustmentInput struct {
	EvaluatorLevel *int   `json:"evaluatorLevel,omitempty"`
	Justification  string `json:"justification"`
}

// ReviewPatch is a batch of review edits saved together.
type ReviewPatch struct {
	Adjustments    map[criteria.Key]AdjustmentInput               `json:"adjustments,omitempty"`
	Verifications  map[criteria.Key]evaluation.VerificationRecord `json:"verifications,omitempty"`
	OverallComment *string                                        `json:"overallComment,omitempty"`
}

func sortedKeys[V any](m map[criteria.Key]V) []criteria.Key {
	keys := make([]criteria.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	criteria.SortKeys(keys)
	return keys
}

func (p ReviewPatch) apply(e *evaluation.Evaluation, now time.Time) error {
	for _, k := range sortedKeys(p.Adjustments) {
		in := p.Adjustments[k]
		var err error
		if in.EvaluatorLevel != nil {
			err = e.SetAdjustment(k, *in.EvaluatorLevel, in.Justification, now)
		} else {
			err = e.SetJustification(k, in.Justification, now)
		}
		if err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(p.Verifications) {
		if err := e.SetVerification(k, p.Verifications[k], now); err != nil {
			return err
		}
	}
	if p.OverallComment != nil {
		return e.SetOverallComment(*p.OverallComment, now)
	}
	return nil
}

// SaveProgress applies patch without changing the status. Either every edit
// is stored or none is.
func (s *Service) SaveProgress(ctx context.Context, who authz.Identity, id int64, patch ReviewPatch) (*evaluation.Evaluation, error) {
	return s.mutate(ctx, who, id, mutation{
		op:       OpSaveProgress,
		resource: authz.ResourceReviews,
		verb:     authz.VerbUpdate,
		event:    audit.EventReviewUpdated,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if _, err := e.EnsureReview(reviewer(who), now); err != nil {
				return nil, err
			}
			if err := patch.apply(e, now); err != nil {
				return nil, err
			}
			return &audit.EventRecord{NewValue: audit.JSONAny{
				"adjustments":    len(patch.Adjustments),
				"verifications":  len(patch.Verifications),
				"overallComment": patch.OverallComment != nil,
			}}, nil
		},
	})
}

func joinKeys(keys []criteria.Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}

// approvalGates returns a ValidationError when the policy blocks approval.
func (s *Service) approvalGates(e *evaluation.Evaluation) error {
	if s.policy.RequireJustification {
		if keys := e.UnjustifiedAdjustments(); len(keys) > 0 {
			return evaluation.Invalid("adjustments", "adjusted criteria need a justification: %s", joinKeys(keys))
		}
	}
	if s.policy.RequireEvidenceVerification {
		if keys := e.UnverifiedClaims(); len(keys) > 0 {
			return evaluation.Invalid("evidenceVerification", "level 3 claims need verified evidence or an adjustment: %s", joinKeys(keys))
		}
	}
	return nil
}

// Approve completes the review and freezes the final score.
func (s *Service) Approve(ctx context.Context, who authz.Identity, id int64) (*evaluation.Evaluation, error) {
	var frozen evaluation.Scoring
	e, err := s.mutate(ctx, who, id, mutation{
		op:       OpApprove,
		resource: authz.ResourceReviews,
		verb:     authz.VerbApprove,
		event:    audit.EventReviewApproved,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if _, err := e.EnsureReview(reviewer(who), now); err != nil {
				return nil, err
			}
			if err := s.approvalGates(e); err != nil {
				return nil, err
			}
			sc, err := scoring.Freeze(e, s.catalog, now)
			if err != nil {
				return nil, err
			}
			if err := e.Approve(s.machine, sc, now); err != nil {
				return nil, err
			}
			frozen = sc
			return &audit.EventRecord{NewValue: audit.JSONAny{
				"finalScore":      sc.FinalScore,
				"governanceLabel": sc.GovernanceLabel,
				"certified":       sc.Certification.Certified,
				"digest":          sc.Digest,
			}}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.metrics.approved(ctx, frozen.FinalScore, frozen.GovernanceLabel)
	s.logger.InfoContext(ctx, "evaluation approved",
		"evaluationId", e.ID, "finalScore", frozen.FinalScore, "label", frozen.GovernanceLabel)
	return e, nil
}

// Reject completes the review without a score. reason is required.
func (s *Service) Reject(ctx context.Context, who authz.Identity, id int64, reason string) (*evaluation.Evaluation, error) {
	e, err := s.mutate(ctx, who, id, mutation{
		op:       OpReject,
		resource: authz.ResourceReviews,
		verb:     authz.VerbReject,
		event:    audit.EventReviewRejected,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if _, err := e.EnsureReview(reviewer(who), now); err != nil {
				return nil, err
			}
			if err := e.Reject(s.machine, reason, now); err != nil {
				return nil, err
			}
			return &audit.EventRecord{Reason: e.EvaluatorReview.RejectionReason}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "evaluation rejected", "evaluationId", e.ID, "evaluator", who.ID)
	return e, nil
}
