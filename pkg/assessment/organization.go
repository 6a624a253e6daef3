package assessment

import (
	"context"
	"time"

	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/authz"
	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
	"github.com/governance-platform/assessment/pkg/scoring"
)

// Operation names used in audit events and metrics.
const (
	OpCreate         = "create"
	OpSetMaturity    = "set-maturity"
	OpSetComment     = "set-comment"
	OpAttachEvidence = "attach-evidence"
	OpRemoveEvidence = "remove-evidence"
	OpSubmit         = "submit"
	OpDelete         = "delete"
	OpAssign         = "assign"
	OpStartReview    = "start-review"
	OpAdjust         = "adjust"
	OpJustify        = "justify"
	OpVerify         = "verify"
	OpSaveProgress   = "save-progress"
	OpApprove        = "approve"
	OpReject         = "reject"
)

// Create starts a draft evaluation owned by the calling organization.
func (s *Service) Create(ctx context.Context, who authz.Identity, d evaluation.Draft) (*evaluation.Evaluation, error) {
	if err := s.authorize(ctx, who, 0, OpCreate, authz.ResourceEvaluations, authz.VerbCreate); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id, err := s.repo.NextID(ctx, now)
	if err != nil {
		return nil, s.fail(ctx, OpCreate, err)
	}
	org := evaluation.Organization{ID: who.ID, Name: who.DisplayName(), Email: who.Email}
	e, err := evaluation.New(id, d, org, now)
	if err != nil {
		return nil, s.fail(ctx, OpCreate, err)
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, s.fail(ctx, OpCreate, err)
	}

	s.recorder.Record(ctx, &audit.EventRecord{
		EventType:    audit.EventEvaluationCreated,
		Actor:        who.ID,
		ActorRole:    string(who.Role),
		EvaluationID: e.ID,
		Action:       OpCreate,
		ToStatus:     string(e.Status),
		NewValue:     audit.JSONAny{"name": e.Name, "period": e.Period},
	})
	s.logger.InfoContext(ctx, "evaluation created", "evaluationId", e.ID, "organization", org.ID)
	return e, nil
}

func responseChange(key criteria.Key, field string, old, new any) *audit.EventRecord {
	return &audit.EventRecord{
		OldValue: audit.JSONAny{"key": key.String(), field: old},
		NewValue: audit.JSONAny{"key": key.String(), field: new},
	}
}

// levelValue is the audit form of a possibly unanswered level.
func levelValue(r evaluation.Response) any {
	if !r.Answered() {
		return nil
	}
	return *r.MaturityLevel
}

// SetMaturity records the organization's maturity level for key.
func (s *Service) SetMaturity(ctx context.Context, who authz.Identity, id int64, key criteria.Key, level int) (*evaluation.Evaluation, error) {
	return s.mutate(ctx, who, id, mutation{
		op:       OpSetMaturity,
		resource: authz.ResourceResponses,
		verb:     authz.VerbUpdate,
		event:    audit.EventResponseChanged,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if err := requireOwner(who, e); err != nil {
				return nil, err
			}
			old := levelValue(e.Response(key))
			if err := e.SetMaturity(s.catalog, key, level, now); err != nil {
				return nil, err
			}
			return responseChange(key, "maturityLevel", old, level), nil
		},
	})
}

// SetComment records the organization's comment for key.
func (s *Service) SetComment(ctx context.Context, who authz.Identity, id int64, key criteria.Key, text string) (*evaluation.Evaluation, error) {
	return s.mutate(ctx, who, id, mutation{
		op:       OpSetComment,
		resource: authz.ResourceResponses,
		verb:     authz.VerbUpdate,
		event:    audit.EventResponseChanged,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if err := requireOwner(who, e); err != nil {
				return nil, err
			}
			old := e.Response(key).Comment
			if err := e.SetComment(s.catalog, key, text, now); err != nil {
				return nil, err
			}
			return responseChange(key, "comment", old, text), nil
		},
	})
}

// AttachEvidence stores a file for key, replacing any previous one.
func (s *Service) AttachEvidence(ctx context.Context, who authz.Identity, id int64, key criteria.Key, ev evaluation.Evidence) (*evaluation.Evaluation, error) {
	return s.mutate(ctx, who, id, mutation{
		op:       OpAttachEvidence,
		resource: authz.ResourceResponses,
		verb:     authz.VerbUpdate,
		event:    audit.EventResponseChanged,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if err := requireOwner(who, e); err != nil {
				return nil, err
			}
			var old any
			if prev := e.Response(key).Evidence; prev != nil {
				old = prev.FileName
			}
			if err := e.AttachEvidence(s.catalog, key, ev, s.policy.EvidenceLimit, now); err != nil {
				return nil, err
			}
			attached := e.Response(key).Evidence
			return &audit.EventRecord{
				OldValue: audit.JSONAny{"key": key.String(), "fileName": old},
				NewValue: audit.JSONAny{"key": key.String(), "fileName": attached.FileName, "fileSize": attached.FileSize},
			}, nil
		},
	})
}

// RemoveEvidence drops the file attached to key.
func (s *Service) RemoveEvidence(ctx context.Context, who authz.Identity, id int64, key criteria.Key) (*evaluation.Evaluation, error) {
	return s.mutate(ctx, who, id, mutation{
		op:       OpRemoveEvidence,
		resource: authz.ResourceResponses,
		verb:     authz.VerbUpdate,
		event:    audit.EventResponseChanged,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if err := requireOwner(who, e); err != nil {
				return nil, err
			}
			var old any
			if prev := e.Response(key).Evidence; prev != nil {
				old = prev.FileName
			}
			if err := e.RemoveEvidence(s.catalog, key, now); err != nil {
				return nil, err
			}
			return responseChange(key, "fileName", old, nil), nil
		},
	})
}

// SubmitResult reports the evaluation after submission.
type SubmitResult struct {
	Evaluation     *evaluation.Evaluation `json:"evaluation"`
	CompletionRate int                    `json:"completionRate"`
	Complete       bool                   `json:"complete"`
}

// Submit hands a draft to review. Incomplete evaluations are accepted with
// a warning.
func (s *Service) Submit(ctx context.Context, who authz.Identity, id int64) (SubmitResult, error) {
	var completion int
	e, err := s.mutate(ctx, who, id, mutation{
		op:       OpSubmit,
		resource: authz.ResourceEvaluations,
		verb:     authz.VerbSubmit,
		event:    audit.EventEvaluationSubmit,
		apply: func(e *evaluation.Evaluation, now time.Time) (*audit.EventRecord, error) {
			if err := requireOwner(who, e); err != nil {
				return nil, err
			}
			if err := e.Submit(s.machine, now); err != nil {
				return nil, err
			}
			completion = scoring.CompletionRate(e, s.catalog)
			return &audit.EventRecord{NewValue: audit.JSONAny{"completionRate": completion}}, nil
		},
	})
	if err != nil {
		return SubmitResult{}, err
	}
	if completion < 100 {
		s.logger.WarnContext(ctx, "evaluation submitted incomplete",
			"evaluationId", e.ID, "completionRate", completion,
			"answered", e.AnsweredCount(), "total", s.catalog.TotalCriterionCount())
	}
	return SubmitResult{Evaluation: e, CompletionRate: completion, Complete: completion == 100}, nil
}

// Delete removes an evaluation. Owners may delete their drafts, and later
// stages when the policy allows it; administrators may delete any.
func (s *Service) Delete(ctx context.Context, who authz.Identity, id int64) error {
	if err := s.authorize(ctx, who, id, OpDelete, authz.ResourceEvaluations, authz.VerbDelete); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return s.fail(ctx, OpDelete, err)
	}
	if who.Role == authz.RoleOrganization {
		if err := requireOwner(who, e); err != nil {
			s.denied(ctx, who, id, OpDelete, err)
			return s.fail(ctx, OpDelete, err)
		}
		if e.Status != evaluation.StatusDraft && !s.policy.AllowDeleteAfterSubmit {
			err := &evaluation.TransitionError{
				Code:      evaluation.CodeOperationDenied,
				From:      e.Status,
				Operation: OpDelete,
				Message:   "only draft evaluations can be deleted by their organization",
			}
			return s.fail(ctx, OpDelete, err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.fail(ctx, OpDelete, err)
	}

	s.recorder.Record(ctx, &audit.EventRecord{
		EventType:    audit.EventEvaluationDeleted,
		Actor:        who.ID,
		ActorRole:    string(who.Role),
		EvaluationID: id,
		Action:       OpDelete,
		FromStatus:   string(e.Status),
		OldValue:     audit.JSONAny{"name": e.Name, "organizationId": e.OrganizationID},
	})
	s.logger.InfoContext(ctx, "evaluation deleted", "evaluationId", id, "status", e.Status, "actor", who.ID)
	return nil
}
