package assessment

import (
	"context"
	"errors"

	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/authz"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

func isForbidden(err error) bool {
	return errors.Is(err, evaluation.ErrForbidden)
}

// authorize applies the role permission table.
func (s *Service) authorize(ctx context.Context, who authz.Identity, id int64, op, resource, verb string) error {
	if who.Authenticated() && authz.Allowed(who.Role, resource, verb) {
		return nil
	}
	err := evaluation.ForbiddenError("role %q may not %s %s", who.Role, verb, resource)
	s.denied(ctx, who, id, op, err)
	return s.fail(ctx, op, err)
}

func (s *Service) denied(ctx context.Context, who authz.Identity, id int64, op string, err error) {
	s.recorder.Record(ctx, &audit.EventRecord{
		EventType:    "access.denied",
		Actor:        who.ID,
		ActorRole:    string(who.Role),
		EvaluationID: id,
		Action:       op,
		Outcome:      audit.OutcomeDenied,
		Reason:       err.Error(),
	})
}

// owns reports whether who is the organization that created e.
func owns(who authz.Identity, e *evaluation.Evaluation) bool {
	return who.Role == authz.RoleOrganization && e.OrganizationID == who.ID
}

// canView reports whether who may read e. Organizations see their own
// evaluations, evaluators everything past draft, administrators everything.
func canView(who authz.Identity, e *evaluation.Evaluation) bool {
	switch who.Role {
	case authz.RoleOrganization:
		return owns(who, e)
	case authz.RoleEvaluator:
		return e.Status != evaluation.StatusDraft
	case authz.RoleAdministrator:
		return true
	}
	return false
}

func requireOwner(who authz.Identity, e *evaluation.Evaluation) error {
	if !owns(who, e) {
		return evaluation.ForbiddenError("evaluation %d belongs to another organization", e.ID)
	}
	return nil
}

func reviewer(who authz.Identity) evaluation.Reviewer {
	return evaluation.Reviewer{ID: who.ID, Name: who.DisplayName()}
}
