// Package authz carries the caller's identity through a request and decides
// which role may perform which action on assessment resources.
package authz

import (
	"context"
	"errors"
	"strings"
)

// Role is the single role a user holds.
type Role string

const (
	RoleOrganization  Role = "ORGANIZATION"
	RoleEvaluator     Role = "EVALUATOR"
	RoleAdministrator Role = "ADMINISTRATOR"
)

// ParseRole maps a role name, in any case, to a Role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleOrganization:
		return RoleOrganization, true
	case RoleEvaluator:
		return RoleEvaluator, true
	case RoleAdministrator:
		return RoleAdministrator, true
	}
	return "", false
}

// Resource names for permission mapping.
const (
	ResourceCatalog     = "catalog"
	ResourceEvaluations = "evaluations"
	ResourceResponses   = "responses"
	ResourceReviews     = "reviews"
	ResourceAssignments = "assignments"
	ResourceScores      = "scores"
	ResourceEvalStats   = "evaluator-stats"
	ResourceAdminStats  = "admin-stats"
	ResourceAudit       = "audit"
)

// Verb names for permission mapping.
const (
	VerbGet     = "get"
	VerbList    = "list"
	VerbCreate  = "create"
	VerbUpdate  = "update"
	VerbDelete  = "delete"
	VerbSubmit  = "submit"
	VerbApprove = "approve"
	VerbReject  = "reject"
)

// ErrUnauthenticated is returned by extractors when credentials are
// present but unusable.
var ErrUnauthenticated = errors.New("unauthenticated")

// AuthzRequest represents an authorization check.
type AuthzRequest struct {
	Identity Identity
	Resource string
	Verb     string
}

// Authorizer checks whether a user is authorized to perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthzRequest) (bool, error)
}

// NoopAuthorizer always allows all requests.
type NoopAuthorizer struct{}

// Authorize always returns true.
func (n *NoopAuthorizer) Authorize(_ context.Context, _ AuthzRequest) (bool, error) {
	return true, nil
}
