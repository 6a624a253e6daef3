package authz

import "context"

type permission struct {
	resource string
	verb     string
}

// anyRole marks permissions granted without an identity.
const anyRole Role = "*"

// permissions lists, per role, the actions the role may attempt. Ownership
// and assignment rules are enforced by the assessment service on top.
var permissions = map[Role][]permission{
	anyRole: {
		{ResourceCatalog, VerbGet},
		{ResourceCatalog, VerbList},
	},
	RoleOrganization: {
		{ResourceEvaluations, VerbList},
		{ResourceEvaluations, VerbGet},
		{ResourceEvaluations, VerbCreate},
		{ResourceEvaluations, VerbDelete},
		{ResourceEvaluations, VerbSubmit},
		{ResourceResponses, VerbUpdate},
		{ResourceScores, VerbGet},
		{ResourceAudit, VerbGet},
	},
	RoleEvaluator: {
		{ResourceEvaluations, VerbList},
		{ResourceEvaluations, VerbGet},
		{ResourceReviews, VerbUpdate},
		{ResourceReviews, VerbApprove},
		{ResourceReviews, VerbReject},
		{ResourceScores, VerbGet},
		{ResourceEvalStats, VerbGet},
		{ResourceAudit, VerbGet},
	},
	RoleAdministrator: {
		{ResourceEvaluations, VerbList},
		{ResourceEvaluations, VerbGet},
		{ResourceEvaluations, VerbDelete},
		{ResourceAssignments, VerbCreate},
		{ResourceScores, VerbGet},
		{ResourceAdminStats, VerbGet},
		{ResourceAudit, VerbGet},
		{ResourceAudit, VerbList},
	},
}

// Allowed reports whether role may perform verb on resource.
func Allowed(role Role, resource, verb string) bool {
	want := permission{resource, verb}
	for _, r := range []Role{anyRole, role} {
		for _, p := range permissions[r] {
			if p == want {
				return true
			}
		}
	}
	return false
}

// RoleAuthorizer authorizes requests against the role permission table.
type RoleAuthorizer struct{}

// Authorize implements Authorizer.
func (RoleAuthorizer) Authorize(_ context.Context, req AuthzRequest) (bool, error) {
	return Allowed(req.Identity.Role, req.Resource, req.Verb), nil
}
