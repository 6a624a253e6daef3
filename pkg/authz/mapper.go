package authz

import (
	"net/http"
	"strings"
)

// ResourceMapping maps an HTTP request to a resource and verb for authorization.
type ResourceMapping struct {
	Resource string
	Verb     string
}

// UnknownMapping is returned when no known pattern matches the request.
// Callers should deny requests with this mapping by default.
var UnknownMapping = ResourceMapping{Resource: "", Verb: ""}

// APIPrefix is the path prefix of the versioned API.
const APIPrefix = "/api/v1"

// MapRequest maps an HTTP method and URL path under APIPrefix to a
// ResourceMapping.
func MapRequest(method, path string) ResourceMapping {
	path = strings.TrimRight(path, "/")
	path, ok := strings.CutPrefix(path, APIPrefix)
	if !ok {
		return UnknownMapping
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")

	switch parts[0] {
	case "catalog":
		if method == http.MethodGet {
			return ResourceMapping{Resource: ResourceCatalog, Verb: VerbGet}
		}
	case "stats":
		if method != http.MethodGet || len(parts) != 2 {
			return UnknownMapping
		}
		switch parts[1] {
		case "evaluator":
			return ResourceMapping{Resource: ResourceEvalStats, Verb: VerbGet}
		case "admin":
			return ResourceMapping{Resource: ResourceAdminStats, Verb: VerbGet}
		}
	case "audit":
		if method == http.MethodGet {
			return ResourceMapping{Resource: ResourceAudit, Verb: VerbList}
		}
	case "evaluations":
		return mapEvaluationRoute(method, parts[1:])
	}
	return UnknownMapping
}

// mapEvaluationRoute handles /evaluations/* routes; parts excludes the
// leading "evaluations" segment.
func mapEvaluationRoute(method string, parts []string) ResourceMapping {
	if len(parts) == 0 {
		switch method {
		case http.MethodGet:
			return ResourceMapping{Resource: ResourceEvaluations, Verb: VerbList}
		case http.MethodPost:
			return ResourceMapping{Resource: ResourceEvaluations, Verb: VerbCreate}
		}
		return UnknownMapping
	}
	if len(parts) == 1 {
		switch method {
		case http.MethodGet:
			return ResourceMapping{Resource: ResourceEvaluations, Verb: VerbGet}
		case http.MethodDelete:
			return ResourceMapping{Resource: ResourceEvaluations, Verb: VerbDelete}
		}
		return UnknownMapping
	}

	switch sub := parts[1]; {
	case sub == "responses" && (method == http.MethodPut || method == http.MethodDelete):
		return ResourceMapping{Resource: ResourceResponses, Verb: VerbUpdate}
	case sub == "review" && method == http.MethodPut:
		return ResourceMapping{Resource: ResourceReviews, Verb: VerbUpdate}
	case method == http.MethodGet && (sub == "score" || sub == "breakdown" || sub == "analysis"):
		return ResourceMapping{Resource: ResourceScores, Verb: VerbGet}
	case method == http.MethodGet && sub == "audit":
		return ResourceMapping{Resource: ResourceAudit, Verb: VerbGet}
	case method == http.MethodPost && len(parts) == 2:
		return mapEvaluationAction(sub)
	}
	return UnknownMapping
}

// mapEvaluationAction handles POST /evaluations/{id}/{action}.
func mapEvaluationAction(action string) ResourceMapping {
	switch action {
	case "submit":
		return ResourceMapping{Resource: ResourceEvaluations, Verb: VerbSubmit}
	case "assign":
		return ResourceMapping{Resource: ResourceAssignments, Verb: VerbCreate}
	case "start-review":
		return ResourceMapping{Resource: ResourceReviews, Verb: VerbUpdate}
	case "approve":
		return ResourceMapping{Resource: ResourceReviews, Verb: VerbApprove}
	case "reject":
		return ResourceMapping{Resource: ResourceReviews, Verb: VerbReject}
	}
	return UnknownMapping
}
