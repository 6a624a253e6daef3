package authz

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// RequirePermission returns middleware that enforces a specific resource/verb
// permission check against the identity stored by IdentityMiddleware.
func RequirePermission(authorizer Authorizer, resource, verb string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authorize(w, r, authorizer, ResourceMapping{Resource: resource, Verb: verb}) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// AuthzMiddleware returns middleware that auto-maps the HTTP method and URL path
// to a (resource, verb) pair and performs the authorization check. This can be
// mounted as global middleware on all API routes.
func AuthzMiddleware(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mapping := MapRequest(r.Method, r.URL.Path)

			// If we cannot map the request, deny by default.
			if mapping == UnknownMapping {
				writeError(w, http.StatusForbidden, "forbidden", "unknown endpoint, access denied")
				return
			}
			if authorize(w, r, authorizer, mapping) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// authorize writes the refusal and reports false when the request may not
// proceed.
func authorize(w http.ResponseWriter, r *http.Request, authorizer Authorizer, mapping ResourceMapping) bool {
	id, _ := IdentityFromContext(r.Context())

	allowed, err := authorizer.Authorize(r.Context(), AuthzRequest{
		Identity: id,
		Resource: mapping.Resource,
		Verb:     mapping.Verb,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "authorization check failed")
		return false
	}
	if allowed {
		return true
	}
	if !id.Authenticated() {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "sign in required")
		return false
	}
	writeError(w, http.StatusForbidden, "forbidden",
		fmt.Sprintf("role %s may not %s %s", id.Role, mapping.Verb, mapping.Resource))
	return false
}
