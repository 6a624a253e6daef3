package authz

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// identityCtxKey is an unexported type used as the context key for Identity.
type identityCtxKey struct{}

// Identity represents the authenticated user making a request.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Authenticated reports whether the identity carries a user id and role.
func (id Identity) Authenticated() bool {
	return id.ID != "" && id.Role != ""
}

// DisplayName is the name when set, otherwise the email, otherwise the id.
func (id Identity) DisplayName() string {
	switch {
	case id.Name != "":
		return id.Name
	case id.Email != "":
		return id.Email
	}
	return id.ID
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// Extractor derives the caller's identity from a request. A request with no
// credentials yields the zero Identity and a nil error.
type Extractor func(r *http.Request) (Identity, error)

// Identity headers set by a trusted front proxy.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderUserRole  = "X-User-Role"
)

// HeaderExtractor reads the identity from the X-User-* headers.
func HeaderExtractor(r *http.Request) (Identity, error) {
	id := Identity{
		ID:    strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Email: strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		Name:  strings.TrimSpace(r.Header.Get(HeaderUserName)),
	}
	if id.ID == "" {
		return Identity{}, nil
	}
	raw := r.Header.Get(HeaderUserRole)
	role, ok := ParseRole(raw)
	if !ok {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, raw)
	}
	id.Role = role
	return id, nil
}

// IdentityMiddleware returns HTTP middleware that stores the extracted
// identity in the request context. Extraction errors answer 401.
func IdentityMiddleware(extract Extractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := extract(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
