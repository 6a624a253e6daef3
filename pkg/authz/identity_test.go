package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentityContextRoundTrip(t *testing.T) {
	want := Identity{ID: "17", Email: "acme@example.org", Name: "Acme", Role: RoleOrganization}
	got, ok := IdentityFromContext(WithIdentity(context.Background(), want))
	if !ok {
		t.Fatal("expected identity in context, got none")
	}
	if got != want {
		t.Errorf("identity = %+v, want %+v", got, want)
	}

	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("expected no identity in empty context")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"ORGANIZATION", RoleOrganization, true},
		{"evaluator", RoleEvaluator, true},
		{" Administrator ", RoleAdministrator, true},
		{"operator", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRole(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestHeaderExtractor(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    Identity
		wantErr bool
	}{
		{
			name: "full identity",
			headers: map[string]string{
				HeaderUserID: "9", HeaderUserEmail: "eve@example.org", HeaderUserName: "Eve", HeaderUserRole: "evaluator",
			},
			want: Identity{ID: "9", Email: "eve@example.org", Name: "Eve", Role: RoleEvaluator},
		},
		{
			name:    "anonymous",
			headers: map[string]string{},
			want:    Identity{},
		},
		{
			name:    "unknown role",
			headers: map[string]string{HeaderUserID: "9", HeaderUserRole: "root"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			got, err := HeaderExtractor(req)
			if tt.wantErr {
				if !errors.Is(err, ErrUnauthenticated) {
					t.Fatalf("err = %v, want ErrUnauthenticated", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("identity = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIdentityMiddleware(t *testing.T) {
	var seen Identity
	handler := IdentityMiddleware(HeaderExtractor)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "1")
	req.Header.Set(HeaderUserRole, "ADMINISTRATOR")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if seen.ID != "1" || seen.Role != RoleAdministrator {
		t.Errorf("identity = %+v", seen)
	}
	if seen.DisplayName() != "1" {
		t.Errorf("DisplayName() = %q, want id fallback", seen.DisplayName())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "1")
	req.Header.Set(HeaderUserRole, "nobody")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}
