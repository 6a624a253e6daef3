package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recorded struct {
	method string
	path   string
	header http.Header
	body   map[string]any
}

// fakeServer answers every request with the canned body registered for its
// "METHOD path" and records what it received.
func fakeServer(t *testing.T, routes map[string]string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var got []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.RequestURI(), header: r.Header.Clone()}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		got = append(got, rec)

		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"evaluation 9: not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

const draftJSON = `{"schemaVersion":1,"revision":1,"id":42,"name":"FY2024","period":"2024","status":"draft",
	"createdDate":"2025-03-01T09:00:00Z","lastModified":"2025-03-01T09:00:00Z",
	"organizationName":"Acme","organizationId":"org-1","responses":{"1-1-1":{"maturityLevel":2}}}`

func TestEvaluationsList_Table(t *testing.T) {
	srv, got := fakeServer(t, map[string]string{
		"GET /api/v1/evaluations": `{"evaluations":[` + draftJSON + `],"total":1}`,
	})

	out, err := run(t, srv, "--user-id", "org-1", "--user-role", "ORGANIZATION",
		"evaluations", "list", "--filter", "status = draft", "--sort", "date")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"ID", "NAME", "STATUS", "42", "FY2024", "draft", "Acme"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	req := (*got)[0]
	if req.path != "/api/v1/evaluations?filter=status+%3D+draft&sort=date" {
		t.Errorf("path = %q", req.path)
	}
	if req.header.Get("X-User-Id") != "org-1" || req.header.Get("X-User-Role") != "ORGANIZATION" {
		t.Errorf("identity headers not sent: %v", req.header)
	}
}

func TestEvaluationsGet_JSONAndYAML(t *testing.T) {
	srv, _ := fakeServer(t, map[string]string{"GET /api/v1/evaluations/42": draftJSON})

	out, err := run(t, srv, "-o", "json", "evaluations", "get", "42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if doc["name"] != "FY2024" {
		t.Errorf("name = %v", doc["name"])
	}

	out, err = run(t, srv, "-o", "yaml", "evaluations", "get", "42")
	if err != nil {
		t.Fatalf("get yaml: %v", err)
	}
	if !strings.Contains(out, "name: FY2024") {
		t.Errorf("yaml output:\n%s", out)
	}
}

func TestOutputFormat_Rejected(t *testing.T) {
	srv, _ := fakeServer(t, nil)
	if _, err := run(t, srv, "-o", "xml", "catalog"); err == nil {
		t.Fatal("expected an error for -o xml")
	}
}

func TestServerError_IsReported(t *testing.T) {
	srv, _ := fakeServer(t, nil)
	_, err := run(t, srv, "evaluations", "get", "9")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v", err)
	}
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	srv, got := fakeServer(t, map[string]string{"GET /api/v1/stats/admin": `{"totalCriteria":29,"byStatus":{"draft":1}}`})
	t.Setenv("ASSESSCTL_USER_ID", "admin-1")
	t.Setenv("ASSESSCTL_USER_ROLE", "ADMINISTRATOR")

	out, err := run(t, srv, "stats", "admin")
	if err != nil {
		t.Fatalf("stats admin: %v", err)
	}
	if !strings.Contains(out, "29") || !strings.Contains(out, "Status draft") {
		t.Errorf("output:\n%s", out)
	}
	if (*got)[0].header.Get("X-User-Role") != "ADMINISTRATOR" {
		t.Errorf("role header = %q", (*got)[0].header.Get("X-User-Role"))
	}
}

func TestToken_ReplacesHeaders(t *testing.T) {
	srv, got := fakeServer(t, map[string]string{"GET /api/v1/evaluations/42": draftJSON})
	if _, err := run(t, srv, "--token", "abc", "--user-id", "ignored", "evaluations", "get", "42"); err != nil {
		t.Fatalf("get: %v", err)
	}
	h := (*got)[0].header
	if h.Get("Authorization") != "Bearer abc" || h.Get("X-User-Id") != "" {
		t.Errorf("headers = %v", h)
	}
}

func TestResponses_SetMaturityAndAttach(t *testing.T) {
	srv, got := fakeServer(t, map[string]string{
		"PUT /api/v1/evaluations/42/responses/1-1-1/maturity": draftJSON,
		"PUT /api/v1/evaluations/42/responses/1-1-1/evidence": draftJSON,
	})

	out, err := run(t, srv, "responses", "set-maturity", "42", "1-1-1", "2")
	if err != nil {
		t.Fatalf("set-maturity: %v", err)
	}
	if !strings.Contains(out, "1-1-1") {
		t.Errorf("output:\n%s", out)
	}
	if lvl := (*got)[0].body["level"]; lvl != float64(2) {
		t.Errorf("level sent = %v", lvl)
	}

	if _, err := run(t, srv, "responses", "set-maturity", "42", "1-1-1", "two"); err == nil {
		t.Error("expected an error for a non-numeric level")
	}

	path := filepath.Join(t.TempDir(), "charte.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, srv, "responses", "attach", "42", "1-1-1", path); err != nil {
		t.Fatalf("attach: %v", err)
	}
	body := (*got)[len(*got)-1].body
	if body["fileName"] != "charte.pdf" || body["fileType"] != "application/pdf" {
		t.Errorf("evidence body = %v", body)
	}
	want := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	if body["fileData"] != want {
		t.Errorf("fileData = %v", body["fileData"])
	}
}

func TestReviewAdjust_LevelIsOptional(t *testing.T) {
	srv, got := fakeServer(t, map[string]string{
		"PUT /api/v1/evaluations/42/review/adjustments/1-1-1": draftJSON,
	})

	if _, err := run(t, srv, "review", "adjust", "42", "1-1-1", "--level", "0", "--justification", "absent"); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if _, err := run(t, srv, "review", "adjust", "42", "1-1-1", "--justification", "précisé"); err != nil {
		t.Fatalf("justify: %v", err)
	}

	first, second := (*got)[0].body, (*got)[1].body
	if lvl, ok := first["evaluatorLevel"]; !ok || lvl != float64(0) {
		t.Errorf("first body = %v", first)
	}
	if _, ok := second["evaluatorLevel"]; ok {
		t.Errorf("second body should not carry a level: %v", second)
	}
}

func TestReviewReject_RequiresReason(t *testing.T) {
	srv, _ := fakeServer(t, nil)
	if _, err := run(t, srv, "review", "reject", "42"); err == nil {
		t.Fatal("expected an error without --reason")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is long", 8, "this ..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
