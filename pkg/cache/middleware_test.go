package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"GETCachedOnSecondCall", testGETCachedOnSecondCall},
		{"POSTNotCached", testPOSTNotCached},
		{"Non200NotCached", testNon200NotCached},
		{"IfNoneMatch", testIfNoneMatch},
		{"DifferentURLsCachedSeparately", testDifferentURLsCachedSeparately},
		{"NilCachePassesThrough", testNilCachePassesThrough},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func countingHandler(calls *int, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func serve(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func testGETCachedOnSecondCall(t *testing.T) {
	calls := 0
	h := Middleware(NewLRUCache(10, time.Minute))(countingHandler(&calls, http.StatusOK, `{"levels":4}`))

	rec := serve(h, http.MethodGet, "/api/v1/catalog/maturity-levels", nil)
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Fatalf("expected MISS, got %q", got)
	}

	rec = serve(h, http.MethodGet, "/api/v1/catalog/maturity-levels", nil)
	if calls != 1 {
		t.Fatalf("expected handler called once, got %d", calls)
	}
	if got := rec.Header().Get("X-Cache"); got != "HIT" {
		t.Fatalf("expected HIT, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Fatalf("expected original content type, got %q", got)
	}
	if rec.Header().Get("ETag") == "" {
		t.Fatal("expected an ETag on hits")
	}
	body, _ := io.ReadAll(rec.Result().Body)
	if string(body) != `{"levels":4}` {
		t.Fatalf("unexpected cached body %q", body)
	}
}

func testPOSTNotCached(t *testing.T) {
	calls := 0
	h := Middleware(NewLRUCache(10, time.Minute))(countingHandler(&calls, http.StatusOK, `{}`))
	serve(h, http.MethodPost, "/api/v1/catalog", nil)
	serve(h, http.MethodPost, "/api/v1/catalog", nil)
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func testNon200NotCached(t *testing.T) {
	calls := 0
	h := Middleware(NewLRUCache(10, time.Minute))(countingHandler(&calls, http.StatusNotFound, `{"error":"no"}`))
	serve(h, http.MethodGet, "/api/v1/catalog/principles/99/practices/1/criteria", nil)
	rec := serve(h, http.MethodGet, "/api/v1/catalog/principles/99/practices/1/criteria", nil)
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func testIfNoneMatch(t *testing.T) {
	calls := 0
	h := Middleware(NewLRUCache(10, time.Minute))(countingHandler(&calls, http.StatusOK, `{"a":1}`))
	serve(h, http.MethodGet, "/api/v1/catalog", nil)
	tag := serve(h, http.MethodGet, "/api/v1/catalog", nil).Header().Get("ETag")

	rec := serve(h, http.MethodGet, "/api/v1/catalog", http.Header{"If-None-Match": {tag}})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}

	rec = serve(h, http.MethodGet, "/api/v1/catalog", http.Header{"If-None-Match": {`"stale"`}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a stale tag, got %d", rec.Code)
	}
}

func testDifferentURLsCachedSeparately(t *testing.T) {
	calls := 0
	h := Middleware(NewLRUCache(10, time.Minute))(countingHandler(&calls, http.StatusOK, `{}`))
	serve(h, http.MethodGet, "/api/v1/catalog/principles/1/practices/1/criteria", nil)
	serve(h, http.MethodGet, "/api/v1/catalog/principles/1/practices/2/criteria", nil)
	serve(h, http.MethodGet, "/api/v1/catalog/principles/1/practices/1/criteria", nil)
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func testNilCachePassesThrough(t *testing.T) {
	calls := 0
	h := Middleware(nil)(countingHandler(&calls, http.StatusOK, `{}`))
	rec := serve(h, http.MethodGet, "/api/v1/catalog", nil)
	serve(h, http.MethodGet, "/api/v1/catalog", nil)
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if rec.Header().Get("X-Cache") != "" {
		t.Fatal("expected no X-Cache header without a cache")
	}
}
