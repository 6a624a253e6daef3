package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// recorder captures the status and body written by the wrapped handler.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func etag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

// Middleware caches successful GET responses in c, keyed by request URI.
// Hits carry X-Cache: HIT, misses X-Cache: MISS. Cached responses answer a
// matching If-None-Match with 304. A nil c disables caching.
func Middleware(c *LRUCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if c == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			if e, ok := c.Get(key); ok {
				h := w.Header()
				h.Set("X-Cache", "HIT")
				h.Set("ETag", e.ETag)
				if r.Header.Get("If-None-Match") == e.ETag {
					w.WriteHeader(http.StatusNotModified)
					return
				}
				h.Set("Content-Type", e.ContentType)
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(e.Body)
				return
			}

			rec := &recorder{ResponseWriter: w}
			rec.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusOK {
				body := bytes.Clone(rec.body.Bytes())
				c.Set(key, Entry{
					Body:        body,
					ContentType: rec.Header().Get("Content-Type"),
					ETag:        etag(body),
				})
			}
		})
	}
}
