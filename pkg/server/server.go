// Package server exposes the assessment service over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/governance-platform/assessment/pkg/assessment"
	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/authz"
	"github.com/governance-platform/assessment/pkg/cache"
	"github.com/governance-platform/assessment/pkg/observability"
)

// Server routes HTTP requests to an assessment.Service.
type Server struct {
	svc         *assessment.Service
	auditStore  *audit.Store
	extract     authz.Extractor
	authorizer  authz.Authorizer
	cache       *cache.LRUCache
	httpMetrics *observability.HTTPMetrics
	corsOrigins []string
	logger      *slog.Logger
	startedAt   time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithExtractor sets how identities are read from requests. The default
// trusts the X-User-* headers.
func WithExtractor(e authz.Extractor) Option {
	return func(s *Server) { s.extract = e }
}

// WithAuthorizer replaces the role permission table.
func WithAuthorizer(a authz.Authorizer) Option {
	return func(s *Server) { s.authorizer = a }
}

// WithAuditStore mounts the platform-wide audit event listing.
func WithAuditStore(store *audit.Store) Option {
	return func(s *Server) { s.auditStore = store }
}

// WithCache caches the catalog endpoints in c.
func WithCache(c *cache.LRUCache) Option {
	return func(s *Server) { s.cache = c }
}

// WithHTTPMetrics records request metrics.
func WithHTTPMetrics(m *observability.HTTPMetrics) Option {
	return func(s *Server) { s.httpMetrics = m }
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server for svc.
func New(svc *assessment.Service, opts ...Option) *Server {
	s := &Server{
		svc:         svc,
		extract:     authz.HeaderExtractor,
		authorizer:  authz.RoleAuthorizer{},
		corsOrigins: []string{"*"},
		logger:      slog.Default().With(slog.String("component", "server")),
		startedAt:   time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type",
			authz.HeaderUserID, authz.HeaderUserEmail, authz.HeaderUserName, authz.HeaderUserRole},
		ExposedHeaders:   []string{"ETag", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if s.httpMetrics != nil {
		r.Use(s.httpMetrics.Middleware)
	}

	r.Get("/healthz", s.healthHandler)

	r.Route(authz.APIPrefix, func(r chi.Router) {
		r.Use(authz.IdentityMiddleware(s.extract))
		r.Use(authz.AuthzMiddleware(s.authorizer))

		r.Group(func(r chi.Router) {
			r.Use(cache.Middleware(s.cache))
			r.Get("/catalog", s.getCatalog)
			r.Get("/catalog/maturity-levels", s.getMaturityLevels)
			r.Get("/catalog/principles/{principleId}/practices/{practiceId}/criteria", s.listCriteria)
		})

		r.Route("/evaluations", func(r chi.Router) {
			r.Get("/", s.listEvaluations)
			r.Post("/", s.createEvaluation)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getEvaluation)
				r.Delete("/", s.deleteEvaluation)

				r.Put("/responses/{key}/maturity", s.setMaturity)
				r.Put("/responses/{key}/comment", s.setComment)
				r.Put("/responses/{key}/evidence", s.attachEvidence)
				r.Delete("/responses/{key}/evidence", s.removeEvidence)

				r.Post("/submit", s.submit)
				r.Post("/assign", s.assign)
				r.Post("/start-review", s.startReview)
				r.Post("/approve", s.approve)
				r.Post("/reject", s.reject)

				r.Put("/review", s.saveProgress)
				r.Put("/review/adjustments/{key}", s.adjust)
				r.Put("/review/verifications/{key}", s.verify)

				r.Get("/score", s.score)
				r.Get("/breakdown", s.breakdown)
				r.Get("/analysis", s.analysis)
				r.Get("/audit", s.history)
			})
		})

		r.Get("/stats/evaluator", s.evaluatorStats)
		r.Get("/stats/admin", s.adminStats)

		if s.auditStore != nil {
			r.Mount("/audit", audit.Router(s.auditStore, nil))
		}
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}
