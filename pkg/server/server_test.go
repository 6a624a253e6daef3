package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/governance-platform/assessment/pkg/assessment"
	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/authz"
	"github.com/governance-platform/assessment/pkg/cache"
	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
	"github.com/governance-platform/assessment/pkg/storage"
)

var (
	orgUser   = authz.Identity{ID: "org-1", Name: "Acme", Email: "acme@example.org", Role: authz.RoleOrganization}
	evaluator = authz.Identity{ID: "eval-1", Name: "Eve", Role: authz.RoleEvaluator}
	adminUser = authz.Identity{ID: "admin-1", Name: "Root", Role: authz.RoleAdministrator}
)

type apiClient struct {
	srv *httptest.Server
}

func (c apiClient) do(who *authz.Identity, method, path string, body any) *http.Response {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rd)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != nil {
		req.Header.Set(authz.HeaderUserID, who.ID)
		req.Header.Set(authz.HeaderUserName, who.Name)
		req.Header.Set(authz.HeaderUserEmail, who.Email)
		req.Header.Set(authz.HeaderUserRole, string(who.Role))
	}
	rs, err := c.srv.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	return rs
}

func readJSON[T any](rs *http.Response) T {
	defer rs.Body.Close()
	var out T
	Expect(json.NewDecoder(rs.Body).Decode(&out)).To(Succeed())
	return out
}

func mustKey(s string) criteria.Key {
	k, err := criteria.ParseKey(s)
	Expect(err).NotTo(HaveOccurred())
	return k
}

func api(format string, args ...any) string {
	return authz.APIPrefix + fmt.Sprintf(format, args...)
}

var _ = Describe("Assessment API", func() {
	var (
		client apiClient
		lru    *cache.LRUCache
	)

	BeforeEach(func() {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		Expect(err).NotTo(HaveOccurred())
		store := audit.NewStore(db)
		Expect(store.AutoMigrate()).To(Succeed())

		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		var tick int64
		svc, err := assessment.New(storage.NewRepository(storage.NewMemoryBackend()), nil,
			assessment.WithAuditStore(store, audit.DefaultConfig()),
			assessment.WithLogger(quiet),
			assessment.WithClock(func() time.Time {
				tick++
				return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(tick) * time.Second)
			}),
		)
		Expect(err).NotTo(HaveOccurred())

		lru = cache.NewLRUCache(16, time.Minute)
		srv := httptest.NewServer(New(svc,
			WithAuditStore(store),
			WithCache(lru),
			WithLogger(quiet),
		).Routes())
		DeferCleanup(srv.Close)
		client = apiClient{srv: srv}
	})

	create := func() int64 {
		rs := client.do(&orgUser, http.MethodPost, api("/evaluations"),
			evaluation.Draft{Name: "FY2024", Period: "2024"})
		Expect(rs.StatusCode).To(Equal(http.StatusCreated))
		e := readJSON[evaluation.Evaluation](rs)
		Expect(rs.Header.Get("Location")).To(Equal(api("/evaluations/%d", e.ID)))
		return e.ID
	}

	setLevel := func(id int64, key string, level int) *http.Response {
		return client.do(&orgUser, http.MethodPut, api("/evaluations/%d/responses/%s/maturity", id, key),
			map[string]int{"level": level})
	}

	Context("health and catalog", func() {
		It("reports liveness without credentials", func() {
			rs := client.do(nil, http.MethodGet, "/healthz", nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			body := readJSON[map[string]string](rs)
			Expect(body["status"]).To(Equal("alive"))
		})

		It("serves the catalog anonymously and caches it", func() {
			rs := client.do(nil, http.MethodGet, api("/catalog"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(rs.Header.Get("X-Cache")).To(Equal("MISS"))
			cat := readJSON[catalogResponse](rs)
			Expect(cat.Principles).To(HaveLen(12))
			Expect(cat.TotalCriteria).To(Equal(29))
			Expect(cat.MaturityLevels).To(HaveLen(4))

			By("answering the second request from the cache")
			rs = client.do(nil, http.MethodGet, api("/catalog"), nil)
			Expect(rs.Header.Get("X-Cache")).To(Equal("HIT"))
			etag := rs.Header.Get("ETag")
			Expect(etag).NotTo(BeEmpty())
			rs.Body.Close()

			By("honouring If-None-Match")
			req, _ := http.NewRequest(http.MethodGet, client.srv.URL+api("/catalog"), nil)
			req.Header.Set("If-None-Match", etag)
			rs, err := client.srv.Client().Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(rs.StatusCode).To(Equal(http.StatusNotModified))
			Expect(lru.Size()).To(Equal(1))
		})

		It("lists the criteria of one practice", func() {
			rs := client.do(nil, http.MethodGet, api("/catalog/principles/1/practices/1/criteria"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(readJSON[[]map[string]any](rs)).NotTo(BeEmpty())

			rs = client.do(nil, http.MethodGet, api("/catalog/principles/99/practices/1/criteria"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Context("authorization", func() {
		It("asks anonymous callers to sign in", func() {
			rs := client.do(nil, http.MethodGet, api("/evaluations"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("rejects an unknown role", func() {
			bad := authz.Identity{ID: "x", Role: "SUPERUSER"}
			rs := client.do(&bad, http.MethodGet, api("/evaluations"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("forbids evaluators from creating evaluations", func() {
			rs := client.do(&evaluator, http.MethodPost, api("/evaluations"), evaluation.Draft{Name: "n", Period: "p"})
			Expect(rs.StatusCode).To(Equal(http.StatusForbidden))
		})

		It("denies unmapped endpoints", func() {
			rs := client.do(&adminUser, http.MethodPatch, api("/evaluations"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusForbidden))
		})

		It("limits admin stats to administrators", func() {
			rs := client.do(&orgUser, http.MethodGet, api("/stats/admin"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusForbidden))

			rs = client.do(&adminUser, http.MethodGet, api("/stats/admin"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			st := readJSON[assessment.AdminStats](rs)
			Expect(st.TotalCriteria).To(Equal(29))
		})
	})

	Context("organization responses", func() {
		It("creates an empty draft", func() {
			id := create()
			rs := client.do(&orgUser, http.MethodGet, api("/evaluations/%d", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			e := readJSON[evaluation.Evaluation](rs)
			Expect(e.Status).To(Equal(evaluation.StatusDraft))
			Expect(e.Responses).To(BeEmpty())
			Expect(e.OrganizationID).To(Equal(orgUser.ID))
		})

		It("validates the draft", func() {
			rs := client.do(&orgUser, http.MethodPost, api("/evaluations"), evaluation.Draft{Period: "2024"})
			Expect(rs.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(readJSON[errorBody](rs).Field).To(Equal("name"))

			rs = client.do(&orgUser, http.MethodPost, api("/evaluations"), map[string]string{"nickname": "x"})
			Expect(rs.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("scores answered responses", func() {
			id := create()
			Expect(setLevel(id, "1-1-1", 3).StatusCode).To(Equal(http.StatusOK))
			Expect(setLevel(id, "1-1-2", 1).StatusCode).To(Equal(http.StatusOK))

			rs := client.do(&orgUser, http.MethodGet, api("/evaluations/%d/score", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			rep := readJSON[assessment.ScoreReport](rs)
			Expect(rep.AnsweredCount).To(Equal(2))
			Expect(rep.RawScorePercent).To(Equal(67))
		})

		It("rejects bad keys and levels", func() {
			id := create()
			Expect(setLevel(id, "bogus", 1).StatusCode).To(Equal(http.StatusBadRequest))
			Expect(setLevel(id, "1-1-1", 4).StatusCode).To(Equal(http.StatusBadRequest))
			Expect(setLevel(id, "9-9-9", 1).StatusCode).To(Equal(http.StatusBadRequest))

			rs := client.do(&orgUser, http.MethodGet, api("/evaluations/abc"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusBadRequest))
			rs = client.do(&orgUser, http.MethodGet, api("/evaluations/12345"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("saves comments and evidence", func() {
			id := create()
			rs := client.do(&orgUser, http.MethodPut, api("/evaluations/%d/responses/1-1-1/comment", id),
				commentRequest{Comment: "charte votée"})
			Expect(rs.StatusCode).To(Equal(http.StatusOK))

			ev := evaluation.Evidence{
				FileName: "charte.pdf",
				FileType: "application/pdf",
				FileData: base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")),
			}
			rs = client.do(&orgUser, http.MethodPut, api("/evaluations/%d/responses/1-1-1/evidence", id), ev)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			e := readJSON[evaluation.Evaluation](rs)
			r := e.Response(mustKey("1-1-1"))
			Expect(r.Comment).To(Equal("charte votée"))
			Expect(r.Evidence).NotTo(BeNil())
			Expect(r.Evidence.FileSize).To(Equal(int64(8)))

			rs = client.do(&orgUser, http.MethodDelete, api("/evaluations/%d/responses/1-1-1/evidence", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			e = readJSON[evaluation.Evaluation](rs)
			Expect(e.Response(mustKey("1-1-1")).Evidence).To(BeNil())
		})

		It("refuses oversized evidence with 413", func() {
			id := create()
			big := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("a"), int(evaluation.DefaultEvidenceLimit)+1))
			rs := client.do(&orgUser, http.MethodPut, api("/evaluations/%d/responses/1-1-1/evidence", id),
				evaluation.Evidence{FileName: "big.bin", FileType: "application/octet-stream", FileData: big})
			Expect(rs.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
			rs.Body.Close()

			rs = client.do(&orgUser, http.MethodGet, api("/evaluations/%d", id), nil)
			e := readJSON[evaluation.Evaluation](rs)
			Expect(e.Response(mustKey("1-1-1")).Evidence).To(BeNil())
		})

		It("deletes an evaluation", func() {
			id := create()
			rs := client.do(&orgUser, http.MethodDelete, api("/evaluations/%d", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusNoContent))
			rs = client.do(&orgUser, http.MethodGet, api("/evaluations/%d", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("filters and sorts the list", func() {
			first := create()
			second := create()
			Expect(client.do(&orgUser, http.MethodPost, api("/evaluations/%d/submit", first), nil).StatusCode).
				To(Equal(http.StatusOK))

			rs := client.do(&orgUser, http.MethodGet, api("/evaluations?filter=%s", url.QueryEscape("status = submitted")), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			list := readJSON[listResponse](rs)
			Expect(list.Total).To(Equal(1))
			Expect(list.Evaluations[0].ID).To(Equal(first))

			By("ordering by submission date, falling back to creation")
			rs = client.do(&orgUser, http.MethodGet, api("/evaluations?sort=date"), nil)
			list = readJSON[listResponse](rs)
			Expect(list.Evaluations).To(HaveLen(2))
			Expect(list.Evaluations[0].ID).To(Equal(first))
			Expect(list.Evaluations[1].ID).To(Equal(second))

			rs = client.do(&orgUser, http.MethodGet, api("/evaluations?sort=size"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Context("review workflow", func() {
		var id int64

		BeforeEach(func() {
			id = create()
			Expect(setLevel(id, "1-1-1", 3).StatusCode).To(Equal(http.StatusOK))
			Expect(setLevel(id, "1-1-2", 2).StatusCode).To(Equal(http.StatusOK))
			rs := client.do(&orgUser, http.MethodPut, api("/evaluations/%d/responses/1-1-1/evidence", id), evaluation.Evidence{
				FileName: "charte.pdf",
				FileType: "application/pdf",
				FileData: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")),
			})
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			rs.Body.Close()

			rs = client.do(&orgUser, http.MethodPost, api("/evaluations/%d/submit", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			res := readJSON[assessment.SubmitResult](rs)
			Expect(res.Complete).To(BeFalse())
		})

		It("locks responses after submission", func() {
			rs := setLevel(id, "1-1-1", 1)
			Expect(rs.StatusCode).To(Equal(http.StatusConflict))
			body := readJSON[map[string]any](rs)
			Expect(body["code"]).To(Equal(evaluation.CodeOperationDenied))
			Expect(body["from"]).To(Equal(string(evaluation.StatusSubmitted)))
		})

		It("assigns, adjusts and approves", func() {
			rs := client.do(&adminUser, http.MethodPost, api("/evaluations/%d/assign", id),
				assignRequest{EvaluatorID: evaluator.ID, EvaluatorName: evaluator.Name})
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			rs.Body.Close()

			rs = client.do(&evaluator, http.MethodPost, api("/evaluations/%d/start-review", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(readJSON[evaluation.Evaluation](rs).Status).To(Equal(evaluation.StatusUnderReview))

			By("adjusting without justification")
			rs = client.do(&evaluator, http.MethodPut, api("/evaluations/%d/review/adjustments/1-1-1", id),
				map[string]any{"evaluatorLevel": 2})
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			rs.Body.Close()

			rs = client.do(&evaluator, http.MethodPost, api("/evaluations/%d/approve", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(readJSON[errorBody](rs).Field).To(Equal("adjustments"))

			By("justifying the adjustment on its own")
			rs = client.do(&evaluator, http.MethodPut, api("/evaluations/%d/review/adjustments/1-1-1", id),
				map[string]any{"justification": "charte non signée"})
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			rs.Body.Close()

			rs = client.do(&evaluator, http.MethodPost, api("/evaluations/%d/approve", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			e := readJSON[evaluation.Evaluation](rs)
			Expect(e.Status).To(Equal(evaluation.StatusApproved))
			Expect(e.Scoring).NotTo(BeNil())

			rs = client.do(&orgUser, http.MethodGet, api("/evaluations/%d/score", id), nil)
			rep := readJSON[assessment.ScoreReport](rs)
			Expect(rep.FinalScorePercent).NotTo(BeNil())
			Expect(*rep.FinalScorePercent).To(Equal(67))
			Expect(rep.DigestValid).NotTo(BeNil())
			Expect(*rep.DigestValid).To(BeTrue())

			By("refusing a second decision")
			rs = client.do(&evaluator, http.MethodPost, api("/evaluations/%d/reject", id), rejectRequest{Reason: "late"})
			Expect(rs.StatusCode).To(Equal(http.StatusConflict))
		})

		It("saves review progress and verifies evidence", func() {
			rs := client.do(&evaluator, http.MethodPut, api("/evaluations/%d/review", id), map[string]any{
				"adjustments":    map[string]any{"1-1-2": map[string]any{"evaluatorLevel": 1, "justification": "partiel"}},
				"overallComment": "bonne base",
			})
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			e := readJSON[evaluation.Evaluation](rs)
			Expect(e.EvaluatorReview).NotTo(BeNil())
			Expect(e.EvaluatorReview.OverallComment).To(Equal("bonne base"))
			Expect(e.EvaluatorReview.Adjustments).To(HaveKey(mustKey("1-1-2")))

			rs = client.do(&evaluator, http.MethodPut, api("/evaluations/%d/review/verifications/1-1-1", id),
				evaluation.VerificationRecord{Verified: true, Quality: 4, Adequacy: evaluation.AdequacyAdequate})
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			rs.Body.Close()

			rs = client.do(&orgUser, http.MethodGet, api("/evaluations/%d/breakdown", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			b := readJSON[assessment.Breakdown](rs)
			Expect(b.Organization).To(HaveLen(12))
			Expect(b.Effective).To(HaveLen(12))
		})

		It("requires a rejection reason", func() {
			rs := client.do(&evaluator, http.MethodPost, api("/evaluations/%d/reject", id), rejectRequest{})
			Expect(rs.StatusCode).To(Equal(http.StatusBadRequest))

			rs = client.do(&evaluator, http.MethodPost, api("/evaluations/%d/reject", id), rejectRequest{Reason: "incomplet"})
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			Expect(readJSON[evaluation.Evaluation](rs).Status).To(Equal(evaluation.StatusRejected))
		})

		It("forbids a second evaluator once claimed", func() {
			rs := client.do(&evaluator, http.MethodPost, api("/evaluations/%d/start-review", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			rs.Body.Close()

			other := authz.Identity{ID: "eval-2", Name: "Mallory", Role: authz.RoleEvaluator}
			rs = client.do(&other, http.MethodPut, api("/evaluations/%d/review/adjustments/1-1-1", id),
				map[string]any{"evaluatorLevel": 0, "justification": "x"})
			Expect(rs.StatusCode).To(Equal(http.StatusForbidden))
		})

		It("serves stats, analysis and history", func() {
			rs := client.do(&evaluator, http.MethodGet, api("/stats/evaluator"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			d := readJSON[assessment.EvaluatorDashboard](rs)
			Expect(d.Stats.Total).To(Equal(1))
			Expect(d.Stats.Pending).To(Equal(1))

			rs = client.do(&evaluator, http.MethodGet, api("/evaluations/%d/analysis", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			rs.Body.Close()

			rs = client.do(&orgUser, http.MethodGet, api("/evaluations/%d/audit", id), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			page := readJSON[audit.PageResponse](rs)
			types := make([]string, 0, len(page.Events))
			for _, ev := range page.Events {
				types = append(types, ev.EventType)
			}
			Expect(types).To(ContainElements(audit.EventEvaluationCreated, audit.EventResponseChanged))

			rs = client.do(&adminUser, http.MethodGet, api("/audit/events?pageSize=2"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusOK))
			all := readJSON[audit.PageResponse](rs)
			Expect(all.Events).To(HaveLen(2))
			Expect(all.NextPageToken).NotTo(BeEmpty())

			rs = client.do(&orgUser, http.MethodGet, api("/audit/events"), nil)
			Expect(rs.StatusCode).To(Equal(http.StatusForbidden))
		})
	})

	It("maps service errors to statuses", func() {
		cases := map[error]int{
			evaluation.Invalid("x", "bad"):                      http.StatusBadRequest,
			evaluation.ForbiddenError("no"):                     http.StatusForbidden,
			evaluation.NotFoundError(1):                         http.StatusNotFound,
			assessment.ErrNoHistory:                             http.StatusNotFound,
			fmt.Errorf("save: %w", evaluation.ErrConflict):      http.StatusConflict,
			&evaluation.TransitionError{Code: "X"}:              http.StatusConflict,
			&evaluation.PayloadTooLargeError{Size: 2, Limit: 1}: http.StatusRequestEntityTooLarge,
			fmt.Errorf("disk: %w", strings.ErrUnsupported):      http.StatusInternalServerError,
		}
		for err, want := range cases {
			Expect(statusFor(err)).To(Equal(want), err.Error())
		}
	})
})
