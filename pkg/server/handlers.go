package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/governance-platform/assessment/pkg/assessment"
	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/authz"
	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

// maxBodyBytes bounds ordinary JSON request bodies.
const maxBodyBytes = 64 * 1024

type catalogResponse struct {
	Version        string                   `json:"version"`
	TotalCriteria  int                      `json:"totalCriteria"`
	MaturityLevels []criteria.MaturityLevel `json:"maturityLevels"`
	Principles     []criteria.Principle     `json:"principles"`
}

type maturityRequest struct {
	Level *int `json:"level"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}

type assignRequest struct {
	EvaluatorID   string `json:"evaluatorId"`
	EvaluatorName string `json:"evaluatorName"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type listResponse struct {
	Evaluations []*evaluation.Evaluation `json:"evaluations"`
	Total       int                      `json:"total"`
}

func identity(r *http.Request) authz.Identity {
	id, _ := authz.IdentityFromContext(r.Context())
	return id
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, evaluation.Invalid("id", "must be a positive integer")
	}
	return id, nil
}

func pathKey(r *http.Request) (criteria.Key, error) {
	k, err := criteria.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		return criteria.Key{}, evaluation.Invalid("key", "%v", err)
	}
	return k, nil
}

// decode reads a JSON body of at most limit bytes into v.
func decode(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &evaluation.PayloadTooLargeError{Size: tooLarge.Limit + 1, Limit: tooLarge.Limit}
		case errors.Is(err, io.EOF):
			return evaluation.Invalid("body", "is required")
		}
		return evaluation.Invalid("body", "malformed JSON: %v", err)
	}
	return nil
}

// evaluationHandler adapts a per-evaluation operation to a handler.
func (s *Server) evaluationHandler(status int, fn func(r *http.Request, id int64) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		out, err := fn(r, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if out == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, status, out)
	}
}

// keyHandler is evaluationHandler for routes carrying a criterion key.
func (s *Server) keyHandler(fn func(w http.ResponseWriter, r *http.Request, id int64, key criteria.Key) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
			key, err := pathKey(r)
			if err != nil {
				return nil, err
			}
			return fn(w, r, id, key)
		})(w, r)
	}
}

func (s *Server) getCatalog(w http.ResponseWriter, _ *http.Request) {
	c := s.svc.Catalog()
	writeJSON(w, http.StatusOK, catalogResponse{
		Version:        c.Version().String(),
		TotalCriteria:  c.TotalCriterionCount(),
		MaturityLevels: c.MaturityLevels(),
		Principles:     c.ListPrinciples(),
	})
}

func (s *Server) getMaturityLevels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Catalog().MaturityLevels())
}

func (s *Server) listCriteria(w http.ResponseWriter, r *http.Request) {
	principle, err1 := strconv.Atoi(chi.URLParam(r, "principleId"))
	practice, err2 := strconv.Atoi(chi.URLParam(r, "practiceId"))
	if err1 != nil || err2 != nil {
		s.writeServiceError(w, r, evaluation.Invalid("path", "principle and practice ids must be integers"))
		return
	}
	defs := s.svc.Catalog().ListCriteria(principle, practice)
	if len(defs) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("practice %d.%d not found", principle, practice))
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) listEvaluations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.svc.List(r.Context(), identity(r), assessment.ListOptions{
		Filter: q.Get("filter"),
		Sort:   q.Get("sort"),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*evaluation.Evaluation{}
	}
	writeJSON(w, http.StatusOK, listResponse{Evaluations: list, Total: len(list)})
}

func (s *Server) createEvaluation(w http.ResponseWriter, r *http.Request) {
	var d evaluation.Draft
	if err := decode(w, r, maxBodyBytes, &d); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	e, err := s.svc.Create(r.Context(), identity(r), d)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("%s/evaluations/%d", authz.APIPrefix, e.ID))
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) getEvaluation(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		return s.svc.Get(r.Context(), identity(r), id)
	})(w, r)
}

func (s *Server) deleteEvaluation(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusNoContent, func(r *http.Request, id int64) (any, error) {
		return nil, s.svc.Delete(r.Context(), identity(r), id)
	})(w, r)
}

func (s *Server) setMaturity(w http.ResponseWriter, r *http.Request) {
	s.keyHandler(func(w http.ResponseWriter, r *http.Request, id int64, key criteria.Key) (any, error) {
		var req maturityRequest
		if err := decode(w, r, maxBodyBytes, &req); err != nil {
			return nil, err
		}
		if req.Level == nil {
			return nil, evaluation.Invalid("level", "is required")
		}
		return s.svc.SetMaturity(r.Context(), identity(r), id, key, *req.Level)
	})(w, r)
}

func (s *Server) setComment(w http.ResponseWriter, r *http.Request) {
	s.keyHandler(func(w http.ResponseWriter, r *http.Request, id int64, key criteria.Key) (any, error) {
		var req commentRequest
		if err := decode(w, r, maxBodyBytes, &req); err != nil {
			return nil, err
		}
		return s.svc.SetComment(r.Context(), identity(r), id, key, req.Comment)
	})(w, r)
}

// evidenceBodyLimit allows for base64 expansion of a file at the decoded
// size ceiling. The ceiling itself is enforced on the decoded bytes.
func (s *Server) evidenceBodyLimit() int64 {
	limit := s.svc.Policy().EvidenceLimit
	if limit <= 0 {
		limit = evaluation.DefaultEvidenceLimit
	}
	return 2*limit + maxBodyBytes
}

func (s *Server) attachEvidence(w http.ResponseWriter, r *http.Request) {
	s.keyHandler(func(w http.ResponseWriter, r *http.Request, id int64, key criteria.Key) (any, error) {
		var ev evaluation.Evidence
		if err := decode(w, r, s.evidenceBodyLimit(), &ev); err != nil {
			return nil, err
		}
		return s.svc.AttachEvidence(r.Context(), identity(r), id, key, ev)
	})(w, r)
}

func (s *Server) removeEvidence(w http.ResponseWriter, r *http.Request) {
	s.keyHandler(func(_ http.ResponseWriter, r *http.Request, id int64, key criteria.Key) (any, error) {
		return s.svc.RemoveEvidence(r.Context(), identity(r), id, key)
	})(w, r)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		res, err := s.svc.Submit(r.Context(), identity(r), id)
		if err != nil {
			return nil, err
		}
		return res, nil
	})(w, r)
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		var req assignRequest
		if err := decode(w, r, maxBodyBytes, &req); err != nil {
			return nil, err
		}
		return s.svc.Assign(r.Context(), identity(r), id, evaluation.Reviewer{ID: req.EvaluatorID, Name: req.EvaluatorName})
	})(w, r)
}

func (s *Server) startReview(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		return s.svc.StartReview(r.Context(), identity(r), id)
	})(w, r)
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		return s.svc.Approve(r.Context(), identity(r), id)
	})(w, r)
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		var req rejectRequest
		if err := decode(w, r, maxBodyBytes, &req); err != nil {
			return nil, err
		}
		return s.svc.Reject(r.Context(), identity(r), id, req.Reason)
	})(w, r)
}

func (s *Server) saveProgress(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		var patch assessment.ReviewPatch
		if err := decode(w, r, maxBodyBytes, &patch); err != nil {
			return nil, err
		}
		return s.svc.SaveProgress(r.Context(), identity(r), id, patch)
	})(w, r)
}

func (s *Server) adjust(w http.ResponseWriter, r *http.Request) {
	s.keyHandler(func(w http.ResponseWriter, r *http.Request, id int64, key criteria.Key) (any, error) {
		var in assessment.AdjustmentInput
		if err := decode(w, r, maxBodyBytes, &in); err != nil {
			return nil, err
		}
		if in.EvaluatorLevel == nil {
			return s.svc.Justify(r.Context(), identity(r), id, key, in.Justification)
		}
		return s.svc.Adjust(r.Context(), identity(r), id, key, *in.EvaluatorLevel, in.Justification)
	})(w, r)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	s.keyHandler(func(w http.ResponseWriter, r *http.Request, id int64, key criteria.Key) (any, error) {
		var rec evaluation.VerificationRecord
		if err := decode(w, r, maxBodyBytes, &rec); err != nil {
			return nil, err
		}
		return s.svc.Verify(r.Context(), identity(r), id, key, rec)
	})(w, r)
}

func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		rep, err := s.svc.Score(r.Context(), identity(r), id)
		if err != nil {
			return nil, err
		}
		return rep, nil
	})(w, r)
}

func (s *Server) breakdown(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		b, err := s.svc.Breakdown(r.Context(), identity(r), id)
		if err != nil {
			return nil, err
		}
		return b, nil
	})(w, r)
}

func (s *Server) analysis(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		a, err := s.svc.Analysis(r.Context(), identity(r), id)
		if err != nil {
			return nil, err
		}
		return a, nil
	})(w, r)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	s.evaluationHandler(http.StatusOK, func(r *http.Request, id int64) (any, error) {
		pageSize, pageToken := audit.PageParams(r)
		p, err := s.svc.History(r.Context(), identity(r), id, pageSize, pageToken)
		if err != nil {
			return nil, err
		}
		return audit.ToPageResponse(p), nil
	})(w, r)
}

func (s *Server) evaluatorStats(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.EvaluatorStats(r.Context(), identity(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) adminStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.AdminStats(r.Context(), identity(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
