package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/governance-platform/assessment/pkg/assessment"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type transitionBody struct {
	Error string `json:"error"`
	*evaluation.TransitionError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, evaluation.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, evaluation.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, evaluation.ErrNotFound), errors.Is(err, assessment.ErrNoHistory):
		return http.StatusNotFound
	case errors.Is(err, evaluation.ErrConflict), errors.Is(err, evaluation.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, evaluation.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with its mapped status. Internal errors are
// logged and answered with a generic message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	var te *evaluation.TransitionError
	var ve *evaluation.ValidationError
	switch {
	case errors.As(err, &te):
		writeJSON(w, status, transitionBody{Error: te.Message, TransitionError: te})
	case errors.As(err, &ve):
		writeJSON(w, status, errorBody{Error: ve.Message, Field: ve.Field})
	case status == http.StatusInternalServerError:
		s.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
	default:
		writeError(w, status, err.Error())
	}
}
