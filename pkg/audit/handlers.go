package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// EventResponse is the API representation of an audit event.
type EventResponse struct {
	ID           string         `json:"id"`
	EventType    string         `json:"eventType"`
	Actor        string         `json:"actor"`
	ActorRole    string         `json:"actorRole,omitempty"`
	EvaluationID int64          `json:"evaluationId,omitempty"`
	Action       string         `json:"action,omitempty"`
	Outcome      string         `json:"outcome"`
	Reason       string         `json:"reason,omitempty"`
	FromStatus   string         `json:"fromStatus,omitempty"`
	ToStatus     string         `json:"toStatus,omitempty"`
	OldValue     map[string]any `json:"oldValue,omitempty"`
	NewValue     map[string]any `json:"newValue,omitempty"`
	RequestID    string         `json:"requestId,omitempty"`
	CreatedAt    string         `json:"createdAt"`
}

// ToResponse converts a stored record to its API form.
func ToResponse(rec EventRecord) EventResponse {
	return EventResponse{
		ID:           rec.ID,
		EventType:    rec.EventType,
		Actor:        rec.Actor,
		ActorRole:    rec.ActorRole,
		EvaluationID: rec.EvaluationID,
		Action:       rec.Action,
		Outcome:      rec.Outcome,
		Reason:       rec.Reason,
		FromStatus:   rec.FromStatus,
		ToStatus:     rec.ToStatus,
		OldValue:     map[string]any(rec.OldValue),
		NewValue:     map[string]any(rec.NewValue),
		RequestID:    rec.RequestID,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
	}
}

// PageResponse is the API representation of a Page.
type PageResponse struct {
	Events        []EventResponse `json:"events"`
	NextPageToken string          `json:"nextPageToken"`
	TotalSize     int             `json:"totalSize"`
}

// ToPageResponse converts a Page to its API form.
func ToPageResponse(p Page) PageResponse {
	events := make([]EventResponse, len(p.Events))
	for i, rec := range p.Events {
		events[i] = ToResponse(rec)
	}
	return PageResponse{Events: events, NextPageToken: p.NextPageToken, TotalSize: p.TotalSize}
}

// PageParams reads pageSize and pageToken from the query string.
func PageParams(r *http.Request) (pageSize int, pageToken string) {
	pageSize = defaultPageSize
	if ps := r.URL.Query().Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			pageSize = v
		}
	}
	return pageSize, r.URL.Query().Get("pageToken")
}

// ListEventsHandler handles GET /audit/events
// Query params: eventType, pageSize, pageToken
func ListEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageSize, pageToken := PageParams(r)
		page, err := store.ListAll(r.Context(), pageSize, pageToken, r.URL.Query().Get("eventType"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list audit events: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, ToPageResponse(page))
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
