package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Event types recorded by the assessment service.
const (
	EventEvaluationCreated = "evaluation.created"
	EventResponseChanged   = "evaluation.response.changed"
	EventEvaluationSubmit  = "evaluation.submitted"
	EventEvaluationDeleted = "evaluation.deleted"
	EventReviewAssigned    = "review.assigned"
	EventReviewStarted     = "review.started"
	EventReviewUpdated     = "review.updated"
	EventReviewApproved    = "review.approved"
	EventReviewRejected    = "review.rejected"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// JSONAny is a custom GORM type for map[string]any stored as JSON.
type JSONAny map[string]any

// Scan implements the sql.Scanner interface for JSONAny.
func (m *JSONAny) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONAny: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONAny.
func (m JSONAny) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// EventRecord is an immutable audit log entry for one evaluation operation.
type EventRecord struct {
	ID           string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	EventType    string    `gorm:"column:event_type;index:idx_audit_type_time,priority:1;not null"`
	Actor        string    `gorm:"column:actor;index:idx_audit_actor_time,priority:1;not null"`
	ActorRole    string    `gorm:"column:actor_role"`
	EvaluationID int64     `gorm:"column:evaluation_id;index:idx_audit_eval_time,priority:1"`
	Action       string    `gorm:"column:action"`
	Outcome      string    `gorm:"column:outcome;not null"` // success, failure, denied
	Reason       string    `gorm:"column:reason"`
	FromStatus   string    `gorm:"column:from_status"`
	ToStatus     string    `gorm:"column:to_status"`
	OldValue     JSONAny   `gorm:"column:old_value;type:text"`
	NewValue     JSONAny   `gorm:"column:new_value;type:text"`
	RequestID    string    `gorm:"column:request_id;index"`
	CreatedAt    time.Time `gorm:"column:created_at;index:idx_audit_type_time,priority:2;index:idx_audit_actor_time,priority:2;index:idx_audit_eval_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "audit_events" }
