// Package evaluation models a governance self-assessment: the organization's
// per-criterion responses, the evaluator's review overlay, and the
// lifecycle that gates which of them may change.
package evaluation

import (
	"time"

	"github.com/governance-platform/assessment/pkg/criteria"
)

// SchemaVersion is the layout version written with every record.
const SchemaVersion = 1

// Status is the lifecycle state of an evaluation.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under-review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Evidence is a file attached to a response, carried inline as base64.
type Evidence struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
	FileData string `json:"fileData"`
}

// Response is the organization's answer for one criterion.
// A nil MaturityLevel means the criterion is unanswered. Evidence fields are
// stored inline next to the level, as fileName/fileSize/fileType/fileData.
type Response struct {
	MaturityLevel *int   `json:"maturityLevel"`
	Comment       string `json:"comment,omitempty"`
	*Evidence
}

// Answered reports whether a maturity level has been chosen.
func (r Response) Answered() bool {
	return r.MaturityLevel != nil
}

// Level returns the maturity level, or -1 when unanswered.
func (r Response) Level() int {
	if r.MaturityLevel == nil {
		return -1
	}
	return *r.MaturityLevel
}

// HasEvidence reports whether a file is attached.
func (r Response) HasEvidence() bool {
	return r.Evidence != nil
}

// Adjustment is an evaluator override of the organization's level.
type Adjustment struct {
	OrgLevel       int    `json:"orgLevel"`
	EvaluatorLevel int    `json:"evaluatorLevel"`
	Adjusted       bool   `json:"adjusted"`
	Justification  string `json:"justification"`
}

// Adequacy grades how well evidence supports a claim.
type Adequacy string

const (
	AdequacyInsufficient Adequacy = "insufficient"
	AdequacyAdequate     Adequacy = "adequate"
	AdequacyExcellent    Adequacy = "excellent"
)

// Valid reports whether a is a known adequacy grade.
func (a Adequacy) Valid() bool {
	switch a {
	case AdequacyInsufficient, AdequacyAdequate, AdequacyExcellent:
		return true
	}
	return false
}

// VerificationRecord is the evaluator's assessment of attached evidence.
type VerificationRecord struct {
	Verified bool     `json:"verified"`
	Quality  int      `json:"quality"`
	Adequacy Adequacy `json:"adequacy"`
	Notes    string   `json:"notes,omitempty"`
}

// EvaluatorReview is the overlay an evaluator builds on a submitted evaluation.
type EvaluatorReview struct {
	EvaluatorID          string                              `json:"evaluatorId"`
	EvaluatorName        string                              `json:"evaluatorName"`
	AssignedBy           string                              `json:"assignedBy,omitempty"`
	AssignedDate         *time.Time                          `json:"assignedDate,omitempty"`
	ReviewStarted        *time.Time                          `json:"reviewStarted,omitempty"`
	ReviewCompleted      *time.Time                          `json:"reviewCompleted,omitempty"`
	Adjustments          map[criteria.Key]Adjustment         `json:"adjustments"`
	EvidenceVerification map[criteria.Key]VerificationRecord `json:"evidenceVerification"`
	OverallComment       string                              `json:"overallComment"`
	RejectionReason      string                              `json:"rejectionReason,omitempty"`
}

// Certification is granted at approval when the final score allows it.
type Certification struct {
	Certified  bool      `json:"certified"`
	Level      string    `json:"level"`
	ValidUntil time.Time `json:"validUntil"`
}

// Scoring is the frozen score written once at approval.
type Scoring struct {
	FinalScore      int           `json:"finalScore"`
	GovernanceLabel string        `json:"governanceLabel"`
	Certification   Certification `json:"certification"`
	CatalogVersion  string        `json:"catalogVersion,omitempty"`
	ComputedAt      time.Time     `json:"computedAt"`
	Digest          string        `json:"digest,omitempty"`
}

// Evaluation is the aggregate root persisted as a single record.
type Evaluation struct {
	SchemaVersion     int                       `json:"schemaVersion"`
	Revision          int64                     `json:"revision"`
	ID                int64                     `json:"id"`
	Name              string                    `json:"name"`
	Description       string                    `json:"description"`
	Period            string                    `json:"period"`
	Status            Status                    `json:"status"`
	CreatedDate       time.Time                 `json:"createdDate"`
	LastModified      time.Time                 `json:"lastModified"`
	SubmittedDate     *time.Time                `json:"submittedDate,omitempty"`
	OrganizationName  string                    `json:"organizationName"`
	OrganizationID    string                    `json:"organizationId"`
	OrganizationEmail string                    `json:"organizationEmail"`
	Responses         map[criteria.Key]Response `json:"responses"`
	EvaluatorReview   *EvaluatorReview          `json:"evaluatorReview,omitempty"`
	Scoring           *Scoring                  `json:"scoring,omitempty"`
}

// Response returns the response for key, zero-valued when absent.
func (e *Evaluation) Response(key criteria.Key) Response {
	return e.Responses[key]
}

// AnsweredCount returns how many responses carry a maturity level.
func (e *Evaluation) AnsweredCount() int {
	n := 0
	for _, r := range e.Responses {
		if r.Answered() {
			n++
		}
	}
	return n
}

// SortDate is the submission date when present, otherwise the creation date.
func (e *Evaluation) SortDate() time.Time {
	if e.SubmittedDate != nil {
		return *e.SubmittedDate
	}
	return e.CreatedDate
}

// EvaluatorID returns the reviewing evaluator's id, or "" when no review exists.
func (e *Evaluation) EvaluatorID() string {
	if e.EvaluatorReview == nil {
		return ""
	}
	return e.EvaluatorReview.EvaluatorID
}

// EffectiveLevel is the evaluator's level when an adjustment exists,
// otherwise the organization's level. ok is false for unanswered criteria.
func (e *Evaluation) EffectiveLevel(key criteria.Key) (level int, ok bool) {
	r, exists := e.Responses[key]
	if !exists || !r.Answered() {
		return 0, false
	}
	if e.EvaluatorReview != nil {
		if adj, found := e.EvaluatorReview.Adjustments[key]; found {
			return adj.EvaluatorLevel, true
		}
	}
	return *r.MaturityLevel, true
}

func (e *Evaluation) touch(now time.Time) {
	e.LastModified = now
}

func intPtr(v int) *int { return &v }
