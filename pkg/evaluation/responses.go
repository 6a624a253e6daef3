package evaluation

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/governance-platform/assessment/pkg/criteria"
)

// DefaultEvidenceLimit is the evidence size ceiling in bytes.
const DefaultEvidenceLimit int64 = 500 * 1024

// Catalog is the part of the criteria catalog the domain checks keys against.
type Catalog interface {
	Contains(key criteria.Key) bool
}

// Organization identifies the owner of an evaluation.
type Organization struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Draft holds the fields an organization supplies when creating an evaluation.
type Draft struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Period      string `json:"period"`
}

// New returns a draft evaluation owned by org. Name and period are required.
func New(id int64, d Draft, org Organization, now time.Time) (*Evaluation, error) {
	name := strings.TrimSpace(d.Name)
	period := strings.TrimSpace(d.Period)
	if name == "" {
		return nil, Invalid("name", "is required")
	}
	if period == "" {
		return nil, Invalid("period", "is required")
	}
	return &Evaluation{
		SchemaVersion:     SchemaVersion,
		ID:                id,
		Name:              name,
		Description:       strings.TrimSpace(d.Description),
		Period:            period,
		Status:            StatusDraft,
		CreatedDate:       now,
		LastModified:      now,
		OrganizationName:  org.Name,
		OrganizationID:    org.ID,
		OrganizationEmail: org.Email,
		Responses:         make(map[criteria.Key]Response),
	}, nil
}

func (e *Evaluation) checkEditable(cat Catalog, key criteria.Key) error {
	if err := RequireOperation(OpEditResponses, e.Status); err != nil {
		return err
	}
	if !cat.Contains(key) {
		return Invalid("key", "unknown criterion %s", key)
	}
	return nil
}

func (e *Evaluation) updateResponse(key criteria.Key, now time.Time, fn func(*Response)) {
	if e.Responses == nil {
		e.Responses = make(map[criteria.Key]Response)
	}
	r := e.Responses[key]
	fn(&r)
	e.Responses[key] = r
	e.touch(now)
}

// SetMaturity records the organization's level for key.
func (e *Evaluation) SetMaturity(cat Catalog, key criteria.Key, level int, now time.Time) error {
	if err := e.checkEditable(cat, key); err != nil {
		return err
	}
	if level < 0 || level > criteria.MaxMaturityLevel {
		return Invalid("maturityLevel", "must be between 0 and %d, got %d", criteria.MaxMaturityLevel, level)
	}
	e.updateResponse(key, now, func(r *Response) { r.MaturityLevel = intPtr(level) })
	return nil
}

// SetComment records free text for key. An empty text clears the comment.
func (e *Evaluation) SetComment(cat Catalog, key criteria.Key, text string, now time.Time) error {
	if err := e.checkEditable(cat, key); err != nil {
		return err
	}
	e.updateResponse(key, now, func(r *Response) { r.Comment = text })
	return nil
}

// AttachEvidence replaces the evidence for key. Files whose decoded size is
// over limit are rejected and leave the response untouched.
func (e *Evaluation) AttachEvidence(cat Catalog, key criteria.Key, ev Evidence, limit int64, now time.Time) error {
	if err := e.checkEditable(cat, key); err != nil {
		return err
	}
	if strings.TrimSpace(ev.FileName) == "" {
		return Invalid("fileName", "is required")
	}
	if ev.FileData == "" {
		return Invalid("fileData", "is required")
	}
	data, err := DecodeEvidenceData(ev.FileData)
	if err != nil {
		return Invalid("fileData", "is not valid base64: %v", err)
	}
	size := int64(len(data))
	if limit > 0 && size > limit {
		return &PayloadTooLargeError{Size: size, Limit: limit}
	}
	ev.FileSize = size
	e.updateResponse(key, now, func(r *Response) { r.Evidence = &ev })
	return nil
}

// RemoveEvidence drops the evidence for key, if any.
func (e *Evaluation) RemoveEvidence(cat Catalog, key criteria.Key, now time.Time) error {
	if err := e.checkEditable(cat, key); err != nil {
		return err
	}
	if r, ok := e.Responses[key]; !ok || r.Evidence == nil {
		return nil
	}
	e.updateResponse(key, now, func(r *Response) { r.Evidence = nil })
	return nil
}

// DecodeEvidenceData decodes base64 file content, accepting an optional
// "data:<mime>;base64," prefix.
func DecodeEvidenceData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}

// Submit moves a draft to submitted. Completion is not checked.
func (e *Evaluation) Submit(m *LifecycleMachine, now time.Time) error {
	if err := m.ValidateTransition(e.Status, StatusSubmitted); err != nil {
		return err
	}
	e.Status = StatusSubmitted
	e.SubmittedDate = &now
	e.touch(now)
	return nil
}
