package evaluation

import (
	"strings"
	"time"

	"github.com/governance-platform/assessment/pkg/criteria"
)

// Reviewer identifies the evaluator acting on a review.
type Reviewer struct {
	ID   string
	Name string
}

func newReview() *EvaluatorReview {
	return &EvaluatorReview{
		Adjustments:          make(map[criteria.Key]Adjustment),
		EvidenceVerification: make(map[criteria.Key]VerificationRecord),
	}
}

// Assign attaches an evaluator to a submitted or under-review evaluation,
// creating the review if needed. Reassignment keeps prior review work.
func (e *Evaluation) Assign(rv Reviewer, assignedBy string, now time.Time) error {
	if err := RequireOperation(OpReview, e.Status); err != nil {
		return err
	}
	if strings.TrimSpace(rv.ID) == "" {
		return Invalid("evaluatorId", "is required")
	}
	if e.EvaluatorReview == nil {
		e.EvaluatorReview = newReview()
	}
	e.EvaluatorReview.EvaluatorID = rv.ID
	e.EvaluatorReview.EvaluatorName = rv.Name
	e.EvaluatorReview.AssignedBy = assignedBy
	e.EvaluatorReview.AssignedDate = &now
	e.touch(now)
	return nil
}

// EnsureReview returns the review rv may act on, creating it on first use.
// A review assigned to another evaluator is forbidden.
func (e *Evaluation) EnsureReview(rv Reviewer, now time.Time) (*EvaluatorReview, error) {
	if err := RequireOperation(OpReview, e.Status); err != nil {
		return nil, err
	}
	r := e.EvaluatorReview
	if r == nil {
		r = newReview()
		e.EvaluatorReview = r
	}
	switch r.EvaluatorID {
	case "":
		r.EvaluatorID = rv.ID
		r.EvaluatorName = rv.Name
	case rv.ID:
		if r.EvaluatorName == "" {
			r.EvaluatorName = rv.Name
		}
	default:
		return nil, ForbiddenError("evaluation %d is assigned to evaluator %s", e.ID, r.EvaluatorID)
	}
	if r.ReviewStarted == nil {
		r.ReviewStarted = &now
	}
	if r.Adjustments == nil {
		r.Adjustments = make(map[criteria.Key]Adjustment)
	}
	if r.EvidenceVerification == nil {
		r.EvidenceVerification = make(map[criteria.Key]VerificationRecord)
	}
	return r, nil
}

func (e *Evaluation) activeReview() (*EvaluatorReview, error) {
	if err := RequireOperation(OpReview, e.Status); err != nil {
		return nil, err
	}
	if e.EvaluatorReview == nil {
		return nil, Invalid("evaluatorReview", "review has not been started")
	}
	return e.EvaluatorReview, nil
}

// SetAdjustment overrides the level for an answered criterion. Adjusted is
// true exactly when the evaluator level differs from the organization's. An
// empty justification keeps the previous one.
func (e *Evaluation) SetAdjustment(key criteria.Key, evaluatorLevel int, justification string, now time.Time) error {
	r, err := e.activeReview()
	if err != nil {
		return err
	}
	resp, ok := e.Responses[key]
	if !ok || !resp.Answered() {
		return Invalid("key", "criterion %s has no organization answer", key)
	}
	if evaluatorLevel < 0 || evaluatorLevel > criteria.MaxMaturityLevel {
		return Invalid("evaluatorLevel", "must be between 0 and %d, got %d", criteria.MaxMaturityLevel, evaluatorLevel)
	}

	prev := r.Adjustments[key]
	if strings.TrimSpace(justification) == "" {
		justification = prev.Justification
	}
	orgLevel := *resp.MaturityLevel
	r.Adjustments[key] = Adjustment{
		OrgLevel:       orgLevel,
		EvaluatorLevel: evaluatorLevel,
		Adjusted:       evaluatorLevel != orgLevel,
		Justification:  justification,
	}
	e.touch(now)
	return nil
}

// SetJustification updates the justification of an existing adjustment.
func (e *Evaluation) SetJustification(key criteria.Key, text string, now time.Time) error {
	r, err := e.activeReview()
	if err != nil {
		return err
	}
	adj, ok := r.Adjustments[key]
	if !ok {
		return Invalid("key", "criterion %s has no adjustment", key)
	}
	adj.Justification = text
	r.Adjustments[key] = adj
	e.touch(now)
	return nil
}

// VerificationEligible reports whether the organization claimed level 3
// with evidence for key.
func (e *Evaluation) VerificationEligible(key criteria.Key) bool {
	r, ok := e.Responses[key]
	return ok && r.Level() == criteria.MaxMaturityLevel && r.HasEvidence()
}

// VerificationTargets lists the keys eligible for evidence verification.
func (e *Evaluation) VerificationTargets() []criteria.Key {
	var keys []criteria.Key
	for k := range e.Responses {
		if e.VerificationEligible(k) {
			keys = append(keys, k)
		}
	}
	criteria.SortKeys(keys)
	return keys
}

// SetVerification records the evaluator's verdict on evidence for key.
func (e *Evaluation) SetVerification(key criteria.Key, rec VerificationRecord, now time.Time) error {
	r, err := e.activeReview()
	if err != nil {
		return err
	}
	if !e.VerificationEligible(key) {
		return Invalid("key", "criterion %s is not a level 3 claim with evidence", key)
	}
	if rec.Quality < 1 || rec.Quality > 5 {
		return Invalid("quality", "must be between 1 and 5, got %d", rec.Quality)
	}
	if !rec.Adequacy.Valid() {
		return Invalid("adequacy", "unknown value %q", rec.Adequacy)
	}
	r.EvidenceVerification[key] = rec
	e.touch(now)
	return nil
}

// SetOverallComment records the evaluator's summary comment.
func (e *Evaluation) SetOverallComment(text string, now time.Time) error {
	r, err := e.activeReview()
	if err != nil {
		return err
	}
	r.OverallComment = text
	e.touch(now)
	return nil
}

// UnjustifiedAdjustments lists adjusted criteria without a justification.
func (e *Evaluation) UnjustifiedAdjustments() []criteria.Key {
	if e.EvaluatorReview == nil {
		return nil
	}
	var keys []criteria.Key
	for k, adj := range e.EvaluatorReview.Adjustments {
		if adj.Adjusted && strings.TrimSpace(adj.Justification) == "" {
			keys = append(keys, k)
		}
	}
	criteria.SortKeys(keys)
	return keys
}

// UnverifiedClaims lists level 3 claims with evidence whose effective level
// is still 3 and which carry no positive verification.
func (e *Evaluation) UnverifiedClaims() []criteria.Key {
	var keys []criteria.Key
	for _, k := range e.VerificationTargets() {
		if lvl, _ := e.EffectiveLevel(k); lvl != criteria.MaxMaturityLevel {
			continue
		}
		if e.EvaluatorReview != nil && e.EvaluatorReview.EvidenceVerification[k].Verified {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// StartReview moves a submitted evaluation to under-review.
func (e *Evaluation) StartReview(m *LifecycleMachine, now time.Time) error {
	if err := m.ValidateTransition(e.Status, StatusUnderReview); err != nil {
		return err
	}
	if e.EvaluatorReview == nil {
		return Invalid("evaluatorReview", "review has not been started")
	}
	e.Status = StatusUnderReview
	e.touch(now)
	return nil
}

// Approve completes the review and stores the frozen scoring record.
func (e *Evaluation) Approve(m *LifecycleMachine, s Scoring, now time.Time) error {
	if err := m.ValidateTransition(e.Status, StatusApproved); err != nil {
		return err
	}
	if e.EvaluatorReview == nil {
		return Invalid("evaluatorReview", "review has not been started")
	}
	e.EvaluatorReview.ReviewCompleted = &now
	e.Scoring = &s
	e.Status = StatusApproved
	e.touch(now)
	return nil
}

// Reject completes the review without scoring. A reason is required.
func (e *Evaluation) Reject(m *LifecycleMachine, reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Invalid("reason", "is required")
	}
	if err := m.ValidateTransition(e.Status, StatusRejected); err != nil {
		return err
	}
	if e.EvaluatorReview == nil {
		return Invalid("evaluatorReview", "review has not been started")
	}
	e.EvaluatorReview.RejectionReason = reason
	e.EvaluatorReview.ReviewCompleted = &now
	e.Status = StatusRejected
	e.touch(now)
	return nil
}
