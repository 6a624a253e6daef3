package evaluation

import (
	"fmt"
	"slices"
)

// Transition error codes.
const (
	CodeTransitionDenied  = "LIFECYCLE_TRANSITION_DENIED"
	CodeInvalidTransition = "LIFECYCLE_INVALID_TRANSITION"
	CodeOperationDenied   = "LIFECYCLE_OPERATION_DENIED"
)

// TransitionRule defines an allowed lifecycle transition.
type TransitionRule struct {
	From Status
	To   Status
}

// DefaultTransitions are the forward-only status moves. Entering
// under-review is optional: approve and reject also start from submitted.
var DefaultTransitions = []TransitionRule{
	{From: StatusDraft, To: StatusSubmitted},
	{From: StatusSubmitted, To: StatusUnderReview},
	{From: StatusSubmitted, To: StatusApproved},
	{From: StatusSubmitted, To: StatusRejected},
	{From: StatusUnderReview, To: StatusApproved},
	{From: StatusUnderReview, To: StatusRejected},
}

// DisallowedTransitions are backward moves, reported with a specific code.
var DisallowedTransitions = map[Status][]Status{
	StatusSubmitted:   {StatusDraft},
	StatusUnderReview: {StatusDraft, StatusSubmitted},
	StatusApproved:    {StatusDraft, StatusSubmitted, StatusUnderReview, StatusRejected},
	StatusRejected:    {StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved},
}

// LifecycleMachine validates evaluation status transitions.
type LifecycleMachine struct {
	transitions []TransitionRule
	disallowed  map[Status][]Status
}

// NewLifecycleMachine creates a machine with default rules.
func NewLifecycleMachine() *LifecycleMachine {
	return &LifecycleMachine{
		transitions: DefaultTransitions,
		disallowed:  DisallowedTransitions,
	}
}

// ValidateTransition returns nil if from->to is allowed and a
// *TransitionError otherwise. Re-entering the current status is not a
// transition.
func (m *LifecycleMachine) ValidateTransition(from, to Status) error {
	if slices.Contains(m.disallowed[from], to) {
		return &TransitionError{
			Code:    CodeTransitionDenied,
			From:    from,
			To:      to,
			Message: fmt.Sprintf("transition from %s to %s is not allowed", from, to),
		}
	}

	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}

	return &TransitionError{
		Code:    CodeInvalidTransition,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("no transition defined from %s to %s", from, to),
	}
}

// AllowedTransitions returns all valid target states from the given state.
func (m *LifecycleMachine) AllowedTransitions(from Status) []Status {
	var allowed []Status
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// IsTerminal reports whether no transition leaves s.
func (m *LifecycleMachine) IsTerminal(s Status) bool {
	return len(m.AllowedTransitions(s)) == 0
}

// Operation names used in lifecycle errors and audit events.
const (
	OpEditResponses = "edit-responses"
	OpReview        = "review"
)

// editableStatuses lists, per operation, the statuses in which it may run.
var editableStatuses = map[string][]Status{
	OpEditResponses: {StatusDraft},
	OpReview:        {StatusSubmitted, StatusUnderReview},
}

// RequireOperation returns a *TransitionError if op may not run while the
// evaluation is in status s.
func RequireOperation(op string, s Status) error {
	if slices.Contains(editableStatuses[op], s) {
		return nil
	}
	return &TransitionError{
		Code:      CodeOperationDenied,
		From:      s,
		Operation: op,
		Message:   fmt.Sprintf("%s is not allowed while evaluation is %s", op, s),
	}
}
