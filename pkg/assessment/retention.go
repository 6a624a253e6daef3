package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/governance-platform/assessment/pkg/evaluation"
)

// HeldEvaluations lists the evaluations whose audit trail must outlive the
// retention window: those waiting for or under review, and approved ones
// whose certification is still valid at now.
func (s *Service) HeldEvaluations(ctx context.Context, now time.Time) ([]int64, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list held evaluations: %w", err)
	}
	var held []int64
	for _, e := range all {
		switch e.Status {
		case evaluation.StatusSubmitted, evaluation.StatusUnderReview:
			held = append(held, e.ID)
		case evaluation.StatusApproved:
			if c := certificationOf(e); c != nil && c.Certified && now.Before(c.ValidUntil) {
				held = append(held, e.ID)
			}
		}
	}
	return held, nil
}

func certificationOf(e *evaluation.Evaluation) *evaluation.Certification {
	if e.Scoring == nil {
		return nil
	}
	return &e.Scoring.Certification
}
