package scoring

import (
	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

// Red flag codes.
const (
	FlagMostlyValidated = "MOSTLY_VALIDATED"
	FlagLowEvidence     = "LOW_EVIDENCE"
	FlagNoLowScores     = "NO_LOW_SCORES"
)

const (
	validatedShareLimit = 0.7
	evidenceShareFloor  = 0.3
)

// RedFlag is a pattern in the responses an evaluator should look at.
type RedFlag struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Analysis summarizes an evaluation for the reviewing evaluator.
type Analysis struct {
	Result
	Distribution        [criteria.MaxMaturityLevel + 1]int `json:"distribution"`
	WithEvidence        int                                `json:"withEvidence"`
	WithComments        int                                `json:"withComments"`
	Principles          []PrincipleScore                   `json:"principles"`
	VerificationTargets []criteria.Key                     `json:"verificationTargets"`
	RedFlags            []RedFlag                          `json:"redFlags"`
}

// Analyze computes the maturity distribution, evidence coverage and red
// flags of e. Red flags are only raised once something is answered.
func Analyze(e *evaluation.Evaluation, cat *criteria.Catalog) Analysis {
	a := Analysis{
		Result:              Compute(e, cat),
		Principles:          PerPrincipleBreakdown(e, cat, SourceOrganization),
		VerificationTargets: e.VerificationTargets(),
		RedFlags:            []RedFlag{},
	}

	answered := 0
	for _, r := range e.Responses {
		if r.HasEvidence() {
			a.WithEvidence++
		}
		if r.Comment != "" {
			a.WithComments++
		}
		if lvl := r.Level(); lvl >= 0 && lvl <= criteria.MaxMaturityLevel {
			answered++
			a.Distribution[lvl]++
		}
	}
	if answered == 0 {
		return a
	}

	if float64(a.Distribution[3])/float64(answered) > validatedShareLimit {
		a.RedFlags = append(a.RedFlags, RedFlag{
			Code:    FlagMostlyValidated,
			Message: "over 70% of answers are claimed as validated; verify evidence",
		})
	}
	if float64(a.WithEvidence)/float64(answered) < evidenceShareFloor {
		a.RedFlags = append(a.RedFlags, RedFlag{
			Code:    FlagLowEvidence,
			Message: "less than 30% of answers carry evidence",
		})
	}
	if a.Distribution[0] == 0 && a.Distribution[1] == 0 {
		a.RedFlags = append(a.RedFlags, RedFlag{
			Code:    FlagNoLowScores,
			Message: "no answer is rated below completed",
		})
	}
	return a
}
