// Package scoring turns evaluation responses into completion, maturity
// percentages and governance labels. Every function here is pure.
package scoring

import (
	"math"

	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

// Label is a governance certification tier.
type Label string

const (
	LabelPlatinum     Label = "Platinum"
	LabelGold         Label = "Gold"
	LabelSilver       Label = "Silver"
	LabelBronze       Label = "Bronze"
	LabelNotCertified Label = "Not Certified"
)

// CertificationThreshold is the lowest final score that certifies.
const CertificationThreshold = 50

// labelThresholds is evaluated top-down; each lower bound is inclusive.
var labelThresholds = []struct {
	min   int
	label Label
}{
	{90, LabelPlatinum},
	{80, LabelGold},
	{65, LabelSilver},
	{CertificationThreshold, LabelBronze},
}

// ComputeLabel maps a 0..100 percentage to its label.
func ComputeLabel(percent int) Label {
	for _, t := range labelThresholds {
		if percent >= t.min {
			return t.label
		}
	}
	return LabelNotCertified
}

// Certified reports whether the label grants certification.
func (l Label) Certified() bool {
	return l != LabelNotCertified && l != ""
}

// Catalog is the part of the criteria catalog scoring needs.
type Catalog interface {
	Contains(key criteria.Key) bool
	TotalCriterionCount() int
}

func percentOfMax(sum, count int) int {
	if count == 0 {
		return 0
	}
	return int(math.Round(100 * float64(sum) / float64(count*criteria.MaxMaturityLevel)))
}

// CompletionRate is the rounded percentage of catalog criteria answered. It
// is 100 only when every criterion is answered and 0 only when none is.
func CompletionRate(e *evaluation.Evaluation, cat Catalog) int {
	total := cat.TotalCriterionCount()
	if total == 0 {
		return 0
	}
	answered := 0
	for k, r := range e.Responses {
		if r.Answered() && cat.Contains(k) {
			answered++
		}
	}
	rate := int(math.Round(100 * float64(answered) / float64(total)))
	switch {
	case answered == 0:
		return 0
	case answered < total:
		return min(max(rate, 1), 99)
	}
	return 100
}

// SelfScorePercent averages the organization's levels over answered
// criteria only. It is 0 when nothing is answered.
func SelfScorePercent(e *evaluation.Evaluation) int {
	sum, count := 0, 0
	for _, r := range e.Responses {
		if r.Answered() {
			sum += *r.MaturityLevel
			count++
		}
	}
	return percentOfMax(sum, count)
}

// FinalScorePercent is SelfScorePercent with evaluator levels substituted
// wherever an adjustment exists.
func FinalScorePercent(e *evaluation.Evaluation) int {
	sum, count := 0, 0
	for k := range e.Responses {
		if lvl, ok := e.EffectiveLevel(k); ok {
			sum += lvl
			count++
		}
	}
	return percentOfMax(sum, count)
}

// Result is the on-demand score of an evaluation.
type Result struct {
	CompletionRate    int   `json:"completionRate"`
	AnsweredCount     int   `json:"answeredCount"`
	TotalCriteria     int   `json:"totalCriteria"`
	RawScorePercent   int   `json:"rawScorePercent"`
	FinalScorePercent *int  `json:"finalScorePercent,omitempty"`
	GovernanceLabel   Label `json:"governanceLabel"`
}

// Compute scores e. The final score and the label derived from it are only
// present once a review exists; before that the label follows the raw score.
func Compute(e *evaluation.Evaluation, cat Catalog) Result {
	res := Result{
		CompletionRate:  CompletionRate(e, cat),
		AnsweredCount:   e.AnsweredCount(),
		TotalCriteria:   cat.TotalCriterionCount(),
		RawScorePercent: SelfScorePercent(e),
	}
	res.GovernanceLabel = ComputeLabel(res.RawScorePercent)
	if e.EvaluatorReview != nil {
		final := FinalScorePercent(e)
		res.FinalScorePercent = &final
		res.GovernanceLabel = ComputeLabel(final)
	}
	return res
}

// Source selects which level a breakdown reads.
type Source int

const (
	// SourceOrganization reads the organization's own levels.
	SourceOrganization Source = iota
	// SourceEffective reads evaluator levels where adjusted.
	SourceEffective
)

// PrincipleScore is one row of the per-principle breakdown.
type PrincipleScore struct {
	PrincipleID int    `json:"principleId"`
	Name        string `json:"name"`
	NameEn      string `json:"nameEn"`
	Score       int    `json:"score"`
	Count       int    `json:"count"`
	Total       int    `json:"total"`
}

// PerPrincipleBreakdown scores each principle over its answered criteria.
// Principles without answers report a zero score and count.
func PerPrincipleBreakdown(e *evaluation.Evaluation, cat *criteria.Catalog, src Source) []PrincipleScore {
	type acc struct{ sum, count int }
	byPrinciple := make(map[int]*acc)
	for k, r := range e.Responses {
		if !r.Answered() || !cat.Contains(k) {
			continue
		}
		lvl := *r.MaturityLevel
		if src == SourceEffective {
			lvl, _ = e.EffectiveLevel(k)
		}
		a := byPrinciple[k.Principle]
		if a == nil {
			a = &acc{}
			byPrinciple[k.Principle] = a
		}
		a.sum += lvl
		a.count++
	}

	principles := cat.ListPrinciples()
	out := make([]PrincipleScore, 0, len(principles))
	for _, p := range principles {
		row := PrincipleScore{
			PrincipleID: p.ID,
			Name:        p.Name,
			NameEn:      p.NameEn,
			Total:       p.CriterionCount(),
		}
		if a := byPrinciple[p.ID]; a != nil {
			row.Score = percentOfMax(a.sum, a.count)
			row.Count = a.count
		}
		out = append(out, row)
	}
	return out
}
