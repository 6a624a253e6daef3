package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

func level(v int) *int { return &v }

func evaluationWith(levels map[criteria.Key]int) *evaluation.Evaluation {
	e := &evaluation.Evaluation{
		ID:        1,
		Status:    evaluation.StatusSubmitted,
		Responses: make(map[criteria.Key]evaluation.Response),
	}
	for k, v := range levels {
		e.Responses[k] = evaluation.Response{MaturityLevel: level(v)}
	}
	return e
}

func withAdjustments(e *evaluation.Evaluation, adj map[criteria.Key]int) *evaluation.Evaluation {
	e.EvaluatorReview = &evaluation.EvaluatorReview{
		EvaluatorID:          "eval-1",
		Adjustments:          make(map[criteria.Key]evaluation.Adjustment),
		EvidenceVerification: make(map[criteria.Key]evaluation.VerificationRecord),
	}
	for k, v := range adj {
		org := e.Responses[k].Level()
		e.EvaluatorReview.Adjustments[k] = evaluation.Adjustment{OrgLevel: org, EvaluatorLevel: v, Adjusted: org != v, Justification: "checked"}
	}
	return e
}

func TestComputeLabel(t *testing.T) {
	tests := []struct {
		percent int
		want    Label
	}{
		{0, LabelNotCertified},
		{49, LabelNotCertified},
		{50, LabelBronze},
		{64, LabelBronze},
		{65, LabelSilver},
		{79, LabelSilver},
		{80, LabelGold},
		{89, LabelGold},
		{90, LabelPlatinum},
		{100, LabelPlatinum},
	}
	for _, tt := range tests {
		got := ComputeLabel(tt.percent)
		assert.Equal(t, tt.want, got, "ComputeLabel(%d)", tt.percent)
		assert.Equal(t, tt.percent >= CertificationThreshold, got.Certified(), "Certified(%d)", tt.percent)
	}
}

func TestCompletionRate(t *testing.T) {
	cat := criteria.Default()

	e := evaluationWith(nil)
	assert.Equal(t, 0, CompletionRate(e, cat))

	e = evaluationWith(map[criteria.Key]int{criteria.NewKey(1, 1, 1): 0})
	assert.Equal(t, 3, CompletionRate(e, cat)) // 1/29

	all := make(map[criteria.Key]int)
	for _, k := range cat.Keys() {
		all[k] = 1
	}
	assert.Equal(t, 100, CompletionRate(evaluationWith(all), cat))

	// comment-only responses do not count
	e = evaluationWith(nil)
	e.Responses[criteria.NewKey(1, 1, 1)] = evaluation.Response{Comment: "later"}
	assert.Equal(t, 0, CompletionRate(e, cat))
}

// wideCatalog has one practice of n criteria under principle 1.
type wideCatalog int

func (c wideCatalog) Contains(k criteria.Key) bool {
	return k.Principle == 1 && k.Practice == 1 && k.Criterion >= 1 && k.Criterion <= int(c)
}

func (c wideCatalog) TotalCriterionCount() int { return int(c) }

func answering(n int) *evaluation.Evaluation {
	levels := make(map[criteria.Key]int, n)
	for i := 1; i <= n; i++ {
		levels[criteria.NewKey(1, 1, i)] = 2
	}
	return evaluationWith(levels)
}

func TestCompletionRate_LargeCatalog(t *testing.T) {
	cat := wideCatalog(201)
	tests := []struct {
		answered int
		want     int
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{100, 50},
		{200, 99},
		{201, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompletionRate(answering(tt.answered), cat), "%d/201 answered", tt.answered)
	}
}

func TestSelfScorePercent(t *testing.T) {
	// Scenario A: three answers 3, 2, 1.
	e := evaluationWith(map[criteria.Key]int{
		criteria.NewKey(1, 1, 1): 3,
		criteria.NewKey(1, 1, 2): 2,
		criteria.NewKey(1, 2, 3): 1,
	})
	assert.Equal(t, 67, SelfScorePercent(e))
	assert.Equal(t, LabelSilver, ComputeLabel(SelfScorePercent(e)))
	assert.Equal(t, 10, CompletionRate(e, criteria.Default()))

	assert.Equal(t, 0, SelfScorePercent(evaluationWith(nil)))
	assert.Equal(t, 100, SelfScorePercent(evaluationWith(map[criteria.Key]int{criteria.NewKey(1, 1, 1): 3})))
}

func TestFinalScorePercent(t *testing.T) {
	// Scenario B: the evaluator downgrades the level 3 answer to 1.
	e := evaluationWith(map[criteria.Key]int{
		criteria.NewKey(1, 1, 1): 3,
		criteria.NewKey(1, 1, 2): 2,
		criteria.NewKey(1, 2, 3): 1,
	})
	assert.Equal(t, SelfScorePercent(e), FinalScorePercent(e))

	withAdjustments(e, map[criteria.Key]int{criteria.NewKey(1, 1, 1): 1})
	assert.Equal(t, 44, FinalScorePercent(e))
	assert.Equal(t, LabelNotCertified, ComputeLabel(FinalScorePercent(e)))
	assert.Equal(t, 67, SelfScorePercent(e))
}

func TestCompute(t *testing.T) {
	cat := criteria.Default()
	e := evaluationWith(map[criteria.Key]int{
		criteria.NewKey(1, 1, 1): 3,
		criteria.NewKey(1, 1, 2): 3,
	})

	res := Compute(e, cat)
	assert.Equal(t, 100, res.RawScorePercent)
	assert.Nil(t, res.FinalScorePercent)
	assert.Equal(t, LabelPlatinum, res.GovernanceLabel)
	assert.Equal(t, 2, res.AnsweredCount)
	assert.Equal(t, 29, res.TotalCriteria)

	withAdjustments(e, map[criteria.Key]int{criteria.NewKey(1, 1, 1): 2})
	res = Compute(e, cat)
	require.NotNil(t, res.FinalScorePercent)
	assert.Equal(t, 83, *res.FinalScorePercent)
	assert.Equal(t, LabelGold, res.GovernanceLabel)
}

func TestPerPrincipleBreakdown(t *testing.T) {
	cat := criteria.Default()
	e := evaluationWith(map[criteria.Key]int{
		criteria.NewKey(1, 1, 1): 3,
		criteria.NewKey(1, 1, 2): 0,
		criteria.NewKey(12, 2, 5): 2,
	})
	withAdjustments(e, map[criteria.Key]int{criteria.NewKey(1, 1, 2): 3})

	rows := PerPrincipleBreakdown(e, cat, SourceOrganization)
	require.Len(t, rows, 12)

	assert.Equal(t, PrincipleScore{PrincipleID: 1, Name: "Finalité", NameEn: "Purpose", Score: 50, Count: 2, Total: 3}, rows[0])
	assert.Equal(t, 0, rows[1].Score)
	assert.Equal(t, 0, rows[1].Count)
	assert.Equal(t, 2, rows[1].Total)
	assert.Equal(t, 67, rows[11].Score)
	assert.Equal(t, 5, rows[11].Total)

	rows = PerPrincipleBreakdown(e, cat, SourceEffective)
	assert.Equal(t, 100, rows[0].Score)
}

func TestFreeze(t *testing.T) {
	cat := criteria.Default()
	now := time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)
	e := withAdjustments(evaluationWith(map[criteria.Key]int{
		criteria.NewKey(1, 1, 1): 3,
		criteria.NewKey(1, 1, 2): 2,
		criteria.NewKey(1, 2, 3): 1,
	}), nil)

	s, err := Freeze(e, cat, now)
	require.NoError(t, err)
	assert.Equal(t, 67, s.FinalScore)
	assert.Equal(t, "Silver", s.GovernanceLabel)
	assert.True(t, s.Certification.Certified)
	assert.Equal(t, "Silver", s.Certification.Level)
	assert.Equal(t, time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC), s.Certification.ValidUntil)
	assert.Equal(t, "1.0.0", s.CatalogVersion)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, s.Digest)

	e.Scoring = &s
	ok, err := VerifyDigest(e)
	require.NoError(t, err)
	assert.True(t, ok)

	// tampering with a level after approval breaks the digest
	e.Responses[criteria.NewKey(1, 1, 2)] = evaluation.Response{MaturityLevel: level(3)}
	ok, err = VerifyDigest(e)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFreeze_NotCertified(t *testing.T) {
	e := withAdjustments(evaluationWith(map[criteria.Key]int{criteria.NewKey(1, 1, 1): 1}), nil)
	s, err := Freeze(e, criteria.Default(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 33, s.FinalScore)
	assert.False(t, s.Certification.Certified)
	assert.Equal(t, string(LabelNotCertified), s.Certification.Level)
}

func TestDigest_Deterministic(t *testing.T) {
	e := evaluationWith(map[criteria.Key]int{
		criteria.NewKey(1, 1, 1): 3,
		criteria.NewKey(5, 2, 3): 2,
		criteria.NewKey(12, 1, 1): 1,
	})
	s := evaluation.Scoring{FinalScore: 67, GovernanceLabel: "Silver", ComputedAt: time.Unix(0, 0).UTC()}
	a, err := Digest(e, s)
	require.NoError(t, err)
	s.Digest = "ignored"
	b, err := Digest(e, s)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
