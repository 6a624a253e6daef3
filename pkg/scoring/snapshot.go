package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

// CertificationValidity is how long a certification issued at approval lasts.
const CertificationValidity = 1

const digestPrefix = "sha256:"

// Freeze computes the scoring record stored at approval.
func Freeze(e *evaluation.Evaluation, cat *criteria.Catalog, now time.Time) (evaluation.Scoring, error) {
	final := FinalScorePercent(e)
	label := ComputeLabel(final)
	now = now.UTC()

	s := evaluation.Scoring{
		FinalScore:      final,
		GovernanceLabel: string(label),
		Certification: evaluation.Certification{
			Certified:  final >= CertificationThreshold,
			Level:      string(label),
			ValidUntil: now.AddDate(CertificationValidity, 0, 0),
		},
		CatalogVersion: cat.Version().String(),
		ComputedAt:     now,
	}

	digest, err := Digest(e, s)
	if err != nil {
		return evaluation.Scoring{}, err
	}
	s.Digest = digest
	return s, nil
}

type digestInput struct {
	EvaluationID int64                `json:"evaluationId"`
	Levels       map[criteria.Key]int `json:"levels"`
	Scoring      evaluation.Scoring   `json:"scoring"`
}

// Digest is the SHA-256 over the RFC 8785 canonical form of the effective
// levels and the scoring record, excluding the digest field itself.
func Digest(e *evaluation.Evaluation, s evaluation.Scoring) (string, error) {
	s.Digest = ""
	in := digestInput{
		EvaluationID: e.ID,
		Levels:       make(map[criteria.Key]int, len(e.Responses)),
		Scoring:      s,
	}
	for k := range e.Responses {
		if lvl, ok := e.EffectiveLevel(k); ok {
			in.Levels[k] = lvl
		}
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal scoring digest input: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize scoring digest input: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return digestPrefix + hex.EncodeToString(sum[:]), nil
}

// VerifyDigest reports whether the stored scoring record still matches the
// evaluation it was computed from. Evaluations without scoring verify trivially.
func VerifyDigest(e *evaluation.Evaluation) (bool, error) {
	if e.Scoring == nil {
		return true, nil
	}
	want, err := Digest(e, *e.Scoring)
	if err != nil {
		return false, err
	}
	return want == e.Scoring.Digest, nil
}
