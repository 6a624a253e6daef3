package evaluation

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/governance-platform/assessment/pkg/criteria"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestEvaluation(t *testing.T) *Evaluation {
	t.Helper()
	e, err := New(1, Draft{Name: "FY2024", Period: "2024"}, Organization{ID: "org-1", Name: "Acme", Email: "acme@example.org"}, testNow)
	require.NoError(t, err)
	return e
}

func TestNew(t *testing.T) {
	e := newTestEvaluation(t)
	assert.Equal(t, StatusDraft, e.Status)
	assert.Equal(t, SchemaVersion, e.SchemaVersion)
	assert.Equal(t, "Acme", e.OrganizationName)
	assert.Empty(t, e.Responses)
	assert.Nil(t, e.EvaluatorReview)

	tests := []struct {
		name  string
		draft Draft
		field string
	}{
		{"missing name", Draft{Name: "  ", Period: "2024"}, "name"},
		{"missing period", Draft{Name: "FY", Period: ""}, "period"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(1, tt.draft, Organization{}, testNow)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSetMaturity(t *testing.T) {
	cat := criteria.Default()
	e := newTestEvaluation(t)
	key := criteria.NewKey(1, 1, 1)

	later := testNow.Add(time.Minute)
	require.NoError(t, e.SetMaturity(cat, key, 2, later))
	assert.Equal(t, 2, e.Response(key).Level())
	assert.Equal(t, later, e.LastModified)

	require.NoError(t, e.SetMaturity(cat, key, 0, later))
	assert.Equal(t, 0, e.Response(key).Level())
	assert.True(t, e.Response(key).Answered())

	err := e.SetMaturity(cat, key, 4, later)
	assert.ErrorIs(t, err, ErrValidation)
	err = e.SetMaturity(cat, key, -1, later)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, e.Response(key).Level())

	err = e.SetMaturity(cat, criteria.NewKey(13, 1, 1), 1, later)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, e.Responses, 1)
}

func TestSetMaturity_Idempotent(t *testing.T) {
	cat := criteria.Default()
	e := newTestEvaluation(t)
	key := criteria.NewKey(3, 1, 2)

	require.NoError(t, e.SetMaturity(cat, key, 3, testNow))
	first := e.Response(key)
	require.NoError(t, e.SetMaturity(cat, key, 3, testNow))

	if diff := cmp.Diff(first, e.Response(key)); diff != "" {
		t.Errorf("response changed on repeated set (-first +second):\n%s", diff)
	}
}

func TestResponseEdits_RequireDraft(t *testing.T) {
	cat := criteria.Default()
	e := newTestEvaluation(t)
	key := criteria.NewKey(1, 1, 1)
	require.NoError(t, e.SetMaturity(cat, key, 1, testNow))
	require.NoError(t, e.Submit(NewLifecycleMachine(), testNow))

	errs := []error{
		e.SetMaturity(cat, key, 2, testNow),
		e.SetComment(cat, key, "late", testNow),
		e.AttachEvidence(cat, key, Evidence{FileName: "a.pdf", FileData: "YQ=="}, DefaultEvidenceLimit, testNow),
		e.RemoveEvidence(cat, key, testNow),
	}
	for i, err := range errs {
		assert.ErrorIs(t, err, ErrIllegalTransition, "operation %d", i)
	}
	assert.Equal(t, 1, e.Response(key).Level())
}

func TestSetComment_CreatesResponse(t *testing.T) {
	cat := criteria.Default()
	e := newTestEvaluation(t)
	key := criteria.NewKey(2, 1, 1)

	require.NoError(t, e.SetComment(cat, key, "KPIs in progress", testNow))
	r := e.Response(key)
	assert.Equal(t, "KPIs in progress", r.Comment)
	assert.False(t, r.Answered())
	assert.Equal(t, 0, e.AnsweredCount())
}

func TestAttachEvidence(t *testing.T) {
	cat := criteria.Default()
	key := criteria.NewKey(1, 1, 1)
	payload := base64.StdEncoding.EncodeToString([]byte("charter contents"))

	t.Run("plain base64", func(t *testing.T) {
		e := newTestEvaluation(t)
		require.NoError(t, e.AttachEvidence(cat, key, Evidence{FileName: "charter.pdf", FileType: "application/pdf", FileData: payload}, DefaultEvidenceLimit, testNow))
		ev := e.Response(key).Evidence
		require.NotNil(t, ev)
		assert.Equal(t, int64(len("charter contents")), ev.FileSize)
	})

	t.Run("data url", func(t *testing.T) {
		e := newTestEvaluation(t)
		require.NoError(t, e.AttachEvidence(cat, key, Evidence{FileName: "charter.pdf", FileData: "data:application/pdf;base64," + payload}, DefaultEvidenceLimit, testNow))
		assert.True(t, e.Response(key).HasEvidence())
	})

	t.Run("too large leaves response unchanged", func(t *testing.T) {
		e := newTestEvaluation(t)
		require.NoError(t, e.SetComment(cat, key, "see file", testNow))
		before := e.Response(key)

		big := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", int(DefaultEvidenceLimit)+1)))
		err := e.AttachEvidence(cat, key, Evidence{FileName: "big.bin", FileData: big}, DefaultEvidenceLimit, testNow.Add(time.Hour))
		require.ErrorIs(t, err, ErrPayloadTooLarge)

		var pe *PayloadTooLargeError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, DefaultEvidenceLimit, pe.Limit)
		assert.Equal(t, before, e.Response(key))
		assert.Equal(t, testNow, e.LastModified)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		e := newTestEvaluation(t)
		data := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 10)))
		require.NoError(t, e.AttachEvidence(cat, key, Evidence{FileName: "f", FileData: data}, 10, testNow))
	})

	t.Run("invalid input", func(t *testing.T) {
		e := newTestEvaluation(t)
		assert.ErrorIs(t, e.AttachEvidence(cat, key, Evidence{FileData: payload}, DefaultEvidenceLimit, testNow), ErrValidation)
		assert.ErrorIs(t, e.AttachEvidence(cat, key, Evidence{FileName: "f"}, DefaultEvidenceLimit, testNow), ErrValidation)
		assert.ErrorIs(t, e.AttachEvidence(cat, key, Evidence{FileName: "f", FileData: "!!!"}, DefaultEvidenceLimit, testNow), ErrValidation)
		assert.Empty(t, e.Responses)
	})
}

func TestRemoveEvidence(t *testing.T) {
	cat := criteria.Default()
	e := newTestEvaluation(t)
	key := criteria.NewKey(1, 1, 1)

	require.NoError(t, e.RemoveEvidence(cat, key, testNow))
	assert.Empty(t, e.Responses)

	require.NoError(t, e.SetMaturity(cat, key, 3, testNow))
	require.NoError(t, e.AttachEvidence(cat, key, Evidence{FileName: "f", FileData: "YQ=="}, DefaultEvidenceLimit, testNow))
	require.NoError(t, e.RemoveEvidence(cat, key, testNow))
	assert.False(t, e.Response(key).HasEvidence())
	assert.Equal(t, 3, e.Response(key).Level())
}

func TestSubmit(t *testing.T) {
	e := newTestEvaluation(t)
	m := NewLifecycleMachine()

	at := testNow.Add(24 * time.Hour)
	require.NoError(t, e.Submit(m, at))
	assert.Equal(t, StatusSubmitted, e.Status)
	require.NotNil(t, e.SubmittedDate)
	assert.Equal(t, at, *e.SubmittedDate)
	assert.Equal(t, at, e.SortDate())

	assert.ErrorIs(t, e.Submit(m, at), ErrIllegalTransition)
}
