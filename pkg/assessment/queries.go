package assessment

import (
	"cmp"
	"context"
	"errors"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/authz"
	"github.com/governance-platform/assessment/pkg/evaluation"
	"github.com/governance-platform/assessment/pkg/filter"
	"github.com/governance-platform/assessment/pkg/scoring"
)

// Query operation names.
const (
	OpGet        = "get"
	OpList       = "list"
	OpScore      = "score"
	OpBreakdown  = "breakdown"
	OpAnalysis   = "analysis"
	OpHistory    = "history"
	OpEvalStats  = "evaluator-stats"
	OpAdminStats = "admin-stats"
)

// ListFilterSchema is the set of fields List filters accept.
var ListFilterSchema = filter.Schema{
	"status":       filter.KindString,
	"name":         filter.KindString,
	"period":       filter.KindString,
	"organization": filter.KindString,
	"evaluator":    filter.KindString,
	"label":        filter.KindString,
	"score":        filter.KindNumber,
	"finalScore":   filter.KindNumber,
	"completion":   filter.KindNumber,
	"created":      filter.KindTime,
	"submitted":    filter.KindTime,
}

// Sort orders accepted by List.
const (
	SortDate   = "date"
	SortStatus = "status"
)

// ListOptions narrows and orders List results.
type ListOptions struct {
	Filter string
	Sort   string
}

// load fetches id for a read and checks who may see it.
func (s *Service) load(ctx context.Context, who authz.Identity, id int64, op, resource string) (*evaluation.Evaluation, error) {
	if err := s.authorize(ctx, who, id, op, resource, authz.VerbGet); err != nil {
		return nil, err
	}
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	if !canView(who, e) {
		err := evaluation.ForbiddenError("evaluation %d is not visible to %s", id, who.ID)
		s.denied(ctx, who, id, op, err)
		return nil, s.fail(ctx, op, err)
	}
	return e, nil
}

// Get returns one evaluation.
func (s *Service) Get(ctx context.Context, who authz.Identity, id int64) (*evaluation.Evaluation, error) {
	return s.load(ctx, who, id, OpGet, authz.ResourceEvaluations)
}

// resolver exposes e to the list filter.
func (s *Service) resolver(e *evaluation.Evaluation) filter.Resolver {
	var res *scoring.Result
	result := func() scoring.Result {
		if res == nil {
			r := scoring.Compute(e, s.catalog)
			res = &r
		}
		return *res
	}
	return filter.ResolverFunc(func(name string) (any, bool) {
		switch name {
		case "status":
			return string(e.Status), true
		case "name":
			return e.Name, true
		case "period":
			return e.Period, true
		case "organization":
			return e.OrganizationName, true
		case "evaluator":
			if e.EvaluatorReview == nil {
				return nil, false
			}
			return e.EvaluatorReview.EvaluatorName, true
		case "label":
			if e.Scoring != nil {
				return e.Scoring.GovernanceLabel, true
			}
			return string(result().GovernanceLabel), true
		case "score":
			return float64(result().RawScorePercent), true
		case "finalScore":
			if e.Scoring != nil {
				return float64(e.Scoring.FinalScore), true
			}
			if f := result().FinalScorePercent; f != nil {
				return float64(*f), true
			}
			return nil, false
		case "completion":
			return float64(result().CompletionRate), true
		case "created":
			return e.CreatedDate, true
		case "submitted":
			if e.SubmittedDate == nil {
				return nil, false
			}
			return *e.SubmittedDate, true
		}
		return nil, false
	})
}

var statusOrder = map[evaluation.Status]int{
	evaluation.StatusDraft:       0,
	evaluation.StatusSubmitted:   1,
	evaluation.StatusUnderReview: 2,
	evaluation.StatusApproved:    3,
	evaluation.StatusRejected:    4,
}

func byDateDesc(a, b *evaluation.Evaluation) int {
	if c := b.SortDate().Compare(a.SortDate()); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// List returns the evaluations who may see, newest first unless sorted by
// status.
func (s *Service) List(ctx context.Context, who authz.Identity, opts ListOptions) ([]*evaluation.Evaluation, error) {
	if err := s.authorize(ctx, who, 0, OpList, authz.ResourceEvaluations, authz.VerbList); err != nil {
		return nil, err
	}
	f, err := filter.Parse(opts.Filter, ListFilterSchema)
	if err != nil {
		return nil, s.fail(ctx, OpList, evaluation.Invalid("filter", "%v", err))
	}
	sortFn := byDateDesc
	switch opts.Sort {
	case "", SortDate:
	case SortStatus:
		sortFn = func(a, b *evaluation.Evaluation) int {
			if c := cmp.Compare(statusOrder[a.Status], statusOrder[b.Status]); c != 0 {
				return c
			}
			return byDateDesc(a, b)
		}
	default:
		return nil, s.fail(ctx, OpList, evaluation.Invalid("sort", "unknown sort order %q", opts.Sort))
	}

	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.fail(ctx, OpList, err)
	}
	out := make([]*evaluation.Evaluation, 0, len(all))
	for _, e := range all {
		if canView(who, e) && f.Match(s.resolver(e)) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, sortFn)
	return out, nil
}

// ScoreReport is the live score of an evaluation plus its frozen record.
type ScoreReport struct {
	scoring.Result
	Scoring     *evaluation.Scoring `json:"scoring,omitempty"`
	DigestValid *bool               `json:"digestValid,omitempty"`
}

// Score computes the score of id and checks the frozen digest if any.
func (s *Service) Score(ctx context.Context, who authz.Identity, id int64) (ScoreReport, error) {
	e, err := s.load(ctx, who, id, OpScore, authz.ResourceScores)
	if err != nil {
		return ScoreReport{}, err
	}
	rep := ScoreReport{Result: scoring.Compute(e, s.catalog), Scoring: e.Scoring}
	if e.Scoring != nil && e.Scoring.Digest != "" {
		ok, err := scoring.VerifyDigest(e)
		if err != nil {
			return ScoreReport{}, s.fail(ctx, OpScore, err)
		}
		if !ok {
			s.logger.WarnContext(ctx, "frozen score digest mismatch", "evaluationId", e.ID)
		}
		rep.DigestValid = &ok
	}
	return rep, nil
}

// Breakdown holds per-principle scores from both level sources.
type Breakdown struct {
	Organization []scoring.PrincipleScore `json:"organization"`
	Effective    []scoring.PrincipleScore `json:"effective"`
}

// Breakdown scores each principle of id.
func (s *Service) Breakdown(ctx context.Context, who authz.Identity, id int64) (Breakdown, error) {
	e, err := s.load(ctx, who, id, OpBreakdown, authz.ResourceScores)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		Organization: scoring.PerPrincipleBreakdown(e, s.catalog, scoring.SourceOrganization),
		Effective:    scoring.PerPrincipleBreakdown(e, s.catalog, scoring.SourceEffective),
	}, nil
}

// Analysis summarizes id for review.
func (s *Service) Analysis(ctx context.Context, who authz.Identity, id int64) (scoring.Analysis, error) {
	e, err := s.load(ctx, who, id, OpAnalysis, authz.ResourceScores)
	if err != nil {
		return scoring.Analysis{}, err
	}
	return scoring.Analyze(e, s.catalog), nil
}

// ErrNoHistory is returned by History when no audit store is configured.
var ErrNoHistory = errors.New("audit history is not configured")

// History pages through the audit events of id.
func (s *Service) History(ctx context.Context, who authz.Identity, id int64, pageSize int, pageToken string) (audit.Page, error) {
	if _, err := s.load(ctx, who, id, OpHistory, authz.ResourceAudit); err != nil {
		return audit.Page{}, err
	}
	if s.history == nil {
		return audit.Page{}, ErrNoHistory
	}
	page, err := s.history.ListByEvaluation(ctx, id, pageSize, pageToken)
	if err != nil {
		return audit.Page{}, s.fail(ctx, OpHistory, err)
	}
	return page, nil
}

// EvaluatorStats counts the evaluations visible to evaluators.
type EvaluatorStats struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Reviewed     int `json:"reviewed"`
	Approved     int `json:"approved"`
	Rejected     int `json:"rejected"`
	AssignedToMe int `json:"assignedToMe"`
	Unassigned   int `json:"unassigned"`
}

// EvaluatorDashboard is the evaluator's work queue.
type EvaluatorDashboard struct {
	Stats       EvaluatorStats           `json:"stats"`
	Evaluations []*evaluation.Evaluation `json:"evaluations"`
}

// EvaluatorStats returns the counts and queue of submitted and reviewed
// evaluations, newest first.
func (s *Service) EvaluatorStats(ctx context.Context, who authz.Identity) (EvaluatorDashboard, error) {
	if err := s.authorize(ctx, who, 0, OpEvalStats, authz.ResourceEvalStats, authz.VerbGet); err != nil {
		return EvaluatorDashboard{}, err
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return EvaluatorDashboard{}, s.fail(ctx, OpEvalStats, err)
	}
	d := EvaluatorDashboard{Evaluations: []*evaluation.Evaluation{}}
	for _, e := range all {
		switch e.Status {
		case evaluation.StatusSubmitted, evaluation.StatusUnderReview:
			d.Stats.Pending++
		case evaluation.StatusApproved:
			d.Stats.Reviewed++
			d.Stats.Approved++
		case evaluation.StatusRejected:
			d.Stats.Reviewed++
			d.Stats.Rejected++
		default:
			continue
		}
		switch e.EvaluatorID() {
		case "":
			d.Stats.Unassigned++
		case who.ID:
			d.Stats.AssignedToMe++
		}
		d.Evaluations = append(d.Evaluations, e)
	}
	d.Stats.Total = len(d.Evaluations)
	slices.SortFunc(d.Evaluations, byDateDesc)
	return d, nil
}

// AdminStats summarizes the whole platform.
type AdminStats struct {
	TotalOrganizations   int                       `json:"totalOrganizations"`
	TotalEvaluators      int                       `json:"totalEvaluators"`
	TotalEvaluations     int                       `json:"totalEvaluations"`
	PendingAssignment    int                       `json:"pendingAssignment"`
	CompletedEvaluations int                       `json:"completedEvaluations"`
	TotalPrinciples      int                       `json:"totalPrinciples"`
	TotalCriteria        int                       `json:"totalCriteria"`
	ByStatus             map[evaluation.Status]int `json:"byStatus"`
}

// organizationKey identifies the organization behind e for distinct counts.
func organizationKey(e *evaluation.Evaluation) string {
	switch {
	case e.OrganizationEmail != "":
		return e.OrganizationEmail
	case e.OrganizationName != "":
		return e.OrganizationName
	}
	return e.OrganizationID
}

// AdminStats counts organizations, evaluators and evaluations.
func (s *Service) AdminStats(ctx context.Context, who authz.Identity) (AdminStats, error) {
	if err := s.authorize(ctx, who, 0, OpAdminStats, authz.ResourceAdminStats, authz.VerbGet); err != nil {
		return AdminStats{}, err
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return AdminStats{}, s.fail(ctx, OpAdminStats, err)
	}

	orgs := mapset.NewThreadUnsafeSet[string]()
	evaluators := mapset.NewThreadUnsafeSet[string]()
	st := AdminStats{
		TotalEvaluations: len(all),
		TotalPrinciples:  len(s.catalog.ListPrinciples()),
		TotalCriteria:    s.catalog.TotalCriterionCount(),
		ByStatus:         make(map[evaluation.Status]int),
	}
	for _, e := range all {
		st.ByStatus[e.Status]++
		if k := organizationKey(e); k != "" {
			orgs.Add(k)
		}
		if id := e.EvaluatorID(); id != "" {
			evaluators.Add(id)
		}
		if e.Status == evaluation.StatusSubmitted && e.EvaluatorID() == "" {
			st.PendingAssignment++
		}
		if e.Status == evaluation.StatusApproved {
			st.CompletedEvaluations++
		}
	}
	st.TotalOrganizations = orgs.Cardinality()
	st.TotalEvaluators = evaluators.Cardinality()
	return st, nil
}
