package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/governance-platform/assessment/pkg/assessment"
	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/evaluation"
	"github.com/governance-platform/assessment/pkg/scoring"
)

type evaluationList struct {
	Evaluations []*evaluation.Evaluation `json:"evaluations"`
	Total       int                      `json:"total"`
}

func evaluationPath(id string, sub ...string) string {
	p := "/evaluations/" + url.PathEscape(id)
	for _, s := range sub {
		p += "/" + s
	}
	return p
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(time.DateTime)
}

func evaluationRows(list []*evaluation.Evaluation) [][]string {
	rows := make([][]string, 0, len(list))
	for _, e := range list {
		evaluator := e.EvaluatorID()
		if evaluator == "" {
			evaluator = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			truncate(e.Name, 40),
			e.Period,
			string(e.Status),
			truncate(e.OrganizationName, 30),
			evaluator,
			strconv.Itoa(e.AnsweredCount()),
			formatTime(e.SubmittedDate),
		})
	}
	return rows
}

var evaluationHeaders = []string{"ID", "Name", "Period", "Status", "Organization", "Evaluator", "Answered", "Submitted"}

func (a *app) showEvaluation(e *evaluation.Evaluation) error {
	return a.show(e, evaluationHeaders, func() [][]string {
		return evaluationRows([]*evaluation.Evaluation{e})
	})
}

func newEvaluationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "evaluations",
		Aliases: []string{"eval", "ev"},
		Short:   "Manage evaluations",
	}

	var filter, sort string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the evaluations visible to the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if filter != "" {
				q.Set("filter", filter)
			}
			if sort != "" {
				q.Set("sort", sort)
			}
			path := "/evaluations"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var resp evaluationList
			if err := a.client().get(path, &resp); err != nil {
				return err
			}
			return a.show(resp, evaluationHeaders, func() [][]string {
				return evaluationRows(resp.Evaluations)
			})
		},
	}
	list.Flags().StringVar(&filter, "filter", "", `Filter expression, e.g. "status = submitted AND score >= 50"`)
	list.Flags().StringVar(&sort, "sort", "", "Sort order: date or status")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e evaluation.Evaluation
			if err := a.client().get(evaluationPath(args[0]), &e); err != nil {
				return err
			}
			return a.showEvaluation(&e)
		},
	}

	var draft evaluation.Draft
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a draft evaluation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var e evaluation.Evaluation
			if err := a.client().post("/evaluations", draft, &e); err != nil {
				return err
			}
			return a.showEvaluation(&e)
		},
	}
	create.Flags().StringVar(&draft.Name, "name", "", "Evaluation name")
	create.Flags().StringVar(&draft.Description, "description", "", "Evaluation description")
	create.Flags().StringVar(&draft.Period, "period", "", "Period covered, e.g. 2024")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("period")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().delete(evaluationPath(args[0]), nil); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "evaluation %s deleted\n", args[0])
			return nil
		},
	}

	submit := &cobra.Command{
		Use:   "submit ID",
		Short: "Submit a draft for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res assessment.SubmitResult
			if err := a.client().post(evaluationPath(args[0], "submit"), nil, &res); err != nil {
				return err
			}
			if a.structured() {
				return a.printOutput(res)
			}
			if !res.Complete {
				fmt.Fprintf(a.out, "warning: only %d%% of the criteria are answered\n", res.CompletionRate)
			}
			return a.showEvaluation(res.Evaluation)
		},
	}

	score := &cobra.Command{
		Use:   "score ID",
		Short: "Show the score of an evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rep assessment.ScoreReport
			if err := a.client().get(evaluationPath(args[0], "score"), &rep); err != nil {
				return err
			}
			return a.show(rep, []string{"Metric", "Value"}, func() [][]string {
				final := "-"
				if rep.FinalScorePercent != nil {
					final = strconv.Itoa(*rep.FinalScorePercent) + "%"
				}
				rows := [][]string{
					{"Answered", fmt.Sprintf("%d/%d", rep.AnsweredCount, rep.TotalCriteria)},
					{"Completion", strconv.Itoa(rep.CompletionRate) + "%"},
					{"Self score", strconv.Itoa(rep.RawScorePercent) + "%"},
					{"Final score", final},
					{"Label", string(rep.GovernanceLabel)},
				}
				if rep.Scoring != nil {
					rows = append(rows, []string{"Certified until", formatTime(&rep.Scoring.Certification.ValidUntil)})
				}
				if rep.DigestValid != nil {
					rows = append(rows, []string{"Digest valid", strconv.FormatBool(*rep.DigestValid)})
				}
				return rows
			})
		},
	}

	breakdown := &cobra.Command{
		Use:   "breakdown ID",
		Short: "Show per-principle scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var b assessment.Breakdown
			if err := a.client().get(evaluationPath(args[0], "breakdown"), &b); err != nil {
				return err
			}
			return a.show(b, []string{"Principle", "Name", "Answered", "Organization", "Effective"}, func() [][]string {
				effective := make(map[int]scoring.PrincipleScore, len(b.Effective))
				for _, p := range b.Effective {
					effective[p.PrincipleID] = p
				}
				rows := make([][]string, 0, len(b.Organization))
				for _, p := range b.Organization {
					rows = append(rows, []string{
						strconv.Itoa(p.PrincipleID),
						truncate(p.Name, 40),
						fmt.Sprintf("%d/%d", p.Count, p.Total),
						strconv.Itoa(p.Score) + "%",
						strconv.Itoa(effective[p.PrincipleID].Score) + "%",
					})
				}
				return rows
			})
		},
	}

	analysis := &cobra.Command{
		Use:   "analysis ID",
		Short: "Show the review analysis of an evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var an scoring.Analysis
			if err := a.client().get(evaluationPath(args[0], "analysis"), &an); err != nil {
				return err
			}
			return a.show(an, []string{"Metric", "Value"}, func() [][]string {
				return [][]string{
					{"Self score", strconv.Itoa(an.RawScorePercent) + "%"},
					{"Levels 0/1/2/3", fmt.Sprintf("%d/%d/%d/%d", an.Distribution[0], an.Distribution[1], an.Distribution[2], an.Distribution[3])},
					{"With evidence", strconv.Itoa(an.WithEvidence)},
					{"With comments", strconv.Itoa(an.WithComments)},
					{"To verify", strconv.Itoa(len(an.VerificationTargets))},
					{"Red flags", strconv.Itoa(len(an.RedFlags))},
				}
			})
		},
	}

	var pageSize int
	var pageToken string
	history := &cobra.Command{
		Use:   "history ID",
		Short: "Show the audit trail of an evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"pageSize": {strconv.Itoa(pageSize)}}
			if pageToken != "" {
				q.Set("pageToken", pageToken)
			}
			var page audit.PageResponse
			if err := a.client().get(evaluationPath(args[0], "audit")+"?"+q.Encode(), &page); err != nil {
				return err
			}
			if err := a.show(page, []string{"Time", "Event", "Actor", "Role", "Status"}, func() [][]string {
				rows := make([][]string, 0, len(page.Events))
				for _, ev := range page.Events {
					status := ev.ToStatus
					if ev.FromStatus != "" && ev.FromStatus != ev.ToStatus {
						status = ev.FromStatus + " -> " + ev.ToStatus
					}
					rows = append(rows, []string{ev.CreatedAt, ev.EventType, ev.Actor, ev.ActorRole, status})
				}
				return rows
			}); err != nil {
				return err
			}
			if !a.structured() && page.NextPageToken != "" {
				fmt.Fprintf(a.out, "\nmore events: --page-token %s\n", page.NextPageToken)
			}
			return nil
		},
	}
	history.Flags().IntVar(&pageSize, "page-size", 50, "Events per page")
	history.Flags().StringVar(&pageToken, "page-token", "", "Token of the page to fetch")

	cmd.AddCommand(list, get, create, del, submit, score, breakdown, analysis, history)
	return cmd
}
