package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/governance-platform/assessment/pkg/assessment"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

func newStatsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "evaluator",
		Short: "Show the evaluator dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var d assessment.EvaluatorDashboard
			if err := a.client().get("/stats/evaluator", &d); err != nil {
				return err
			}
			if a.structured() {
				return a.printOutput(d)
			}
			st := d.Stats
			a.printTable([]string{"Total", "Pending", "Reviewed", "Approved", "Rejected", "Mine", "Unassigned"}, [][]string{{
				strconv.Itoa(st.Total), strconv.Itoa(st.Pending), strconv.Itoa(st.Reviewed),
				strconv.Itoa(st.Approved), strconv.Itoa(st.Rejected),
				strconv.Itoa(st.AssignedToMe), strconv.Itoa(st.Unassigned),
			}})
			if len(d.Evaluations) > 0 {
				fmt.Fprintln(a.out)
				a.printTable(evaluationHeaders, evaluationRows(d.Evaluations))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "admin",
		Short: "Show platform statistics (administrators only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st assessment.AdminStats
			if err := a.client().get("/stats/admin", &st); err != nil {
				return err
			}
			return a.show(st, []string{"Metric", "Value"}, func() [][]string {
				rows := [][]string{
					{"Organizations", strconv.Itoa(st.TotalOrganizations)},
					{"Evaluators", strconv.Itoa(st.TotalEvaluators)},
					{"Evaluations", strconv.Itoa(st.TotalEvaluations)},
					{"Pending assignment", strconv.Itoa(st.PendingAssignment)},
					{"Completed", strconv.Itoa(st.CompletedEvaluations)},
					{"Principles", strconv.Itoa(st.TotalPrinciples)},
					{"Criteria", strconv.Itoa(st.TotalCriteria)},
				}
				statuses := make([]evaluation.Status, 0, len(st.ByStatus))
				for s := range st.ByStatus {
					statuses = append(statuses, s)
				}
				slices.Sort(statuses)
				for _, s := range statuses {
					rows = append(rows, []string{"Status " + string(s), strconv.Itoa(st.ByStatus[s])})
				}
				return rows
			})
		},
	})
	return cmd
}
