package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/governance-platform/assessment/pkg/evaluation"
)

func newReviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review submitted evaluations",
	}

	var evaluatorName string
	assign := &cobra.Command{
		Use:   "assign ID EVALUATOR_ID",
		Short: "Assign an evaluator (administrators only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"evaluatorId": args[1], "evaluatorName": evaluatorName}
			var e evaluation.Evaluation
			if err := a.client().post(evaluationPath(args[0], "assign"), body, &e); err != nil {
				return err
			}
			return a.showEvaluation(&e)
		},
	}
	assign.Flags().StringVar(&evaluatorName, "name", "", "Evaluator display name")

	start := &cobra.Command{
		Use:   "start ID",
		Short: "Claim an evaluation and mark it under review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e evaluation.Evaluation
			if err := a.client().post(evaluationPath(args[0], "start-review"), nil, &e); err != nil {
				return err
			}
			return a.showEvaluation(&e)
		},
	}

	var (
		level         int
		justification string
	)
	adjust := &cobra.Command{
		Use:   "adjust ID KEY",
		Short: "Override the organization's level, or update the justification alone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"justification": justification}
			if cmd.Flags().Changed("level") {
				body["evaluatorLevel"] = level
			}
			var e evaluation.Evaluation
			if err := a.client().put(evaluationPath(args[0], "review", "adjustments", args[1]), body, &e); err != nil {
				return err
			}
			return a.showEvaluation(&e)
		},
	}
	adjust.Flags().IntVar(&level, "level", 0, "Evaluator level (0-3); omit to change only the justification")
	adjust.Flags().StringVar(&justification, "justification", "", "Why the level differs")

	var rec evaluation.VerificationRecord
	var adequacy string
	verify := &cobra.Command{
		Use:   "verify ID KEY",
		Short: "Record the verdict on a level 3 evidence file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.Adequacy = evaluation.Adequacy(strings.ToLower(adequacy))
			var e evaluation.Evaluation
			if err := a.client().put(evaluationPath(args[0], "review", "verifications", args[1]), rec, &e); err != nil {
				return err
			}
			return a.showEvaluation(&e)
		},
	}
	verify.Flags().BoolVar(&rec.Verified, "verified", false, "Evidence supports the claim")
	verify.Flags().IntVar(&rec.Quality, "quality", 3, "Evidence quality (1-5)")
	verify.Flags().StringVar(&adequacy, "adequacy", string(evaluation.AdequacyAdequate), "insufficient, adequate or excellent")
	verify.Flags().StringVar(&rec.Notes, "notes", "", "Reviewer notes")

	approve := &cobra.Command{
		Use:   "approve ID",
		Short: "Approve an evaluation and freeze its score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e evaluation.Evaluation
			if err := a.client().post(evaluationPath(args[0], "approve"), nil, &e); err != nil {
				return err
			}
			return a.showEvaluation(&e)
		},
	}

	var reason string
	reject := &cobra.Command{
		Use:   "reject ID",
		Short: "Reject an evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e evaluation.Evaluation
			if err := a.client().post(evaluationPath(args[0], "reject"), map[string]string{"reason": reason}, &e); err != nil {
				return err
			}
			return a.showEvaluation(&e)
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "Why the evaluation is rejected")
	_ = reject.MarkFlagRequired("reason")

	cmd.AddCommand(assign, start, adjust, verify, approve, reject)
	return cmd
}
