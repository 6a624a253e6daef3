package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/governance-platform/assessment/pkg/criteria"
)

type catalogDoc struct {
	Version        string                   `json:"version"`
	TotalCriteria  int                      `json:"totalCriteria"`
	MaturityLevels []criteria.MaturityLevel `json:"maturityLevels"`
	Principles     []criteria.Principle     `json:"principles"`
}

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the governance principles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc catalogDoc
			if err := a.client().get("/catalog", &doc); err != nil {
				return err
			}
			return a.show(doc, []string{"ID", "Principle", "Practices", "Criteria"}, func() [][]string {
				rows := make([][]string, 0, len(doc.Principles))
				for _, p := range doc.Principles {
					rows = append(rows, []string{
						strconv.Itoa(p.ID),
						truncate(p.Name, 60),
						strconv.Itoa(len(p.Practices)),
						strconv.Itoa(p.CriterionCount()),
					})
				}
				return rows
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "levels",
		Short: "Show the maturity scale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var levels []criteria.MaturityLevel
			if err := a.client().get("/catalog/maturity-levels", &levels); err != nil {
				return err
			}
			return a.show(levels, []string{"Level", "Label", "Description"}, func() [][]string {
				rows := make([][]string, 0, len(levels))
				for _, l := range levels {
					rows = append(rows, []string{strconv.Itoa(l.Value), l.Label, truncate(l.Description, 70)})
				}
				return rows
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "criteria PRINCIPLE PRACTICE",
		Short: "List the criteria of one practice",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var defs []criteria.Definition
			if err := a.client().get(fmt.Sprintf("/catalog/principles/%s/practices/%s/criteria", args[0], args[1]), &defs); err != nil {
				return err
			}
			return a.show(defs, []string{"Key", "Criterion", "Evidence"}, func() [][]string {
				rows := make([][]string, 0, len(defs))
				for _, d := range defs {
					rows = append(rows, []string{d.Key().String(), truncate(d.Text, 70), truncate(d.RequiredEvidence, 40)})
				}
				return rows
			})
		},
	})
	return cmd
}
