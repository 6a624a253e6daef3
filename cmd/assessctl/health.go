package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]string
			if err := a.client().do(http.MethodGet, "/healthz", nil, &resp); err != nil {
				return fmt.Errorf("server unreachable: %w", err)
			}
			return a.show(resp, []string{"Check", "Status"}, func() [][]string {
				return [][]string{
					{"Liveness", resp["status"]},
					{"Uptime", resp["uptime"]},
				}
			})
		},
	}
}
