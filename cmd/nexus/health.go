package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type healthSummary struct {
	Status          string `json:"status"`
	BackendCount    int    `json:"backend_count"`
	HealthyBackends int    `json:"healthy_backends"`
	ModelCount      int    `json:"model_count"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report the running gateway's fleet health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := adminBaseURL()
			if err != nil {
				return err
			}
			var summary healthSummary
			if err := getJSON(base+"/health", &summary); err != nil {
				return err
			}
			fmt.Printf("status: %s\nbackends: %d healthy / %d total\nmodels: %d\nuptime: %ds\n",
				summary.Status, summary.HealthyBackends, summary.BackendCount, summary.ModelCount, summary.UptimeSeconds)
			return nil
		},
	}
}
