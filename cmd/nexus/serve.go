package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexusfleet/nexus/internal/bootstrap"
	"github.com/nexusfleet/nexus/internal/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Nexus gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, loadOverrides())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := bootstrap.New(cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			return app.Run(context.Background())
		},
	}
}
