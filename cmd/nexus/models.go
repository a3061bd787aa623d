package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type modelListing struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models advertised by healthy backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := adminBaseURL()
			if err != nil {
				return err
			}
			var list modelListing
			if err := getJSON(base+"/v1/models", &list); err != nil {
				return err
			}
			for _, m := range list.Data {
				fmt.Printf("%-40s %s\n", m.ID, m.OwnedBy)
			}
			return nil
		},
	}
}
