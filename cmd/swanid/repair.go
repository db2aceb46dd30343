package main

import (
	"github.com/spf13/cobra"

	"swanid/internal/api"
	"swanid/internal/config"
)

func newRepairCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Find (and with --apply, remove) blobs and records that disagree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				report, err := client.Repair(cmd.Context(), apply)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(report)
				}
				return writeRepairReport(report)
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete orphan blobs and records whose blob is missing")
	return cmd
}
