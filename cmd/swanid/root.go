package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"swanid/internal/config"
	"swanid/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool
	var logLevel string
	var outputFormat string

	cmd := &cobra.Command{
		Use:           "swanid",
		Short:         "Swanid stores tagged bird images and classifies uploads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}

			formatter, err := format.ForName(outputFormat)
			if err != nil {
				return err
			}
			// --format implies structured output.
			if cmd.Flags().Changed("format") {
				jsonOutput = true
			}
			outputFormatter = formatter
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "json", "structured output format (json or yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newSaveCmd(cfg, &jsonOutput),
		newFindCmd(cfg, &jsonOutput),
		newShowCmd(cfg, &jsonOutput),
		newTagCmd(cfg, &jsonOutput),
		newRmCmd(cfg, &jsonOutput),
		newGetCmd(cfg),
		newClassifyCmd(cfg, &jsonOutput),
		newExportCmd(cfg),
		newRepairCmd(cfg, &jsonOutput),
		newMigrateCmd(cfg, &jsonOutput),
		newConfigCmd(cfg, &jsonOutput),
		newTokenCmd(),
	)

	return cmd
}
