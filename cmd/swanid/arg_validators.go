package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min {
			return errors.New(message)
		}
		return nil
	}
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

func requireOneID(cmd *cobra.Command, args []string) error {
	return requireExactlyArgs(1, "image id is required")(cmd, args)
}

func requireAtLeastOneFile(cmd *cobra.Command, args []string) error {
	return requireAtLeastArgs(1, "at least one file is required")(cmd, args)
}
