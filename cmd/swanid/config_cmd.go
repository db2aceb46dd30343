package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"swanid/internal/config"
)

const redactedKey = "auth.api_token_hash"

func newConfigCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration",
	}

	cmd.AddCommand(
		newConfigGetCmd(cfg),
		newConfigListCmd(cfg, jsonOutput),
		newConfigSetCmd(),
	)
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			return writePlain("%s\n", value)
		},
	}
}

func newConfigListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every effective config value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := effectiveConfig(cfg)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(values)
			}
			for _, key := range config.AllowedKeys() {
				if err := writePlain("%s = %s\n", key, values[key]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// effectiveConfig resolves every allowed key; the token hash is only
// reported as set or unset.
func effectiveConfig(cfg *config.Config) (map[string]string, error) {
	values := make(map[string]string, len(config.AllowedKeys()))
	for _, key := range config.AllowedKeys() {
		value, err := cfg.Get(key)
		if err != nil {
			return nil, err
		}
		if key == redactedKey && value != "" {
			value = "(set)"
		}
		values[key] = value
	}
	return values, nil
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value in the project or global config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pathFor := config.ProjectPath
			if global {
				pathFor = config.GlobalPath
			}
			path, err := pathFor()
			if err != nil {
				return err
			}
			return config.SetKey(path, args[0], args[1])
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/.swanid.toml)")
	return cmd
}
