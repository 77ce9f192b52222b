package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"birdnest/internal/config"
)

var (
	checkConfigPath string
	checkSchemaPath string
)

var checkCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration and print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(checkConfigPath, checkSchemaPath)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkConfigPath, "config", "", "Path to configuration YAML (optional)")
	checkCmd.Flags().StringVar(&checkSchemaPath, "schema", "", "Path to CUE schema (default: built-in)")
}
