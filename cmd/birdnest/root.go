package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"birdnest/internal/config"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "birdnest",
	Short: "No-fly zone violation monitor",
	Long:  "birdnest polls a drone surveillance feed, tracks drones that enter the protected zone around a nest and resolves their pilots.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFiles...)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading config (default .env)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(dashboardCmd)
}
