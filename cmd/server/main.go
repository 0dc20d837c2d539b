package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"electa/internal/platform/config"
)

const programName = "electa"

func main() {
	var cfg config.Config

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Election lifecycle and nomination quota service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded
			return nil
		},
	}
	rootCmd.AddCommand(serveCommand(&cfg))
	rootCmd.AddCommand(migrateCommand(&cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
