package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	createTenant   string
	createProvider string
	createOutput   string
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new migration",
	Long: `Allocate a new migration id and write a script template for the active provider.
When no name is given a timestamped default is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.shutdown()

		if createTenant != "" {
			a.orch.SwitchTenant(createTenant)
		}
		if createProvider != "" && !a.orch.SwitchProvider(createProvider) {
			return switchProviderErr(createProvider)
		}

		name := ""
		if len(args) > 0 {
			name = args[0]
		}

		result := a.orch.CreateMigration(cmd.Context(), name, createOutput)
		if !result.Success {
			return fmt.Errorf("create migration failed: %s", result.ErrorMessage)
		}

		for _, m := range result.AppliedMigrations {
			fmt.Printf("Created migration %s_%s\n", m.ID, m.Name)
		}
		if result.ScriptsPath != "" {
			fmt.Printf("Script: %s\n", result.ScriptsPath)
		}
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createTenant, "tenant", "", "Create the migration for a specific tenant instead of the active one")
	createCmd.Flags().StringVar(&createProvider, "provider", "", "Create the migration for a specific provider instead of the active one")
	createCmd.Flags().StringVar(&createOutput, "output-dir", "", "Directory to write the migration script to")
}
