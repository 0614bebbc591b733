package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statusEnvironment string
	statusTenant      string
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  `Display applied and pending migrations for the active provider and tenant.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.shutdown()

		if statusEnvironment != "" {
			a.orch.SwitchEnvironment(statusEnvironment)
		}

		status := a.orch.CheckStatus(cmd.Context(), statusTenant)
		if status.ErrorMessage != "" {
			return fmt.Errorf("status check failed: %s", status.ErrorMessage)
		}

		snap := a.orch.Session().Snapshot()
		fmt.Printf("Provider:     %s\n", status.ProviderName)
		fmt.Printf("Tenant:       %s\n", snap.CurrentTenant)
		fmt.Printf("Environment:  %s\n", snap.CurrentEnvironment)
		if status.DatabaseName != "" {
			fmt.Printf("Database:     %s (%s)\n", status.DatabaseName, status.DatabaseVersion)
		}
		fmt.Println()

		if len(status.AppliedMigrations) == 0 {
			fmt.Println("No migrations applied yet.")
		} else {
			fmt.Printf("Applied migrations (%d):\n", len(status.AppliedMigrations))
			for _, m := range status.AppliedMigrations {
				when := ""
				if m.AppliedOn != nil {
					when = m.AppliedOn.UTC().Format("2006-01-02 15:04:05")
				}
				fmt.Printf("  %s  %-40s %s\n", m.ID, m.Name, when)
			}
		}

		if status.HasPendingMigrations {
			fmt.Printf("\nPending migrations (%d):\n", status.PendingMigrationsCount)
			for _, m := range status.PendingMigrations {
				fmt.Printf("  %s  %s\n", m.ID, m.Name)
			}
		} else {
			fmt.Println("\nDatabase is up to date.")
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusEnvironment, "environment", "", "Check against a specific environment instead of the active one")
	statusCmd.Flags().StringVar(&statusTenant, "tenant", "", "Check a specific tenant instead of the active one")
}
