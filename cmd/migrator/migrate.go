package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	migrateEnvironment string
	migrateTenant      string
	migrateBackup      bool
	migrateScript      bool
	migrateOutput      string
	migrateNoPrompt    bool
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Long: `Apply all pending migrations for the active provider and tenant, in id order.
With --script the pending migrations are written to a script file instead of applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.shutdown()

		if migrateEnvironment != "" {
			a.orch.SwitchEnvironment(migrateEnvironment)
		}
		if migrateTenant != "" {
			a.orch.SwitchTenant(migrateTenant)
		}

		if migrateScript {
			result := a.orch.GenerateScripts(cmd.Context(), migrateOutput)
			if !result.Success {
				return fmt.Errorf("script generation failed: %s", result.ErrorMessage)
			}
			fmt.Printf("Scripts written to %s\n", result.ScriptsPath)
			return nil
		}

		status := a.orch.CheckStatus(cmd.Context(), "")
		if status.ErrorMessage != "" {
			return fmt.Errorf("status check failed: %s", status.ErrorMessage)
		}
		if !status.HasPendingMigrations {
			fmt.Println("Database is up to date.")
			return nil
		}

		snap := a.orch.Session().Snapshot()
		if !migrateNoPrompt && !snap.IsBatchMode {
			if !confirm(fmt.Sprintf("Apply %d pending migration(s) to %s/%s?",
				status.PendingMigrationsCount, snap.CurrentProvider, snap.CurrentTenant)) {
				fmt.Println("Aborted.")
				return nil
			}
		}

		result := a.orch.RunMigrations(cmd.Context(), migrateBackup)
		if result.BackupPath != "" {
			fmt.Printf("Backup written to %s\n", result.BackupPath)
		}
		if !result.Success {
			if len(result.AppliedMigrations) > 0 {
				fmt.Printf("Applied %d migration(s) before the failure:\n", len(result.AppliedMigrations))
				for _, m := range result.AppliedMigrations {
					fmt.Printf("  %s  %s\n", m.ID, m.Name)
				}
			}
			return fmt.Errorf("migration failed: %s", result.ErrorMessage)
		}

		fmt.Printf("Applied %d migration(s):\n", len(result.AppliedMigrations))
		for _, m := range result.AppliedMigrations {
			fmt.Printf("  %s  %s\n", m.ID, m.Name)
		}
		return nil
	},
}

// confirm reads a yes/no answer from stdin, defaulting to no.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func init() {
	migrateCmd.Flags().StringVar(&migrateEnvironment, "environment", "", "Migrate against a specific environment instead of the active one")
	migrateCmd.Flags().StringVar(&migrateTenant, "tenant", "", "Migrate a specific tenant instead of the active one")
	migrateCmd.Flags().BoolVar(&migrateBackup, "backup", false, "Create a backup before migrating")
	migrateCmd.Flags().BoolVar(&migrateScript, "script", false, "Generate a script instead of applying")
	migrateCmd.Flags().StringVar(&migrateOutput, "output", "", "Output directory for generated scripts")
	migrateCmd.Flags().BoolVar(&migrateNoPrompt, "no-prompt", false, "Skip the confirmation prompt")
}
