package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// testConnectionCmd represents the test-connection command
var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Test connectivity to the active target",
	Long:  `Resolve the connection for the active provider and tenant and verify the database is reachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.shutdown()

		ok, err := a.orch.TestConnection(cmd.Context())
		if !ok {
			return fmt.Errorf("connection test failed: %w", err)
		}

		snap := a.orch.Session().Snapshot()
		fmt.Printf("Connection OK (%s/%s)\n", snap.CurrentProvider, snap.CurrentTenant)
		return nil
	},
}
