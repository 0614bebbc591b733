package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schemamesh/migrator/internal/config"
)

// tenantsCmd represents the tenants command
var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Manage tenants",
	Long:  `Commands for listing configured tenants and switching the active one.`,
}

// listTenantsCmd represents the list command
var listTenantsCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured tenants",
	Long:  `Display tenants that have a connection override in the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.shutdown()

		active := a.orch.Session().Snapshot().CurrentTenant
		var tenants []string
		for key := range a.cfg.ConnectionStrings {
			if rest, ok := strings.CutPrefix(key, config.TenantKeyPrefix); ok {
				tenants = append(tenants, rest)
			}
		}
		sort.Strings(tenants)

		if len(tenants) == 0 {
			fmt.Println("No tenant overrides configured.")
		}
		for _, t := range tenants {
			marker := " "
			if t == active {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, t)
		}
		if active != "" {
			fmt.Printf("\nActive tenant: %s\n", active)
		}
		return nil
	},
}

// switchTenantCmd represents the switch command
var switchTenantCmd = &cobra.Command{
	Use:   "switch [tenant-id]",
	Short: "Switch the active tenant",
	Long: `Switch the active tenant. Tenants without a connection override fall back to the
provider connection, so any tenant id is accepted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.shutdown()

		a.orch.SwitchTenant(args[0])
		fmt.Printf("Active tenant: %s\n", args[0])
		return nil
	},
}

func init() {
	tenantsCmd.AddCommand(listTenantsCmd)
	tenantsCmd.AddCommand(switchTenantCmd)
}
