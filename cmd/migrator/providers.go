package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemamesh/migrator/pkg/providertypes"
)

// providersCmd represents the providers command
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage database providers",
	Long:  `Commands for listing registered providers and switching the active one.`,
}

// listProvidersCmd represents the list command
var listProvidersCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered providers",
	Long:  `Display all providers with a registered migration plugin, with capabilities and connection state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.shutdown()

		active := a.orch.Session().Snapshot().CurrentProvider
		for _, provider := range a.orch.Registry().Providers() {
			capability := providertypes.MustGet(provider)
			marker := " "
			if provider == active {
				marker = "*"
			}
			ddl := "non-transactional DDL"
			if capability.TransactionalDDL {
				ddl = "transactional DDL"
			}
			fmt.Printf("%s %-10s %-22s %s\n", marker, provider, capability.Name, ddl)
		}
		return nil
	},
}

// switchProviderCmd represents the switch command
var switchProviderCmd = &cobra.Command{
	Use:   "switch [provider]",
	Short: "Switch the active provider",
	Long: `Switch the active provider. Provider aliases are accepted; the switch is refused when
the name is unknown or no connection string is configured for it, leaving the session unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.shutdown()

		if !a.orch.SwitchProvider(args[0]) {
			return switchProviderErr(args[0])
		}
		fmt.Printf("Active provider: %s\n", a.orch.Session().Snapshot().CurrentProvider)
		return nil
	},
}

// switchProviderErr explains a refused provider switch. The resolver refuses
// when the name is unknown or no connection string is configured for it.
func switchProviderErr(name string) error {
	return fmt.Errorf("cannot switch to provider %q: unknown name or no connection string configured", name)
}

func init() {
	providersCmd.AddCommand(listProvidersCmd)
	providersCmd.AddCommand(switchProviderCmd)
}
