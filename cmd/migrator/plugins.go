package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pluginsCmd represents the plugins command
var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Manage migration plugins",
	Long:  `Commands for inspecting the loaded migration plugins.`,
}

// listPluginsCmd represents the list command
var listPluginsCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded plugins",
	Long:  `Display all loaded migration plugins with their provider, version and capabilities.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.shutdown()

		descriptors := a.orch.Registry().Descriptors()
		if len(descriptors) == 0 {
			fmt.Printf("No plugins loaded from %s\n", a.cfg.PluginDir)
			return nil
		}

		for _, d := range descriptors {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Printf("%s %-24s %-10s %-10s %s\n", marker, d.Name, d.Provider, d.Version, d.Description)
			if len(d.Capabilities) > 0 {
				fmt.Printf("    capabilities: %v\n", d.Capabilities)
			}
		}

		if warnings := a.orch.Registry().Warnings(); len(warnings) > 0 {
			fmt.Printf("\n%d plugin(s) failed to load; run with --verbose for details.\n", len(warnings))
		}
		return nil
	},
}

func init() {
	pluginsCmd.AddCommand(listPluginsCmd)
}
