package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scriptOutput string

// scriptCmd represents the script command
var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Generate scripts for pending migrations",
	Long:  `Write the pending migrations to a combined script file without applying them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.shutdown()

		result := a.orch.GenerateScripts(cmd.Context(), scriptOutput)
		if !result.Success {
			return fmt.Errorf("script generation failed: %s", result.ErrorMessage)
		}

		fmt.Printf("Scripts written to %s\n", result.ScriptsPath)
		if count, ok := result.AdditionalInfo["pending_count"]; ok {
			fmt.Printf("Pending migrations included: %s\n", count)
		}
		return nil
	},
}

func init() {
	scriptCmd.Flags().StringVar(&scriptOutput, "output", "", "Output directory for generated scripts")
}
