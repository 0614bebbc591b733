package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/schemamesh/migrator/internal/config"

	// Built-in migration providers register their factories on import.
	_ "github.com/schemamesh/migrator/internal/providers/mongodb"
	_ "github.com/schemamesh/migrator/internal/providers/mssql"
	_ "github.com/schemamesh/migrator/internal/providers/mysql"
	_ "github.com/schemamesh/migrator/internal/providers/postgres"
)

var (
	configFile string
	verbose    bool

	// Build information variables, stamped by the linker in releases.
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// printVersionInfo displays detailed version information
func printVersionInfo() {
	fmt.Printf("migrator v%s (build %s)\n", Version, GitCommit)
	fmt.Printf("Built: %s\n", BuildTime)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "migrator",
	Short: "Database schema migration orchestrator",
	Long: "A CLI for orchestrating schema migrations across PostgreSQL, MySQL, SQL Server and MongoDB targets, " +
		"with per-tenant connection routing, backups and retry handling.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Lookup("version") != nil && cmd.Flags().Lookup("version").Changed {
			printVersionInfo()
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.ExpandEnv("$HOME/.migrator/config.yaml"), "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().Bool("version", false, "Show version information and exit")

	// Initialize config when the command is executed
	cobra.OnInitialize(func() {
		if err := config.Init(configFile); err != nil {
			fmt.Printf("Error initializing config: %v\n", err)
			os.Exit(1)
		}
	})

	setupCommands()
	setupCompletion()
}

func main() {
	Execute()
}
