package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// The command and flag names below are consumed by external tooling, so a
// rename is a breaking change even when the behavior is unchanged.
func TestCommandFlagSurface(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		flags []string
	}{
		{statusCmd, []string{"environment", "tenant"}},
		{migrateCmd, []string{"environment", "tenant", "backup", "script", "output", "no-prompt"}},
		{createCmd, []string{"tenant", "provider", "output-dir"}},
	}

	for _, test := range tests {
		for _, flag := range test.flags {
			if test.cmd.Flags().Lookup(flag) == nil {
				t.Errorf("%s: missing flag --%s", test.cmd.Name(), flag)
			}
		}
	}
}

func TestSwitchProviderErrNamesConnectionString(t *testing.T) {
	err := switchProviderErr("oracle")
	if !strings.Contains(err.Error(), `"oracle"`) {
		t.Errorf("error should name the provider: %v", err)
	}
	if !strings.Contains(err.Error(), "connection string") {
		t.Errorf("error should point at the missing connection string: %v", err)
	}
}
