// Package session holds the process-lifetime operational state: current
// environment, tenant and provider, plus the last-known migration summary.
// The state is owned by the orchestration layer; callers read snapshots or
// request mutation through the named operations, never by writing fields
// directly.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/schemamesh/migrator/pkg/providertypes"
)

// Snapshot is a copy of the session state at a point in time. Persisted at
// shutdown and reloaded at the next startup; the format round-trips
// losslessly. Connection strings are never part of the session.
type Snapshot struct {
	CurrentEnvironment     string                     `yaml:"current_environment"`
	CurrentTenant          string                     `yaml:"current_tenant"`
	CurrentProvider        providertypes.ProviderType `yaml:"current_provider"`
	IsBatchMode            bool                       `yaml:"is_batch_mode"`
	HasPendingMigrations   bool                       `yaml:"has_pending_migrations"`
	PendingMigrationsCount int                        `yaml:"pending_migrations_count"`
	LastMigrationDate      *time.Time                 `yaml:"last_migration_date,omitempty"`
	LastMigrationName      string                     `yaml:"last_migration_name,omitempty"`
	AutoBackupEnabled      bool                       `yaml:"auto_backup_enabled"`
}

// State is the mutable session guarded by a lock. Create one at startup with
// New or Restore and persist it at shutdown with Save.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New creates a session with the given initial values. Batch mode is detected
// from stdin: a non-terminal stdin means the process is driven by a script.
func New(environment, tenant string, provider providertypes.ProviderType, autoBackup bool) *State {
	return &State{snap: Snapshot{
		CurrentEnvironment: environment,
		CurrentTenant:      tenant,
		CurrentProvider:    provider,
		IsBatchMode:        !term.IsTerminal(int(os.Stdin.Fd())),
		AutoBackupEnabled:  autoBackup,
	}}
}

// Restore loads a previously persisted session from path. A missing file
// yields a fresh session with the provided defaults.
func Restore(path, environment, tenant string, provider providertypes.ProviderType, autoBackup bool) (*State, error) {
	s := New(environment, tenant, provider, autoBackup)

	data, err := os.ReadFile(path) //nolint:gosec // path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read session file: %v", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %v", err)
	}

	// Batch mode reflects the current invocation, not the stored one.
	snap.IsBatchMode = s.snap.IsBatchMode
	if snap.CurrentEnvironment == "" {
		snap.CurrentEnvironment = environment
	}
	if snap.CurrentTenant == "" {
		snap.CurrentTenant = tenant
	}
	if snap.CurrentProvider == "" {
		snap.CurrentProvider = provider
	}

	s.snap = snap
	return s, nil
}

// Save persists the session to path, creating the parent directory.
func (s *State) Save(path string) error {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create session directory: %v", err)
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %v", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %v", err)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SwitchTenant changes the current tenant.
func (s *State) SwitchTenant(tenantID string) {
	s.mu.Lock()
	s.snap.CurrentTenant = tenantID
	s.mu.Unlock()
}

// SwitchProvider changes the current provider.
func (s *State) SwitchProvider(provider providertypes.ProviderType) {
	s.mu.Lock()
	s.snap.CurrentProvider = provider
	s.mu.Unlock()
}

// SwitchEnvironment changes the current environment.
func (s *State) SwitchEnvironment(environment string) {
	s.mu.Lock()
	s.snap.CurrentEnvironment = environment
	s.mu.Unlock()
}

// SetBatchMode overrides batch-mode detection, e.g. for --no-prompt.
func (s *State) SetBatchMode(batch bool) {
	s.mu.Lock()
	s.snap.IsBatchMode = batch
	s.mu.Unlock()
}

// SetAutoBackup toggles the pre-migration backup safety net.
func (s *State) SetAutoBackup(enabled bool) {
	s.mu.Lock()
	s.snap.AutoBackupEnabled = enabled
	s.mu.Unlock()
}

// RecordMigration notes the most recently applied migration.
func (s *State) RecordMigration(name string, appliedOn time.Time) {
	s.mu.Lock()
	s.snap.LastMigrationName = name
	s.snap.LastMigrationDate = &appliedOn
	s.mu.Unlock()
}

// RecordStatus mirrors a status check into the session so subsequent reads
// are cheap. The pending flag is derived from the count to keep the pair
// consistent under concurrent readers.
func (s *State) RecordStatus(pendingCount int, lastDate *time.Time, lastName string) {
	s.mu.Lock()
	s.snap.PendingMigrationsCount = pendingCount
	s.snap.HasPendingMigrations = pendingCount > 0
	if lastDate != nil {
		s.snap.LastMigrationDate = lastDate
	}
	if lastName != "" {
		s.snap.LastMigrationName = lastName
	}
	s.mu.Unlock()
}
