package migration

import (
	"time"

	"github.com/schemamesh/migrator/pkg/connstring"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

// Timeout bounds for a single provider operation, in seconds.
const (
	MinTimeoutSeconds     = 5
	MaxTimeoutSeconds     = 300
	DefaultTimeoutSeconds = 30
)

// ConnectionDescriptor carries everything a provider handler needs to reach a
// target database. It is created per-call and must be treated as immutable
// once handed to a handler.
type ConnectionDescriptor struct {
	ConnectionString string                     `json:"-"`
	Provider         providertypes.ProviderType `json:"provider"`
	TimeoutSeconds   int                        `json:"timeoutSeconds"`
	UseTransaction   bool                       `json:"useTransaction"`
}

// Timeout returns the per-call timeout as a duration, clamped to the
// supported range.
func (d ConnectionDescriptor) Timeout() time.Duration {
	secs := d.TimeoutSeconds
	if secs < MinTimeoutSeconds {
		secs = MinTimeoutSeconds
	}
	if secs > MaxTimeoutSeconds {
		secs = MaxTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// Redacted returns the connection string with credential values masked.
// This is the only form that may appear in logs or persisted artifacts.
func (d ConnectionDescriptor) Redacted() string {
	return connstring.Mask(d.ConnectionString)
}

// Request describes a single migration operation invocation.
type Request struct {
	Connection      ConnectionDescriptor `json:"connection"`
	MigrationName   string               `json:"migrationName,omitempty"`
	OutputDirectory string               `json:"outputDirectory,omitempty"`
	CreateBackup    bool                 `json:"createBackup"`
	TenantID        string               `json:"tenantId"`
	Environment     string               `json:"environment"`
	Verbose         bool                 `json:"verbose"`

	// MigrationsDirectory is where the provider's migration script files
	// live. The orchestrator populates it from configuration; handlers read
	// pending migrations from here.
	MigrationsDirectory string `json:"migrationsDirectory,omitempty"`
}

// Info identifies a single migration unit. IDs are derived from UTC
// timestamps and are strictly increasing for migrations created in the same
// process, which fixes the apply order.
type Info struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	AppliedOn *time.Time `json:"appliedOn,omitempty"`
	Script    string     `json:"script,omitempty"`
}

// Result is the outcome of a create/migrate/script operation.
// Invariant: Success == false implies ErrorMessage is non-empty, and
// Success == true implies ErrorMessage is empty.
type Result struct {
	Success           bool              `json:"success"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
	AppliedMigrations []Info            `json:"appliedMigrations,omitempty"`
	ScriptsPath       string            `json:"scriptsPath,omitempty"`
	BackupPath        string            `json:"backupPath,omitempty"`
	AdditionalInfo    map[string]string `json:"additionalInfo,omitempty"`
}

// Failure builds a Result for the given error.
func Failure(err error) Result {
	return Result{Success: false, ErrorMessage: err.Error()}
}

// Status is a read-only snapshot of a target database's migration state.
// Invariant: HasPendingMigrations == (PendingMigrationsCount > 0).
type Status struct {
	HasPendingMigrations   bool                       `json:"hasPendingMigrations"`
	PendingMigrationsCount int                        `json:"pendingMigrationsCount"`
	PendingMigrations      []Info                     `json:"pendingMigrations,omitempty"`
	AppliedMigrations      []Info                     `json:"appliedMigrations,omitempty"`
	LastMigrationDate      *time.Time                 `json:"lastMigrationDate,omitempty"`
	LastMigrationName      string                     `json:"lastMigrationName,omitempty"`
	ProviderName           providertypes.ProviderType `json:"providerName,omitempty"`
	DatabaseName           string                     `json:"databaseName,omitempty"`
	DatabaseVersion        string                     `json:"databaseVersion,omitempty"`
	ErrorMessage           string                     `json:"errorMessage,omitempty"`
}

// StatusFailure builds a Status carrying only an error.
func StatusFailure(err error) Status {
	return Status{ErrorMessage: err.Error()}
}
