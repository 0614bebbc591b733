package migration

import (
	"context"

	"github.com/schemamesh/migrator/pkg/providertypes"
)

// Handler is the contract every provider plugin must implement. One handler
// serves one provider type; the registry indexes handlers by that type.
//
// Every operation accepts a context for cancellation and takes its timeout
// from the request's ConnectionDescriptor. Operations return explicit errors;
// the orchestrator converts them into structured Results at the boundary.
type Handler interface {
	// Type returns the canonical provider type this handler serves.
	Type() providertypes.ProviderType

	// Capabilities returns the capability metadata for this provider type.
	Capabilities() providertypes.Capability

	// CreateMigration allocates a new migration identifier and, for backends
	// that support it, writes a migration script file into the request's
	// output directory. Colliding ids are a contract violation reported as
	// ErrDuplicateMigrationID, never silently overwritten.
	CreateMigration(ctx context.Context, req Request) (Result, error)

	// Migrate applies all pending migrations in ascending id order. On a mid-
	// batch failure the result reports Success=false but still lists the
	// migrations that did commit, so status can be updated accurately.
	// Backends with transactional DDL report an empty applied list instead.
	Migrate(ctx context.Context, req Request) (Result, error)

	// GetStatus reports migration state. It must never mutate the target.
	GetStatus(ctx context.Context, req Request) (Status, error)

	// GenerateScripts produces script text for pending migrations without
	// applying them. ScriptsPath is populated on success.
	GenerateScripts(ctx context.Context, req Request) (Result, error)

	// TestConnection is a lightweight connectivity probe with no side
	// effects, bounded by the request's own timeout.
	TestConnection(ctx context.Context, req Request) error
}
