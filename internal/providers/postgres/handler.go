// Package postgres implements the migration contract for PostgreSQL using
// pgx connection pools. Applied migrations are recorded in a
// schema_migrations table; DDL is transactional, so a failed batch run under
// a transaction applies nothing.
package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/schemamesh/migrator/internal/providers/scriptdir"
	"github.com/schemamesh/migrator/pkg/migration"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

const (
	scriptExt = ".sql"

	historyTableDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_on TIMESTAMPTZ NOT NULL DEFAULT now()
)`
)

// Handler implements migration.Handler for PostgreSQL.
type Handler struct {
	ids *migration.IDAllocator
}

// New creates a PostgreSQL migration handler.
func New() *Handler {
	return &Handler{ids: migration.NewIDAllocator()}
}

// Type returns the provider type identifier.
func (h *Handler) Type() providertypes.ProviderType {
	return providertypes.PostgreSQL
}

// Capabilities returns the capability metadata for PostgreSQL.
func (h *Handler) Capabilities() providertypes.Capability {
	return providertypes.MustGet(providertypes.PostgreSQL)
}

// connect opens a pool and verifies connectivity within the request timeout.
func (h *Handler) connect(ctx context.Context, req migration.Request) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, req.Connection.Timeout())
	defer cancel()

	pool, err := pgxpool.New(ctx, req.Connection.ConnectionString)
	if err != nil {
		return nil, migration.NewTransientError(h.Type(), "connect",
			fmt.Errorf("error opening connection pool: %w", err))
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, migration.NewTransientError(h.Type(), "connect",
			fmt.Errorf("error pinging database: %w", err))
	}
	return pool, nil
}

// CreateMigration allocates a new id and writes the script template.
func (h *Handler) CreateMigration(ctx context.Context, req migration.Request) (migration.Result, error) {
	if req.MigrationName == "" {
		err := migration.NewPermanentError(h.Type(), "create_migration",
			fmt.Errorf("migration name is required"))
		return migration.Failure(err), err
	}

	id := h.ids.Next()
	template := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n-- Write forward-only schema changes below.\n",
		req.MigrationName, time.Now().UTC().Format(time.RFC3339))

	path, err := scriptdir.Write(req.OutputDirectory, id, req.MigrationName, scriptExt, template)
	if err != nil {
		wrapped := migration.WrapError(h.Type(), "create_migration", err)
		return migration.Failure(wrapped), wrapped
	}

	return migration.Result{
		Success:           true,
		AppliedMigrations: []migration.Info{{ID: id, Name: req.MigrationName, Script: path}},
		ScriptsPath:       path,
	}, nil
}

// appliedSet reads the history table. A missing table means nothing has been
// applied yet; GetStatus must not create it.
func (h *Handler) appliedSet(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, []migration.Info, error) {
	var exists *string
	if err := pool.QueryRow(ctx, "SELECT to_regclass('public.schema_migrations')::text").Scan(&exists); err != nil {
		return nil, nil, migration.NewTransientError(h.Type(), "get_status",
			fmt.Errorf("error checking history table: %w", err))
	}
	if exists == nil {
		return map[string]bool{}, nil, nil
	}

	rows, err := pool.Query(ctx, "SELECT id, name, applied_on FROM schema_migrations ORDER BY id")
	if err != nil {
		return nil, nil, migration.NewTransientError(h.Type(), "get_status",
			fmt.Errorf("error reading history table: %w", err))
	}
	defer rows.Close()

	set := make(map[string]bool)
	var applied []migration.Info
	for rows.Next() {
		var info migration.Info
		var appliedOn time.Time
		if err := rows.Scan(&info.ID, &info.Name, &appliedOn); err != nil {
			return nil, nil, migration.NewPermanentError(h.Type(), "get_status",
				fmt.Errorf("error scanning history row: %w", err))
		}
		info.AppliedOn = &appliedOn
		set[info.ID] = true
		applied = append(applied, info)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, migration.NewTransientError(h.Type(), "get_status", err)
	}
	return set, applied, nil
}

// GetStatus reports migration state without mutating the target.
func (h *Handler) GetStatus(ctx context.Context, req migration.Request) (migration.Status, error) {
	pool, err := h.connect(ctx, req)
	if err != nil {
		return migration.StatusFailure(err), err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, req.Connection.Timeout())
	defer cancel()

	set, applied, err := h.appliedSet(ctx, pool)
	if err != nil {
		return migration.StatusFailure(err), err
	}

	entries, err := scriptdir.List(req.MigrationsDirectory, scriptExt)
	if err != nil {
		wrapped := migration.NewPermanentError(h.Type(), "get_status", err)
		return migration.StatusFailure(wrapped), wrapped
	}

	status := migration.Status{
		ProviderName:      h.Type(),
		AppliedMigrations: applied,
	}
	for _, e := range scriptdir.Pending(entries, set) {
		status.PendingMigrations = append(status.PendingMigrations, e.Info())
	}
	status.PendingMigrationsCount = len(status.PendingMigrations)
	status.HasPendingMigrations = status.PendingMigrationsCount > 0
	if n := len(applied); n > 0 {
		status.LastMigrationDate = applied[n-1].AppliedOn
		status.LastMigrationName = applied[n-1].Name
	}

	_ = pool.QueryRow(ctx, "SELECT current_database()").Scan(&status.DatabaseName)
	_ = pool.QueryRow(ctx, "SELECT version()").Scan(&status.DatabaseVersion)

	return status, nil
}

// Migrate applies all pending migrations in ascending id order. Under a
// transaction the whole batch commits or nothing does; without one the
// prefix that committed before a failure is reported.
func (h *Handler) Migrate(ctx context.Context, req migration.Request) (migration.Result, error) {
	pool, err := h.connect(ctx, req)
	if err != nil {
		return migration.Failure(err), err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, req.Connection.Timeout())
	defer cancel()

	if _, err := pool.Exec(ctx, historyTableDDL); err != nil {
		wrapped := migration.NewTransientError(h.Type(), "migrate",
			fmt.Errorf("error ensuring history table: %w", err))
		return migration.Failure(wrapped), wrapped
	}

	set, _, err := h.appliedSet(ctx, pool)
	if err != nil {
		return migration.Failure(err), err
	}

	entries, err := scriptdir.List(req.MigrationsDirectory, scriptExt)
	if err != nil {
		wrapped := migration.NewPermanentError(h.Type(), "migrate", err)
		return migration.Failure(wrapped), wrapped
	}
	pending := scriptdir.Pending(entries, set)
	if len(pending) == 0 {
		return migration.Result{Success: true}, nil
	}

	if req.Connection.UseTransaction {
		return h.migrateInTransaction(ctx, pool, pending)
	}
	return h.migrateSequential(ctx, pool, pending)
}

func (h *Handler) migrateInTransaction(ctx context.Context, pool *pgxpool.Pool, pending []scriptdir.Entry) (migration.Result, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		wrapped := migration.NewTransientError(h.Type(), "migrate", err)
		return migration.Failure(wrapped), wrapped
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var applied []migration.Info
	for _, e := range pending {
		info, err := h.applyOne(ctx, tx, e)
		if err != nil {
			// Transactional DDL: the rollback undoes everything, so the
			// applied list stays empty.
			result := migration.Failure(err)
			return result, err
		}
		applied = append(applied, info)
	}

	if err := tx.Commit(ctx); err != nil {
		wrapped := migration.NewTransientError(h.Type(), "migrate", err)
		return migration.Failure(wrapped), wrapped
	}
	return migration.Result{Success: true, AppliedMigrations: applied}, nil
}

func (h *Handler) migrateSequential(ctx context.Context, pool *pgxpool.Pool, pending []scriptdir.Entry) (migration.Result, error) {
	var applied []migration.Info
	for _, e := range pending {
		tx, err := pool.Begin(ctx)
		if err != nil {
			wrapped := migration.NewTransientError(h.Type(), "migrate", err)
			result := migration.Failure(wrapped)
			result.AppliedMigrations = applied
			return result, wrapped
		}

		info, err := h.applyOne(ctx, tx, e)
		if err != nil {
			_ = tx.Rollback(ctx)
			result := migration.Failure(err)
			result.AppliedMigrations = applied
			return result, err
		}
		if err := tx.Commit(ctx); err != nil {
			wrapped := migration.NewTransientError(h.Type(), "migrate", err)
			result := migration.Failure(wrapped)
			result.AppliedMigrations = applied
			return result, wrapped
		}
		applied = append(applied, info)
	}
	return migration.Result{Success: true, AppliedMigrations: applied}, nil
}

func (h *Handler) applyOne(ctx context.Context, tx pgx.Tx, e scriptdir.Entry) (migration.Info, error) {
	//nolint:gosec // script paths come from the configured migrations directory
	script, err := os.ReadFile(e.Path)
	if err != nil {
		return migration.Info{}, migration.NewPermanentError(h.Type(), "migrate",
			fmt.Errorf("error reading script %s: %w", e.Path, err))
	}

	if _, err := tx.Exec(ctx, string(script)); err != nil {
		return migration.Info{}, migration.NewPermanentError(h.Type(), "migrate",
			fmt.Errorf("migration %s_%s failed: %w", e.ID, e.Name, err))
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (id, name) VALUES ($1, $2)", e.ID, e.Name); err != nil {
		return migration.Info{}, migration.NewPermanentError(h.Type(), "migrate",
			fmt.Errorf("error recording migration %s: %w", e.ID, err))
	}

	now := time.Now().UTC()
	return migration.Info{ID: e.ID, Name: e.Name, AppliedOn: &now, Script: e.Path}, nil
}

// GenerateScripts concatenates the pending scripts into one file without
// applying anything.
func (h *Handler) GenerateScripts(ctx context.Context, req migration.Request) (migration.Result, error) {
	status, err := h.GetStatus(ctx, req)
	if err != nil {
		return migration.Failure(err), err
	}

	if err := os.MkdirAll(req.OutputDirectory, 0o750); err != nil {
		wrapped := migration.NewPermanentError(h.Type(), "generate_scripts", err)
		return migration.Failure(wrapped), wrapped
	}

	var combined strings.Builder
	fmt.Fprintf(&combined, "-- Pending migrations for %s, generated %s\n",
		h.Type(), time.Now().UTC().Format(time.RFC3339))
	for _, info := range status.PendingMigrations {
		//nolint:gosec // script paths come from the configured migrations directory
		script, err := os.ReadFile(info.Script)
		if err != nil {
			wrapped := migration.NewPermanentError(h.Type(), "generate_scripts",
				fmt.Errorf("error reading script %s: %w", info.Script, err))
			return migration.Failure(wrapped), wrapped
		}
		fmt.Fprintf(&combined, "\n-- %s_%s\n%s\n", info.ID, info.Name, strings.TrimRight(string(script), "\n"))
	}

	outPath := filepath.Join(req.OutputDirectory,
		fmt.Sprintf("migration_scripts_%s.sql", time.Now().UTC().Format("20060102150405")))
	if err := os.WriteFile(outPath, []byte(combined.String()), 0o600); err != nil {
		wrapped := migration.NewPermanentError(h.Type(), "generate_scripts", err)
		return migration.Failure(wrapped), wrapped
	}

	return migration.Result{
		Success:     true,
		ScriptsPath: outPath,
		AdditionalInfo: map[string]string{
			"pending_count": fmt.Sprintf("%d", status.PendingMigrationsCount),
		},
	}, nil
}

// TestConnection is a connectivity probe with no side effects.
func (h *Handler) TestConnection(ctx context.Context, req migration.Request) error {
	pool, err := h.connect(ctx, req)
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}
