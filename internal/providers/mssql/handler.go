// Package mssql implements the migration contract for Microsoft SQL Server.
// SQL Server supports transactional DDL, so a batch run under a transaction
// rolls back completely on failure. Scripts may use GO batch separators;
// these are split client side.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/schemamesh/migrator/internal/providers/scriptdir"
	"github.com/schemamesh/migrator/pkg/migration"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

const (
	scriptExt = ".sql"

	historyTableDDL = `IF OBJECT_ID('dbo.schema_migrations', 'U') IS NULL
CREATE TABLE dbo.schema_migrations (
	id         NVARCHAR(14) PRIMARY KEY,
	name       NVARCHAR(255) NOT NULL,
	applied_on DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME()
)`
)

// Handler implements migration.Handler for SQL Server.
type Handler struct {
	ids *migration.IDAllocator
}

// New creates a SQL Server migration handler.
func New() *Handler {
	return &Handler{ids: migration.NewIDAllocator()}
}

func (h *Handler) Type() providertypes.ProviderType {
	return providertypes.SQLServer
}

func (h *Handler) Capabilities() providertypes.Capability {
	return providertypes.MustGet(providertypes.SQLServer)
}

// driverURL rewrites the canonical mssql:// scheme to the sqlserver://
// scheme the driver expects.
func driverURL(raw string) string {
	if rest, ok := strings.CutPrefix(raw, "mssql://"); ok {
		return "sqlserver://" + rest
	}
	return raw
}

func (h *Handler) connect(ctx context.Context, req migration.Request) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", driverURL(req.Connection.ConnectionString))
	if err != nil {
		return nil, migration.NewPermanentError(h.Type(), "connect",
			fmt.Errorf("error opening connection: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, req.Connection.Timeout())
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, migration.NewTransientError(h.Type(), "connect",
			fmt.Errorf("error pinging database: %w", err))
	}
	return db, nil
}

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

func (h *Handler) appliedSet(ctx context.Context, db *sql.DB) (map[string]bool, []migration.Info, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sys.objects WHERE object_id = OBJECT_ID('dbo.schema_migrations') AND type = 'U'").Scan(&exists)
	if err != nil {
		return nil, nil, migration.NewTransientError(h.Type(), "get_status",
			fmt.Errorf("error checking history table: %w", err))
	}
	if exists == 0 {
		return map[string]bool{}, nil, nil
	}

	rows, err := db.QueryContext(ctx, "SELECT id, name, applied_on FROM dbo.schema_migrations ORDER BY id")
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

func (h *Handler) GetStatus(ctx context.Context, req migration.Request) (migration.Status, error) {
	db, err := h.connect(ctx, req)
	if err != nil {
		return migration.StatusFailure(err), err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, req.Connection.Timeout())
	defer cancel()

	set, applied, err := h.appliedSet(ctx, db)
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

	_ = db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&status.DatabaseName)
	_ = db.QueryRowContext(ctx, "SELECT @@VERSION").Scan(&status.DatabaseVersion)

	return status, nil
}

func (h *Handler) Migrate(ctx context.Context, req migration.Request) (migration.Result, error) {
	db, err := h.connect(ctx, req)
	if err != nil {
		return migration.Failure(err), err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, req.Connection.Timeout())
	defer cancel()

	if _, err := db.ExecContext(ctx, historyTableDDL); err != nil {
		wrapped := migration.NewTransientError(h.Type(), "migrate",
			fmt.Errorf("error ensuring history table: %w", err))
		return migration.Failure(wrapped), wrapped
	}

	set, _, err := h.appliedSet(ctx, db)
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
		return h.migrateInTransaction(ctx, db, pending)
	}
	return h.migrateSequential(ctx, db, pending)
}

func (h *Handler) migrateInTransaction(ctx context.Context, db *sql.DB, pending []scriptdir.Entry) (migration.Result, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		wrapped := migration.NewTransientError(h.Type(), "migrate", err)
		return migration.Failure(wrapped), wrapped
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var applied []migration.Info
	for _, e := range pending {
		info, err := h.applyOne(ctx, tx, e)
		if err != nil {
			// Transactional DDL: rollback undoes everything applied so far.
			return migration.Failure(err), err
		}
		applied = append(applied, info)
	}

	if err := tx.Commit(); err != nil {
		wrapped := migration.NewTransientError(h.Type(), "migrate", err)
		return migration.Failure(wrapped), wrapped
	}
	return migration.Result{Success: true, AppliedMigrations: applied}, nil
}

func (h *Handler) migrateSequential(ctx context.Context, db *sql.DB, pending []scriptdir.Entry) (migration.Result, error) {
	var applied []migration.Info
	for _, e := range pending {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			wrapped := migration.NewTransientError(h.Type(), "migrate", err)
			result := migration.Failure(wrapped)
			result.AppliedMigrations = applied
			return result, wrapped
		}

		info, err := h.applyOne(ctx, tx, e)
		if err != nil {
			_ = tx.Rollback()
			result := migration.Failure(err)
			result.AppliedMigrations = applied
			return result, err
		}
		if err := tx.Commit(); err != nil {
			wrapped := migration.NewTransientError(h.Type(), "migrate", err)
			result := migration.Failure(wrapped)
			result.AppliedMigrations = applied
			return result, wrapped
		}
		applied = append(applied, info)
	}
	return migration.Result{Success: true, AppliedMigrations: applied}, nil
}

func (h *Handler) applyOne(ctx context.Context, tx *sql.Tx, e scriptdir.Entry) (migration.Info, error) {
	//nolint:gosec // script paths come from the configured migrations directory
	script, err := os.ReadFile(e.Path)
	if err != nil {
		return migration.Info{}, migration.NewPermanentError(h.Type(), "migrate",
			fmt.Errorf("error reading script %s: %w", e.Path, err))
	}

	for _, batch := range splitBatches(string(script)) {
		if _, err := tx.ExecContext(ctx, batch); err != nil {
			return migration.Info{}, migration.NewPermanentError(h.Type(), "migrate",
				fmt.Errorf("migration %s_%s failed: %w", e.ID, e.Name, err))
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO dbo.schema_migrations (id, name) VALUES (@p1, @p2)", e.ID, e.Name); err != nil {
		return migration.Info{}, migration.NewPermanentError(h.Type(), "migrate",
			fmt.Errorf("error recording migration %s: %w", e.ID, err))
	}

	now := time.Now().UTC()
	return migration.Info{ID: e.ID, Name: e.Name, AppliedOn: &now, Script: e.Path}, nil
}

// splitBatches breaks a script on GO separator lines.
func splitBatches(script string) []string {
	var batches []string
	var current strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.EqualFold(strings.TrimSpace(line), "GO") {
			if batch := strings.TrimSpace(current.String()); batch != "" {
				batches = append(batches, batch)
			}
			current.Reset()
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if batch := strings.TrimSpace(current.String()); batch != "" {
		batches = append(batches, batch)
	}
	return batches
}

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
		fmt.Fprintf(&combined, "\n-- %s_%s\n%s\nGO\n", info.ID, info.Name, strings.TrimRight(string(script), "\n"))
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

func (h *Handler) TestConnection(ctx context.Context, req migration.Request) error {
	db, err := h.connect(ctx, req)
	if err != nil {
		return err
	}
	return db.Close()
}
