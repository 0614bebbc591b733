// Package mysql implements the migration contract for MySQL and MariaDB.
// MySQL DDL auto-commits, so a batch cannot be rolled back; a failed run
// reports the prefix of migrations that committed before the failure.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/schemamesh/migrator/internal/providers/scriptdir"
	"github.com/schemamesh/migrator/pkg/migration"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

const (
	scriptExt = ".sql"

	historyTableDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	id         VARCHAR(14) PRIMARY KEY,
	name       VARCHAR(255) NOT NULL,
	applied_on TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
)

// Handler implements migration.Handler for MySQL.
type Handler struct {
	ids *migration.IDAllocator
}

// New creates a MySQL migration handler.
func New() *Handler {
	return &Handler{ids: migration.NewIDAllocator()}
}

func (h *Handler) Type() providertypes.ProviderType {
	return providertypes.MySQL
}

func (h *Handler) Capabilities() providertypes.Capability {
	return providertypes.MustGet(providertypes.MySQL)
}

// dsnFromConnectionString accepts either a native go-sql-driver DSN or a
// mysql:// URL and returns a DSN the driver understands.
func dsnFromConnectionString(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("error parsing connection string: %w", err)
	}

	cfg := gomysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = fmt.Sprintf("%s:%d", u.Hostname(), providertypes.MustGet(providertypes.MySQL).DefaultPort)
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	if u.User != nil {
		cfg.User = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			cfg.Passwd = pass
		}
	}
	params := u.Query()
	for key := range params {
		if cfg.Params == nil {
			cfg.Params = make(map[string]string)
		}
		cfg.Params[key] = params.Get(key)
	}
	return cfg.FormatDSN(), nil
}

func (h *Handler) connect(ctx context.Context, req migration.Request) (*sql.DB, error) {
	dsn, err := dsnFromConnectionString(req.Connection.ConnectionString)
	if err != nil {
		return nil, migration.NewPermanentError(h.Type(), "connect", err)
	}

	db, err := sql.Open("mysql", dsn)
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
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'schema_migrations'").Scan(&exists)
	if err != nil {
		return nil, nil, migration.NewTransientError(h.Type(), "get_status",
			fmt.Errorf("error checking history table: %w", err))
	}
	if exists == 0 {
		return map[string]bool{}, nil, nil
	}

	rows, err := db.QueryContext(ctx, "SELECT id, name, applied_on FROM schema_migrations ORDER BY id")
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

	_ = db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&status.DatabaseName)
	_ = db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&status.DatabaseVersion)

	return status, nil
}

// Migrate applies pending migrations one at a time. DDL statements commit
// implicitly, so each successful script is recorded immediately and the
// committed prefix survives a later failure.
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

	var applied []migration.Info
	for _, e := range scriptdir.Pending(entries, set) {
		//nolint:gosec // script paths come from the configured migrations directory
		script, err := os.ReadFile(e.Path)
		if err != nil {
			wrapped := migration.NewPermanentError(h.Type(), "migrate",
				fmt.Errorf("error reading script %s: %w", e.Path, err))
			result := migration.Failure(wrapped)
			result.AppliedMigrations = applied
			return result, wrapped
		}

		for _, stmt := range splitStatements(string(script)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				wrapped := migration.NewPermanentError(h.Type(), "migrate",
					fmt.Errorf("migration %s_%s failed: %w", e.ID, e.Name, err))
				result := migration.Failure(wrapped)
				result.AppliedMigrations = applied
				return result, wrapped
			}
		}

		if _, err := db.ExecContext(ctx,
			"INSERT INTO schema_migrations (id, name) VALUES (?, ?)", e.ID, e.Name); err != nil {
			wrapped := migration.NewPermanentError(h.Type(), "migrate",
				fmt.Errorf("error recording migration %s: %w", e.ID, err))
			result := migration.Failure(wrapped)
			result.AppliedMigrations = applied
			return result, wrapped
		}

		now := time.Now().UTC()
		applied = append(applied, migration.Info{ID: e.ID, Name: e.Name, AppliedOn: &now, Script: e.Path})
	}

	return migration.Result{Success: true, AppliedMigrations: applied}, nil
}

// splitStatements breaks a script on semicolon line endings. The driver
// rejects multi-statement execs unless multiStatements is set, so scripts
// are split client side.
func splitStatements(script string) []string {
	var stmts []string
	var current strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, current.String())
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
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

func (h *Handler) TestConnection(ctx context.Context, req migration.Request) error {
	db, err := h.connect(ctx, req)
	if err != nil {
		return err
	}
	return db.Close()
}
