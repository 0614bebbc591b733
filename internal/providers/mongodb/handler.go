// Package mongodb implements the migration contract for MongoDB. Migration
// scripts are extended-JSON database command documents applied with
// RunCommand, one command per script. MongoDB has no transactional DDL, so
// a failed run reports the prefix of migrations that completed.
//
// Combined SQL script generation does not apply to command documents; the
// handler declines GenerateScripts.
package mongodb

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/schemamesh/migrator/internal/providers/scriptdir"
	"github.com/schemamesh/migrator/pkg/connstring"
	"github.com/schemamesh/migrator/pkg/migration"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

const (
	scriptExt         = ".json"
	historyCollection = "schema_migrations"
)

// Handler implements migration.Handler for MongoDB.
type Handler struct {
	migration.UnsupportedScripter

	ids *migration.IDAllocator
}

// New creates a MongoDB migration handler.
func New() *Handler {
	return &Handler{
		UnsupportedScripter: migration.UnsupportedScripter{Provider: providertypes.MongoDB},
		ids:                 migration.NewIDAllocator(),
	}
}

func (h *Handler) Type() providertypes.ProviderType {
	return providertypes.MongoDB
}

func (h *Handler) Capabilities() providertypes.Capability {
	return providertypes.MustGet(providertypes.MongoDB)
}

// historyRecord is the document shape stored in the history collection.
type historyRecord struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	AppliedOn time.Time `bson:"applied_on"`
}

func (h *Handler) connect(ctx context.Context, req migration.Request) (*mongo.Client, string, error) {
	details, err := connstring.Parse(req.Connection.ConnectionString)
	if err != nil {
		return nil, "", migration.NewPermanentError(h.Type(), "connect", err)
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(req.Connection.ConnectionString).
		SetConnectTimeout(req.Connection.Timeout()))
	if err != nil {
		return nil, "", migration.NewPermanentError(h.Type(), "connect",
			fmt.Errorf("error creating client: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, req.Connection.Timeout())
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, "", migration.NewTransientError(h.Type(), "connect",
			fmt.Errorf("error pinging database: %w", err))
	}
	return client, details.DatabaseName, nil
}

func (h *Handler) CreateMigration(ctx context.Context, req migration.Request) (migration.Result, error) {
	if req.MigrationName == "" {
		err := migration.NewPermanentError(h.Type(), "create_migration",
			fmt.Errorf("migration name is required"))
		return migration.Failure(err), err
	}

	id := h.ids.Next()
	template := fmt.Sprintf(`{
  "_comment": "Migration: %s, created %s. Replace with a database command document.",
  "ping": 1
}
`, req.MigrationName, time.Now().UTC().Format(time.RFC3339))

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

func (h *Handler) appliedSet(ctx context.Context, db *mongo.Database) (map[string]bool, []migration.Info, error) {
	cursor, err := db.Collection(historyCollection).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, nil, migration.NewTransientError(h.Type(), "get_status",
			fmt.Errorf("error reading history collection: %w", err))
	}
	defer cursor.Close(ctx)

	set := make(map[string]bool)
	var applied []migration.Info
	for cursor.Next(ctx) {
		var rec historyRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, nil, migration.NewPermanentError(h.Type(), "get_status",
				fmt.Errorf("error decoding history document: %w", err))
		}
		appliedOn := rec.AppliedOn
		set[rec.ID] = true
		applied = append(applied, migration.Info{ID: rec.ID, Name: rec.Name, AppliedOn: &appliedOn})
	}
	if err := cursor.Err(); err != nil {
		return nil, nil, migration.NewTransientError(h.Type(), "get_status", err)
	}
	return set, applied, nil
}

func (h *Handler) GetStatus(ctx context.Context, req migration.Request) (migration.Status, error) {
	client, dbName, err := h.connect(ctx, req)
	if err != nil {
		return migration.StatusFailure(err), err
	}
	defer client.Disconnect(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, req.Connection.Timeout())
	defer cancel()
	db := client.Database(dbName)

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
		DatabaseName:      dbName,
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

	var build struct {
		Version string `bson:"version"`
	}
	if err := db.RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&build); err == nil {
		status.DatabaseVersion = build.Version
	}

	return status, nil
}

func (h *Handler) Migrate(ctx context.Context, req migration.Request) (migration.Result, error) {
	client, dbName, err := h.connect(ctx, req)
	if err != nil {
		return migration.Failure(err), err
	}
	defer client.Disconnect(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, req.Connection.Timeout())
	defer cancel()
	db := client.Database(dbName)

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
		cmd, err := readCommand(e.Path)
		if err != nil {
			wrapped := migration.NewPermanentError(h.Type(), "migrate", err)
			result := migration.Failure(wrapped)
			result.AppliedMigrations = applied
			return result, wrapped
		}

		if err := db.RunCommand(ctx, cmd).Err(); err != nil {
			wrapped := migration.NewPermanentError(h.Type(), "migrate",
				fmt.Errorf("migration %s_%s failed: %w", e.ID, e.Name, err))
			result := migration.Failure(wrapped)
			result.AppliedMigrations = applied
			return result, wrapped
		}

		now := time.Now().UTC()
		rec := historyRecord{ID: e.ID, Name: e.Name, AppliedOn: now}
		if _, err := db.Collection(historyCollection).InsertOne(ctx, rec); err != nil {
			wrapped := migration.NewPermanentError(h.Type(), "migrate",
				fmt.Errorf("error recording migration %s: %w", e.ID, err))
			result := migration.Failure(wrapped)
			result.AppliedMigrations = applied
			return result, wrapped
		}
		applied = append(applied, migration.Info{ID: e.ID, Name: e.Name, AppliedOn: &now, Script: e.Path})
	}

	return migration.Result{Success: true, AppliedMigrations: applied}, nil
}

// readCommand loads a script file as an extended JSON command document.
// Keys starting with an underscore are stripped so scripts can carry
// comment fields.
func readCommand(path string) (bson.D, error) {
	//nolint:gosec // script paths come from the configured migrations directory
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading script %s: %w", path, err)
	}

	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("error parsing script %s: %w", path, err)
	}

	cmd := make(bson.D, 0, len(doc))
	for _, elem := range doc {
		if len(elem.Key) > 0 && elem.Key[0] == '_' {
			continue
		}
		cmd = append(cmd, elem)
	}
	if len(cmd) == 0 {
		return nil, fmt.Errorf("script %s contains no command", path)
	}
	return cmd, nil
}

func (h *Handler) TestConnection(ctx context.Context, req migration.Request) error {
	client, _, err := h.connect(ctx, req)
	if err != nil {
		return err
	}
	return client.Disconnect(context.Background())
}
