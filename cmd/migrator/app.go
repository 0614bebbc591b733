package main

import (
	"fmt"
	"path/filepath"

	"github.com/schemamesh/migrator/internal/config"
	"github.com/schemamesh/migrator/internal/orchestrator"
	"github.com/schemamesh/migrator/internal/registry"
	"github.com/schemamesh/migrator/internal/resolver"
	"github.com/schemamesh/migrator/internal/session"
	"github.com/schemamesh/migrator/pkg/logger"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

// app holds the wired components a command needs. It is built once per
// invocation by bootstrap and torn down by shutdown.
type app struct {
	cfg         *config.Config
	log         *logger.Logger
	orch        *orchestrator.Orchestrator
	sessionPath string
}

// bootstrap loads the registry and session and wires the orchestrator.
// Plugin load warnings are surfaced here so a broken plugin is visible on
// every command without stopping any of them.
func bootstrap() (*app, error) {
	cfg := config.GetConfig()

	log := logger.New("migrator")
	log.SetVerbose(verbose)

	reg := registry.New(log)
	if err := reg.Load(cfg.PluginDir); err != nil {
		return nil, fmt.Errorf("error loading plugin registry: %w", err)
	}
	for _, warning := range reg.Warnings() {
		log.Warnf("plugin skipped: %v", warning)
	}

	provider, ok := providertypes.ParseID(cfg.DefaultProvider)
	if !ok {
		return nil, fmt.Errorf("invalid default provider %q", cfg.DefaultProvider)
	}

	sessionPath := filepath.Join(filepath.Dir(cfg.PluginDir), "session.yaml")
	sess, err := session.Restore(sessionPath, cfg.Environment, cfg.DefaultTenant, provider, cfg.AutoBackup)
	if err != nil {
		return nil, fmt.Errorf("error restoring session: %w", err)
	}

	res := resolver.New(cfg, log)
	orch := orchestrator.New(cfg, reg, res, sess, log)

	return &app{cfg: cfg, log: log, orch: orch, sessionPath: sessionPath}, nil
}

// shutdown persists the session. Best effort; a failed save is reported but
// never fails the command that did the real work.
func (a *app) shutdown() {
	if err := a.orch.Session().Save(a.sessionPath); err != nil {
		a.log.Warnf("error saving session: %v", err)
	}
}
