package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemamesh/migrator/pkg/migration"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

// stubHandler is a minimal handler for registry wiring tests.
type stubHandler struct {
	provider providertypes.ProviderType
}

func (s *stubHandler) Type() providertypes.ProviderType { return s.provider }
func (s *stubHandler) Capabilities() providertypes.Capability {
	return providertypes.MustGet(s.provider)
}
func (s *stubHandler) CreateMigration(ctx context.Context, req migration.Request) (migration.Result, error) {
	return migration.Result{Success: true}, nil
}
func (s *stubHandler) Migrate(ctx context.Context, req migration.Request) (migration.Result, error) {
	return migration.Result{Success: true}, nil
}
func (s *stubHandler) GetStatus(ctx context.Context, req migration.Request) (migration.Status, error) {
	return migration.Status{ProviderName: s.provider}, nil
}
func (s *stubHandler) GenerateScripts(ctx context.Context, req migration.Request) (migration.Result, error) {
	return migration.Result{Success: true}, nil
}
func (s *stubHandler) TestConnection(ctx context.Context, req migration.Request) error {
	return nil
}

func registerStubs(t *testing.T) {
	t.Helper()
	for _, p := range []providertypes.ProviderType{
		providertypes.PostgreSQL,
		providertypes.MySQL,
		providertypes.SQLServer,
		providertypes.MongoDB,
	} {
		provider := p
		RegisterFactory(provider, func() migration.Handler {
			return &stubHandler{provider: provider}
		})
	}
}

func writeManifest(t *testing.T, dir, filename, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o600))
}

func TestLoadRegistersPlugins(t *testing.T) {
	registerStubs(t)
	dir := t.TempDir()

	writeManifest(t, dir, "postgres.plugin.yaml", `
name: postgres-migrations
provider: postgres
version: 1.2.0
description: PostgreSQL migration plugin
default: true
`)
	writeManifest(t, dir, "mysql.plugin.yaml", `
name: mysql-migrations
provider: mysql
version: 1.0.0
default: true
`)

	r := New(nil)
	require.NoError(t, r.Load(dir))
	assert.Empty(t, r.Warnings())

	desc, err := r.Lookup(providertypes.PostgreSQL, "")
	require.NoError(t, err)
	assert.Equal(t, "postgres-migrations", desc.Name)
	assert.Equal(t, "1.2.0", desc.Version)
	assert.True(t, desc.Default)

	assert.Equal(t,
		[]providertypes.ProviderType{providertypes.MySQL, providertypes.PostgreSQL},
		r.Providers())
}

func TestLoadAcceptsProviderAliases(t *testing.T) {
	registerStubs(t)
	dir := t.TempDir()

	// An alias in the manifest normalizes to the canonical provider type.
	writeManifest(t, dir, "sqlserver.plugin.yaml", `
name: sqlserver-migrations
provider: SqlServer
version: 2.0.0
default: true
`)

	r := New(nil)
	require.NoError(t, r.Load(dir))

	desc, err := r.Lookup(providertypes.SQLServer, "")
	require.NoError(t, err)
	assert.Equal(t, providertypes.SQLServer, desc.Provider)

	// Lookup by another alias of the same provider resolves too.
	desc, err = r.LookupByName("mssql")
	require.NoError(t, err)
	assert.Equal(t, "sqlserver-migrations", desc.Name)
}

func TestOneBadManifestDoesNotBlockOthers(t *testing.T) {
	registerStubs(t)
	dir := t.TempDir()

	writeManifest(t, dir, "good.plugin.yaml", `
name: postgres-migrations
provider: postgres
version: 1.0.0
default: true
`)
	writeManifest(t, dir, "broken.plugin.yaml", `
name: BAD NAME
provider: postgres
version: not-a-version
`)
	writeManifest(t, dir, "unknown.plugin.yaml", `
name: oracle-migrations
provider: oracle
version: 1.0.0
`)

	r := New(nil)
	require.NoError(t, r.Load(dir))

	// The two broken plugins are warnings, not failures.
	assert.Len(t, r.Warnings(), 2)
	for _, w := range r.Warnings() {
		assert.True(t, errors.Is(w, migration.ErrPluginLoadFailure))
	}

	_, err := r.Lookup(providertypes.PostgreSQL, "")
	assert.NoError(t, err)
}

func TestDuplicateDefaultsFailLoudly(t *testing.T) {
	registerStubs(t)
	dir := t.TempDir()

	writeManifest(t, dir, "one.plugin.yaml", `
name: postgres-one
provider: postgres
version: 1.0.0
default: true
`)
	writeManifest(t, dir, "two.plugin.yaml", `
name: postgres-two
provider: postgres
version: 1.1.0
default: true
`)

	r := New(nil)
	err := r.Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default")
}

func TestLookupFailsClosedWithoutDefault(t *testing.T) {
	registerStubs(t)
	dir := t.TempDir()

	// One plugin, not marked default: lookup by empty name must refuse.
	writeManifest(t, dir, "one.plugin.yaml", `
name: postgres-one
provider: postgres
version: 1.0.0
`)

	r := New(nil)
	require.NoError(t, r.Load(dir))

	_, err := r.Lookup(providertypes.PostgreSQL, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, migration.ErrProviderNotFound))

	// Explicit name still resolves.
	desc, err := r.Lookup(providertypes.PostgreSQL, "postgres-one")
	require.NoError(t, err)
	assert.Equal(t, "postgres-one", desc.Name)
}

func TestLookupUnknownProvider(t *testing.T) {
	registerStubs(t)
	r := New(nil)
	require.NoError(t, r.Load(t.TempDir()))

	_, err := r.Lookup(providertypes.MongoDB, "")
	assert.True(t, errors.Is(err, migration.ErrProviderNotFound))

	_, err = r.LookupByName("oracle")
	assert.True(t, errors.Is(err, migration.ErrProviderNotFound))
}

func TestLoadCreatesMissingDirectory(t *testing.T) {
	registerStubs(t)
	dir := filepath.Join(t.TempDir(), "plugins")

	r := New(nil)
	require.NoError(t, r.Load(dir))
	assert.DirExists(t, dir)
	assert.Empty(t, r.Descriptors())
}

func TestHandlersAreWrappedForPanicSafety(t *testing.T) {
	registerStubs(t)
	dir := t.TempDir()
	writeManifest(t, dir, "postgres.plugin.yaml", `
name: postgres-migrations
provider: postgres
version: 1.0.0
default: true
`)

	r := New(nil)
	require.NoError(t, r.Load(dir))

	desc, err := r.Lookup(providertypes.PostgreSQL, "")
	require.NoError(t, err)
	_, ok := desc.Handler.(*migration.SafeHandler)
	assert.True(t, ok, "registry should wrap handlers at the plugin boundary")
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		ok       bool
	}{
		{"valid", Manifest{Name: "postgres-migrations", Provider: "postgres", Version: "1.0.0"}, true},
		{"valid v-prefix", Manifest{Name: "pg", Provider: "postgres", Version: "v1.0.0"}, true},
		{"missing name", Manifest{Provider: "postgres", Version: "1.0.0"}, false},
		{"uppercase name", Manifest{Name: "Postgres", Provider: "postgres", Version: "1.0.0"}, false},
		{"trailing hyphen", Manifest{Name: "pg-", Provider: "postgres", Version: "1.0.0"}, false},
		{"missing provider", Manifest{Name: "pg", Version: "1.0.0"}, false},
		{"bad version", Manifest{Name: "pg", Provider: "postgres", Version: "latest"}, false},
	}

	for _, test := range tests {
		err := test.manifest.Validate()
		if test.ok {
			assert.NoError(t, err, test.name)
		} else {
			assert.Error(t, err, test.name)
		}
	}
}
