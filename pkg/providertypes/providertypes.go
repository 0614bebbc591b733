package providertypes

import "strings"

// ProviderType is the canonical identifier for a database backend family
// supported by the migrator. Use these constants for registry lookups.
type ProviderType string

const (
	PostgreSQL ProviderType = "postgres"
	MySQL      ProviderType = "mysql"
	SQLServer  ProviderType = "mssql"
	MongoDB    ProviderType = "mongodb"
)

// Capability describes what a backend family supports so the orchestrator and
// provider handlers can make decisions from uniform metadata.
type Capability struct {
	// Human-friendly vendor or product name, e.g., "PostgreSQL".
	Name string `json:"name"`

	// Canonical ID used across the codebase, e.g., "postgres".
	ID ProviderType `json:"id"`

	// Default network port for the backend.
	DefaultPort int `json:"defaultPort"`

	// Whether the backend exposes a built-in/system database and its name.
	HasSystemDatabase bool   `json:"hasSystemDatabase"`
	SystemDatabase    string `json:"systemDatabase,omitempty"`

	// Whether the backend can emit SQL script files for pending migrations.
	SupportsScriptGeneration bool `json:"supportsScriptGeneration"`

	// TransactionalDDL reports whether schema changes participate in
	// transactions. When true, a failed migration batch applies nothing and
	// the result's applied list is empty; when false, the prefix that
	// committed before the failure is reported.
	TransactionalDDL bool `json:"transactionalDDL"`

	// Common aliases (driver names, env labels) that map to this provider.
	Aliases []string `json:"aliases,omitempty"`
}

// All is a registry of capabilities keyed by the canonical provider ID.
var All = map[ProviderType]Capability{
	PostgreSQL: {
		Name:                     "PostgreSQL",
		ID:                       PostgreSQL,
		DefaultPort:              5432,
		HasSystemDatabase:        true,
		SystemDatabase:           "postgres",
		SupportsScriptGeneration: true,
		TransactionalDDL:         true,
		Aliases:                  []string{"postgresql", "pgsql", "npgsql"},
	},
	MySQL: {
		Name:                     "MySQL",
		ID:                       MySQL,
		DefaultPort:              3306,
		HasSystemDatabase:        true,
		SystemDatabase:           "mysql",
		SupportsScriptGeneration: true,
		TransactionalDDL:         false,
		Aliases:                  []string{"mariadb", "aurora-mysql"},
	},
	SQLServer: {
		Name:                     "Microsoft SQL Server",
		ID:                       SQLServer,
		DefaultPort:              1433,
		HasSystemDatabase:        true,
		SystemDatabase:           "master",
		SupportsScriptGeneration: true,
		TransactionalDDL:         true,
		Aliases:                  []string{"sqlserver", "azure-sql"},
	},
	MongoDB: {
		Name:                     "MongoDB",
		ID:                       MongoDB,
		DefaultPort:              27017,
		HasSystemDatabase:        true,
		SystemDatabase:           "admin",
		SupportsScriptGeneration: false,
		TransactionalDDL:         false,
		Aliases:                  []string{"mongo"},
	},
}

// nameToID is a normalized lookup index from any known name/alias to the
// canonical ProviderType.
var nameToID map[string]ProviderType

func init() {
	nameToID = make(map[string]ProviderType, len(All)*3)
	for id, cap := range All {
		nameToID[strings.ToLower(string(id))] = id
		if cap.Name != "" {
			nameToID[strings.ToLower(cap.Name)] = id
		}
		for _, a := range cap.Aliases {
			if a == "" {
				continue
			}
			nameToID[strings.ToLower(a)] = id
		}
	}
}

// ParseID attempts to resolve an arbitrary provider name (canonical id, alias,
// or product name) to a canonical ProviderType. Returns false if unknown.
// Unknown names are rejected, never silently mapped.
func ParseID(name string) (ProviderType, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	id, ok := nameToID[n]
	return id, ok
}

// Get returns capabilities for the given ID and a boolean indicating existence.
func Get(id ProviderType) (Capability, bool) {
	c, ok := All[id]
	return c, ok
}

// GetByName returns the Capability by looking up using a free-form name.
func GetByName(name string) (Capability, bool) {
	if id, ok := ParseID(name); ok {
		return Get(id)
	}
	return Capability{}, false
}

// MustGet returns capabilities for the given ID and panics if not found.
func MustGet(id ProviderType) Capability {
	c, ok := Get(id)
	if !ok {
		panic("providertypes: unknown provider id: " + string(id))
	}
	return c
}

// IDs returns the list of all known provider IDs.
func IDs() []ProviderType {
	out := make([]ProviderType, 0, len(All))
	for id := range All {
		out = append(out, id)
	}
	return out
}

// SupportsScripts reports whether the provider can emit script files for
// pending migrations.
func SupportsScripts(id ProviderType) bool {
	c, ok := Get(id)
	return ok && c.SupportsScriptGeneration
}

// TransactionalDDL reports whether the provider applies schema changes
// transactionally.
func TransactionalDDL(id ProviderType) bool {
	c, ok := Get(id)
	return ok && c.TransactionalDDL
}
