// Package providertypes provides a shared registry describing the database
// backend families the migrator supports. Other packages import it to
// normalize free-form provider names and to make decisions from uniform
// metadata (default ports, system databases, transactional DDL).
//
// Minimal usage example:
//
//	import "github.com/schemamesh/migrator/pkg/providertypes"
//
//	func canScript(name string) bool {
//	    id, ok := providertypes.ParseID(name)
//	    return ok && providertypes.SupportsScripts(id)
//	}
//
// Provider names are case-insensitive and known synonyms resolve to one
// canonical spelling, so "SqlServer", "MSSQL" and "azure-sql" all map to
// providertypes.SQLServer. Unknown names are rejected rather than mapped to a
// guess.
package providertypes
