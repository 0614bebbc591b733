package mssql

import (
	"github.com/schemamesh/migrator/internal/registry"
	"github.com/schemamesh/migrator/pkg/migration"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

func init() {
	registry.RegisterFactory(providertypes.SQLServer, func() migration.Handler {
		return New()
	})
}
