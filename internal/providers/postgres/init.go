package postgres

import (
	"github.com/schemamesh/migrator/internal/registry"
	"github.com/schemamesh/migrator/pkg/migration"
	"github.com/schemamesh/migrator/pkg/providertypes"
)

func init() {
	registry.RegisterFactory(providertypes.PostgreSQL, func() migration.Handler {
		return New()
	})
}
