package migration

import (
	"context"
	"errors"

	"github.com/schemamesh/migrator/pkg/providertypes"
)

// ErrScriptsUnsupported is returned by providers that cannot emit script
// files.
var ErrScriptsUnsupported = errors.New("script generation not supported by this provider")

// UnsupportedScripter is a nil object pattern for providers that cannot emit
// script files. Embed it in a handler to decline GenerateScripts uniformly.
type UnsupportedScripter struct {
	Provider providertypes.ProviderType
}

// GenerateScripts reports that script generation is unsupported.
func (u UnsupportedScripter) GenerateScripts(ctx context.Context, req Request) (Result, error) {
	err := NewPermanentError(u.Provider, "generate_scripts", ErrScriptsUnsupported)
	return Failure(err), err
}
