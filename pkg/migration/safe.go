package migration

import (
	"context"
	"fmt"

	"github.com/schemamesh/migrator/pkg/providertypes"
)

// SafeHandler wraps a Handler so that a panic inside any operation is
// recovered at the plugin boundary and converted into a structured failure.
// Plugin faults must never propagate as uncaught faults into the
// orchestrator.
type SafeHandler struct {
	inner Handler
}

// Safe wraps a handler with the boundary guard. Wrapping an already-wrapped
// handler is a no-op.
func Safe(h Handler) Handler {
	if h == nil {
		return nil
	}
	if _, ok := h.(*SafeHandler); ok {
		return h
	}
	return &SafeHandler{inner: h}
}

// Type returns the wrapped handler's provider type.
func (s *SafeHandler) Type() providertypes.ProviderType {
	return s.inner.Type()
}

// Capabilities returns the wrapped handler's capabilities.
func (s *SafeHandler) Capabilities() providertypes.Capability {
	return s.inner.Capabilities()
}

// CreateMigration invokes the wrapped handler, recovering panics.
func (s *SafeHandler) CreateMigration(ctx context.Context, req Request) (result Result, err error) {
	defer s.recoverTo("create_migration", &result, &err)
	return s.inner.CreateMigration(ctx, req)
}

// Migrate invokes the wrapped handler, recovering panics.
func (s *SafeHandler) Migrate(ctx context.Context, req Request) (result Result, err error) {
	defer s.recoverTo("migrate", &result, &err)
	return s.inner.Migrate(ctx, req)
}

// GetStatus invokes the wrapped handler, recovering panics.
func (s *SafeHandler) GetStatus(ctx context.Context, req Request) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPermanentError(s.inner.Type(), "get_status", fmt.Errorf("panic in plugin: %v", r))
			status = StatusFailure(err)
		}
	}()
	return s.inner.GetStatus(ctx, req)
}

// GenerateScripts invokes the wrapped handler, recovering panics.
func (s *SafeHandler) GenerateScripts(ctx context.Context, req Request) (result Result, err error) {
	defer s.recoverTo("generate_scripts", &result, &err)
	return s.inner.GenerateScripts(ctx, req)
}

// TestConnection invokes the wrapped handler, recovering panics.
func (s *SafeHandler) TestConnection(ctx context.Context, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPermanentError(s.inner.Type(), "test_connection", fmt.Errorf("panic in plugin: %v", r))
		}
	}()
	return s.inner.TestConnection(ctx, req)
}

func (s *SafeHandler) recoverTo(operation string, result *Result, err *error) {
	if r := recover(); r != nil {
		*err = NewPermanentError(s.inner.Type(), operation, fmt.Errorf("panic in plugin: %v", r))
		*result = Failure(*err)
	}
}
