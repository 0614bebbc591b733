package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/schemamesh/migrator/pkg/providertypes"
)

// panickyHandler blows up on every operation.
type panickyHandler struct{}

func (panickyHandler) Type() providertypes.ProviderType { return providertypes.PostgreSQL }
func (panickyHandler) Capabilities() providertypes.Capability {
	return providertypes.MustGet(providertypes.PostgreSQL)
}
func (panickyHandler) CreateMigration(ctx context.Context, req Request) (Result, error) {
	panic("create boom")
}
func (panickyHandler) Migrate(ctx context.Context, req Request) (Result, error) {
	panic("migrate boom")
}
func (panickyHandler) GetStatus(ctx context.Context, req Request) (Status, error) {
	panic("status boom")
}
func (panickyHandler) GenerateScripts(ctx context.Context, req Request) (Result, error) {
	panic("scripts boom")
}
func (panickyHandler) TestConnection(ctx context.Context, req Request) error {
	panic("connection boom")
}

func TestSafeHandlerRecoversPanics(t *testing.T) {
	h := Safe(panickyHandler{})
	ctx := context.Background()
	req := Request{}

	result, err := h.Migrate(ctx, req)
	if err == nil {
		t.Fatal("Migrate should return an error after a panic")
	}
	if result.Success {
		t.Error("recovered result should not be a success")
	}
	if result.ErrorMessage == "" {
		t.Error("recovered result should carry an error message")
	}
	if !errors.Is(err, ErrPermanent) {
		t.Errorf("panic should classify as permanent, got %v", err)
	}

	status, err := h.GetStatus(ctx, req)
	if err == nil {
		t.Fatal("GetStatus should return an error after a panic")
	}
	if status.ErrorMessage == "" {
		t.Error("recovered status should carry an error message")
	}

	if err := h.TestConnection(ctx, req); err == nil {
		t.Fatal("TestConnection should return an error after a panic")
	}

	if _, err := h.CreateMigration(ctx, req); err == nil {
		t.Fatal("CreateMigration should return an error after a panic")
	}
	if _, err := h.GenerateScripts(ctx, req); err == nil {
		t.Fatal("GenerateScripts should return an error after a panic")
	}
}

func TestSafeIsIdempotent(t *testing.T) {
	h := Safe(panickyHandler{})
	if Safe(h) != h {
		t.Error("wrapping an already-wrapped handler should be a no-op")
	}
	if Safe(nil) != nil {
		t.Error("wrapping nil should stay nil")
	}
}
