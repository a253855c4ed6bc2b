package environmenthandler

import (
	"context"

	"github.com/invopop/jsonschema"

	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/domain/identity"
	environmentrequests "jan-server/services/envchat-api/internal/interfaces/httpserver/requests/environment"
)

// Registry is the environment surface used by the handler.
type Registry interface {
	Configured() bool
	Summaries(ctx context.Context, userID string) ([]environment.Summary, error)
	FrontendSettings(ctx context.Context, userID, envID string) (map[string]any, error)
	Create(ctx context.Context, principal identity.Principal, input environment.CreateInput) (*environment.Environment, error)
	Update(ctx context.Context, principal identity.Principal, envID string, input environment.UpdateInput) (*environment.Environment, error)
	Delete(ctx context.Context, principal identity.Principal, envID string) error
	Schema() *jsonschema.Schema
}

type EnvironmentHandler struct {
	registry Registry
}

func NewEnvironmentHandler(registry Registry) *EnvironmentHandler {
	return &EnvironmentHandler{registry: registry}
}

// List returns the environments visible to the principal. Without an
// environment store the list is empty.
func (h *EnvironmentHandler) List(ctx context.Context, principal identity.Principal) ([]environment.Summary, error) {
	if !h.registry.Configured() {
		return []environment.Summary{}, nil
	}
	return h.registry.Summaries(ctx, principal.ID)
}

func (h *EnvironmentHandler) FrontendSettings(ctx context.Context, principal identity.Principal, envID string) (map[string]any, error) {
	return h.registry.FrontendSettings(ctx, principal.ID, envID)
}

func (h *EnvironmentHandler) Create(ctx context.Context, principal identity.Principal, req environmentrequests.CreateEnvironmentRequest) (*environment.Environment, error) {
	return h.registry.Create(ctx, principal, environment.CreateInput{
		ID:               req.ID,
		Name:             req.Name,
		Global:           req.Global,
		FrontendSettings: req.Settings,
		BackendSettings:  req.BackendSettings,
	})
}

func (h *EnvironmentHandler) Update(ctx context.Context, principal identity.Principal, envID string, req environmentrequests.UpdateEnvironmentRequest) (*environment.Environment, error) {
	return h.registry.Update(ctx, principal, envID, environment.UpdateInput{
		Name:             req.Name,
		FrontendSettings: req.Settings,
		BackendSettings:  req.BackendSettings,
	})
}

func (h *EnvironmentHandler) Delete(ctx context.Context, principal identity.Principal, envID string) error {
	return h.registry.Delete(ctx, principal, envID)
}

// Schema describes the backend settings document.
func (h *EnvironmentHandler) Schema() *jsonschema.Schema {
	return h.registry.Schema()
}
