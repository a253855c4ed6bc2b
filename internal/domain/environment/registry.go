package environment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jan-server/services/envchat-api/internal/domain/identity"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// FrontendSettingsSource supplies the base frontend settings document. Each call
// must return a fresh map.
type FrontendSettingsSource interface {
	FrontendSettings() map[string]any
}

// Registry resolves the environments visible to a tenant user and manages writes.
type Registry struct {
	repo  Repository
	cache Cache
	base  FrontendSettingsSource
	now   func() time.Time
	log   zerolog.Logger
}

// NewRegistry creates a registry. repo may be nil when no environment store is
// configured; cache may be nil to disable caching.
func NewRegistry(repo Repository, cache Cache, base FrontendSettingsSource) *Registry {
	return &Registry{
		repo:  repo,
		cache: cache,
		base:  base,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.Component("environment_registry"),
	}
}

// CreateInput describes a new environment.
type CreateInput struct {
	ID               string
	Name             string
	Global           bool
	FrontendSettings map[string]any
	BackendSettings  BackendSettings
}

// UpdateInput describes an environment update. Nil fields are left unchanged.
type UpdateInput struct {
	Name             *string
	FrontendSettings map[string]any
	BackendSettings  *BackendSettings
}

// Configured reports whether an environment store is available.
func (r *Registry) Configured() bool {
	return r.repo != nil
}

// Resolve returns the union of global and userID scoped environments. Rows that
// fail to decode or validate are logged and skipped.
func (r *Registry) Resolve(ctx context.Context, userID string) ([]*Environment, error) {
	if err := r.ensureConfigured(ctx); err != nil {
		return nil, err
	}
	var version string
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, userID); ok {
			return cached, nil
		}
		version = r.cache.Version(ctx, userID)
	}

	scopes := []string{GlobalScope}
	if userID != "" && userID != GlobalScope {
		scopes = append(scopes, userID)
	}

	records, err := r.repo.FindByScopes(ctx, scopes)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load environments")
	}

	environments := make([]*Environment, 0, len(records))
	for _, record := range records {
		env, err := decodeRecord(record)
		if err != nil {
			r.log.Warn().
				Err(err).
				Str("environment_id", record.ID).
				Str("scope", record.Scope).
				Msg("skipping environment with invalid settings")
			continue
		}
		environments = append(environments, env)
	}

	sort.SliceStable(environments, func(i, j int) bool {
		gi, gj := environments[i].IsGlobal(), environments[j].IsGlobal()
		if gi != gj {
			return gi
		}
		return environments[i].Name < environments[j].Name
	})

	if r.cache != nil {
		r.cache.Set(ctx, userID, version, environments)
	}
	return environments, nil
}

// ResolveOne returns the environment envID visible to userID. An own-scope row
// shadows a global row with the same id. Absence is reported through the bool.
func (r *Registry) ResolveOne(ctx context.Context, userID, envID string) (*Environment, bool, error) {
	environments, err := r.Resolve(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	var global *Environment
	for _, env := range environments {
		if env.ID != envID {
			continue
		}
		if !env.IsGlobal() {
			return env, true, nil
		}
		global = env
	}
	return global, global != nil, nil
}

// Summaries lists {id, name} pairs for the environments visible to userID.
func (r *Registry) Summaries(ctx context.Context, userID string) ([]Summary, error) {
	environments, err := r.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(environments))
	for _, env := range environments {
		summaries = append(summaries, Summary{ID: env.ID, Name: env.Name})
	}
	return summaries, nil
}

// FrontendSettings returns the base frontend settings with the "ui" block taken
// from the environment when envID resolves. The base document is not modified.
func (r *Registry) FrontendSettings(ctx context.Context, userID, envID string) (map[string]any, error) {
	settings := map[string]any{}
	if r.base != nil {
		settings = r.base.FrontendSettings()
	}
	if envID == "" || r.repo == nil {
		return settings, nil
	}

	env, ok, err := r.ResolveOne(ctx, userID, envID)
	if err != nil {
		return nil, err
	}
	if ok {
		ui := make(map[string]any, len(env.FrontendSettings))
		for k, v := range env.FrontendSettings {
			ui[k] = v
		}
		settings["ui"] = ui
	}
	return settings, nil
}

// Create stores a new environment in the caller's scope, or in the global scope
// when input.Global is set and the caller is an administrator.
func (r *Registry) Create(ctx context.Context, principal identity.Principal, input CreateInput) (*Environment, error) {
	if err := r.ensureConfigured(ctx); err != nil {
		return nil, err
	}
	if input.Global && !principal.IsAdmin {
		return nil, authorizationError(ctx, "Only administrators can create global configurations")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "environment name is required", nil, "5d0a3c51-6a0c-4e8f-9a57-4d2b8a6f1e10")
	}
	if err := ValidateBackendSettings(&input.BackendSettings); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, fmt.Sprintf("invalid backend settings: %s", err), err, "9c7b6f2e-2b1d-4f7a-8a44-1f0e3c5d7b21")
	}

	scope := principal.ID
	if input.Global {
		scope = GlobalScope
	}
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}

	env := &Environment{
		ID:               id,
		Scope:            scope,
		Name:             strings.TrimSpace(input.Name),
		FrontendSettings: input.FrontendSettings,
		BackendSettings:  input.BackendSettings,
		UpdatedAt:        r.now(),
	}
	record, err := encodeRecord(env)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to encode environment")
	}
	if err := r.repo.Create(ctx, record); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create environment")
	}
	if err := r.invalidate(ctx, scope); err != nil {
		return nil, err
	}
	return env, nil
}

// Update modifies an environment the caller owns, or a global environment when the
// caller is an administrator.
func (r *Registry) Update(ctx context.Context, principal identity.Principal, envID string, input UpdateInput) (*Environment, error) {
	if err := r.ensureConfigured(ctx); err != nil {
		return nil, err
	}
	record, err := r.writableRecord(ctx, principal, envID)
	if err != nil {
		return nil, err
	}
	env, err := decodeRecord(record)
	if err != nil {
		// an invalid stored row can still be repaired by a full settings update
		if input.BackendSettings == nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "stored environment is invalid; backend settings must be replaced", err, "e1f04f52-7a0e-4d39-a6a9-32c4b0f0a8d3")
		}
		env = &Environment{ID: record.ID, Scope: record.Scope, Name: record.Name, FrontendSettings: map[string]any{}}
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "environment name is required", nil, "2f5c0e8a-83d4-4b1c-9d6e-7a2b4c8e0f13")
		}
		env.Name = name
	}
	if input.FrontendSettings != nil {
		env.FrontendSettings = input.FrontendSettings
	}
	if input.BackendSettings != nil {
		if err := ValidateBackendSettings(input.BackendSettings); err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, fmt.Sprintf("invalid backend settings: %s", err), err, "4b8e2d6a-1c3f-4e5a-b7d9-0f2a4c6e8b35")
		}
		env.BackendSettings = *input.BackendSettings
	}
	env.UpdatedAt = r.now()

	updated, err := encodeRecord(env)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to encode environment")
	}
	if err := r.repo.Update(ctx, updated); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update environment")
	}
	if err := r.invalidate(ctx, env.Scope); err != nil {
		return nil, err
	}
	return env, nil
}

// Delete removes an environment the caller owns, or a global environment when the
// caller is an administrator.
func (r *Registry) Delete(ctx context.Context, principal identity.Principal, envID string) error {
	if err := r.ensureConfigured(ctx); err != nil {
		return err
	}
	record, err := r.writableRecord(ctx, principal, envID)
	if err != nil {
		return err
	}
	if _, err := r.repo.Delete(ctx, record.Scope, record.ID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete environment")
	}
	return r.invalidate(ctx, record.Scope)
}

// writableRecord finds envID in the caller's scope first, then in the global scope.
func (r *Registry) writableRecord(ctx context.Context, principal identity.Principal, envID string) (*Record, error) {
	record, err := r.repo.FindByScopeAndID(ctx, principal.ID, envID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load environment")
	}
	if record != nil {
		return record, nil
	}

	record, err = r.repo.FindByScopeAndID(ctx, GlobalScope, envID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load environment")
	}
	if record == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, fmt.Sprintf("environment %s was not found", envID), nil, "7a3d1b9e-5c2f-4a8b-9e0d-6f4c2a8e1b57")
	}
	if !principal.IsAdmin {
		return nil, authorizationError(ctx, "Only administrators can modify global configurations")
	}
	return record, nil
}

func (r *Registry) invalidate(ctx context.Context, scope string) error {
	if r.cache == nil {
		return nil
	}
	var err error
	if scope == GlobalScope {
		err = r.cache.Purge(ctx)
	} else {
		err = r.cache.Invalidate(ctx, scope)
	}
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "environment saved but cache invalidation failed", err, "c0e9a7b5-3d1f-4b2e-8c6a-9f5d3b1e7a29")
	}
	return nil
}

func (r *Registry) ensureConfigured(ctx context.Context) error {
	if r.repo == nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotConfigured, "environment store is not configured", nil, "0b6f4d2a-8e1c-4a5b-9d7e-3c1a5f9b2e64")
	}
	return nil
}

func authorizationError(ctx context.Context, message string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, message, nil, "f3a1c9e7-2b5d-4f8a-a6c4-8e0b2d4f6a91")
}
