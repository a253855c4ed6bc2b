package main

import (
	"context"
	"encoding/json"
	"fmt"

	"jan-server/services/envchat-api/internal/config"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/domain/identity"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

const seedPrincipalID = "system"

// EnvironmentSeeder is the part of the registry the initializer writes through.
type EnvironmentSeeder interface {
	Configured() bool
	Create(ctx context.Context, principal identity.Principal, input environment.CreateInput) (*environment.Environment, error)
}

type DataInitializer struct {
	registry EnvironmentSeeder
	config   *config.Config
}

// Install seeds the configured global environments. Existing rows are left as
// they are.
func (d *DataInitializer) Install(ctx context.Context) error {
	if !d.config.EnvironmentSeedOnRun || d.registry == nil || !d.registry.Configured() {
		return nil
	}

	entries, err := d.config.EnvironmentSeedEntries()
	if err != nil {
		return err
	}
	for i := range entries {
		if err := d.seedEnvironment(ctx, entries[i]); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, fmt.Sprintf("failed to seed environment %q", entries[i].ID))
		}
	}
	return nil
}

func (d *DataInitializer) seedEnvironment(ctx context.Context, entry config.EnvironmentSeedEntry) error {
	backend, err := decodeBackendSettings(entry.Backend)
	if err != nil {
		return err
	}

	principal := identity.Principal{ID: seedPrincipalID, Name: seedPrincipalID, IsAdmin: true}
	_, err = d.registry.Create(ctx, principal, environment.CreateInput{
		ID:               entry.ID,
		Name:             entry.Name,
		Global:           true,
		FrontendSettings: entry.Settings,
		BackendSettings:  backend,
	})
	if platformerrors.IsErrorType(err, platformerrors.ErrorTypeConflict) {
		log := logger.GetLogger()
		log.Debug().Str("environment_id", entry.ID).Msg("environment already seeded")
		return nil
	}
	if err != nil {
		return err
	}
	log := logger.GetLogger()
	log.Info().Str("environment_id", entry.ID).Msg("seeded environment")
	return nil
}

func decodeBackendSettings(raw map[string]any) (environment.BackendSettings, error) {
	var settings environment.BackendSettings
	data, err := json.Marshal(raw)
	if err != nil {
		return settings, fmt.Errorf("encode backend settings: %w", err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("decode backend settings: %w", err)
	}
	return settings, nil
}
