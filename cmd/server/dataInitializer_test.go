package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/envchat-api/internal/config"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/domain/identity"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

type fakeSeeder struct {
	configured bool
	existing   map[string]bool
	created    []environment.CreateInput
	principals []identity.Principal
}

func (f *fakeSeeder) Configured() bool { return f.configured }

func (f *fakeSeeder) Create(ctx context.Context, principal identity.Principal, input environment.CreateInput) (*environment.Environment, error) {
	if f.existing[input.ID] {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "exists", nil, "test")
	}
	f.created = append(f.created, input)
	f.principals = append(f.principals, principal)
	return &environment.Environment{ID: input.ID, Scope: environment.GlobalScope, Name: input.Name}, nil
}

func seedConfig() *config.Config {
	return &config.Config{
		EnvironmentSeedOnRun:  true,
		ProviderSystemMessage: "You are helpful.",
		ProviderTemperature:   0.5,
		ProviderTopP:          0.9,
		ProviderMaxTokens:     800,
	}
}

func TestInstallSeedsDefaultEnvironment(t *testing.T) {
	seeder := &fakeSeeder{configured: true}
	initializer := &DataInitializer{registry: seeder, config: seedConfig()}

	require.NoError(t, initializer.Install(context.Background()))

	require.Len(t, seeder.created, 1)
	input := seeder.created[0]
	assert.Equal(t, "default", input.ID)
	assert.True(t, input.Global)
	require.NotNil(t, input.BackendSettings.Completion)
	assert.Equal(t, "You are helpful.", input.BackendSettings.Completion.SystemMessage)
	require.NotNil(t, input.BackendSettings.Completion.MaxTokens)
	assert.Equal(t, 800, *input.BackendSettings.Completion.MaxTokens)
	assert.True(t, seeder.principals[0].IsAdmin)
}

func TestInstallSkipsExistingEnvironment(t *testing.T) {
	seeder := &fakeSeeder{configured: true, existing: map[string]bool{"default": true}}
	initializer := &DataInitializer{registry: seeder, config: seedConfig()}

	require.NoError(t, initializer.Install(context.Background()))
	assert.Empty(t, seeder.created)
}

func TestInstallWithoutStoreIsNoop(t *testing.T) {
	seeder := &fakeSeeder{}
	initializer := &DataInitializer{registry: seeder, config: seedConfig()}

	require.NoError(t, initializer.Install(context.Background()))
	assert.Empty(t, seeder.created)
}
