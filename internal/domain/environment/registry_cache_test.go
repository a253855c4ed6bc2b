package environment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/domain/identity"
	"jan-server/services/envchat-api/internal/infrastructure/cache"
)

// pausingRepo snapshots rows and, when armed, holds the first scope read until
// released.
type pausingRepo struct {
	mu      sync.Mutex
	rows    []*environment.Record
	loaded  chan struct{}
	release chan struct{}
}

func (p *pausingRepo) FindByScopes(_ context.Context, scopes []string) ([]*environment.Record, error) {
	p.mu.Lock()
	var out []*environment.Record
	for _, row := range p.rows {
		for _, scope := range scopes {
			if row.Scope == scope {
				out = append(out, row)
			}
		}
	}
	loaded, release := p.loaded, p.release
	p.loaded, p.release = nil, nil
	p.mu.Unlock()

	if loaded != nil {
		close(loaded)
		<-release
	}
	return out, nil
}

func (p *pausingRepo) FindByScopeAndID(_ context.Context, scope, id string) (*environment.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, row := range p.rows {
		if row.Scope == scope && row.ID == id {
			return row, nil
		}
	}
	return nil, nil
}

func (p *pausingRepo) Create(_ context.Context, record *environment.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = append(p.rows, record)
	return nil
}

func (p *pausingRepo) Update(context.Context, *environment.Record) error { return nil }

func (p *pausingRepo) Delete(context.Context, string, string) (bool, error) { return false, nil }

func TestCreateDuringResolveIsVisibleAfterwards(t *testing.T) {
	memory, err := cache.NewMemoryCache(16, time.Hour)
	require.NoError(t, err)
	repo := &pausingRepo{loaded: make(chan struct{}), release: make(chan struct{})}
	registry := environment.NewRegistry(repo, memory, nil)
	ctx := context.Background()
	loaded, release := repo.loaded, repo.release

	resolved := make(chan []*environment.Environment, 1)
	go func() {
		envs, err := registry.Resolve(ctx, "alice")
		assert.NoError(t, err)
		resolved <- envs
	}()

	select {
	case <-loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("resolve never reached the repository")
	}

	_, err = registry.Create(ctx, identity.Principal{ID: "alice"}, environment.CreateInput{
		ID:   "mine",
		Name: "Mine",
		BackendSettings: environment.BackendSettings{
			Completion: &environment.CompletionSettings{SystemMessage: "be brief"},
		},
	})
	require.NoError(t, err)

	close(release)
	assert.Empty(t, <-resolved)

	envs, err := registry.Resolve(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "mine", envs[0].ID)
}
