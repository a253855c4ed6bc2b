package environment

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/envchat-api/internal/domain/identity"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

type memoryRepo struct {
	rows map[string]*Record
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[string]*Record{}}
}

func (m *memoryRepo) key(scope, id string) string { return scope + "/" + id }

func (m *memoryRepo) FindByScopes(_ context.Context, scopes []string) ([]*Record, error) {
	var out []*Record
	for _, scope := range scopes {
		for _, row := range m.rows {
			if row.Scope == scope {
				out = append(out, row)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) FindByScopeAndID(_ context.Context, scope, id string) (*Record, error) {
	return m.rows[m.key(scope, id)], nil
}

func (m *memoryRepo) Create(_ context.Context, record *Record) error {
	m.rows[m.key(record.Scope, record.ID)] = record
	return nil
}

func (m *memoryRepo) Update(_ context.Context, record *Record) error {
	m.rows[m.key(record.Scope, record.ID)] = record
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, scope, id string) (bool, error) {
	k := m.key(scope, id)
	_, ok := m.rows[k]
	delete(m.rows, k)
	return ok, nil
}

type recordingCache struct {
	entries     map[string][]*Environment
	invalidated []string
	purged      int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string][]*Environment{}}
}

func (c *recordingCache) Get(_ context.Context, owner string) ([]*Environment, bool) {
	envs, ok := c.entries[owner]
	return envs, ok
}

func (c *recordingCache) Version(context.Context, string) string { return "v" }

func (c *recordingCache) Set(_ context.Context, owner, _ string, envs []*Environment) {
	c.entries[owner] = envs
}

func (c *recordingCache) Invalidate(_ context.Context, owner string) error {
	c.invalidated = append(c.invalidated, owner)
	delete(c.entries, owner)
	return nil
}

func (c *recordingCache) Purge(context.Context) error {
	c.purged++
	c.entries = map[string][]*Environment{}
	return nil
}

type staticBase map[string]any

func (s staticBase) FrontendSettings() map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func validBackend(system string) BackendSettings {
	return BackendSettings{Completion: &CompletionSettings{SystemMessage: system}}
}

func seed(t *testing.T, repo *memoryRepo, scope, id, name string) {
	t.Helper()
	record, err := encodeRecord(&Environment{
		ID:               id,
		Scope:            scope,
		Name:             name,
		FrontendSettings: map[string]any{"title": name},
		BackendSettings:  validBackend("you are " + name),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), record))
}

func TestResolveUnionsGlobalAndOwnScope(t *testing.T) {
	repo := newMemoryRepo()
	seed(t, repo, GlobalScope, "default", "Default")
	seed(t, repo, "alice", "mine", "Alice env")
	seed(t, repo, "bob", "theirs", "Bob env")

	registry := NewRegistry(repo, nil, nil)
	envs, err := registry.Resolve(context.Background(), "alice")
	require.NoError(t, err)

	ids := []string{}
	for _, env := range envs {
		ids = append(ids, env.ID)
	}
	assert.Equal(t, []string{"default", "mine"}, ids)
}

func TestResolveSkipsInvalidRows(t *testing.T) {
	repo := newMemoryRepo()
	seed(t, repo, GlobalScope, "default", "Default")
	repo.rows[repo.key(GlobalScope, "broken")] = &Record{
		Scope:           GlobalScope,
		ID:              "broken",
		Name:            "Broken",
		BackendSettings: json.RawMessage(`{"openai":{"temperature":0.1}}`),
	}

	envs, err := NewRegistry(repo, nil, nil).Resolve(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "default", envs[0].ID)
}

func TestResolveOnePrefersOwnScope(t *testing.T) {
	repo := newMemoryRepo()
	seed(t, repo, GlobalScope, "shared", "Global copy")
	seed(t, repo, "alice", "shared", "Alice copy")

	registry := NewRegistry(repo, nil, nil)
	env, ok, err := registry.ResolveOne(context.Background(), "alice", "shared")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice copy", env.Name)

	_, ok, err = registry.ResolveOne(context.Background(), "alice", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateGlobalRequiresAdmin(t *testing.T) {
	registry := NewRegistry(newMemoryRepo(), nil, nil)
	_, err := registry.Create(context.Background(), identity.Principal{ID: "alice"}, CreateInput{
		Name:            "Shared",
		Global:          true,
		BackendSettings: validBackend("hi"),
	})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))
}

func TestCreateRejectsInvalidSettings(t *testing.T) {
	registry := NewRegistry(newMemoryRepo(), nil, nil)
	_, err := registry.Create(context.Background(), identity.Principal{ID: "alice"}, CreateInput{
		Name:            "Mine",
		BackendSettings: BackendSettings{Completion: &CompletionSettings{}},
	})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	_, err = registry.Create(context.Background(), identity.Principal{ID: "alice"}, CreateInput{
		Name: "Mine",
		BackendSettings: BackendSettings{
			Completion: &CompletionSettings{SystemMessage: "x"},
			Grounding:  &GroundingSettings{Service: "search", QueryType: "keyword"},
		},
	})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestWritesInvalidateCache(t *testing.T) {
	repo := newMemoryRepo()
	cache := newRecordingCache()
	registry := NewRegistry(repo, cache, nil)
	ctx := context.Background()

	_, err := registry.Resolve(ctx, "alice")
	require.NoError(t, err)
	_, cached := cache.entries["alice"]
	require.True(t, cached)

	created, err := registry.Create(ctx, identity.Principal{ID: "alice"}, CreateInput{Name: "Mine", BackendSettings: validBackend("x")})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, cache.invalidated)

	envs, err := registry.Resolve(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, created.ID, envs[0].ID)

	_, err = registry.Create(ctx, identity.Principal{ID: "root", IsAdmin: true}, CreateInput{Name: "Shared", Global: true, BackendSettings: validBackend("x")})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.purged)
}

func TestUpdateAndDeleteGlobalRequireAdmin(t *testing.T) {
	repo := newMemoryRepo()
	seed(t, repo, GlobalScope, "default", "Default")
	registry := NewRegistry(repo, nil, nil)
	ctx := context.Background()

	name := "Renamed"
	_, err := registry.Update(ctx, identity.Principal{ID: "alice"}, "default", UpdateInput{Name: &name})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	err = registry.Delete(ctx, identity.Principal{ID: "alice"}, "default")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))

	updated, err := registry.Update(ctx, identity.Principal{ID: "root", IsAdmin: true}, "default", UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, GlobalScope, updated.Scope)

	err = registry.Delete(ctx, identity.Principal{ID: "root", IsAdmin: true}, "missing")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestFrontendSettingsReplacesUIBlock(t *testing.T) {
	repo := newMemoryRepo()
	seed(t, repo, GlobalScope, "default", "Default")
	base := staticBase{"auth_enabled": true, "ui": map[string]any{"title": "Base"}}
	registry := NewRegistry(repo, nil, base)

	settings, err := registry.FrontendSettings(context.Background(), "alice", "default")
	require.NoError(t, err)
	assert.Equal(t, true, settings["auth_enabled"])
	assert.Equal(t, map[string]any{"title": "Default"}, settings["ui"])

	// the base is untouched
	assert.Equal(t, map[string]any{"title": "Base"}, base["ui"])

	settings, err = registry.FrontendSettings(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Base"}, settings["ui"])
}

func TestUnconfiguredRegistry(t *testing.T) {
	registry := NewRegistry(nil, nil, nil)
	_, err := registry.Resolve(context.Background(), "alice")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotConfigured))
	assert.False(t, registry.Configured())
}

func TestSchemaDescribesBackendSettings(t *testing.T) {
	schema := NewRegistry(nil, nil, nil).Schema()
	require.NotNil(t, schema)
	_, ok := schema.Properties.Get("openai")
	assert.True(t, ok)
	_, ok = schema.Properties.Get("azure_search")
	assert.True(t, ok)
	assert.Contains(t, schema.Required, "openai")
}
