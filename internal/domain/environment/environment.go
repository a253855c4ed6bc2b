package environment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// GlobalScope is the partition shared by every tenant.
	GlobalScope = "00000000-0000-0000-0000-000000000000"

	// DefaultEnvironmentID is used when a request names no environment.
	DefaultEnvironmentID = "default"

	DefaultQueryType     = "vectorSimpleHybrid"
	DefaultTopK          = 5
	DefaultStrictness    = 3
	DefaultEmbeddingName = "text-embedding-ada-002"
)

// SupportedQueryTypes lists the grounding query types accepted by the builder.
var SupportedQueryTypes = []string{"vectorSimpleHybrid", "anotherType"}

// Environment is a named configuration bundle resolved per request.
type Environment struct {
	ID               string          `json:"id"`
	Scope            string          `json:"scope"`
	Name             string          `json:"name"`
	FrontendSettings map[string]any  `json:"settings"`
	BackendSettings  BackendSettings `json:"backend_settings"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsGlobal reports whether the environment lives in the shared partition.
func (e *Environment) IsGlobal() bool {
	return e.Scope == GlobalScope
}

// BackendSettings keeps the persisted JSON keys of the legacy documents.
type BackendSettings struct {
	Completion *CompletionSettings `json:"openai" validate:"required"`
	Grounding  *GroundingSettings  `json:"azure_search,omitempty"`
}

// CompletionSettings configures the chat completion call.
type CompletionSettings struct {
	Resource      string   `json:"resource,omitempty"`
	Endpoint      string   `json:"endpoint,omitempty" validate:"omitempty,url"`
	Key           string   `json:"key,omitempty"`
	Temperature   *float32 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP          *float32 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	MaxTokens     *int     `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	SystemMessage string   `json:"system_message" validate:"required"`
	EmbeddingName string   `json:"embedding_name,omitempty"`
}

// HasScopedClient reports whether the settings carry their own provider credentials.
func (s *CompletionSettings) HasScopedClient() bool {
	if s == nil {
		return false
	}
	return strings.TrimSpace(s.Key) != "" && (strings.TrimSpace(s.Resource) != "" || strings.TrimSpace(s.Endpoint) != "")
}

// GroundingSettings configures the optional retrieval data source.
type GroundingSettings struct {
	Service               string `json:"service,omitempty"`
	Index                 string `json:"index,omitempty"`
	Key                   string `json:"key,omitempty"`
	QueryType             string `json:"query_type,omitempty"`
	SemanticSearchConfig  string `json:"semantic_search_config,omitempty"`
	IndexIsPrechunked     bool   `json:"index_is_prechunked,omitempty"`
	TopK                  *int   `json:"top_k,omitempty" validate:"omitempty,gt=0"`
	Strictness            *int   `json:"strictness,omitempty" validate:"omitempty,gte=1,lte=5"`
	EnableInDomain        bool   `json:"enable_in_domain,omitempty"`
	ContentColumns        string `json:"content_columns,omitempty"`
	FilenameColumn        string `json:"filename_column,omitempty"`
	TitleColumn           string `json:"title_column,omitempty"`
	URLColumn             string `json:"url_column,omitempty"`
	VectorColumns         string `json:"vector_columns,omitempty"`
	PermittedGroupsColumn string `json:"permitted_groups_column,omitempty"`
}

// Enabled reports whether a grounding service is configured.
func (g *GroundingSettings) Enabled() bool {
	return g != nil && strings.TrimSpace(g.Service) != ""
}

// Summary is the listing shape returned to clients.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Record is the persisted row shape. Settings are kept as raw JSON so a malformed
// row only fails its own decode.
type Record struct {
	Scope           string
	ID              string
	Name            string
	Settings        json.RawMessage
	BackendSettings json.RawMessage
	UpdatedAt       time.Time
}

// Repository persists environment rows partitioned by scope.
type Repository interface {
	FindByScopes(ctx context.Context, scopes []string) ([]*Record, error)
	FindByScopeAndID(ctx context.Context, scope, id string) (*Record, error)
	Create(ctx context.Context, record *Record) error
	Update(ctx context.Context, record *Record) error
	Delete(ctx context.Context, scope, id string) (bool, error)
}

// Cache holds resolved environment lists per owner.
//
// Version returns a token that changes whenever ownerID is invalidated or the
// cache is purged. Set stores nothing once that token is stale, so a list loaded
// before a write never outlives the write's invalidation.
type Cache interface {
	Get(ctx context.Context, ownerID string) ([]*Environment, bool)
	Version(ctx context.Context, ownerID string) string
	Set(ctx context.Context, ownerID, version string, environments []*Environment)
	Invalidate(ctx context.Context, ownerID string) error
	Purge(ctx context.Context) error
}

var settingsValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateBackendSettings checks the structural rules of backend settings.
func ValidateBackendSettings(settings *BackendSettings) error {
	if settings == nil {
		return errors.New("backend settings are required")
	}
	if err := settingsValidator.Struct(settings); err != nil {
		return err
	}
	if settings.Grounding.Enabled() {
		if err := ValidateQueryType(settings.Grounding.QueryType); err != nil {
			return err
		}
	}
	return nil
}

// ValidateQueryType rejects grounding query types the provider does not support.
func ValidateQueryType(queryType string) error {
	if queryType == "" {
		return nil
	}
	for _, supported := range SupportedQueryTypes {
		if queryType == supported {
			return nil
		}
	}
	return &UnsupportedQueryTypeError{QueryType: queryType}
}

// UnsupportedQueryTypeError reports a grounding query type outside SupportedQueryTypes.
type UnsupportedQueryTypeError struct {
	QueryType string
}

func (e *UnsupportedQueryTypeError) Error() string {
	return "query_type must be one of " + strings.Join(SupportedQueryTypes, ", ") + ", got " + e.QueryType
}

// decodeRecord turns a row into a validated Environment.
func decodeRecord(record *Record) (*Environment, error) {
	env := &Environment{
		ID:        record.ID,
		Scope:     record.Scope,
		Name:      record.Name,
		UpdatedAt: record.UpdatedAt,
	}
	if len(record.Settings) > 0 && string(record.Settings) != "null" {
		if err := json.Unmarshal(record.Settings, &env.FrontendSettings); err != nil {
			return nil, err
		}
	}
	if env.FrontendSettings == nil {
		env.FrontendSettings = map[string]any{}
	}
	if err := json.Unmarshal(record.BackendSettings, &env.BackendSettings); err != nil {
		return nil, err
	}
	if err := ValidateBackendSettings(&env.BackendSettings); err != nil {
		return nil, err
	}
	return env, nil
}

// encodeRecord turns an Environment into a row.
func encodeRecord(env *Environment) (*Record, error) {
	settings, err := json.Marshal(env.FrontendSettings)
	if err != nil {
		return nil, err
	}
	backend, err := json.Marshal(env.BackendSettings)
	if err != nil {
		return nil, err
	}
	return &Record{
		Scope:           env.Scope,
		ID:              env.ID,
		Name:            env.Name,
		Settings:        settings,
		BackendSettings: backend,
		UpdatedAt:       env.UpdatedAt,
	}, nil
}
