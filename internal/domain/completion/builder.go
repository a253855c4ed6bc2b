package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

const (
	groundingSourceType    = "azure_search"
	groundingEndpointShape = "https://%s.search.windows.net"
	columnSeparator        = "|"
)

var groundingContexts = []string{"citations", "intent"}

// Defaults are the process-wide provider parameters used when an environment does
// not override them.
type Defaults struct {
	Model             string
	APIVersion        string
	MinimumAPIVersion string
	Temperature       float32
	TopP              float32
	MaxTokens         int
	Stop              []string
	Stream            bool
	SystemMessage     string
}

// Caller describes the end user on whose behalf a request is made.
type Caller struct {
	UserID           string
	UserName         string
	IdentityProvider string
	ClientIP         string
	UserAgent        string
	ForwardedFor     string
	ConversationID   string
}

// TransportSource supplies gateway routing metadata for an environment.
type TransportSource interface {
	Transport(environmentID string) TransportMetadata
}

// ComplianceTagger builds the user descriptor attached to outbound calls.
type ComplianceTagger interface {
	Tag(caller Caller) (string, bool)
}

type buildOptions struct {
	caller    *Caller
	overrides func(*Request)
}

// BuildOption customizes a single Build call.
type BuildOption func(*buildOptions)

// WithCaller attaches the caller used for compliance tagging.
func WithCaller(caller Caller) BuildOption {
	return func(o *buildOptions) {
		o.caller = &caller
	}
}

// withOverrides adjusts the request after defaults are applied.
func withOverrides(fn func(*Request)) BuildOption {
	return func(o *buildOptions) {
		o.overrides = fn
	}
}

// Builder assembles provider requests from conversation turns and an environment.
type Builder struct {
	defaults  Defaults
	transport TransportSource
	tagger    ComplianceTagger
}

// NewBuilder creates a Builder. transport and tagger may be nil.
func NewBuilder(defaults Defaults, transport TransportSource, tagger ComplianceTagger) *Builder {
	return &Builder{defaults: defaults, transport: transport, tagger: tagger}
}

// Build turns messages and env into a Request. A nil env falls back to the
// process-wide defaults.
func (b *Builder) Build(ctx context.Context, messages []Message, env *environment.Environment, opts ...BuildOption) (*Request, error) {
	options := buildOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	settings := b.completionSettings(env)
	if err := b.checkConfiguration(ctx, settings); err != nil {
		return nil, err
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	chatMessages = append(chatMessages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: settings.SystemMessage,
	})
	for i, message := range messages {
		converted, err := toChatMessage(message)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeMalformedContent, fmt.Sprintf("message %d: %s", i, err), err, "0d5e8c1a-6b3f-4d27-9a4e-5f1c7b2d8e36")
		}
		chatMessages = append(chatMessages, converted)
	}

	req := &Request{
		Model:       b.defaults.Model,
		Messages:    chatMessages,
		Temperature: b.defaults.Temperature,
		TopP:        b.defaults.TopP,
		MaxTokens:   b.defaults.MaxTokens,
		Stop:        b.defaults.Stop,
		Stream:      b.defaults.Stream,
	}
	if settings.Temperature != nil {
		req.Temperature = *settings.Temperature
	}
	if settings.TopP != nil {
		req.TopP = *settings.TopP
	}
	if settings.MaxTokens != nil {
		req.MaxTokens = *settings.MaxTokens
	}

	if env != nil && env.BackendSettings.Grounding.Enabled() {
		source, err := groundingSource(ctx, env.BackendSettings.Grounding, settings)
		if err != nil {
			return nil, err
		}
		req.DataSources = []DataSource{source}
	}

	if b.transport != nil {
		envID := ""
		if env != nil {
			envID = env.ID
		}
		req.Transport = b.transport.Transport(envID)
	}

	if options.caller != nil && b.tagger != nil {
		if user, ok := b.tagger.Tag(*options.caller); ok {
			req.User = user
		}
	}

	if options.overrides != nil {
		options.overrides(req)
	}
	return req, nil
}

func (b *Builder) completionSettings(env *environment.Environment) *environment.CompletionSettings {
	if env != nil && env.BackendSettings.Completion != nil {
		return env.BackendSettings.Completion
	}
	return &environment.CompletionSettings{SystemMessage: b.defaults.SystemMessage}
}

func (b *Builder) checkConfiguration(ctx context.Context, settings *environment.CompletionSettings) error {
	if strings.TrimSpace(settings.SystemMessage) == "" {
		return configurationError(ctx, "system message is not configured", "6c2a9e4f-1d7b-4b3e-8f5a-2e9c4d1b7a08")
	}
	if strings.TrimSpace(b.defaults.Model) == "" {
		return configurationError(ctx, "completion model is not configured", "a8e3f1c6-4b2d-4e9a-b7c5-1d6f8a3e2b94")
	}
	if b.defaults.MinimumAPIVersion != "" && apiVersionBefore(b.defaults.APIVersion, b.defaults.MinimumAPIVersion) {
		return configurationError(ctx, fmt.Sprintf("the minimum supported preview API version is %s, got %s", b.defaults.MinimumAPIVersion, b.defaults.APIVersion), "3f7b2d9e-8a1c-4c6f-9e3b-7d5a1c8f4e27")
	}
	return nil
}

// apiVersionBefore orders versions of the form YYYY-MM-DD[-suffix] by date. On
// the same date a release without a suffix is newer than any preview. Versions
// without a date prefix compare as plain strings.
func apiVersionBefore(version, minimum string) bool {
	vDate, vErr := time.Parse(time.DateOnly, datePrefix(version))
	mDate, mErr := time.Parse(time.DateOnly, datePrefix(minimum))
	if vErr != nil || mErr != nil {
		return version < minimum
	}
	if !vDate.Equal(mDate) {
		return vDate.Before(mDate)
	}
	vPreview := len(version) > len(time.DateOnly)
	mPreview := len(minimum) > len(time.DateOnly)
	return vPreview && !mPreview
}

func datePrefix(version string) string {
	if len(version) < len(time.DateOnly) {
		return version
	}
	return version[:len(time.DateOnly)]
}

func toChatMessage(message Message) (openai.ChatCompletionMessage, error) {
	out := openai.ChatCompletionMessage{Role: message.Role}

	if primary, supplemental, ok := message.Content.DocumentPair(); ok {
		out.Content = content.Collapse(primary, supplemental)
		return out, nil
	}

	switch message.Content.Kind {
	case content.KindText, "":
		out.Content = message.Content.Text
	case content.KindParts:
		parts := make([]openai.ChatMessagePart, 0, len(message.Content.Parts))
		for _, part := range message.Content.Parts {
			converted := openai.ChatMessagePart{
				Type: openai.ChatMessagePartType(part.Type),
				Text: part.Text,
			}
			if part.ImageURL != nil {
				converted.ImageURL = &openai.ChatMessageImageURL{
					URL:    part.ImageURL.URL,
					Detail: openai.ImageURLDetail(part.ImageURL.Detail),
				}
			}
			parts = append(parts, converted)
		}
		out.MultiContent = parts
	default:
		return out, errors.New("unsupported content kind " + string(message.Content.Kind))
	}
	return out, nil
}

func groundingSource(ctx context.Context, grounding *environment.GroundingSettings, completion *environment.CompletionSettings) (DataSource, error) {
	queryType := grounding.QueryType
	if queryType == "" {
		queryType = environment.DefaultQueryType
	}
	if err := environment.ValidateQueryType(queryType); err != nil {
		return DataSource{}, configurationError(ctx, err.Error(), "d2b6e8a4-5c9f-4a1e-8b3d-6f2c9e5a1d73")
	}

	topK := environment.DefaultTopK
	if grounding.TopK != nil {
		topK = *grounding.TopK
	}
	strictness := environment.DefaultStrictness
	if grounding.Strictness != nil {
		strictness = *grounding.Strictness
	}
	embeddingName := completion.EmbeddingName
	if embeddingName == "" {
		embeddingName = environment.DefaultEmbeddingName
	}

	return DataSource{
		Type: groundingSourceType,
		Parameters: DataSourceParameters{
			Endpoint:       fmt.Sprintf(groundingEndpointShape, grounding.Service),
			IndexName:      grounding.Index,
			Authentication: DataSourceAuth{Type: "api_key", Key: grounding.Key},
			EmbeddingDependency: &EmbeddingDependency{
				Type:           "deployment_name",
				DeploymentName: embeddingName,
			},
			FieldsMapping: FieldsMapping{
				ContentFields: splitColumns(grounding.ContentColumns),
				TitleField:    grounding.TitleColumn,
				URLField:      grounding.URLColumn,
				FilepathField: grounding.FilenameColumn,
				VectorFields:  splitColumns(grounding.VectorColumns),
			},
			InScope:               grounding.EnableInDomain,
			IncludeContexts:       groundingContexts,
			QueryType:             strings.ToLower(queryType),
			RoleInformation:       completion.SystemMessage,
			SemanticConfiguration: grounding.SemanticSearchConfig,
			Strictness:            strictness,
			TopNDocuments:         topK,
		},
	}, nil
}

func splitColumns(columns string) []string {
	if strings.TrimSpace(columns) == "" {
		return nil
	}
	var out []string
	for _, column := range strings.Split(columns, columnSeparator) {
		if trimmed := strings.TrimSpace(column); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func configurationError(ctx context.Context, message, code string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConfiguration, message, nil, code)
}
