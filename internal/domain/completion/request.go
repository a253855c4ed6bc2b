package completion

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"

	"jan-server/services/envchat-api/internal/domain/content"
)

// Message is one inbound conversation turn.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role"`
	Content content.Content `json:"content"`
	Date    string          `json:"date,omitempty"`
}

// Request is the normalized completion request sent to the provider.
type Request struct {
	Model       string                         `json:"model"`
	Messages    []openai.ChatCompletionMessage `json:"messages"`
	Temperature float32                        `json:"temperature"`
	TopP        float32                        `json:"top_p"`
	MaxTokens   int                            `json:"max_tokens"`
	Stop        []string                       `json:"stop,omitempty"`
	Stream      bool                           `json:"stream"`
	User        string                         `json:"user,omitempty"`
	DataSources []DataSource                   `json:"data_sources,omitempty"`

	// Transport never reaches the request body or the history store.
	Transport TransportMetadata `json:"-"`
}

// Grounded reports whether the request carries a retrieval data source.
func (r *Request) Grounded() bool {
	return len(r.DataSources) > 0
}

// TransportMetadata holds routing headers and query parameters for the gateway.
type TransportMetadata struct {
	Headers map[string]string
	Query   map[string]string
}

// DataSource is the retrieval augmentation payload.
type DataSource struct {
	Type       string               `json:"type"`
	Parameters DataSourceParameters `json:"parameters"`
}

type DataSourceParameters struct {
	Endpoint              string               `json:"endpoint"`
	IndexName             string               `json:"index_name"`
	Authentication        DataSourceAuth       `json:"authentication"`
	EmbeddingDependency   *EmbeddingDependency `json:"embedding_dependency,omitempty"`
	FieldsMapping         FieldsMapping        `json:"fields_mapping"`
	InScope               bool                 `json:"in_scope"`
	IncludeContexts       []string             `json:"include_contexts"`
	QueryType             string               `json:"query_type"`
	RoleInformation       string               `json:"role_information"`
	SemanticConfiguration string               `json:"semantic_configuration,omitempty"`
	Strictness            int                  `json:"strictness"`
	TopNDocuments         int                  `json:"top_n_documents"`
	AllowPartialResult    bool                 `json:"allow_partial_result"`
}

type DataSourceAuth struct {
	Type string `json:"type"`
	Key  string `json:"key,omitempty"`
}

type EmbeddingDependency struct {
	Type           string `json:"type"`
	DeploymentName string `json:"deployment_name"`
}

type FieldsMapping struct {
	ContentFields []string `json:"content_fields,omitempty"`
	TitleField    string   `json:"title_field,omitempty"`
	URLField      string   `json:"url_field,omitempty"`
	FilepathField string   `json:"filepath_field,omitempty"`
	VectorFields  []string `json:"vector_fields,omitempty"`
}

// Result is a provider response: a full completion in batch mode or one fragment
// of a stream.
type Result struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []Choice      `json:"choices"`
	Usage   *openai.Usage `json:"usage,omitempty"`

	// CorrelationID is the provider's request id (apim-request-id header).
	CorrelationID string `json:"-"`
}

// Choice carries Message in batch mode and Delta in streaming mode.
type Choice struct {
	Index        int                 `json:"index"`
	Message      *ResultMessage      `json:"message,omitempty"`
	Delta        *ResultMessage      `json:"delta,omitempty"`
	FinishReason openai.FinishReason `json:"finish_reason,omitempty"`
}

// ResultMessage is an assistant message. Context is present on grounded responses
// and holds citations and intent.
type ResultMessage struct {
	Role    string          `json:"role,omitempty"`
	Content string          `json:"content"`
	Context json.RawMessage `json:"context,omitempty"`
}
