// Package chat talks to an Azure-style chat completion deployment.
package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

const (
	dataPrefix           = "data: "
	doneMarker           = "[DONE]"
	correlationHeader    = "apim-request-id"
	scannerInitialBuffer = 12 * 1024        // 12KB
	scannerMaxBuffer     = 10 * 1024 * 1024 // 10MB
)

// Credentials authenticate against the deployment. APIKey wins over Token.
type Credentials struct {
	APIKey string
	Token  string
}

// Call describes one request: the deployment, API version and the extra routing
// headers and query parameters.
type Call struct {
	Deployment string
	APIVersion string
	Headers    map[string]string
	Query      map[string]string
}

// Completion is a full response or one stream chunk.
type Completion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *openai.Usage      `json:"usage,omitempty"`

	CorrelationID string `json:"-"`
}

type CompletionChoice struct {
	Index        int                 `json:"index"`
	Message      *CompletionMessage  `json:"message,omitempty"`
	Delta        *CompletionMessage  `json:"delta,omitempty"`
	FinishReason openai.FinishReason `json:"finish_reason,omitempty"`
}

type CompletionMessage struct {
	Role    string          `json:"role,omitempty"`
	Content string          `json:"content"`
	Context json.RawMessage `json:"context,omitempty"`
}

type ChatCompletionClient struct {
	client  *resty.Client
	baseURL string
	name    string
}

func NewChatCompletionClient(client *resty.Client, name, baseURL string) *ChatCompletionClient {
	return &ChatCompletionClient{
		client:  client,
		baseURL: normalizeBaseURL(baseURL),
		name:    name,
	}
}

func (c *ChatCompletionClient) BaseURL() string {
	return c.baseURL
}

// CreateChatCompletion sends body and waits for the full response.
func (c *ChatCompletionClient) CreateChatCompletion(ctx context.Context, creds Credentials, call Call, body any) (*Completion, error) {
	var respBody Completion
	resp, err := c.prepareRequest(ctx, creds, call).
		SetBody(body).
		SetResult(&respBody).
		Post(c.endpoint(call.Deployment))
	if err != nil {
		return nil, c.transportError(ctx, err, "request failed")
	}
	if resp.IsError() {
		return nil, c.errorFromResponse(ctx, resp, "request failed")
	}
	respBody.CorrelationID = resp.Header().Get(correlationHeader)
	return &respBody, nil
}

// CreateChatCompletionStream opens a streaming request. The returned stream
// reads the body lazily; closing it or cancelling ctx closes the connection.
func (c *ChatCompletionClient) CreateChatCompletionStream(ctx context.Context, creds Credentials, call Call, body any) (*ChatCompletionStream, error) {
	req := c.prepareRequest(ctx, creds, call).
		SetBody(body).
		SetDoNotParseResponse(true)
	if req.Header.Get("Accept-Encoding") == "" {
		req.SetHeader("Accept-Encoding", "identity")
	}

	resp, err := req.Post(c.endpoint(call.Deployment))
	if err != nil {
		return nil, c.transportError(ctx, err, "streaming request failed")
	}
	if resp.IsError() {
		return nil, c.errorFromResponse(ctx, resp, "streaming request failed")
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "streaming request failed: empty response body", nil, "1b3ab461-dbf9-4034-8abb-dfc6ea8486c5")
	}

	scanner := bufio.NewScanner(resp.RawResponse.Body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)
	return &ChatCompletionStream{
		ctx:           ctx,
		body:          resp.RawResponse.Body,
		scanner:       scanner,
		correlationID: resp.Header().Get(correlationHeader),
		name:          c.name,
	}, nil
}

func (c *ChatCompletionClient) prepareRequest(ctx context.Context, creds Credentials, call Call) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	switch {
	case strings.TrimSpace(creds.APIKey) != "":
		req.SetHeader("api-key", creds.APIKey)
	case strings.TrimSpace(creds.Token) != "":
		req.SetHeader("Authorization", fmt.Sprintf("Bearer %s", creds.Token))
	}
	for key, value := range call.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		req.SetHeader(key, value)
	}
	if call.APIVersion != "" {
		req.SetQueryParam("api-version", call.APIVersion)
	}
	for key, value := range call.Query {
		req.SetQueryParam(key, value)
	}
	return req
}

func (c *ChatCompletionClient) endpoint(deployment string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions", c.baseURL, deployment)
}

func (c *ChatCompletionClient) transportError(ctx context.Context, err error, message string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message+": request cancelled", err, "5b0c2e7d-8a1f-4d39-9c64-2e7f1a8b3d50")
	}
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, err, "c2e9a4f1-6b3d-4e8a-a7c5-9d1f3b6e2a84")
}

type providerErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// errorFromResponse keeps the provider status and correlation id on the error so
// the HTTP layer can mirror them.
func (c *ChatCompletionClient) errorFromResponse(ctx context.Context, resp *resty.Response, message string) error {
	fields := map[string]any{
		platformerrors.ContextKeyProviderStatus: statusCode(resp),
	}
	if resp == nil || resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, nil, "3476dd55-5fc0-4653-bd10-665895ecc099", fields)
	}
	if id := resp.Header().Get(correlationHeader); id != "" {
		fields[correlationHeader] = id
	}
	defer resp.RawResponse.Body.Close()
	body, err := io.ReadAll(resp.RawResponse.Body)
	if err != nil {
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, nil, "8cd2cae7-9ad9-40fe-ac00-8f9b24251064", fields)
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" && !resp.Request.DoNotParseResponse {
		body = []byte(resp.String())
		trimmed = strings.TrimSpace(string(body))
	}
	if trimmed == "" {
		return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, nil, "b8797de4-38cb-4bd9-9ae8-b9a04e70f6ab", fields)
	}
	var parsed providerErrorBody
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		trimmed = parsed.Error.Message
	}
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, fmt.Sprintf("%s: %s", message, trimmed), nil, "a1f46e0d-4017-4411-ac05-987946c3066d", fields)
}

// ===============================================
// Stream
// ===============================================

// ChatCompletionStream yields one Completion per server-sent data line.
type ChatCompletionStream struct {
	ctx           context.Context
	body          io.ReadCloser
	scanner       *bufio.Scanner
	correlationID string
	name          string
	closed        bool
}

// CorrelationID is the provider request id of the stream.
func (s *ChatCompletionStream) CorrelationID() string {
	return s.correlationID
}

// Recv returns the next chunk, or io.EOF after the done marker or the end of
// the body. Chunks without choices, such as the prompt filter results Azure
// sends first, are returned as they are.
func (s *ChatCompletionStream) Recv() (*Completion, error) {
	for s.scanner.Scan() {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		data, found := strings.CutPrefix(strings.TrimSpace(s.scanner.Text()), dataPrefix)
		if !found {
			continue
		}
		if data == doneMarker {
			return nil, io.EOF
		}
		var chunk Completion
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, platformerrors.NewError(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "malformed stream chunk", err, "7e4b1c9a-2d6f-4a8e-b3c5-6f9d2a1e7b48")
		}
		chunk.CorrelationID = s.correlationID
		return &chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, platformerrors.NewError(s.ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "stream read failed", err, "4d8a2f6e-1c9b-4e7a-8b3d-5a2e9c1f6d73")
	}
	return nil, io.EOF
}

func (s *ChatCompletionStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.body.Close(); err != nil {
		log := logger.GetLogger()
		log.Error().Err(err).Str("client", s.name).Msg("unable to close response body")
		return err
	}
	return nil
}

func normalizeBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

func statusCode(resp *resty.Response) int {
	if resp == nil {
		return http.StatusBadGateway
	}
	return resp.StatusCode()
}
