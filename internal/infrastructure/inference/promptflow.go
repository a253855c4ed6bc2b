package inference

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"resty.dev/v3"

	"jan-server/services/envchat-api/internal/domain/completion"
	"jan-server/services/envchat-api/internal/utils/httpclients"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// PromptflowConfig points at a deployed Promptflow endpoint. The field names
// are the flow's input, output and citation keys.
type PromptflowConfig struct {
	Endpoint       string
	APIKey         string
	Timeout        time.Duration
	RequestField   string
	ResponseField  string
	CitationsField string
}

// PromptflowClient answers chat turns through a Promptflow endpoint.
type PromptflowClient struct {
	client *resty.Client
	cfg    PromptflowConfig
}

var _ completion.Flow = (*PromptflowClient)(nil)

func NewPromptflowClient(cfg PromptflowConfig) *PromptflowClient {
	return &PromptflowClient{
		client: httpclients.NewClient("promptflow", cfg.Timeout),
		cfg:    cfg,
	}
}

type flowHistoryEntry struct {
	Inputs  map[string]string `json:"inputs"`
	Outputs map[string]string `json:"outputs"`
}

// Answer posts question with the earlier turns as chat_history and reads the
// reply and citations from the configured fields.
func (c *PromptflowClient) Answer(ctx context.Context, question string, history []completion.FlowTurn) (*completion.FlowAnswer, error) {
	chatHistory := make([]flowHistoryEntry, 0, len(history))
	for _, turn := range history {
		chatHistory = append(chatHistory, flowHistoryEntry{
			Inputs:  map[string]string{c.cfg.RequestField: turn.Question},
			Outputs: map[string]string{c.cfg.ResponseField: turn.Answer},
		})
	}
	body := map[string]any{
		c.cfg.RequestField: question,
		"chat_history":     chatHistory,
	}

	var reply map[string]json.RawMessage
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+c.cfg.APIKey).
		SetBody(body).
		SetResult(&reply).
		Post(c.cfg.Endpoint)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "promptflow request failed", err, "6e2b9d4a-1c7f-4a8e-b5d3-9f2c6a1e7b48")
	}
	if resp.IsError() {
		fields := map[string]any{platformerrors.ContextKeyProviderStatus: resp.StatusCode()}
		message := "promptflow request failed"
		if text := strings.TrimSpace(resp.String()); text != "" {
			message += ": " + text
		}
		return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, nil, "a4d8f2c6-3e9b-4b1a-8c7d-2e5f9a3b6c14", fields)
	}
	if reply == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "promptflow returned an empty response", nil, "d7c1a5e9-4f2b-4e6d-9a8c-3b7f1e5d2a96")
	}
	if raw, ok := reply["error"]; ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "promptflow error: "+rawText(raw), nil, "f1e6b3d8-7a2c-4d9f-b4e1-6c8a2d5f9b37")
	}

	answer := &completion.FlowAnswer{}
	if raw, ok := reply[c.cfg.ResponseField]; ok {
		answer.Answer = rawText(raw)
	}
	if raw, ok := reply[c.cfg.CitationsField]; ok && string(raw) != "null" {
		answer.Citations = raw
	}
	return answer, nil
}

// rawText unquotes a JSON string and returns any other value as it is.
func rawText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}
