package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/envchat-api/internal/domain/completion"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

func promptflowServer(t *testing.T, status int, reply string, received *map[string]any, auth *string) *PromptflowClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if received != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(received))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, reply)
	}))
	t.Cleanup(server.Close)
	return NewPromptflowClient(PromptflowConfig{
		Endpoint:       server.URL + "/score",
		APIKey:         "flow-key",
		Timeout:        5 * time.Second,
		RequestField:   "query",
		ResponseField:  "reply",
		CitationsField: "documents",
	})
}

func TestPromptflowSendsQuestionAndHistory(t *testing.T) {
	var received map[string]any
	var auth string
	client := promptflowServer(t, http.StatusOK, `{"reply":"Paris","documents":[{"title":"France"}]}`, &received, &auth)

	answer, err := client.Answer(context.Background(), "and its capital?", []completion.FlowTurn{
		{Question: "tell me about France", Answer: "France is a country."},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer flow-key", auth)
	assert.Equal(t, "and its capital?", received["query"])
	assert.Equal(t, []any{map[string]any{
		"inputs":  map[string]any{"query": "tell me about France"},
		"outputs": map[string]any{"reply": "France is a country."},
	}}, received["chat_history"])

	assert.Equal(t, "Paris", answer.Answer)
	assert.JSONEq(t, `[{"title":"France"}]`, string(answer.Citations))
}

func TestPromptflowSendsEmptyHistory(t *testing.T) {
	var received map[string]any
	client := promptflowServer(t, http.StatusOK, `{"reply":"hi"}`, &received, nil)

	answer, err := client.Answer(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{}, received["chat_history"])
	assert.Equal(t, "hi", answer.Answer)
	assert.Nil(t, answer.Citations)
}

func TestPromptflowErrorField(t *testing.T) {
	client := promptflowServer(t, http.StatusOK, `{"error":"flow crashed"}`, nil, nil)

	_, err := client.Answer(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
	assert.Contains(t, err.Error(), "flow crashed")
}

func TestPromptflowKeepsStatus(t *testing.T) {
	client := promptflowServer(t, http.StatusTooManyRequests, `{"message":"slow down"}`, nil, nil)

	_, err := client.Answer(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
	assert.Equal(t, http.StatusTooManyRequests, platformerrors.ProviderStatus(err))
}
