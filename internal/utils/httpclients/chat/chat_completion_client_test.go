package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/envchat-api/internal/utils/httpclients"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ChatCompletionClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewChatCompletionClient(httpclients.NewClient("test", 5*time.Second), "test", server.URL+"/")
}

func TestCreateChatCompletion(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt-4o/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-05-01-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "envchat", r.URL.Query().Get("appName"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		assert.Equal(t, "agent/1.0", r.Header.Get("x-ms-useragent"))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("apim-request-id", "corr-1")
		fmt.Fprint(w, `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`)
	})

	result, err := client.CreateChatCompletion(context.Background(),
		Credentials{APIKey: "secret", Token: "ignored"},
		Call{
			Deployment: "gpt-4o",
			APIVersion: "2024-05-01-preview",
			Headers:    map[string]string{"x-ms-useragent": "agent/1.0"},
			Query:      map[string]string{"appName": "envchat"},
		},
		map[string]any{"messages": []any{}},
	)
	require.NoError(t, err)
	assert.Equal(t, "corr-1", result.CorrelationID)
	require.Len(t, result.Choices, 1)
	assert.Equal(t, "hello", result.Choices[0].Message.Content)
	assert.EqualValues(t, "stop", result.Choices[0].FinishReason)
}

func TestCreateChatCompletionUsesBearerToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("api-key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","choices":[]}`)
	})

	_, err := client.CreateChatCompletion(context.Background(), Credentials{Token: "token-1"}, Call{Deployment: "gpt"}, map[string]any{})
	require.NoError(t, err)
}

func TestCreateChatCompletionProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("apim-request-id", "corr-2")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":"429","message":"Rate limit is exceeded"}}`)
	})

	_, err := client.CreateChatCompletion(context.Background(), Credentials{APIKey: "k"}, Call{Deployment: "gpt"}, map[string]any{})
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal))
	assert.Equal(t, http.StatusTooManyRequests, platformerrors.ProviderStatus(err))
	assert.Contains(t, err.Error(), "Rate limit is exceeded")
}

func TestStreamReadsChunksLazily(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "identity", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("apim-request-id", "corr-3")
		fmt.Fprint(w, "data: {\"id\":\"\",\"choices\":[],\"prompt_filter_results\":[{\"prompt_index\":0}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream, err := client.CreateChatCompletionStream(context.Background(), Credentials{APIKey: "k"}, Call{Deployment: "gpt"}, map[string]any{"stream": true})
	require.NoError(t, err)
	defer stream.Close()
	assert.Equal(t, "corr-3", stream.CorrelationID())

	filter, err := stream.Recv()
	require.NoError(t, err)
	assert.Empty(t, filter.Choices)
	assert.Equal(t, "corr-3", filter.CorrelationID)

	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "Hel", first.Choices[0].Delta.Content)
	assert.Equal(t, "corr-3", first.CorrelationID)

	second, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "lo", second.Choices[0].Delta.Content)
	assert.EqualValues(t, "stop", second.Choices[0].FinishReason)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
}

func TestStreamEndsWithoutDoneMarker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"x\"}}]}\n\n")
	})

	stream, err := client.CreateChatCompletionStream(context.Background(), Credentials{}, Call{Deployment: "gpt"}, map[string]any{})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Recv()
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamRejectsErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Access denied"}}`)
	})

	_, err := client.CreateChatCompletionStream(context.Background(), Credentials{APIKey: "bad"}, Call{Deployment: "gpt"}, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, platformerrors.ProviderStatus(err))
	assert.Contains(t, err.Error(), "Access denied")
}
