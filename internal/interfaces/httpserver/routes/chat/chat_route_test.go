package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/envchat-api/internal/config"
	"jan-server/services/envchat-api/internal/domain/completion"
	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/domain/conversation"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/chathandler"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/middlewares"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

type stubCompleter struct {
	outcome func() *completion.Outcome
}

func (s *stubCompleter) Run(context.Context, []completion.Message, *environment.Environment, ...completion.BuildOption) (*completion.Outcome, error) {
	return s.outcome(), nil
}

func (s *stubCompleter) Title(context.Context, []completion.Message, *environment.Environment) string {
	return "title"
}

type stubResolver struct{}

func (stubResolver) Configured() bool { return false }

func (stubResolver) ResolveOne(context.Context, string, string) (*environment.Environment, bool, error) {
	return nil, false, nil
}

type stubHistory struct {
	roles []string
}

func (s *stubHistory) CreateConversation(_ context.Context, userID, title string, environmentID *string) (*conversation.Conversation, error) {
	return &conversation.Conversation{ID: "conv-1", UserID: userID, Title: title, EnvironmentID: environmentID}, nil
}

func (s *stubHistory) CreateMessage(_ context.Context, id, conversationID, userID, role string, body content.Content) (*conversation.Message, error) {
	s.roles = append(s.roles, role)
	return &conversation.Message{ID: id, ConversationID: conversationID, UserID: userID, Role: role, Content: body}, nil
}

type sliceStream struct {
	fragments []*completion.Result
	closed    bool
}

func (s *sliceStream) Recv() (*completion.Result, error) {
	if len(s.fragments) == 0 {
		return nil, io.EOF
	}
	next := s.fragments[0]
	s.fragments = s.fragments[1:]
	return next, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func newTestEngine(completer chathandler.Completer, history chathandler.HistoryWriter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middlewares.IdentityMiddleware(nil, &config.Config{DevPrincipalID: "dev-user"}, zerolog.Nop()))

	route := NewChatRoute(chathandler.NewChatHandler(completer, stubResolver{}, history, nil))
	route.RegisterRouter(engine, engine.Group("/history"))
	return engine
}

func post(t *testing.T, engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestPostConversationBatch(t *testing.T) {
	completer := &stubCompleter{outcome: func() *completion.Outcome {
		return &completion.Outcome{Result: &completion.Result{
			ID:            "chatcmpl-1",
			Object:        "chat.completion",
			CorrelationID: "apim-1",
			Choices:       []completion.Choice{{Message: &completion.ResultMessage{Role: "assistant", Content: "hello"}, FinishReason: "stop"}},
		}}
	}}
	engine := newTestEngine(completer, &stubHistory{})

	rec := post(t, engine, "/conversation", `{"messages":[{"role":"user","content":"hi"}],"history_metadata":{"conversation_id":"c1"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope completion.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "chatcmpl-1", envelope.ID)
	assert.Equal(t, "apim-1", envelope.CorrelationID)
	assert.Equal(t, "c1", envelope.HistoryMetadata["conversation_id"])
	require.Len(t, envelope.Choices, 1)
	assert.Equal(t, "hello", envelope.Choices[0].Message.Content)
}

func TestPostConversationStreamsNDJSON(t *testing.T) {
	stream := &sliceStream{fragments: []*completion.Result{
		{ID: "f1", Choices: []completion.Choice{{Delta: &completion.ResultMessage{Role: "assistant", Content: "Hel"}}}},
		{ID: "f2", Choices: []completion.Choice{{Delta: &completion.ResultMessage{Content: "lo"}}}},
	}}
	completer := &stubCompleter{outcome: func() *completion.Outcome {
		return &completion.Outcome{Stream: stream}
	}}
	engine := newTestEngine(completer, &stubHistory{})

	rec := post(t, engine, "/conversation", `{"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, completion.ContentTypeNDJSON, rec.Header().Get("Content-Type"))
	assert.True(t, stream.closed)

	var records []completion.Envelope
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var envelope completion.Envelope
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &envelope))
		records = append(records, envelope)
	}
	require.Len(t, records, 3)
	assert.Equal(t, "Hel", records[0].Choices[0].Delta.Content)
	assert.Empty(t, records[0].Choices[0].FinishReason)
	assert.Equal(t, "lo", records[1].Choices[0].Delta.Content)
	assert.EqualValues(t, "stop", records[2].Choices[0].FinishReason)
}

func TestPostConversationMalformedContent(t *testing.T) {
	engine := newTestEngine(&stubCompleter{}, &stubHistory{})

	rec := post(t, engine, "/conversation", `{"messages":[{"role":"user","content":42}]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body platformerrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "malformed_content_error", body.Error.Type)
}

func TestPostConversationRequiresMessages(t *testing.T) {
	engine := newTestEngine(&stubCompleter{}, &stubHistory{})

	rec := post(t, engine, "/conversation", `{"messages":[]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostHistoryGenerateAddsConversationMetadata(t *testing.T) {
	completer := &stubCompleter{outcome: func() *completion.Outcome {
		return &completion.Outcome{Result: &completion.Result{ID: "chatcmpl-2"}}
	}}
	history := &stubHistory{}
	engine := newTestEngine(completer, history)

	rec := post(t, engine, "/history/generate", `{"messages":[{"role":"user","content":"hello"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope completion.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "conv-1", envelope.HistoryMetadata["conversation_id"])
	assert.Equal(t, "title", envelope.HistoryMetadata["title"])
	assert.Equal(t, []string{"user"}, history.roles)
}

func TestPostHistoryUpdate(t *testing.T) {
	history := &stubHistory{}
	engine := newTestEngine(&stubCompleter{}, history)

	rec := post(t, engine, "/history/update", `{"conversation_id":"conv-1","messages":[{"role":"user","content":"q"},{"role":"tool","content":"{}"},{"id":"a1","role":"assistant","content":"a"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, []string{"tool", "assistant"}, history.roles)
}

func TestPostHistoryUpdateWithoutAssistant(t *testing.T) {
	engine := newTestEngine(&stubCompleter{}, &stubHistory{})

	rec := post(t, engine, "/history/update", `{"conversation_id":"conv-1","messages":[{"role":"user","content":"q"}]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No bot messages found")
}
