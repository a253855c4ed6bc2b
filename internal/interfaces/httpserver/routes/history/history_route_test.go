package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/envchat-api/internal/config"
	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/domain/conversation"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/handlers/historyhandler"
	"jan-server/services/envchat-api/internal/interfaces/httpserver/middlewares"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

type fakeHistory struct {
	conversations map[string]*conversation.Conversation
	messages      map[string][]*conversation.Message
	report        conversation.HealthReport
	deletedAll    bool
}

func newFakeHistory() *fakeHistory {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	feedback := "positive"
	return &fakeHistory{
		conversations: map[string]*conversation.Conversation{
			"conv-1": {ID: "conv-1", Type: conversation.TypeConversation, UserID: "dev-user", Title: "First", CreatedAt: created, UpdatedAt: created},
		},
		messages: map[string][]*conversation.Message{
			"conv-1": {
				{ID: "m1", Role: "user", Content: content.NewText("hi"), CreatedAt: created},
				{ID: "m2", Role: "assistant", Content: content.NewText("hello"), Feedback: &feedback, CreatedAt: created.Add(time.Second)},
			},
		},
		report: conversation.HealthReport{OK: true},
	}
}

func notFound(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "not found", nil, "test")
}

func (f *fakeHistory) GetConversation(ctx context.Context, userID, conversationID string) (*conversation.Conversation, error) {
	conv, ok := f.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return nil, notFound(ctx)
	}
	return conv, nil
}

func (f *fakeHistory) ListConversations(_ context.Context, userID string, _ int, _ string) ([]*conversation.Conversation, error) {
	var out []*conversation.Conversation
	for _, conv := range f.conversations {
		if conv.UserID == userID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeHistory) RenameConversation(ctx context.Context, userID, conversationID, title string) (*conversation.Conversation, error) {
	conv, err := f.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Title = title
	return conv, nil
}

func (f *fakeHistory) UpdateMessageFeedback(ctx context.Context, _ string, messageID, feedback string) (*conversation.Message, error) {
	for _, messages := range f.messages {
		for _, msg := range messages {
			if msg.ID == messageID {
				msg.Feedback = &feedback
				return msg, nil
			}
		}
	}
	return nil, notFound(ctx)
}

func (f *fakeHistory) GetMessages(_ context.Context, _ string, conversationID string) ([]*conversation.Message, error) {
	return f.messages[conversationID], nil
}

func (f *fakeHistory) DeleteMessages(_ context.Context, _ string, conversationID string) error {
	delete(f.messages, conversationID)
	return nil
}

func (f *fakeHistory) DeleteConversation(_ context.Context, _ string, conversationID string) error {
	delete(f.messages, conversationID)
	delete(f.conversations, conversationID)
	return nil
}

func (f *fakeHistory) DeleteAllForUser(context.Context, string) (int, error) {
	f.deletedAll = true
	n := len(f.conversations)
	f.conversations = map[string]*conversation.Conversation{}
	return n, nil
}

func (f *fakeHistory) Ensure(context.Context) conversation.HealthReport {
	return f.report
}

func newTestEngine(history historyhandler.History) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middlewares.IdentityMiddleware(nil, &config.Config{DevPrincipalID: "dev-user"}, zerolog.Nop()))
	NewHistoryRoute(historyhandler.NewHistoryHandler(history)).RegisterRouter(engine.Group("/history"))
	return engine
}

func do(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestListConversations(t *testing.T) {
	engine := newTestEngine(newFakeHistory())

	rec := do(engine, http.MethodGet, "/history/list?offset=0", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var conversations []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conversations))
	require.Len(t, conversations, 1)
	assert.Equal(t, "First", conversations[0]["title"])
	assert.Equal(t, "dev-user", conversations[0]["userId"])
}

func TestListConversationsEmptyIsNotFound(t *testing.T) {
	history := newFakeHistory()
	history.conversations = map[string]*conversation.Conversation{}
	engine := newTestEngine(history)

	rec := do(engine, http.MethodGet, "/history/list", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No conversations for dev-user were found")
}

func TestReadConversation(t *testing.T) {
	engine := newTestEngine(newFakeHistory())

	rec := do(engine, http.MethodPost, "/history/read", `{"conversation_id":"conv-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ConversationID string `json:"conversation_id"`
		Messages       []struct {
			ID       string  `json:"id"`
			Role     string  `json:"role"`
			Content  string  `json:"content"`
			Feedback *string `json:"feedback"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conv-1", body.ConversationID)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "hi", body.Messages[0].Content)
	assert.Nil(t, body.Messages[0].Feedback)
	require.NotNil(t, body.Messages[1].Feedback)
	assert.Equal(t, "positive", *body.Messages[1].Feedback)
}

func TestReadUnknownConversation(t *testing.T) {
	engine := newTestEngine(newFakeHistory())

	rec := do(engine, http.MethodPost, "/history/read", `{"conversation_id":"nope"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadRequiresConversationID(t *testing.T) {
	engine := newTestEngine(newFakeHistory())

	rec := do(engine, http.MethodPost, "/history/read", `{}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "conversation_id is required")
}

func TestRenameConversation(t *testing.T) {
	engine := newTestEngine(newFakeHistory())

	rec := do(engine, http.MethodPost, "/history/rename", `{"conversation_id":"conv-1","title":"Renamed"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Renamed"`)

	rec = do(engine, http.MethodPost, "/history/rename", `{"conversation_id":"conv-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageFeedback(t *testing.T) {
	engine := newTestEngine(newFakeHistory())

	rec := do(engine, http.MethodPost, "/history/message_feedback", `{"message_id":"m1","message_feedback":"negative"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Successfully updated message with feedback negative","message_id":"m1"}`, rec.Body.String())

	rec = do(engine, http.MethodPost, "/history/message_feedback", `{"message_id":"zzz","message_feedback":"negative"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(engine, http.MethodPost, "/history/message_feedback", `{"message_id":"m1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAndClear(t *testing.T) {
	history := newFakeHistory()
	engine := newTestEngine(history)

	rec := do(engine, http.MethodPost, "/history/clear", `{"conversation_id":"conv-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Successfully deleted messages in conversation","conversation_id":"conv-1"}`, rec.Body.String())
	assert.Contains(t, history.conversations, "conv-1")
	assert.NotContains(t, history.messages, "conv-1")

	rec = do(engine, http.MethodDelete, "/history/delete", `{"conversation_id":"conv-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, history.conversations, "conv-1")

	rec = do(engine, http.MethodDelete, "/history/delete_all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, history.deletedAll)
	assert.Contains(t, rec.Body.String(), "for user dev-user")
}

func TestEnsureStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		report conversation.HealthReport
		status int
	}{
		{"ok", conversation.HealthReport{OK: true}, http.StatusOK},
		{"not configured", conversation.HealthReport{Kind: conversation.HealthNotConfigured}, http.StatusNotFound},
		{"unreachable", conversation.HealthReport{Kind: conversation.HealthUnreachable, Diagnostic: "dial tcp"}, http.StatusUnauthorized},
		{"database missing", conversation.HealthReport{Kind: conversation.HealthDatabaseMissing, Diagnostic: "no db"}, http.StatusUnprocessableEntity},
		{"collection missing", conversation.HealthReport{Kind: conversation.HealthCollectionMissing, Diagnostic: "no coll"}, http.StatusUnprocessableEntity},
		{"unknown", conversation.HealthReport{Kind: "other"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			history := newFakeHistory()
			history.report = tc.report
			engine := newTestEngine(history)

			rec := do(engine, http.MethodGet, "/history/ensure", "")

			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
