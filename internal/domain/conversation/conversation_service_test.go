package conversation

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

type memoryStore struct {
	conversations map[string]*Conversation
	messages      map[string]*Message
	deleteErr     func(id string) error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{conversations: map[string]*Conversation{}, messages: map[string]*Message{}}
}

func (m *memoryStore) UpsertConversation(_ context.Context, c *Conversation) error {
	copied := *c
	m.conversations[c.ID] = &copied
	return nil
}

func (m *memoryStore) GetConversation(_ context.Context, userID, id string) (*Conversation, error) {
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (m *memoryStore) ListConversations(_ context.Context, filter ListFilter) ([]*Conversation, error) {
	var out []*Conversation
	for _, c := range m.conversations {
		if filter.Matches(c) {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if filter.Offset >= len(out) {
		return []*Conversation{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryStore) TouchConversation(_ context.Context, userID, id string, at time.Time) (bool, error) {
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return false, nil
	}
	c.UpdatedAt = at
	return true, nil
}

func (m *memoryStore) DeleteConversation(_ context.Context, _ string, id string) error {
	delete(m.conversations, id)
	return nil
}

func (m *memoryStore) UpsertMessage(_ context.Context, msg *Message) error {
	copied := *msg
	m.messages[msg.ID] = &copied
	return nil
}

func (m *memoryStore) GetMessage(_ context.Context, userID, id string) (*Message, error) {
	msg, ok := m.messages[id]
	if !ok || msg.UserID != userID {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

func (m *memoryStore) ListMessages(_ context.Context, userID, conversationID string) ([]*Message, error) {
	var out []*Message
	for _, msg := range m.messages {
		if msg.UserID == userID && msg.ConversationID == conversationID {
			copied := *msg
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) DeleteMessage(_ context.Context, _ string, id string) error {
	if m.deleteErr != nil {
		if err := m.deleteErr(id); err != nil {
			return err
		}
	}
	delete(m.messages, id)
	return nil
}

func (m *memoryStore) Ensure(context.Context) HealthReport {
	return HealthReport{OK: true}
}

// frozenClock returns the same instant on every call.
func frozenClock(s *ConversationService) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.clock = &monotonicClock{now: func() time.Time { return fixed }}
}

func TestMessagesKeepCreationOrder(t *testing.T) {
	store := newMemoryStore()
	service := NewConversationService(store, Config{})
	frozenClock(service)
	ctx := context.Background()

	conv, err := service.CreateConversation(ctx, "alice", "title", nil)
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := service.CreateMessage(ctx, "", conv.ID, "alice", "user", content.NewText(text))
		require.NoError(t, err)
	}

	messages, err := service.GetMessages(ctx, "alice", conv.ID)
	require.NoError(t, err)
	var texts []string
	for _, msg := range messages {
		texts = append(texts, msg.Content.PlainText())
	}
	assert.Equal(t, []string{"one", "two", "three", "four"}, texts)

	stored, err := service.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, messages[3].CreatedAt, stored.UpdatedAt)
}

func TestListOrdersByMostRecentlyUpdated(t *testing.T) {
	store := newMemoryStore()
	service := NewConversationService(store, Config{})
	ctx := context.Background()

	first, err := service.CreateConversation(ctx, "alice", "first", nil)
	require.NoError(t, err)
	second, err := service.CreateConversation(ctx, "alice", "second", nil)
	require.NoError(t, err)
	_, err = service.CreateMessage(ctx, "", first.ID, "alice", "user", content.NewText("bump"))
	require.NoError(t, err)

	list, err := service.ListConversations(ctx, "alice", 0, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestListDefaultEnvironmentIncludesLegacyRows(t *testing.T) {
	store := newMemoryStore()
	service := NewConversationService(store, Config{})
	ctx := context.Background()

	defaultID, otherID := "default", "sales"
	legacy, err := service.CreateConversation(ctx, "alice", "legacy", nil)
	require.NoError(t, err)
	withDefault, err := service.CreateConversation(ctx, "alice", "default", &defaultID)
	require.NoError(t, err)
	_, err = service.CreateConversation(ctx, "alice", "sales", &otherID)
	require.NoError(t, err)

	list, err := service.ListConversations(ctx, "alice", 0, "default")
	require.NoError(t, err)
	var ids []string
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{legacy.ID, withDefault.ID}, ids)

	list, err = service.ListConversations(ctx, "alice", 0, "sales")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateMessageWithoutConversation(t *testing.T) {
	service := NewConversationService(newMemoryStore(), Config{})
	_, err := service.CreateMessage(context.Background(), "", "missing", "alice", "user", content.NewText("hi"))
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestUpdateMessageFeedback(t *testing.T) {
	store := newMemoryStore()
	service := NewConversationService(store, Config{FeedbackEnabled: true})
	ctx := context.Background()

	_, err := service.UpdateMessageFeedback(ctx, "alice", "nope", "positive")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	conv, err := service.CreateConversation(ctx, "alice", "t", nil)
	require.NoError(t, err)
	msg, err := service.CreateMessage(ctx, "m1", conv.ID, "alice", "assistant", content.NewText("answer"))
	require.NoError(t, err)
	require.NotNil(t, msg.Feedback)
	assert.Equal(t, "", *msg.Feedback)

	updated, err := service.UpdateMessageFeedback(ctx, "alice", "m1", "positive")
	require.NoError(t, err)
	assert.Equal(t, "positive", *updated.Feedback)

	// another user cannot see it
	_, err = service.UpdateMessageFeedback(ctx, "bob", "m1", "negative")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	messages, err := service.GetMessages(ctx, "alice", conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "positive", *messages[0].Feedback)
}

func TestDeleteConversationCascadesAndIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	service := NewConversationService(store, Config{})
	ctx := context.Background()

	conv, err := service.CreateConversation(ctx, "alice", "t", nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := service.CreateMessage(ctx, "", conv.ID, "alice", "user", content.NewText("x"))
		require.NoError(t, err)
	}

	require.NoError(t, service.DeleteConversation(ctx, "alice", conv.ID))
	assert.Empty(t, store.messages)
	assert.Empty(t, store.conversations)

	require.NoError(t, service.DeleteConversation(ctx, "alice", conv.ID))
}

func TestDeleteAllContinuesPastFailures(t *testing.T) {
	store := newMemoryStore()
	service := NewConversationService(store, Config{})
	ctx := context.Background()

	a, err := service.CreateConversation(ctx, "alice", "a", nil)
	require.NoError(t, err)
	b, err := service.CreateConversation(ctx, "alice", "b", nil)
	require.NoError(t, err)
	_, err = service.CreateMessage(ctx, "bad", a.ID, "alice", "user", content.NewText("x"))
	require.NoError(t, err)
	_, err = service.CreateMessage(ctx, "", b.ID, "alice", "user", content.NewText("y"))
	require.NoError(t, err)

	store.deleteErr = func(id string) error {
		if id == "bad" {
			return errors.New("throttled")
		}
		return nil
	}
	deleted, err := service.DeleteAllForUser(ctx, "alice")
	require.Error(t, err)
	assert.Equal(t, 1, deleted)
	assert.Contains(t, store.conversations, a.ID)
	assert.NotContains(t, store.conversations, b.ID)

	// a retry completes the job
	store.deleteErr = nil
	deleted, err = service.DeleteAllForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Empty(t, store.conversations)

	deleted, err = service.DeleteAllForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRenameConversation(t *testing.T) {
	service := NewConversationService(newMemoryStore(), Config{})
	ctx := context.Background()
	conv, err := service.CreateConversation(ctx, "alice", "old", nil)
	require.NoError(t, err)

	renamed, err := service.RenameConversation(ctx, "alice", conv.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", renamed.Title)

	_, err = service.RenameConversation(ctx, "bob", conv.ID, "stolen")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))

	_, err = service.RenameConversation(ctx, "alice", conv.ID, " ")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestUnconfiguredService(t *testing.T) {
	service := NewConversationService(nil, Config{})
	_, err := service.ListConversations(context.Background(), "alice", 0, "")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotConfigured))
	assert.Equal(t, HealthNotConfigured, service.Ensure(context.Background()).Kind)
}
