package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// Config holds the history behaviour switches.
type Config struct {
	FeedbackEnabled bool
	PageSize        int
}

// ConversationService handles conversation history on top of a Store.
type ConversationService struct {
	store Store
	cfg   Config
	clock *monotonicClock
	log   zerolog.Logger
}

// NewConversationService creates the service. store may be nil when no history
// store is configured; every call then fails with NOT_CONFIGURED.
func NewConversationService(store Store, cfg Config) *ConversationService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	return &ConversationService{
		store: store,
		cfg:   cfg,
		clock: &monotonicClock{now: time.Now},
		log:   logger.Component("conversation_service"),
	}
}

// Configured reports whether a history store is available.
func (s *ConversationService) Configured() bool {
	return s.store != nil
}

// FeedbackEnabled reports whether message feedback is collected.
func (s *ConversationService) FeedbackEnabled() bool {
	return s.cfg.FeedbackEnabled
}

// ===============================================
// Conversations
// ===============================================

// CreateConversation starts a new conversation owned by userID.
func (s *ConversationService) CreateConversation(ctx context.Context, userID, title string, environmentID *string) (*Conversation, error) {
	if err := s.ensureConfigured(ctx); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	conv := &Conversation{
		ID:            uuid.NewString(),
		Type:          TypeConversation,
		UserID:        userID,
		Title:         title,
		EnvironmentID: environmentID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.UpsertConversation(ctx, conv); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create conversation")
	}
	return conv, nil
}

// GetConversation returns the conversation or NOT_FOUND, including when another
// user owns it.
func (s *ConversationService) GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	if err := s.ensureConfigured(ctx); err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load conversation")
	}
	if conv == nil {
		return nil, conversationNotFound(ctx, conversationID)
	}
	return conv, nil
}

// ListConversations returns one page of userID's conversations, most recently
// updated first.
func (s *ConversationService) ListConversations(ctx context.Context, userID string, offset int, environmentID string) ([]*Conversation, error) {
	if offset < 0 {
		offset = 0
	}
	return s.list(ctx, ListFilter{UserID: userID, Offset: offset, Limit: s.cfg.PageSize, EnvironmentID: environmentID})
}

func (s *ConversationService) list(ctx context.Context, filter ListFilter) ([]*Conversation, error) {
	if err := s.ensureConfigured(ctx); err != nil {
		return nil, err
	}
	conversations, err := s.store.ListConversations(ctx, filter)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list conversations")
	}
	return conversations, nil
}

// RenameConversation replaces the title of a conversation.
func (s *ConversationService) RenameConversation(ctx context.Context, userID, conversationID, title string) (*Conversation, error) {
	if strings.TrimSpace(title) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "title is required", nil, "8d4f2b6a-1e9c-4a7d-b3f5-6c2e8a4d1b90")
	}
	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Title = title
	if err := s.store.UpsertConversation(ctx, conv); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to rename conversation")
	}
	return conv, nil
}

// ===============================================
// Messages
// ===============================================

// CreateMessage stores a message and then moves the parent's updatedAt to the
// message timestamp. The two writes are not atomic: a failure in between leaves
// the parent with a stale updatedAt, which only affects list ordering.
func (s *ConversationService) CreateMessage(ctx context.Context, id, conversationID, userID, role string, body content.Content) (*Message, error) {
	if err := s.ensureConfigured(ctx); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	now := s.clock.Now()
	message := &Message{
		ID:             id,
		Type:           TypeMessage,
		UserID:         userID,
		ConversationID: conversationID,
		Role:           role,
		Content:        body,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.cfg.FeedbackEnabled {
		empty := ""
		message.Feedback = &empty
	}

	if err := s.store.UpsertMessage(ctx, message); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create message")
	}

	found, err := s.store.TouchConversation(ctx, userID, conversationID, message.CreatedAt)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update conversation timestamp")
	}
	if !found {
		return nil, conversationNotFound(ctx, conversationID)
	}
	return message, nil
}

// UpdateMessageFeedback attaches feedback to a message. Concurrent updates are last
// writer wins.
func (s *ConversationService) UpdateMessageFeedback(ctx context.Context, userID, messageID, feedback string) (*Message, error) {
	if err := s.ensureConfigured(ctx); err != nil {
		return nil, err
	}
	message, err := s.store.GetMessage(ctx, userID, messageID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load message")
	}
	if message == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("Unable to update message %s. It either does not exist or the user does not have access to it.", messageID),
			nil, "2c8e4a6f-9b1d-4e3a-a5c7-8f1b3d5e7a29")
	}
	message.Feedback = &feedback
	message.UpdatedAt = s.clock.Now()
	if err := s.store.UpsertMessage(ctx, message); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to update message feedback")
	}
	return message, nil
}

// GetMessages returns the conversation's messages in creation order.
func (s *ConversationService) GetMessages(ctx context.Context, userID, conversationID string) ([]*Message, error) {
	if err := s.ensureConfigured(ctx); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, userID, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to load messages")
	}
	return messages, nil
}

// ===============================================
// Deletes
// ===============================================

// DeleteMessages removes every message of a conversation. Each message is deleted
// independently; failures are collected and the remaining rows are still
// attempted, so a retry finishes the job.
func (s *ConversationService) DeleteMessages(ctx context.Context, userID, conversationID string) error {
	messages, err := s.GetMessages(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	var errs []error
	for _, message := range messages {
		if err := s.store.DeleteMessage(ctx, userID, message.ID); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", message.ID, err))
		}
	}
	if len(errs) > 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeDatabaseError,
			fmt.Sprintf("failed to delete %d of %d messages", len(errs), len(messages)),
			errors.Join(errs...), "6b2d8f4a-3c7e-4a1b-9e5d-2f8a6c4b1e73")
	}
	return nil
}

// DeleteConversation removes a conversation and its messages. Deleting an absent
// conversation succeeds.
func (s *ConversationService) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if err := s.DeleteMessages(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, userID, conversationID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to delete conversation")
	}
	return nil
}

// DeleteAllForUser removes every conversation of userID and returns how many were
// deleted. It continues past individual failures and reports them together.
func (s *ConversationService) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	conversations, err := s.list(ctx, ListFilter{UserID: userID})
	if err != nil {
		return 0, err
	}
	deleted := 0
	var errs []error
	for _, conv := range conversations {
		if err := s.DeleteConversation(ctx, userID, conv.ID); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to delete conversation")
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	if len(errs) > 0 {
		return deleted, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeDatabaseError,
			fmt.Sprintf("failed to delete %d of %d conversations", len(errs), len(conversations)),
			errors.Join(errs...), "9f3a7c1e-5d2b-4e8a-b6c4-1a7e3f9d5b28")
	}
	return deleted, nil
}

// ===============================================
// Health
// ===============================================

// Ensure probes the history store.
func (s *ConversationService) Ensure(ctx context.Context) HealthReport {
	if s.store == nil {
		return HealthReport{Kind: HealthNotConfigured, Diagnostic: "chat history is not configured"}
	}
	return s.store.Ensure(ctx)
}

func (s *ConversationService) ensureConfigured(ctx context.Context) error {
	if s.store == nil {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotConfigured, "chat history is not configured", nil, "4e1c9a7b-2f6d-4b3e-8a5c-7d9f1b3e6a42")
	}
	return nil
}

func conversationNotFound(ctx context.Context, conversationID string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
		fmt.Sprintf("Conversation %s was not found. It either does not exist or the logged in user does not have access to it.", conversationID),
		nil, "1d7f3b9e-6a2c-4e8b-9f4d-3b1e7a5c9d62")
}

// monotonicClock hands out strictly increasing UTC timestamps so messages written
// in quick succession keep their creation order.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
