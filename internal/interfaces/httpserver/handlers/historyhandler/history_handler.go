package historyhandler

import (
	"context"
	"fmt"
	"net/http"

	"jan-server/services/envchat-api/internal/domain/conversation"
	"jan-server/services/envchat-api/internal/infrastructure/metrics"
	historyrequests "jan-server/services/envchat-api/internal/interfaces/httpserver/requests/history"
	historyresponses "jan-server/services/envchat-api/internal/interfaces/httpserver/responses/history"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// History is the conversation history surface used by the handler.
type History interface {
	GetConversation(ctx context.Context, userID, conversationID string) (*conversation.Conversation, error)
	ListConversations(ctx context.Context, userID string, offset int, environmentID string) ([]*conversation.Conversation, error)
	RenameConversation(ctx context.Context, userID, conversationID, title string) (*conversation.Conversation, error)
	UpdateMessageFeedback(ctx context.Context, userID, messageID, feedback string) (*conversation.Message, error)
	GetMessages(ctx context.Context, userID, conversationID string) ([]*conversation.Message, error)
	DeleteMessages(ctx context.Context, userID, conversationID string) error
	DeleteConversation(ctx context.Context, userID, conversationID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	Ensure(ctx context.Context) conversation.HealthReport
}

// HistoryHandler serves the chat history endpoints.
type HistoryHandler struct {
	history History
}

func NewHistoryHandler(history History) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// List returns one page of the user's conversations, most recently updated
// first. An empty page is a not found error.
func (h *HistoryHandler) List(ctx context.Context, userID string, params historyrequests.ListQueryParams) ([]*conversation.Conversation, error) {
	conversations, err := h.history.ListConversations(ctx, userID, params.Offset, params.EnvironmentID)
	metrics.RecordHistoryOperation("list", err)
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("No conversations for %s were found", userID), nil, "3e8a5c2f-7d1b-4f69-a0c4-9b6e2d8f1a73")
	}
	return conversations, nil
}

// Read returns the messages of a conversation the user owns.
func (h *HistoryHandler) Read(ctx context.Context, userID, conversationID string) (*historyresponses.ReadResponse, error) {
	if _, err := h.history.GetConversation(ctx, userID, conversationID); err != nil {
		metrics.RecordHistoryOperation("read", err)
		return nil, err
	}
	messages, err := h.history.GetMessages(ctx, userID, conversationID)
	metrics.RecordHistoryOperation("read", err)
	if err != nil {
		return nil, err
	}
	response := historyresponses.NewReadResponse(conversationID, messages)
	return &response, nil
}

// Rename retitles a conversation.
func (h *HistoryHandler) Rename(ctx context.Context, userID string, req historyrequests.RenameRequest) (*conversation.Conversation, error) {
	conv, err := h.history.RenameConversation(ctx, userID, req.ConversationID, req.Title)
	metrics.RecordHistoryOperation("rename", err)
	return conv, err
}

// Feedback attaches feedback to a stored message.
func (h *HistoryHandler) Feedback(ctx context.Context, userID string, req historyrequests.FeedbackRequest) (*historyresponses.StatusResponse, error) {
	message, err := h.history.UpdateMessageFeedback(ctx, userID, req.MessageID, req.MessageFeedback)
	metrics.RecordHistoryOperation("feedback", err)
	if err != nil {
		return nil, err
	}
	return &historyresponses.StatusResponse{
		Message:   fmt.Sprintf("Successfully updated message with feedback %s", req.MessageFeedback),
		MessageID: message.ID,
	}, nil
}

// Delete removes a conversation and its messages.
func (h *HistoryHandler) Delete(ctx context.Context, userID, conversationID string) (*historyresponses.StatusResponse, error) {
	err := h.history.DeleteConversation(ctx, userID, conversationID)
	metrics.RecordHistoryOperation("delete", err)
	if err != nil {
		return nil, err
	}
	return &historyresponses.StatusResponse{
		Message:        "Successfully deleted conversation and messages",
		ConversationID: conversationID,
	}, nil
}

// DeleteAll removes every conversation of the user. Having none is not an error.
func (h *HistoryHandler) DeleteAll(ctx context.Context, userID string) (*historyresponses.StatusResponse, error) {
	_, err := h.history.DeleteAllForUser(ctx, userID)
	metrics.RecordHistoryOperation("delete_all", err)
	if err != nil {
		return nil, err
	}
	return &historyresponses.StatusResponse{
		Message: fmt.Sprintf("Successfully deleted conversation and messages for user %s", userID),
	}, nil
}

// Clear removes the messages of a conversation and keeps the conversation.
func (h *HistoryHandler) Clear(ctx context.Context, userID, conversationID string) (*historyresponses.StatusResponse, error) {
	err := h.history.DeleteMessages(ctx, userID, conversationID)
	metrics.RecordHistoryOperation("clear", err)
	if err != nil {
		return nil, err
	}
	return &historyresponses.StatusResponse{
		Message:        "Successfully deleted messages in conversation",
		ConversationID: conversationID,
	}, nil
}

// Ensure probes the history store and maps the outcome to a status and message.
func (h *HistoryHandler) Ensure(ctx context.Context) (int, string) {
	report := h.history.Ensure(ctx)
	metrics.SetHistoryHealth(report.OK)
	if report.OK {
		return http.StatusOK, "Chat history is configured and working"
	}
	switch report.Kind {
	case conversation.HealthNotConfigured:
		return http.StatusNotFound, "Chat history is not configured"
	case conversation.HealthUnreachable:
		return http.StatusUnauthorized, report.Diagnostic
	case conversation.HealthDatabaseMissing, conversation.HealthCollectionMissing:
		return http.StatusUnprocessableEntity, report.Diagnostic
	default:
		return http.StatusInternalServerError, "Chat history is not working"
	}
}
