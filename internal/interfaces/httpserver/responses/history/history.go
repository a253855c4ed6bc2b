package historyresponses

import (
	"time"

	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/domain/conversation"
)

// MessageResponse is a stored message as returned by the read endpoint.
type MessageResponse struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   content.Content `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
	Feedback  *string         `json:"feedback"`
}

// ReadResponse lists the messages of one conversation in insertion order.
type ReadResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
}

// StatusResponse is the acknowledgement returned by mutating endpoints.
type StatusResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// SuccessResponse acknowledges a persisted assistant turn.
type SuccessResponse struct {
	Success bool `json:"success"`
}

func NewReadResponse(conversationID string, messages []*conversation.Message) ReadResponse {
	items := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		items = append(items, MessageResponse{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
			Feedback:  msg.Feedback,
		})
	}
	return ReadResponse{ConversationID: conversationID, Messages: items}
}
