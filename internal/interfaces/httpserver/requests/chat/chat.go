package chatrequests

import "jan-server/services/envchat-api/internal/domain/completion"

// ConversationRequest is the body of every completion endpoint.
type ConversationRequest struct {
	Messages        []completion.Message `json:"messages" binding:"required,min=1"`
	EnvironmentID   string               `json:"environment_id,omitempty"`
	ConversationID  string               `json:"conversation_id,omitempty"`
	HistoryMetadata map[string]any       `json:"history_metadata,omitempty"`
}

// LastMessage returns the final turn of the request.
func (r *ConversationRequest) LastMessage() (completion.Message, bool) {
	if len(r.Messages) == 0 {
		return completion.Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// PreviousMessage returns the turn before the final one.
func (r *ConversationRequest) PreviousMessage() (completion.Message, bool) {
	if len(r.Messages) < 2 {
		return completion.Message{}, false
	}
	return r.Messages[len(r.Messages)-2], true
}
