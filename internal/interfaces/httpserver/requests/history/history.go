package historyrequests

// ConversationRequest addresses one conversation.
type ConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

// RenameRequest retitles a conversation.
type RenameRequest struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
}

// FeedbackRequest attaches a feedback label to a stored message.
type FeedbackRequest struct {
	MessageID       string `json:"message_id"`
	MessageFeedback string `json:"message_feedback"`
}

// ListQueryParams pages through a user's conversations.
type ListQueryParams struct {
	Offset        int    `form:"offset" binding:"gte=0"`
	EnvironmentID string `form:"env"`
}
