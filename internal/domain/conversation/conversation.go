package conversation

import (
	"context"
	"time"

	"jan-server/services/envchat-api/internal/domain/content"
)

// Document types stored in the history collection.
const (
	TypeConversation = "conversation"
	TypeMessage      = "message"
)

// DefaultEnvironmentID matches conversations created before environments existed.
const DefaultEnvironmentID = "default"

// Conversation is the index root of a message thread.
type Conversation struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	UserID        string    `json:"userId"`
	Title         string    `json:"title"`
	EnvironmentID *string   `json:"environmentId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Message is one stored turn. Only Feedback is ever changed after insert.
type Message struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	UserID         string          `json:"userId"`
	ConversationID string          `json:"conversationId"`
	Role           string          `json:"role"`
	Content        content.Content `json:"content"`
	Feedback       *string         `json:"feedback,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	// Seq orders messages within a conversation. Stores assign it on first
	// insert and keep it on every rewrite.
	Seq int64 `json:"-"`
}

// ListFilter selects a page of a user's conversations. A zero Limit means no limit.
type ListFilter struct {
	UserID        string
	Offset        int
	Limit         int
	EnvironmentID string
}

// Matches reports whether c belongs in the listing. Filtering by the default
// environment also matches conversations with no environment at all.
func (f ListFilter) Matches(c *Conversation) bool {
	if c.UserID != f.UserID || c.Type != TypeConversation {
		return false
	}
	if f.EnvironmentID == "" {
		return true
	}
	if c.EnvironmentID == nil {
		return f.EnvironmentID == DefaultEnvironmentID
	}
	return *c.EnvironmentID == f.EnvironmentID
}

// HealthKind classifies a failed history store probe.
type HealthKind string

const (
	HealthUnreachable       HealthKind = "unreachable"
	HealthDatabaseMissing   HealthKind = "database_missing"
	HealthCollectionMissing HealthKind = "collection_missing"
	HealthNotConfigured     HealthKind = "not_configured"
)

// HealthReport is the result of a history store probe.
type HealthReport struct {
	OK         bool
	Kind       HealthKind
	Diagnostic string
}

// Store persists conversations and messages partitioned by user id. Lookups
// return nil without error when the document is absent. Deletes of absent
// documents succeed.
type Store interface {
	UpsertConversation(ctx context.Context, conversation *Conversation) error
	GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error)
	ListConversations(ctx context.Context, filter ListFilter) ([]*Conversation, error)
	TouchConversation(ctx context.Context, userID, conversationID string, at time.Time) (bool, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) error

	UpsertMessage(ctx context.Context, message *Message) error
	GetMessage(ctx context.Context, userID, messageID string) (*Message, error)
	ListMessages(ctx context.Context, userID, conversationID string) ([]*Message, error)
	DeleteMessage(ctx context.Context, userID, messageID string) error

	Ensure(ctx context.Context) HealthReport
}
