package mongostore

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/domain/conversation"
)

// documentKey scopes a document id to its owner.
func documentKey(userID, id string) string {
	return userID + "/" + id
}

type conversationDoc struct {
	Key           string    `bson:"_id"`
	ID            string    `bson:"id"`
	Type          string    `bson:"type"`
	UserID        string    `bson:"userId"`
	Title         string    `bson:"title"`
	EnvironmentID *string   `bson:"environmentId,omitempty"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func newConversationDoc(c *conversation.Conversation) *conversationDoc {
	return &conversationDoc{
		Key:           documentKey(c.UserID, c.ID),
		ID:            c.ID,
		Type:          conversation.TypeConversation,
		UserID:        c.UserID,
		Title:         c.Title,
		EnvironmentID: c.EnvironmentID,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (d *conversationDoc) toDomain() *conversation.Conversation {
	return &conversation.Conversation{
		ID:            d.ID,
		Type:          d.Type,
		UserID:        d.UserID,
		Title:         d.Title,
		EnvironmentID: d.EnvironmentID,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

// messageDoc is the write shape. Content holds content.Stored().
type messageDoc struct {
	Key            string    `bson:"_id"`
	ID             string    `bson:"id"`
	Type           string    `bson:"type"`
	UserID         string    `bson:"userId"`
	ConversationID string    `bson:"conversationId"`
	Role           string    `bson:"role"`
	Content        any       `bson:"content"`
	Feedback       *string   `bson:"feedback,omitempty"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
	TS             int64     `bson:"ts"`
}

// newMessageDoc keeps an existing sequence so rewrites never reorder a message.
// createdAt comes back from BSON at millisecond precision and cannot rebuild it.
func newMessageDoc(m *conversation.Message) *messageDoc {
	ts := m.Seq
	if ts == 0 {
		ts = m.CreatedAt.UnixMicro()
	}
	return &messageDoc{
		Key:            documentKey(m.UserID, m.ID),
		ID:             m.ID,
		Type:           conversation.TypeMessage,
		UserID:         m.UserID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content.Stored(),
		Feedback:       m.Feedback,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		TS:             ts,
	}
}

// storedMessage is the read shape; content keeps its raw bson value until its
// type is known.
type storedMessage struct {
	ID             string        `bson:"id"`
	Type           string        `bson:"type"`
	UserID         string        `bson:"userId"`
	ConversationID string        `bson:"conversationId"`
	Role           string        `bson:"role"`
	Content        bson.RawValue `bson:"content"`
	Feedback       *string       `bson:"feedback,omitempty"`
	CreatedAt      time.Time     `bson:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt"`
	TS             int64         `bson:"ts"`
}

func (d *storedMessage) toDomain() (*conversation.Message, error) {
	body, err := decodeContent(d.Content)
	if err != nil {
		return nil, err
	}
	return &conversation.Message{
		ID:             d.ID,
		Type:           d.Type,
		UserID:         d.UserID,
		ConversationID: d.ConversationID,
		Role:           d.Role,
		Content:        body,
		Feedback:       d.Feedback,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
		Seq:            d.TS,
	}, nil
}

// decodeContent rebuilds message content from its stored value: a string, an
// array of parts (or a legacy pair of strings), or a stored document.
func decodeContent(raw bson.RawValue) (content.Content, error) {
	switch raw.Type {
	case bson.TypeString:
		return content.NewText(raw.StringValue()), nil
	case bson.TypeNull, 0:
		return content.NewText(""), nil
	case bson.TypeArray:
		var parts []content.Part
		if err := raw.Unmarshal(&parts); err == nil {
			return content.NewParts(parts...), nil
		}
		var pair []string
		if err := raw.Unmarshal(&pair); err != nil || len(pair) != 2 {
			return content.Content{}, &content.MalformedError{Reason: "stored array content is neither parts nor a document pair"}
		}
		return content.NewDocument(pair[0], pair[1]), nil
	case bson.TypeEmbeddedDocument:
		var doc content.StoredDocument
		if err := raw.Unmarshal(&doc); err != nil {
			return content.Content{}, err
		}
		return content.FromStoredDocument(doc)
	default:
		return content.Content{}, &content.MalformedError{Reason: fmt.Sprintf("unsupported stored content type %s", raw.Type)}
	}
}
