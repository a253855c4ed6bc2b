package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/domain/conversation"
)

func roundTrip(t *testing.T, body content.Content) content.Content {
	t.Helper()
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	doc := newMessageDoc(&conversation.Message{
		ID:             "m1",
		UserID:         "alice",
		ConversationID: "c1",
		Role:           "user",
		Content:        body,
		CreatedAt:      created,
		UpdatedAt:      created,
	})
	data, err := bson.Marshal(doc)
	require.NoError(t, err)

	var stored storedMessage
	require.NoError(t, bson.Unmarshal(data, &stored))
	message, err := stored.toDomain()
	require.NoError(t, err)
	assert.Equal(t, "alice", message.UserID)
	assert.Equal(t, created, message.CreatedAt)
	return message.Content
}

func TestContentSurvivesStorage(t *testing.T) {
	cases := map[string]content.Content{
		"text":     content.NewText("hello"),
		"document": content.NewDocument("summarise this", "page one"),
		"parts": content.NewParts(
			content.Part{Type: content.PartTypeText, Text: "what is this"},
			content.Part{Type: content.PartTypeImageURL, ImageURL: &content.ImageURL{URL: "data:image/png;base64,AAA"}},
		),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, body, roundTrip(t, body))
		})
	}
}

func TestDocumentStoredWithDiscriminator(t *testing.T) {
	data, err := bson.Marshal(newMessageDoc(&conversation.Message{ID: "m1", UserID: "alice", Content: content.NewDocument("q", "ctx")}))
	require.NoError(t, err)

	stored := bson.Raw(data).Lookup("content", "type")
	assert.Equal(t, content.StoredDocumentType, stored.StringValue())
	assert.Equal(t, "alice/m1", bson.Raw(data).Lookup("_id").StringValue())
}

func TestDecodeLegacyStringPair(t *testing.T) {
	data, err := bson.Marshal(bson.D{{Key: "content", Value: bson.A{"question", "document text"}}})
	require.NoError(t, err)

	body, err := decodeContent(bson.Raw(data).Lookup("content"))
	require.NoError(t, err)
	assert.Equal(t, content.NewDocument("question", "document text"), body)
}

func TestDecodeRejectsUnknownContent(t *testing.T) {
	data, err := bson.Marshal(bson.D{{Key: "content", Value: int32(7)}})
	require.NoError(t, err)

	_, err = decodeContent(bson.Raw(data).Lookup("content"))
	var malformed *content.MalformedError
	assert.ErrorAs(t, err, &malformed)
}

func TestListFilter(t *testing.T) {
	all := listFilter(conversation.ListFilter{UserID: "alice"})
	assert.Equal(t, bson.D{
		{Key: "userId", Value: "alice"},
		{Key: "type", Value: conversation.TypeConversation},
	}, all)

	sales := listFilter(conversation.ListFilter{UserID: "alice", EnvironmentID: "sales"})
	assert.Equal(t, bson.E{Key: "environmentId", Value: "sales"}, sales[2])

	legacy := listFilter(conversation.ListFilter{UserID: "alice", EnvironmentID: conversation.DefaultEnvironmentID})
	require.Len(t, legacy, 3)
	assert.Equal(t, "$or", legacy[2].Key)
	assert.Len(t, legacy[2].Value, 3)
}

func TestPointFilterScopesToOwner(t *testing.T) {
	filter := pointFilter("bob", "c1", conversation.TypeConversation)
	assert.Equal(t, "bob/c1", filter[0].Value)
}

func decodeMessage(t *testing.T, doc *messageDoc) *conversation.Message {
	t.Helper()
	data, err := bson.Marshal(doc)
	require.NoError(t, err)
	var stored storedMessage
	require.NoError(t, bson.Unmarshal(data, &stored))
	message, err := stored.toDomain()
	require.NoError(t, err)
	return message
}

func TestFeedbackRewriteKeepsMessageOrder(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 500100000, time.UTC)
	tool := newMessageDoc(&conversation.Message{ID: "t1", UserID: "alice", ConversationID: "c1", Role: "tool", Content: content.NewText("{}"), CreatedAt: created})
	answer := newMessageDoc(&conversation.Message{ID: "a1", UserID: "alice", ConversationID: "c1", Role: "assistant", Content: content.NewText("hi"), CreatedAt: created.Add(time.Microsecond)})
	require.Less(t, tool.TS, answer.TS)

	message := decodeMessage(t, answer)
	assert.Equal(t, answer.TS, message.Seq)
	feedback := "positive"
	message.Feedback = &feedback

	rewritten := newMessageDoc(message)
	assert.Equal(t, answer.TS, rewritten.TS)
	assert.Less(t, tool.TS, rewritten.TS)
	assert.Equal(t, &feedback, decodeMessage(t, rewritten).Feedback)
}
