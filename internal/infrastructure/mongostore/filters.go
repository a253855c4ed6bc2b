package mongostore

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"jan-server/services/envchat-api/internal/domain/conversation"
)

func pointFilter(userID, id, docType string) bson.D {
	return bson.D{
		{Key: "_id", Value: documentKey(userID, id)},
		{Key: "type", Value: docType},
	}
}

func messagesFilter(userID, conversationID string) bson.D {
	return bson.D{
		{Key: "userId", Value: userID},
		{Key: "conversationId", Value: conversationID},
		{Key: "type", Value: conversation.TypeMessage},
	}
}

// listFilter selects a user's conversations. The default environment also
// matches conversations written before environments existed.
func listFilter(filter conversation.ListFilter) bson.D {
	query := bson.D{
		{Key: "userId", Value: filter.UserID},
		{Key: "type", Value: conversation.TypeConversation},
	}
	switch filter.EnvironmentID {
	case "":
	case conversation.DefaultEnvironmentID:
		query = append(query, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "environmentId", Value: conversation.DefaultEnvironmentID}},
			bson.D{{Key: "environmentId", Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: "environmentId", Value: nil}},
		}})
	default:
		query = append(query, bson.E{Key: "environmentId", Value: filter.EnvironmentID})
	}
	return query
}
