// Package mongostore keeps conversation history in a single MongoDB collection.
// Conversations and messages share the collection and are told apart by the
// type field. Every document is keyed by its owner so point reads never cross
// users.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"jan-server/services/envchat-api/internal/domain/conversation"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// Config holds the connection settings of the history store.
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements conversation.Store on MongoDB.
type Store struct {
	client     *mongo.Client
	database   string
	collection string
	coll       *mongo.Collection
	log        zerolog.Logger
}

var _ conversation.Store = (*Store)(nil)

// New creates the client without touching the network. mongo.Connect only
// validates options; servers are contacted on first use.
func New(cfg Config) (*Store, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return &Store{
		client:     client,
		database:   cfg.Database,
		collection: cfg.Collection,
		coll:       client.Database(cfg.Database).Collection(cfg.Collection),
		log:        logger.Component("mongostore"),
	}, nil
}

// Ping checks that the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return nil
}

// EnsureIndexes creates the listing and message order indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "type", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "conversationId", Value: 1}, {Key: "ts", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create history indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ===============================================
// Conversations
// ===============================================

func (s *Store) UpsertConversation(ctx context.Context, c *conversation.Conversation) error {
	doc := newConversationDoc(c)
	_, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.Key}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return databaseError(ctx, "failed to upsert conversation", err, "3f6b1d8e-4a2c-4e9b-8d7f-2c5a9e1b4d63")
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, userID, conversationID string) (*conversation.Conversation, error) {
	var doc conversationDoc
	err := s.coll.FindOne(ctx, pointFilter(userID, conversationID, conversation.TypeConversation)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, databaseError(ctx, "failed to read conversation", err, "7a2e9c4b-1d6f-4b8a-9e3c-5f1d7b2a8c46")
	}
	return doc.toDomain(), nil
}

func (s *Store) ListConversations(ctx context.Context, filter conversation.ListFilter) ([]*conversation.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := s.coll.Find(ctx, listFilter(filter), opts)
	if err != nil {
		return nil, databaseError(ctx, "failed to list conversations", err, "c4d8a1f6-9b3e-4c7a-8f2d-6e1b5a9c3d70")
	}
	var docs []conversationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, databaseError(ctx, "failed to decode conversations", err, "e9b3c7a2-5f1d-4a8e-b6c4-3d7f1a9e5b28")
	}
	conversations := make([]*conversation.Conversation, 0, len(docs))
	for i := range docs {
		conversations = append(conversations, docs[i].toDomain())
	}
	return conversations, nil
}

func (s *Store) TouchConversation(ctx context.Context, userID, conversationID string, at time.Time) (bool, error) {
	result, err := s.coll.UpdateOne(ctx,
		pointFilter(userID, conversationID, conversation.TypeConversation),
		bson.D{{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: at}}}},
	)
	if err != nil {
		return false, databaseError(ctx, "failed to update conversation timestamp", err, "1b7d4e9a-3c6f-4a2b-9d8e-7f5c1a3b6e92")
	}
	return result.MatchedCount > 0, nil
}

func (s *Store) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	_, err := s.coll.DeleteOne(ctx, pointFilter(userID, conversationID, conversation.TypeConversation))
	if err != nil {
		return databaseError(ctx, "failed to delete conversation", err, "5e2a8c1d-7b4f-4e9a-a3d6-9c1f5b7e2a84")
	}
	return nil
}

// ===============================================
// Messages
// ===============================================

func (s *Store) UpsertMessage(ctx context.Context, m *conversation.Message) error {
	doc := newMessageDoc(m)
	_, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.Key}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return databaseError(ctx, "failed to upsert message", err, "8c1f5a3e-2d9b-4f6a-b7e4-1a8d3c6f9b57")
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, userID, messageID string) (*conversation.Message, error) {
	var doc storedMessage
	err := s.coll.FindOne(ctx, pointFilter(userID, messageID, conversation.TypeMessage)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, databaseError(ctx, "failed to read message", err, "2d9e6b4a-8f1c-4a7e-9b3d-5c2a7e1f8d36")
	}
	message, err := doc.toDomain()
	if err != nil {
		return nil, databaseError(ctx, "failed to decode message content", err, "6a4c9e2f-1b7d-4e3a-8c5f-9d2b6a1e4c73")
	}
	return message, nil
}

// ListMessages returns the conversation's messages in creation order. Messages
// whose stored content cannot be decoded are logged and skipped.
func (s *Store) ListMessages(ctx context.Context, userID, conversationID string) ([]*conversation.Message, error) {
	cur, err := s.coll.Find(ctx, messagesFilter(userID, conversationID), options.Find().SetSort(bson.D{{Key: "ts", Value: 1}}))
	if err != nil {
		return nil, databaseError(ctx, "failed to list messages", err, "9f3b7d1e-4c8a-4b2f-a6e9-3e7c1d5a9b28")
	}
	var docs []storedMessage
	if err := cur.All(ctx, &docs); err != nil {
		return nil, databaseError(ctx, "failed to decode messages", err, "4b8e2a6c-9d3f-4e1b-8a7c-6f2d9b4e1a53")
	}
	messages := make([]*conversation.Message, 0, len(docs))
	for i := range docs {
		message, err := docs[i].toDomain()
		if err != nil {
			s.log.Warn().Err(err).Str("message_id", docs[i].ID).Msg("skipping message with unreadable content")
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (s *Store) DeleteMessage(ctx context.Context, userID, messageID string) error {
	_, err := s.coll.DeleteOne(ctx, pointFilter(userID, messageID, conversation.TypeMessage))
	if err != nil {
		return databaseError(ctx, "failed to delete message", err, "7d1a5f9c-3e6b-4a8d-b2f4-8c9e3a7d1f65")
	}
	return nil
}

// ===============================================
// Health
// ===============================================

// Ensure probes the server, the database and the collection in turn.
func (s *Store) Ensure(ctx context.Context) conversation.HealthReport {
	if err := s.client.Ping(ctx, nil); err != nil {
		return conversation.HealthReport{Kind: conversation.HealthUnreachable, Diagnostic: fmt.Sprintf("history store is unreachable: %v", err)}
	}
	databases, err := s.client.ListDatabaseNames(ctx, bson.D{{Key: "name", Value: s.database}})
	if err != nil {
		return conversation.HealthReport{Kind: conversation.HealthUnreachable, Diagnostic: fmt.Sprintf("failed to list databases: %v", err)}
	}
	if !slices.Contains(databases, s.database) {
		return conversation.HealthReport{Kind: conversation.HealthDatabaseMissing, Diagnostic: fmt.Sprintf("database %s does not exist", s.database)}
	}
	collections, err := s.client.Database(s.database).ListCollectionNames(ctx, bson.D{{Key: "name", Value: s.collection}})
	if err != nil {
		return conversation.HealthReport{Kind: conversation.HealthUnreachable, Diagnostic: fmt.Sprintf("failed to list collections: %v", err)}
	}
	if !slices.Contains(collections, s.collection) {
		return conversation.HealthReport{Kind: conversation.HealthCollectionMissing, Diagnostic: fmt.Sprintf("collection %s does not exist", s.collection)}
	}
	return conversation.HealthReport{OK: true}
}

func databaseError(ctx context.Context, message string, err error, code string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, message, err, code)
}
