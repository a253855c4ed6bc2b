package chathandler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"jan-server/services/envchat-api/internal/domain/completion"
	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/domain/conversation"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/domain/identity"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/infrastructure/metrics"
	"jan-server/services/envchat-api/internal/infrastructure/observability"
	chatrequests "jan-server/services/envchat-api/internal/interfaces/httpserver/requests/chat"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
	"jan-server/services/envchat-api/pkg/telemetry"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleTool      = "tool"
)

// Completer runs completion turns and generates titles.
type Completer interface {
	Run(ctx context.Context, messages []completion.Message, env *environment.Environment, opts ...completion.BuildOption) (*completion.Outcome, error)
	Title(ctx context.Context, messages []completion.Message, env *environment.Environment) string
}

// EnvironmentResolver looks up the environment a turn runs against.
type EnvironmentResolver interface {
	Configured() bool
	ResolveOne(ctx context.Context, userID, envID string) (*environment.Environment, bool, error)
}

// HistoryWriter persists the turns of a history-backed conversation.
type HistoryWriter interface {
	CreateConversation(ctx context.Context, userID, title string, environmentID *string) (*conversation.Conversation, error)
	CreateMessage(ctx context.Context, id, conversationID, userID, role string, body content.Content) (*conversation.Message, error)
}

// Turn is one inbound completion call.
type Turn struct {
	Principal    identity.Principal
	ForwardedFor string
	Request      chatrequests.ConversationRequest
}

// TurnResult is the outcome of a turn plus the history metadata echoed to the client.
type TurnResult struct {
	Outcome         *completion.Outcome
	HistoryMetadata map[string]any
	Started         time.Time
	Grounded        bool
}

// Streaming reports whether the turn produced a fragment stream.
func (r *TurnResult) Streaming() bool {
	return r.Outcome != nil && r.Outcome.Stream != nil
}

// ChatHandler orchestrates completion turns, with and without chat history.
type ChatHandler struct {
	completions  Completer
	environments EnvironmentResolver
	history      HistoryWriter
	sanitizer    *telemetry.Sanitizer
	log          zerolog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(
	completions Completer,
	environments EnvironmentResolver,
	history HistoryWriter,
	sanitizer *telemetry.Sanitizer,
) *ChatHandler {
	return &ChatHandler{
		completions:  completions,
		environments: environments,
		history:      history,
		sanitizer:    sanitizer,
		log:          logger.Component("chat_handler"),
	}
}

// Complete runs a stateless turn. History metadata from the request is echoed.
func (h *ChatHandler) Complete(ctx context.Context, turn Turn) (*TurnResult, error) {
	ctx, span := observability.StartSpan(ctx, "ChatHandler.Complete")
	defer span.End()

	env, err := h.resolveEnvironment(ctx, turn.Principal.ID, turn.Request.EnvironmentID)
	if err != nil {
		observability.RecordError(ctx, err)
		return nil, err
	}

	meta := make(map[string]any, len(turn.Request.HistoryMetadata))
	for k, v := range turn.Request.HistoryMetadata {
		meta[k] = v
	}
	return h.run(ctx, turn, env, meta, "")
}

// Generate runs a history-backed turn. Without a conversation id a titled
// conversation is created first. The final user message is stored before the
// provider is called.
func (h *ChatHandler) Generate(ctx context.Context, turn Turn) (*TurnResult, error) {
	ctx, span := observability.StartSpan(ctx, "ChatHandler.Generate")
	defer span.End()

	req := turn.Request
	last, ok := req.LastMessage()
	if !ok || last.Role != roleUser {
		err := platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation, "No user message found", nil, "7a4c1e9b-3d6f-4b28-8e05-c2f9a1d7b364")
		observability.RecordError(ctx, err)
		return nil, err
	}

	env, err := h.resolveEnvironment(ctx, turn.Principal.ID, req.EnvironmentID)
	if err != nil {
		observability.RecordError(ctx, err)
		return nil, err
	}

	meta := map[string]any{}
	conversationID := req.ConversationID
	if conversationID == "" {
		title := h.completions.Title(ctx, req.Messages, env)
		var envID *string
		if req.EnvironmentID != "" {
			id := req.EnvironmentID
			envID = &id
		}
		conv, err := h.history.CreateConversation(ctx, turn.Principal.ID, title, envID)
		metrics.RecordHistoryOperation("create_conversation", err)
		if err != nil {
			observability.RecordError(ctx, err)
			return nil, err
		}
		conversationID = conv.ID
		meta["title"] = conv.Title
		meta["date"] = conv.CreatedAt
	}

	_, err = h.history.CreateMessage(ctx, "", conversationID, turn.Principal.ID, last.Role, last.Content)
	metrics.RecordHistoryOperation("create_message", err)
	if err != nil {
		observability.RecordError(ctx, err)
		return nil, err
	}
	meta["conversation_id"] = conversationID

	observability.AddSpanAttributes(ctx, attribute.String("conversation.id", conversationID))
	return h.run(ctx, turn, env, meta, conversationID)
}

// RecordAssistantTurn stores the assistant answer of a finished turn, preceded
// by the tool message carrying its citations when there is one.
func (h *ChatHandler) RecordAssistantTurn(ctx context.Context, turn Turn) error {
	req := turn.Request
	if req.ConversationID == "" {
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation, "No conversation_id found", nil, "e2b7d4a1-9c5f-4e36-b8a0-6f3d1c7e9a52")
	}
	last, ok := req.LastMessage()
	if !ok || last.Role != roleAssistant {
		return platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation, "No bot messages found", nil, "4f9e2a6c-1b8d-4d73-a5e1-8c0b3f6d2e97")
	}

	if previous, ok := req.PreviousMessage(); ok && previous.Role == roleTool {
		_, err := h.history.CreateMessage(ctx, "", req.ConversationID, turn.Principal.ID, previous.Role, previous.Content)
		metrics.RecordHistoryOperation("create_message", err)
		if err != nil {
			return err
		}
	}

	_, err := h.history.CreateMessage(ctx, last.ID, req.ConversationID, turn.Principal.ID, last.Role, last.Content)
	metrics.RecordHistoryOperation("create_message", err)
	return err
}

func (h *ChatHandler) run(ctx context.Context, turn Turn, env *environment.Environment, meta map[string]any, conversationID string) (*TurnResult, error) {
	grounded := env != nil && env.BackendSettings.Grounding.Enabled()
	envID := ""
	if env != nil {
		envID = env.ID
	}
	observability.AddSpanAttributes(ctx,
		attribute.String("environment.id", envID),
		attribute.Bool("chat.grounded", grounded),
		attribute.Int("chat.message_count", len(turn.Request.Messages)),
	)

	if last, ok := turn.Request.LastMessage(); ok && h.sanitizer != nil {
		h.log.Debug().
			Str("user_id", h.sanitizer.UserID(turn.Principal.ID)).
			Str("environment_id", envID).
			Str("prompt", h.sanitizer.Text(last.Content.PlainText())).
			Msg("running completion")
	}

	caller := completion.Caller{
		UserID:           turn.Principal.ID,
		UserName:         turn.Principal.Name,
		IdentityProvider: turn.Principal.IdentityProvider,
		ClientIP:         turn.Principal.ClientIP,
		UserAgent:        turn.Principal.UserAgent,
		ForwardedFor:     turn.ForwardedFor,
		ConversationID:   conversationID,
	}

	started := time.Now()
	outcome, err := h.completions.Run(ctx, turn.Request.Messages, env, completion.WithCaller(caller))
	if err != nil {
		metrics.RecordCompletion(false, grounded, err, time.Since(started).Seconds())
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeExternal) {
			metrics.RecordProviderError(platformerrors.ProviderStatus(err))
		}
		observability.RecordError(ctx, err)
		return nil, err
	}

	result := &TurnResult{Outcome: outcome, HistoryMetadata: meta, Started: started, Grounded: grounded}
	if !result.Streaming() {
		metrics.RecordCompletion(false, grounded, nil, time.Since(started).Seconds())
	}
	return result, nil
}

// resolveEnvironment returns nil when no environment was asked for or no
// environment store is configured.
func (h *ChatHandler) resolveEnvironment(ctx context.Context, userID, envID string) (*environment.Environment, error) {
	if envID == "" || h.environments == nil || !h.environments.Configured() {
		return nil, nil
	}
	env, ok, err := h.environments.ResolveOne(ctx, userID, envID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeNotFound,
			fmt.Sprintf("environment %s was not found", envID), nil, "b8d3f1a6-5e2c-4a97-9d14-3c7a0e6f2b81")
	}
	return env, nil
}
