package completion

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"jan-server/services/envchat-api/internal/domain/content"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
)

const (
	titlePrompt = "Summarize the conversation so far into a 4-word or less title. " +
		"Do not use any quotation marks or punctuation. " +
		"Do not include any other commentary or description. " +
		"Use the original language of the conversation."
	titleTemperature = 1
	titleMaxTokens   = 64
	fallbackWords    = 4

	// DefaultTitle is used when no user message is available.
	DefaultTitle = "New Conversation"
)

// TitleGenerator derives a short conversation title. It never fails.
type TitleGenerator struct {
	builder    *Builder
	dispatcher *Dispatcher
	log        zerolog.Logger
}

func NewTitleGenerator(builder *Builder, dispatcher *Dispatcher) *TitleGenerator {
	return &TitleGenerator{
		builder:    builder,
		dispatcher: dispatcher,
		log:        logger.Component("title_generator"),
	}
}

// Generate asks the provider for a title and falls back to the first words of the
// last user message on any failure.
func (g *TitleGenerator) Generate(ctx context.Context, messages []Message, env *environment.Environment) string {
	plain := make([]Message, 0, len(messages)+1)
	for _, message := range messages {
		plain = append(plain, Message{
			Role:    message.Role,
			Content: content.NewText(message.Content.PlainText()),
		})
	}
	plain = append(plain, Message{Role: openai.ChatMessageRoleUser, Content: content.NewText(titlePrompt)})

	req, err := g.builder.Build(ctx, plain, env, withOverrides(func(r *Request) {
		r.Stream = false
		r.Temperature = titleTemperature
		r.MaxTokens = titleMaxTokens
		r.DataSources = nil
		r.User = ""
	}))
	if err != nil {
		g.log.Warn().Err(err).Msg("title request could not be built, using fallback")
		return FallbackTitle(messages)
	}

	result, err := g.dispatcher.Complete(ctx, req, env)
	if err != nil {
		g.log.Warn().Err(err).Msg("title generation failed, using fallback")
		return FallbackTitle(messages)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message == nil {
		return FallbackTitle(messages)
	}
	title := strings.TrimSpace(result.Choices[0].Message.Content)
	if title == "" {
		return FallbackTitle(messages)
	}
	return title
}

// FallbackTitle returns the first four words of the last user message, or
// DefaultTitle when there is none.
func FallbackTitle(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != openai.ChatMessageRoleUser {
			continue
		}
		words := strings.Fields(messages[i].Content.PlainText())
		if len(words) == 0 {
			continue
		}
		if len(words) > fallbackWords {
			words = words[:fallbackWords]
		}
		return strings.Join(words, " ")
	}
	return DefaultTitle
}
