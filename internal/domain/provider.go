package domain

import (
	"strings"

	"github.com/google/wire"

	"jan-server/services/envchat-api/internal/config"
	"jan-server/services/envchat-api/internal/domain/completion"
	"jan-server/services/envchat-api/internal/domain/conversation"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/pkg/telemetry"
)

// ServiceProvider provides all domain services
var ServiceProvider = wire.NewSet(
	// Environment domain
	ProvideFrontendSettingsSource,
	environment.NewRegistry,

	// Completion domain
	ProvideCompletionDefaults,
	ProvideComplianceTagger,
	completion.NewBuilder,
	completion.NewDispatcher,
	completion.NewTitleGenerator,
	completion.NewService,

	// Conversation domain
	ProvideConversationConfig,
	conversation.NewConversationService,
)

func ProvideFrontendSettingsSource(cfg *config.Config) environment.FrontendSettingsSource {
	return cfg
}

func ProvideCompletionDefaults(cfg *config.Config) completion.Defaults {
	return completion.Defaults{
		Model:             cfg.ProviderModel,
		APIVersion:        cfg.ProviderAPIVersion,
		MinimumAPIVersion: config.MinimumPreviewAPIVersion,
		Temperature:       cfg.ProviderTemperature,
		TopP:              cfg.ProviderTopP,
		MaxTokens:         cfg.ProviderMaxTokens,
		Stop:              splitStopSequence(cfg.ProviderStopSequence),
		Stream:            cfg.ProviderStream && !cfg.UsePromptflow,
		SystemMessage:     cfg.ProviderSystemMessage,
	}
}

func ProvideConversationConfig(cfg *config.Config) conversation.Config {
	return conversation.Config{
		FeedbackEnabled: cfg.FeedbackEnabled,
		PageSize:        cfg.ConversationPageSize,
	}
}

func ProvideComplianceTagger(tagger *telemetry.ComplianceTagger) completion.ComplianceTagger {
	return complianceTagger{tagger: tagger}
}

// complianceTagger maps completion callers onto the telemetry descriptor.
type complianceTagger struct {
	tagger *telemetry.ComplianceTagger
}

func (t complianceTagger) Tag(caller completion.Caller) (string, bool) {
	return t.tagger.Descriptor(telemetry.Caller{
		UserID:         caller.UserID,
		ClientIP:       caller.ClientIP,
		UserAgent:      caller.UserAgent,
		ForwardedFor:   caller.ForwardedFor,
		ConversationID: caller.ConversationID,
	})
}

// splitStopSequence splits OPENAI_STOP_SEQUENCE on "|".
func splitStopSequence(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var stops []string
	for _, stop := range strings.Split(raw, "|") {
		if stop != "" {
			stops = append(stops, stop)
		}
	}
	return stops
}
