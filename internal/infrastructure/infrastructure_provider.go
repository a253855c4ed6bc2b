package infrastructure

import (
	"context"
	"strings"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"jan-server/services/envchat-api/internal/config"
	"jan-server/services/envchat-api/internal/domain/completion"
	"jan-server/services/envchat-api/internal/domain/conversation"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/infrastructure/auth"
	"jan-server/services/envchat-api/internal/infrastructure/cache"
	"jan-server/services/envchat-api/internal/infrastructure/crontab"
	"jan-server/services/envchat-api/internal/infrastructure/database"
	"jan-server/services/envchat-api/internal/infrastructure/database/repository"
	"jan-server/services/envchat-api/internal/infrastructure/database/transaction"
	"jan-server/services/envchat-api/internal/infrastructure/inference"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/infrastructure/mongostore"
	"jan-server/services/envchat-api/internal/utils/readiness"
	"jan-server/services/envchat-api/pkg/telemetry"
)

// ProvideConfig returns the loaded configuration, loading it on first use.
func ProvideConfig() (*config.Config, error) {
	if cfg := config.GetGlobal(); cfg != nil {
		return cfg, nil
	}
	return config.Load()
}

// ProvideLogger installs the configured process logger.
func ProvideLogger(cfg *config.Config) (zerolog.Logger, error) {
	return logger.New(cfg.LogLevel, cfg.LogFormat)
}

// ProvideDatabase connects the environment store. Without DATABASE_URL it
// returns nil and the registry reports itself unconfigured.
func ProvideDatabase(cfg *config.Config, log zerolog.Logger) (*gorm.DB, func(), error) {
	if !cfg.EnvironmentStoreConfigured() {
		log.Warn().Msg("DATABASE_URL not set, environment store disabled")
		return nil, func() {}, nil
	}

	db, err := database.Connect(database.Config{
		DatabaseURL: cfg.DatabaseURL,
		ReadURL:     cfg.DatabaseReadURL,
		MaxIdle:     cfg.DatabaseMaxIdle,
		MaxOpen:     cfg.DatabaseMaxOpen,
		MaxLifetime: cfg.DatabaseMaxLifetime,
		LogLevel:    gormlogger.Warn,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := database.Close(db); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}

	if cfg.AutoMigrate {
		log.Info().Msg("Running database migrations...")
		if err := database.AutoMigrate(db); err != nil {
			log.Error().Err(err).Msg("Failed to run database migrations")
			cleanup()
			return nil, nil, err
		}
		log.Info().Msg("Database migrations completed successfully")
	}
	return db, cleanup, nil
}

// ProvideTransactionDatabase wraps db, keeping nil when no store is configured.
func ProvideTransactionDatabase(db *gorm.DB) *transaction.Database {
	if db == nil {
		return nil
	}
	return transaction.NewDatabase(db)
}

// ProvideEnvironmentCache returns nil when caching is disabled.
func ProvideEnvironmentCache(cfg *config.Config) (environment.Cache, error) {
	return cache.NewEnvironmentCache(cache.Config{
		Enabled:  cfg.EnvironmentCacheEnabled,
		Backend:  cfg.EnvironmentCacheBackend,
		Size:     cfg.EnvironmentCacheSize,
		TTL:      cfg.EnvironmentCacheTTL,
		RedisURL: cfg.RedisURL,
	})
}

// ProvideHistoryStore creates the MongoDB client. Connectivity is verified by the
// history initializer, not here.
func ProvideHistoryStore(cfg *config.Config, log zerolog.Logger) (*mongostore.Store, func(), error) {
	if !cfg.ChatHistoryConfigured() {
		log.Warn().Msg("CHAT_HISTORY_URI not set, chat history disabled")
		return nil, func() {}, nil
	}
	store, err := mongostore.New(mongostore.Config{
		URI:        cfg.ChatHistoryURI,
		Database:   cfg.ChatHistoryDatabase,
		Collection: cfg.ChatHistoryCollection,
		Timeout:    cfg.ChatHistoryTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ChatHistoryTimeout)
		defer cancel()
		if err := store.Close(ctx); err != nil {
			log.Error().Err(err).Msg("close chat history client")
		}
	}
	return store, cleanup, nil
}

// ProvideHistoryInitializer verifies the history store after startup.
func ProvideHistoryInitializer(cfg *config.Config, store *mongostore.Store, gate *readiness.Gate) *mongostore.Initializer {
	return mongostore.NewInitializer(store, gate, cfg.ChatHistoryTimeout)
}

// ProvideConversationStore exposes the history store through the domain
// interface without wrapping a nil pointer.
func ProvideConversationStore(store *mongostore.Store) conversation.Store {
	if store == nil {
		return nil
	}
	return store
}

func ProvideInferenceProvider(cfg *config.Config) *inference.InferenceProvider {
	return inference.NewInferenceProvider(inference.Config{
		Resource:        cfg.ProviderResource,
		Endpoint:        cfg.ProviderEndpoint,
		GatewayEndpoint: cfg.GatewayEndpoint,
		Key:             cfg.ProviderKey,
		Token:           cfg.ProviderToken,
		TokenFile:       cfg.ProviderTokenFile,
		APIVersion:      cfg.ProviderAPIVersion,
		UserAgent:       cfg.GatewayUserAgent,
		Timeout:         cfg.ProviderTimeout,
	})
}

func ProvideClientProvider(provider *inference.InferenceProvider) completion.ClientProvider {
	return provider
}

func ProvideGateway(cfg *config.Config) *inference.Gateway {
	return inference.NewGateway(inference.GatewayConfig{
		Key:          cfg.GatewayKey,
		Organization: cfg.GatewayOrganization,
		AppName:      cfg.GatewayAppName,
		UserAgent:    cfg.GatewayUserAgent,
	})
}

func ProvideTransportSource(gateway *inference.Gateway) completion.TransportSource {
	return gateway
}

// ProvideFlow returns the Promptflow client, or nil when chat turns go to the
// completion provider.
func ProvideFlow(cfg *config.Config) completion.Flow {
	if !cfg.UsePromptflow {
		return nil
	}
	return inference.NewPromptflowClient(inference.PromptflowConfig{
		Endpoint:       cfg.PromptflowEndpoint,
		APIKey:         cfg.PromptflowAPIKey,
		Timeout:        cfg.PromptflowTimeout,
		RequestField:   cfg.PromptflowRequestField,
		ResponseField:  cfg.PromptflowResponseField,
		CitationsField: cfg.PromptflowCitationsField,
	})
}

func ProvideSanitizer(cfg *config.Config) *telemetry.Sanitizer {
	return telemetry.NewSanitizer(telemetry.ParsePIILevel(cfg.PIILevel), cfg.PIISalt)
}

func ProvideComplianceTagger(cfg *config.Config) *telemetry.ComplianceTagger {
	return telemetry.NewComplianceTagger(cfg.ComplianceEnabled, cfg.ApplicationName)
}

// ProvideJWTValidator returns nil when JWKS_URL is not set; bearer tokens are then
// not accepted.
func ProvideJWTValidator(cfg *config.Config, log zerolog.Logger) (*auth.Validator, func(), error) {
	if strings.TrimSpace(cfg.JWKSURL) == "" {
		return nil, func() {}, nil
	}
	validator, err := auth.NewValidator(
		context.Background(),
		cfg.JWKSURL,
		cfg.Issuer,
		cfg.Audience,
		cfg.RefreshJWKSInterval,
		cfg.AuthClockSkew,
		log,
	)
	if err != nil {
		return nil, nil, err
	}
	return validator, validator.Close, nil
}

// ProvideCrontab schedules the chat history probe.
func ProvideCrontab(cfg *config.Config, history *conversation.ConversationService) *crontab.Crontab {
	return crontab.NewCrontab(history, cfg.ChatHistoryProbeCron)
}

// InfrastructureProvider provides all infrastructure dependencies
var InfrastructureProvider = wire.NewSet(
	// Config
	ProvideConfig,
	ProvideLogger,

	// Environment store
	ProvideDatabase,
	ProvideTransactionDatabase,
	repository.RepositoryProvider,
	ProvideEnvironmentCache,

	// Chat history
	ProvideHistoryStore,
	ProvideConversationStore,
	readiness.NewGate,
	ProvideHistoryInitializer,

	// Provider
	ProvideInferenceProvider,
	ProvideClientProvider,
	ProvideGateway,
	ProvideTransportSource,
	ProvideFlow,

	// Telemetry
	ProvideSanitizer,
	ProvideComplianceTagger,

	// Auth
	ProvideJWTValidator,

	// Crontab for history probe
	ProvideCrontab,
)
