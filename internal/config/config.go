package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// MinimumPreviewAPIVersion is the oldest provider API version that supports data sources.
const MinimumPreviewAPIVersion = "2024-05-01-preview"

// Global singleton for code paths without dependency injection (crontab, init).
var globalConfig *Config

// Config holds all environment backed configuration for envchat-api.
type Config struct {
	// HTTP Server
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9091"`
	CORSOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:5173"`

	// Environment store (PostgreSQL)
	DatabaseURL          string        `env:"DATABASE_URL"`
	DatabaseReadURL      string        `env:"DATABASE_READ_URL"`
	DatabaseMaxIdle      int           `env:"DATABASE_MAX_IDLE" envDefault:"10"`
	DatabaseMaxOpen      int           `env:"DATABASE_MAX_OPEN" envDefault:"25"`
	DatabaseMaxLifetime  time.Duration `env:"DATABASE_MAX_LIFETIME" envDefault:"1h"`
	AutoMigrate          bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	EnvironmentSeedFile  string        `env:"ENVIRONMENT_SEED_FILE"`
	EnvironmentSeedOnRun bool          `env:"ENVIRONMENT_SEED_ENABLED" envDefault:"true"`

	// Environment cache
	EnvironmentCacheEnabled bool          `env:"ENVIRONMENT_CACHE_ENABLED" envDefault:"false"`
	EnvironmentCacheBackend string        `env:"ENVIRONMENT_CACHE_BACKEND" envDefault:"memory"`
	EnvironmentCacheSize    int           `env:"ENVIRONMENT_CACHE_SIZE" envDefault:"100"`
	EnvironmentCacheTTL     time.Duration `env:"ENVIRONMENT_CACHE_TTL" envDefault:"5m"`
	RedisURL                string        `env:"REDIS_URL"`

	// Chat history (MongoDB)
	ChatHistoryURI        string        `env:"CHAT_HISTORY_URI"`
	ChatHistoryDatabase   string        `env:"CHAT_HISTORY_DATABASE" envDefault:"envchat"`
	ChatHistoryCollection string        `env:"CHAT_HISTORY_COLLECTION" envDefault:"conversations"`
	ChatHistoryTimeout    time.Duration `env:"CHAT_HISTORY_TIMEOUT" envDefault:"10s"`
	ChatHistoryProbeCron  string        `env:"CHAT_HISTORY_PROBE_CRON" envDefault:"*/5 * * * *"`
	FeedbackEnabled       bool          `env:"CHAT_HISTORY_ENABLE_FEEDBACK" envDefault:"false"`
	ConversationPageSize  int           `env:"CONVERSATION_PAGE_SIZE" envDefault:"25"`

	// Completion provider
	ProviderResource      string        `env:"OPENAI_RESOURCE"`
	ProviderEndpoint      string        `env:"OPENAI_ENDPOINT"`
	ProviderKey           string        `env:"OPENAI_KEY"`
	ProviderToken         string        `env:"OPENAI_AD_TOKEN"`
	ProviderTokenFile     string        `env:"OPENAI_AD_TOKEN_FILE"`
	ProviderModel         string        `env:"OPENAI_MODEL"`
	ProviderAPIVersion    string        `env:"OPENAI_PREVIEW_API_VERSION" envDefault:"2024-05-01-preview"`
	ProviderStream        bool          `env:"OPENAI_STREAM" envDefault:"true"`
	ProviderStopSequence  string        `env:"OPENAI_STOP_SEQUENCE"`
	ProviderTemperature   float32       `env:"OPENAI_TEMPERATURE" envDefault:"0.7"`
	ProviderTopP          float32       `env:"OPENAI_TOP_P" envDefault:"0.95"`
	ProviderMaxTokens     int           `env:"OPENAI_MAX_TOKENS" envDefault:"1000"`
	ProviderSystemMessage string        `env:"OPENAI_SYSTEM_MESSAGE"`
	ProviderTimeout       time.Duration `env:"OPENAI_TIMEOUT" envDefault:"120s"`

	// Gateway (API management)
	GatewayKey          string `env:"APIM_KEY"`
	GatewayEndpoint     string `env:"APIM_ENDPOINT"`
	GatewayOrganization string `env:"APIM_ORGANIZATION"`
	GatewayAppName      string `env:"APIM_APPNAME"`
	GatewayUserAgent    string `env:"APIM_USER_AGENT" envDefault:"GitHubSampleWebApp/AsyncAzureOpenAI/1.0.0"`

	// Compliance tagging
	ComplianceEnabled bool   `env:"MS_DEFENDER_ENABLED" envDefault:"true"`
	ApplicationName   string `env:"APPLICATION_NAME" envDefault:"envchat-api"`
	PIILevel          string `env:"PII_LEVEL" envDefault:"hashed"`
	PIISalt           string `env:"PII_SALT"`

	// Frontend settings base
	AuthEnabled              bool   `env:"AUTH_ENABLED" envDefault:"true"`
	SanitizeAnswer           bool   `env:"SANITIZE_ANSWER" envDefault:"false"`
	DatasourceType           string `env:"DATASOURCE_TYPE"`
	UITitle                  string `env:"UI_TITLE" envDefault:"Contoso"`
	UILogo                   string `env:"UI_LOGO"`
	UIChatLogo               string `env:"UI_CHAT_LOGO"`
	UIChatTitle              string `env:"UI_CHAT_TITLE" envDefault:"Start chatting"`
	UIChatDescription        string `env:"UI_CHAT_DESCRIPTION" envDefault:"This chatbot is configured to answer your questions"`
	UIShowShareButton        bool   `env:"UI_SHOW_SHARE_BUTTON" envDefault:"true"`
	UIShowChatHistoryButton  bool   `env:"UI_SHOW_CHAT_HISTORY_BUTTON" envDefault:"true"`
	UIEnableImageChat        bool   `env:"UI_ENABLE_IMAGE_CHAT" envDefault:"false"`
	UILanguage               string `env:"UI_LANGUAGE" envDefault:"en"`
	UIAdditionalHeaderLogo   string `env:"UI_ADDITIONAL_HEADER_LOGO"`
	UIHelpLinkTitle          string `env:"UI_HELP_LINK_TITLE"`
	UIHelpLinkURL            string `env:"UI_HELP_LINK_URL"`
	UILimitInputToCharacters int    `env:"UI_LIMIT_INPUT_TO_CHARACTERS" envDefault:"5000"`
	UIAppInsightsKey         string `env:"UI_APPINSIGHTS_INSTRUMENTATIONKEY"`
	UIEnableModeSelector     bool   `env:"UI_ENABLE_MODE_SELECTOR" envDefault:"false"`

	// Identity
	AdminUsers          []string      `env:"ADMIN_USERS" envSeparator:","`
	DevPrincipalID      string        `env:"DEV_PRINCIPAL_ID"`
	DevPrincipalName    string        `env:"DEV_PRINCIPAL_NAME" envDefault:"developer"`
	JWKSURL             string        `env:"JWKS_URL"`
	Issuer              string        `env:"ISSUER"`
	Audience            string        `env:"AUDIENCE"`
	RefreshJWKSInterval time.Duration `env:"JWKS_REFRESH_INTERVAL" envDefault:"5m"`
	AuthClockSkew       time.Duration `env:"AUTH_CLOCK_SKEW" envDefault:"60s"`

	// Observability / Logging
	OTLPEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders      string `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	ServiceName      string `env:"SERVICE_NAME" envDefault:"envchat-api"`
	ServiceNamespace string `env:"SERVICE_NAMESPACE" envDefault:"jan"`
	Environment      string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"console"`

	// Promptflow backend
	UsePromptflow            bool          `env:"USE_PROMPTFLOW" envDefault:"false"`
	PromptflowEndpoint       string        `env:"PROMPTFLOW_ENDPOINT"`
	PromptflowAPIKey         string        `env:"PROMPTFLOW_API_KEY"`
	PromptflowTimeout        time.Duration `env:"PROMPTFLOW_RESPONSE_TIMEOUT" envDefault:"30s"`
	PromptflowRequestField   string        `env:"PROMPTFLOW_REQUEST_FIELD_NAME" envDefault:"query"`
	PromptflowResponseField  string        `env:"PROMPTFLOW_RESPONSE_FIELD_NAME" envDefault:"reply"`
	PromptflowCitationsField string        `env:"PROMPTFLOW_CITATIONS_FIELD_NAME" envDefault:"documents"`
}

// Load reads an optional .env file, parses environment variables into Config and validates them.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.EnvironmentCacheBackend = strings.ToLower(strings.TrimSpace(cfg.EnvironmentCacheBackend))
	cfg.AdminUsers = trimAll(cfg.AdminUsers)

	globalConfig = cfg
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWKSURL != "" {
		if _, err := url.ParseRequestURI(c.JWKSURL); err != nil {
			return fmt.Errorf("invalid JWKS_URL: %w", err)
		}
		if c.Issuer == "" {
			return errors.New("ISSUER is required when JWKS_URL is set")
		}
	}

	if c.ProviderEndpoint != "" {
		if _, err := url.ParseRequestURI(c.ProviderEndpoint); err != nil {
			return fmt.Errorf("invalid OPENAI_ENDPOINT: %w", err)
		}
	}

	if c.UsePromptflow {
		if c.PromptflowEndpoint == "" || c.PromptflowAPIKey == "" {
			return errors.New("PROMPTFLOW_ENDPOINT and PROMPTFLOW_API_KEY are required when USE_PROMPTFLOW is set")
		}
		if _, err := url.ParseRequestURI(c.PromptflowEndpoint); err != nil {
			return fmt.Errorf("invalid PROMPTFLOW_ENDPOINT: %w", err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.EnvironmentCacheBackend)) {
	case "memory", "":
	case "redis":
		if c.EnvironmentCacheEnabled && c.RedisURL == "" {
			return errors.New("REDIS_URL is required when ENVIRONMENT_CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported ENVIRONMENT_CACHE_BACKEND %q", c.EnvironmentCacheBackend)
	}

	if c.EnvironmentCacheSize <= 0 {
		return errors.New("ENVIRONMENT_CACHE_SIZE must be positive")
	}
	if c.ConversationPageSize <= 0 {
		return errors.New("CONVERSATION_PAGE_SIZE must be positive")
	}
	return nil
}

// GetGlobal returns the config loaded by the last successful Load call.
func GetGlobal() *Config {
	return globalConfig
}

// EnvironmentStoreConfigured reports whether a PostgreSQL environment store is configured.
func (c *Config) EnvironmentStoreConfigured() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// ChatHistoryConfigured reports whether the conversation history store is configured.
func (c *Config) ChatHistoryConfigured() bool {
	return strings.TrimSpace(c.ChatHistoryURI) != "" && c.ChatHistoryDatabase != "" && c.ChatHistoryCollection != ""
}

// IsAdmin reports whether userID is listed in ADMIN_USERS.
func (c *Config) IsAdmin(userID string) bool {
	for _, admin := range c.AdminUsers {
		if admin == userID {
			return true
		}
	}
	return false
}

// FrontendSettings returns a fresh copy of the base frontend settings document.
func (c *Config) FrontendSettings() map[string]any {
	return map[string]any{
		"auth_enabled":     c.AuthEnabled,
		"feedback_enabled": c.FeedbackEnabled && c.ChatHistoryConfigured(),
		"ui": map[string]any{
			"title":                          c.UITitle,
			"logo":                           c.UILogo,
			"chat_logo":                      firstNonEmpty(c.UIChatLogo, c.UILogo),
			"chat_title":                     c.UIChatTitle,
			"chat_description":               c.UIChatDescription,
			"show_share_button":              c.UIShowShareButton,
			"show_chat_history_button":       c.UIShowChatHistoryButton,
			"enable_image_chat":              c.UIEnableImageChat,
			"language":                       c.UILanguage,
			"additional_header_logo":         c.UIAdditionalHeaderLogo,
			"help_link_title":                c.UIHelpLinkTitle,
			"help_link_url":                  c.UIHelpLinkURL,
			"limit_input_to_characters":      c.UILimitInputToCharacters,
			"appinsights_instrumentationkey": c.UIAppInsightsKey,
			"enable_mode_selector":           c.UIEnableModeSelector,
		},
		"sanitize_answer": c.SanitizeAnswer,
		"oyd_enabled":     c.DatasourceType,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
