package inference

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"jan-server/services/envchat-api/internal/domain/completion"
	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/utils/httpclients"
	chatclient "jan-server/services/envchat-api/internal/utils/httpclients/chat"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

const resourceEndpointShape = "https://%s.openai.azure.com"

// Config holds the process-wide provider connection settings.
type Config struct {
	Resource        string
	Endpoint        string
	GatewayEndpoint string
	Key             string
	Token           string
	TokenFile       string
	APIVersion      string
	UserAgent       string
	Timeout         time.Duration
}

// InferenceProvider hands out completion clients: a scoped client when the
// environment carries its own credentials, the default client otherwise.
type InferenceProvider struct {
	cfg    Config
	http   *resty.Client
	log    zerolog.Logger
	mu     sync.Mutex
	byBase map[string]*chatclient.ChatCompletionClient
}

var _ completion.ClientProvider = (*InferenceProvider)(nil)

func NewInferenceProvider(cfg Config) *InferenceProvider {
	return &InferenceProvider{
		cfg:    cfg,
		http:   httpclients.NewClient("chat-completion", cfg.Timeout),
		log:    logger.Component("inference_provider"),
		byBase: map[string]*chatclient.ChatCompletionClient{},
	}
}

func (ip *InferenceProvider) ClientFor(ctx context.Context, env *environment.Environment) (completion.Client, error) {
	if env != nil && env.BackendSettings.Completion.HasScopedClient() {
		settings := env.BackendSettings.Completion
		base := strings.TrimSpace(settings.Endpoint)
		if base == "" {
			base = fmt.Sprintf(resourceEndpointShape, strings.TrimSpace(settings.Resource))
		}
		ip.log.Debug().Str("environment_id", env.ID).Str("base_url", base).Msg("using environment scoped client")
		return &Client{
			chat:       ip.chatClient(base),
			creds:      staticCredentials(chatclient.Credentials{APIKey: settings.Key}),
			apiVersion: ip.cfg.APIVersion,
			userAgent:  ip.cfg.UserAgent,
		}, nil
	}

	base := ip.defaultBaseURL()
	if base == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeConfiguration, "provider endpoint is not configured", nil, "6f2c9a4e-1d8b-4a7f-b3e5-9c1a6d4f2e87")
	}
	return &Client{
		chat:          ip.chatClient(base),
		creds:         ip.defaultCredentials,
		apiVersion:    ip.cfg.APIVersion,
		userAgent:     ip.cfg.UserAgent,
		withTransport: true,
	}, nil
}

// defaultBaseURL prefers the gateway, then an explicit endpoint, then the
// resource name.
func (ip *InferenceProvider) defaultBaseURL() string {
	if endpoint := strings.TrimSpace(ip.cfg.GatewayEndpoint); endpoint != "" {
		return endpoint
	}
	if endpoint := strings.TrimSpace(ip.cfg.Endpoint); endpoint != "" {
		return endpoint
	}
	if resource := strings.TrimSpace(ip.cfg.Resource); resource != "" {
		return fmt.Sprintf(resourceEndpointShape, resource)
	}
	return ""
}

// defaultCredentials returns the configured key, or a bearer token. The token
// file is read on every call so rotated tokens are picked up.
func (ip *InferenceProvider) defaultCredentials(ctx context.Context) (chatclient.Credentials, error) {
	if key := strings.TrimSpace(ip.cfg.Key); key != "" {
		return chatclient.Credentials{APIKey: key}, nil
	}
	if token := strings.TrimSpace(ip.cfg.Token); token != "" {
		return chatclient.Credentials{Token: token}, nil
	}
	if path := strings.TrimSpace(ip.cfg.TokenFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return chatclient.Credentials{}, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeConfiguration, "failed to read provider token file", err, "2a7d4f1c-9e3b-4c6a-8d5f-1b9e4a7c3d26")
		}
		return chatclient.Credentials{Token: strings.TrimSpace(string(data))}, nil
	}
	return chatclient.Credentials{}, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeConfiguration, "no provider key or token configured", nil, "8e1b5c3a-4f7d-4a2e-9c6b-3d8f1a5e7c49")
}

func (ip *InferenceProvider) chatClient(base string) *chatclient.ChatCompletionClient {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if client, ok := ip.byBase[base]; ok {
		return client
	}
	client := chatclient.NewChatCompletionClient(ip.http, base, base)
	ip.byBase[base] = client
	return client
}

func staticCredentials(creds chatclient.Credentials) func(context.Context) (chatclient.Credentials, error) {
	return func(context.Context) (chatclient.Credentials, error) {
		return creds, nil
	}
}
