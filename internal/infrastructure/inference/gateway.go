package inference

import (
	"strings"

	"jan-server/services/envchat-api/internal/domain/completion"
	"jan-server/services/envchat-api/internal/domain/environment"
)

const subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

// GatewayConfig holds the API management gateway settings.
type GatewayConfig struct {
	Key          string
	Organization string
	AppName      string
	UserAgent    string
}

// Gateway builds the routing headers and query parameters the API management
// gateway uses to attribute calls to an organization and environment.
type Gateway struct {
	cfg GatewayConfig
}

var _ completion.TransportSource = (*Gateway)(nil)

func NewGateway(cfg GatewayConfig) *Gateway {
	return &Gateway{cfg: cfg}
}

func (g *Gateway) Transport(environmentID string) completion.TransportMetadata {
	meta := completion.TransportMetadata{
		Headers: map[string]string{},
		Query:   map[string]string{},
	}
	if g.cfg.UserAgent != "" {
		meta.Headers[userAgentHeader] = g.cfg.UserAgent
	}
	if key := strings.TrimSpace(g.cfg.Key); key != "" {
		meta.Headers["api-key"] = key
		meta.Headers[subscriptionKeyHeader] = key
	}
	if g.cfg.Organization != "" && g.cfg.AppName != "" {
		if environmentID == "" {
			environmentID = environment.DefaultEnvironmentID
		}
		meta.Query["appName"] = g.cfg.AppName
		meta.Query["organizationName"] = g.cfg.Organization + "." + environmentID
	}
	return meta
}
