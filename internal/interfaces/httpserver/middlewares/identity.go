package middlewares

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/envchat-api/internal/config"
	"jan-server/services/envchat-api/internal/domain/identity"
	"jan-server/services/envchat-api/internal/infrastructure/auth"
	"jan-server/services/envchat-api/internal/infrastructure/metrics"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

const principalContextKey = "principal"

// Platform headers injected by the hosting front door.
const (
	headerPrincipalID   = "X-Ms-Client-Principal-Id"
	headerPrincipalName = "X-Ms-Client-Principal-Name"
	headerPrincipalIdp  = "X-Ms-Client-Principal-Idp"
)

var errNoCredentials = errors.New("no credentials")

// IdentityMiddleware resolves the caller from platform headers, then a bearer
// JWT, then the configured development principal. Anything else is a 401.
func IdentityMiddleware(validator *auth.Validator, cfg *config.Config, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if principal, ok := principalFromHeaders(c); ok {
			metrics.RecordAuth(string(identity.AuthMethodPlatformHeaders), true)
			setPrincipal(c, cfg, principal)
			c.Next()
			return
		}

		principal, err := principalFromJWT(c, validator)
		switch {
		case err == nil:
			metrics.RecordAuth(string(identity.AuthMethodJWT), true)
			setPrincipal(c, cfg, principal)
			c.Next()
			return
		case !errors.Is(err, errNoCredentials):
			metrics.RecordAuth(string(identity.AuthMethodJWT), false)
			logger.Warn().Err(err).Str("path", c.FullPath()).Msg("jwt validation failed")
			platformerrors.WriteUnauthorized(c, "invalid bearer token")
			return
		}

		if cfg.DevPrincipalID != "" {
			metrics.RecordAuth(string(identity.AuthMethodDevelopment), true)
			setPrincipal(c, cfg, identity.Principal{
				ID:               cfg.DevPrincipalID,
				Name:             cfg.DevPrincipalName,
				IdentityProvider: "development",
				AuthMethod:       identity.AuthMethodDevelopment,
			})
			c.Next()
			return
		}

		metrics.RecordAuth("none", false)
		logger.Warn().
			Str("path", c.FullPath()).
			Str("method", c.Request.Method).
			Msg("unauthenticated request")
		platformerrors.WriteUnauthorized(c, "authentication required")
	}
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(c *gin.Context) (identity.Principal, bool) {
	val, ok := c.Get(principalContextKey)
	if !ok {
		return identity.Principal{}, false
	}
	principal, ok := val.(identity.Principal)
	return principal, ok
}

func setPrincipal(c *gin.Context, cfg *config.Config, principal identity.Principal) {
	principal.IsAdmin = cfg.IsAdmin(principal.ID)
	principal.ClientIP = c.ClientIP()
	principal.UserAgent = c.Request.UserAgent()
	c.Set(principalContextKey, principal)
	c.Set("user_id", principal.ID)
}

func principalFromHeaders(c *gin.Context) (identity.Principal, bool) {
	id := strings.TrimSpace(c.GetHeader(headerPrincipalID))
	if id == "" {
		return identity.Principal{}, false
	}
	return identity.Principal{
		ID:               id,
		Name:             c.GetHeader(headerPrincipalName),
		IdentityProvider: c.GetHeader(headerPrincipalIdp),
		AuthMethod:       identity.AuthMethodPlatformHeaders,
	}, true
}

func principalFromJWT(c *gin.Context, validator *auth.Validator) (identity.Principal, error) {
	if validator == nil {
		return identity.Principal{}, errNoCredentials
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return identity.Principal{}, errNoCredentials
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return identity.Principal{}, errNoCredentials
	}

	claims, err := validator.Validate(c.Request.Context(), strings.TrimSpace(token))
	if err != nil {
		return identity.Principal{}, err
	}
	return identity.Principal{
		ID:               claims.Subject,
		Name:             claims.DisplayName(),
		IdentityProvider: claims.Provider(),
		AuthMethod:       identity.AuthMethodJWT,
	}, nil
}
