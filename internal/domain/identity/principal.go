package identity

// AuthMethod describes how a caller was identified.
type AuthMethod string

const (
	AuthMethodPlatformHeaders AuthMethod = "platform_headers"
	AuthMethodJWT             AuthMethod = "jwt"
	AuthMethodDevelopment     AuthMethod = "development"
)

// Principal captures normalized caller identity independent of how it was resolved.
type Principal struct {
	ID               string
	Name             string
	IdentityProvider string
	AuthMethod       AuthMethod
	IsAdmin          bool
	ClientIP         string
	UserAgent        string
}
