package auth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Claims is the subset of token claims mapped onto a caller principal.
type Claims struct {
	jwt.RegisteredClaims
	Name              string   `json:"name,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Email             string   `json:"email,omitempty"`
	IdentityProvider  string   `json:"idp,omitempty"`
	Roles             []string `json:"roles,omitempty"`
}

// DisplayName picks the most readable name carried by the token.
func (c *Claims) DisplayName() string {
	for _, candidate := range []string{c.PreferredUsername, c.Name, c.Email} {
		if candidate != "" {
			return candidate
		}
	}
	return c.Subject
}

// Provider returns the identity provider, falling back to the issuer.
func (c *Claims) Provider() string {
	if c.IdentityProvider != "" {
		return c.IdentityProvider
	}
	return c.Issuer
}

// Validator checks bearer tokens against a remote JWKS.
type Validator struct {
	jwksURL      string
	issuer       string
	audience     string
	refreshEvery time.Duration
	clockSkew    time.Duration
	logger       zerolog.Logger
	jwks         atomic.Pointer[keyfunc.JWKS]
	lastErr      atomic.Value // holds refreshErr
}

type refreshErr struct{ Err error }

const (
	initialRetryInterval   = time.Second
	initialRetryMaxBackoff = 10 * time.Second
	initialRetryTimeout    = 2 * time.Minute
)

// NewValidator fetches the key set, retrying with backoff until ctx ends or the
// initial retry window elapses.
func NewValidator(ctx context.Context, jwksURL, issuer, audience string, refreshEvery, clockSkew time.Duration, logger zerolog.Logger) (*Validator, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}
	v := &Validator{
		jwksURL:      jwksURL,
		issuer:       issuer,
		audience:     audience,
		refreshEvery: refreshEvery,
		clockSkew:    clockSkew,
		logger:       logger,
	}
	v.lastErr.Store(refreshErr{})

	if err := v.fetch(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Validator) fetch(ctx context.Context) error {
	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   v.refreshEvery,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			v.lastErr.Store(refreshErr{Err: err})
			if err != nil {
				v.logger.Error().Err(err).Str("jwks_url", v.jwksURL).Msg("jwks refresh failed")
			}
		},
	}

	backoff := initialRetryInterval
	deadline := time.Now().Add(initialRetryTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	for attempt := 1; ; attempt++ {
		jwks, err := keyfunc.Get(v.jwksURL, options)
		if err == nil {
			v.jwks.Store(jwks)
			v.lastErr.Store(refreshErr{})
			return nil
		}

		v.logger.Warn().Err(err).Str("jwks_url", v.jwksURL).Int("attempt", attempt).Msg("initial jwks fetch failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("fetch jwks: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fetch jwks: %w", err)
		}
		backoff = min(backoff*2, initialRetryMaxBackoff)
	}
}

// Validate parses rawToken and checks signature, issuer, audience and validity
// window (with clock skew).
func (v *Validator) Validate(_ context.Context, rawToken string) (*Claims, error) {
	jwks := v.jwks.Load()
	if jwks == nil {
		return nil, errors.New("jwks not initialised")
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(parserOptions...).ParseWithClaims(rawToken, claims, jwks.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("sub claim missing")
	}
	return claims, nil
}

// Ready reports whether the key set is loaded and the last refresh succeeded.
func (v *Validator) Ready() bool {
	if v.jwks.Load() == nil {
		return false
	}
	if wrap, ok := v.lastErr.Load().(refreshErr); ok && wrap.Err != nil {
		return false
	}
	return true
}

// Close stops the background refresh.
func (v *Validator) Close() {
	if jwks := v.jwks.Load(); jwks != nil {
		jwks.EndBackground()
	}
}
