package cache

import (
	"context"
	"fmt"
	"time"

	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/infrastructure/metrics"
)

// Config selects the environment cache backend.
type Config struct {
	Enabled  bool
	Backend  string
	Size     int
	TTL      time.Duration
	RedisURL string
}

// NewEnvironmentCache returns nil when caching is disabled.
func NewEnvironmentCache(cfg Config) (environment.Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "redis":
		cache, err := NewRedisCache(cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return instrumented{cache}, nil
	case "", "memory":
		cache, err := NewMemoryCache(cfg.Size, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return instrumented{cache}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// instrumented counts lookups by result.
type instrumented struct {
	environment.Cache
}

func (i instrumented) Get(ctx context.Context, ownerID string) ([]*environment.Environment, bool) {
	environments, ok := i.Cache.Get(ctx, ownerID)
	metrics.RecordCacheLookup(ok)
	return environments, ok
}
