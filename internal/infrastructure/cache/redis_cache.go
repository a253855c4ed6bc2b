package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
)

const (
	CacheVersion  = "v1"
	keyPrefix     = "envchat:environments:" + CacheVersion + ":"
	lockPrefix    = "envchat:environments:lock:"
	generationKey = "envchat:environments:gen:"
	purgeCountKey = generationKey + "purges"
	ownerCountKey = generationKey + "owner:"
	lockExpiry    = 5 * time.Second
)

// RedisCache shares resolved environment lists between replicas. Writes and
// invalidations for one owner are serialized by a redsync mutex. Per-owner and
// purge counters back Version so every replica sees the same tokens.
type RedisCache struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	ttl    time.Duration
	log    zerolog.Logger
}

var _ environment.Cache = (*RedisCache)(nil)

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("Redis URL must be provided")
	}
	opts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	log := logger.Component("environment_cache")
	if len(opts.Addrs) > 1 && opts.DB != 0 {
		log.Warn().Msg("Ignoring non-zero DB when using Redis Cluster configuration")
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Msg("Successfully connected to Redis cache")
	return newRedisCache(client, ttl), nil
}

func newRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		log:    logger.Component("environment_cache"),
	}
}

func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no Redis addresses provided")
	}
	return opts, nil
}

func (r *RedisCache) Get(ctx context.Context, ownerID string) ([]*environment.Environment, bool) {
	val, err := r.client.Get(ctx, keyPrefix+ownerID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn().Err(err).Str("owner", ownerID).Msg("environment cache read failed")
		}
		return nil, false
	}
	var environments []*environment.Environment
	if err := json.Unmarshal([]byte(val), &environments); err != nil {
		r.log.Warn().Err(err).Str("owner", ownerID).Msg("discarding unreadable environment cache entry")
		return nil, false
	}
	return environments, true
}

func (r *RedisCache) Version(ctx context.Context, ownerID string) string {
	purges, owner, err := r.generations(ctx, ownerID)
	if err != nil {
		r.log.Warn().Err(err).Str("owner", ownerID).Msg("environment cache version read failed")
		return ""
	}
	return purges + ":" + owner
}

// Set stores the list best effort. A failure or a stale version only costs a
// later cache miss.
func (r *RedisCache) Set(ctx context.Context, ownerID, version string, environments []*environment.Environment) {
	if version == "" {
		return
	}
	payload, err := json.Marshal(environments)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to encode environments for cache")
		return
	}
	err = r.withLock(ctx, ownerID, func() error {
		purges, owner, err := r.generations(ctx, ownerID)
		if err != nil {
			return err
		}
		if purges+":"+owner != version {
			return nil
		}
		if err := r.client.Set(ctx, keyPrefix+ownerID, payload, r.ttl).Err(); err != nil {
			return err
		}
		// Purge bumps its counter before scanning, so a purge that began after
		// the check either shows up here or scans this key.
		after, err := r.counter(ctx, purgeCountKey)
		if err != nil || after != purges {
			return r.client.Unlink(ctx, keyPrefix+ownerID).Err()
		}
		return nil
	})
	if err != nil {
		r.log.Warn().Err(err).Str("owner", ownerID).Msg("environment cache write failed")
	}
}

func (r *RedisCache) Invalidate(ctx context.Context, ownerID string) error {
	return r.withLock(ctx, ownerID, func() error {
		if err := r.client.Incr(ctx, ownerCountKey+ownerID).Err(); err != nil {
			return fmt.Errorf("failed to bump cache generation: %w", err)
		}
		return r.client.Unlink(ctx, keyPrefix+ownerID).Err()
	})
}

func (r *RedisCache) generations(ctx context.Context, ownerID string) (string, string, error) {
	purges, err := r.counter(ctx, purgeCountKey)
	if err != nil {
		return "", "", err
	}
	owner, err := r.counter(ctx, ownerCountKey+ownerID)
	if err != nil {
		return "", "", err
	}
	return purges, owner, nil
}

func (r *RedisCache) counter(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return val, err
}

// Purge drops every owner's entry.
func (r *RedisCache) Purge(ctx context.Context) error {
	if err := r.client.Incr(ctx, purgeCountKey).Err(); err != nil {
		return fmt.Errorf("failed to bump purge generation: %w", err)
	}
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", 1000).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			pipe := r.client.Pipeline()
			for _, k := range keys {
				pipe.Unlink(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to unlink keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) withLock(ctx context.Context, ownerID string, fn func() error) error {
	mutex := r.rs.NewMutex(lockPrefix+ownerID, redsync.WithExpiry(lockExpiry))
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("failed to lock environment cache entry: %w", err)
	}
	defer func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			r.log.Error().Err(err).Msg("Failed to unlock mutex")
		}
	}()
	return fn()
}
