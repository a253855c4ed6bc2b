package mongostore

import (
	"context"
	"time"

	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/utils/readiness"
)

// Initializer verifies the history store in the background and then opens the
// readiness gate. The gate opens even when the store is absent or broken so
// that waiting requests fail with the store's own error instead of hanging.
type Initializer struct {
	store   *Store
	gate    *readiness.Gate
	timeout time.Duration
}

// NewInitializer accepts a nil store.
func NewInitializer(store *Store, gate *readiness.Gate, timeout time.Duration) *Initializer {
	return &Initializer{store: store, gate: gate, timeout: timeout}
}

// Run pings the store and creates its indexes. It never fails the process.
func (i *Initializer) Run(ctx context.Context) error {
	defer i.gate.Signal()
	if i.store == nil {
		return nil
	}

	log := logger.Component("history_initializer")
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	if err := i.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("chat history store unreachable")
		return nil
	}
	if err := i.store.EnsureIndexes(ctx); err != nil {
		log.Error().Err(err).Msg("chat history indexes not created")
		return nil
	}
	log.Info().Str("database", i.store.database).Str("collection", i.store.collection).Msg("chat history ready")
	return nil
}
