package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/envchat-api/internal/utils/readiness"
)

func TestInitializerWithoutStoreOpensGate(t *testing.T) {
	gate := readiness.NewGate()
	initializer := NewInitializer(nil, gate, time.Second)

	require.NoError(t, initializer.Run(context.Background()))
	assert.True(t, gate.Ready())
}
